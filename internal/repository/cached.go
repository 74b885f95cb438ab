// Package repository holds data access decorators shared by the concrete
// stores under its subpackages.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hidroops/represas-insights/internal/cache"
	"github.com/hidroops/represas-insights/internal/insights"
	"github.com/hidroops/represas-insights/internal/metrics"
	"github.com/hidroops/represas-insights/internal/pkg/logger"
)

const (
	directoryKey         = "meta:represas"
	entityNamesKeyPrefix = "meta:represas:"
)

// Source is a telemetry repository that can also list the directory.
type Source interface {
	insights.Repository
	insights.Directory
}

// CachedTelemetry caches reservoir metadata in front of a Source.
// Telemetry rows always go to the underlying source. Cache failures
// degrade to a direct read.
type CachedTelemetry struct {
	Source
	store   cache.Store
	ttl     time.Duration
	metrics *metrics.Metrics
}

func NewCachedTelemetry(inner Source, store cache.Store, ttl time.Duration, m *metrics.Metrics) *CachedTelemetry {
	return &CachedTelemetry{Source: inner, store: store, ttl: ttl, metrics: m}
}

func entityNamesKey(ids []int64) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return entityNamesKeyPrefix + strings.Join(parts, ",")
}

func (c *CachedTelemetry) EntityNames(ctx context.Context, ids []int64) ([]insights.Entity, error) {
	return c.cached(ctx, entityNamesKey(ids), func() ([]insights.Entity, error) {
		return c.Source.EntityNames(ctx, ids)
	})
}

func (c *CachedTelemetry) ListEntities(ctx context.Context) ([]insights.Entity, error) {
	return c.cached(ctx, directoryKey, func() ([]insights.Entity, error) {
		return c.Source.ListEntities(ctx)
	})
}

func (c *CachedTelemetry) cached(ctx context.Context, k string, load func() ([]insights.Entity, error)) ([]insights.Entity, error) {
	log := logger.FromContext(ctx)

	raw, err := c.store.Get(ctx, k)
	switch {
	case err == nil:
		var entities []insights.Entity
		if jerr := json.Unmarshal(raw, &entities); jerr == nil {
			c.metrics.CacheLookup(true)
			return entities, nil
		}
		log.Warn("discarding undecodable cache entry", "entry", k)
	case !errors.Is(err, cache.ErrMiss):
		log.Warn("metadata cache read failed", "error", err)
	}
	c.metrics.CacheLookup(false)

	entities, err := load()
	if err != nil {
		return nil, err
	}
	if buf, jerr := json.Marshal(entities); jerr == nil {
		if serr := c.store.Set(ctx, k, buf, c.ttl); serr != nil {
			log.Warn("metadata cache write failed", "error", serr)
		}
	}
	return entities, nil
}
