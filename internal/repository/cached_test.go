package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidroops/represas-insights/internal/cache"
	"github.com/hidroops/represas-insights/internal/insights"
)

type countingRepo struct {
	nameCalls int
	rowCalls  int
	listCalls int
	err       error
}

func (r *countingRepo) ListEntities(ctx context.Context) ([]insights.Entity, error) {
	r.listCalls++
	return []insights.Entity{{ID: 1, Name: "Rapel"}, {ID: 2, Name: "Colbún"}}, r.err
}

func (r *countingRepo) EntityNames(ctx context.Context, ids []int64) ([]insights.Entity, error) {
	r.nameCalls++
	if r.err != nil {
		return nil, r.err
	}
	out := make([]insights.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, insights.Entity{ID: id, Name: "R"})
	}
	return out, nil
}

func (r *countingRepo) TelemetryRows(ctx context.Context, q insights.RowsQuery) ([]insights.TelemetryRow, error) {
	r.rowCalls++
	return nil, nil
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}

func TestCachedTelemetryCachesNames(t *testing.T) {
	inner := &countingRepo{}
	c := NewCachedTelemetry(inner, cache.NewMemoryStore(10), time.Minute, nil)
	ctx := context.Background()

	first, err := c.EntityNames(ctx, []int64{2, 1})
	require.NoError(t, err)
	second, err := c.EntityNames(ctx, []int64{1, 2})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.nameCalls)

	_, err = c.TelemetryRows(ctx, insights.RowsQuery{})
	require.NoError(t, err)
	_, err = c.TelemetryRows(ctx, insights.RowsQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.rowCalls)
}

func TestCachedTelemetryCachesDirectory(t *testing.T) {
	inner := &countingRepo{}
	store := cache.NewMemoryStore(10)
	c := NewCachedTelemetry(inner, store, time.Minute, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := c.ListEntities(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	}
	assert.Equal(t, 1, inner.listCalls)

	raw, err := store.Get(ctx, "meta:represas")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":1,"nombre":"Rapel"},{"id":2,"nombre":"Colbún"}]`, string(raw))
}

func TestCachedTelemetryDegradesOnStoreFailure(t *testing.T) {
	inner := &countingRepo{}
	c := NewCachedTelemetry(inner, brokenStore{}, time.Minute, nil)

	got, err := c.EntityNames(context.Background(), []int64{7})
	require.NoError(t, err)
	assert.Equal(t, []insights.Entity{{ID: 7, Name: "R"}}, got)
}

func TestCachedTelemetryDoesNotCacheErrors(t *testing.T) {
	inner := &countingRepo{err: errors.New("db down")}
	c := NewCachedTelemetry(inner, cache.NewMemoryStore(10), time.Minute, nil)

	_, err := c.EntityNames(context.Background(), []int64{1})
	assert.Error(t, err)
	_, err = c.EntityNames(context.Background(), []int64{1})
	assert.Error(t, err)
	assert.Equal(t, 2, inner.nameCalls)
}

func TestEntityNamesKeyIsOrderIndependent(t *testing.T) {
	assert.Equal(t, "meta:represas:1,2,3", entityNamesKey([]int64{3, 1, 2}))
}
