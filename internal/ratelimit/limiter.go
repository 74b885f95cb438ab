package ratelimit

import (
	"context"
	"time"

	"github.com/hidroops/represas-insights/internal/apperr"
	"github.com/hidroops/represas-insights/internal/metrics"
	"github.com/hidroops/represas-insights/internal/pkg/logger"
)

// Config sizes one limiter.
type Config struct {
	Name    string
	Window  time.Duration
	Max     int
	Message string
}

// Decision is the result of counting one request.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter applies a fixed window of Max requests per client identity.
type Limiter struct {
	cfg     Config
	store   Store
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(cfg Config, store Store, m *metrics.Metrics) *Limiter {
	if cfg.Message == "" {
		cfg.Message = "Demasiadas solicitudes, intenta más tarde"
	}
	return &Limiter{cfg: cfg, store: store, metrics: m, now: time.Now}
}

func (l *Limiter) Name() string { return l.cfg.Name }

// Allow counts one request for key. Store failures are returned as-is.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	b, err := l.store.Hit(ctx, key, l.cfg.Window, l.now())
	if err != nil {
		return Decision{}, err
	}
	d := Decision{
		Allowed:   b.Count <= l.cfg.Max,
		Limit:     l.cfg.Max,
		Remaining: max(l.cfg.Max-b.Count, 0),
		ResetAt:   b.ResetAt,
	}
	if !d.Allowed {
		l.metrics.RateLimited(l.cfg.Name)
	}
	return d, nil
}

// Check is Allow reduced to an error: RATE_LIMITED on rejection. A store
// failure is logged and the request is let through.
func (l *Limiter) Check(ctx context.Context, key string) error {
	d, err := l.Allow(ctx, key)
	if err != nil {
		logger.FromContext(ctx).Warn("rate limit store unavailable, allowing request",
			"limiter", l.cfg.Name,
			"error", err,
		)
		return nil
	}
	if !d.Allowed {
		return l.rejection(d)
	}
	return nil
}

func (l *Limiter) rejection(d Decision) *apperr.Error {
	return apperr.RateLimited(l.cfg.Message).WithDetails(map[string]any{
		"limit":   d.Limit,
		"resetAt": d.ResetAt.UTC().Format(time.RFC3339),
	}).WithRetryAt(d.ResetAt)
}
