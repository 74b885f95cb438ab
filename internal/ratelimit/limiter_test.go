package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidroops/represas-insights/internal/apperr"
	"github.com/hidroops/represas-insights/internal/metrics"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(store Store, max int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	l := New(Config{Name: "insights", Window: window, Max: max}, store, metrics.New())
	l.now = clock.now
	return l, clock
}

func TestLimiterRejectsAfterMaxThenResets(t *testing.T) {
	l, clock := newTestLimiter(NewMemoryStore(100), 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Check(ctx, "10.0.0.1"), "request %d", i+1)
	}

	err := l.Check(ctx, "10.0.0.1")
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindRateLimited, ae.Kind)
	assert.Equal(t, 429, ae.Status())
	assert.Equal(t, clock.now().Add(time.Minute), ae.RetryAt)

	// Other clients are independent.
	assert.NoError(t, l.Check(ctx, "10.0.0.2"))

	// The window is inclusive of resetAt; strictly after it a new one starts.
	clock.advance(time.Minute)
	assert.Error(t, l.Check(ctx, "10.0.0.1"))
	clock.advance(time.Millisecond)
	assert.NoError(t, l.Check(ctx, "10.0.0.1"))
}

func TestLimiterDecision(t *testing.T) {
	l, clock := newTestLimiter(NewMemoryStore(100), 2, time.Minute)

	d, err := l.Allow(context.Background(), "c")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, clock.t.Add(time.Minute), d.ResetAt)
}

type failingStore struct{}

func (failingStore) Hit(context.Context, string, time.Duration, time.Time) (Bucket, error) {
	return Bucket{}, errors.New("connection refused")
}

func TestLimiterFailsOpenOnStoreError(t *testing.T) {
	l, _ := newTestLimiter(failingStore{}, 1, time.Minute)
	assert.NoError(t, l.Check(context.Background(), "c"))

	_, err := l.Allow(context.Background(), "c")
	assert.Error(t, err)
}

func TestMemoryStoreSweepsExpiredBuckets(t *testing.T) {
	s := NewMemoryStore(3)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := s.Hit(ctx, fmt.Sprintf("old-%d", i), time.Second, start)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.Len())

	later := start.Add(time.Minute)
	_, err := s.Hit(ctx, "new", time.Second, later)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreConcurrentHits(t *testing.T) {
	s := NewMemoryStore(0)
	now := time.Now()
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func() {
			_, _ = s.Hit(context.Background(), "k", time.Minute, now)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	b, err := s.Hit(context.Background(), "k", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 51, b.Count)
}
