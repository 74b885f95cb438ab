package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "ratelimit:insights"), mr
}

func TestRedisStoreCountsWithinWindow(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	b, err := s.Hit(ctx, "10.0.0.1", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Count)
	assert.WithinDuration(t, now.Add(time.Minute), b.ResetAt, time.Second)

	b, err = s.Hit(ctx, "10.0.0.1", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Count)

	assert.True(t, mr.Exists("ratelimit:insights:10.0.0.1"))
	assert.Greater(t, mr.TTL("ratelimit:insights:10.0.0.1"), time.Duration(0))
}

func TestRedisStoreWindowExpires(t *testing.T) {
	s, mr := newRedisStore(t)
	l := New(Config{Name: "insights", Window: time.Minute, Max: 1}, s, nil)
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "c"))
	assert.Error(t, l.Check(ctx, "c"))

	mr.FastForward(time.Minute + time.Millisecond)
	assert.NoError(t, l.Check(ctx, "c"))
}

func TestRedisStoreUnavailable(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()

	_, err := s.Hit(context.Background(), "c", time.Minute, time.Now())
	assert.Error(t, err)
}
