package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreTTL(t *testing.T) {
	s := NewMemoryStore(10)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStoreEvictsWhenFull(t *testing.T) {
	s := NewMemoryStore(2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "soon", []byte("1"), time.Second))
	require.NoError(t, s.Set(ctx, "later", []byte("2"), time.Hour))
	require.NoError(t, s.Set(ctx, "new", []byte("3"), time.Hour))

	_, err := s.Get(ctx, "soon")
	assert.ErrorIs(t, err, ErrMiss)
	_, err = s.Get(ctx, "later")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "new")
	assert.NoError(t, err)
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	v := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", v, time.Minute))
	v[0] = 'x'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore(client, "meta")
	ctx := context.Background()

	_, err := s.Get(ctx, "represas")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Set(ctx, "represas", []byte(`[1,2]`), 5*time.Minute))
	got, err := s.Get(ctx, "represas")
	require.NoError(t, err)
	assert.Equal(t, `[1,2]`, string(got))
	assert.Equal(t, 5*time.Minute, mr.TTL("meta:represas"))

	mr.FastForward(5 * time.Minute)
	_, err = s.Get(ctx, "represas")
	assert.ErrorIs(t, err, ErrMiss)
}
