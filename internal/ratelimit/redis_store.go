package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Increments the window counter and arms its expiry on the first hit. A
// counter left without a TTL is re-armed. Returns {count, pttl}.
const hitLuaScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

// RedisStore shares windows across replicas. Expiry is left to Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	script *redis.Script
}

// NewRedisStore namespaces keys as "<prefix>:<client>".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, script: redis.NewScript(hitLuaScript)}
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (Bucket, error) {
	res, err := s.script.Run(ctx, s.client, []string{s.prefix + ":" + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Bucket{}, fmt.Errorf("rate limit hit: %w", err)
	}
	if len(res) != 2 {
		return Bucket{}, fmt.Errorf("rate limit hit: unexpected reply %v", res)
	}
	return Bucket{
		Count:   int(res[0]),
		ResetAt: now.Add(time.Duration(res[1]) * time.Millisecond),
	}, nil
}
