// Package ratelimit implements fixed-window request limiting per client
// identity, backed by an in-process table or by Redis.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is the state of one client's current window.
type Bucket struct {
	Count   int
	ResetAt time.Time
}

// Store records hits. Hit must be atomic per key: it starts a new window
// of length window when none exists or now is past ResetAt, otherwise it
// increments the count. It returns the bucket after the hit.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (Bucket, error)
}

// MemoryStore is a mutex-guarded bucket table. When it grows past
// maxBuckets, expired buckets are swept.
type MemoryStore struct {
	mu         sync.Mutex
	buckets    map[string]*Bucket
	maxBuckets int
}

func NewMemoryStore(maxBuckets int) *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*Bucket), maxBuckets: maxBuckets}
}

func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration, now time.Time) (Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok || now.After(b.ResetAt) {
		b = &Bucket{Count: 1, ResetAt: now.Add(window)}
		s.buckets[key] = b
	} else {
		b.Count++
	}

	if s.maxBuckets > 0 && len(s.buckets) > s.maxBuckets {
		s.sweep(now)
	}
	return *b, nil
}

func (s *MemoryStore) sweep(now time.Time) {
	for k, b := range s.buckets {
		if now.After(b.ResetAt) {
			delete(s.buckets, k)
		}
	}
}

// Len returns the number of tracked buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
