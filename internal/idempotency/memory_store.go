package idempotency

import (
	"context"
	"time"

	"github.com/angelmondragon/huddle-backend/internal/ttlcache"
)

// MemoryStore keeps records in process. Expired records are invisible on
// read; Sweep reclaims them.
type MemoryStore struct {
	cache *ttlcache.Cache[string, Record]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: ttlcache.New[string, Record]()}
}

// WithClock overrides the cache clock. Intended for tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.cache.WithClock(now)
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	rec, ok := s.cache.Get(key)
	return rec, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, rec Record, ttl time.Duration) error {
	s.cache.SetIfAbsent(key, rec, ttl)
	return nil
}

func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

func (s *MemoryStore) Sweep() int {
	return s.cache.Sweep()
}
