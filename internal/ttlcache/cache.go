// Package ttlcache is a generic time-boxed key/value cache with lazy expiry.
package ttlcache

import (
	"time"

	"github.com/angelmondragon/huddle-backend/internal/shard"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Cache stores values until their TTL elapses. Expired entries are invisible
// to reads; Sweep only reclaims memory.
type Cache[K comparable, V any] struct {
	items *shard.Map[K, entry[V]]
	now   func() time.Time
}

func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{
		items: shard.New[K, entry[V]](shard.DefaultShards),
		now:   time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (c *Cache[K, V]) WithClock(now func() time.Time) *Cache[K, V] {
	c.now = now
	return c
}

// Get returns the live value for key, dropping it if it has expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	now := c.now()
	var (
		value V
		found bool
	)
	c.items.Compute(key, func(cur entry[V], exists bool) (entry[V], bool) {
		if !exists || cur.expired(now) {
			return cur, false
		}
		value, found = cur.value, true
		return cur, true
	})
	return value, found
}

// Set stores value for ttl. A non-positive ttl never expires.
func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	e := entry[V]{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.items.Compute(key, func(entry[V], bool) (entry[V], bool) { return e, true })
}

// SetIfAbsent stores value only when no live entry exists and reports whether
// it did. The existing live value is returned otherwise.
func (c *Cache[K, V]) SetIfAbsent(key K, value V, ttl time.Duration) (V, bool) {
	now := c.now()
	stored := false
	result, _ := c.items.Compute(key, func(cur entry[V], exists bool) (entry[V], bool) {
		if exists && !cur.expired(now) {
			return cur, true
		}
		stored = true
		e := entry[V]{value: value}
		if ttl > 0 {
			e.expiresAt = now.Add(ttl)
		}
		return e, true
	})
	return result.value, stored
}

func (c *Cache[K, V]) Delete(key K) {
	c.items.Delete(key)
}

// Len counts live entries.
func (c *Cache[K, V]) Len() int {
	now := c.now()
	n := 0
	c.items.Range(func(_ K, e entry[V]) bool {
		if !e.expired(now) {
			n++
		}
		return true
	})
	return n
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache[K, V]) Sweep() int {
	now := c.now()
	return c.items.DeleteFunc(func(_ K, e entry[V]) bool {
		return e.expired(now)
	})
}
