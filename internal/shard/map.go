// Package shard provides a lock-striped map so per-key read-modify-write
// sequences on different keys do not contend on a single mutex.
package shard

import (
	"hash/maphash"
	"sync"
)

const DefaultShards = 32

type bucket[K comparable, V any] struct {
	mu    sync.Mutex
	items map[K]V
}

// Map is a fixed set of mutex-guarded buckets selected by key hash.
type Map[K comparable, V any] struct {
	seed    maphash.Seed
	buckets []*bucket[K, V]
}

// New builds a map with n buckets, falling back to DefaultShards when n <= 0.
func New[K comparable, V any](n int) *Map[K, V] {
	if n <= 0 {
		n = DefaultShards
	}
	m := &Map[K, V]{
		seed:    maphash.MakeSeed(),
		buckets: make([]*bucket[K, V], n),
	}
	for i := range m.buckets {
		m.buckets[i] = &bucket[K, V]{items: make(map[K]V)}
	}
	return m
}

func (m *Map[K, V]) bucketFor(key K) *bucket[K, V] {
	h := maphash.Comparable(m.seed, key)
	return m.buckets[h%uint64(len(m.buckets))]
}

// Get returns the stored value for key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	b := m.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.items[key]
	return v, ok
}

// Compute runs fn under the key's bucket lock with the current value. When fn
// returns keep=false the key is deleted, otherwise next is stored.
func (m *Map[K, V]) Compute(key K, fn func(cur V, exists bool) (next V, keep bool)) (V, bool) {
	b := m.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	cur, ok := b.items[key]
	next, keep := fn(cur, ok)
	if !keep {
		delete(b.items, key)
		return next, false
	}
	b.items[key] = next
	return next, true
}

// Delete removes key and reports whether it was present.
func (m *Map[K, V]) Delete(key K) bool {
	b := m.bucketFor(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.items[key]
	delete(b.items, key)
	return ok
}

// Range visits every entry one bucket at a time. Iteration stops when fn
// returns false. fn must not call back into the map.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, b := range m.buckets {
		b.mu.Lock()
		for k, v := range b.items {
			if !fn(k, v) {
				b.mu.Unlock()
				return
			}
		}
		b.mu.Unlock()
	}
}

// DeleteFunc removes every entry for which fn returns true and returns the count.
func (m *Map[K, V]) DeleteFunc(fn func(key K, value V) bool) int {
	removed := 0
	for _, b := range m.buckets {
		b.mu.Lock()
		for k, v := range b.items {
			if fn(k, v) {
				delete(b.items, k)
				removed++
			}
		}
		b.mu.Unlock()
	}
	return removed
}

// Len returns the total number of stored entries.
func (m *Map[K, V]) Len() int {
	total := 0
	for _, b := range m.buckets {
		b.mu.Lock()
		total += len(b.items)
		b.mu.Unlock()
	}
	return total
}
