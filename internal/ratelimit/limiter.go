// Package ratelimit implements a sliding-window request throttle keyed by an
// arbitrary string.
package ratelimit

import (
	"time"

	"github.com/angelmondragon/huddle-backend/internal/shard"
)

// Limiter allows at most max hits per key within any trailing window.
type Limiter struct {
	window time.Duration
	max    int
	hits   *shard.Map[string, []time.Time]
	now    func() time.Time
}

// New builds a limiter. A non-positive window or max disables throttling.
func New(window time.Duration, max int) *Limiter {
	return &Limiter{
		window: window,
		max:    max,
		hits:   shard.New[string, []time.Time](shard.DefaultShards),
		now:    time.Now,
	}
}

func (l *Limiter) enabled() bool {
	return l != nil && l.window > 0 && l.max > 0
}

// Allow records a hit for key and reports whether it fits in the window. A
// denied call does not record a hit.
func (l *Limiter) Allow(key string) bool {
	if !l.enabled() {
		return true
	}
	now := l.now()
	allowed := false
	l.hits.Compute(key, func(cur []time.Time, _ bool) ([]time.Time, bool) {
		live := l.evict(cur, now)
		if len(live) >= l.max {
			return live, len(live) > 0
		}
		allowed = true
		return append(live, now), true
	})
	return allowed
}

// RetryAfter returns how long until key frees a slot. Zero means a call now
// would be allowed.
func (l *Limiter) RetryAfter(key string) time.Duration {
	if !l.enabled() {
		return 0
	}
	now := l.now()
	var wait time.Duration
	l.hits.Compute(key, func(cur []time.Time, _ bool) ([]time.Time, bool) {
		live := l.evict(cur, now)
		if len(live) >= l.max {
			wait = live[0].Add(l.window).Sub(now)
		}
		return live, len(live) > 0
	})
	return wait
}

// Sweep drops keys whose hits have all left the window.
func (l *Limiter) Sweep() int {
	if !l.enabled() {
		return 0
	}
	cutoff := l.now().Add(-l.window)
	return l.hits.DeleteFunc(func(_ string, hits []time.Time) bool {
		return len(hits) == 0 || !hits[len(hits)-1].After(cutoff)
	})
}

// evict drops timestamps at or before now-window. Hits are kept in append
// order so the live ones form a suffix.
func (l *Limiter) evict(hits []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append([]time.Time(nil), hits[i:]...)
}
