// Package idempotency makes retried mutations safe: the first execution for
// a key is recorded and later deliveries of the same key replay it.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultTTL = 10 * time.Minute

// ErrKeyReused is returned when a key is replayed with a different request.
var ErrKeyReused = errors.New("idempotency key reused with a different request")

// Record is the observable outcome of one execution.
type Record struct {
	Status      int               `json:"status"`
	Body        []byte            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Operation runs the wrapped mutation. A returned error is not recorded so a
// retry runs the operation again.
type Operation func(ctx context.Context) (Record, error)

// Store persists records. Put must keep the first record written for a key.
type Store interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Put(ctx context.Context, key string, rec Record, ttl time.Duration) error
}

type Guard struct {
	store Store
	ttl   time.Duration
	group singleflight.Group
	now   func() time.Time
}

func NewGuard(store Store, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{store: store, ttl: ttl, now: time.Now}
}

func (g *Guard) TTL() time.Duration {
	return g.ttl
}

// WithKey returns the live record for key without running op, or runs op
// and records its outcome for ttl. An empty key runs op and stores nothing.
func (g *Guard) WithKey(ctx context.Context, key string, ttl time.Duration, op Operation) (Record, bool, error) {
	return g.WithRequest(ctx, key, "", ttl, op)
}

// WithRequest is WithKey with a request fingerprint. Replaying a key whose
// record has a different fingerprint fails with ErrKeyReused.
func (g *Guard) WithRequest(ctx context.Context, key, fingerprint string, ttl time.Duration, op Operation) (Record, bool, error) {
	if key == "" {
		rec, err := op(ctx)
		return rec, false, err
	}
	if ttl <= 0 {
		ttl = g.ttl
	}

	if rec, ok, err := g.lookup(ctx, key, fingerprint); err != nil || ok {
		return rec, ok, err
	}

	executed := false
	v, err, _ := g.group.Do(key, func() (any, error) {
		if rec, ok, err := g.lookup(ctx, key, fingerprint); err != nil || ok {
			return rec, err
		}
		executed = true
		rec, err := op(ctx)
		if err != nil {
			return Record{}, err
		}
		rec.Fingerprint = fingerprint
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = g.now()
		}
		if storable(rec) {
			if err := g.store.Put(ctx, key, rec, ttl); err != nil {
				return rec, fmt.Errorf("store idempotency record: %w", err)
			}
		}
		return rec, nil
	})
	rec, _ := v.(Record)
	if err != nil {
		return rec, false, err
	}
	if !executed && fingerprint != "" && rec.Fingerprint != "" && rec.Fingerprint != fingerprint {
		return Record{}, false, ErrKeyReused
	}
	return rec, !executed, nil
}

func (g *Guard) lookup(ctx context.Context, key, fingerprint string) (Record, bool, error) {
	rec, ok, err := g.store.Get(ctx, key)
	if err != nil {
		return Record{}, false, fmt.Errorf("load idempotency record: %w", err)
	}
	if !ok {
		return Record{}, false, nil
	}
	if fingerprint != "" && rec.Fingerprint != "" && rec.Fingerprint != fingerprint {
		return Record{}, false, ErrKeyReused
	}
	return rec, true, nil
}

// Server failures are left unrecorded so a retry gets a fresh attempt.
func storable(rec Record) bool {
	return rec.Status > 0 && rec.Status < http.StatusInternalServerError
}
