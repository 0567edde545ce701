// Package presence tracks per-user liveness from heartbeats. Records expire
// lazily: a stale record reads as absent whether or not it was swept.
package presence

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/huddle-backend/internal/shard"
	"github.com/angelmondragon/huddle-backend/pkg/enums"
)

const DefaultTTL = 35 * time.Second

type Record struct {
	UserID        string               `json:"userId"`
	Status        enums.PresenceStatus `json:"status"`
	LastHeartbeat time.Time            `json:"lastHeartbeat"`
}

// Listener receives every heartbeat, including ones that do not change status.
type Listener func(Record)

type Tracker struct {
	records *shard.Map[string, Record]
	ttl     time.Duration
	now     func() time.Time

	subMu     sync.RWMutex
	listeners map[uint64]Listener
	nextSubID uint64
}

func NewTracker(ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		records:   shard.New[string, Record](shard.DefaultShards),
		ttl:       ttl,
		now:       time.Now,
		listeners: make(map[uint64]Listener),
	}
}

// WithClock overrides the time source. Intended for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) TTL() time.Duration {
	return t.ttl
}

func (t *Tracker) expired(r Record, now time.Time) bool {
	return now.Sub(r.LastHeartbeat) > t.ttl
}

// Heartbeat upserts the user's record with the current time and notifies
// every listener.
func (t *Tracker) Heartbeat(userID string, status enums.PresenceStatus) Record {
	rec := Record{UserID: userID, Status: status, LastHeartbeat: t.now()}
	t.records.Compute(userID, func(Record, bool) (Record, bool) { return rec, true })

	t.subMu.RLock()
	listeners := make([]Listener, 0, len(t.listeners))
	for _, fn := range t.listeners {
		listeners = append(listeners, fn)
	}
	t.subMu.RUnlock()

	for _, fn := range listeners {
		fn(rec)
	}
	return rec
}

// Get returns the live status for userID.
func (t *Tracker) Get(userID string) (enums.PresenceStatus, bool) {
	rec, ok := t.Lookup(userID)
	if !ok {
		return "", false
	}
	return rec.Status, true
}

// Lookup returns the live record for userID.
func (t *Tracker) Lookup(userID string) (Record, bool) {
	rec, ok := t.records.Get(userID)
	if !ok || t.expired(rec, t.now()) {
		return Record{}, false
	}
	return rec, true
}

// All returns a snapshot of live records ordered by user id.
func (t *Tracker) All() []Record {
	now := t.now()
	out := []Record{}
	t.records.Range(func(_ string, rec Record) bool {
		if !t.expired(rec, now) {
			out = append(out, rec)
		}
		return true
	})
	slices.SortFunc(out, func(a, b Record) int { return strings.Compare(a.UserID, b.UserID) })
	return out
}

// Subscribe registers fn and returns a func that removes it.
func (t *Tracker) Subscribe(fn Listener) func() {
	t.subMu.Lock()
	id := t.nextSubID
	t.nextSubID++
	t.listeners[id] = fn
	t.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.subMu.Lock()
			delete(t.listeners, id)
			t.subMu.Unlock()
		})
	}
}

// Sweep drops expired records and returns how many were removed.
func (t *Tracker) Sweep() int {
	now := t.now()
	return t.records.DeleteFunc(func(_ string, rec Record) bool {
		return t.expired(rec, now)
	})
}
