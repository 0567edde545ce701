// Package drafts arbitrates concurrent edits of a shared draft. Saves are
// last-writer-wins on server timestamps; the lock is an advisory hint for
// "someone else is editing" and never blocks a save.
package drafts

import (
	"time"

	"github.com/angelmondragon/huddle-backend/internal/shard"
)

const DefaultLockTTL = 30 * time.Second

type SaveStatus string

const (
	SaveStatusOK       SaveStatus = "ok"
	SaveStatusConflict SaveStatus = "conflict"
)

type Lock struct {
	HolderID      string    `json:"holderId"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
}

type Record struct {
	DraftID         string `json:"draftId"`
	Body            string `json:"body"`
	ServerUpdatedAt int64  `json:"serverUpdatedAt"`
	Lock            *Lock  `json:"lock,omitempty"`

	touchedAt time.Time
}

type LockResult struct {
	Acquired bool   `json:"acquired"`
	LockedBy string `json:"lockedBy,omitempty"`
	Record   Record `json:"record"`
}

// SaveResult carries the stored record on success and the current server
// record on conflict.
type SaveResult struct {
	Status SaveStatus `json:"status"`
	Record Record     `json:"record"`
}

type Coordinator struct {
	drafts  *shard.Map[string, Record]
	lockTTL time.Duration
	now     func() time.Time
}

func NewCoordinator(lockTTL time.Duration) *Coordinator {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Coordinator{
		drafts:  shard.New[string, Record](shard.DefaultShards),
		lockTTL: lockTTL,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

func (c *Coordinator) liveLock(r Record, now time.Time) *Lock {
	if r.Lock == nil || now.Sub(r.Lock.LastHeartbeat) > c.lockTTL {
		return nil
	}
	return r.Lock
}

// view is the caller-facing copy of r with expired locks hidden.
func (c *Coordinator) view(r Record, now time.Time) Record {
	out := r
	out.Lock = nil
	if l := c.liveLock(r, now); l != nil {
		cp := *l
		out.Lock = &cp
	}
	return out
}

// AcquireLock grants the lock when the draft has no live lock or the caller
// already holds it. The draft is created on first use.
func (c *Coordinator) AcquireLock(draftID, holderID string) LockResult {
	now := c.now()
	var res LockResult
	c.drafts.Compute(draftID, func(cur Record, exists bool) (Record, bool) {
		if !exists {
			cur = Record{DraftID: draftID}
		}
		if l := c.liveLock(cur, now); l != nil && l.HolderID != holderID {
			res = LockResult{Acquired: false, LockedBy: l.HolderID, Record: c.view(cur, now)}
			return cur, true
		}
		cur.Lock = &Lock{HolderID: holderID, LastHeartbeat: now}
		cur.touchedAt = now
		res = LockResult{Acquired: true, Record: c.view(cur, now)}
		return cur, true
	})
	return res
}

// Save replaces the body unless a newer write already landed
// (serverUpdatedAt > clientUpdatedAt). Equal timestamps are accepted.
func (c *Coordinator) Save(draftID, holderID, body string, clientUpdatedAt int64) SaveResult {
	now := c.now()
	var res SaveResult
	c.drafts.Compute(draftID, func(cur Record, exists bool) (Record, bool) {
		if !exists {
			cur = Record{DraftID: draftID}
		}
		if cur.ServerUpdatedAt > clientUpdatedAt {
			res = SaveResult{Status: SaveStatusConflict, Record: c.view(cur, now)}
			return cur, true
		}

		ts := now.UnixMilli()
		if ts <= cur.ServerUpdatedAt {
			ts = cur.ServerUpdatedAt + 1
		}
		cur.Body = body
		cur.ServerUpdatedAt = ts
		cur.touchedAt = now
		if l := c.liveLock(cur, now); l != nil && l.HolderID == holderID {
			cur.Lock = &Lock{HolderID: holderID, LastHeartbeat: now}
		}
		res = SaveResult{Status: SaveStatusOK, Record: c.view(cur, now)}
		return cur, true
	})
	return res
}

// ReleaseLock drops the lock if holderID holds a live one.
func (c *Coordinator) ReleaseLock(draftID, holderID string) bool {
	return c.updateHeldLock(draftID, holderID, func(r *Record, _ time.Time) { r.Lock = nil })
}

// HeartbeatLock extends the lock if holderID holds a live one.
func (c *Coordinator) HeartbeatLock(draftID, holderID string) bool {
	return c.updateHeldLock(draftID, holderID, func(r *Record, now time.Time) {
		r.Lock = &Lock{HolderID: holderID, LastHeartbeat: now}
	})
}

func (c *Coordinator) updateHeldLock(draftID, holderID string, fn func(*Record, time.Time)) bool {
	now := c.now()
	changed := false
	c.drafts.Compute(draftID, func(cur Record, exists bool) (Record, bool) {
		if !exists {
			return cur, false
		}
		if l := c.liveLock(cur, now); l == nil || l.HolderID != holderID {
			return cur, true
		}
		fn(&cur, now)
		cur.touchedAt = now
		changed = true
		return cur, true
	})
	return changed
}

func (c *Coordinator) Get(draftID string) (Record, bool) {
	rec, ok := c.drafts.Get(draftID)
	if !ok {
		return Record{}, false
	}
	return c.view(rec, c.now()), true
}

// Prune removes drafts untouched for longer than idle that have no live lock.
func (c *Coordinator) Prune(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	now := c.now()
	return c.drafts.DeleteFunc(func(_ string, r Record) bool {
		return c.liveLock(r, now) == nil && now.Sub(r.touchedAt) > idle
	})
}
