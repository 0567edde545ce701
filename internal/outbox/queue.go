// Package outbox buffers messages a client could not confirm as delivered.
// Each user's queue is bounded and evicts oldest first.
package outbox

import (
	"slices"
	"time"

	"github.com/angelmondragon/huddle-backend/internal/shard"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const DefaultCapacity = 100

// Item is what the client hands over for buffering.
type Item struct {
	ID     string `json:"id,omitempty"`
	ChatID string `json:"chatId"`
	Body   string `json:"body"`
}

type Entry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	ChatID     string    `json:"chatId"`
	Body       string    `json:"body"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

type Queue struct {
	queues   *shard.Map[string, []Entry]
	capacity int
	now      func() time.Time
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		queues:   shard.New[string, []Entry](shard.DefaultShards),
		capacity: capacity,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

func (q *Queue) Capacity() int {
	return q.capacity
}

// Enqueue appends item to the user's queue and returns the stored entry
// along with any entries evicted to stay within capacity. Enqueueing an id
// that is already queued returns the queued entry and changes nothing.
func (q *Queue) Enqueue(userID string, item Item) (Entry, []Entry) {
	var (
		stored  Entry
		evicted []Entry
	)
	q.queues.Compute(userID, func(cur []Entry, _ bool) ([]Entry, bool) {
		if item.ID != "" {
			if existing, ok := lo.Find(cur, func(e Entry) bool { return e.ID == item.ID }); ok {
				stored = existing
				return cur, len(cur) > 0
			}
		}

		stored = Entry{
			ID:         item.ID,
			UserID:     userID,
			ChatID:     item.ChatID,
			Body:       item.Body,
			EnqueuedAt: q.now(),
		}
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}

		next := make([]Entry, 0, min(len(cur)+1, q.capacity))
		if over := len(cur) + 1 - q.capacity; over > 0 {
			evicted = slices.Clone(cur[:over])
			cur = cur[over:]
		}
		next = append(next, cur...)
		next = append(next, stored)
		return next, true
	})
	return stored, evicted
}

// Dequeue removes the entry with id and reports whether one was removed.
func (q *Queue) Dequeue(userID, id string) bool {
	removed := false
	q.queues.Compute(userID, func(cur []Entry, _ bool) ([]Entry, bool) {
		_, idx, ok := lo.FindIndexOf(cur, func(e Entry) bool { return e.ID == id })
		if !ok {
			return cur, len(cur) > 0
		}
		removed = true
		next := slices.Delete(slices.Clone(cur), idx, idx+1)
		return next, len(next) > 0
	})
	return removed
}

// All returns a copy of the user's queue, oldest first.
func (q *Queue) All(userID string) []Entry {
	cur, _ := q.queues.Get(userID)
	out := make([]Entry, len(cur))
	copy(out, cur)
	return out
}

// Clear drops the user's queue and returns how many entries it held.
func (q *Queue) Clear(userID string) int {
	cleared := 0
	q.queues.Compute(userID, func(cur []Entry, _ bool) ([]Entry, bool) {
		cleared = len(cur)
		return nil, false
	})
	return cleared
}
