// Package events holds the bounded, append-only log of realtime domain
// events. Server timestamps double as replay cursors.
package events

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/angelmondragon/huddle-backend/pkg/enums"
	"github.com/google/uuid"
)

const DefaultMaxEvents = 1000

// ErrCursorExpired means events newer than the cursor were already trimmed
// and the client has to resync from a snapshot.
var ErrCursorExpired = errors.New("cursor precedes retained events")

type Event struct {
	ID              string          `json:"id"`
	Type            enums.EventType `json:"type"`
	Payload         Payload         `json:"payload"`
	ActorID         string          `json:"actorId,omitempty"`
	ServerTimestamp int64           `json:"serverTimestamp"`
}

// Room is the broadcast room of the event payload, if any.
func (e Event) Room() string {
	return RoomFor(e.Payload)
}

type Option func(*Log)

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithEvictHook is called under the log lock for every trimmed event.
func WithEvictHook(fn func(Event)) Option {
	return func(l *Log) { l.onEvict = fn }
}

// Log is a fixed capacity ring buffer. One mutex serialises appends, trims
// and reads.
type Log struct {
	mu          sync.Mutex
	buf         []Event
	start       int
	size        int
	last        int64
	lastEvicted int64

	now     func() time.Time
	onEvict func(Event)
}

func NewLog(maxEvents int, opts ...Option) *Log {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	l := &Log{
		buf: make([]Event, maxEvents),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append stores a new event and returns it. The timestamp is the current
// wall clock in milliseconds, clamped to previous+1 so it strictly increases.
func (l *Log) Append(payload Payload, actorID string) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now().UnixMilli()
	if ts <= l.last {
		ts = l.last + 1
	}
	l.last = ts

	ev := Event{
		ID:              uuid.NewString(),
		Type:            payload.EventType(),
		Payload:         payload,
		ActorID:         actorID,
		ServerTimestamp: ts,
	}

	capacity := len(l.buf)
	if l.size < capacity {
		l.buf[(l.start+l.size)%capacity] = ev
		l.size++
		return ev
	}

	evicted := l.buf[l.start]
	l.lastEvicted = evicted.ServerTimestamp
	l.buf[l.start] = ev
	l.start = (l.start + 1) % capacity
	if l.onEvict != nil {
		l.onEvict(evicted)
	}
	return ev
}

func (l *Log) at(i int) Event {
	return l.buf[(l.start+i)%len(l.buf)]
}

// Since returns retained events with ServerTimestamp > cursor in append
// order. A zero cursor returns the whole buffer. ErrCursorExpired is returned
// when any event newer than cursor has been trimmed.
func (l *Log) Since(cursor int64) ([]Event, error) {
	if cursor < 0 {
		cursor = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if cursor > 0 && l.lastEvicted > cursor {
		return nil, ErrCursorExpired
	}
	idx := sort.Search(l.size, func(i int) bool {
		return l.at(i).ServerTimestamp > cursor
	})
	out := make([]Event, 0, l.size-idx)
	for i := idx; i < l.size; i++ {
		out = append(out, l.at(i))
	}
	return out, nil
}

// Latest is the timestamp of the newest retained event, or 0.
func (l *Log) Latest() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.size == 0 {
		return 0
	}
	return l.at(l.size - 1).ServerTimestamp
}

// Oldest is the timestamp of the oldest retained event, or 0.
func (l *Log) Oldest() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.size == 0 {
		return 0
	}
	return l.at(0).ServerTimestamp
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

func (l *Log) Capacity() int {
	return len(l.buf)
}
