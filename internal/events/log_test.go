package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frozenClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func msg(i int) Payload {
	return MessageCreated{ChatID: "general", MessageID: fmt.Sprintf("m%d", i), Body: "hi"}
}

func TestAppendClampsNonMonotonicClock(t *testing.T) {
	now := int64(1_000)
	log := NewLog(10, WithClock(func() time.Time { return time.UnixMilli(now) }))

	first := log.Append(msg(1), "u1")
	require.Equal(t, int64(1_000), first.ServerTimestamp)

	second := log.Append(msg(2), "u1")
	require.Equal(t, int64(1_001), second.ServerTimestamp, "same millisecond clamps to previous+1")

	now = 500
	third := log.Append(msg(3), "u1")
	require.Equal(t, int64(1_002), third.ServerTimestamp, "clock going backwards still advances")

	now = 5_000
	fourth := log.Append(msg(4), "u2")
	require.Equal(t, int64(5_000), fourth.ServerTimestamp)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, "chat:general", fourth.Room())
}

func TestSinceReturnsOnlyNewerEventsInOrder(t *testing.T) {
	log := NewLog(100, WithClock(frozenClock(42)))
	for i := 0; i < 5; i++ {
		log.Append(msg(i), "u1")
	}

	all, err := log.Since(0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ServerTimestamp, all[i].ServerTimestamp)
	}

	cursor := all[2].ServerTimestamp
	tail, err := log.Since(cursor)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	for _, ev := range tail {
		assert.Greater(t, ev.ServerTimestamp, cursor)
	}

	last := all[len(all)-1].ServerTimestamp
	none, err := log.Since(last)
	require.NoError(t, err)
	require.Empty(t, none)

	added := log.Append(msg(99), "u1")
	next, err := log.Since(last)
	require.NoError(t, err)
	require.Len(t, next, 1)
	require.Equal(t, added.ID, next[0].ID)
}

func TestBoundedRetentionKeepsNewest(t *testing.T) {
	const capacity = 4
	log := NewLog(capacity, WithClock(frozenClock(1)))
	var appended []Event
	for i := 0; i < capacity+3; i++ {
		appended = append(appended, log.Append(msg(i), "u1"))
	}

	require.Equal(t, capacity, log.Len())
	got, err := log.Since(0)
	require.NoError(t, err)
	require.Len(t, got, capacity)
	for i, ev := range got {
		assert.Equal(t, appended[3+i].ID, ev.ID)
	}
	require.Equal(t, appended[3].ServerTimestamp, log.Oldest())
	require.Equal(t, appended[len(appended)-1].ServerTimestamp, log.Latest())
}

func TestSinceReportsExpiredCursor(t *testing.T) {
	var evicted []Event
	log := NewLog(2, WithClock(frozenClock(10)), WithEvictHook(func(e Event) { evicted = append(evicted, e) }))
	a := log.Append(msg(1), "u1")
	b := log.Append(msg(2), "u1")
	log.Append(msg(3), "u1")
	log.Append(msg(4), "u1")
	require.Len(t, evicted, 2)

	_, err := log.Since(a.ServerTimestamp)
	require.ErrorIs(t, err, ErrCursorExpired, "b was trimmed after cursor a")

	got, err := log.Since(b.ServerTimestamp)
	require.NoError(t, err, "nothing newer than b was trimmed")
	require.Len(t, got, 2)

	full, err := log.Since(0)
	require.NoError(t, err)
	require.Len(t, full, 2)
}

func TestConcurrentAppendsStayOrdered(t *testing.T) {
	log := NewLog(1000, WithClock(frozenClock(7)))
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				log.Append(msg(i), "u")
			}
		}()
	}
	wg.Wait()

	got, err := log.Since(0)
	require.NoError(t, err)
	require.Len(t, got, 400)
	seen := map[int64]bool{}
	for i, ev := range got {
		require.False(t, seen[ev.ServerTimestamp], "duplicate timestamp")
		seen[ev.ServerTimestamp] = true
		if i > 0 {
			require.Greater(t, ev.ServerTimestamp, got[i-1].ServerTimestamp)
		}
	}
}
