package drafts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCoordinator() (*Coordinator, *time.Time) {
	now := time.UnixMilli(1_700_000_000_000).UTC()
	return NewCoordinator(30 * time.Second).WithClock(func() time.Time { return now }), &now
}

func TestSaveRejectsStaleClientTimestamp(t *testing.T) {
	c, now := newTestCoordinator()
	first := c.Save("d1", "tabA", "v1", 0)
	require.Equal(t, SaveStatusOK, first.Status)
	serverTS := first.Record.ServerUpdatedAt
	require.Equal(t, now.UnixMilli(), serverTS)

	stale := c.Save("d1", "tabB", "v2", serverTS-1)
	require.Equal(t, SaveStatusConflict, stale.Status)
	require.Equal(t, "v1", stale.Record.Body, "conflict returns the server record")

	rec, ok := c.Get("d1")
	require.True(t, ok)
	require.Equal(t, "v1", rec.Body)

	equal := c.Save("d1", "tabB", "v3", serverTS)
	require.Equal(t, SaveStatusOK, equal.Status, "equal timestamps are accepted")
	require.Equal(t, "v3", equal.Record.Body)
	require.Greater(t, equal.Record.ServerUpdatedAt, serverTS, "same millisecond still advances")
}

func TestLockTakeoverAfterExpiry(t *testing.T) {
	c, now := newTestCoordinator()
	require.True(t, c.AcquireLock("d1", "A").Acquired)
	require.True(t, c.AcquireLock("d1", "A").Acquired, "re-acquire by holder")

	denied := c.AcquireLock("d1", "B")
	require.False(t, denied.Acquired)
	require.Equal(t, "A", denied.LockedBy)

	*now = now.Add(31 * time.Second)
	taken := c.AcquireLock("d1", "B")
	require.True(t, taken.Acquired)
	require.Equal(t, "B", taken.Record.Lock.HolderID)

	require.False(t, c.ReleaseLock("d1", "A"))
	require.False(t, c.HeartbeatLock("d1", "A"))
	rec, _ := c.Get("d1")
	require.Equal(t, "B", rec.Lock.HolderID)

	require.True(t, c.HeartbeatLock("d1", "B"))
	require.True(t, c.ReleaseLock("d1", "B"))
	rec, _ = c.Get("d1")
	require.Nil(t, rec.Lock)
}

func TestExpiredLockHiddenAndUnreleasable(t *testing.T) {
	c, now := newTestCoordinator()
	c.AcquireLock("d1", "A")
	*now = now.Add(time.Minute)

	rec, ok := c.Get("d1")
	require.True(t, ok)
	require.Nil(t, rec.Lock)
	require.False(t, c.ReleaseLock("d1", "A"))
	require.False(t, c.HeartbeatLock("missing", "A"))
}

func TestLockDoesNotBlockSaveButHolderSaveRefreshes(t *testing.T) {
	c, now := newTestCoordinator()
	c.AcquireLock("d1", "A")

	other := c.Save("d1", "B", "from B", 0)
	require.Equal(t, SaveStatusOK, other.Status)
	require.Equal(t, "A", other.Record.Lock.HolderID)

	*now = now.Add(20 * time.Second)
	own := c.Save("d1", "A", "from A", other.Record.ServerUpdatedAt)
	require.Equal(t, SaveStatusOK, own.Status)
	require.Equal(t, *now, own.Record.Lock.LastHeartbeat)

	*now = now.Add(20 * time.Second)
	require.False(t, c.AcquireLock("d1", "B").Acquired, "save refreshed the holder's lock")
}

func TestPruneDropsIdleDrafts(t *testing.T) {
	c, now := newTestCoordinator()
	c.Save("old", "A", "x", 0)
	c.AcquireLock("locked", "A")
	*now = now.Add(20 * time.Second)
	c.HeartbeatLock("locked", "A")
	c.Save("fresh", "A", "y", 0)

	*now = now.Add(25 * time.Second)
	require.Equal(t, 1, c.Prune(30*time.Second))
	_, ok := c.Get("old")
	require.False(t, ok)
	_, ok = c.Get("locked")
	require.True(t, ok)
	_, ok = c.Get("fresh")
	require.True(t, ok)
	require.Zero(t, c.Prune(0))
}
