package ttlcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCache() (*Cache[string, int], *time.Time) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := New[string, int]().WithClock(func() time.Time { return now })
	return c, &now
}

func TestGetHonoursTTL(t *testing.T) {
	c, now := newTestCache()
	c.Set("a", 1, time.Minute)

	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	*now = now.Add(59 * time.Second)
	_, ok = c.Get("a")
	require.True(t, ok)

	*now = now.Add(time.Second)
	_, ok = c.Get("a")
	require.False(t, ok, "entry must expire exactly at ttl")
	require.Zero(t, c.items.Len(), "expired entry is dropped on read")
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c, now := newTestCache()
	c.Set("forever", 7, 0)
	*now = now.Add(24 * 365 * time.Hour)
	v, ok := c.Get("forever")
	require.True(t, ok)
	require.Equal(t, 7, v)
}

func TestSetIfAbsent(t *testing.T) {
	c, now := newTestCache()
	v, stored := c.SetIfAbsent("k", 1, time.Minute)
	require.True(t, stored)
	require.Equal(t, 1, v)

	v, stored = c.SetIfAbsent("k", 2, time.Minute)
	require.False(t, stored)
	require.Equal(t, 1, v)

	*now = now.Add(2 * time.Minute)
	v, stored = c.SetIfAbsent("k", 3, time.Minute)
	require.True(t, stored, "expired entries can be replaced")
	require.Equal(t, 3, v)
}

func TestSweepAndLen(t *testing.T) {
	c, now := newTestCache()
	c.Set("short", 1, time.Second)
	c.Set("long", 2, time.Hour)
	require.Equal(t, 2, c.Len())

	*now = now.Add(time.Minute)
	require.Equal(t, 1, c.Len())
	require.Equal(t, 1, c.Sweep())
	require.Equal(t, 1, c.items.Len())

	c.Delete("long")
	require.Zero(t, c.Len())
}
