package shard

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStoresAndDeletes(t *testing.T) {
	m := New[string, int](4)

	got, kept := m.Compute("a", func(cur int, exists bool) (int, bool) {
		assert.False(t, exists)
		return cur + 1, true
	})
	require.True(t, kept)
	require.Equal(t, 1, got)

	v, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	_, kept = m.Compute("a", func(cur int, exists bool) (int, bool) {
		assert.True(t, exists)
		return 0, false
	})
	require.False(t, kept)
	_, ok = m.Get("a")
	require.False(t, ok)
}

func TestConcurrentComputeIsAtomicPerKey(t *testing.T) {
	m := New[string, int](0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			for j := 0; j < 100; j++ {
				m.Compute(key, func(cur int, _ bool) (int, bool) { return cur + 1, true })
			}
		}(i)
	}
	wg.Wait()

	total := 0
	m.Range(func(_ string, v int) bool {
		total += v
		return true
	})
	require.Equal(t, 5000, total)
	require.Equal(t, 5, m.Len())
}

func TestDeleteFuncAndDelete(t *testing.T) {
	m := New[int, string](8)
	for i := 0; i < 10; i++ {
		m.Compute(i, func(string, bool) (string, bool) { return fmt.Sprint(i), true })
	}

	removed := m.DeleteFunc(func(k int, _ string) bool { return k%2 == 0 })
	require.Equal(t, 5, removed)
	require.Equal(t, 5, m.Len())

	require.True(t, m.Delete(1))
	require.False(t, m.Delete(1))
	require.Equal(t, 4, m.Len())
}

func TestRangeStopsEarly(t *testing.T) {
	m := New[int, int](2)
	for i := 0; i < 10; i++ {
		m.Compute(i, func(int, bool) (int, bool) { return i, true })
	}
	visited := 0
	m.Range(func(int, int) bool {
		visited++
		return visited < 3
	})
	require.Equal(t, 3, visited)
}
