package zim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache[int, string](2, nil)
	c.Put(1, "a")
	c.Put(2, "b")
	_, _ = c.Get(1) // touch 1, making 2 the LRU victim
	c.Put(3, "c")

	_, ok := c.Get(2)
	require.False(t, ok, "least recently used entry should have been evicted")
	v, ok := c.Get(1)
	require.True(t, ok)
	require.Equal(t, "a", v)
	v, ok = c.Get(3)
	require.True(t, ok)
	require.Equal(t, "c", v)
}

func TestCacheZeroCapacityDisablesCaching(t *testing.T) {
	c := NewCache[int, string](0, nil)
	c.Put(1, "a")
	_, ok := c.Get(1)
	require.False(t, ok)
}

func TestCachePinPreventsEviction(t *testing.T) {
	c := NewCache[int, string](1, nil)
	c.Put(1, "a")
	c.Pin(1)
	c.Put(2, "b") // would normally evict 1

	_, ok := c.Get(1)
	require.True(t, ok, "pinned entry must survive eviction pressure")

	c.Unpin(1)
}

func TestCacheOnEvictCalledWithEvictedEntry(t *testing.T) {
	var evictedKey int
	var evictedVal string
	c := NewCache[int, string](1, func(k int, v string) {
		evictedKey, evictedVal = k, v
	})
	c.Put(1, "a")
	c.Put(2, "b")
	require.Equal(t, 1, evictedKey)
	require.Equal(t, "a", evictedVal)
}

func TestURLLookupCacheRoundTrip(t *testing.T) {
	u := newURLLookupCache(8)
	u.Put('A', "foo/bar", 42)
	idx, ok := u.Get('A', "foo/bar")
	require.True(t, ok)
	require.Equal(t, 42, idx)

	_, ok = u.Get('A', "other")
	require.False(t, ok)
}
