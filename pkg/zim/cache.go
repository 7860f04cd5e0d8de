package zim

import (
	"container/list"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Cache is a generic, bounded LRU keyed by any comparable type, used for
// both the directory-entry cache (keyed by pointerIndex) and the decoded
// cluster cache (keyed by clusterNumber). Generalized from the teacher's
// hand-rolled clusterCache, which tracked eviction order in a plain
// []uint32 slice guarded by a mutex; container/list gives O(1)
// touch-on-hit instead of the teacher's O(n) slice search.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List
	pins     map[K]int
	onEvict  func(K, V)
}

type cacheEntry[K comparable, V any] struct {
	key   K
	value V
}

// NewCache builds a cache holding at most capacity unpinned entries.
// capacity <= 0 disables caching: Get always misses, Put is a no-op.
// onEvict, if non-nil, is called (outside the lock) when an entry is
// dropped, letting callers release resources such as an open cluster
// stream.
func NewCache[K comparable, V any](capacity int, onEvict func(K, V)) *Cache[K, V] {
	return &Cache[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element),
		order:    list.New(),
		pins:     make(map[K]int),
		onEvict:  onEvict,
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	if c.capacity <= 0 {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry[K, V]).value, true
}

func (c *Cache[K, V]) Put(key K, value V) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	var evictedKey K
	var evictedVal V
	evicted := false

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry[K, V]).value = value
		c.order.MoveToFront(el)
		c.mu.Unlock()
		return
	}
	el := c.order.PushFront(&cacheEntry[K, V]{key: key, value: value})
	c.items[key] = el

	for c.order.Len() > c.capacity {
		back := c.order.Back()
		ent := back.Value.(*cacheEntry[K, V])
		if c.pins[ent.key] > 0 {
			// Pinned entries can't be evicted; walk forward looking for
			// an unpinned victim instead of growing unbounded.
			victim := c.findUnpinnedVictim()
			if victim == nil {
				break
			}
			back = victim
			ent = back.Value.(*cacheEntry[K, V])
		}
		c.order.Remove(back)
		delete(c.items, ent.key)
		evictedKey, evictedVal, evicted = ent.key, ent.value, true
		break
	}
	c.mu.Unlock()

	if evicted && c.onEvict != nil {
		c.onEvict(evictedKey, evictedVal)
	}
}

func (c *Cache[K, V]) findUnpinnedVictim() *list.Element {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		ent := el.Value.(*cacheEntry[K, V])
		if c.pins[ent.key] == 0 {
			return el
		}
	}
	return nil
}

// Pin increments key's pin count, preventing its eviction until a
// matching Unpin. Archive.IterClusters pins each cluster while its
// callback runs, so the callback can scan the cluster's blobs without
// the cluster being evicted mid-scan.
func (c *Cache[K, V]) Pin(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins[key]++
}

func (c *Cache[K, V]) Unpin(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pins[key] > 0 {
		c.pins[key]--
		if c.pins[key] == 0 {
			delete(c.pins, key)
		}
	}
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// urlLookupKey hashes a (namespace, url) pair with xxhash into a single
// comparable key for urlLookupCache, the way arloliu-mebo hashes its own
// composite keys rather than building string keys per lookup.
type urlLookupKey uint64

func hashURLKey(namespace byte, url string) urlLookupKey {
	h := xxhash.New()
	h.Write([]byte{namespace})
	h.Write([]byte(url))
	return urlLookupKey(h.Sum64())
}

// urlLookupCache sits in front of the entry cache, remembering the
// pointer-list index a (namespace,url) pair resolved to last time, so a
// repeat lookup can skip the binary search entirely. A hash collision
// only costs a redundant binary search (the resolver re-validates the
// entry's URL before trusting a cache hit), never a wrong answer.
type urlLookupCache struct {
	c *Cache[urlLookupKey, int]
}

func newURLLookupCache(capacity int) *urlLookupCache {
	return &urlLookupCache{c: NewCache[urlLookupKey, int](capacity, nil)}
}

func (u *urlLookupCache) Get(namespace byte, url string) (int, bool) {
	return u.c.Get(hashURLKey(namespace, url))
}

func (u *urlLookupCache) Put(namespace byte, url string, idx int) {
	u.c.Put(hashURLKey(namespace, url), idx)
}
