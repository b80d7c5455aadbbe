// Package framecache implements the Frame Cache (C3): a bounded
// in-memory LRU cache of decoded raw frames keyed by (source id,
// source-frame index) (§4.3).
package framecache

import (
	"container/list"
	"image"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the default per-layer cache size (§4.3).
const DefaultCapacity = 50

// DefaultMergeCapacity is the default per-merge-input cache size (§4.3).
const DefaultMergeCapacity = 30

// Key identifies a decoded frame by source and source-frame index.
type Key struct {
	SourceID        string
	SourceFrameIndex uint64
}

// entry is one cached frame with its LRU list element, grounded on
// scene/cache.go's CacheEntry.
type entry struct {
	key     Key
	image   image.Image
	element *list.Element
}

// Cache is an LRU cache of decoded frames. It is single-producer: the
// Node Renderer is the only reader and writer (§4.3), so internal
// locking exists only to make Stats safe to read from a different
// goroutine (e.g. a metrics exporter), matching the teacher's
// LayerCache, which documents the same asymmetry.
type Cache struct {
	mu       sync.Mutex
	entries  map[Key]*entry
	lru      *list.List
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a Cache with the given capacity (entry count). A
// non-positive capacity uses DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		entries:  make(map[Key]*entry),
		lru:      list.New(),
		capacity: capacity,
	}
}

// Get retrieves a cached frame. On hit, the entry moves to the front of
// the LRU list.
func (c *Cache) Get(key Key) (image.Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.lru.MoveToFront(e.element)
	c.hits.Add(1)
	return e.image, true
}

// Put inserts a decoded frame, evicting the least recently used entry
// if the cache is at capacity. If an entry for key already exists it is
// replaced. Insertion evicts at most one entry per call (§4.3).
func (c *Cache) Put(key Key, img image.Image) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.lru.Remove(existing.element)
		delete(c.entries, key)
	} else if len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}

	e := &entry{key: key, image: img}
	e.element = c.lru.PushFront(e)
	c.entries[key] = e
}

// evictOldestLocked removes the least recently used entry. Must be
// called with c.mu held. The spec requires the evicted image's
// underlying resource be released before removal (§4.3); image.Image
// values here carry no host resource beyond Go-managed memory, so
// eviction is simply dropping the reference — there is no explicit
// dispose hook to call, unlike texturepool's GPU-backed entries.
func (c *Cache) evictOldestLocked() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	e := elem.Value.(*entry)
	c.lru.Remove(elem)
	delete(c.entries, e.key)
	c.evictions.Add(1)
}

// Invalidate removes a specific entry, if present.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.lru.Remove(e.element)
		delete(c.entries, key)
	}
}

// InvalidateAll clears the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*entry)
	c.lru.Init()
}

// Stats is a point-in-time snapshot of cache statistics.
type Stats struct {
	Entries   int
	Capacity  int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	HitRate   float64
}

// Stats returns current cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	evictions := c.evictions.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Entries:   entries,
		Capacity:  c.capacity,
		Hits:      hits,
		Misses:    misses,
		Evictions: evictions,
		HitRate:   hitRate,
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
