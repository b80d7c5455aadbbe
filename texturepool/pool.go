// Package texturepool is the Texture Pool (§4.5): a bucketed LRU cache
// of GPU textures keyed by (width, height, format), with dual soft caps
// on texture count and total memory. It is grounded on
// scene/cache.go's LayerCache, generalized from a single flat map to
// one slice per bucket plus a global container/list LRU spanning every
// bucket, which is what "globally oldest wins" eviction needs.
package texturepool

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/gogpu/reel/gpu"
)

// Default soft caps, used when Options leaves them at zero.
const (
	DefaultMaxTextures = 64
	DefaultMaxMemoryMB = 256
	bytesPerMB         = 1024 * 1024
)

// Options configures a Pool's soft caps.
type Options struct {
	MaxTextures int
	MaxMemoryMB int
}

type key struct {
	width, height int
	format        gpu.Format
}

type poolEntry struct {
	key      key
	tex      *gpu.Texture
	inUse    bool
	element  *list.Element
	sequence uint64 // monotonic stand-in for lastUsedTimestamp
}

// Pool acquires and recycles textures from a gpu.Context, evicting the
// globally least-recently-used unused texture when a soft cap would
// otherwise be exceeded (§4.5).
type Pool struct {
	ctx gpu.Context

	mu          sync.Mutex
	buckets     map[key][]*poolEntry
	lru         *list.List // front = most recently used, across all buckets
	totalMemory int64
	activeCount int
	pooledCount int
	clock       uint64

	maxTextures int
	maxMemory   int64

	evictions atomic.Uint64
}

// New creates a Pool drawing textures from ctx.
func New(ctx gpu.Context, opts Options) *Pool {
	maxTextures := opts.MaxTextures
	if maxTextures <= 0 {
		maxTextures = DefaultMaxTextures
	}
	maxMemoryMB := opts.MaxMemoryMB
	if maxMemoryMB <= 0 {
		maxMemoryMB = DefaultMaxMemoryMB
	}
	return &Pool{
		ctx:         ctx,
		buckets:     make(map[key][]*poolEntry),
		lru:         list.New(),
		maxTextures: maxTextures,
		maxMemory:   int64(maxMemoryMB) * bytesPerMB,
	}
}

func memCost(width, height int, format gpu.Format) int64 {
	return int64(width) * int64(height) * format.BytesPerPixel()
}

// Acquire returns a texture of the given dimensions and format, reusing
// a released entry from its bucket when one exists, or creating a new
// one after making room via evictIfNeeded.
func (p *Pool) Acquire(width, height int, format gpu.Format) (*gpu.Texture, error) {
	k := key{width, height, format}

	p.mu.Lock()
	for _, e := range p.buckets[k] {
		if !e.inUse {
			e.inUse = true
			p.lru.MoveToFront(e.element)
			p.clock++
			e.sequence = p.clock
			p.activeCount++
			p.pooledCount--
			p.mu.Unlock()
			return e.tex, nil
		}
	}
	pending := memCost(width, height, format)
	p.evictIfNeededLocked(pending)
	p.mu.Unlock()

	tex, err := p.ctx.CreateTexture(width, height, format)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock++
	e := &poolEntry{key: k, tex: tex, inUse: true, sequence: p.clock}
	e.element = p.lru.PushFront(e)
	p.buckets[k] = append(p.buckets[k], e)
	p.totalMemory += pending
	p.activeCount++
	return tex, nil
}

// Release marks tex as no longer in use, making it eligible for reuse
// or eviction. Releasing a texture the pool does not own is a no-op.
func (p *Pool) Release(tex *gpu.Texture) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.findLocked(tex)
	if e == nil || !e.inUse {
		return
	}
	e.inUse = false
	p.lru.MoveToFront(e.element)
	p.clock++
	e.sequence = p.clock
	p.activeCount--
	p.pooledCount++
}

// Dispose removes tex from the pool entirely, subtracts it from memory
// accounting, disposes the underlying texture, and prunes an empty
// bucket. Disposing a texture the pool does not own is a no-op.
func (p *Pool) Dispose(tex *gpu.Texture) {
	p.mu.Lock()
	e := p.findLocked(tex)
	if e == nil {
		p.mu.Unlock()
		return
	}
	p.removeLocked(e)
	p.mu.Unlock()
}

// ClearPooled disposes every entry currently not in use.
func (p *Pool) ClearPooled() {
	p.mu.Lock()
	var toRemove []*poolEntry
	for _, entries := range p.buckets {
		for _, e := range entries {
			if !e.inUse {
				toRemove = append(toRemove, e)
			}
		}
	}
	for _, e := range toRemove {
		p.removeLocked(e)
	}
	p.mu.Unlock()
}

// ClearAll disposes every entry, including ones currently in use. It is
// destructive: callers must ensure they have stopped using any texture
// obtained from this pool before calling it.
func (p *Pool) ClearAll() {
	p.mu.Lock()
	var all []*poolEntry
	for _, entries := range p.buckets {
		all = append(all, entries...)
	}
	for _, e := range all {
		p.removeLocked(e)
	}
	p.mu.Unlock()
}

// evictIfNeededLocked disposes the globally oldest unused entry,
// repeatedly, while either cap would be exceeded by the pending
// allocation. If no entry is releasable the caller proceeds anyway —
// the caps are soft for active textures (§4.5).
func (p *Pool) evictIfNeededLocked(pending int64) {
	for p.totalCountLocked() >= p.maxTextures || p.totalMemory+pending > p.maxMemory {
		victim := p.oldestUnusedLocked()
		if victim == nil {
			return
		}
		p.removeLocked(victim)
	}
}

func (p *Pool) totalCountLocked() int {
	return p.activeCount + p.pooledCount
}

// oldestUnusedLocked walks the global LRU list from the back (least
// recently touched) forward, returning the first unused entry. Tie
// break among equal sequence numbers is whichever the list order
// happens to favor; stable ordering is not required (§4.5).
func (p *Pool) oldestUnusedLocked() *poolEntry {
	for el := p.lru.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*poolEntry)
		if !e.inUse {
			return e
		}
	}
	return nil
}

func (p *Pool) removeLocked(e *poolEntry) {
	p.lru.Remove(e.element)
	entries := p.buckets[e.key]
	for i, other := range entries {
		if other == e {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(entries) == 0 {
		delete(p.buckets, e.key)
	} else {
		p.buckets[e.key] = entries
	}
	p.totalMemory -= memCost(e.key.width, e.key.height, e.key.format)
	if e.inUse {
		p.activeCount--
	} else {
		p.pooledCount--
	}
	p.ctx.DisposeTexture(e.tex)
	p.evictions.Add(1)
}

func (p *Pool) findLocked(tex *gpu.Texture) *poolEntry {
	if tex == nil {
		return nil
	}
	for _, entries := range p.buckets {
		for _, e := range entries {
			if e.tex == tex {
				return e
			}
		}
	}
	return nil
}

// Stats reports the pool's current occupancy and eviction history, for
// the "memory accounting" testable property (§8).
type Stats struct {
	ActiveCount int
	PooledCount int
	TotalBytes  int64
	MaxTextures int
	MaxBytes    int64
	Evictions   uint64
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		ActiveCount: p.activeCount,
		PooledCount: p.pooledCount,
		TotalBytes:  p.totalMemory,
		MaxTextures: p.maxTextures,
		MaxBytes:    p.maxMemory,
		Evictions:   p.evictions.Load(),
	}
}
