// Package broker is the Composite Output Broker (C9, §4.9): the one
// piece of cross-renderer shared state in the system. Each rendered
// composite node publishes its latest bitmap here, tagged with the
// global frame index it was rendered for; downstream node renderers
// treat this node as a source by reading the entry and checking
// frameIndex == g before consuming it. Grounded on backend/registry.go's
// process-wide, name-keyed map-behind-a-mutex shape, applied to node
// ids and rendered bitmaps instead of backend factories.
package broker

import (
	"image"
	"sync"
)

// Entry is one node's most recently published composite output.
type Entry struct {
	Bitmap     image.Image
	FrameIndex uint64
}

// Broker is a process-wide registry of per-node composite outputs.
// Safe for concurrent use, though §5 notes access is serial on the
// main thread in practice.
type Broker struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New creates an empty Broker.
func New() *Broker {
	return &Broker{entries: make(map[string]Entry)}
}

// SetOutput installs a new entry for nodeID, replacing any prior one.
// The prior bitmap is dropped here, not explicitly closed — unlike the
// host editor's bitmap handles, a Go image.Image needs no Close; the
// garbage collector reclaims it once unreferenced.
func (b *Broker) SetOutput(nodeID string, bitmap image.Image, frameIndex uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[nodeID] = Entry{Bitmap: bitmap, FrameIndex: frameIndex}
}

// GetOutput returns nodeID's current entry, or ok=false if none exists.
func (b *Broker) GetOutput(nodeID string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[nodeID]
	return e, ok
}

// HasOutputForFrame reports whether nodeID has a current entry whose
// FrameIndex equals g exactly — the causal-ordering check dependent
// renderers use to decide whether to consume or defer (§4.9, §5
// "Ordering guarantees").
func (b *Broker) HasOutputForFrame(nodeID string, g uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[nodeID]
	return ok && e.FrameIndex == g
}

// ClearOutput removes nodeID's entry, if any.
func (b *Broker) ClearOutput(nodeID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, nodeID)
}

// ClearAll removes every entry.
func (b *Broker) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]Entry)
}
