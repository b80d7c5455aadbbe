// Package pipeline is the Render Pipeline (C7, §4.7): it topologically
// orders a set of render nodes with Kahn's algorithm, evaluates each
// one through its effect, and caches outputs across frames so a node
// whose parameters and upstream content are unchanged is skipped
// entirely. Grounded on scene/renderer.go's Renderer, whose RenderStats
// and layer-cache-aware render loop play the same role for tile-based
// rendering that CacheEntry and evaluate play here for node graphs.
package pipeline

import (
	"fmt"
	"time"

	"github.com/gogpu/reel"
	"github.com/gogpu/reel/effects"
	"github.com/gogpu/reel/gpu"
)

// RenderNode is one node of a pipeline evaluation: an effect name,
// its current parameters, and the ids (or the literal "source") its
// inputs are drawn from (§3 "Render Node").
type RenderNode struct {
	ID         string
	EffectName string
	Parameters map[string]any
	InputIDs   []string
}

// SourceInputID is the literal input id naming the evaluation's primary
// source texture.
const SourceInputID = "source"

// ErrMissingInput is returned by Evaluate when a node names an input id
// with no corresponding entry in the outputs map.
var ErrMissingInput = fmt.Errorf("pipeline: missing input")

// CacheEntry tracks one node's compiled effect, its last output, and
// enough state to decide whether it must re-render this frame (§4.7).
type CacheEntry struct {
	effect         effects.Instance
	outputTexture  *gpu.Texture
	parameterHash  string
	lastFrameIndex uint64
	hasFrame       bool
	dirty          bool
}

// Stats reports one evaluation's node counts and timing, mirroring
// scene/renderer.go's RenderStats.
type Stats struct {
	NodesEvaluated int
	NodesCached    int
	NodesWarned    int
	TimeTotal      time.Duration
}

// Pipeline evaluates RenderNode graphs against a texture pool and GPU
// context, caching per-node outputs across evaluations.
type Pipeline struct {
	ctx  gpu.Context
	pool releaser

	cache     map[string]*CacheEntry
	lastStats Stats
}

// releaser is the subset of texturepool.Pool's surface the pipeline
// needs: acquire a texture of given dimensions/format and release one
// back. Kept as a local interface so this package does not import
// texturepool directly (noderender wires the concrete pool in).
type releaser interface {
	Acquire(width, height int, format gpu.Format) (*gpu.Texture, error)
	Release(tex *gpu.Texture)
}

// New creates a Pipeline drawing output textures from pool.
func New(ctx gpu.Context, pool releaser) *Pipeline {
	return &Pipeline{ctx: ctx, pool: pool, cache: make(map[string]*CacheEntry)}
}

// Evaluate runs nodes in topological order against sourceTexture for
// frameIndex, returning the last node's output texture, or
// sourceTexture unchanged if nodes is empty (§4.7).
func (p *Pipeline) Evaluate(nodes []RenderNode, sourceTexture *gpu.Texture, frameIndex uint64) (*gpu.Texture, error) {
	start := time.Now()
	if len(nodes) == 0 {
		p.lastStats = Stats{TimeTotal: time.Since(start)}
		return sourceTexture, nil
	}

	order, warned := topologicalOrder(nodes)
	if warned > 0 {
		reel.Logger().Warn("pipeline: cycle detected among render nodes, proceeding with partial order", "excluded", warned)
	}

	byID := make(map[string]RenderNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	outputs := map[string]*gpu.Texture{SourceInputID: sourceTexture}

	stats := Stats{NodesWarned: warned}
	var lastOutput *gpu.Texture = sourceTexture

	for _, id := range order {
		node := byID[id]
		entry, err := p.probe(node)
		if err != nil {
			return nil, err
		}

		if p.needsRender(entry, node, frameIndex, byID, outputs) {
			out, err := p.render(entry, node, outputs, sourceTexture, frameIndex)
			if err != nil {
				return nil, err
			}
			outputs[id] = out
			lastOutput = out
			stats.NodesEvaluated++
		} else {
			outputs[id] = entry.outputTexture
			lastOutput = entry.outputTexture
			stats.NodesCached++
		}
	}

	stats.TimeTotal = time.Since(start)
	p.lastStats = stats
	return lastOutput, nil
}

func (p *Pipeline) probe(node RenderNode) (*CacheEntry, error) {
	entry, ok := p.cache[node.ID]
	if ok {
		return entry, nil
	}
	inst, err := effects.NewInstance(node.EffectName)
	if err != nil {
		return nil, err
	}
	if err := inst.Compile(p.ctx); err != nil {
		return nil, err
	}
	entry = &CacheEntry{effect: inst}
	p.cache[node.ID] = entry
	return entry, nil
}

// needsRender implements §4.7 step 2's five dirty conditions.
func (p *Pipeline) needsRender(entry *CacheEntry, node RenderNode, frameIndex uint64, byID map[string]RenderNode, outputs map[string]*gpu.Texture) bool {
	if entry.dirty {
		return true
	}
	if !entry.hasFrame || entry.lastFrameIndex != frameIndex {
		return true
	}
	if entry.parameterHash != effects.HashParameters(node.Parameters) {
		return true
	}
	if entry.outputTexture == nil {
		return true
	}
	for _, inputID := range node.InputIDs {
		if inputID == SourceInputID {
			continue
		}
		if _, isNode := byID[inputID]; !isNode {
			continue
		}
		upstream, ok := p.cache[inputID]
		if ok && upstream.hasFrame && upstream.lastFrameIndex > entry.lastFrameIndex {
			return true
		}
	}
	return false
}

func (p *Pipeline) render(entry *CacheEntry, node RenderNode, outputs map[string]*gpu.Texture, sourceTexture *gpu.Texture, frameIndex uint64) (*gpu.Texture, error) {
	inputs := make([]*gpu.Texture, 0, len(node.InputIDs))
	for _, id := range node.InputIDs {
		tex, ok := outputs[id]
		if !ok {
			return nil, fmt.Errorf("%w: node %q references %q", ErrMissingInput, node.ID, id)
		}
		inputs = append(inputs, tex)
	}

	if err := p.ensureOutputTexture(entry, sourceTexture); err != nil {
		return nil, err
	}

	entry.effect.SetParameters(node.Parameters)
	if err := entry.effect.Apply(p.ctx, inputs, entry.outputTexture); err != nil {
		return nil, err
	}

	entry.parameterHash = effects.HashParameters(node.Parameters)
	entry.lastFrameIndex = frameIndex
	entry.hasFrame = true
	entry.dirty = false
	return entry.outputTexture, nil
}

func (p *Pipeline) ensureOutputTexture(entry *CacheEntry, sourceTexture *gpu.Texture) error {
	if entry.outputTexture != nil &&
		entry.outputTexture.Width() == sourceTexture.Width() &&
		entry.outputTexture.Height() == sourceTexture.Height() &&
		entry.outputTexture.Format() == sourceTexture.Format() {
		return nil
	}
	if entry.outputTexture != nil {
		p.pool.Release(entry.outputTexture)
	}
	tex, err := p.pool.Acquire(sourceTexture.Width(), sourceTexture.Height(), sourceTexture.Format())
	if err != nil {
		return err
	}
	entry.outputTexture = tex
	return nil
}

// MarkDirty sets dirty on id and every transitively downstream cache
// entry reachable through nodes' InputIDs (§4.7).
func (p *Pipeline) MarkDirty(id string, nodes []RenderNode) {
	downstream := make(map[string][]string) // inputID -> dependents
	for _, n := range nodes {
		for _, in := range n.InputIDs {
			downstream[in] = append(downstream[in], n.ID)
		}
	}
	var mark func(string)
	visited := make(map[string]bool)
	mark = func(nodeID string) {
		if visited[nodeID] {
			return
		}
		visited[nodeID] = true
		if entry, ok := p.cache[nodeID]; ok {
			entry.dirty = true
		}
		for _, dep := range downstream[nodeID] {
			mark(dep)
		}
	}
	mark(id)
}

// MarkAllDirty sets dirty on every cache entry, for when sourceTexture's
// content changed but its dimensions did not (§4.7).
func (p *Pipeline) MarkAllDirty() {
	for _, entry := range p.cache {
		entry.dirty = true
	}
}

// ClearNode releases id's cached texture to the pool and drops its
// cache entry and compiled effect.
func (p *Pipeline) ClearNode(id string) {
	entry, ok := p.cache[id]
	if !ok {
		return
	}
	if entry.outputTexture != nil {
		p.pool.Release(entry.outputTexture)
	}
	entry.effect.Dispose(p.ctx)
	delete(p.cache, id)
}

// ClearAll releases every cached texture and disposes every compiled
// effect instance.
func (p *Pipeline) ClearAll() {
	for id := range p.cache {
		p.ClearNode(id)
	}
}

// GetStats returns the Stats from the most recent Evaluate call.
func (p *Pipeline) GetStats() Stats { return p.lastStats }
