// Package noderender is the Node Renderer (C8, §4.8): one instance per
// visible output node, owning a GPU context, a Texture Pool, a Render
// Pipeline, and a primary-input frame cache. It walks the scene graph
// upstream from its target node, resolves the frame for the current
// global frame index, runs it through the render pipeline, and
// publishes the result to the Composite Output Broker.
//
// Grounded on scene/renderer.go's Renderer: both own a cache, a pool of
// reusable resources, and a stats-producing per-frame entry point, just
// over node graphs instead of tile grids.
package noderender

import (
	"context"
	"fmt"
	"image"

	"github.com/gogpu/reel"
	"github.com/gogpu/reel/broker"
	"github.com/gogpu/reel/effects"
	"github.com/gogpu/reel/framecache"
	"github.com/gogpu/reel/gpu"
	"github.com/gogpu/reel/graph"
	"github.com/gogpu/reel/pipeline"
	"github.com/gogpu/reel/texturepool"
)

// State names the node renderer's per-frame state machine (§4.8).
type State int

const (
	StateIdle State = iota
	StateResolving
	StateLoading
	StateUploading
	StateEvaluating
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "Resolving"
	case StateLoading:
		return "Loading"
	case StateUploading:
		return "Uploading"
	case StateEvaluating:
		return "Evaluating"
	case StatePublishing:
		return "Publishing"
	default:
		return "Idle"
	}
}

// FrameSource resolves a decoded raw frame for a source id, standing in
// for the Frame Store (C1) + Media Decoder (C2) path the Frame Cache
// falls back to on a miss (§4.8 step 1, §5 "Frame Cache bounds decoded
// memory"). A production host wires this to store.Store + decode.Codec;
// this package only depends on the seam.
type FrameSource interface {
	LoadFrame(ctx context.Context, sourceID string, frameIndex uint64) (image.Image, error)
}

// AssetResolver looks up the Layer and Asset backing a Source node, and
// the Asset's effective frame count for mapGlobalFrameToSource.
type AssetResolver interface {
	Layer(layerID string) (graph.Layer, bool)
	Asset(assetID string) (graph.Asset, bool)
}

// Resolution is the result of walking the graph upstream from a target
// node (§4.8 "Upstream resolution").
type Resolution struct {
	SourceNode        *graph.Node
	CompositeSourceID graph.NodeID
	IsMerge           bool
	OperationNodes    []*graph.Node // forward order: closest-to-source first
	IsComplete        bool
}

// Resolve walks g backward from target via incoming edges, collecting
// Operation nodes until it reaches a Source or Merge node. Only the
// unnamed input slot of an Operation node is followed; a Merge node ends
// the walk as the composite source, and none of its slots are followed.
// A missing node or edge, or a node reached a second time (a cycle),
// yields an incomplete resolution.
func Resolve(g *graph.Graph, target graph.NodeID) Resolution {
	var ops []*graph.Node
	current := target
	slot := graph.EdgeSlot("")
	seen := make(map[graph.NodeID]bool)
	for {
		if seen[current] {
			return Resolution{OperationNodes: reverse(ops), IsComplete: false}
		}
		seen[current] = true
		node := g.Node(current)
		if node == nil {
			return Resolution{OperationNodes: reverse(ops), IsComplete: false}
		}
		switch node.Kind {
		case graph.NodeSource:
			return Resolution{SourceNode: node, OperationNodes: reverse(ops), IsComplete: true}
		case graph.NodeMerge:
			return Resolution{CompositeSourceID: node.ID, IsMerge: true, OperationNodes: reverse(ops), IsComplete: true}
		case graph.NodeOperation:
			ops = append(ops, node)
			edge, ok := g.IncomingEdge(current, slot)
			if !ok {
				return Resolution{OperationNodes: reverse(ops), IsComplete: false}
			}
			current = edge.SourceID
		default:
			return Resolution{OperationNodes: reverse(ops), IsComplete: false}
		}
	}
}

func reverse(nodes []*graph.Node) []*graph.Node {
	out := make([]*graph.Node, len(nodes))
	for i, n := range nodes {
		out[len(nodes)-1-i] = n
	}
	return out
}

// NodeRenderer renders one target node's chain for successive global
// frames, publishing results to a shared Broker.
type NodeRenderer struct {
	targetID graph.NodeID

	ctx      gpu.Context
	pool     *texturepool.Pool
	pipeline *pipeline.Pipeline
	cache    *framecache.Cache
	frames   FrameSource
	assets   AssetResolver
	broker   *broker.Broker

	state         State
	sourceTexture *gpu.Texture
	initialized   bool

	// bgTexture/fgTexture/mergeOutput and bgCache/fgCache back a target
	// that is itself a Merge node (renderMergeTarget); they stay nil for
	// every other target and are created lazily on first use.
	bgTexture   *gpu.Texture
	fgTexture   *gpu.Texture
	mergeOutput *gpu.Texture
	mergeEffect effects.Instance
	bgCache     *framecache.Cache
	fgCache     *framecache.Cache
}

// Deps bundles a NodeRenderer's owned/shared collaborators.
type Deps struct {
	Context     gpu.Context
	Pool        *texturepool.Pool
	Pipeline    *pipeline.Pipeline
	Cache       *framecache.Cache
	FrameSource FrameSource
	Assets      AssetResolver
	Broker      *broker.Broker
}

// New creates a NodeRenderer for targetID.
func New(targetID graph.NodeID, deps Deps) *NodeRenderer {
	return &NodeRenderer{
		targetID: targetID,
		ctx:      deps.Context,
		pool:     deps.Pool,
		pipeline: deps.Pipeline,
		cache:    deps.Cache,
		frames:   deps.FrameSource,
		assets:   deps.Assets,
		broker:   deps.Broker,
		state:    StateIdle,
	}
}

// State returns the renderer's current state-machine state.
func (r *NodeRenderer) State() State { return r.state }

// RenderGlobalFrame runs the per-frame algorithm of §4.8 for global
// frame g against sceneGraph. A target whose own node is a
// Merge dispatches to renderMergeTarget, since Resolve's generic walk
// treats reaching a Merge node as "stop here, read the broker" (the
// composite-source-consumption case used by downstream Operation
// chains), not "produce it".
func (r *NodeRenderer) RenderGlobalFrame(ctx context.Context, sceneGraph *graph.Graph, g uint64) error {
	if target := sceneGraph.Node(r.targetID); target != nil && target.Kind == graph.NodeMerge {
		return r.renderMergeTarget(ctx, sceneGraph, target, g)
	}

	r.state = StateResolving
	res := Resolve(sceneGraph, r.targetID)
	if !res.IsComplete {
		r.state = StateIdle
		return nil
	}

	var input image.Image
	var err error

	switch {
	case res.SourceNode != nil:
		input, err = r.loadSourceFrame(ctx, sceneGraph, res.SourceNode, g, r.cache)
		if err != nil {
			reel.Logger().Error("noderender: source frame load failed", "node", r.targetID, "error", err)
			return err
		}
		if input == nil {
			// Inactive at this frame: clear the output canvas (§4.8 step 1)
			// and publish nothing.
			if r.initialized {
				_ = r.ctx.SetRenderTarget(nil)
				r.ctx.Clear(0, 0, 0, 0)
			}
			r.state = StateIdle
			return nil
		}
	case res.IsMerge:
		entry, ok := r.broker.GetOutput(string(res.CompositeSourceID))
		if !ok || entry.FrameIndex != g {
			r.state = StateIdle
			return nil // dependency not yet updated for this frame
		}
		input = entry.Bitmap
	default:
		r.state = StateIdle
		return nil
	}

	return r.renderWithInput(ctx, input, res.OperationNodes, g)
}

// renderMergeTarget produces the output of a Merge node itself: it
// resolves the bg and fg slots independently (§3, §4.6), runs each
// through its own operation chain onto its own texture, then combines
// them with the merge effect and publishes the result (§4.8, §8 S5).
func (r *NodeRenderer) renderMergeTarget(ctx context.Context, sceneGraph *graph.Graph, mergeNode *graph.Node, g uint64) error {
	r.state = StateResolving
	bgTex, bgReady, err := r.resolveBranch(ctx, sceneGraph, mergeNode.ID, graph.SlotBackground, g)
	if err != nil {
		reel.Logger().Error("noderender: merge background load failed", "node", r.targetID, "error", err)
		return err
	}
	if !bgReady {
		r.state = StateIdle
		return nil
	}

	fgTex, fgReady, err := r.resolveBranch(ctx, sceneGraph, mergeNode.ID, graph.SlotForeground, g)
	if err != nil {
		reel.Logger().Error("noderender: merge foreground load failed", "node", r.targetID, "error", err)
		return err
	}
	if !fgReady {
		r.state = StateIdle
		return nil
	}

	r.state = StateEvaluating
	if err := r.ensureMergeEffect(); err != nil {
		return r.mergeFallback(bgTex, g, err)
	}
	if err := r.ensureTexture(&r.mergeOutput, bgTex.Width(), bgTex.Height()); err != nil {
		return r.mergeFallback(bgTex, g, err)
	}
	r.mergeEffect.SetParameters(mergeNode.Params)
	if err := r.mergeEffect.Apply(r.ctx, []*gpu.Texture{bgTex, fgTex}, r.mergeOutput); err != nil {
		return r.mergeFallback(bgTex, g, err)
	}
	if err := r.ctx.BlitToCanvas(r.mergeOutput); err != nil {
		return r.mergeFallback(bgTex, g, err)
	}
	pixOut, err := r.ctx.ReadPixels(r.mergeOutput)
	if err != nil {
		return r.mergeFallback(bgTex, g, err)
	}

	r.state = StatePublishing
	bitmap := rgbaFromPremultipliedBytes(pixOut, r.mergeOutput.Width(), r.mergeOutput.Height())
	r.broker.SetOutput(string(r.targetID), bitmap, g)
	r.state = StateIdle
	return nil
}

// resolveBranch resolves and renders one of a merge node's named input
// slots. ready is false (with a nil error) when the slot has no edge,
// its chain is inactive at this frame, or its upstream composite source
// hasn't published for frame g yet — in every case the whole merge
// defers rather than publishing a partial result.
func (r *NodeRenderer) resolveBranch(ctx context.Context, sceneGraph *graph.Graph, mergeID graph.NodeID, slot graph.EdgeSlot, g uint64) (tex *gpu.Texture, ready bool, err error) {
	edge, ok := sceneGraph.IncomingEdge(mergeID, slot)
	if !ok {
		return nil, false, nil
	}
	res := Resolve(sceneGraph, edge.SourceID)
	if !res.IsComplete {
		return nil, false, nil
	}

	var input image.Image
	switch {
	case res.SourceNode != nil:
		input, err = r.loadSourceFrame(ctx, sceneGraph, res.SourceNode, g, r.branchCache(slot))
		if err != nil {
			return nil, false, err
		}
		if input == nil {
			return nil, false, nil // inactive at this frame
		}
	case res.IsMerge:
		entry, ok := r.broker.GetOutput(string(res.CompositeSourceID))
		if !ok || entry.FrameIndex != g {
			return nil, false, nil // dependency not yet updated for this frame
		}
		input = entry.Bitmap
	default:
		return nil, false, nil
	}

	slotTexture := &r.bgTexture
	if slot == graph.SlotForeground {
		slotTexture = &r.fgTexture
	}
	tex, err = r.evaluateChain(slotTexture, input, res.OperationNodes, g)
	if err != nil {
		return nil, false, err
	}
	return tex, true, nil
}

func (r *NodeRenderer) branchCache(slot graph.EdgeSlot) *framecache.Cache {
	if slot == graph.SlotForeground {
		if r.fgCache == nil {
			r.fgCache = framecache.New(framecache.DefaultMergeCapacity)
		}
		return r.fgCache
	}
	if r.bgCache == nil {
		r.bgCache = framecache.New(framecache.DefaultMergeCapacity)
	}
	return r.bgCache
}

func (r *NodeRenderer) ensureMergeEffect() error {
	if r.mergeEffect != nil {
		return nil
	}
	inst, err := effects.NewInstance("merge")
	if err != nil {
		return err
	}
	if err := inst.Compile(r.ctx); err != nil {
		return err
	}
	r.mergeEffect = inst
	return nil
}

// mergeFallback implements §4.8's merge-specific failure case: "falls
// back to drawing ... the bg alone for a merge", logging the cause. The
// published entry is tagged with the frame it was produced for, so
// downstream frameIndex == g checks (§5) still see a coherent history.
func (r *NodeRenderer) mergeFallback(bgTex *gpu.Texture, g uint64, cause error) error {
	reel.Logger().Error("noderender: merge render failed, falling back to background alone", "node", r.targetID, "error", cause)
	pix, err := r.ctx.ReadPixels(bgTex)
	if err != nil {
		r.state = StateIdle
		return cause
	}
	bitmap := rgbaFromPremultipliedBytes(pix, bgTex.Width(), bgTex.Height())
	r.broker.SetOutput(string(r.targetID), bitmap, g)
	r.state = StateIdle
	return cause
}

func (r *NodeRenderer) loadSourceFrame(ctx context.Context, sceneGraph *graph.Graph, sourceNode *graph.Node, g uint64, cache *framecache.Cache) (image.Image, error) {
	layer, ok := r.assets.Layer(sourceNode.LayerID)
	if !ok {
		return nil, fmt.Errorf("noderender: unknown layer %q", sourceNode.LayerID)
	}
	asset, ok := r.assets.Asset(layer.AssetID)
	if !ok {
		return nil, fmt.Errorf("noderender: unknown asset %q", layer.AssetID)
	}

	r.state = StateLoading
	s, ok := graph.MapGlobalFrameToSource(g, layer.TimeRange, asset.FrameCount)
	if !ok {
		return nil, nil
	}

	key := framecache.Key{SourceID: asset.ID, SourceFrameIndex: s}
	raw, hit := cache.Get(key)
	if !hit {
		loaded, err := r.frames.LoadFrame(ctx, asset.ID, s)
		if err != nil {
			reel.Logger().Error("noderender: frame load failed", "source", asset.ID, "frame", s, "error", err)
			return nil, fmt.Errorf("noderender: loading frame %d of %q: %w", s, asset.ID, err)
		}
		cache.Put(key, loaded)
		raw = loaded
	}

	// Both the Layer and the Source node carry a base transform (§3);
	// the node's placement composes on top of the layer's.
	layerT := layer.Transform.Normalized()
	nodeT := sourceNode.Transform.Normalized()
	transform := composeTRS(nodeT).Mul(composeTRS(layerT))
	opacity := nodeT.Opacity * layerT.Opacity
	bounds := raw.Bounds()
	return applyBaseTransform(raw, transform, opacity, bounds.Dx(), bounds.Dy()), nil
}

func composeTRS(t graph.BaseTransform) reel.Affine {
	return reel.ComposeTRS(t.X, t.Y, t.AnchorX, t.AnchorY, t.RotationRad, t.ScaleX, t.ScaleY)
}

func (r *NodeRenderer) renderWithInput(ctx context.Context, input image.Image, ops []*graph.Node, g uint64) error {
	r.state = StateUploading
	bounds := input.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if err := r.ensureInitialized(w, h); err != nil {
		return r.fallback(input, g, err)
	}
	if err := r.ensureTexture(&r.sourceTexture, w, h); err != nil {
		return r.fallback(input, g, err)
	}

	pix := imageToRGBAPremultiplied(input)
	if _, err := r.ctx.UploadImage(pix, w, h, gpu.FormatRGBA8, r.sourceTexture); err != nil {
		return r.fallback(input, g, err)
	}

	enabled := filterEnabled(ops)
	if len(enabled) == 0 {
		return r.publishDirect(input, g)
	}

	renderNodes, err := buildRenderNodes(enabled)
	if err != nil {
		return err
	}

	r.state = StateEvaluating
	result, err := r.pipeline.Evaluate(renderNodes, r.sourceTexture, g)
	if err != nil {
		return r.fallback(input, g, err)
	}

	// Blit to the hidden GPU canvas (§4.8 step 6); the readback below is
	// the transfer to the externally visible surface.
	if err := r.ctx.BlitToCanvas(result); err != nil {
		return r.fallback(input, g, err)
	}
	pixOut, err := r.ctx.ReadPixels(result)
	if err != nil {
		return r.fallback(input, g, err)
	}

	r.state = StatePublishing
	bitmap := rgbaFromPremultipliedBytes(pixOut, result.Width(), result.Height())
	r.broker.SetOutput(string(r.targetID), bitmap, g)
	r.state = StateIdle
	return nil
}

// evaluateChain uploads input onto the texture tracked by slot (which
// a merge branch reuses across frames, same as the single-target
// sourceTexture) and runs ops through the pipeline, returning the
// resulting texture. A pipeline evaluation failure is not fatal to the
// branch: it falls back to the raw uploaded texture and logs, so one
// branch's effect failure doesn't necessarily sink the whole merge —
// only the merge-combination step itself does that (mergeFallback).
func (r *NodeRenderer) evaluateChain(slot **gpu.Texture, input image.Image, ops []*graph.Node, g uint64) (*gpu.Texture, error) {
	bounds := input.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if err := r.ensureInitialized(w, h); err != nil {
		return nil, err
	}
	if err := r.ensureTexture(slot, w, h); err != nil {
		return nil, err
	}
	tex := *slot

	pix := imageToRGBAPremultiplied(input)
	if _, err := r.ctx.UploadImage(pix, w, h, gpu.FormatRGBA8, tex); err != nil {
		return nil, err
	}

	enabled := filterEnabled(ops)
	if len(enabled) == 0 {
		return tex, nil
	}

	renderNodes, err := buildRenderNodes(enabled)
	if err != nil {
		return nil, err
	}

	result, err := r.pipeline.Evaluate(renderNodes, tex, g)
	if err != nil {
		reel.Logger().Error("noderender: merge branch pipeline evaluate failed, using unprocessed branch input", "node", r.targetID, "error", err)
		return tex, nil
	}
	return result, nil
}

func (r *NodeRenderer) publishDirect(input image.Image, g uint64) error {
	r.state = StatePublishing
	r.broker.SetOutput(string(r.targetID), input, g)
	r.state = StateIdle
	return nil
}

// fallback implements §4.8's failure semantics: any GPU error during a
// render falls back to publishing the raw input and logging an error.
// The entry is tagged with the frame it was produced for, so downstream
// frameIndex == g checks (§5) still see a coherent history.
func (r *NodeRenderer) fallback(input image.Image, g uint64, cause error) error {
	reel.Logger().Error("noderender: render failed, falling back to raw input", "node", r.targetID, "error", cause)
	r.broker.SetOutput(string(r.targetID), input, g)
	r.state = StateIdle
	return cause
}

func (r *NodeRenderer) ensureInitialized(w, h int) error {
	if r.initialized {
		return nil
	}
	if err := r.ctx.Init(gpu.InitOptions{}); err != nil {
		return err
	}
	if err := r.ctx.Resize(w, h); err != nil {
		return err
	}
	r.initialized = true
	return nil
}

// ensureTexture (re)acquires, from the shared texture pool, a texture
// of the requested dimensions for the given owned-texture slot,
// releasing whatever it previously held back to the pool first. One
// NodeRenderer owns several such slots: sourceTexture for a plain
// Operation-chain target, bgTexture/fgTexture/mergeOutput for a Merge
// target (§4.8, §4.5).
func (r *NodeRenderer) ensureTexture(slot **gpu.Texture, w, h int) error {
	if *slot != nil && (*slot).Width() == w && (*slot).Height() == h {
		return nil
	}
	if *slot != nil {
		r.pool.Release(*slot)
	}
	tex, err := r.pool.Acquire(w, h, gpu.FormatRGBA8)
	if err != nil {
		return err
	}
	*slot = tex
	return nil
}

func filterEnabled(ops []*graph.Node) []*graph.Node {
	out := make([]*graph.Node, 0, len(ops))
	for _, n := range ops {
		if n.Enabled {
			out = append(out, n)
		}
	}
	return out
}

// buildRenderNodes turns enabled operation nodes into pipeline.RenderNode
// values, chaining each node's input to the prior one's id and the
// first to the literal "source" (§4.8 step 4).
func buildRenderNodes(ops []*graph.Node) ([]pipeline.RenderNode, error) {
	out := make([]pipeline.RenderNode, len(ops))
	for i, n := range ops {
		input := pipeline.SourceInputID
		if i > 0 {
			input = string(ops[i-1].ID)
		}
		name, err := effectNameFor(n.Op)
		if err != nil {
			return nil, fmt.Errorf("noderender: node %q: %w", n.ID, err)
		}
		out[i] = pipeline.RenderNode{
			ID:         string(n.ID),
			EffectName: name,
			Parameters: n.Params,
			InputIDs:   []string{input},
		}
	}
	return out, nil
}

// effectNameFor maps a graph Operation type to the effects registry
// name it runs through. An unrecognized type is a graph-construction
// error, not a render-time GPU failure, so it is returned rather than
// silently substituting some other effect (§7).
func effectNameFor(op graph.OperationType) (string, error) {
	switch op {
	case graph.OpBlur:
		return "gaussianBlur", nil
	case graph.OpColorCorrect:
		return "colorAdjust", nil
	case graph.OpTransform:
		return "transform", nil
	default:
		return "", fmt.Errorf("unknown operation type %q", op)
	}
}

// Dispose releases everything this renderer owns: every owned texture, the merge effect if one was
// compiled, the pipeline's cached outputs and compiled effects, every
// frame cache, and the GPU context (§5 "Disposal of a renderer").
func (r *NodeRenderer) Dispose() {
	for _, slot := range []**gpu.Texture{&r.sourceTexture, &r.bgTexture, &r.fgTexture, &r.mergeOutput} {
		if *slot != nil {
			r.pool.Release(*slot)
			*slot = nil
		}
	}
	if r.mergeEffect != nil {
		r.mergeEffect.Dispose(r.ctx)
		r.mergeEffect = nil
	}
	r.pipeline.ClearAll()
	r.cache.InvalidateAll()
	if r.bgCache != nil {
		r.bgCache.InvalidateAll()
	}
	if r.fgCache != nil {
		r.fgCache.InvalidateAll()
	}
	r.ctx.Dispose()
	r.state = StateIdle
}
