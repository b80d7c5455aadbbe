package noderender

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/reel/broker"
	_ "github.com/gogpu/reel/effects" // registers colorAdjust, gaussianBlur, merge, transform
	"github.com/gogpu/reel/framecache"
	"github.com/gogpu/reel/gpu"
	"github.com/gogpu/reel/graph"
	"github.com/gogpu/reel/pipeline"
	"github.com/gogpu/reel/texturepool"
)

type fakeFrameSource struct {
	img image.Image
	err error
}

func (f *fakeFrameSource) LoadFrame(ctx context.Context, sourceID string, frameIndex uint64) (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.img, nil
}

// multiFrameSource maps source ids to distinct images, for tests that
// need a merge's bg and fg branches to load different content.
type multiFrameSource struct {
	imgs map[string]image.Image
}

func (f *multiFrameSource) LoadFrame(ctx context.Context, sourceID string, frameIndex uint64) (image.Image, error) {
	return f.imgs[sourceID], nil
}

type fakeAssets struct {
	layers map[string]graph.Layer
	assets map[string]graph.Asset
}

func (f *fakeAssets) Layer(id string) (graph.Layer, bool) { l, ok := f.layers[id]; return l, ok }
func (f *fakeAssets) Asset(id string) (graph.Asset, bool) { a, ok := f.assets[id]; return a, ok }

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func newDeps(t *testing.T, frames FrameSource, assets AssetResolver) Deps {
	t.Helper()
	ctx := gpu.NewSoftware()
	pool := texturepool.New(ctx, texturepool.Options{})
	return Deps{
		Context:     ctx,
		Pool:        pool,
		Pipeline:    pipeline.New(ctx, pool),
		Cache:       framecache.New(4),
		FrameSource: frames,
		Assets:      assets,
		Broker:      broker.New(),
	}
}

func TestResolveStopsAtSource(t *testing.T) {
	g := graph.New(
		[]graph.Node{
			{ID: "src", Kind: graph.NodeSource, LayerID: "layer-1"},
			{ID: "blur", Kind: graph.NodeOperation, Op: graph.OpBlur, Enabled: true},
		},
		[]graph.Edge{{SourceID: "src", TargetID: "blur"}},
	)
	res := Resolve(g, "blur")
	if !res.IsComplete || res.SourceNode == nil || res.SourceNode.ID != "src" {
		t.Fatalf("Resolve = %+v, want complete resolution to src", res)
	}
	if len(res.OperationNodes) != 1 || res.OperationNodes[0].ID != "blur" {
		t.Errorf("OperationNodes = %+v, want [blur]", res.OperationNodes)
	}
}

func TestResolveStopsAtMerge(t *testing.T) {
	g := graph.New(
		[]graph.Node{
			{ID: "merge", Kind: graph.NodeMerge},
			{ID: "adjust", Kind: graph.NodeOperation, Op: graph.OpColorCorrect, Enabled: true},
		},
		[]graph.Edge{{SourceID: "merge", TargetID: "adjust", Slot: ""}},
	)
	res := Resolve(g, "adjust")
	if !res.IsComplete || !res.IsMerge || res.CompositeSourceID != "merge" {
		t.Fatalf("Resolve = %+v, want a complete merge resolution", res)
	}
}

func TestResolveIncompleteOnDanglingEdge(t *testing.T) {
	g := graph.New(
		[]graph.Node{
			{ID: "adjust", Kind: graph.NodeOperation, Op: graph.OpColorCorrect, Enabled: true},
		},
		nil,
	)
	res := Resolve(g, "adjust")
	if res.IsComplete {
		t.Error("expected an incomplete resolution when no upstream edge exists")
	}
}

func TestRenderGlobalFrameInactiveAtFramePublishesNothing(t *testing.T) {
	g := graph.New(
		[]graph.Node{{ID: "src", Kind: graph.NodeSource, LayerID: "layer-1"}},
		nil,
	)
	assets := &fakeAssets{
		layers: map[string]graph.Layer{"layer-1": {ID: "layer-1", AssetID: "asset-1", TimeRange: graph.TimeRange{InFrame: 10, OutFrame: 20}}},
		assets: map[string]graph.Asset{"asset-1": {ID: "asset-1", FrameCount: 100}},
	}
	frames := &fakeFrameSource{img: solidImage(4, 4, color.White)}
	r := New("src", newDeps(t, frames, assets))

	if err := r.RenderGlobalFrame(context.Background(), g, 0); err != nil {
		t.Fatalf("RenderGlobalFrame: %v", err)
	}
	if r.State() != StateIdle {
		t.Errorf("state = %v, want Idle after an inactive frame", r.State())
	}
	if _, ok := r.broker.GetOutput("src"); ok {
		t.Error("expected no broker publish for a frame outside the layer's time range")
	}
}

func TestRenderGlobalFrameNoOperationsPublishesRawInput(t *testing.T) {
	g := graph.New(
		[]graph.Node{{ID: "src", Kind: graph.NodeSource, LayerID: "layer-1"}},
		nil,
	)
	assets := &fakeAssets{
		layers: map[string]graph.Layer{"layer-1": {ID: "layer-1", AssetID: "asset-1", TimeRange: graph.TimeRange{InFrame: 0, OutFrame: 10}}},
		assets: map[string]graph.Asset{"asset-1": {ID: "asset-1", FrameCount: 10}},
	}
	frames := &fakeFrameSource{img: solidImage(4, 4, color.White)}
	r := New("src", newDeps(t, frames, assets))

	if err := r.RenderGlobalFrame(context.Background(), g, 2); err != nil {
		t.Fatalf("RenderGlobalFrame: %v", err)
	}
	entry, ok := r.broker.GetOutput("src")
	if !ok {
		t.Fatal("expected a published output")
	}
	if entry.FrameIndex != 2 {
		t.Errorf("FrameIndex = %d, want 2", entry.FrameIndex)
	}
}

func TestRenderGlobalFramePassthroughPublishesExactPixels(t *testing.T) {
	g := graph.New(
		[]graph.Node{{ID: "src", Kind: graph.NodeSource, LayerID: "layer-1"}},
		nil,
	)
	assets := &fakeAssets{
		layers: map[string]graph.Layer{"layer-1": {ID: "layer-1", AssetID: "asset-1", TimeRange: graph.TimeRange{InFrame: 0, OutFrame: 10}}},
		assets: map[string]graph.Asset{"asset-1": {ID: "asset-1", FrameCount: 10}},
	}
	red := color.RGBA{R: 255, A: 255}
	frames := &fakeFrameSource{img: solidImage(4, 4, red)}
	r := New("src", newDeps(t, frames, assets))

	if err := r.RenderGlobalFrame(context.Background(), g, 0); err != nil {
		t.Fatalf("RenderGlobalFrame: %v", err)
	}
	entry, ok := r.broker.GetOutput("src")
	if !ok {
		t.Fatal("expected a published output")
	}
	if entry.FrameIndex != 0 {
		t.Errorf("FrameIndex = %d, want 0", entry.FrameIndex)
	}
	b := entry.Bitmap.Bounds()
	if b.Dx() != 4 || b.Dy() != 4 {
		t.Fatalf("bitmap size = %dx%d, want 4x4", b.Dx(), b.Dy())
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, ca := entry.Bitmap.At(x, y).RGBA()
			if cr != 0xffff || cg != 0 || cb != 0 || ca != 0xffff {
				t.Fatalf("pixel (%d,%d) = (%d,%d,%d,%d), want solid red", x, y, cr, cg, cb, ca)
			}
		}
	}
}

func TestRenderGlobalFrameWithOperationRunsPipeline(t *testing.T) {
	g := graph.New(
		[]graph.Node{
			{ID: "src", Kind: graph.NodeSource, LayerID: "layer-1"},
			{ID: "adjust", Kind: graph.NodeOperation, Op: graph.OpColorCorrect, Enabled: true,
				Params: map[string]any{"u_brightness": 0.0}},
		},
		[]graph.Edge{{SourceID: "src", TargetID: "adjust"}},
	)
	assets := &fakeAssets{
		layers: map[string]graph.Layer{"layer-1": {ID: "layer-1", AssetID: "asset-1", TimeRange: graph.TimeRange{InFrame: 0, OutFrame: 10}}},
		assets: map[string]graph.Asset{"asset-1": {ID: "asset-1", FrameCount: 10}},
	}
	frames := &fakeFrameSource{img: solidImage(4, 4, color.White)}
	r := New("adjust", newDeps(t, frames, assets))

	if err := r.RenderGlobalFrame(context.Background(), g, 0); err != nil {
		t.Fatalf("RenderGlobalFrame: %v", err)
	}
	entry, ok := r.broker.GetOutput("adjust")
	if !ok {
		t.Fatal("expected a published output for the operation chain's target node")
	}
	if entry.FrameIndex != 0 {
		t.Errorf("FrameIndex = %d, want 0", entry.FrameIndex)
	}
}

func TestRenderGlobalFrameMergeDefersUntilBrokerFrameMatches(t *testing.T) {
	g := graph.New(
		[]graph.Node{
			{ID: "merge", Kind: graph.NodeMerge},
			{ID: "adjust", Kind: graph.NodeOperation, Op: graph.OpColorCorrect, Enabled: true},
		},
		[]graph.Edge{{SourceID: "merge", TargetID: "adjust"}},
	)
	r := New("adjust", newDeps(t, &fakeFrameSource{}, &fakeAssets{}))
	r.broker.SetOutput("merge", solidImage(2, 2, color.Black), 5)

	if err := r.RenderGlobalFrame(context.Background(), g, 6); err != nil {
		t.Fatalf("RenderGlobalFrame: %v", err)
	}
	if _, ok := r.broker.GetOutput("adjust"); ok {
		t.Error("expected no publish while the upstream broker frame index lags")
	}

	r.broker.SetOutput("merge", solidImage(2, 2, color.Black), 6)
	if err := r.RenderGlobalFrame(context.Background(), g, 6); err != nil {
		t.Fatalf("RenderGlobalFrame: %v", err)
	}
	if _, ok := r.broker.GetOutput("adjust"); !ok {
		t.Error("expected a publish once the upstream broker frame index matches")
	}
}

func TestRenderGlobalFrameMergeTargetPublishesCombinedOutput(t *testing.T) {
	g := graph.New(
		[]graph.Node{
			{ID: "bgsrc", Kind: graph.NodeSource, LayerID: "layer-bg"},
			{ID: "fgsrc", Kind: graph.NodeSource, LayerID: "layer-fg"},
			{ID: "merge", Kind: graph.NodeMerge, Params: map[string]any{"u_mode": float64(0), "u_opacity": 1.0}},
		},
		[]graph.Edge{
			{SourceID: "bgsrc", TargetID: "merge", Slot: graph.SlotBackground},
			{SourceID: "fgsrc", TargetID: "merge", Slot: graph.SlotForeground},
		},
	)
	assets := &fakeAssets{
		layers: map[string]graph.Layer{
			"layer-bg": {ID: "layer-bg", AssetID: "asset-bg", TimeRange: graph.TimeRange{InFrame: 0, OutFrame: 10}},
			"layer-fg": {ID: "layer-fg", AssetID: "asset-fg", TimeRange: graph.TimeRange{InFrame: 0, OutFrame: 10}},
		},
		assets: map[string]graph.Asset{
			"asset-bg": {ID: "asset-bg", FrameCount: 10},
			"asset-fg": {ID: "asset-fg", FrameCount: 10},
		},
	}
	frames := &multiFrameSource{imgs: map[string]image.Image{
		"asset-bg": solidImage(4, 4, color.RGBA{R: 255, A: 255}),
		"asset-fg": solidImage(4, 4, color.RGBA{B: 255, A: 255}),
	}}
	r := New("merge", newDeps(t, frames, assets))

	if err := r.RenderGlobalFrame(context.Background(), g, 3); err != nil {
		t.Fatalf("RenderGlobalFrame: %v", err)
	}
	entry, ok := r.broker.GetOutput("merge")
	if !ok {
		t.Fatal("expected a published output for the merge target node")
	}
	if entry.FrameIndex != 3 {
		t.Errorf("FrameIndex = %d, want 3", entry.FrameIndex)
	}
	bounds := entry.Bitmap.Bounds()
	if bounds.Dx() != 4 || bounds.Dy() != 4 {
		t.Errorf("published bitmap size = %dx%d, want 4x4 (bg's dimensions)", bounds.Dx(), bounds.Dy())
	}
}

func TestRenderGlobalFrameMergeTargetDefersWhenForegroundInactive(t *testing.T) {
	g := graph.New(
		[]graph.Node{
			{ID: "bgsrc", Kind: graph.NodeSource, LayerID: "layer-bg"},
			{ID: "fgsrc", Kind: graph.NodeSource, LayerID: "layer-fg"},
			{ID: "merge", Kind: graph.NodeMerge},
		},
		[]graph.Edge{
			{SourceID: "bgsrc", TargetID: "merge", Slot: graph.SlotBackground},
			{SourceID: "fgsrc", TargetID: "merge", Slot: graph.SlotForeground},
		},
	)
	assets := &fakeAssets{
		layers: map[string]graph.Layer{
			"layer-bg": {ID: "layer-bg", AssetID: "asset-bg", TimeRange: graph.TimeRange{InFrame: 0, OutFrame: 10}},
			"layer-fg": {ID: "layer-fg", AssetID: "asset-fg", TimeRange: graph.TimeRange{InFrame: 0, OutFrame: 2}},
		},
		assets: map[string]graph.Asset{
			"asset-bg": {ID: "asset-bg", FrameCount: 10},
			"asset-fg": {ID: "asset-fg", FrameCount: 2},
		},
	}
	frames := &multiFrameSource{imgs: map[string]image.Image{
		"asset-bg": solidImage(4, 4, color.RGBA{R: 255, A: 255}),
		"asset-fg": solidImage(4, 4, color.RGBA{B: 255, A: 255}),
	}}
	r := New("merge", newDeps(t, frames, assets))

	if err := r.RenderGlobalFrame(context.Background(), g, 5); err != nil {
		t.Fatalf("RenderGlobalFrame: %v", err)
	}
	if _, ok := r.broker.GetOutput("merge"); ok {
		t.Error("expected no publish while the foreground branch is outside its layer's time range")
	}
}

func TestRenderGlobalFrameMergeTargetDefersOnNestedCompositeSource(t *testing.T) {
	g := graph.New(
		[]graph.Node{
			{ID: "innerMerge", Kind: graph.NodeMerge},
			{ID: "fgsrc", Kind: graph.NodeSource, LayerID: "layer-fg"},
			{ID: "merge", Kind: graph.NodeMerge},
		},
		[]graph.Edge{
			{SourceID: "innerMerge", TargetID: "merge", Slot: graph.SlotBackground},
			{SourceID: "fgsrc", TargetID: "merge", Slot: graph.SlotForeground},
		},
	)
	assets := &fakeAssets{
		layers: map[string]graph.Layer{
			"layer-fg": {ID: "layer-fg", AssetID: "asset-fg", TimeRange: graph.TimeRange{InFrame: 0, OutFrame: 10}},
		},
		assets: map[string]graph.Asset{
			"asset-fg": {ID: "asset-fg", FrameCount: 10},
		},
	}
	frames := &multiFrameSource{imgs: map[string]image.Image{
		"asset-fg": solidImage(4, 4, color.RGBA{B: 255, A: 255}),
	}}
	r := New("merge", newDeps(t, frames, assets))

	// innerMerge has never published, so the outer merge's bg branch
	// isn't ready at any frame.
	if err := r.RenderGlobalFrame(context.Background(), g, 0); err != nil {
		t.Fatalf("RenderGlobalFrame: %v", err)
	}
	if _, ok := r.broker.GetOutput("merge"); ok {
		t.Error("expected no publish while the nested composite source hasn't published for this frame")
	}

	r.broker.SetOutput("innerMerge", solidImage(4, 4, color.RGBA{G: 255, A: 255}), 0)
	if err := r.RenderGlobalFrame(context.Background(), g, 0); err != nil {
		t.Fatalf("RenderGlobalFrame: %v", err)
	}
	if _, ok := r.broker.GetOutput("merge"); !ok {
		t.Error("expected a publish once the nested composite source matches the current frame")
	}
}

// failingUploadContext turns every texture upload into a GPU error,
// driving the §4.8 fallback path.
type failingUploadContext struct {
	gpu.Context
}

func (f *failingUploadContext) UploadImage(pix []byte, w, h int, format gpu.Format, tex *gpu.Texture) (*gpu.Texture, error) {
	return nil, gpu.ErrOutOfMemory
}

func TestRenderGlobalFrameGPUErrorFallbackTagsCurrentFrame(t *testing.T) {
	g := graph.New(
		[]graph.Node{{ID: "src", Kind: graph.NodeSource, LayerID: "layer-1"}},
		nil,
	)
	assets := &fakeAssets{
		layers: map[string]graph.Layer{"layer-1": {ID: "layer-1", AssetID: "asset-1", TimeRange: graph.TimeRange{InFrame: 0, OutFrame: 10}}},
		assets: map[string]graph.Asset{"asset-1": {ID: "asset-1", FrameCount: 10}},
	}
	frames := &fakeFrameSource{img: solidImage(4, 4, color.White)}
	ctx := &failingUploadContext{Context: gpu.NewSoftware()}
	pool := texturepool.New(ctx, texturepool.Options{})
	r := New("src", Deps{
		Context:     ctx,
		Pool:        pool,
		Pipeline:    pipeline.New(ctx, pool),
		Cache:       framecache.New(4),
		FrameSource: frames,
		Assets:      assets,
		Broker:      broker.New(),
	})

	if err := r.RenderGlobalFrame(context.Background(), g, 7); err == nil {
		t.Fatal("expected the upload error to propagate from the fallback path")
	}
	entry, ok := r.broker.GetOutput("src")
	if !ok {
		t.Fatal("expected the fallback to publish the raw input")
	}
	// The fallback entry must carry the frame it was produced for, not a
	// stale index, or downstream frameIndex == g checks misfire.
	if entry.FrameIndex != 7 {
		t.Errorf("fallback FrameIndex = %d, want 7", entry.FrameIndex)
	}
}

func TestRenderGlobalFrameLoadErrorPropagates(t *testing.T) {
	g := graph.New(
		[]graph.Node{{ID: "src", Kind: graph.NodeSource, LayerID: "layer-1"}},
		nil,
	)
	assets := &fakeAssets{
		layers: map[string]graph.Layer{"layer-1": {ID: "layer-1", AssetID: "asset-1", TimeRange: graph.TimeRange{InFrame: 0, OutFrame: 10}}},
		assets: map[string]graph.Asset{"asset-1": {ID: "asset-1", FrameCount: 10}},
	}
	frames := &fakeFrameSource{err: errBoom}
	r := New("src", newDeps(t, frames, assets))

	if err := r.RenderGlobalFrame(context.Background(), g, 0); err == nil {
		t.Error("expected the frame-load error to propagate")
	}
}

func TestDisposeLeavesRendererIdle(t *testing.T) {
	g := graph.New(
		[]graph.Node{{ID: "src", Kind: graph.NodeSource, LayerID: "layer-1"}},
		nil,
	)
	assets := &fakeAssets{
		layers: map[string]graph.Layer{"layer-1": {ID: "layer-1", AssetID: "asset-1", TimeRange: graph.TimeRange{InFrame: 0, OutFrame: 10}}},
		assets: map[string]graph.Asset{"asset-1": {ID: "asset-1", FrameCount: 10}},
	}
	frames := &fakeFrameSource{img: solidImage(4, 4, color.White)}
	r := New("src", newDeps(t, frames, assets))
	_ = r.RenderGlobalFrame(context.Background(), g, 0)

	r.Dispose()
	if r.State() != StateIdle {
		t.Errorf("state = %v, want Idle after Dispose", r.State())
	}
}

var errBoom = &loadError{"boom"}

type loadError struct{ msg string }

func (e *loadError) Error() string { return e.msg }
