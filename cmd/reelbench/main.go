// Command reelbench builds a small scene graph (a source feeding a
// blur, a color-adjust, and a merge against a second generated
// background source) and drives it through the Node Renderer for a
// handful of global frames, writing the last rendered frame to a PNG
// file.
//
// Grounded on cmd/ggdemo/main.go's plain flag+log CLI style: no cobra,
// no viper, just flag.Parse and a handful of helper functions.
package main

import (
	"context"
	"flag"
	"image"
	"image/color"
	"log"
	"os"

	"github.com/gogpu/reel/broker"
	"github.com/gogpu/reel/decode"
	_ "github.com/gogpu/reel/effects" // registers colorAdjust, gaussianBlur, merge, transform
	"github.com/gogpu/reel/framecache"
	"github.com/gogpu/reel/gpu"
	"github.com/gogpu/reel/graph"
	"github.com/gogpu/reel/noderender"
	"github.com/gogpu/reel/pipeline"
	"github.com/gogpu/reel/texturepool"
)

func main() {
	var (
		width      = flag.Int("width", 320, "frame width")
		height     = flag.Int("height", 240, "frame height")
		frameCount = flag.Int("frames", 5, "number of global frames to render")
		radius     = flag.Float64("blur-radius", 4, "gaussian blur radius")
		brightness = flag.Float64("brightness", 0.05, "color-adjust brightness offset")
		output     = flag.String("output", "reelbench.png", "output PNG path")
	)
	flag.Parse()

	sceneGraph, targetID := buildScene(*radius, *brightness)

	ctx := gpu.NewSoftware()
	pool := texturepool.New(ctx, texturepool.Options{})
	bkr := broker.New()
	r := noderender.New(targetID, noderender.Deps{
		Context:  ctx,
		Pool:     pool,
		Pipeline: pipeline.New(ctx, pool),
		Cache:    framecache.New(framecache.DefaultCapacity),
		FrameSource: constantFrameSource{images: map[string]image.Image{
			"asset-fg": solidImage(*width, *height, color.RGBA{R: 200, G: 60, B: 60, A: 255}),
			"asset-bg": solidImage(*width, *height, color.RGBA{R: 40, G: 80, B: 160, A: 255}),
		}},
		Assets: staticAssets(*width, *height),
		Broker: bkr,
	})
	defer r.Dispose()

	var final image.Image
	for g := uint64(0); g < uint64(*frameCount); g++ {
		if err := r.RenderGlobalFrame(context.Background(), sceneGraph, g); err != nil {
			log.Printf("reelbench: frame %d render error: %v", g, err)
		}
		entry, ok := bkr.GetOutput(string(targetID))
		if ok {
			final = entry.Bitmap
		}
	}
	if final == nil {
		log.Fatal("reelbench: no frame was published")
	}

	data, err := decode.EncodeFrame(final, decode.FormatPNG, 0)
	if err != nil {
		log.Fatalf("reelbench: encode output: %v", err)
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		log.Fatalf("reelbench: write output: %v", err)
	}
	log.Printf("reelbench: wrote %s (%dx%d, %d frames)", *output, *width, *height, *frameCount)
}

// buildScene wires a foreground source through blur and color_correct,
// a separate background source straight into a merge node's bg slot,
// and the color-corrected foreground into the merge's fg slot, using
// the u_-prefixed parameter names the effects registry declares
// (§4.6). The merge node is the render target, exercising the Node
// Renderer's Merge-production path end-to-end (§4.8, §8 S5).
func buildScene(radius, brightness float64) (*graph.Graph, graph.NodeID) {
	nodes := []graph.Node{
		{
			ID:        "bgsrc",
			Kind:      graph.NodeSource,
			LayerID:   "layer-bg",
			Transform: graph.BaseTransform{ScaleX: 1, ScaleY: 1, Opacity: 1},
		},
		{
			ID:        "fgsrc",
			Kind:      graph.NodeSource,
			LayerID:   "layer-fg",
			Transform: graph.BaseTransform{ScaleX: 1, ScaleY: 1, Opacity: 1},
		},
		{
			ID:      "blur",
			Kind:    graph.NodeOperation,
			Op:      graph.OpBlur,
			Enabled: true,
			Params:  map[string]any{"u_radius": radius},
		},
		{
			ID:      "adjust",
			Kind:    graph.NodeOperation,
			Op:      graph.OpColorCorrect,
			Enabled: true,
			Params: map[string]any{
				"u_brightness": brightness,
				"u_contrast":   1.0,
				"u_saturation": 1.0,
				"u_exposure":   0.0,
			},
		},
		{
			ID:     "merge",
			Kind:   graph.NodeMerge,
			Params: map[string]any{"u_mode": float64(0), "u_opacity": 1.0},
		},
	}
	edges := []graph.Edge{
		{SourceID: "fgsrc", TargetID: "blur"},
		{SourceID: "blur", TargetID: "adjust"},
		{SourceID: "bgsrc", TargetID: "merge", Slot: graph.SlotBackground},
		{SourceID: "adjust", TargetID: "merge", Slot: graph.SlotForeground},
	}
	return graph.New(nodes, edges), "merge"
}

type constantFrameSource struct {
	images map[string]image.Image
}

func (c constantFrameSource) LoadFrame(ctx context.Context, sourceID string, frameIndex uint64) (image.Image, error) {
	return c.images[sourceID], nil
}

type fixedAssets struct {
	layers map[string]graph.Layer
	assets map[string]graph.Asset
}

func staticAssets(width, height int) fixedAssets {
	return fixedAssets{
		layers: map[string]graph.Layer{
			"layer-fg": {
				ID:        "layer-fg",
				AssetID:   "asset-fg",
				TimeRange: graph.TimeRange{InFrame: 0, OutFrame: 1 << 20, SourceOffset: 0},
				Transform: graph.BaseTransform{ScaleX: 1, ScaleY: 1, Opacity: 1},
			},
			"layer-bg": {
				ID:        "layer-bg",
				AssetID:   "asset-bg",
				TimeRange: graph.TimeRange{InFrame: 0, OutFrame: 1 << 20, SourceOffset: 0},
				Transform: graph.BaseTransform{ScaleX: 1, ScaleY: 1, Opacity: 1},
			},
		},
		assets: map[string]graph.Asset{
			"asset-fg": {ID: "asset-fg", Kind: graph.AssetImage, Width: width, Height: height, FrameCount: 1},
			"asset-bg": {ID: "asset-bg", Kind: graph.AssetImage, Width: width, Height: height, FrameCount: 1},
		},
	}
}

func (f fixedAssets) Layer(id string) (graph.Layer, bool) {
	l, ok := f.layers[id]
	return l, ok
}

func (f fixedAssets) Asset(id string) (graph.Asset, bool) {
	a, ok := f.assets[id]
	return a, ok
}

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
