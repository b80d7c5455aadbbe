package effects

import (
	"math"
	"testing"

	"github.com/gogpu/reel/gpu"
)

func newTestContext(t *testing.T) gpu.Context {
	t.Helper()
	ctx := gpu.NewSoftware()
	if err := ctx.Init(gpu.InitOptions{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return ctx
}

func uploadSolid(t *testing.T, ctx gpu.Context, w, h int, r, g, b, a byte) *gpu.Texture {
	t.Helper()
	pix := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		pix[i*4+0], pix[i*4+1], pix[i*4+2], pix[i*4+3] = r, g, b, a
	}
	tex, err := ctx.UploadImage(pix, w, h, gpu.FormatRGBA8, nil)
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	return tex
}

func TestRegisterDuplicateFails(t *testing.T) {
	err := Register(Definition{Name: "colorAdjust"})
	if err == nil {
		t.Fatal("expected DuplicateEffect for re-registering colorAdjust")
	}
	if _, ok := err.(*DuplicateEffect); !ok {
		t.Fatalf("err type = %T, want *DuplicateEffect", err)
	}
}

func TestGetUnknownName(t *testing.T) {
	if _, ok := Get("does-not-exist"); ok {
		t.Error("expected ok=false for unregistered name")
	}
}

func TestParameterHashStableUnderKeyOrder(t *testing.T) {
	a := parameterHash(map[string]any{"b": 1.0, "a": 2.0})
	b := parameterHash(map[string]any{"a": 2.0, "b": 1.0})
	if a != b {
		t.Errorf("parameterHash not order-independent: %q vs %q", a, b)
	}
}

func TestColorAdjustIdentityLeavesColorUnchanged(t *testing.T) {
	ctx := newTestContext(t)
	src := uploadSolid(t, ctx, 2, 2, 128, 64, 32, 255)
	dst, _ := ctx.CreateTexture(2, 2, gpu.FormatRGBA8)

	def, _ := Get("colorAdjust")
	eff := New(def)
	if err := eff.Compile(ctx); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	// defaults: exposure 0, brightness 0, contrast 1, saturation 1 — a no-op
	if err := eff.Apply(ctx, []*gpu.Texture{src}, dst); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, _ := ctx.ReadPixels(dst)
	want := []byte{128, 64, 32, 255}
	for i := 0; i < 4; i++ {
		if diff := int(out[i]) - int(want[i]); diff > 2 || diff < -2 {
			t.Errorf("byte %d = %d, want ~%d", i, out[i], want[i])
		}
	}
}

func TestColorAdjustBrightnessSaturatesToWhite(t *testing.T) {
	ctx := newTestContext(t)
	src := uploadSolid(t, ctx, 2, 2, 100, 100, 100, 255)
	dst, _ := ctx.CreateTexture(2, 2, gpu.FormatRGBA8)

	def, _ := Get("colorAdjust")
	eff := New(def)
	eff.Compile(ctx)
	eff.SetParameters(map[string]any{"u_brightness": 1.0})
	if err := eff.Apply(ctx, []*gpu.Texture{src}, dst); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, _ := ctx.ReadPixels(dst)
	if out[0] < 250 {
		t.Errorf("expected near-white after +1 brightness, got %d", out[0])
	}
}

func TestGaussianBlurZeroRadiusCopiesInput(t *testing.T) {
	ctx := newTestContext(t)
	src := uploadSolid(t, ctx, 4, 4, 10, 20, 30, 255)
	dst, _ := ctx.CreateTexture(4, 4, gpu.FormatRGBA8)

	blur := NewGaussianBlur()
	if err := blur.Compile(ctx); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := blur.Apply(ctx, []*gpu.Texture{src}, dst); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, _ := ctx.ReadPixels(dst)
	want, _ := ctx.ReadPixels(src)
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d (zero-radius must be a copy)", i, out[i], want[i])
		}
	}
}

func TestGaussianBlurUniformImageUnchanged(t *testing.T) {
	ctx := newTestContext(t)
	src := uploadSolid(t, ctx, 8, 8, 200, 100, 50, 255)
	dst, _ := ctx.CreateTexture(8, 8, gpu.FormatRGBA8)

	blur := NewGaussianBlur()
	blur.Compile(ctx)
	blur.SetParameters(map[string]any{"u_radius": 3.0})
	if err := blur.Apply(ctx, []*gpu.Texture{src}, dst); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, _ := ctx.ReadPixels(dst)
	// blurring a flat field must reproduce the same field, modulo
	// premultiply/unpremultiply rounding.
	for i, want := range []byte{200, 100, 50, 255} {
		for p := 0; p < 8*8; p++ {
			got := out[p*4+i]
			if diff := int(got) - int(want); diff > 2 || diff < -2 {
				t.Fatalf("pixel %d channel %d = %d, want ~%d", p, i, got, want)
			}
		}
	}
}

func TestTransformIdentityIsPassthrough(t *testing.T) {
	ctx := newTestContext(t)
	src := uploadSolid(t, ctx, 4, 4, 10, 20, 30, 255)
	dst, _ := ctx.CreateTexture(4, 4, gpu.FormatRGBA8)

	tr := NewTransform()
	if err := tr.Compile(ctx); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	// defaults: no translation, no rotation, unit scale
	if err := tr.Apply(ctx, []*gpu.Texture{src}, dst); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, _ := ctx.ReadPixels(dst)
	want, _ := ctx.ReadPixels(src)
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d (identity transform must be a passthrough)", i, out[i], want[i])
		}
	}
}

func TestTransformTranslateOutOfBoundsIsTransparent(t *testing.T) {
	ctx := newTestContext(t)
	src := uploadSolid(t, ctx, 4, 4, 255, 255, 255, 255)
	dst, _ := ctx.CreateTexture(4, 4, gpu.FormatRGBA8)

	tr := NewTransform()
	tr.Compile(ctx)
	// Push the content a full canvas-width-plus past the right edge;
	// every output pixel then inverse-maps outside the input.
	tr.SetParameters(map[string]any{"u_x": 100.0})
	if err := tr.Apply(ctx, []*gpu.Texture{src}, dst); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, _ := ctx.ReadPixels(dst)
	for i, b := range out {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0 (out-of-bounds samples must be transparent)", i, b)
		}
	}
}

func TestTransformZeroScaleClearsOutput(t *testing.T) {
	ctx := newTestContext(t)
	src := uploadSolid(t, ctx, 4, 4, 255, 0, 0, 255)
	dst, _ := ctx.CreateTexture(4, 4, gpu.FormatRGBA8)

	tr := NewTransform()
	tr.Compile(ctx)
	tr.SetParameters(map[string]any{"u_scaleX": 0.0})
	if err := tr.Apply(ctx, []*gpu.Texture{src}, dst); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, _ := ctx.ReadPixels(dst)
	for i, b := range out {
		if b != 0 {
			t.Fatalf("byte %d = %d, want 0 (a degenerate transform maps nothing into view)", i, b)
		}
	}
}

func TestMergeOverOpaqueForegroundReplacesBackground(t *testing.T) {
	ctx := newTestContext(t)
	bg := uploadSolid(t, ctx, 4, 4, 0, 0, 0, 255)
	fg := uploadSolid(t, ctx, 4, 4, 255, 255, 255, 255)
	dst, _ := ctx.CreateTexture(4, 4, gpu.FormatRGBA8)

	merge := NewMerge()
	if err := merge.Compile(ctx); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if err := merge.Apply(ctx, []*gpu.Texture{bg, fg}, dst); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, _ := ctx.ReadPixels(dst)
	for i := 0; i < 4*4; i++ {
		if out[i*4] < 250 {
			t.Fatalf("pixel %d = %d, want ~255 (opaque fg over must replace bg)", i, out[i*4])
		}
	}
}

func TestMergeSmallerForegroundIsCentered(t *testing.T) {
	ctx := newTestContext(t)
	bg := uploadSolid(t, ctx, 4, 4, 0, 0, 0, 255)
	fg, err := ctx.CreateTexture(2, 2, gpu.FormatRGBA8)
	if err != nil {
		t.Fatalf("CreateTexture fg: %v", err)
	}
	pix := make([]byte, 2*2*4)
	for i := range pix {
		pix[i] = 255
	}
	if _, err := ctx.UploadImage(pix, 2, 2, gpu.FormatRGBA8, fg); err != nil {
		t.Fatalf("UploadImage fg: %v", err)
	}
	dst, _ := ctx.CreateTexture(4, 4, gpu.FormatRGBA8)

	merge := NewMerge()
	merge.Compile(ctx)
	if err := merge.Apply(ctx, []*gpu.Texture{bg, fg}, dst); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, _ := ctx.ReadPixels(dst)
	// corner pixel (0,0) must remain background (untouched by the
	// centered 2x2 foreground on a 4x4 canvas).
	if out[0] > 5 {
		t.Errorf("corner pixel = %d, want ~0 (outside centered foreground)", out[0])
	}
	// center pixel (1,1) must be white (inside the foreground).
	centerIdx := (1*4 + 1) * 4
	if out[centerIdx] < 250 {
		t.Errorf("center pixel = %d, want ~255 (inside centered foreground)", out[centerIdx])
	}
}

func TestMergeOverTransparentForegroundKeepsBackground(t *testing.T) {
	ctx := newTestContext(t)
	bg := uploadSolid(t, ctx, 2, 2, 0, 0, 255, 255)
	fg := uploadSolid(t, ctx, 2, 2, 0, 0, 0, 0)
	dst, _ := ctx.CreateTexture(2, 2, gpu.FormatRGBA8)

	merge := NewMerge()
	merge.Compile(ctx)
	if err := merge.Apply(ctx, []*gpu.Texture{bg, fg}, dst); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, _ := ctx.ReadPixels(dst)
	want, _ := ctx.ReadPixels(bg)
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d (transparent fg over must keep bg bit-exact)", i, out[i], want[i])
		}
	}
}

func TestMergeAddTransparentForegroundKeepsBackground(t *testing.T) {
	ctx := newTestContext(t)
	bg := uploadSolid(t, ctx, 2, 2, 30, 60, 90, 255)
	fg := uploadSolid(t, ctx, 2, 2, 0, 0, 0, 0)
	dst, _ := ctx.CreateTexture(2, 2, gpu.FormatRGBA8)

	merge := NewMerge()
	merge.Compile(ctx)
	merge.SetParameters(map[string]any{"u_mode": float64(ModeAdd)})
	if err := merge.Apply(ctx, []*gpu.Texture{bg, fg}, dst); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	out, _ := ctx.ReadPixels(dst)
	want, _ := ctx.ReadPixels(bg)
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d (add with transparent fg must keep bg bit-exact)", i, out[i], want[i])
		}
	}
}

func TestOverlayChannelFormula(t *testing.T) {
	if got := overlayChannel(0.2, 0.5); math.Abs(got-0.2) > 1e-9 {
		t.Errorf("overlayChannel(0.2,0.5) = %v, want 0.2", got)
	}
	if got := overlayChannel(0.8, 0.5); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("overlayChannel(0.8,0.5) = %v, want 0.8", got)
	}
}
