package texturepool

import (
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

func TestAcquireReusesReleasedTexture(t *testing.T) {
	p := New(newTestContext(t), Options{})
	tex1, err := p.Acquire(4, 4, gpu.FormatRGBA8)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release(tex1)

	tex2, err := p.Acquire(4, 4, gpu.FormatRGBA8)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if tex2 != tex1 {
		t.Error("expected Acquire to reuse the released texture from its bucket")
	}
	stats := p.Stats()
	if stats.ActiveCount != 1 || stats.PooledCount != 0 {
		t.Errorf("stats = %+v, want ActiveCount=1 PooledCount=0", stats)
	}
}

func TestAcquireDifferentBucketCreatesNew(t *testing.T) {
	p := New(newTestContext(t), Options{})
	tex1, _ := p.Acquire(4, 4, gpu.FormatRGBA8)
	p.Release(tex1)

	tex2, err := p.Acquire(8, 8, gpu.FormatRGBA8)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if tex2 == tex1 {
		t.Error("expected a different bucket to allocate a new texture")
	}
}

func TestEvictIfNeededRespectsMaxTextures(t *testing.T) {
	p := New(newTestContext(t), Options{MaxTextures: 1})
	texA, err := p.Acquire(4, 4, gpu.FormatRGBA8)
	if err != nil {
		t.Fatalf("Acquire A: %v", err)
	}
	p.Release(texA)

	texB, err := p.Acquire(8, 8, gpu.FormatRGBA8)
	if err != nil {
		t.Fatalf("Acquire B: %v", err)
	}
	if !texA.Disposed() {
		t.Error("expected texA to be evicted once maxTextures=1 was exceeded")
	}
	stats := p.Stats()
	if stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}
	_ = texB
}

func TestEvictIfNeededSkipsActiveTextures(t *testing.T) {
	p := New(newTestContext(t), Options{MaxTextures: 1})
	texA, err := p.Acquire(4, 4, gpu.FormatRGBA8)
	if err != nil {
		t.Fatalf("Acquire A: %v", err)
	}
	// texA stays in use; the cap is soft, so a second acquire must
	// proceed rather than block or error.
	texB, err := p.Acquire(8, 8, gpu.FormatRGBA8)
	if err != nil {
		t.Fatalf("Acquire B: %v", err)
	}
	if texA.Disposed() {
		t.Error("an in-use texture must never be evicted")
	}
	_ = texB
}

func TestReleaseOfForeignTextureIsNoop(t *testing.T) {
	p := New(newTestContext(t), Options{})
	ctx2 := newTestContext(t)
	foreign, _ := ctx2.CreateTexture(4, 4, gpu.FormatRGBA8)
	p.Release(foreign) // must not panic
	if foreign.Disposed() {
		t.Error("Release of an unowned texture must not dispose it")
	}
}

func TestClearPooledLeavesActive(t *testing.T) {
	p := New(newTestContext(t), Options{})
	active, _ := p.Acquire(4, 4, gpu.FormatRGBA8)
	idle, _ := p.Acquire(8, 8, gpu.FormatRGBA8)
	p.Release(idle)

	p.ClearPooled()

	if active.Disposed() {
		t.Error("ClearPooled must not dispose active textures")
	}
	if !idle.Disposed() {
		t.Error("ClearPooled must dispose released textures")
	}
}

func TestClearAllDisposesEverything(t *testing.T) {
	p := New(newTestContext(t), Options{})
	tex, _ := p.Acquire(4, 4, gpu.FormatRGBA8)
	p.ClearAll()
	if !tex.Disposed() {
		t.Error("ClearAll must dispose active textures too")
	}
	stats := p.Stats()
	if stats.ActiveCount != 0 || stats.TotalBytes != 0 {
		t.Errorf("stats after ClearAll = %+v, want zeroed", stats)
	}
}

func TestMemoryAccountingTracksFormatCost(t *testing.T) {
	p := New(newTestContext(t), Options{})
	_, err := p.Acquire(10, 10, gpu.FormatRGBA32F)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	want := int64(10*10) * gpu.FormatRGBA32F.BytesPerPixel()
	if got := p.Stats().TotalBytes; got != want {
		t.Errorf("TotalBytes = %d, want %d", got, want)
	}
}
