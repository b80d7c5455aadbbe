// Package gpu implements the GPU Context Abstraction (C4): a
// backend-neutral set of texture, shader, render-target, and draw
// operations (§4.4).
//
// The package is shaped after the teacher's render package
// (render/target.go, render/device.go, render/gpu_renderer.go), which
// defines a RenderTarget/DeviceHandle vocabulary on top of the real
// domain dependencies github.com/gogpu/gpucontext and
// github.com/gogpu/gputypes, and whose own GPURenderer is an honest
// Phase-1 stub that always falls back to software rendering. Context
// here plays the same role: Software is the fully functional backend;
// wgpubackend.Context wires real GPU device/texture bookkeeping through
// github.com/gogpu/wgpu's hal package but defers shader execution to
// the software path, exactly like the teacher's own GPURenderer.
package gpu

import (
	"github.com/gogpu/gputypes"
)

// Format is the texture pixel format (§3): rgba8, rgba16f, rgba32f.
type Format uint8

// Supported texture formats.
const (
	FormatRGBA8 Format = iota
	FormatRGBA16F
	FormatRGBA32F
)

// BytesPerPixel returns the per-pixel memory cost used by the Texture
// Pool's accounting (§4.5).
func (f Format) BytesPerPixel() int64 {
	switch f {
	case FormatRGBA8:
		return 4
	case FormatRGBA16F:
		return 8
	case FormatRGBA32F:
		return 16
	default:
		return 4
	}
}

// ToGPUTypes maps Format onto the real gputypes.TextureFormat vocabulary
// the wgpubackend exercises.
func (f Format) ToGPUTypes() gputypes.TextureFormat {
	switch f {
	case FormatRGBA16F:
		return gputypes.TextureFormatRGBA16Float
	case FormatRGBA32F:
		return gputypes.TextureFormatRGBA32Float
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

// InitOptions configures Context.Init (§4.4).
type InitOptions struct {
	PowerPreference       string
	Antialias             bool
	PreserveDrawingBuffer bool
}

// UniformValue is the tagged value accepted by SetUniform: a scalar,
// vector, matrix, or sampler (texture unit) index.
type UniformValue struct {
	Kind   UniformKind
	Scalar float64
	Vec    [4]float64
	Mat    [9]float64 // 3x3, row-major
	Unit   int
}

// UniformKind tags the active field of UniformValue.
type UniformKind uint8

const (
	UniformFloat UniformKind = iota
	UniformVec2
	UniformVec3
	UniformVec4
	UniformMat3
	UniformSampler
)

// Float builds a scalar uniform value.
func Float(v float64) UniformValue { return UniformValue{Kind: UniformFloat, Scalar: v} }

// Vec2 builds a 2-component uniform value.
func Vec2(x, y float64) UniformValue {
	return UniformValue{Kind: UniformVec2, Vec: [4]float64{x, y}}
}

// Sampler builds a texture-unit uniform value.
func Sampler(unit int) UniformValue { return UniformValue{Kind: UniformSampler, Unit: unit} }

// Mat3 builds a row-major 3x3 matrix uniform value.
func Mat3(m [9]float64) UniformValue { return UniformValue{Kind: UniformMat3, Mat: m} }

// Context is the backend-neutral GPU operation surface (§4.4's op
// table). One Context is owned by exactly one noderender.NodeRenderer
// (§5 "Shared resources").
type Context interface {
	// Init prepares the context. Must be called before any other
	// operation.
	Init(opts InitOptions) error

	// CreateTexture allocates a render-targetable texture with an
	// attached framebuffer.
	CreateTexture(width, height int, format Format) (*Texture, error)

	// UploadImage uploads decoded pixel data into a texture. If tex is
	// nil a new texture sized to the image is created and returned.
	UploadImage(pix []byte, width, height int, format Format, tex *Texture) (*Texture, error)

	// CompileShader compiles a vertex+fragment program, identified by
	// name in this context's built-in shader table (shaders.go).
	CompileShader(name string) (*ShaderProgram, error)

	// DeleteShader releases a compiled program's resources.
	DeleteShader(prog *ShaderProgram)

	// SetRenderTarget directs subsequent draws at tex, or the canvas if
	// tex is nil.
	SetRenderTarget(tex *Texture) error

	// Clear fills the current render target with a premultiplied color.
	Clear(r, g, b, a float64)

	// UseShader activates prog for subsequent uniform sets and draws.
	UseShader(prog *ShaderProgram)

	// SetUniform sets a uniform on the active shader. Unknown names are
	// silently ignored (§4.4, "optimized-out safe").
	SetUniform(name string, value UniformValue)

	// BindTexture binds tex to a texture unit and sets the named
	// sampler uniform to that unit.
	BindTexture(tex *Texture, unit int, samplerName string)

	// DrawFullscreenQuad issues one draw of the context's pre-bound unit
	// quad geometry.
	DrawFullscreenQuad()

	// BlitToCanvas draws tex to the backbuffer with the passthrough
	// shader.
	BlitToCanvas(tex *Texture) error

	// CopyTexture passthrough-blits src into dst.
	CopyTexture(src, dst *Texture) error

	// ReadPixels reads back tex's contents as host-side RGBA8 bytes,
	// exactly width*height*4 long.
	ReadPixels(tex *Texture) ([]byte, error)

	// Resize changes the backbuffer dimensions.
	Resize(width, height int) error

	// DisposeTexture releases a single texture's resources. Used by the
	// Texture Pool (§4.5) to evict individual entries without tearing
	// down the whole context.
	DisposeTexture(tex *Texture)

	// Dispose releases the context's own resources (fullscreen quad,
	// passthrough shader) and every texture still live in this context.
	Dispose()
}
