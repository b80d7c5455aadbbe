package gpu

import "sync"

// FragEnv exposes the active shader's uniforms and bound textures to a
// FragmentFunc, standing in for the uniform/sampler state a real
// fragment shader would read (§4.4).
type FragEnv struct {
	uniforms map[string]UniformValue
	bound    map[int]boundTexture
}

// Uniform returns the named uniform and whether it was set. Looking up
// an unset uniform mirrors §4.4's "unknown name silently ignored": the
// caller sees ok=false and is expected to fall back to a default.
func (e *FragEnv) Uniform(name string) (UniformValue, bool) {
	v, ok := e.uniforms[name]
	return v, ok
}

// Sample reads the texture bound to unit at normalized coordinates
// (u, v) using bilinear filtering with edge-clamp, the same addressing
// mode the teacher's internal/filter package assumes at image borders.
func (e *FragEnv) Sample(unit int, u, v float64) (r, g, b, a float64) {
	bt, ok := e.bound[unit]
	if !ok || bt.tex == nil {
		return 0, 0, 0, 0
	}
	return sampleBilinear(bt.tex, u, v)
}

// Resolution returns the current render target's dimensions, mirroring
// the u_resolution uniform every Effect.apply call sets (§4.6).
func (e *FragEnv) Resolution() (float64, float64) {
	v, ok := e.uniforms["u_resolution"]
	if !ok {
		return 0, 0
	}
	return v.Vec[0], v.Vec[1]
}

func sampleBilinear(tex *Texture, u, v float64) (r, g, b, a float64) {
	x := u*float64(tex.width) - 0.5
	y := v*float64(tex.height) - 0.5
	x0, y0 := int(floor(x)), int(floor(y))
	x1, y1 := x0+1, y0+1
	fx, fy := x-float64(x0), y-float64(y0)

	c00 := fetchClamped(tex, x0, y0)
	c10 := fetchClamped(tex, x1, y0)
	c01 := fetchClamped(tex, x0, y1)
	c11 := fetchClamped(tex, x1, y1)

	lerp := func(a, b, t float64) float64 { return a + (b-a)*t }
	blend := func(i int) float64 {
		top := lerp(c00[i], c10[i], fx)
		bot := lerp(c01[i], c11[i], fx)
		return lerp(top, bot, fy)
	}
	return blend(0), blend(1), blend(2), blend(3)
}

func fetchClamped(tex *Texture, x, y int) [4]float64 {
	if x < 0 {
		x = 0
	}
	if x >= tex.width {
		x = tex.width - 1
	}
	if y < 0 {
		y = 0
	}
	if y >= tex.height {
		y = tex.height - 1
	}
	i := (y*tex.width + x) * 4
	a := float64(tex.pixels[i+3]) / 255
	if a == 0 {
		return [4]float64{0, 0, 0, 0}
	}
	return [4]float64{
		float64(tex.pixels[i+0]) / 255 / a,
		float64(tex.pixels[i+1]) / 255 / a,
		float64(tex.pixels[i+2]) / 255 / a,
		a,
	}
}

func floor(v float64) float64 {
	i := int(v)
	if v < 0 && float64(i) != v {
		i--
	}
	return float64(i)
}

// FragmentFunc computes straight-alpha color at a normalized texture
// coordinate, standing in for a compiled fragment shader (§4.4
// compileShader). This is the seam where a production build would
// route shader source through github.com/gogpu/naga for cross-backend
// translation; this module ships only the CPU execution path, so no
// such translation occurs (see DESIGN.md).
type FragmentFunc func(env *FragEnv, u, v float64) (r, g, b, a float64)

var (
	shaderMu       sync.RWMutex
	builtinShaders = map[string]FragmentFunc{
		"passthrough": passthroughShader,
	}
)

// RegisterShader adds a named built-in shader to the table CompileShader
// resolves names against. Called from package effects' init to install
// colorAdjust/gaussianBlur/merge/transform's fragment logic without gpu importing
// effects (avoiding an import cycle, the same separation the teacher
// keeps between backend/registry.go and its concrete backend packages).
func RegisterShader(name string, fn FragmentFunc) {
	shaderMu.Lock()
	defer shaderMu.Unlock()
	builtinShaders[name] = fn
}

func passthroughShader(env *FragEnv, u, v float64) (r, g, b, a float64) {
	return env.Sample(0, u, v)
}
