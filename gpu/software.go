package gpu

import (
	"fmt"

	"github.com/gogpu/reel"
)

// boundTexture records one texture bound to a unit plus the sampler
// uniform name it was bound under (§4.4 bindTexture).
type boundTexture struct {
	tex     *Texture
	sampler string
}

// Software is a fully-functional CPU backend for Context (§4.4). It
// plays the role the teacher's SoftwareRenderer plays for
// render.GPURenderer: the backend that actually executes every
// operation, with no dependency on a real GPU device. Fragment
// execution walks every pixel of the active render target and invokes
// the active shader's FragmentFunc (shaders.go), sampling bound
// textures at the interpolated texture coordinate the same way a real
// fragment shader would.
type Software struct {
	initialized bool

	canvasWidth  int
	canvasHeight int
	canvas       []byte // RGBA8, canvasWidth*canvasHeight*4

	target *Texture // nil means the canvas

	activeShader *ShaderProgram
	uniforms     map[string]UniformValue
	bound        map[int]boundTexture

	live map[uint64]*Texture
}

// NewSoftware creates an uninitialized software context. Call Init
// before use.
func NewSoftware() *Software {
	return &Software{
		uniforms: make(map[string]UniformValue),
		bound:    make(map[int]boundTexture),
		live:     make(map[uint64]*Texture),
	}
}

func (s *Software) Init(opts InitOptions) error {
	s.initialized = true
	if s.canvasWidth == 0 {
		s.canvasWidth, s.canvasHeight = 1, 1
		s.canvas = make([]byte, 4)
	}
	reel.Logger().Info("gpu: software context initialized")
	return nil
}

func (s *Software) requireInit() error {
	if !s.initialized {
		return ErrBackendUnavailable
	}
	return nil
}

func (s *Software) CreateTexture(width, height int, format Format) (*Texture, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, ErrFramebufferIncomplete
	}
	tex := &Texture{
		id:     nextTextureID(),
		width:  width,
		height: height,
		format: format,
		pixels: make([]byte, width*height*4),
	}
	s.live[tex.id] = tex
	return tex, nil
}

func (s *Software) UploadImage(pix []byte, width, height int, format Format, tex *Texture) (*Texture, error) {
	if err := s.requireInit(); err != nil {
		return nil, err
	}
	if tex == nil {
		t, err := s.CreateTexture(width, height, format)
		if err != nil {
			return nil, err
		}
		tex = t
	} else if err := tex.checkLive(); err != nil {
		return nil, err
	}
	if len(pix) != width*height*4 {
		return nil, fmt.Errorf("gpu: upload size mismatch: got %d bytes, want %d", len(pix), width*height*4)
	}
	copy(tex.pixels, pix)
	return tex, nil
}

func (s *Software) CompileShader(name string) (*ShaderProgram, error) {
	shaderMu.RLock()
	_, ok := builtinShaders[name]
	shaderMu.RUnlock()
	if !ok {
		return nil, &CompileError{Stage: "fragment", Diagnostic: "unknown built-in shader: " + name}
	}
	return &ShaderProgram{Name: name}, nil
}

func (s *Software) DeleteShader(prog *ShaderProgram) {
	if prog == nil {
		return
	}
	prog.mu.Lock()
	prog.disposed = true
	prog.mu.Unlock()
	if s.activeShader == prog {
		s.activeShader = nil
	}
}

func (s *Software) SetRenderTarget(tex *Texture) error {
	if tex != nil {
		if err := tex.checkLive(); err != nil {
			return err
		}
	}
	s.target = tex
	return nil
}

func (s *Software) Clear(r, g, b, a float64) {
	buf, w, h := s.activeBuffer()
	pr, pg, pb, pa := premultiplyFloat(r, g, b, a)
	for i := 0; i < w*h; i++ {
		buf[i*4+0] = pr
		buf[i*4+1] = pg
		buf[i*4+2] = pb
		buf[i*4+3] = pa
	}
}

func (s *Software) UseShader(prog *ShaderProgram) {
	s.activeShader = prog
	s.uniforms = make(map[string]UniformValue)
	s.bound = make(map[int]boundTexture)
}

func (s *Software) SetUniform(name string, value UniformValue) {
	if s.uniforms == nil {
		s.uniforms = make(map[string]UniformValue)
	}
	s.uniforms[name] = value
}

func (s *Software) BindTexture(tex *Texture, unit int, samplerName string) {
	if s.bound == nil {
		s.bound = make(map[int]boundTexture)
	}
	s.bound[unit] = boundTexture{tex: tex, sampler: samplerName}
	s.SetUniform(samplerName, Sampler(unit))
}

func (s *Software) DrawFullscreenQuad() {
	if s.activeShader == nil {
		return
	}
	shaderMu.RLock()
	frag, ok := builtinShaders[s.activeShader.Name]
	shaderMu.RUnlock()
	if !ok {
		return
	}
	buf, w, h := s.activeBuffer()
	env := &FragEnv{uniforms: s.uniforms, bound: s.bound}
	for y := 0; y < h; y++ {
		v := (float64(y) + 0.5) / float64(h)
		for x := 0; x < w; x++ {
			u := (float64(x) + 0.5) / float64(w)
			r, g, b, a := frag(env, u, v)
			pr, pg, pb, pa := premultiplyFloat(r, g, b, a)
			i := (y*w + x) * 4
			buf[i+0] = pr
			buf[i+1] = pg
			buf[i+2] = pb
			buf[i+3] = pa
		}
	}
}

func (s *Software) BlitToCanvas(tex *Texture) error {
	if err := tex.checkLive(); err != nil {
		return err
	}
	if s.canvasWidth != tex.width || s.canvasHeight != tex.height {
		s.canvasWidth, s.canvasHeight = tex.width, tex.height
		s.canvas = make([]byte, tex.width*tex.height*4)
	}
	copy(s.canvas, tex.pixels)
	return nil
}

func (s *Software) CopyTexture(src, dst *Texture) error {
	if err := src.checkLive(); err != nil {
		return err
	}
	if err := dst.checkLive(); err != nil {
		return err
	}
	if src.width != dst.width || src.height != dst.height {
		return ErrFramebufferIncomplete
	}
	copy(dst.pixels, src.pixels)
	return nil
}

func (s *Software) ReadPixels(tex *Texture) ([]byte, error) {
	if err := tex.checkLive(); err != nil {
		return nil, err
	}
	out := make([]byte, len(tex.pixels))
	copy(out, tex.pixels)
	return out, nil
}

func (s *Software) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return ErrFramebufferIncomplete
	}
	s.canvasWidth, s.canvasHeight = width, height
	s.canvas = make([]byte, width*height*4)
	return nil
}

// DisposeTexture marks tex disposed and drops it from this context's
// live set, without touching any other texture.
func (s *Software) DisposeTexture(tex *Texture) {
	if tex == nil {
		return
	}
	tex.mu.Lock()
	tex.disposed = true
	tex.mu.Unlock()
	delete(s.live, tex.id)
}

func (s *Software) Dispose() {
	for id, tex := range s.live {
		tex.mu.Lock()
		tex.disposed = true
		tex.mu.Unlock()
		delete(s.live, id)
	}
	s.initialized = false
}

// Canvas returns the current backbuffer contents (RGBA8, premultiplied)
// and its dimensions. Used by noderender to transfer to the visible
// 2-D canvas (§4.8 step 6).
func (s *Software) Canvas() ([]byte, int, int) {
	out := make([]byte, len(s.canvas))
	copy(out, s.canvas)
	return out, s.canvasWidth, s.canvasHeight
}

func (s *Software) activeBuffer() ([]byte, int, int) {
	if s.target != nil {
		return s.target.pixels, s.target.width, s.target.height
	}
	if s.canvas == nil {
		s.canvas = make([]byte, s.canvasWidth*s.canvasHeight*4)
	}
	return s.canvas, s.canvasWidth, s.canvasHeight
}

func premultiplyFloat(r, g, b, a float64) (pr, pg, pb, pa uint8) {
	a = clampUnit(a)
	return toByte(clampUnit(r) * a), toByte(clampUnit(g) * a), toByte(clampUnit(b) * a), toByte(a)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func toByte(v float64) uint8 { return uint8(v*255 + 0.5) }

var _ Context = (*Software)(nil)
