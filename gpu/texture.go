package gpu

import "sync"

// textureSeq assigns process-wide unique texture ids, mirroring how the
// teacher's gpucore package treats resource ids as opaque uint64
// handles (gpucore/types.go's TextureID).
var textureSeq struct {
	mu   sync.Mutex
	next uint64
}

func nextTextureID() uint64 {
	textureSeq.mu.Lock()
	defer textureSeq.mu.Unlock()
	textureSeq.next++
	return textureSeq.next
}

// Texture is an addressable rectangular 2D image owned by a backend
// (§3). After Dispose, no operation on the texture is valid.
type Texture struct {
	id     uint64
	width  int
	height int
	format Format

	mu       sync.Mutex
	disposed bool

	// pixels backs the CPU-side storage that both backends read and
	// write; wgpubackend keeps any paired hal.Texture in its own map
	// keyed by ID, and neither backend sets backend.
	pixels  []byte
	backend any
}

// ID returns the texture's opaque identifier.
func (t *Texture) ID() uint64 { return t.id }

// Width returns the texture width in pixels.
func (t *Texture) Width() int { return t.width }

// Height returns the texture height in pixels.
func (t *Texture) Height() int { return t.height }

// Format returns the texture pixel format.
func (t *Texture) Format() Format { return t.format }

// Disposed reports whether Dispose has been called.
func (t *Texture) Disposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

// checkLive returns ErrTextureDisposed if the texture has been disposed.
func (t *Texture) checkLive() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return ErrTextureDisposed
	}
	return nil
}

// ShaderProgram is a compiled program returned by Context.CompileShader.
// For the software context, the "program" is a named entry in the
// built-in shader table (shaders.go); it carries no GPU handle.
type ShaderProgram struct {
	Name string

	mu       sync.Mutex
	disposed bool
}
