package gpu

import "errors"

// Errors returned by Context operations (§7).
var (
	ErrBackendUnavailable    = errors.New("gpu: backend unavailable")
	ErrOutOfMemory           = errors.New("gpu: out of memory")
	ErrFramebufferIncomplete = errors.New("gpu: framebuffer incomplete")
	ErrNotCompiled           = errors.New("gpu: shader not compiled")
	ErrInsufficientInputs    = errors.New("gpu: insufficient inputs")
	ErrTextureDisposed       = errors.New("gpu: texture disposed")
)

// CompileError reports a shader compile or link failure, carrying the
// stage and diagnostic (§7).
type CompileError struct {
	Stage      string // "vertex", "fragment", or "link"
	Diagnostic string
}

func (e *CompileError) Error() string {
	return "gpu: " + e.Stage + " compile error: " + e.Diagnostic
}
