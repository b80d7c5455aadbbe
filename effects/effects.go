// Package effects is the Effect Registry & Effects component (C6,
// §4.6): a process-wide, name-keyed registry of effect definitions
// (grounded on backend/registry.go's name-keyed factory map) plus four
// concrete effects — Color Adjust, Gaussian Blur, Merge, and Transform — whose
// fragment logic is installed into package gpu's built-in shader table
// via gpu.RegisterShader at init, so the Render Pipeline (C7) can
// compile and run them through an ordinary gpu.Context without effects
// and gpu importing each other.
package effects

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gogpu/reel/gpu"
)

// ParamType is the declared type of an effect parameter (§4.6).
type ParamType string

const (
	ParamFloat ParamType = "float"
	ParamInt   ParamType = "int"
	ParamBool  ParamType = "bool"
	ParamVec2  ParamType = "vec2"
	ParamVec3  ParamType = "vec3"
	ParamVec4  ParamType = "vec4"
	ParamColor ParamType = "color"
	ParamAngle ParamType = "angle"
	ParamEnum  ParamType = "enum"
)

// ParamDecl declares one effect parameter and its default/range.
type ParamDecl struct {
	Name    string
	Type    ParamType
	Default any
	Min     *float64
	Max     *float64
	Step    *float64
	Options []string
}

// Definition describes an effect's identity, shader name, and parameter
// schema (§4.6 EffectDefinition). FragmentShader names the entry in
// package gpu's built-in shader table this definition compiles to.
type Definition struct {
	Name           string
	DisplayName    string
	Category       string
	InputCount     int
	Parameters     []ParamDecl
	FragmentShader string
}

// DuplicateEffect is returned by Register when name is already taken.
type DuplicateEffect struct {
	Name string
}

func (e *DuplicateEffect) Error() string {
	return fmt.Sprintf("effects: %q is already registered", e.Name)
}

var (
	registryMu  sync.RWMutex
	definitions = make(map[string]*Definition)
)

// Register adds a definition to the process-wide registry. Registering
// the same name twice returns a *DuplicateEffect and leaves the
// existing registration untouched.
func Register(def Definition) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := definitions[def.Name]; ok {
		return &DuplicateEffect{Name: def.Name}
	}
	d := def
	definitions[def.Name] = &d
	return nil
}

// Get looks up a registered definition by name in O(1).
func Get(name string) (*Definition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := definitions[name]
	return d, ok
}

// defaultParameters seeds a fresh parameter map from a definition's
// declared defaults.
func defaultParameters(def *Definition) map[string]any {
	m := make(map[string]any, len(def.Parameters))
	for _, p := range def.Parameters {
		m[p.Name] = p.Default
	}
	return m
}

// HashParameters returns a canonical string uniquely determined by
// sorted (name, value) pairs, exported so the Render Pipeline can
// compute the same hash from a RenderNode's raw parameter map without
// constructing an Instance (§4.7 step 2's parameterHash dirty check).
func HashParameters(params map[string]any) string { return parameterHash(params) }

// parameterHash returns a canonical string uniquely determined by
// sorted (name, value) pairs (§4.6 parameterHash).
func parameterHash(params map[string]any) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(formatValue(params[name]))
		b.WriteByte(';')
	}
	return b.String()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Instance is the common surface the Render Pipeline (C7) drives: any
// per-context effect instance, whether the generic single-pass Effect
// or a specialized multi-pass one like GaussianBlur or Merge.
type Instance interface {
	Compile(ctx gpu.Context) error
	SetParameters(updates map[string]any)
	ParameterHash() string
	Apply(ctx gpu.Context, inputs []*gpu.Texture, output *gpu.Texture) error
	Dispose(ctx gpu.Context)
}

// NewInstance creates the correct Instance type for a registered
// effect name. colorAdjust uses the generic single-pass Effect;
// gaussianBlur, merge, and transform are hand-built types needing
// uniforms (scratch texture, second input, inverse matrix) the generic
// Effect.Apply doesn't set.
func NewInstance(name string) (Instance, error) {
	switch name {
	case "gaussianBlur":
		return NewGaussianBlur(), nil
	case "merge":
		return NewMerge(), nil
	case "transform":
		return NewTransform(), nil
	default:
		def, ok := Get(name)
		if !ok {
			return nil, fmt.Errorf("effects: unknown effect %q", name)
		}
		return New(def), nil
	}
}

// Effect is a per-context instance of a registered effect: a compiled
// shader plus a parameter map seeded from the definition's defaults
// (§4.6 "Effect instance"). One Effect is owned by exactly one Render
// Pipeline cache entry; there is no global cross-context compiled-
// shader cache.
type Effect struct {
	def    *Definition
	params map[string]any
	prog   *gpu.ShaderProgram
}

// New creates an Effect instance for def, seeded with declared defaults.
func New(def *Definition) *Effect {
	return &Effect{def: def, params: defaultParameters(def)}
}

// Compile is idempotent: it may be called before the first Apply, and
// repeated calls are no-ops once a program is compiled.
func (e *Effect) Compile(ctx gpu.Context) error {
	if e.prog != nil {
		return nil
	}
	prog, err := ctx.CompileShader(e.def.FragmentShader)
	if err != nil {
		return err
	}
	e.prog = prog
	return nil
}

// SetParameters merges updates into the current parameter map.
func (e *Effect) SetParameters(updates map[string]any) {
	for k, v := range updates {
		e.params[k] = v
	}
}

// ParameterHash returns a canonical hash of the current parameter
// values, used by the Render Pipeline's cache-dirty check (§4.7).
func (e *Effect) ParameterHash() string {
	return parameterHash(e.params)
}

// Apply binds the shader, uploads parameters, sets u_resolution, binds
// inputs to unit 0 (u_texture) and units ≥1 (u_texture<i>), clears the
// render target to transparent, draws the quad, and unbinds the
// target (§4.6 apply).
func (e *Effect) Apply(ctx gpu.Context, inputs []*gpu.Texture, output *gpu.Texture) error {
	if e.prog == nil {
		return gpu.ErrNotCompiled
	}
	if len(inputs) < e.def.InputCount {
		return gpu.ErrInsufficientInputs
	}
	if err := ctx.SetRenderTarget(output); err != nil {
		return err
	}
	ctx.UseShader(e.prog)
	ctx.SetUniform("u_resolution", gpu.Vec2(float64(output.Width()), float64(output.Height())))
	e.uploadParameters(ctx)
	for i, in := range inputs {
		name := "u_texture"
		if i > 0 {
			name = fmt.Sprintf("u_texture%d", i)
		}
		ctx.BindTexture(in, i, name)
	}
	ctx.Clear(0, 0, 0, 0)
	ctx.DrawFullscreenQuad()
	return ctx.SetRenderTarget(nil)
}

func (e *Effect) uploadParameters(ctx gpu.Context) {
	for name, v := range e.params {
		switch t := v.(type) {
		case float64:
			ctx.SetUniform(name, gpu.Float(t))
		case int:
			ctx.SetUniform(name, gpu.Float(float64(t)))
		case bool:
			if t {
				ctx.SetUniform(name, gpu.Float(1))
			} else {
				ctx.SetUniform(name, gpu.Float(0))
			}
		}
	}
}

// Dispose releases the compiled shader.
func (e *Effect) Dispose(ctx gpu.Context) {
	if e.prog != nil {
		ctx.DeleteShader(e.prog)
		e.prog = nil
	}
}

var _ Instance = (*Effect)(nil)
