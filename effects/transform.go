package effects

import (
	"github.com/gogpu/reel"
	"github.com/gogpu/reel/gpu"
)

// TransformShader is the built-in shader the transform operation
// compiles to (§4.6 Transform).
const TransformShader = "transform"

func init() {
	gpu.RegisterShader(TransformShader, transformFragment)
	must(Register(Definition{
		Name:           "transform",
		DisplayName:    "Transform",
		Category:       "geometry",
		InputCount:     1,
		FragmentShader: TransformShader,
		Parameters: []ParamDecl{
			{Name: "u_x", Type: ParamFloat, Default: 0.0},
			{Name: "u_y", Type: ParamFloat, Default: 0.0},
			{Name: "u_anchorX", Type: ParamFloat, Default: 0.0},
			{Name: "u_anchorY", Type: ParamFloat, Default: 0.0},
			{Name: "u_rotation", Type: ParamAngle, Default: 0.0},
			{Name: "u_scaleX", Type: ParamFloat, Default: 1.0},
			{Name: "u_scaleY", Type: ParamFloat, Default: 1.0},
		},
	}))
}

// Transform is the geometric transform operation effect: translate,
// rotate, and scale about an anchor point, using the same composition
// reel.ComposeTRS builds for a Source node's static base transform
// (§4.8 step 1), applied here to an Operation node mid-chain instead of
// a freshly loaded source frame.
type Transform struct {
	def    *Definition
	params map[string]any
	prog   *gpu.ShaderProgram
}

// NewTransform creates a Transform effect instance.
func NewTransform() *Transform {
	def, _ := Get("transform")
	return &Transform{def: def, params: defaultParameters(def)}
}

func (t *Transform) Compile(ctx gpu.Context) error {
	if t.prog != nil {
		return nil
	}
	prog, err := ctx.CompileShader(t.def.FragmentShader)
	if err != nil {
		return err
	}
	t.prog = prog
	return nil
}

func (t *Transform) SetParameters(updates map[string]any) {
	for k, v := range updates {
		t.params[k] = v
	}
}

func (t *Transform) ParameterHash() string { return parameterHash(t.params) }

func (t *Transform) affine() reel.Affine {
	return reel.ComposeTRS(
		floatParamOf(t.params, "u_x", 0),
		floatParamOf(t.params, "u_y", 0),
		floatParamOf(t.params, "u_anchorX", 0),
		floatParamOf(t.params, "u_anchorY", 0),
		floatParamOf(t.params, "u_rotation", 0),
		floatParamOf(t.params, "u_scaleX", 1),
		floatParamOf(t.params, "u_scaleY", 1),
	)
}

// Apply inverse-maps the output canvas through the node's transform and
// draws the input there, output matching input's dimensions (§4.6
// Transform draws into an unchanged-size canvas, same as Color Adjust
// and Gaussian Blur).
func (t *Transform) Apply(ctx gpu.Context, inputs []*gpu.Texture, output *gpu.Texture) error {
	if t.prog == nil {
		return gpu.ErrNotCompiled
	}
	if len(inputs) < 1 {
		return gpu.ErrInsufficientInputs
	}
	inv, ok := t.affine().Invert()
	if err := ctx.SetRenderTarget(output); err != nil {
		return err
	}
	if !ok {
		// A zero-scale transform maps nothing into view; the output is
		// just cleared transparent.
		ctx.Clear(0, 0, 0, 0)
		return ctx.SetRenderTarget(nil)
	}
	ctx.UseShader(t.prog)
	ctx.SetUniform("u_resolution", gpu.Vec2(float64(output.Width()), float64(output.Height())))
	ctx.SetUniform("u_invTransform", gpu.Mat3(matToArray(inv)))
	ctx.BindTexture(inputs[0], 0, "u_texture")
	ctx.Clear(0, 0, 0, 0)
	ctx.DrawFullscreenQuad()
	return ctx.SetRenderTarget(nil)
}

func (t *Transform) Dispose(ctx gpu.Context) {
	if t.prog != nil {
		ctx.DeleteShader(t.prog)
		t.prog = nil
	}
}

var _ Instance = (*Transform)(nil)

// matToArray lays out an Affine's 2x3 coefficients in a 3x3 row-major
// matrix uniform (third row is the implicit 0 0 1).
func matToArray(m reel.Affine) [9]float64 {
	return [9]float64{
		m.XX, m.XY, m.TX,
		m.YX, m.YY, m.TY,
		0, 0, 1,
	}
}

// transformFragment inverse-maps each output pixel through u_invTransform
// and samples the input there; coordinates landing outside the input
// are fully transparent, the same out-of-bounds convention Merge uses
// for its foreground (§4.6).
func transformFragment(env *gpu.FragEnv, u, v float64) (r, g, b, a float64) {
	resW, resH := env.Resolution()
	if resW <= 0 || resH <= 0 {
		return env.Sample(0, u, v)
	}
	matVal, ok := env.Uniform("u_invTransform")
	if !ok {
		return env.Sample(0, u, v)
	}
	inv := reel.Affine{
		XX: matVal.Mat[0], XY: matVal.Mat[1], TX: matVal.Mat[2],
		YX: matVal.Mat[3], YY: matVal.Mat[4], TY: matVal.Mat[5],
	}
	p := inv.Apply(reel.Point{X: u * resW, Y: v * resH})
	su, sv := p.X/resW, p.Y/resH
	if su < 0 || su > 1 || sv < 0 || sv > 1 {
		return 0, 0, 0, 0
	}
	return env.Sample(0, su, sv)
}
