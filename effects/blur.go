package effects

import (
	"math"

	"github.com/gogpu/reel/gpu"
)

// GaussianBlurShader is the built-in shader both blur passes compile to
// (§4.6 Gaussian Blur). A single FragmentFunc handles both the
// horizontal and vertical pass; which one runs is selected by the
// u_direction uniform.
const GaussianBlurShader = "gaussianBlurPass"

func init() {
	gpu.RegisterShader(GaussianBlurShader, gaussianBlurFragment)
	must(Register(Definition{
		Name:           "gaussianBlur",
		DisplayName:    "Gaussian Blur",
		Category:       "filter",
		InputCount:     1,
		FragmentShader: GaussianBlurShader,
		Parameters: []ParamDecl{
			{Name: "u_radius", Type: ParamFloat, Default: 0.0, Min: f(0), Max: f(250)},
		},
	}))
}

// GaussianBlur is a two-pass separable blur effect. Unlike the generic
// single-pass Effect, it owns a scratch texture between the horizontal
// and vertical passes (§4.6): "a temporary texture matching the input
// dimensions and format is kept between passes; it is disposed on
// effect disposal and re-created on dimension change."
type GaussianBlur struct {
	def     *Definition
	params  map[string]any
	prog    *gpu.ShaderProgram
	scratch *gpu.Texture
}

// NewGaussianBlur creates a Gaussian Blur effect instance.
func NewGaussianBlur() *GaussianBlur {
	def, _ := Get("gaussianBlur")
	return &GaussianBlur{def: def, params: defaultParameters(def)}
}

func (g *GaussianBlur) Compile(ctx gpu.Context) error {
	if g.prog != nil {
		return nil
	}
	prog, err := ctx.CompileShader(g.def.FragmentShader)
	if err != nil {
		return err
	}
	g.prog = prog
	return nil
}

func (g *GaussianBlur) SetParameters(updates map[string]any) {
	for k, v := range updates {
		g.params[k] = v
	}
}

func (g *GaussianBlur) ParameterHash() string { return parameterHash(g.params) }

func (g *GaussianBlur) radius() float64 { return floatParamOf(g.params, "u_radius", 0) }

// Apply runs the horizontal pass into a scratch texture, then the
// vertical pass from scratch into output. If radius ≤ 0, input is
// copied straight to output and no pass runs (§4.6).
func (g *GaussianBlur) Apply(ctx gpu.Context, inputs []*gpu.Texture, output *gpu.Texture) error {
	if g.prog == nil {
		return gpu.ErrNotCompiled
	}
	if len(inputs) < 1 {
		return gpu.ErrInsufficientInputs
	}
	radius := g.radius()
	if radius <= 0 {
		return ctx.CopyTexture(inputs[0], output)
	}

	if err := g.ensureScratch(ctx, output); err != nil {
		return err
	}

	if err := g.pass(ctx, inputs[0], g.scratch, radius, 1, 0); err != nil {
		return err
	}
	return g.pass(ctx, g.scratch, output, radius, 0, 1)
}

func (g *GaussianBlur) pass(ctx gpu.Context, src, dst *gpu.Texture, radius, dx, dy float64) error {
	if err := ctx.SetRenderTarget(dst); err != nil {
		return err
	}
	ctx.UseShader(g.prog)
	ctx.SetUniform("u_resolution", gpu.Vec2(float64(dst.Width()), float64(dst.Height())))
	ctx.SetUniform("u_radius", gpu.Float(radius))
	ctx.SetUniform("u_direction", gpu.Vec2(dx, dy))
	ctx.BindTexture(src, 0, "u_texture")
	ctx.Clear(0, 0, 0, 0)
	ctx.DrawFullscreenQuad()
	return ctx.SetRenderTarget(nil)
}

func (g *GaussianBlur) ensureScratch(ctx gpu.Context, output *gpu.Texture) error {
	if g.scratch != nil && g.scratch.Width() == output.Width() && g.scratch.Height() == output.Height() && g.scratch.Format() == output.Format() {
		return nil
	}
	if g.scratch != nil {
		ctx.DisposeTexture(g.scratch)
		g.scratch = nil
	}
	tex, err := ctx.CreateTexture(output.Width(), output.Height(), output.Format())
	if err != nil {
		return err
	}
	g.scratch = tex
	return nil
}

func (g *GaussianBlur) Dispose(ctx gpu.Context) {
	if g.prog != nil {
		ctx.DeleteShader(g.prog)
		g.prog = nil
	}
	if g.scratch != nil {
		ctx.DisposeTexture(g.scratch)
		g.scratch = nil
	}
}

var _ Instance = (*GaussianBlur)(nil)

func floatParamOf(params map[string]any, name string, fallback float64) float64 {
	if v, ok := params[name]; ok {
		switch t := v.(type) {
		case float64:
			return t
		case int:
			return float64(t)
		}
	}
	return fallback
}

// gaussianBlurFragment runs one direction of the separable kernel: the
// sample offset is direction·texelSize·i for i in [-half, half],
// weighted by exp(-i²/(2σ²)) and normalized by the sum of weights
// (§4.6). u_direction is (1,0) for the horizontal pass and (0,1) for
// the vertical pass.
func gaussianBlurFragment(env *gpu.FragEnv, u, v float64) (r, g, b, a float64) {
	radius := uniformFloat(env, "u_radius", 0)
	dirVal, _ := env.Uniform("u_direction")
	dx, dy := dirVal.Vec[0], dirVal.Vec[1]
	resW, resH := env.Resolution()
	if resW <= 0 || resH <= 0 {
		return env.Sample(0, u, v)
	}
	texelX, texelY := 1/resW, 1/resH

	sigma := radius / 3
	if sigma < 1e-3 {
		sigma = 1e-3
	}
	half := int(math.Ceil(radius))
	if half > 63 {
		half = 63
	}

	var sumR, sumG, sumB, sumA, sumW float64
	for i := -half; i <= half; i++ {
		weight := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		su := u + dx*texelX*float64(i)
		sv := v + dy*texelY*float64(i)
		sr, sg, sb, sa := env.Sample(0, su, sv)
		sumR += sr * weight
		sumG += sg * weight
		sumB += sb * weight
		sumA += sa * weight
		sumW += weight
	}
	if sumW == 0 {
		return env.Sample(0, u, v)
	}
	return sumR / sumW, sumG / sumW, sumB / sumW, sumA / sumW
}
