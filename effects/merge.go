package effects

import "github.com/gogpu/reel/gpu"

// MergeShader is the built-in shader Merge compiles to (§4.6 Merge).
const MergeShader = "merge"

// Blend mode integers, encoded exactly as §4.6's table.
const (
	ModeOver = iota
	ModeUnder
	ModeAdd
	ModeSubtract
	ModeScreen
	ModeOverlay
)

func init() {
	gpu.RegisterShader(MergeShader, mergeFragment)
	must(Register(Definition{
		Name:           "merge",
		DisplayName:    "Merge",
		Category:       "compositing",
		InputCount:     2,
		FragmentShader: MergeShader,
		Parameters: []ParamDecl{
			{Name: "u_mode", Type: ParamEnum, Default: float64(ModeOver), Options: []string{"over", "under", "add", "subtract", "screen", "overlay"}},
			{Name: "u_opacity", Type: ParamFloat, Default: 1.0, Min: f(0), Max: f(1)},
			{Name: "u_fgWidth", Type: ParamFloat, Default: 0.0, Min: f(0)},
			{Name: "u_fgHeight", Type: ParamFloat, Default: 0.0, Min: f(0)},
		},
	}))
}

// Merge composites a background (unit 0, u_texture) with a foreground
// (unit 1, u_texture1) placed centered on the background in pixel
// space; output dimensions equal the background's (§4.6).
type Merge struct {
	def    *Definition
	params map[string]any
	prog   *gpu.ShaderProgram
}

// NewMerge creates a Merge effect instance.
func NewMerge() *Merge {
	def, _ := Get("merge")
	return &Merge{def: def, params: defaultParameters(def)}
}

func (m *Merge) Compile(ctx gpu.Context) error {
	if m.prog != nil {
		return nil
	}
	prog, err := ctx.CompileShader(m.def.FragmentShader)
	if err != nil {
		return err
	}
	m.prog = prog
	return nil
}

func (m *Merge) SetParameters(updates map[string]any) {
	for k, v := range updates {
		m.params[k] = v
	}
}

func (m *Merge) ParameterHash() string { return parameterHash(m.params) }

// Apply binds bg to unit 0 and fg to unit 1 and draws into output,
// which must already be sized to bg's dimensions. u_fgSize comes from
// the declared u_fgWidth/u_fgHeight parameters (§3's "explicit
// foreground size"); a node that leaves them at their zero default
// falls back to fg's actual texture dimensions, so a merge built
// without ever setting them still places fg at its native size.
func (m *Merge) Apply(ctx gpu.Context, inputs []*gpu.Texture, output *gpu.Texture) error {
	if m.prog == nil {
		return gpu.ErrNotCompiled
	}
	if len(inputs) < 2 {
		return gpu.ErrInsufficientInputs
	}
	bg, fg := inputs[0], inputs[1]

	fgW := floatParamOf(m.params, "u_fgWidth", 0)
	fgH := floatParamOf(m.params, "u_fgHeight", 0)
	if fgW <= 0 {
		fgW = float64(fg.Width())
	}
	if fgH <= 0 {
		fgH = float64(fg.Height())
	}

	if err := ctx.SetRenderTarget(output); err != nil {
		return err
	}
	ctx.UseShader(m.prog)
	ctx.SetUniform("u_resolution", gpu.Vec2(float64(output.Width()), float64(output.Height())))
	ctx.SetUniform("u_fgSize", gpu.Vec2(fgW, fgH))
	ctx.SetUniform("u_mode", gpu.Float(floatParamOf(m.params, "u_mode", float64(ModeOver))))
	ctx.SetUniform("u_opacity", gpu.Float(floatParamOf(m.params, "u_opacity", 1)))
	ctx.BindTexture(bg, 0, "u_texture")
	ctx.BindTexture(fg, 1, "u_texture1")
	ctx.Clear(0, 0, 0, 0)
	ctx.DrawFullscreenQuad()
	return ctx.SetRenderTarget(nil)
}

func (m *Merge) Dispose(ctx gpu.Context) {
	if m.prog != nil {
		ctx.DeleteShader(m.prog)
		m.prog = nil
	}
}

var _ Instance = (*Merge)(nil)

func mergeFragment(env *gpu.FragEnv, u, v float64) (r, g, b, a float64) {
	resW, resH := env.Resolution()
	fgSize, _ := env.Uniform("u_fgSize")
	fgW, fgH := fgSize.Vec[0], fgSize.Vec[1]

	bgR, bgG, bgB, bgA := env.Sample(0, u, v)

	var fgR, fgG, fgB, fgA float64
	if fgW > 0 && fgH > 0 {
		px, py := u*resW, v*resH
		originX, originY := (resW-fgW)/2, (resH-fgH)/2
		fu, fv := (px-originX)/fgW, (py-originY)/fgH
		if fu >= 0 && fu <= 1 && fv >= 0 && fv <= 1 {
			fgR, fgG, fgB, fgA = env.Sample(1, fu, fv)
		}
	}
	opacity := uniformFloat(env, "u_opacity", 1)
	fgA *= opacity

	mode := int(uniformFloat(env, "u_mode", ModeOver))
	switch mode {
	case ModeUnder:
		return mixUnder(bgR, bgG, bgB, bgA, fgR, fgG, fgB, fgA)
	case ModeAdd:
		return mixAdd(bgR, bgG, bgB, bgA, fgR, fgG, fgB, fgA)
	case ModeSubtract:
		return mixSubtract(bgR, bgG, bgB, bgA, fgR, fgG, fgB, fgA)
	case ModeScreen:
		return mixScreen(bgR, bgG, bgB, bgA, fgR, fgG, fgB, fgA)
	case ModeOverlay:
		return mixOverlay(bgR, bgG, bgB, bgA, fgR, fgG, fgB, fgA)
	default:
		return mixOver(bgR, bgG, bgB, bgA, fgR, fgG, fgB, fgA)
	}
}

func mixOver(bgR, bgG, bgB, bgA, fgR, fgG, fgB, fgA float64) (r, g, b, a float64) {
	inv := 1 - fgA
	return fgR*fgA + bgR*inv, fgG*fgA + bgG*inv, fgB*fgA + bgB*inv, fgA + bgA*inv
}

func mixUnder(bgR, bgG, bgB, bgA, fgR, fgG, fgB, fgA float64) (r, g, b, a float64) {
	inv := 1 - bgA
	return bgR*bgA + fgR*inv, bgG*bgA + fgG*inv, bgB*bgA + fgB*inv, bgA + fgA*inv
}

func mixAdd(bgR, bgG, bgB, bgA, fgR, fgG, fgB, fgA float64) (r, g, b, a float64) {
	return min1(bgR + fgR*fgA), min1(bgG + fgG*fgA), min1(bgB + fgB*fgA), max2(bgA, fgA)
}

func mixSubtract(bgR, bgG, bgB, bgA, fgR, fgG, fgB, fgA float64) (r, g, b, a float64) {
	return max0(bgR - fgR*fgA), max0(bgG - fgG*fgA), max0(bgB - fgB*fgA), bgA
}

func mixScreen(bgR, bgG, bgB, bgA, fgR, fgG, fgB, fgA float64) (r, g, b, a float64) {
	screen := func(bg, fg float64) float64 { return 1 - (1-bg)*(1-fg) }
	lerp := func(bg, s float64) float64 { return bg + (s-bg)*fgA }
	return lerp(bgR, screen(bgR, fgR)), lerp(bgG, screen(bgG, fgG)), lerp(bgB, screen(bgB, fgB)), max2(bgA, fgA)
}

func mixOverlay(bgR, bgG, bgB, bgA, fgR, fgG, fgB, fgA float64) (r, g, b, a float64) {
	lerp := func(bg, o float64) float64 { return bg + (o-bg)*fgA }
	return lerp(bgR, overlayChannel(bgR, fgR)), lerp(bgG, overlayChannel(bgG, fgG)), lerp(bgB, overlayChannel(bgB, fgB)), max2(bgA, fgA)
}

// overlayChannel computes 2·bg·fg when bg < 0.5, else 1 − 2·(1−bg)·(1−fg)
// (§4.6).
func overlayChannel(bg, fg float64) float64 {
	if bg < 0.5 {
		return 2 * bg * fg
	}
	return 1 - 2*(1-bg)*(1-fg)
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
