package effects

import (
	"math"

	"github.com/gogpu/reel/gpu"
)

// ColorAdjustShader is the built-in shader name Color Adjust compiles
// to (§4.6 Color Adjust).
const ColorAdjustShader = "colorAdjust"

func init() {
	gpu.RegisterShader(ColorAdjustShader, colorAdjustFragment)
	must(Register(Definition{
		Name:           "colorAdjust",
		DisplayName:    "Color Adjust",
		Category:       "color",
		InputCount:     1,
		FragmentShader: ColorAdjustShader,
		Parameters: []ParamDecl{
			{Name: "u_exposure", Type: ParamFloat, Default: 0.0, Min: f(-2), Max: f(2)},
			{Name: "u_brightness", Type: ParamFloat, Default: 0.0, Min: f(-1), Max: f(1)},
			{Name: "u_contrast", Type: ParamFloat, Default: 1.0, Min: f(0), Max: f(2)},
			{Name: "u_saturation", Type: ParamFloat, Default: 1.0, Min: f(0), Max: f(2)},
		},
	}))
}

func f(v float64) *float64 { return &v }

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// colorAdjustFragment applies exposure, then brightness, then contrast,
// then saturation, in that exact order (§4.6), leaving alpha untouched.
func colorAdjustFragment(env *gpu.FragEnv, u, v float64) (r, g, b, a float64) {
	r, g, b, a = env.Sample(0, u, v)

	exposure := uniformFloat(env, "u_exposure", 0)
	brightness := uniformFloat(env, "u_brightness", 0)
	contrast := uniformFloat(env, "u_contrast", 1)
	saturation := uniformFloat(env, "u_saturation", 1)

	scale := math.Pow(2, exposure)
	r, g, b = r*scale, g*scale, b*scale

	r, g, b = r+brightness, g+brightness, b+brightness

	r = (r-0.5)*contrast + 0.5
	g = (g-0.5)*contrast + 0.5
	b = (b-0.5)*contrast + 0.5

	lum := 0.299*r + 0.587*g + 0.114*b
	r = lum + (r-lum)*saturation
	g = lum + (g-lum)*saturation
	b = lum + (b-lum)*saturation

	return clamp01(r), clamp01(g), clamp01(b), a
}

func uniformFloat(env *gpu.FragEnv, name string, fallback float64) float64 {
	v, ok := env.Uniform(name)
	if !ok {
		return fallback
	}
	return v.Scalar
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
