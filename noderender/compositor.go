package noderender

import (
	"image"
	"image/color"

	"github.com/gogpu/reel"
)

// applyBaseTransform renders src into a canvasW x canvasH premultiplied
// RGBA image (image.RGBA) under transform, inverse-mapping each destination pixel
// back into source space and bilinear-sampling with edge clamp — the
// same addressing convention as gpu/shaders.go's sampleBilinear, since
// the teacher's vector rasterizer (internal/raster) only ever handled
// path fills, never arbitrary image placement, and this step (§4.8
// step 1) has no vector geometry to rasterize. opacity scales the
// sampled alpha.
func applyBaseTransform(src image.Image, transform reel.Affine, opacity float64, canvasW, canvasH int) image.Image {
	if canvasW <= 0 {
		canvasW = 1
	}
	if canvasH <= 0 {
		canvasH = 1
	}
	out := image.NewRGBA(image.Rect(0, 0, canvasW, canvasH))
	if transform.IsIdentity() && opacity >= 1 {
		b := src.Bounds()
		if b.Dx() == canvasW && b.Dy() == canvasH {
			for y := 0; y < canvasH; y++ {
				for x := 0; x < canvasW; x++ {
					out.Set(x, y, src.At(b.Min.X+x, b.Min.Y+y))
				}
			}
			return out
		}
	}

	inv, ok := transform.Invert()
	if !ok {
		// A degenerate placement (zero scale) maps no source pixels into
		// view; the canvas stays fully transparent.
		return out
	}
	srcB := src.Bounds()
	sw, sh := srcB.Dx(), srcB.Dy()

	for y := 0; y < canvasH; y++ {
		for x := 0; x < canvasW; x++ {
			p := inv.Apply(reel.Point{X: float64(x) + 0.5, Y: float64(y) + 0.5})
			r, g, b, a := sampleImageBilinear(src, srcB, sw, sh, p.X, p.Y)
			a *= opacity
			out.Set(x, y, color.RGBA64{
				R: uint16(clamp01to(r) * a * 0xffff),
				G: uint16(clamp01to(g) * a * 0xffff),
				B: uint16(clamp01to(b) * a * 0xffff),
				A: uint16(clamp01to(a) * 0xffff),
			})
		}
	}
	return out
}

// sampleImageBilinear bilinear-samples src (straight alpha, unnormalized
// pixel coordinates) at (x, y), clamping out-of-bounds reads to the
// nearest edge pixel and returning zero outside srcB entirely, so
// content placed off-canvas by the base transform does not wrap.
func sampleImageBilinear(src image.Image, srcB image.Rectangle, sw, sh int, x, y float64) (r, g, b, a float64) {
	if sw == 0 || sh == 0 {
		return 0, 0, 0, 0
	}
	if x < -1 || y < -1 || x > float64(sw) || y > float64(sh) {
		return 0, 0, 0, 0
	}
	x -= 0.5
	y -= 0.5
	x0, y0 := int(floorF(x)), int(floorF(y))
	x1, y1 := x0+1, y0+1
	fx, fy := x-float64(x0), y-float64(y0)

	c00r, c00g, c00b, c00a := fetchStraight(src, srcB, sw, sh, x0, y0)
	c10r, c10g, c10b, c10a := fetchStraight(src, srcB, sw, sh, x1, y0)
	c01r, c01g, c01b, c01a := fetchStraight(src, srcB, sw, sh, x0, y1)
	c11r, c11g, c11b, c11a := fetchStraight(src, srcB, sw, sh, x1, y1)

	lerp := func(a, b, t float64) float64 { return a + (b-a)*t }
	mix := func(v00, v10, v01, v11 float64) float64 {
		top := lerp(v00, v10, fx)
		bot := lerp(v01, v11, fx)
		return lerp(top, bot, fy)
	}
	return mix(c00r, c10r, c01r, c11r),
		mix(c00g, c10g, c01g, c11g),
		mix(c00b, c10b, c01b, c11b),
		mix(c00a, c10a, c01a, c11a)
}

func fetchStraight(src image.Image, srcB image.Rectangle, sw, sh, x, y int) (r, g, b, a float64) {
	if x < 0 {
		x = 0
	}
	if x >= sw {
		x = sw - 1
	}
	if y < 0 {
		y = 0
	}
	if y >= sh {
		y = sh - 1
	}
	rr, gg, bb, aa := src.At(srcB.Min.X+x, srcB.Min.Y+y).RGBA()
	if aa == 0 {
		return 0, 0, 0, 0
	}
	af := float64(aa) / 0xffff
	return float64(rr) / 0xffff / af, float64(gg) / 0xffff / af, float64(bb) / 0xffff / af, af
}

func floorF(v float64) float64 {
	i := int(v)
	if v < 0 && float64(i) != v {
		i--
	}
	return float64(i)
}

func clamp01to(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// imageToRGBAPremultiplied converts any image.Image to a tightly packed
// premultiplied-alpha RGBA8 byte buffer, the layout Context.UploadImage
// expects (§4.4). color.Color.RGBA() already returns premultiplied
// 16-bit components, so this is a direct downshift, not a re-premultiply.
func imageToRGBAPremultiplied(img image.Image) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, w*h*4)
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			out[i+0] = byte(r >> 8)
			out[i+1] = byte(g >> 8)
			out[i+2] = byte(bl >> 8)
			out[i+3] = byte(a >> 8)
			i += 4
		}
	}
	return out
}

// rgbaFromPremultipliedBytes builds an image.RGBA directly from a
// premultiplied RGBA8 buffer read back via Context.ReadPixels: the
// standard library's image.RGBA is itself alpha-premultiplied, so no
// conversion is needed beyond wrapping the bytes.
func rgbaFromPremultipliedBytes(pix []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, pix)
	return img
}
