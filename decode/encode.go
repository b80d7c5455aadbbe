package decode

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	webpenc "github.com/deepteams/webp"
)

// EncodeFormat is one of the three blob encodings the spec allows for
// persisted frames (§4.1, §4.2).
type EncodeFormat string

// Supported encode formats.
const (
	FormatPNG  EncodeFormat = "png"
	FormatWebP EncodeFormat = "webp"
	FormatJPEG EncodeFormat = "jpeg"
)

// EncodeFrame encodes img into the requested format. quality is ignored
// for png (§4.2) and is on the conventional 0-100 scale for webp/jpeg.
func EncodeFrame(img image.Image, format EncodeFormat, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	case FormatJPEG:
		q := quality
		if q <= 0 {
			q = 90
		}
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
			return nil, err
		}
	case FormatWebP:
		q := quality
		if q <= 0 {
			q = 90
		}
		if err := webpenc.Encode(&buf, img, &webpenc.Options{Quality: float32(q)}); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("decode: unsupported encode format %q", format)
	}
	return buf.Bytes(), nil
}
