package decode

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"sort"

	"golang.org/x/image/webp"
)

// ImageSequenceCodec treats an ordered list of single-image blobs (one
// chunk per frame) as a trivial container, grounding the Image Sequence
// asset kind (§3). Each chunk's format is sniffed from its bytes; PNG
// and JPEG go through the standard library, WebP through
// golang.org/x/image/webp (decode-only — encode uses
// github.com/deepteams/webp, wired in encode.go).
type ImageSequenceCodec struct {
	FrameRate float64

	// Images holds the sequence's frame blobs, already ordered by
	// frame index. Demux does not reorder them; callers are expected to
	// supply frames in index order, as the Frame Store's sequence
	// layout (§6) guarantees.
	Images [][]byte
}

func (c ImageSequenceCodec) Demux(ctx context.Context, _ []byte) (TrackInfo, Config, []Chunk, error) {
	if err := ctx.Err(); err != nil {
		return TrackInfo{}, Config{}, nil, err
	}
	if len(c.Images) == 0 {
		return TrackInfo{}, Config{}, nil, ErrUnsupportedContainer
	}

	frameRate := c.FrameRate
	if frameRate <= 0 {
		frameRate = 30
	}

	cfgImg, format, err := image.DecodeConfig(bytes.NewReader(c.Images[0]))
	if err != nil {
		return TrackInfo{}, Config{}, nil, &DecodeError{Diagnostic: "decode first frame config", Err: err}
	}

	chunks := make([]Chunk, len(c.Images))
	for i, data := range c.Images {
		chunks[i] = Chunk{Index: i, Data: data, Timestamp: float64(i) / frameRate}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })

	info := TrackInfo{
		Width:      cfgImg.Width,
		Height:     cfgImg.Height,
		FrameCount: len(chunks),
		FrameRate:  frameRate,
		Duration:   float64(len(chunks)) / frameRate,
	}
	decCfg := Config{
		Codec:       format,
		CodedWidth:  cfgImg.Width,
		CodedHeight: cfgImg.Height,
	}
	return info, decCfg, chunks, nil
}

func (c ImageSequenceCodec) NewDecoder() FrameDecoder { return imageSeqDecoder{} }

type imageSeqDecoder struct{}

func (imageSeqDecoder) Decode(ctx context.Context, cfg Config, chunk Chunk) (RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return RawFrame{}, err
	}
	img, err := decodeSniffed(chunk.Data)
	if err != nil {
		return RawFrame{}, &DecodeError{Diagnostic: fmt.Sprintf("decode frame %d", chunk.Index), Err: err}
	}
	return RawFrame{Image: img, Timestamp: chunk.Timestamp, Index: chunk.Index}, nil
}

// decodeSniffed decodes PNG, JPEG, or WebP bytes based on their magic
// bytes, since an image-sequence asset can mix single-image formats
// per frame.
func decodeSniffed(data []byte) (image.Image, error) {
	r := bytes.NewReader(data)
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		switch format {
		case "png":
			return png.Decode(r)
		case "jpeg":
			return jpeg.Decode(r)
		}
	}
	// image.DecodeConfig does not register webp by default; try it
	// explicitly as a fallback.
	if img, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return img, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("unrecognized image format %q", format)
}

var (
	_ Codec        = ImageSequenceCodec{}
	_ FrameDecoder = imageSeqDecoder{}
)
