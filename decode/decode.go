// Package decode implements the Media Decoder (C2): demuxing a
// container into encoded chunks and decoding those chunks into raw
// frames in order (§4.2).
//
// Decoding is two-stage and the decode stage is injectable, mirroring
// the deepteams/webp animation package's FrameDecoderFunc: a Demuxer
// splits a container into chunks plus a TrackInfo/Config, and a
// FrameDecoder turns one chunk into a RawFrame. This keeps the
// container format and the bitstream codec independently swappable.
package decode

import (
	"context"
	"errors"
	"image"
)

// Errors returned by demux/decode operations (§7).
var (
	ErrUnsupportedContainer = errors.New("decode: unsupported container")
	ErrUnsupportedCodec     = errors.New("decode: unsupported codec")
)

// DecodeError wraps an underlying diagnostic from a failed decode,
// preserving it per §4.2/§7.
type DecodeError struct {
	Diagnostic string
	Err        error
}

func (e *DecodeError) Error() string { return "decode: " + e.Diagnostic + ": " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// TrackInfo describes the demuxed track (§4.2).
type TrackInfo struct {
	Width      int
	Height     int
	Duration   float64 // seconds
	FrameCount int
	FrameRate  float64
}

// Config is the decoder configuration produced by demux (§4.2).
type Config struct {
	Codec            string
	CodedWidth       int
	CodedHeight      int
	CodecDescription []byte
}

// Chunk is one encoded unit produced by a Demuxer, in decode order.
type Chunk struct {
	Index     int
	Data      []byte
	Timestamp float64
}

// RawFrame is one decoded frame (§4.2): decode order equals presentation
// order for the progressive codecs this core supports.
type RawFrame struct {
	Image     image.Image
	Timestamp float64
	Index     int
}

// Demuxer splits an encoded source blob into a track description and an
// ordered chunk stream.
type Demuxer interface {
	Demux(ctx context.Context, sourceBlob []byte) (TrackInfo, Config, []Chunk, error)
}

// FrameDecoder decodes one chunk into a raw frame. Implementations are
// free to hold per-stream state (e.g. a keyframe reference) as long as
// Decode is called in chunk index order, matching how this package's
// callers drive it.
type FrameDecoder interface {
	Decode(ctx context.Context, cfg Config, chunk Chunk) (RawFrame, error)
}

// Codec pairs a Demuxer with the FrameDecoder it produces chunks for.
// MJPEGCodec and ImageSequenceCodec are the two concrete, fully
// functional implementations this core ships; a production build would
// add a cgo/ffmpeg-backed Codec for H.264/VP9/AV1 behind the same seam
// (no such codec library appears anywhere in the retrieval pack, so it
// is intentionally left unimplemented here).
type Codec interface {
	Demuxer
	NewDecoder() FrameDecoder
}
