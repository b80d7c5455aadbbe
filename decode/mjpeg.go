package decode

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image/jpeg"
)

// MJPEGCodec demuxes a simple length-prefixed Motion-JPEG container:
// a repeated sequence of [uint32 big-endian length][that many JPEG
// bytes]. It is the core's fully-working stand-in for a real video
// codec (§4.2's decode contract), decoding each chunk with the standard
// library's image/jpeg, the same decoder the teacher repo's own image
// loaders rely on.
type MJPEGCodec struct {
	// FrameRate is assumed constant across the stream; MJPEG containers
	// carry no native timing track in this minimal format.
	FrameRate float64
}

func (c MJPEGCodec) Demux(ctx context.Context, sourceBlob []byte) (TrackInfo, Config, []Chunk, error) {
	if err := ctx.Err(); err != nil {
		return TrackInfo{}, Config{}, nil, err
	}

	var chunks []Chunk
	buf := sourceBlob
	idx := 0
	for len(buf) > 0 {
		if len(buf) < 4 {
			return TrackInfo{}, Config{}, nil, &DecodeError{Diagnostic: "truncated frame length", Err: errShortRead}
		}
		n := binary.BigEndian.Uint32(buf[:4])
		buf = buf[4:]
		if uint64(len(buf)) < uint64(n) {
			return TrackInfo{}, Config{}, nil, &DecodeError{Diagnostic: "truncated frame data", Err: errShortRead}
		}
		frameRate := c.FrameRate
		if frameRate <= 0 {
			frameRate = 30
		}
		chunks = append(chunks, Chunk{
			Index:     idx,
			Data:      buf[:n],
			Timestamp: float64(idx) / frameRate,
		})
		buf = buf[n:]
		idx++
	}
	if len(chunks) == 0 {
		return TrackInfo{}, Config{}, nil, ErrUnsupportedContainer
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(chunks[0].Data))
	if err != nil {
		return TrackInfo{}, Config{}, nil, &DecodeError{Diagnostic: "decode first frame config", Err: err}
	}

	frameRate := c.FrameRate
	if frameRate <= 0 {
		frameRate = 30
	}
	info := TrackInfo{
		Width:      cfg.Width,
		Height:     cfg.Height,
		FrameCount: len(chunks),
		FrameRate:  frameRate,
		Duration:   float64(len(chunks)) / frameRate,
	}
	decCfg := Config{
		Codec:       "mjpeg",
		CodedWidth:  cfg.Width,
		CodedHeight: cfg.Height,
	}
	return info, decCfg, chunks, nil
}

func (c MJPEGCodec) NewDecoder() FrameDecoder { return mjpegDecoder{} }

var errShortRead = fmt.Errorf("unexpected end of data")

type mjpegDecoder struct{}

func (mjpegDecoder) Decode(ctx context.Context, cfg Config, chunk Chunk) (RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return RawFrame{}, err
	}
	img, err := jpeg.Decode(bytes.NewReader(chunk.Data))
	if err != nil {
		return RawFrame{}, &DecodeError{Diagnostic: fmt.Sprintf("decode frame %d", chunk.Index), Err: err}
	}
	return RawFrame{Image: img, Timestamp: chunk.Timestamp, Index: chunk.Index}, nil
}

var (
	_ Codec        = MJPEGCodec{}
	_ FrameDecoder = mjpegDecoder{}
)
