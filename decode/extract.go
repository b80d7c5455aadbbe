package decode

import (
	"context"
	"sync"

	"github.com/gogpu/reel"
	"github.com/gogpu/reel/store"
)

// ExtractOptions configures Extract (§4.2).
type ExtractOptions struct {
	// Format is the persisted encoding for every extracted frame.
	Format EncodeFormat
	// Quality is passed to EncodeFrame; ignored for FormatPNG.
	Quality int
	// MaxConcurrency bounds the encode/persist stage. Defaults to 4.
	MaxConcurrency int
	// SourceID names the Frame Store directory the frames are written
	// under (store.FramePath's first argument).
	SourceID string
	// Progress, if non-nil, is invoked after each successful frame
	// persistence with (current, total).
	Progress func(current, total int)
}

// ExtractResult is returned by Extract (§4.2).
type ExtractResult struct {
	Track  TrackInfo
	Frames []FrameRef
}

// FrameRef locates one persisted frame in the Frame Store.
type FrameRef struct {
	Index int
	Path  string
}

// Extract demuxes sourceBlob with codec, decodes every chunk, encodes
// each raw frame per opts, and persists it to st. The encode/persist
// stage runs with bounded concurrency (default 4) via a counting
// semaphore over sync.WaitGroup — the same fixed-worker-budget shape as
// the teacher's internal/parallel.WorkerPool, simplified here because
// §4.2 requires index-stable results rather than the teacher's
// unordered tile scheduling: each worker writes its result directly
// into a pre-sized slice at its own index, so out-of-order completion
// never reorders the output.
//
// Frames[] is sorted by source index on return (§4.2), which the
// pre-sized slice already guarantees without an explicit sort step.
func Extract(ctx context.Context, codec Codec, sourceBlob []byte, st store.Store, opts ExtractOptions) (ExtractResult, error) {
	track, cfg, chunks, err := codec.Demux(ctx, sourceBlob)
	if err != nil {
		return ExtractResult{}, err
	}

	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	format := opts.Format
	if format == "" {
		format = FormatPNG
	}
	ext := string(format)

	total := len(chunks)
	refs := make([]FrameRef, total)
	errs := make([]error, total)

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex // guards Progress callback ordering only
	completed := 0

	dec := codec.NewDecoder()
	for _, chunk := range chunks {
		chunk := chunk
		frame, err := dec.Decode(ctx, cfg, chunk)
		if err != nil {
			errs[chunk.Index] = err
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			data, err := EncodeFrame(frame.Image, format, opts.Quality)
			if err != nil {
				errs[chunk.Index] = err
				return
			}

			path := store.FramePath(opts.SourceID, uint64(chunk.Index), ext)
			if err := st.Put(ctx, path, data); err != nil {
				errs[chunk.Index] = err
				return
			}

			refs[chunk.Index] = FrameRef{Index: chunk.Index, Path: path}

			if opts.Progress != nil {
				mu.Lock()
				completed++
				opts.Progress(completed, total)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for _, e := range errs {
		if e != nil {
			reel.Logger().Error("decode: frame extraction failed", "error", e)
			return ExtractResult{}, e
		}
	}

	return ExtractResult{Track: track, Frames: refs}, nil
}
