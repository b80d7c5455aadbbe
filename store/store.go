// Package store implements the Frame Store (C1): a content-addressed
// blob store for original media and decoded per-frame images (§4.1).
package store

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
)

// Errors returned by Store implementations.
var (
	// ErrNotFound is returned by Get when no blob exists at the path.
	ErrNotFound = errors.New("store: not found")
)

// Store is a content-addressed blob store, opaque to callers except
// that paths compose deterministically for per-frame blobs (§4.1, §6).
type Store interface {
	// Put writes a blob at a logical, '/'-separated path. Writes are
	// durable and atomic per blob.
	Put(ctx context.Context, path string, data []byte) error

	// Get reads a blob. Returns ErrNotFound if absent, including when a
	// concurrent Delete removes it.
	Get(ctx context.Context, path string) ([]byte, error)

	// Delete removes a blob. Idempotent.
	Delete(ctx context.Context, path string) error

	// DeleteDirectory removes every blob under prefix.
	DeleteDirectory(ctx context.Context, prefix string) error
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeSegment replaces characters outside [A-Za-z0-9._-] with '_',
// so caller-supplied names (source ids, file basenames) can be embedded
// safely into a blob path.
func SanitizeSegment(s string) string {
	if s == "" {
		return "_"
	}
	return unsafePathChars.ReplaceAllString(s, "_")
}

// FramePath composes the path for an extracted video frame (§4.1, §6):
// frames/<sanitized source id>/frame_<6-digit index>.<ext>.
func FramePath(sourceID string, index uint64, ext string) string {
	return path.Join("frames", SanitizeSegment(sourceID), fmt.Sprintf("frame_%06d.%s", index, ext))
}

// SequenceFramePath composes the path for an image-sequence frame (§6):
// sequences/<timestamp>-<sanitized basename>/frame_<6-digit index>.<ext>.
func SequenceFramePath(timestamp int64, basename string, index uint64, ext string) string {
	dir := fmt.Sprintf("%d-%s", timestamp, SanitizeSegment(basename))
	return path.Join("sequences", dir, fmt.Sprintf("frame_%06d.%s", index, ext))
}

// OriginalVideoPath composes the path for an original video blob (§6):
// videos/<timestamp>-<sanitized name>.
func OriginalVideoPath(timestamp int64, name string) string {
	return path.Join("videos", fmt.Sprintf("%d-%s", timestamp, SanitizeSegment(name)))
}

// OriginalImagePath composes the path for an original image blob (§6):
// images/<timestamp>-<sanitized name>.
func OriginalImagePath(timestamp int64, name string) string {
	return path.Join("images", fmt.Sprintf("%d-%s", timestamp, SanitizeSegment(name)))
}
