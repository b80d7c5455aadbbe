package reel

import "errors"

// Sentinel errors shared across packages. Error kinds tied to one
// component live in that package's own errors (store.ErrNotFound,
// gpu.ErrNotCompiled, decode.ErrUnsupportedContainer, ...).
var (
	// ErrInvalidArgument is returned for malformed caller input; FileStore
	// returns it for a blob path that is empty or does not resolve to a
	// location under the store root.
	ErrInvalidArgument = errors.New("reel: invalid argument")
)
