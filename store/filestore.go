package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gogpu/reel"
)

// FileStore is a Store backed by the local filesystem, rooted at a
// directory. Durability/atomicity per blob (§4.1) is provided by
// writing to a temp file in the same directory and renaming over the
// destination, the standard Go idiom for atomic file replace — grounded
// on the teacher's direct os.Create-based writes (pixmap.go's SavePNG)
// but hardened with the rename step the spec's atomicity guarantee
// requires.
type FileStore struct {
	root string

	mu      sync.Mutex
	tempSeq uint64
}

// NewFileStore creates a FileStore rooted at root. The directory is
// created if it does not exist.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("store: create root: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) resolve(logicalPath string) (string, error) {
	clean := filepath.Clean("/" + logicalPath)
	if clean == "/" || clean == "." {
		return "", reel.ErrInvalidArgument
	}
	full := filepath.Join(s.root, clean)
	if !strings.HasPrefix(full, filepath.Clean(s.root)+string(filepath.Separator)) {
		return "", reel.ErrInvalidArgument
	}
	return full, nil
}

// Put writes data at path atomically: write to a sibling temp file,
// fsync, then rename over the destination.
func (s *FileStore) Put(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("store: mkdir: %w", err)
	}

	s.mu.Lock()
	s.tempSeq++
	seq := s.tempSeq
	s.mu.Unlock()

	tmp := full + ".tmp-" + strconv.FormatUint(seq, 36)
	f, err := os.Create(tmp) //nolint:gosec // path is derived from sanitized store keys
	if err != nil {
		return fmt.Errorf("store: create temp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("store: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("store: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: close: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: rename: %w", err)
	}
	return nil
}

// Get reads the blob at path.
func (s *FileStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full) //nolint:gosec // path resolved under store root
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Delete removes the blob at path. Idempotent.
func (s *FileStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DeleteDirectory removes every blob under prefix.
func (s *FileStore) DeleteDirectory(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve(prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(full); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

var _ Store = (*FileStore)(nil)
