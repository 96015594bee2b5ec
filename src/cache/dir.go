package cache

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// DirStore keeps one blob file per key under a root directory. Writes go
// through a temp file and a rename, so concurrent writers to the same key
// settle on whichever rename lands last.
type DirStore struct {
	root string
}

// NewDirStore creates a filesystem cache store rooted at dir, creating the
// directory if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	return &DirStore{root: dir}, nil
}

// Get returns the blob stored under key, or ErrMiss.
func (s *DirStore) Get(ctx context.Context, key string) ([]byte, error) {
	blob, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}
	return blob, nil
}

// Put stores blob under key, replacing any existing content.
func (s *DirStore) Put(ctx context.Context, key string, blob []byte) error {
	target := s.path(key)

	tmp, err := os.CreateTemp(s.root, ".put-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to store cache entry %s: %w", key, err)
	}
	return nil
}

// Close is a no-op for the filesystem store.
func (s *DirStore) Close() error {
	return nil
}

// path maps a key to its blob file. Keys are escaped so separators or odd
// characters cannot walk out of the root.
func (s *DirStore) path(key string) string {
	return filepath.Join(s.root, url.PathEscape(key)+".tar.gz")
}
