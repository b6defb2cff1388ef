package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps one file per key at <dir>/cache_<key>. Writes are
// last-write-wins with no locking.
type FileStore struct {
	dir string
}

// NewFileStore validates that dir is an existing, readable and writable
// directory and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("cache directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cache path %q is not a directory", dir)
	}

	// Probe both directions: listing verifies read access, a throwaway
	// temp file verifies write access.
	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("cache directory %q is not readable: %w", dir, err)
	}
	f.Close()

	probe, err := os.CreateTemp(dir, ".cache_probe_*")
	if err != nil {
		return nil, fmt.Errorf("cache directory %q is not writable: %w", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Write(ctx context.Context, key string, value []byte) error {
	return os.WriteFile(s.path(key), value, 0o600)
}

func (s *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, "cache_"+key)
}
