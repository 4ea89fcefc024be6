package kvstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
)

var safeKey = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// File stores each key as <dir>/<key>.json. Writes go to a temp file that
// is renamed over the target, so a crash mid-write leaves the old value.
type File struct {
	dir string
}

// NewFile creates the directory if needed and returns a File store.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("NewFile: create dir %q: %w", dir, err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) (string, error) {
	if !safeKey.MatchString(key) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(f.dir, key+".json"), nil
}

// Get implements Store.
func (f *File) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, fmt.Errorf("File.Get: %w", err)
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("File.Get: read %q: %w", p, err)
	}
	return data, nil
}

// Put implements Store.
func (f *File) Put(ctx context.Context, key string, value []byte) error {
	p, err := f.path(key)
	if err != nil {
		return fmt.Errorf("File.Put: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("File.Put: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("File.Put: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("File.Put: close temp: %w", err)
	}

	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("File.Put: rename: %w", err)
	}
	return nil
}

// Close implements Store.
func (f *File) Close() error { return nil }

var _ Store = (*File)(nil)
