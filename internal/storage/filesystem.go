package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filedepot/internal/apperr"
)

// filesystemStorage implements Storage on a local directory tree. Keys map
// directly to paths under the root, producing the on-disk layout
// <root>/<tenantID>/bin/<chunkID>.bin and <root>/<tenantID>/metadata/<fileID>.json.
// Writes go to a temporary sibling first and are renamed into place, so a
// cancelled or crashed write never leaves a partial object visible.
type filesystemStorage struct {
	root string
}

// NewFilesystem creates a filesystem-backed Storage rooted at dir, creating
// the directory if needed.
func NewFilesystem(dir string) (Storage, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage data directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &filesystemStorage{root: dir}, nil
}

// keyPath converts a slash key to a path under the root, rejecting keys that
// would escape it.
func (f *filesystemStorage) keyPath(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("key %q: %w", key, apperr.ErrInvalidArgument)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q: %w", key, apperr.ErrInvalidArgument)
	}
	return filepath.Join(f.root, clean), nil
}

func (f *filesystemStorage) Put(ctx context.Context, key string, r io.Reader) (PutResult, error) {
	path, err := f.keyPath(key)
	if err != nil {
		return PutResult{}, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return PutResult{}, fmt.Errorf("create object directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return PutResult{}, fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpName)
		return PutResult{}, fmt.Errorf("write object: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return PutResult{}, fmt.Errorf("publish object: %w", err)
	}
	return PutResult{Key: key, Size: n}, nil
}

func (f *filesystemStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := f.keyPath(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("object %s: %w", key, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	return file, nil
}

func (f *filesystemStorage) Size(ctx context.Context, key string) (int64, error) {
	path, err := f.keyPath(key)
	if err != nil {
		return 0, err
	}
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("object %s: %w", key, apperr.ErrNotFound)
		}
		return 0, fmt.Errorf("stat object: %w", err)
	}
	return st.Size(), nil
}

func (f *filesystemStorage) Delete(ctx context.Context, key string) error {
	path, err := f.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (f *filesystemStorage) List(ctx context.Context, prefix string) ([]string, error) {
	path, err := f.keyPath(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list objects: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(prefix, "/")+"/"+e.Name())
	}
	return keys, nil
}

// contextReader aborts a copy as soon as the context is cancelled, so a
// cancelled upload stops consuming the stream instead of running to EOF.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
