// Package local stores repository objects as files below a directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/objectfs/snapfs/pkg/types"
	"github.com/objectfs/snapfs/pkg/utils"
)

const tmpDir = ".tmp"

// Backend implements types.Backend over a local directory. Each key is a
// slash-separated relative path.
type Backend struct {
	root string
}

var _ types.Backend = (*Backend)(nil)

// NewBackend opens the directory root, creating it if needed.
func NewBackend(root string) (*Backend, error) {
	if root == "" {
		return nil, fmt.Errorf("repository path cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}
	for _, dir := range []string{abs, filepath.Join(abs, tmpDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating repository directory %s: %w", dir, err)
		}
	}
	return &Backend{root: abs}, nil
}

// Root returns the absolute directory the backend stores objects in.
func (b *Backend) Root() string {
	return b.root
}

func (b *Backend) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, tmpDir) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	p, err := utils.SecureJoin(b.root, filepath.FromSlash(key))
	if err != nil {
		return "", fmt.Errorf("invalid object key %q: %w", key, err)
	}
	return p, nil
}

// GetObject reads an object or a byte range of it. A size of zero reads to
// the end of the object.
func (b *Backend) GetObject(ctx context.Context, key string, offset, size int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, translate(err, key)
	}
	defer f.Close()

	if offset == 0 && size <= 0 {
		return io.ReadAll(f)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking %s: %w", key, err)
	}
	if size <= 0 {
		return io.ReadAll(f)
	}
	buf := make([]byte, size)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return buf[:n], nil
}

// PutObject writes an object atomically via a temporary file.
func (b *Backend) PutObject(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	finalPath, err := b.path(key)
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(filepath.Join(b.root, tmpDir), "object-*")
	if err != nil {
		return fmt.Errorf("creating temp object file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("creating object directory: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming object to %s: %w", finalPath, err)
	}

	success = true
	return nil
}

// HeadObject returns the size and modification time of an object.
func (b *Backend) HeadObject(ctx context.Context, key string) (*types.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, translate(err, key)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("object %s: %w", key, fs.ErrNotExist)
	}
	return &types.ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime()}, nil
}

// ListObjects returns the objects whose key starts with prefix, in lexical
// order. A limit of zero lists everything.
func (b *Backend) ListObjects(ctx context.Context, prefix string, limit int) ([]types.ObjectInfo, error) {
	var objects []types.ObjectInfo
	errLimit := errors.New("limit reached")

	err := filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if d.IsDir() {
			if key == tmpDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, types.ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime()})
		if limit > 0 && len(objects) >= limit {
			return errLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	return objects, nil
}

// HealthCheck verifies the root directory is still accessible.
func (b *Backend) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(b.root)
	if err != nil {
		return fmt.Errorf("repository directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("repository path %s is not a directory", b.root)
	}
	return nil
}

func translate(err error, key string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("object %s: %w", key, fs.ErrNotExist)
	}
	return fmt.Errorf("reading %s: %w", key, err)
}
