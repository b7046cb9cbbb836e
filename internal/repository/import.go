package repository

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/objectfs/snapfs/pkg/errors"
	"github.com/objectfs/snapfs/pkg/types"
)

// ImportStats counts what ImportDir stored.
type ImportStats struct {
	Files    int
	Dirs     int
	Symlinks int
	Skipped  int
	Bytes    int64
}

// ImportDir stores the directory tree rooted at dir and returns the id of
// its top-level tree. Devices, sockets and pipes are skipped.
func (w *Writer) ImportDir(ctx context.Context, dir string) (types.ID, ImportStats, error) {
	var stats ImportStats
	info, err := os.Stat(dir)
	if err != nil {
		return types.ID{}, stats, errors.NewError(errors.ErrCodeStorageRead, "failed to stat import source").
			WithPath(dir).WithCause(err)
	}
	if !info.IsDir() {
		return types.ID{}, stats, errors.WrongType(dir, "import source is not a directory")
	}

	nodes, err := w.importEntries(ctx, dir, &stats)
	if err != nil {
		return types.ID{}, stats, err
	}
	id, err := w.Tree(ctx, nodes)
	return id, stats, err
}

func (w *Writer) importEntries(ctx context.Context, dir string, stats *ImportStats) ([]types.Node, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeStorageRead, "failed to read directory").
			WithPath(dir).WithCause(err)
	}

	nodes := make([]types.Node, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		node, ok, err := w.importPath(ctx, filepath.Join(dir, entry.Name()), stats)
		if err != nil {
			return nil, err
		}
		if ok {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

func (w *Writer) importPath(ctx context.Context, p string, stats *ImportStats) (types.Node, bool, error) {
	info, err := os.Lstat(p)
	if err != nil {
		return types.Node{}, false, errors.NewError(errors.ErrCodeStorageRead, "failed to stat").
			WithPath(p).WithCause(err)
	}
	name := info.Name()
	mtime := info.ModTime().UTC().Truncate(time.Microsecond)
	mode := uint32(info.Mode().Perm())

	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(p)
		if err != nil {
			return types.Node{}, false, errors.NewError(errors.ErrCodeStorageRead, "failed to read link").
				WithPath(p).WithCause(err)
		}
		node := types.NewSymlinkNode(name, target)
		node.Meta.Mtime = &mtime
		stats.Symlinks++
		return node, true, nil

	case info.IsDir():
		children, err := w.importEntries(ctx, p, stats)
		if err != nil {
			return types.Node{}, false, err
		}
		node, err := w.Dir(ctx, name, children, &mtime)
		if err != nil {
			return types.Node{}, false, err
		}
		node.Meta.Mode = &mode
		stats.Dirs++
		return node, true, nil

	case info.Mode().IsRegular():
		content, err := os.ReadFile(p)
		if err != nil {
			return types.Node{}, false, errors.NewError(errors.ErrCodeStorageRead, "failed to read file").
				WithPath(p).WithCause(err)
		}
		node, err := w.File(ctx, name, content, &mode, &mtime)
		if err != nil {
			return types.Node{}, false, err
		}
		stats.Files++
		stats.Bytes += int64(len(content))
		return node, true, nil
	}

	stats.Skipped++
	return types.Node{}, false, nil
}
