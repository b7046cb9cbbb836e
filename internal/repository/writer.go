package repository

import (
	"context"
	"sort"
	"time"

	"github.com/objectfs/snapfs/pkg/errors"
	"github.com/objectfs/snapfs/pkg/types"
)

// DefaultChunkSize is the fixed chunk size used when splitting file content.
const DefaultChunkSize = 1 << 20

// WriterOptions configures a Writer.
type WriterOptions struct {
	ChunkSize   int
	Compression Compression
}

// Writer stores snapshots, trees and file content in a backend. It is used
// to seed repositories for tests and for the init command.
type Writer struct {
	backend types.Backend
	opts    WriterOptions
}

// NewWriter creates a writer over backend.
func NewWriter(backend types.Backend, opts WriterOptions) *Writer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	return &Writer{backend: backend, opts: opts}
}

// Init writes the repository config object. Existing repositories are left
// untouched.
func (w *Writer) Init(ctx context.Context) error {
	if _, err := w.backend.HeadObject(ctx, ConfigKey); err == nil {
		return nil
	} else if !errors.IsNotExist(err) {
		return errors.NewError(errors.ErrCodeStorageRead, "failed to probe repository config").WithCause(err)
	}

	data, err := marshal(repoConfig{
		Version:   FormatVersion,
		ChunkSize: w.opts.ChunkSize,
		Created:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := w.backend.PutObject(ctx, ConfigKey, data); err != nil {
		return errors.NewError(errors.ErrCodeStorageWrite, "failed to write repository config").WithCause(err)
	}
	return nil
}

// File stores content in fixed-size chunks and returns the file node.
func (w *Writer) File(ctx context.Context, name string, content []byte, mode *uint32, mtime *time.Time) (types.Node, error) {
	node := types.Node{
		Name: name,
		Kind: types.NodeFile,
		Meta: types.NodeMeta{Size: uint64(len(content)), Mode: mode, Mtime: mtime},
	}
	for start := 0; start < len(content); start += w.opts.ChunkSize {
		end := start + w.opts.ChunkSize
		if end > len(content) {
			end = len(content)
		}
		chunk := content[start:end]
		id, err := w.put(ctx, KindData, chunk)
		if err != nil {
			return types.Node{}, err
		}
		node.Content = append(node.Content, types.Blob{ID: id, Length: uint32(len(chunk))})
	}
	return node, nil
}

// Dir stores nodes as a tree and returns the directory node pointing at it.
func (w *Writer) Dir(ctx context.Context, name string, nodes []types.Node, mtime *time.Time) (types.Node, error) {
	id, err := w.Tree(ctx, nodes)
	if err != nil {
		return types.Node{}, err
	}
	return types.NewDirNode(name, &id, types.NodeMeta{Mtime: mtime}), nil
}

// Tree stores a directory listing. Nodes are sorted by name first so
// lookups can binary search.
func (w *Writer) Tree(ctx context.Context, nodes []types.Node) (types.ID, error) {
	sorted := make([]types.Node, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Name == sorted[i-1].Name {
			return types.ID{}, errors.NameCollision(sorted[i].Name)
		}
	}

	data, err := marshal(treeObject{Nodes: sorted})
	if err != nil {
		return types.ID{}, err
	}
	return w.put(ctx, KindTree, data)
}

// Snapshot stores a snapshot description and returns its id.
func (w *Writer) Snapshot(ctx context.Context, snap types.SnapshotFile) (types.ID, error) {
	data, err := marshal(snap)
	if err != nil {
		return types.ID{}, err
	}
	return w.put(ctx, KindSnapshot, data)
}

func (w *Writer) put(ctx context.Context, kind ObjectKind, data []byte) (types.ID, error) {
	id := ComputeID(kind, data)
	key := ObjectKey(kind, id)

	if _, err := w.backend.HeadObject(ctx, key); err == nil {
		return id, nil
	}

	stored, err := encodeObject(data, w.opts.Compression)
	if err != nil {
		return types.ID{}, err
	}
	if err := w.backend.PutObject(ctx, key, stored); err != nil {
		return types.ID{}, errors.NewError(errors.ErrCodeStorageWrite, "failed to write "+key).WithCause(err)
	}
	return id, nil
}
