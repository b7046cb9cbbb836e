package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/objectfs/snapfs/internal/logging"
	"github.com/objectfs/snapfs/pkg/errors"
	"github.com/objectfs/snapfs/pkg/types"
)

// FormatVersion is the repository layout version written to the config
// object.
const FormatVersion = 1

// ConfigKey is the backend key of the repository config object.
const ConfigKey = "config"

// repoConfig is stored under ConfigKey.
type repoConfig struct {
	Version   int       `cbor:"version"`
	ChunkSize int       `cbor:"chunk_size"`
	Created   time.Time `cbor:"created"`
}

// treeObject is the stored form of a directory.
type treeObject struct {
	Nodes []types.Node `cbor:"nodes"`
}

// Options configures a Repository.
type Options struct {
	// Cache holds decompressed trees and chunks. Nil disables caching.
	Cache types.Cache
	// Concurrency bounds parallel object fetches when loading snapshots.
	Concurrency int
	// Verify recomputes object ids on every load.
	Verify bool
	Logger *zap.Logger
}

// Repository implements types.Repository over a blob backend.
type Repository struct {
	backend     types.Backend
	cache       types.Cache
	concurrency int
	verify      bool
	logger      *zap.Logger
	chunkSize   int
}

var _ types.Repository = (*Repository)(nil)

// Open connects to the repository stored in backend and validates its
// config object.
func Open(ctx context.Context, backend types.Backend, opts Options) (*Repository, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Logger == nil {
		opts.Logger = logging.Named("repository")
	}

	data, err := backend.GetObject(ctx, ConfigKey, 0, 0)
	if err != nil {
		if errors.IsNotExist(err) {
			return nil, errors.NewError(errors.ErrCodeInvalidConfig, "no repository found in backend").
				WithComponent("repository").
				WithCause(err)
		}
		return nil, errors.NewError(errors.ErrCodeStorageRead, "failed to read repository config").
			WithComponent("repository").
			WithCause(err)
	}

	var cfg repoConfig
	if err := unmarshal(data, &cfg); err != nil {
		return nil, errors.NewError(errors.ErrCodeCorruptObject, "invalid repository config").WithCause(err)
	}
	if cfg.Version != FormatVersion {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("unsupported repository version %d", cfg.Version))
	}

	return &Repository{
		backend:     backend,
		cache:       opts.Cache,
		concurrency: opts.Concurrency,
		verify:      opts.Verify,
		logger:      opts.Logger,
		chunkSize:   cfg.ChunkSize,
	}, nil
}

// ChunkSize returns the chunk size the repository was initialized with.
func (r *Repository) ChunkSize() int {
	return r.chunkSize
}

// Snapshots loads every snapshot object in parallel.
func (r *Repository) Snapshots(ctx context.Context) ([]types.SnapshotFile, error) {
	objects, err := r.backend.ListObjects(ctx, string(KindSnapshot)+"/", 0)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeStorageRead, "failed to list snapshots").WithCause(err)
	}

	snapshots := make([]types.SnapshotFile, len(objects))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, object := range objects {
		i, key := i, object.Key
		g.Go(func() error {
			id, err := types.ParseID(strings.TrimPrefix(key, string(KindSnapshot)+"/"))
			if err != nil {
				return errors.NewError(errors.ErrCodeCorruptObject, "invalid snapshot key "+key).WithCause(err)
			}
			snap, err := r.Snapshot(gctx, id)
			if err != nil {
				return err
			}
			snapshots[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Debug("loaded snapshots", zap.Int("count", len(snapshots)))
	return snapshots, nil
}

// Snapshot loads a single snapshot by id.
func (r *Repository) Snapshot(ctx context.Context, id types.ID) (types.SnapshotFile, error) {
	data, err := r.load(ctx, KindSnapshot, id)
	if err != nil {
		return types.SnapshotFile{}, err
	}
	var snap types.SnapshotFile
	if err := unmarshal(data, &snap); err != nil {
		return types.SnapshotFile{}, corrupt(KindSnapshot, id, err)
	}
	snap.ID = id
	return snap, nil
}

// Tree returns the nodes of a directory, sorted by name.
func (r *Repository) Tree(ctx context.Context, id types.ID) ([]types.Node, error) {
	data, err := r.cached(ctx, KindTree, id)
	if err != nil {
		return nil, err
	}
	var tree treeObject
	if err := unmarshal(data, &tree); err != nil {
		return nil, corrupt(KindTree, id, err)
	}
	return tree.Nodes, nil
}

// Lookup returns the child called name of the directory tree.
func (r *Repository) Lookup(ctx context.Context, tree types.ID, name string) (types.Node, error) {
	nodes, err := r.Tree(ctx, tree)
	if err != nil {
		return types.Node{}, err
	}
	i := sort.Search(len(nodes), func(i int) bool { return nodes[i].Name >= name })
	if i < len(nodes) && nodes[i].Name == name {
		return nodes[i], nil
	}
	return types.Node{}, fmt.Errorf("%q in tree %s: %w", name, tree.Short(), errors.ErrNotExist)
}

// ReadDir returns the children of the directory tree.
func (r *Repository) ReadDir(ctx context.Context, tree types.ID) ([]types.Node, error) {
	return r.Tree(ctx, tree)
}

// OpenFile prepares node for ranged reads.
func (r *Repository) OpenFile(ctx context.Context, node types.Node) (*types.OpenedFile, error) {
	file, err := types.NewOpenedFile(node)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeCorruptObject, "invalid file node").WithCause(err)
	}
	return file, nil
}

// ReadFileAt reads up to count bytes at offset, spanning chunk boundaries.
func (r *Repository) ReadFileAt(ctx context.Context, file *types.OpenedFile, offset uint64, count int) ([]byte, error) {
	if count <= 0 || offset >= file.Size {
		return []byte{}, nil
	}
	if remaining := file.Size - offset; uint64(count) > remaining {
		count = int(remaining)
	}

	result := make([]byte, 0, count)
	for index := file.Locate(offset); index >= 0 && index < len(file.Blobs) && len(result) < count; index++ {
		blob := file.Blobs[index]
		if blob.Length == 0 {
			continue
		}
		chunk, err := r.cached(ctx, KindData, blob.ID)
		if err != nil {
			return nil, err
		}
		if len(chunk) != int(blob.Length) {
			return nil, corrupt(KindData, blob.ID,
				fmt.Errorf("chunk has %d bytes, node says %d", len(chunk), blob.Length))
		}

		start := uint64(0)
		if offset > file.Offsets[index] {
			start = offset - file.Offsets[index]
		}
		end := uint64(len(chunk))
		if want := start + uint64(count-len(result)); want < end {
			end = want
		}
		result = append(result, chunk[start:end]...)
	}
	return result, nil
}

// cached loads an object through the cache.
func (r *Repository) cached(ctx context.Context, kind ObjectKind, id types.ID) ([]byte, error) {
	key := cacheKey(kind, id)
	if r.cache != nil {
		if data, ok := r.cache.Get(key); ok {
			return data, nil
		}
	}
	data, err := r.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		r.cache.Put(key, data)
	}
	return data, nil
}

// load fetches and decodes an object from the backend.
func (r *Repository) load(ctx context.Context, kind ObjectKind, id types.ID) ([]byte, error) {
	key := ObjectKey(kind, id)
	stored, err := r.backend.GetObject(ctx, key, 0, 0)
	if err != nil {
		if errors.IsNotExist(err) {
			return nil, fmt.Errorf("object %s: %w", key, errors.ErrNotExist)
		}
		return nil, errors.NewError(errors.ErrCodeStorageRead, "failed to read "+key).
			WithComponent("repository").
			WithCause(err)
	}

	data, err := decodeObject(stored)
	if err != nil {
		return nil, corrupt(kind, id, err)
	}
	if r.verify && ComputeID(kind, data) != id {
		return nil, corrupt(kind, id, fmt.Errorf("content hash mismatch"))
	}
	return data, nil
}

func cacheKey(kind ObjectKind, id types.ID) string {
	switch kind {
	case KindTree:
		return "tree:" + id.String()
	case KindData:
		return "data:" + id.String()
	default:
		return string(kind) + ":" + id.String()
	}
}

func corrupt(kind ObjectKind, id types.ID, cause error) error {
	return errors.NewError(errors.ErrCodeCorruptObject, fmt.Sprintf("corrupt %s object %s", kind, id.Short())).
		WithComponent("repository").
		WithCause(cause)
}
