package vfs

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/objectfs/snapfs/internal/logging"
	"github.com/objectfs/snapfs/pkg/errors"
	"github.com/objectfs/snapfs/pkg/types"
)

// Access describes the intent of an open request.
type Access struct {
	Write     bool
	Append    bool
	Truncate  bool
	Create    bool
	CreateNew bool
}

// AccessFromFlags decodes os.OpenFile style flags.
func AccessFromFlags(flag int) Access {
	return Access{
		Write:     flag&(os.O_WRONLY|os.O_RDWR) != 0,
		Append:    flag&os.O_APPEND != 0,
		Truncate:  flag&os.O_TRUNC != 0,
		Create:    flag&os.O_CREATE != 0,
		CreateNew: flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0,
	}
}

// IsWrite reports whether the request asks for any write-class semantics.
func (a Access) IsWrite() bool {
	return a.Write || a.Append || a.Truncate || a.Create || a.CreateNew
}

// Options configures a Filesystem.
type Options struct {
	Bridge  *Bridge
	Metrics types.MetricsCollector
	Logger  *zap.Logger
}

// Filesystem is the operation surface protocol adapters translate to:
// metadata, directory listing, link reading, and read-only opens.
type Filesystem struct {
	tree     *FsTree
	resolver *Resolver
	repo     types.Repository
	bridge   *Bridge
	metrics  types.MetricsCollector
	logger   *zap.Logger
}

// New creates a Filesystem serving tree from repo.
func New(tree *FsTree, repo types.Repository, opts Options) *Filesystem {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Named("vfs")
	}
	bridge := opts.Bridge
	if bridge == nil {
		bridge = NewBridge(BridgeInline, 0)
	}
	return &Filesystem{
		tree:     tree,
		resolver: NewResolver(tree, repo, bridge, logger),
		repo:     repo,
		bridge:   bridge,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// Tree returns the namespace being served.
func (fsys *Filesystem) Tree() *FsTree { return fsys.tree }

// Resolver returns the underlying resolver.
func (fsys *Filesystem) Resolver() *Resolver { return fsys.resolver }

// Metadata describes the entry at p without following a final link.
func (fsys *Filesystem) Metadata(ctx context.Context, p string) (Metadata, error) {
	start := time.Now()
	entry, err := fsys.resolver.Resolve(ctx, p)
	fsys.observe("metadata", start, 0, err)
	if err != nil {
		return Metadata{}, err
	}
	return entry.Metadata(), nil
}

// Stat is like Metadata but follows a final link.
func (fsys *Filesystem) Stat(ctx context.Context, p string) (Metadata, error) {
	start := time.Now()
	entry, err := fsys.resolver.Follow(ctx, p)
	fsys.observe("stat", start, 0, err)
	if err != nil {
		return Metadata{}, err
	}
	return entry.Metadata(), nil
}

// ListDir returns name and metadata of every child of the directory at p.
func (fsys *Filesystem) ListDir(ctx context.Context, p string) ([]Metadata, error) {
	start := time.Now()
	entries, err := fsys.resolver.List(ctx, p)
	fsys.observe("list", start, 0, err)
	if err != nil {
		return nil, err
	}

	result := make([]Metadata, len(entries))
	for i, entry := range entries {
		result[i] = entry.Metadata()
	}
	return result, nil
}

// Readlink returns the target of the symlink at p.
func (fsys *Filesystem) Readlink(ctx context.Context, p string) (string, error) {
	meta, err := fsys.Metadata(ctx, p)
	if err != nil {
		return "", err
	}
	if !meta.IsSymlink() {
		return "", errors.WrongType(p, "not a symlink")
	}
	return meta.LinkTarget, nil
}

// Open opens the file at p for reading. Any write-class access is rejected
// with FORBIDDEN before the path is looked up.
func (fsys *Filesystem) Open(ctx context.Context, p string, access Access) (*OpenFile, error) {
	start := time.Now()
	f, err := fsys.open(ctx, p, access)
	fsys.observe("open", start, 0, err)
	return f, err
}

func (fsys *Filesystem) open(ctx context.Context, p string, access Access) (*OpenFile, error) {
	if access.IsWrite() {
		return nil, errors.Forbidden("open", p)
	}

	entry, err := fsys.resolver.Follow(ctx, p)
	if err != nil {
		return nil, err
	}

	rn, ok := entry.Tree.(*RealNode)
	if !ok || rn.Node.IsDir() {
		return nil, errors.WrongType(entry.Path, "is a directory").WithDetail("is_dir", true)
	}
	if !rn.Node.IsFile() {
		return nil, errors.WrongType(entry.Path, "not a regular file")
	}

	node := rn.Node
	opened, err := Run(ctx, fsys.bridge, func(ctx context.Context) (*types.OpenedFile, error) {
		return fsys.repo.OpenFile(ctx, node)
	})
	if err != nil {
		return nil, fsys.resolver.translate("open", entry.Path, err)
	}

	f := &OpenFile{
		path:   entry.Path,
		meta:   entry.Metadata(),
		file:   opened,
		repo:   fsys.repo,
		bridge: fsys.bridge,
	}
	if fsys.metrics != nil {
		f.observe = func(op string, started time.Time, size int, err error) {
			fsys.observe(op, started, int64(size), err)
		}
	}
	return f, nil
}

func (fsys *Filesystem) observe(op string, start time.Time, size int64, err error) {
	if err != nil && errors.HasCode(err, errors.ErrCodeGeneralFailure) {
		fsys.logger.Debug("operation failed", logging.Op(op), logging.Err(err))
	}
	if fsys.metrics == nil {
		return
	}
	fsys.metrics.RecordOperation(op, time.Since(start), size, err == nil)
	if err != nil {
		fsys.metrics.RecordError(op, err)
	}
}
