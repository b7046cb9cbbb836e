//go:build !cgofuse

package fuse

import (
	"context"
	"path"
	"syscall"

	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/objectfs/snapfs/internal/logging"
	"github.com/objectfs/snapfs/internal/vfs"
)

const blockSize = 4096

// FileSystem serves a vfs.Filesystem through go-fuse. Every node is
// addressed by its namespace path; the resolver does the walking.
type FileSystem struct {
	fsys   *vfs.Filesystem
	config *MountConfig
	logger *zap.Logger
	stats  counters
}

// NewFileSystem creates a new FUSE filesystem instance
func NewFileSystem(fsys *vfs.Filesystem, config *MountConfig) *FileSystem {
	config = config.withDefaults()
	return &FileSystem{
		fsys:   fsys,
		config: config,
		logger: config.Logger,
	}
}

// Root returns the root inode
func (f *FileSystem) Root() gofs.InodeEmbedder {
	return &Node{fs: f, path: "/"}
}

// GetStats returns current filesystem statistics
func (f *FileSystem) GetStats() *FilesystemStats {
	return f.stats.snapshot()
}

func (f *FileSystem) errno(op, p string, err error) syscall.Errno {
	if err == nil {
		return 0
	}
	f.stats.errors.Add(1)
	errno := toErrno(classify(err))
	if errno == syscall.EIO {
		f.logger.Warn("request failed", logging.Op(op), logging.Path(p), logging.Err(err))
	} else {
		f.logger.Debug("request rejected", logging.Op(op), logging.Path(p), zap.String("errno", errno.Error()))
	}
	return errno
}

func toErrno(c errClass) syscall.Errno {
	switch c {
	case classOK:
		return 0
	case classNotExist:
		return syscall.ENOENT
	case classNotDir:
		return syscall.ENOTDIR
	case classIsDir:
		return syscall.EISDIR
	case classReadOnly:
		return syscall.EROFS
	case classInvalid:
		return syscall.EINVAL
	case classNotSupported:
		return syscall.ENOSYS
	case classInterrupted:
		return syscall.EINTR
	default:
		return syscall.EIO
	}
}

func fileType(meta vfs.Metadata) uint32 {
	switch {
	case meta.IsDir():
		return syscall.S_IFDIR
	case meta.IsSymlink():
		return syscall.S_IFLNK
	default:
		return syscall.S_IFREG
	}
}

func fillAttr(out *fuse.Attr, meta vfs.Metadata) {
	out.Mode = fileType(meta) | uint32(meta.Perm)
	out.Size = meta.Size
	out.Nlink = 1
	switch {
	case meta.IsDir():
		out.Nlink = 2
	case meta.IsSymlink():
		out.Size = uint64(len(meta.LinkTarget))
	}
	out.Blksize = blockSize
	out.Blocks = (out.Size + 511) / 512
	out.SetTimes(&meta.Atime, &meta.Mtime, &meta.Ctime)
}

// Node is a directory, file or symlink of the namespace.
type Node struct {
	gofs.Inode
	fs   *FileSystem
	path string
}

var (
	_ gofs.NodeLookuper   = (*Node)(nil)
	_ gofs.NodeGetattrer  = (*Node)(nil)
	_ gofs.NodeReaddirer  = (*Node)(nil)
	_ gofs.NodeReadlinker = (*Node)(nil)
	_ gofs.NodeOpener     = (*Node)(nil)
	_ gofs.NodeStatfser   = (*Node)(nil)
	_ gofs.NodeSetattrer  = (*Node)(nil)
	_ gofs.NodeCreater    = (*Node)(nil)
	_ gofs.NodeMkdirer    = (*Node)(nil)
	_ gofs.NodeUnlinker   = (*Node)(nil)
	_ gofs.NodeRmdirer    = (*Node)(nil)
	_ gofs.NodeRenamer    = (*Node)(nil)
	_ gofs.NodeSymlinker  = (*Node)(nil)
)

func (n *Node) child(name string) string {
	return path.Join(n.path, name)
}

// Lookup looks up a child node by name
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	n.fs.stats.lookups.Add(1)

	p := n.child(name)
	meta, err := n.fs.fsys.Metadata(ctx, p)
	if err != nil {
		return nil, n.fs.errno("lookup", p, err)
	}
	fillAttr(&out.Attr, meta)

	child := &Node{fs: n.fs, path: p}
	return n.NewInode(ctx, child, gofs.StableAttr{Mode: fileType(meta)}), 0
}

func (n *Node) Getattr(ctx context.Context, _ gofs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	meta, err := n.fs.fsys.Metadata(ctx, n.path)
	if err != nil {
		return n.fs.errno("getattr", n.path, err)
	}
	fillAttr(&out.Attr, meta)
	return 0
}

// Readdir reads directory contents
func (n *Node) Readdir(ctx context.Context) (gofs.DirStream, syscall.Errno) {
	entries, err := n.fs.fsys.ListDir(ctx, n.path)
	if err != nil {
		return nil, n.fs.errno("readdir", n.path, err)
	}

	list := make([]fuse.DirEntry, 0, len(entries))
	for _, meta := range entries {
		list = append(list, fuse.DirEntry{Name: meta.Name, Mode: fileType(meta)})
	}
	return gofs.NewListDirStream(list), 0
}

func (n *Node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := n.fs.fsys.Readlink(ctx, n.path)
	if classify(err) == classNotDir {
		return nil, syscall.EINVAL
	}
	if err != nil {
		return nil, n.fs.errno("readlink", n.path, err)
	}
	return []byte(target), 0
}

// Open opens a file for reading. Snapshot content never changes, so the
// kernel page cache is kept across opens.
func (n *Node) Open(ctx context.Context, flags uint32) (gofs.FileHandle, uint32, syscall.Errno) {
	n.fs.stats.opens.Add(1)

	file, err := n.fs.fsys.Open(ctx, n.path, vfs.AccessFromFlags(int(flags)))
	if err != nil {
		return nil, 0, n.fs.errno("open", n.path, err)
	}
	return &fileHandle{fs: n.fs, file: file}, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	out.Bsize = blockSize
	out.Frsize = blockSize
	out.NameLen = 255
	return 0
}

func (n *Node) Setattr(ctx context.Context, _ gofs.FileHandle, _ *fuse.SetAttrIn, _ *fuse.AttrOut) syscall.Errno {
	return n.fs.errno("setattr", n.path, n.forbid(ctx, n.path))
}

func (n *Node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofs.Inode, gofs.FileHandle, uint32, syscall.Errno) {
	p := n.child(name)
	_, err := n.fs.fsys.Open(ctx, p, vfs.Access{Create: true, Write: true})
	return nil, nil, 0, n.fs.errno("create", p, err)
}

func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	p := n.child(name)
	return nil, n.fs.errno("mkdir", p, n.forbid(ctx, p))
}

func (n *Node) Unlink(ctx context.Context, name string) syscall.Errno {
	p := n.child(name)
	return n.fs.errno("unlink", p, n.forbid(ctx, p))
}

func (n *Node) Rmdir(ctx context.Context, name string) syscall.Errno {
	p := n.child(name)
	return n.fs.errno("rmdir", p, n.forbid(ctx, p))
}

func (n *Node) Rename(ctx context.Context, name string, _ gofs.InodeEmbedder, _ string, _ uint32) syscall.Errno {
	p := n.child(name)
	return n.fs.errno("rename", p, n.forbid(ctx, p))
}

func (n *Node) Symlink(ctx context.Context, _, name string, _ *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	p := n.child(name)
	return nil, n.fs.errno("symlink", p, n.forbid(ctx, p))
}

// forbid runs a write-class open against p so mutations are refused by the
// same check that guards every other write.
func (n *Node) forbid(ctx context.Context, p string) error {
	_, err := n.fs.fsys.Open(ctx, p, vfs.Access{Write: true})
	return err
}

type fileHandle struct {
	fs   *FileSystem
	file *vfs.OpenFile
}

var _ gofs.FileReader = (*fileHandle)(nil)

func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if off < 0 {
		return nil, syscall.EINVAL
	}
	data, err := h.file.ReadAt(ctx, uint64(off), len(dest))
	if err != nil {
		return nil, h.fs.errno("read", h.file.Path(), err)
	}
	h.fs.stats.reads.Add(1)
	h.fs.stats.bytesRead.Add(int64(len(data)))
	return fuse.ReadResultData(data), 0
}
