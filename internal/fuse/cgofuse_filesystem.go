//go:build cgofuse

package fuse

import (
	"context"
	"sync"

	"github.com/winfsp/cgofuse/fuse"
	"go.uber.org/zap"

	"github.com/objectfs/snapfs/internal/logging"
	"github.com/objectfs/snapfs/internal/vfs"
)

const blockSize = 4096

// CgoFuseFS serves a vfs.Filesystem through cgofuse, for macOS (macFUSE)
// and Windows (WinFsp).
type CgoFuseFS struct {
	fuse.FileSystemBase

	fsys   *vfs.Filesystem
	config *MountConfig
	logger *zap.Logger
	stats  counters

	// ctx bounds every request; cgofuse callbacks carry no context.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	openFiles  map[uint64]*vfs.OpenFile
	nextHandle uint64

	ready chan struct{}
	once  sync.Once
}

// NewCgoFuseFS creates a new cgofuse-based filesystem
func NewCgoFuseFS(fsys *vfs.Filesystem, config *MountConfig) *CgoFuseFS {
	config = config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &CgoFuseFS{
		fsys:       fsys,
		config:     config,
		logger:     config.Logger,
		ctx:        ctx,
		cancel:     cancel,
		openFiles:  make(map[uint64]*vfs.OpenFile),
		nextHandle: 1,
		ready:      make(chan struct{}),
	}
}

// Init is called by the host once the mount is live.
func (f *CgoFuseFS) Init() {
	f.once.Do(func() { close(f.ready) })
}

// Destroy is called by the host after unmount.
func (f *CgoFuseFS) Destroy() {
	f.cancel()
}

func (f *CgoFuseFS) errno(op, p string, err error) int {
	if err == nil {
		return 0
	}
	f.stats.errors.Add(1)
	code := toErrno(classify(err))
	if code == fuse.EIO {
		f.logger.Warn("request failed", logging.Op(op), logging.Path(p), logging.Err(err))
	}
	return -code
}

func toErrno(c errClass) int {
	switch c {
	case classOK:
		return 0
	case classNotExist:
		return fuse.ENOENT
	case classNotDir:
		return fuse.ENOTDIR
	case classIsDir:
		return fuse.EISDIR
	case classReadOnly:
		return fuse.EROFS
	case classInvalid:
		return fuse.EINVAL
	case classNotSupported:
		return fuse.ENOSYS
	case classInterrupted:
		return fuse.EINTR
	default:
		return fuse.EIO
	}
}

func accessFromFlags(flags int) vfs.Access {
	acc := flags & fuse.O_ACCMODE
	return vfs.Access{
		Write:     acc == fuse.O_WRONLY || acc == fuse.O_RDWR,
		Append:    flags&fuse.O_APPEND != 0,
		Truncate:  flags&fuse.O_TRUNC != 0,
		Create:    flags&fuse.O_CREAT != 0,
		CreateNew: flags&fuse.O_CREAT != 0 && flags&fuse.O_EXCL != 0,
	}
}

func (f *CgoFuseFS) fillStat(stat *fuse.Stat_t, meta vfs.Metadata) {
	stat.Mode = uint32(meta.Perm)
	stat.Nlink = 1
	stat.Size = int64(meta.Size)
	switch {
	case meta.IsDir():
		stat.Mode |= fuse.S_IFDIR
		stat.Nlink = 2
	case meta.IsSymlink():
		stat.Mode |= fuse.S_IFLNK
		stat.Size = int64(len(meta.LinkTarget))
	default:
		stat.Mode |= fuse.S_IFREG
	}
	stat.Uid = f.config.UID
	stat.Gid = f.config.GID
	stat.Blksize = blockSize
	stat.Blocks = (stat.Size + 511) / 512
	stat.Atim = fuse.NewTimespec(meta.Atime)
	stat.Mtim = fuse.NewTimespec(meta.Mtime)
	stat.Ctim = fuse.NewTimespec(meta.Ctime)
	stat.Birthtim = stat.Mtim
}

// Getattr gets file attributes
func (f *CgoFuseFS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	meta, err := f.fsys.Metadata(f.ctx, path)
	if err != nil {
		return f.errno("getattr", path, err)
	}
	f.stats.lookups.Add(1)
	f.fillStat(stat, meta)
	return 0
}

func (f *CgoFuseFS) Readlink(path string) (int, string) {
	target, err := f.fsys.Readlink(f.ctx, path)
	if classify(err) == classNotDir {
		return -fuse.EINVAL, ""
	}
	if err != nil {
		return f.errno("readlink", path, err), ""
	}
	return 0, target
}

func (f *CgoFuseFS) Opendir(path string) (int, uint64) {
	meta, err := f.fsys.Stat(f.ctx, path)
	if err != nil {
		return f.errno("opendir", path, err), ^uint64(0)
	}
	if !meta.IsDir() {
		return -fuse.ENOTDIR, ^uint64(0)
	}
	return 0, 0
}

// Readdir reads directory contents
func (f *CgoFuseFS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	entries, err := f.fsys.ListDir(f.ctx, path)
	if err != nil {
		return f.errno("readdir", path, err)
	}

	fill(".", nil, 0)
	fill("..", nil, 0)
	for _, meta := range entries {
		stat := &fuse.Stat_t{}
		f.fillStat(stat, meta)
		if !fill(meta.Name, stat, 0) {
			break
		}
	}
	return 0
}

// Open opens a file
func (f *CgoFuseFS) Open(path string, flags int) (int, uint64) {
	f.stats.opens.Add(1)

	file, err := f.fsys.Open(f.ctx, path, accessFromFlags(flags))
	if err != nil {
		return f.errno("open", path, err), ^uint64(0)
	}

	f.mu.Lock()
	handle := f.nextHandle
	f.nextHandle++
	f.openFiles[handle] = file
	f.mu.Unlock()

	return 0, handle
}

// Read reads from a file
func (f *CgoFuseFS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	if ofst < 0 {
		return -fuse.EINVAL
	}
	f.mu.Lock()
	file, ok := f.openFiles[fh]
	f.mu.Unlock()
	if !ok {
		return -fuse.EBADF
	}

	data, err := file.ReadAt(f.ctx, uint64(ofst), len(buff))
	if err != nil {
		return f.errno("read", path, err)
	}
	f.stats.reads.Add(1)
	f.stats.bytesRead.Add(int64(len(data)))
	return copy(buff, data)
}

// Release closes a file
func (f *CgoFuseFS) Release(path string, fh uint64) int {
	f.mu.Lock()
	delete(f.openFiles, fh)
	f.mu.Unlock()
	return 0
}

func (f *CgoFuseFS) Statfs(path string, stat *fuse.Statfs_t) int {
	stat.Bsize = blockSize
	stat.Frsize = blockSize
	stat.Namemax = 255
	return 0
}

func (f *CgoFuseFS) forbid(op, path string) int {
	_, err := f.fsys.Open(f.ctx, path, vfs.Access{Write: true})
	return f.errno(op, path, err)
}

func (f *CgoFuseFS) Create(path string, flags int, mode uint32) (int, uint64) {
	_, err := f.fsys.Open(f.ctx, path, vfs.Access{Create: true, Write: true})
	return f.errno("create", path, err), ^uint64(0)
}

func (f *CgoFuseFS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	return f.forbid("write", path)
}

func (f *CgoFuseFS) Truncate(path string, size int64, fh uint64) int {
	return f.forbid("truncate", path)
}

func (f *CgoFuseFS) Mkdir(path string, mode uint32) int { return f.forbid("mkdir", path) }
func (f *CgoFuseFS) Unlink(path string) int { return f.forbid("unlink", path) }
func (f *CgoFuseFS) Rmdir(path string) int { return f.forbid("rmdir", path) }
func (f *CgoFuseFS) Rename(oldpath, newpath string) int { return f.forbid("rename", oldpath) }
func (f *CgoFuseFS) Symlink(target, newpath string) int { return f.forbid("symlink", newpath) }
func (f *CgoFuseFS) Chmod(path string, mode uint32) int { return f.forbid("chmod", path) }
func (f *CgoFuseFS) Utimens(path string, tmsp []fuse.Timespec) int {
	return f.forbid("utimens", path)
}

// GetStats returns filesystem statistics
func (f *CgoFuseFS) GetStats() *FilesystemStats {
	return f.stats.snapshot()
}
