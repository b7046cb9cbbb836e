package webdav

import (
	"context"
	"io"
	"mime"
	"os"
	"path"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"github.com/objectfs/snapfs/internal/logging"
	"github.com/objectfs/snapfs/internal/vfs"
	"github.com/objectfs/snapfs/pkg/errors"
)

// FS implements webdav.FileSystem over a vfs.Filesystem.
type FS struct {
	fsys   *vfs.Filesystem
	logger *zap.Logger
}

var _ webdav.FileSystem = (*FS)(nil)

// NewFS creates a WebDAV filesystem serving fsys.
func NewFS(fsys *vfs.Filesystem, logger *zap.Logger) *FS {
	if logger == nil {
		logger = logging.Named("webdav")
	}
	return &FS{fsys: fsys, logger: logger}
}

func normalizePath(name string) string {
	return path.Clean("/" + name)
}

// toOSError maps a namespace error onto the os sentinel errors the WebDAV
// handler understands.
func toOSError(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var target error
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound, errors.ErrCodeObjectNotFound:
		target = os.ErrNotExist
	case errors.ErrCodeWrongType, errors.ErrCodeInvalidSeek, errors.ErrCodeNotImplemented:
		target = os.ErrInvalid
	case errors.ErrCodeForbidden:
		target = os.ErrPermission
	default:
		target = err
	}
	return &os.PathError{Op: op, Path: name, Err: target}
}

func (fs *FS) forbid(ctx context.Context, op, name string) error {
	name = normalizePath(name)
	_, err := fs.fsys.Open(ctx, name, vfs.Access{Write: true})
	return toOSError(op, name, err)
}

// Mkdir is refused.
func (fs *FS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return fs.forbid(ctx, "mkdir", name)
}

// RemoveAll is refused.
func (fs *FS) RemoveAll(ctx context.Context, name string) error {
	return fs.forbid(ctx, "remove", name)
}

// Rename is refused.
func (fs *FS) Rename(ctx context.Context, oldName, newName string) error {
	return fs.forbid(ctx, "rename", oldName)
}

// Stat returns file info for a path, following links.
func (fs *FS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	name = normalizePath(name)
	meta, err := fs.fsys.Stat(ctx, name)
	if err != nil {
		return nil, toOSError("stat", name, err)
	}
	return fileInfo{meta: meta}, nil
}

// OpenFile opens a file or directory for reading.
func (fs *FS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	name = normalizePath(name)
	access := vfs.AccessFromFlags(flag)
	if access.IsWrite() {
		_, err := fs.fsys.Open(ctx, name, access)
		return nil, toOSError("open", name, err)
	}

	meta, err := fs.fsys.Stat(ctx, name)
	if err != nil {
		return nil, toOSError("open", name, err)
	}
	if meta.IsDir() {
		return &dir{fs: fs, ctx: ctx, name: name, info: fileInfo{meta: meta}}, nil
	}

	f, err := fs.fsys.Open(ctx, name, access)
	if err != nil {
		return nil, toOSError("open", name, err)
	}
	return &file{ctx: ctx, file: f, info: fileInfo{meta: f.Metadata()}}, nil
}

// file is an open regular file.
type file struct {
	ctx  context.Context
	file *vfs.OpenFile
	info fileInfo
}

var _ webdav.File = (*file)(nil)

func (f *file) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	data, err := f.file.Read(f.ctx, len(p))
	if err != nil {
		return 0, toOSError("read", f.file.Path(), err)
	}
	if len(data) == 0 {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (f *file) Seek(offset int64, whence int) (int64, error) {
	pos, err := f.file.Seek(offset, whence)
	if err != nil {
		return pos, toOSError("seek", f.file.Path(), err)
	}
	return pos, nil
}

func (f *file) Readdir(count int) ([]os.FileInfo, error) {
	return nil, toOSError("readdir", f.file.Path(), errors.WrongType(f.file.Path(), "not a directory"))
}

func (f *file) Stat() (os.FileInfo, error) { return f.info, nil }

func (f *file) Write(p []byte) (int, error) {
	return 0, toOSError("write", f.file.Path(), errors.Forbidden("write", f.file.Path()))
}

func (f *file) Close() error { return nil }

// dir is an open directory. Its listing is loaded on the first Readdir.
type dir struct {
	fs   *FS
	ctx  context.Context
	name string
	info fileInfo

	entries []os.FileInfo
	loaded  bool
	pos     int
}

var _ webdav.File = (*dir)(nil)

func (d *dir) load() error {
	if d.loaded {
		return nil
	}
	list, err := d.fs.fsys.ListDir(d.ctx, d.name)
	if err != nil {
		return toOSError("readdir", d.name, err)
	}

	d.entries = make([]os.FileInfo, 0, len(list))
	for _, meta := range list {
		if meta.IsSymlink() && meta.Synthetic {
			child := path.Join(d.name, meta.Name)
			target, err := d.fs.fsys.Stat(d.ctx, child)
			if err != nil {
				d.fs.logger.Warn("cannot follow link", logging.Path(child), logging.Err(err))
				continue
			}
			target.Name = meta.Name
			meta = target
		}
		d.entries = append(d.entries, fileInfo{meta: meta})
	}
	d.loaded = true
	return nil
}

// Readdir follows http.File semantics: count <= 0 returns everything left,
// otherwise at most count entries and io.EOF once the listing is exhausted.
func (d *dir) Readdir(count int) ([]os.FileInfo, error) {
	if err := d.load(); err != nil {
		return nil, err
	}

	remaining := d.entries[d.pos:]
	if count <= 0 {
		d.pos = len(d.entries)
		return remaining, nil
	}
	if len(remaining) == 0 {
		return nil, io.EOF
	}
	if count > len(remaining) {
		count = len(remaining)
	}
	d.pos += count
	return remaining[:count], nil
}

func (d *dir) Read(p []byte) (int, error) {
	return 0, toOSError("read", d.name, errors.WrongType(d.name, "is a directory"))
}

func (d *dir) Seek(offset int64, whence int) (int64, error) {
	if offset == 0 && whence == io.SeekStart {
		d.pos = 0
		return 0, nil
	}
	return 0, toOSError("seek", d.name, errors.WrongType(d.name, "is a directory"))
}

func (d *dir) Stat() (os.FileInfo, error) { return d.info, nil }

func (d *dir) Write(p []byte) (int, error) {
	return 0, toOSError("write", d.name, errors.Forbidden("write", d.name))
}

func (d *dir) Close() error { return nil }

// fileInfo adapts vfs.Metadata to os.FileInfo.
type fileInfo struct {
	meta vfs.Metadata
}

var _ webdav.ContentTyper = fileInfo{}

func (fi fileInfo) Name() string {
	if fi.meta.Name == "" {
		return "/"
	}
	return fi.meta.Name
}

func (fi fileInfo) Size() int64 { return int64(fi.meta.Size) }
func (fi fileInfo) Mode() os.FileMode { return fi.meta.Mode() }
func (fi fileInfo) ModTime() time.Time { return fi.meta.Mtime }
func (fi fileInfo) IsDir() bool { return fi.meta.IsDir() }
func (fi fileInfo) Sys() interface{} { return nil }

// ContentType guesses from the extension so PROPFIND never has to read
// file content to sniff it.
func (fi fileInfo) ContentType(ctx context.Context) (string, error) {
	if fi.IsDir() {
		return "", webdav.ErrNotImplemented
	}
	if ctype := mime.TypeByExtension(path.Ext(fi.meta.Name)); ctype != "" {
		return ctype, nil
	}
	return "application/octet-stream", nil
}
