package vfs

import (
	"io/fs"
	"sync"
	"time"

	"github.com/objectfs/snapfs/pkg/errors"
	"github.com/objectfs/snapfs/pkg/types"
)

const (
	syntheticDirMode = 0o555
	defaultFileMode  = 0o444
	defaultDirMode   = 0o555
	symlinkMode      = 0o777
)

var (
	nowOnce  sync.Once
	nowValue time.Time
)

// Now returns the process start reference time used for missing
// timestamps. It is sampled once so repeated queries stay stable.
func Now() time.Time {
	nowOnce.Do(func() { nowValue = time.Now() })
	return nowValue
}

// Metadata describes a namespace entry as seen by protocol adapters.
type Metadata struct {
	Name       string
	Kind       types.NodeKind
	Size       uint64
	Perm       fs.FileMode
	Mtime      time.Time
	Atime      time.Time
	Ctime      time.Time
	LinkTarget string
	Synthetic  bool

	mode *uint32
}

// MetadataOf maps a repository node to metadata. Missing timestamps fall
// back to Now.
func MetadataOf(node types.Node) Metadata {
	meta := Metadata{
		Name:       node.Name,
		Kind:       node.Kind,
		Size:       node.Meta.Size,
		Mtime:      timeOrNow(node.Meta.Mtime),
		Atime:      timeOrNow(node.Meta.Atime),
		Ctime:      timeOrNow(node.Meta.Ctime),
		LinkTarget: node.LinkTarget,
		mode:       node.Meta.Mode,
	}

	switch {
	case node.Meta.Mode != nil:
		meta.Perm = fs.FileMode(*node.Meta.Mode) & fs.ModePerm
	case node.IsDir():
		meta.Perm = defaultDirMode
	case node.IsSymlink():
		meta.Perm = symlinkMode
	default:
		meta.Perm = defaultFileMode
	}
	if node.IsDir() {
		meta.Size = 0
	}
	return meta
}

func syntheticDirMetadata(name string) Metadata {
	now := Now()
	return Metadata{
		Name:      name,
		Kind:      types.NodeDir,
		Perm:      syntheticDirMode,
		Mtime:     now,
		Atime:     now,
		Ctime:     now,
		Synthetic: true,
	}
}

func timeOrNow(t *time.Time) time.Time {
	if t == nil {
		return Now()
	}
	return *t
}

// IsDir reports whether the entry is a directory.
func (m Metadata) IsDir() bool { return m.Kind == types.NodeDir }

// IsSymlink reports whether the entry is a symbolic link.
func (m Metadata) IsSymlink() bool { return m.Kind == types.NodeSymlink }

// Mode returns the permission bits combined with the file type bits.
func (m Metadata) Mode() fs.FileMode {
	switch m.Kind {
	case types.NodeDir:
		return fs.ModeDir | m.Perm
	case types.NodeSymlink:
		return fs.ModeSymlink | m.Perm
	default:
		return m.Perm
	}
}

// Executable reports whether a file has the owner execute bit. A file
// without recorded mode is not executable. Directories and symlinks return
// NOT_IMPLEMENTED.
func (m Metadata) Executable() (bool, error) {
	if m.Kind != types.NodeFile {
		return false, errors.NotImplemented("executable")
	}
	if m.mode == nil {
		return false, nil
	}
	return *m.mode&0o100 != 0, nil
}
