//go:build cgofuse

package fuse

import (
	"context"

	"github.com/objectfs/snapfs/internal/vfs"
)

// PlatformFileSystem is a mounted snapshot namespace.
type PlatformFileSystem interface {
	Mount(ctx context.Context) error
	Unmount() error
	Wait()
	IsMounted() bool
	GetStats() *FilesystemStats
}

// CreatePlatformMountManager creates the cgofuse mount manager
func CreatePlatformMountManager(fsys *vfs.Filesystem, config *MountConfig) PlatformFileSystem {
	return NewCgoFuseMountManager(NewCgoFuseFS(fsys, config), config)
}
