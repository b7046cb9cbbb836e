//go:build !cgofuse

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

// CreatePlatformMountManager creates the appropriate mount manager for the platform
func CreatePlatformMountManager(fsys *vfs.Filesystem, config *MountConfig) PlatformFileSystem {
	return NewMountManager(NewFileSystem(fsys, config), config)
}
