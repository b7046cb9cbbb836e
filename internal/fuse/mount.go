//go:build !cgofuse

package fuse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/objectfs/snapfs/pkg/errors"
)

// MountManager manages FUSE mount operations
type MountManager struct {
	filesystem *FileSystem
	config     *MountConfig
	logger     *zap.Logger

	mu      sync.Mutex
	server  *fuse.Server
	mounted atomic.Bool
	done    chan struct{}
}

// NewMountManager creates a new mount manager
func NewMountManager(filesystem *FileSystem, config *MountConfig) *MountManager {
	config = config.withDefaults()
	return &MountManager{
		filesystem: filesystem,
		config:     config,
		logger:     config.Logger,
	}
}

// Mount mounts the filesystem at the configured mount point and serves it
// in the background until Unmount is called or the kernel drops the mount.
func (m *MountManager) Mount(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mounted.Load() {
		return errors.NewError(errors.ErrCodeMountFailed, "filesystem is already mounted").
			WithPath(m.config.Mountpoint)
	}
	if err := m.validateMountPoint(); err != nil {
		return errors.NewError(errors.ErrCodeMountFailed, "invalid mount point").
			WithPath(m.config.Mountpoint).
			WithCause(err)
	}

	server, err := gofs.Mount(m.config.Mountpoint, m.filesystem.Root(), m.buildFUSEOptions())
	if err != nil {
		return errors.NewError(errors.ErrCodeMountFailed, "failed to mount filesystem").
			WithPath(m.config.Mountpoint).
			WithCause(err)
	}

	m.server = server
	m.done = make(chan struct{})
	m.mounted.Store(true)
	m.logger.Info("snapshot filesystem mounted", zap.String("mountpoint", m.config.Mountpoint))

	done := m.done
	go func() {
		server.Wait()
		m.mounted.Store(false)
		m.logger.Info("FUSE server stopped", zap.String("mountpoint", m.config.Mountpoint))
		close(done)
	}()

	return nil
}

// Unmount unmounts the filesystem
func (m *MountManager) Unmount() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mounted.Load() || m.server == nil {
		return errors.NewError(errors.ErrCodeUnmountFailed, "filesystem is not mounted").
			WithPath(m.config.Mountpoint)
	}

	m.logger.Info("unmounting filesystem", zap.String("mountpoint", m.config.Mountpoint))
	if err := m.server.Unmount(); err != nil {
		m.logger.Warn("normal unmount failed, trying lazy unmount", zap.Error(err))
		if forceErr := m.forceUnmount(); forceErr != nil {
			return errors.NewError(errors.ErrCodeUnmountFailed,
				fmt.Sprintf("unmount failed (lazy unmount also failed: %v)", forceErr)).
				WithPath(m.config.Mountpoint).
				WithCause(err)
		}
	}

	<-m.done
	m.server = nil
	return nil
}

// IsMounted returns whether the filesystem is currently mounted
func (m *MountManager) IsMounted() bool {
	return m.mounted.Load()
}

// GetMountPoint returns the current mount point
func (m *MountManager) GetMountPoint() string {
	return m.config.Mountpoint
}

// Wait blocks until the FUSE server stops serving.
func (m *MountManager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// GetStats returns filesystem statistics
func (m *MountManager) GetStats() *FilesystemStats {
	return m.filesystem.GetStats()
}

func (m *MountManager) validateMountPoint() error {
	if m.config.Mountpoint == "" {
		return fmt.Errorf("mount point cannot be empty")
	}

	info, err := os.Stat(m.config.Mountpoint)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("mount point does not exist: %s", m.config.Mountpoint)
		}
		return fmt.Errorf("cannot access mount point: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mount point is not a directory: %s", m.config.Mountpoint)
	}

	entries, err := os.ReadDir(m.config.Mountpoint)
	if err != nil {
		return fmt.Errorf("cannot read mount point directory: %w", err)
	}
	if len(entries) > 0 {
		m.logger.Warn("mount point is not empty", zap.String("mountpoint", m.config.Mountpoint))
	}

	if isMounted(m.config.Mountpoint) {
		return fmt.Errorf("mount point %s is already mounted", m.config.Mountpoint)
	}
	return nil
}

func (m *MountManager) buildFUSEOptions() *gofs.Options {
	attrTimeout := m.config.AttrTimeout
	entryTimeout := m.config.EntryTimeout
	return &gofs.Options{
		MountOptions: fuse.MountOptions{
			Name:       m.config.FSName,
			FsName:     m.config.FSName,
			Debug:      m.config.Debug,
			AllowOther: m.config.AllowOther,
			Options:    []string{"ro", "default_permissions"},
		},
		AttrTimeout:  &attrTimeout,
		EntryTimeout: &entryTimeout,
		UID:          m.config.UID,
		GID:          m.config.GID,
	}
}

// isMounted reports whether mountpoint appears as a mount target in
// /proc/mounts. Systems without /proc report false.
func isMounted(mountpoint string) bool {
	data, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return false
	}
	target := filepath.Clean(mountpoint)
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) > 1 && fields[1] == target {
			return true
		}
	}
	return false
}

func (m *MountManager) forceUnmount() error {
	// MNT_DETACH, then MNT_FORCE.
	if err := syscall.Unmount(m.config.Mountpoint, 2); err == nil {
		return nil
	}
	return syscall.Unmount(m.config.Mountpoint, 1)
}
