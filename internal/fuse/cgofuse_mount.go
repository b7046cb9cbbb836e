//go:build cgofuse

package fuse

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/winfsp/cgofuse/fuse"
	"go.uber.org/zap"

	"github.com/objectfs/snapfs/pkg/errors"
)

// CgoFuseMountManager manages cgofuse-based mounts
type CgoFuseMountManager struct {
	filesystem *CgoFuseFS
	config     *MountConfig
	logger     *zap.Logger

	mu   sync.Mutex
	host *fuse.FileSystemHost
	done chan struct{}
}

// NewCgoFuseMountManager creates a new cgofuse mount manager
func NewCgoFuseMountManager(filesystem *CgoFuseFS, config *MountConfig) *CgoFuseMountManager {
	config = config.withDefaults()
	return &CgoFuseMountManager{
		filesystem: filesystem,
		config:     config,
		logger:     config.Logger,
	}
}

func (m *CgoFuseMountManager) options() []string {
	opts := []string{"-o", "ro", "-o", "fsname=" + m.config.FSName}
	if m.config.AllowOther {
		opts = append(opts, "-o", "allow_other")
	}
	if m.config.Debug {
		opts = append(opts, "-d")
	}
	opts = append(opts,
		"-o", fmt.Sprintf("attr_timeout=%d", int(m.config.AttrTimeout.Seconds())),
		"-o", fmt.Sprintf("entry_timeout=%d", int(m.config.EntryTimeout.Seconds())),
	)
	switch runtime.GOOS {
	case "darwin":
		opts = append(opts, "-o", "volname="+m.config.FSName)
	case "windows":
		opts = append(opts, "-o", "FileSystemName="+m.config.FSName)
	}
	return opts
}

// Mount mounts the filesystem and returns once the host reports it live.
func (m *CgoFuseMountManager) Mount(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.host != nil {
		return errors.NewError(errors.ErrCodeMountFailed, "filesystem is already mounted").
			WithPath(m.config.Mountpoint)
	}

	host := fuse.NewFileSystemHost(m.filesystem)
	done := make(chan struct{})
	failed := make(chan struct{})
	go func() {
		defer close(done)
		if !host.Mount(m.config.Mountpoint, m.options()) {
			close(failed)
		}
	}()

	select {
	case <-m.filesystem.ready:
	case <-failed:
		return errors.NewError(errors.ErrCodeMountFailed, "failed to mount filesystem").
			WithPath(m.config.Mountpoint)
	case <-ctx.Done():
		host.Unmount()
		<-done
		return ctx.Err()
	}

	m.host = host
	m.done = done
	m.logger.Info("snapshot filesystem mounted", zap.String("mountpoint", m.config.Mountpoint))
	return nil
}

// Unmount unmounts the filesystem
func (m *CgoFuseMountManager) Unmount() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.host == nil {
		return errors.NewError(errors.ErrCodeUnmountFailed, "filesystem is not mounted").
			WithPath(m.config.Mountpoint)
	}
	if !m.host.Unmount() {
		return errors.NewError(errors.ErrCodeUnmountFailed, "unmount failed").
			WithPath(m.config.Mountpoint)
	}
	<-m.done
	m.host = nil
	m.logger.Info("snapshot filesystem unmounted", zap.String("mountpoint", m.config.Mountpoint))
	return nil
}

// Wait blocks until the host stops serving.
func (m *CgoFuseMountManager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// IsMounted returns whether the filesystem is mounted
func (m *CgoFuseMountManager) IsMounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.host == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// GetStats returns filesystem statistics
func (m *CgoFuseMountManager) GetStats() *FilesystemStats {
	return m.filesystem.GetStats()
}
