package fuse

import (
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/objectfs/snapfs/internal/logging"
)

// FilesystemStats represents filesystem operation statistics
type FilesystemStats struct {
	Lookups   int64 `json:"lookups"`
	Opens     int64 `json:"opens"`
	Reads     int64 `json:"reads"`
	BytesRead int64 `json:"bytes_read"`
	Errors    int64 `json:"errors"`
}

type counters struct {
	lookups   atomic.Int64
	opens     atomic.Int64
	reads     atomic.Int64
	bytesRead atomic.Int64
	errors    atomic.Int64
}

func (c *counters) snapshot() *FilesystemStats {
	return &FilesystemStats{
		Lookups:   c.lookups.Load(),
		Opens:     c.opens.Load(),
		Reads:     c.reads.Load(),
		BytesRead: c.bytesRead.Load(),
		Errors:    c.errors.Load(),
	}
}

// MountConfig contains mount-specific configuration
type MountConfig struct {
	Mountpoint   string
	FSName       string
	AllowOther   bool
	Debug        bool
	AttrTimeout  time.Duration
	EntryTimeout time.Duration

	// Owner reported for every entry. Zero means the mounting process.
	UID uint32
	GID uint32

	Logger *zap.Logger
}

func (c *MountConfig) withDefaults() *MountConfig {
	out := MountConfig{}
	if c != nil {
		out = *c
	}
	if out.FSName == "" {
		out.FSName = "snapfs"
	}
	if out.AttrTimeout == 0 {
		out.AttrTimeout = time.Minute
	}
	if out.EntryTimeout == 0 {
		out.EntryTimeout = time.Minute
	}
	if out.UID == 0 && out.GID == 0 {
		out.UID = safeIntToUint32(os.Getuid())
		out.GID = safeIntToUint32(os.Getgid())
	}
	if out.Logger == nil {
		out.Logger = logging.Named("fuse")
	}
	return &out
}

// safeIntToUint32 safely converts int to uint32, preventing overflow
func safeIntToUint32(i int) uint32 {
	if i < 0 {
		return 0
	}
	if i > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(i)
}
