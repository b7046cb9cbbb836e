package types

import (
	"context"
	"time"
)

// Repository is the read-only view of a backup repository consumed by the
// virtual filesystem layer. Implementations must be safe for concurrent use;
// callers never serialize access.
type Repository interface {
	// Snapshots returns every snapshot stored in the repository.
	Snapshots(ctx context.Context) ([]SnapshotFile, error)

	// Lookup returns the child called name inside the directory tree
	// identified by tree. A missing child is reported with an error
	// wrapping fs.ErrNotExist.
	Lookup(ctx context.Context, tree ID, name string) (Node, error)

	// ReadDir returns the children of the directory tree identified by tree.
	ReadDir(ctx context.Context, tree ID) ([]Node, error)

	// OpenFile prepares a file node for ranged reads.
	OpenFile(ctx context.Context, node Node) (*OpenedFile, error)

	// ReadFileAt reads at most count bytes starting at offset. Fewer bytes
	// are returned at end of file.
	ReadFileAt(ctx context.Context, file *OpenedFile, offset uint64, count int) ([]byte, error)
}

// Backend defines the interface for the blob storage holding a repository
type Backend interface {
	// Object operations
	GetObject(ctx context.Context, key string, offset, size int64) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte) error
	HeadObject(ctx context.Context, key string) (*ObjectInfo, error)

	// List operations
	ListObjects(ctx context.Context, prefix string, limit int) ([]ObjectInfo, error)

	// Health check
	HealthCheck(ctx context.Context) error
}

// Cache defines the caching interface used for decoded repository objects
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte)
	Delete(key string)
	Size() int64
	Stats() CacheStats
}

// MetricsCollector defines the metrics collection interface
type MetricsCollector interface {
	RecordOperation(operation string, duration time.Duration, size int64, success bool)
	RecordCacheHit(key string, size int64)
	RecordCacheMiss(key string, size int64)
	RecordError(operation string, err error)
	GetMetrics() map[string]interface{}
}
