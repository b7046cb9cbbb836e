package adapter

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/objectfs/snapfs/internal/cache"
	"github.com/objectfs/snapfs/internal/circuit"
	"github.com/objectfs/snapfs/internal/config"
	"github.com/objectfs/snapfs/internal/logging"
	"github.com/objectfs/snapfs/internal/metrics"
	"github.com/objectfs/snapfs/internal/repository"
	"github.com/objectfs/snapfs/internal/storage"
	"github.com/objectfs/snapfs/internal/storage/local"
	"github.com/objectfs/snapfs/internal/storage/s3"
	"github.com/objectfs/snapfs/internal/vfs"
	"github.com/objectfs/snapfs/pkg/errors"
	"github.com/objectfs/snapfs/pkg/health"
	"github.com/objectfs/snapfs/pkg/retry"
	"github.com/objectfs/snapfs/pkg/types"
)

// Adapter owns the components behind one served namespace: the storage
// backend, the chunk cache, the metrics collector and the repository.
type Adapter struct {
	config *config.Configuration
	logger *zap.Logger

	backend types.Backend
	cache   *cache.LRUCache
	metrics *metrics.Collector
	health  *health.Tracker
	repo    *repository.Repository
}

// New validates cfg and opens the repository it points at.
func New(ctx context.Context, cfg *config.Configuration) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Address:   cfg.Global.MetricsAddr,
		Path:      "/metrics",
		Namespace: "snapfs",
	})
	if err != nil {
		return nil, err
	}

	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if b, ok := backend.(*s3.Backend); ok {
		b.SetMetrics(collector)
	}
	guarded := guard(cfg, backend)
	backend = guarded

	tracker := health.NewTracker(health.DefaultConfig())
	tracker.Register("backend", guarded.HealthCheck)
	tracker.Register("breaker", func(context.Context) error {
		if state := guarded.BreakerState(); state == circuit.StateOpen {
			return fmt.Errorf("circuit breaker is %s", state)
		}
		return nil
	})
	collector.Handle("/healthz", tracker.Handler())

	cacheBytes, err := cfg.CacheBytes()
	if err != nil {
		return nil, errors.ConfigurationError("invalid cache_size: %v", err)
	}
	chunks := cache.NewLRUCache(&cache.CacheConfig{MaxSize: cacheBytes})
	chunks.SetMetrics(collector)

	logger := logging.Named("adapter")
	repo, err := repository.Open(ctx, backend, repository.Options{
		Cache:       chunks,
		Concurrency: cfg.Repository.Concurrency,
		Verify:      cfg.Repository.Verify,
		Logger:      logging.Named("repository"),
	})
	if err != nil {
		return nil, err
	}

	logger.Info("repository opened",
		zap.String("backend", cfg.Repository.Backend),
		zap.String("location", location(cfg)),
		zap.Int64("cache_bytes", cacheBytes))

	return &Adapter{
		config:  cfg,
		logger:  logger,
		backend: backend,
		cache:   chunks,
		metrics: collector,
		health:  tracker,
		repo:    repo,
	}, nil
}

// Repository returns the opened repository.
func (a *Adapter) Repository() *repository.Repository { return a.repo }

// Metrics returns the collector every component reports to.
func (a *Adapter) Metrics() *metrics.Collector { return a.metrics }

// Health returns the tracker served on /healthz next to the metrics.
func (a *Adapter) Health() *health.Tracker { return a.health }

// Snapshots lists the repository snapshots matching the configured filter,
// oldest first.
func (a *Adapter) Snapshots(ctx context.Context) ([]types.SnapshotFile, error) {
	all, err := a.repo.Snapshots(ctx)
	if err != nil {
		return nil, err
	}
	selected := a.config.Namespace.Filter.Apply(all)
	a.logger.Debug("snapshots selected",
		zap.Int("total", len(all)),
		zap.Int("selected", len(selected)))
	return selected, nil
}

// Filesystem builds the namespace and returns the operation surface the
// protocol adapters serve. fallback is the bridge mode used when the
// configuration leaves it unset.
func (a *Adapter) Filesystem(ctx context.Context, fallback vfs.BridgeMode) (*vfs.Filesystem, error) {
	snapshots, err := a.Snapshots(ctx)
	if err != nil {
		return nil, err
	}

	var tree *vfs.FsTree
	if a.config.Namespace.Snapshot != "" {
		spec, err := vfs.ParseSpecifier(a.config.Namespace.Snapshot)
		if err != nil {
			return nil, err
		}
		node, err := vfs.ResolveSpecifier(ctx, a.repo, snapshots, spec)
		if err != nil {
			return nil, err
		}
		tree = vfs.BuildFromNode(node)
		a.logger.Info("serving single snapshot", zap.String("snapshot", spec.String()))
	} else {
		tree, err = vfs.BuildFromSnapshots(snapshots, vfs.BuildOptions{
			PathTemplate: a.config.Namespace.PathTemplate,
			TimeTemplate: a.config.Namespace.TimeTemplate,
			Latest:       a.config.LinkPolicy(),
			Identical:    a.config.LinkPolicy(),
			Logger:       logging.Named("namespace"),
		})
		if err != nil {
			return nil, err
		}
	}

	mode := a.config.BridgeMode(fallback)
	a.logger.Info("namespace ready",
		zap.Int("snapshots", len(snapshots)),
		zap.String("bridge", mode.String()),
		zap.Int("workers", a.config.Bridge.Workers))

	return vfs.New(tree, a.repo, vfs.Options{
		Bridge:  vfs.NewBridge(mode, a.config.Bridge.Workers),
		Metrics: a.metrics,
		Logger:  logging.Named("vfs"),
	}), nil
}

// Start serves the metrics endpoint when one is configured and starts the
// periodic health checks. Both stop when ctx is done.
func (a *Adapter) Start(ctx context.Context) error {
	if err := a.metrics.Start(ctx); err != nil {
		return err
	}
	go a.health.Run(ctx)
	return nil
}

// Stop shuts the metrics endpoint down and drops cached chunks.
func (a *Adapter) Stop(ctx context.Context) error {
	a.cache.Clear()
	if err := a.metrics.Stop(ctx); err != nil {
		return fmt.Errorf("stopping metrics: %w", err)
	}
	a.logger.Debug("adapter stopped")
	return nil
}

// OpenBackend opens the storage backend selected by cfg.
func OpenBackend(ctx context.Context, cfg *config.Configuration) (types.Backend, error) {
	switch cfg.Repository.Backend {
	case config.BackendLocal:
		backend, err := local.NewBackend(cfg.Repository.Path)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeConnectionFailed, "failed to open local repository").
				WithPath(cfg.Repository.Path).WithCause(err)
		}
		return backend, nil
	case config.BackendS3:
		s3cfg := cfg.Repository.S3
		backend, err := s3.NewBackend(ctx, &s3cfg)
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeConnectionFailed, "failed to open s3 repository").
				WithPath(s3cfg.Bucket).WithCause(err)
		}
		return backend, nil
	}
	return nil, errors.ConfigurationError("unsupported repository backend: %s", cfg.Repository.Backend)
}

// guard wraps backend with the configured retry and circuit breaker policy.
func guard(cfg *config.Configuration, backend types.Backend) *storage.Guard {
	rc := cfg.Repository.Retry
	return storage.NewGuard(cfg.Repository.Backend, backend, storage.GuardOptions{
		Retry: retry.Config{
			MaxAttempts:  rc.MaxAttempts,
			InitialDelay: rc.InitialDelay,
			MaxDelay:     rc.MaxDelay,
			Multiplier:   2,
			Jitter:       true,
		},
		Breaker: circuit.Config{
			Threshold: uint32(rc.BreakerThreshold),
			Timeout:   rc.BreakerTimeout,
		},
		Logger: logging.Named("storage"),
	})
}

// NewWriter opens the configured backend for writing, using the configured
// chunk size and compression.
func NewWriter(ctx context.Context, cfg *config.Configuration) (*repository.Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	chunkSize, err := cfg.ChunkBytes()
	if err != nil {
		return nil, errors.ConfigurationError("invalid chunk_size: %v", err)
	}
	compression, err := repository.ParseCompression(cfg.Repository.Compression)
	if err != nil {
		return nil, err
	}
	backend, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return repository.NewWriter(guard(cfg, backend), repository.WriterOptions{
		ChunkSize:   int(chunkSize),
		Compression: compression,
	}), nil
}

// ApplyRepositoryURI points cfg at uri. s3://bucket/prefix selects the S3
// backend; file:///path or a plain path selects the local backend.
func ApplyRepositoryURI(cfg *config.RepositoryConfig, uri string) error {
	if uri == "" {
		return fmt.Errorf("repository location cannot be empty")
	}
	if !strings.Contains(uri, "://") {
		cfg.Backend = config.BackendLocal
		cfg.Path = uri
		return nil
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("failed to parse repository URI: %w", err)
	}

	switch parsed.Scheme {
	case "s3":
		if parsed.Host == "" {
			return fmt.Errorf("S3 URI must include bucket name")
		}
		cfg.Backend = config.BackendS3
		cfg.S3.Bucket = parsed.Host
		cfg.S3.Prefix = strings.Trim(parsed.Path, "/")
	case "file":
		if parsed.Path == "" {
			return fmt.Errorf("file URI must include a path")
		}
		cfg.Backend = config.BackendLocal
		cfg.Path = filepath.FromSlash(parsed.Path)
	default:
		return fmt.Errorf("unsupported repository scheme: %s (must be s3 or file)", parsed.Scheme)
	}
	return nil
}

func location(cfg *config.Configuration) string {
	if cfg.Repository.Backend == config.BackendS3 {
		loc := "s3://" + cfg.Repository.S3.Bucket
		if cfg.Repository.S3.Prefix != "" {
			loc += "/" + cfg.Repository.S3.Prefix
		}
		return loc
	}
	return cfg.Repository.Path
}
