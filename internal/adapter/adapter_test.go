package adapter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/objectfs/snapfs/internal/config"
	"github.com/objectfs/snapfs/internal/repository"
	"github.com/objectfs/snapfs/internal/storage/local"
	"github.com/objectfs/snapfs/internal/vfs"
	"github.com/objectfs/snapfs/pkg/errors"
	"github.com/objectfs/snapfs/pkg/health"
	"github.com/objectfs/snapfs/pkg/types"
)

func TestApplyRepositoryURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		uri         string
		wantBackend string
		wantPath    string
		wantBucket  string
		wantPrefix  string
		errContains string
	}{
		{
			name:        "plain path",
			uri:         "/srv/backups",
			wantBackend: config.BackendLocal,
			wantPath:    "/srv/backups",
		},
		{
			name:        "relative path",
			uri:         "backups",
			wantBackend: config.BackendLocal,
			wantPath:    "backups",
		},
		{
			name:        "file URI",
			uri:         "file:///srv/backups",
			wantBackend: config.BackendLocal,
			wantPath:    "/srv/backups",
		},
		{
			name:        "s3 bucket",
			uri:         "s3://my-bucket",
			wantBackend: config.BackendS3,
			wantBucket:  "my-bucket",
		},
		{
			name:        "s3 bucket with prefix",
			uri:         "s3://my.bucket/path/to/repo/",
			wantBackend: config.BackendS3,
			wantBucket:  "my.bucket",
			wantPrefix:  "path/to/repo",
		},
		{
			name:        "s3 URI without bucket",
			uri:         "s3://",
			errContains: "bucket name",
		},
		{
			name:        "file URI without path",
			uri:         "file://",
			errContains: "must include a path",
		},
		{
			name:        "unsupported scheme",
			uri:         "gcs://my-bucket",
			errContains: "unsupported repository scheme",
		},
		{
			name:        "invalid URI",
			uri:         "://invalid",
			errContains: "failed to parse",
		},
		{
			name:        "empty",
			uri:         "",
			errContains: "cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewDefault().Repository
			err := ApplyRepositoryURI(&cfg, tt.uri)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("ApplyRepositoryURI(%q) error = %v, should contain %q", tt.uri, err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyRepositoryURI(%q) error = %v", tt.uri, err)
			}
			if cfg.Backend != tt.wantBackend {
				t.Errorf("Backend = %q, want %q", cfg.Backend, tt.wantBackend)
			}
			if tt.wantPath != "" && cfg.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", cfg.Path, tt.wantPath)
			}
			if cfg.S3.Bucket != tt.wantBucket {
				t.Errorf("S3.Bucket = %q, want %q", cfg.S3.Bucket, tt.wantBucket)
			}
			if cfg.S3.Prefix != tt.wantPrefix {
				t.Errorf("S3.Prefix = %q, want %q", cfg.S3.Prefix, tt.wantPrefix)
			}
		})
	}
}

// seedRepository writes two snapshots of host h1 (days 1 and 2, identical
// trees) and one of host h2, each holding a single file.
func seedRepository(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	dir := t.TempDir()
	backend, err := local.NewBackend(dir)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	w := repository.NewWriter(backend, repository.WriterOptions{ChunkSize: 16, Compression: repository.CompressionZstd})
	if err := w.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	file, err := w.File(ctx, "notes.txt", []byte("snapshot notes"), nil, nil)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	tree, err := w.Tree(ctx, []types.Node{file})
	if err != nil {
		t.Fatalf("Tree() error = %v", err)
	}

	for _, snap := range []types.SnapshotFile{
		{Time: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Hostname: "h1", Label: "daily", Tree: tree},
		{Time: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), Hostname: "h1", Label: "daily", Tree: tree},
		{Time: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), Hostname: "h2", Label: "daily", Tree: tree},
	} {
		if _, err := w.Snapshot(ctx, snap); err != nil {
			t.Fatalf("Snapshot() error = %v", err)
		}
	}
	return dir
}

func createTestConfig(t *testing.T) *config.Configuration {
	t.Helper()
	cfg := config.NewDefault()
	cfg.Repository.Path = seedRepository(t)
	cfg.Namespace.PathTemplate = "{hostname}/{time}"
	cfg.Namespace.TimeTemplate = "%Y-%m-%d"
	return cfg
}

func TestNew(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("valid configuration", func(t *testing.T) {
		a, err := New(ctx, createTestConfig(t))
		if err != nil {
			t.Fatalf("New() error = %v, want nil", err)
		}
		defer a.Stop(ctx)

		if a.Repository() == nil {
			t.Fatal("Repository() returned nil")
		}
		if a.Metrics() == nil {
			t.Fatal("Metrics() returned nil")
		}
		if got := a.Repository().ChunkSize(); got != 16 {
			t.Errorf("ChunkSize() = %d, want 16", got)
		}

		a.Health().CheckNow(ctx)
		for _, c := range a.Health().Components() {
			if c.State != health.StateHealthy {
				t.Errorf("component %s is %s: %s", c.Name, c.State, c.LastError)
			}
		}
		if n := len(a.Health().Components()); n != 2 {
			t.Errorf("Health() tracks %d components, want 2", n)
		}
	})

	t.Run("invalid configuration", func(t *testing.T) {
		cfg := config.NewDefault()
		_, err := New(ctx, cfg)
		if !errors.HasCode(err, errors.ErrCodeConfigValidation) {
			t.Errorf("New() error = %v, want CONFIG_VALIDATION", err)
		}
	})

	t.Run("uninitialized repository", func(t *testing.T) {
		cfg := config.NewDefault()
		cfg.Repository.Path = t.TempDir()
		_, err := New(ctx, cfg)
		if !errors.HasCode(err, errors.ErrCodeInvalidConfig) {
			t.Errorf("New() error = %v, want INVALID_CONFIG", err)
		}
	})
}

func TestSnapshotsFilter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := createTestConfig(t)
	cfg.Namespace.Filter.Hostnames = []string{"h1"}
	a, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Stop(ctx)

	snapshots, err := a.Snapshots(ctx)
	if err != nil {
		t.Fatalf("Snapshots() error = %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("Snapshots() returned %d snapshots, want 2", len(snapshots))
	}
	for _, snap := range snapshots {
		if snap.Hostname != "h1" {
			t.Errorf("snapshot %s has hostname %q, want h1", snap.ID.Short(), snap.Hostname)
		}
	}
}

func TestFilesystem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	a, err := New(ctx, createTestConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Stop(ctx)

	fsys, err := a.Filesystem(ctx, vfs.BridgeOffload)
	if err != nil {
		t.Fatalf("Filesystem() error = %v", err)
	}

	entries, err := fsys.ListDir(ctx, "/")
	if err != nil {
		t.Fatalf("ListDir(/) error = %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	if got := strings.Join(names, ","); got != "h1,h2" {
		t.Errorf("ListDir(/) = %s, want h1,h2", got)
	}

	entries, err = fsys.ListDir(ctx, "/h1")
	if err != nil {
		t.Fatalf("ListDir(/h1) error = %v", err)
	}
	names = names[:0]
	for _, e := range entries {
		names = append(names, e.Name)
	}
	if got := strings.Join(names, ","); got != "2024-05-01,2024-05-02,latest" {
		t.Errorf("ListDir(/h1) = %s, want 2024-05-01,2024-05-02,latest", got)
	}
	if stats := fsys.Tree().Stats(); stats.Identical != 1 {
		t.Errorf("Stats().Identical = %d, want 1", stats.Identical)
	}

	f, err := fsys.Open(ctx, "/h2/latest/notes.txt", vfs.Access{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, err := f.ReadAt(ctx, 0, 64)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if string(data) != "snapshot notes" {
		t.Errorf("ReadAt() = %q, want %q", data, "snapshot notes")
	}
}

func TestFilesystemSpecifier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := createTestConfig(t)
	cfg.Namespace.Snapshot = "latest"
	a, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Stop(ctx)

	fsys, err := a.Filesystem(ctx, vfs.BridgeInline)
	if err != nil {
		t.Fatalf("Filesystem() error = %v", err)
	}
	meta, err := fsys.Stat(ctx, "/notes.txt")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if meta.Size != uint64(len("snapshot notes")) {
		t.Errorf("Size = %d, want %d", meta.Size, len("snapshot notes"))
	}

	cfg = createTestConfig(t)
	cfg.Namespace.Snapshot = "ffffffff"
	a, err = New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Stop(ctx)
	if _, err := a.Filesystem(ctx, vfs.BridgeInline); !errors.IsNotExist(err) {
		t.Errorf("Filesystem() error = %v, want not found", err)
	}
}

func TestNewWriter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := config.NewDefault()
	cfg.Repository.Path = t.TempDir()
	cfg.Repository.ChunkSize = "64KB"
	cfg.Repository.Compression = "lz4"

	w, err := NewWriter(ctx, cfg)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	if err := w.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	a, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() after Init error = %v", err)
	}
	defer a.Stop(ctx)
	if got := a.Repository().ChunkSize(); got != 64*1024 {
		t.Errorf("ChunkSize() = %d, want %d", got, 64*1024)
	}
}
