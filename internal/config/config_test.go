package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/objectfs/snapfs/internal/template"
	"github.com/objectfs/snapfs/internal/vfs"
	"github.com/objectfs/snapfs/pkg/errors"
)

// Test Constants
const (
	TestDebugLevel = "DEBUG"
	TestCacheSize  = "1GB"
)

func validConfig() *Configuration {
	cfg := NewDefault()
	cfg.Repository.Path = "/srv/repo"
	return cfg
}

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	if cfg.Global.LogLevel != "INFO" {
		t.Errorf("Expected LogLevel to be INFO, got %s", cfg.Global.LogLevel)
	}
	if cfg.Namespace.PathTemplate != template.DefaultPathTemplate {
		t.Errorf("Expected default path template, got %s", cfg.Namespace.PathTemplate)
	}
	if cfg.Namespace.TimeTemplate != "%Y-%m-%d_%H-%M-%S" {
		t.Errorf("Expected default time template, got %s", cfg.Namespace.TimeTemplate)
	}
	if cfg.Namespace.Symlinks {
		t.Error("Expected Symlinks to be false by default")
	}
	if cfg.Repository.CacheSize != "256MB" {
		t.Errorf("Expected CacheSize to be 256MB, got %s", cfg.Repository.CacheSize)
	}
	if cfg.Bridge.Mode != "" {
		t.Errorf("Expected bridge mode to be left to the adapter, got %s", cfg.Bridge.Mode)
	}
	if cfg.Bridge.Workers != vfs.DefaultBridgeWorkers {
		t.Errorf("Expected %d bridge workers, got %d", vfs.DefaultBridgeWorkers, cfg.Bridge.Workers)
	}
	if cfg.Repository.Retry.MaxAttempts != 3 || cfg.Repository.Retry.BreakerThreshold != 5 {
		t.Errorf("Unexpected retry defaults %+v", cfg.Repository.Retry)
	}
	if cfg.Mount.AttrTimeout != time.Minute {
		t.Errorf("Expected AttrTimeout to be 1m, got %v", cfg.Mount.AttrTimeout)
	}

	size, err := cfg.CacheBytes()
	if err != nil || size != 256<<20 {
		t.Errorf("CacheBytes() = %d, %v", size, err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Configuration)
		wantErr bool
		code    errors.ErrorCode
	}{
		{name: "valid config", modify: func(*Configuration) {}},
		{name: "lowercase level", modify: func(c *Configuration) { c.Global.LogLevel = "warning" }},
		{
			name:    "invalid log level",
			modify:  func(c *Configuration) { c.Global.LogLevel = "LOUD" },
			wantErr: true, code: errors.ErrCodeConfigValidation,
		},
		{
			name:    "invalid log format",
			modify:  func(c *Configuration) { c.Global.LogFormat = "xml" },
			wantErr: true, code: errors.ErrCodeConfigValidation,
		},
		{
			name:    "unknown placeholder",
			modify:  func(c *Configuration) { c.Namespace.PathTemplate = "{hostname}/{bogus}" },
			wantErr: true, code: errors.ErrCodeConfigurationError,
		},
		{
			name:    "empty snapshot specifier",
			modify:  func(c *Configuration) { c.Namespace.Snapshot = ":/etc" },
			wantErr: true, code: errors.ErrCodeConfigurationError,
		},
		{
			name:    "missing local path",
			modify:  func(c *Configuration) { c.Repository.Path = "" },
			wantErr: true, code: errors.ErrCodeConfigValidation,
		},
		{
			name:    "s3 without bucket",
			modify:  func(c *Configuration) { c.Repository.Backend = BackendS3 },
			wantErr: true, code: errors.ErrCodeConfigValidation,
		},
		{
			name: "s3 with bucket",
			modify: func(c *Configuration) {
				c.Repository.Backend = BackendS3
				c.Repository.S3.Bucket = "backups"
			},
		},
		{
			name:    "unknown backend",
			modify:  func(c *Configuration) { c.Repository.Backend = "ftp" },
			wantErr: true, code: errors.ErrCodeConfigValidation,
		},
		{
			name:    "bad cache size",
			modify:  func(c *Configuration) { c.Repository.CacheSize = "lots" },
			wantErr: true, code: errors.ErrCodeConfigValidation,
		},
		{
			name:    "huge chunk size",
			modify:  func(c *Configuration) { c.Repository.ChunkSize = "1GB" },
			wantErr: true, code: errors.ErrCodeConfigValidation,
		},
		{
			name:    "unknown compression",
			modify:  func(c *Configuration) { c.Repository.Compression = "brotli" },
			wantErr: true, code: errors.ErrCodeConfigValidation,
		},
		{
			name:    "zero retry attempts",
			modify:  func(c *Configuration) { c.Repository.Retry.MaxAttempts = 0 },
			wantErr: true, code: errors.ErrCodeConfigValidation,
		},
		{
			name:    "negative breaker threshold",
			modify:  func(c *Configuration) { c.Repository.Retry.BreakerThreshold = -1 },
			wantErr: true, code: errors.ErrCodeConfigValidation,
		},
		{name: "breaker disabled", modify: func(c *Configuration) { c.Repository.Retry.BreakerThreshold = 0 }},
		{
			name:    "bad bridge mode",
			modify:  func(c *Configuration) { c.Bridge.Mode = "auto" },
			wantErr: true, code: errors.ErrCodeConfigValidation,
		},
		{
			name:    "webdav prefix without slash",
			modify:  func(c *Configuration) { c.WebDAV.Prefix = "dav" },
			wantErr: true, code: errors.ErrCodeConfigValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && errors.CodeOf(err) != tt.code {
				t.Errorf("Validate() code = %s, want %s", errors.CodeOf(err), tt.code)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "snapfs.yaml")

	configContent := `
global:
  log_level: DEBUG
  metrics_addr: localhost:9100
namespace:
  path_template: "{hostname}/{time}"
  symlinks: true
  filter:
    hostnames: [laptop, desktop]
    tags: [daily]
repository:
  backend: s3
  cache_size: 1GB
  s3:
    bucket: backups
    prefix: laptop
mount:
  attr_timeout: 5s
webdav:
  prefix: /snapshots
bridge:
  mode: inline
`
	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(configFile); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Global.LogLevel != TestDebugLevel {
		t.Errorf("Expected LogLevel to be DEBUG, got %s", cfg.Global.LogLevel)
	}
	if cfg.Namespace.PathTemplate != "{hostname}/{time}" {
		t.Errorf("Unexpected path template %s", cfg.Namespace.PathTemplate)
	}
	if cfg.LinkPolicy() != vfs.AsSymlink {
		t.Error("Expected symlink link policy")
	}
	if len(cfg.Namespace.Filter.Hostnames) != 2 || cfg.Namespace.Filter.Tags[0] != "daily" {
		t.Errorf("Unexpected filter %+v", cfg.Namespace.Filter)
	}
	if cfg.Repository.S3.Bucket != "backups" || cfg.Repository.S3.Prefix != "laptop" {
		t.Errorf("Unexpected s3 config %+v", cfg.Repository.S3)
	}
	// Values absent from the file keep their defaults.
	if cfg.Repository.S3.Region != "us-east-1" {
		t.Errorf("Expected default region, got %s", cfg.Repository.S3.Region)
	}
	if got := cfg.Mount.AttrTimeout; got != 5*time.Second {
		t.Errorf("Expected AttrTimeout 5s, got %v", got)
	}
	if cfg.BridgeMode(vfs.BridgeOffload) != vfs.BridgeInline {
		t.Error("Expected configured inline bridge mode")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := NewDefault()
	err := cfg.LoadFromFile("/nonexistent/config.yaml")
	if !errors.HasCode(err, errors.ErrCodeConfigLoad) {
		t.Errorf("Expected CONFIG_LOAD error, got %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("global: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	err = cfg.LoadFromFile(bad)
	if !errors.HasCode(err, errors.ErrCodeConfigLoad) {
		t.Errorf("Expected CONFIG_LOAD error, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	testEnvVars := map[string]string{
		"SNAPFS_LOG_LEVEL":          "ERROR",
		"SNAPFS_METRICS_ADDR":       ":9100",
		"SNAPFS_CACHE_SIZE":         TestCacheSize,
		"SNAPFS_SYMLINKS":           "true",
		"SNAPFS_BACKEND":            "s3",
		"SNAPFS_S3_BUCKET":          "env-bucket",
		"SNAPFS_BRIDGE_MODE":        "offload",
		"SNAPFS_BRIDGE_WORKERS":     "4",
		"SNAPFS_SNAPSHOT":           "latest:/home",
		"SNAPFS_RETRY_MAX_ATTEMPTS": "7",
	}
	for key, value := range testEnvVars {
		t.Setenv(key, value)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Global.LogLevel != "ERROR" {
		t.Errorf("Expected LogLevel to be ERROR, got %s", cfg.Global.LogLevel)
	}
	if cfg.Global.MetricsAddr != ":9100" {
		t.Errorf("Expected MetricsAddr :9100, got %s", cfg.Global.MetricsAddr)
	}
	if cfg.Repository.CacheSize != TestCacheSize {
		t.Errorf("Expected CacheSize to be 1GB, got %s", cfg.Repository.CacheSize)
	}
	if !cfg.Namespace.Symlinks {
		t.Error("Expected Symlinks to be true")
	}
	if cfg.Repository.Backend != BackendS3 || cfg.Repository.S3.Bucket != "env-bucket" {
		t.Errorf("Unexpected repository %+v", cfg.Repository)
	}
	if cfg.Bridge.Workers != 4 || cfg.BridgeMode(vfs.BridgeInline) != vfs.BridgeOffload {
		t.Errorf("Unexpected bridge %+v", cfg.Bridge)
	}
	if cfg.Namespace.Snapshot != "latest:/home" {
		t.Errorf("Unexpected snapshot %s", cfg.Namespace.Snapshot)
	}
	if cfg.Repository.Retry.MaxAttempts != 7 {
		t.Errorf("Expected 7 retry attempts, got %d", cfg.Repository.Retry.MaxAttempts)
	}
}

func TestLoadFromEnvInvalidInteger(t *testing.T) {
	t.Setenv("SNAPFS_BRIDGE_WORKERS", "many")

	cfg := NewDefault()
	err := cfg.LoadFromEnv()
	if !errors.HasCode(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("Expected INVALID_CONFIG error, got %v", err)
	}
	if cfg.Bridge.Workers != vfs.DefaultBridgeWorkers {
		t.Errorf("Workers changed to %d", cfg.Bridge.Workers)
	}
}

func TestBridgeModeFallback(t *testing.T) {
	cfg := NewDefault()
	if cfg.BridgeMode(vfs.BridgeInline) != vfs.BridgeInline {
		t.Error("Expected fallback inline")
	}
	if cfg.BridgeMode(vfs.BridgeOffload) != vfs.BridgeOffload {
		t.Error("Expected fallback offload")
	}
}

func TestLogging(t *testing.T) {
	cfg := NewDefault()
	cfg.Global.LogFile = "/var/log/snapfs.log"

	lc := cfg.Logging()
	if lc.MaxSize != 100<<20 {
		t.Errorf("Expected 100MB max size, got %d", lc.MaxSize)
	}
	if lc.OutputPath != "/var/log/snapfs.log" || lc.MaxBackups != 5 {
		t.Errorf("Unexpected logging config %+v", lc)
	}
}

func TestSaveToFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "nested", "dir", "saved.yaml")

	cfg := validConfig()
	cfg.Global.LogLevel = TestDebugLevel
	cfg.Namespace.Filter.Labels = []string{"nightly"}
	if err := cfg.SaveToFile(configFile); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded := NewDefault()
	if err := loaded.LoadFromFile(configFile); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Global.LogLevel != TestDebugLevel {
		t.Errorf("Expected LogLevel DEBUG, got %s", loaded.Global.LogLevel)
	}
	if len(loaded.Namespace.Filter.Labels) != 1 || loaded.Namespace.Filter.Labels[0] != "nightly" {
		t.Errorf("Unexpected labels %v", loaded.Namespace.Filter.Labels)
	}
	if loaded.Repository.Path != "/srv/repo" {
		t.Errorf("Unexpected path %s", loaded.Repository.Path)
	}
}
