package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/objectfs/snapfs/internal/logging"
	"github.com/objectfs/snapfs/internal/repository"
	"github.com/objectfs/snapfs/internal/storage/s3"
	"github.com/objectfs/snapfs/internal/template"
	"github.com/objectfs/snapfs/internal/vfs"
	"github.com/objectfs/snapfs/pkg/errors"
	"github.com/objectfs/snapfs/pkg/utils"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SNAPFS_"

// Configuration represents the complete application configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Namespace  NamespaceConfig  `yaml:"namespace"`
	Repository RepositoryConfig `yaml:"repository"`
	Mount      MountConfig      `yaml:"mount"`
	WebDAV     WebDAVConfig     `yaml:"webdav"`
	Bridge     BridgeConfig     `yaml:"bridge"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	LogFile       string `yaml:"log_file"`
	LogMaxSize    string `yaml:"log_max_size"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	MetricsAddr   string `yaml:"metrics_addr"`
}

// NamespaceConfig selects the snapshots to serve and how they are laid out.
type NamespaceConfig struct {
	PathTemplate string `yaml:"path_template"`
	TimeTemplate string `yaml:"time_template"`
	// Symlinks presents latest and identical entries as symlinks instead
	// of directories.
	Symlinks bool `yaml:"symlinks"`
	// Snapshot, when set, mounts a single SNAPSHOT[:PATH] directly.
	Snapshot string             `yaml:"snapshot"`
	Filter   vfs.SnapshotFilter `yaml:"filter"`
}

// RepositoryConfig locates the backing repository.
type RepositoryConfig struct {
	Backend     string      `yaml:"backend"`
	Path        string      `yaml:"path"`
	S3          s3.Config   `yaml:"s3"`
	CacheSize   string      `yaml:"cache_size"`
	Compression string      `yaml:"compression"`
	ChunkSize   string      `yaml:"chunk_size"`
	Verify      bool        `yaml:"verify"`
	Concurrency int         `yaml:"concurrency"`
	Retry       RetryConfig `yaml:"retry"`
}

// RetryConfig controls how failing backend calls are retried and when the
// backend is considered down.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`

	// BreakerThreshold consecutive failures stop calls to the backend for
	// BreakerTimeout. Zero disables the breaker.
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerTimeout   time.Duration `yaml:"breaker_timeout"`
}

// MountConfig configures the FUSE adapter.
type MountConfig struct {
	Mountpoint   string        `yaml:"mountpoint"`
	FSName       string        `yaml:"fsname"`
	AllowOther   bool          `yaml:"allow_other"`
	Debug        bool          `yaml:"debug"`
	AttrTimeout  time.Duration `yaml:"attr_timeout"`
	EntryTimeout time.Duration `yaml:"entry_timeout"`
}

// WebDAVConfig configures the WebDAV adapter.
type WebDAVConfig struct {
	Listen string `yaml:"listen"`
	Prefix string `yaml:"prefix"`
}

// BridgeConfig selects how repository calls are executed. An empty mode
// lets each adapter pick its default.
type BridgeConfig struct {
	Mode    string `yaml:"mode"`
	Workers int    `yaml:"workers"`
}

// Backend kinds.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	s3cfg := s3.NewDefaultConfig()
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:      "INFO",
			LogFormat:     "console",
			LogMaxSize:    "100MB",
			LogMaxBackups: 5,
		},
		Namespace: NamespaceConfig{
			PathTemplate: template.DefaultPathTemplate,
			TimeTemplate: template.DefaultTimeTemplate,
		},
		Repository: RepositoryConfig{
			Backend:     BackendLocal,
			S3:          *s3cfg,
			CacheSize:   "256MB",
			Compression: "zstd",
			ChunkSize:   "1MB",
			Concurrency: 8,
			Retry: RetryConfig{
				MaxAttempts:      3,
				InitialDelay:     100 * time.Millisecond,
				MaxDelay:         2 * time.Second,
				BreakerThreshold: 5,
				BreakerTimeout:   30 * time.Second,
			},
		},
		Mount: MountConfig{
			FSName:       "snapfs",
			AttrTimeout:  time.Minute,
			EntryTimeout: time.Minute,
		},
		WebDAV: WebDAVConfig{
			Listen: "localhost:8000",
			Prefix: "/",
		},
		Bridge: BridgeConfig{
			Workers: vfs.DefaultBridgeWorkers,
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to read config file").
			WithPath(filename).
			WithCause(err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to parse config file").
			WithPath(filename).
			WithCause(err)
	}

	return nil
}

// LoadFromEnv applies SNAPFS_* environment overrides.
func (c *Configuration) LoadFromEnv() error {
	str := func(name string, dst *string) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			*dst = val
		}
	}
	boolean := func(name string, dst *bool) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			*dst = strings.ToLower(val) == "true"
		}
	}
	var firstErr error
	integer := func(name string, dst *int) {
		if val := os.Getenv(EnvPrefix + name); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil && firstErr == nil {
				firstErr = errors.NewError(errors.ErrCodeInvalidConfig, "invalid integer in "+EnvPrefix+name).WithCause(err)
				return
			}
			*dst = n
		}
	}

	// Global settings
	str("LOG_LEVEL", &c.Global.LogLevel)
	str("LOG_FORMAT", &c.Global.LogFormat)
	str("LOG_FILE", &c.Global.LogFile)
	str("METRICS_ADDR", &c.Global.MetricsAddr)

	// Namespace
	str("PATH_TEMPLATE", &c.Namespace.PathTemplate)
	str("TIME_TEMPLATE", &c.Namespace.TimeTemplate)
	boolean("SYMLINKS", &c.Namespace.Symlinks)
	str("SNAPSHOT", &c.Namespace.Snapshot)

	// Repository
	str("BACKEND", &c.Repository.Backend)
	str("REPOSITORY", &c.Repository.Path)
	str("CACHE_SIZE", &c.Repository.CacheSize)
	str("S3_BUCKET", &c.Repository.S3.Bucket)
	str("S3_PREFIX", &c.Repository.S3.Prefix)
	str("S3_REGION", &c.Repository.S3.Region)
	str("S3_ENDPOINT", &c.Repository.S3.Endpoint)
	boolean("S3_FORCE_PATH_STYLE", &c.Repository.S3.ForcePathStyle)

	// Adapters
	str("MOUNTPOINT", &c.Mount.Mountpoint)
	boolean("ALLOW_OTHER", &c.Mount.AllowOther)
	str("WEBDAV_LISTEN", &c.WebDAV.Listen)
	str("WEBDAV_PREFIX", &c.WebDAV.Prefix)
	str("BRIDGE_MODE", &c.Bridge.Mode)
	integer("BRIDGE_WORKERS", &c.Bridge.Workers)
	integer("RETRY_MAX_ATTEMPTS", &c.Repository.Retry.MaxAttempts)

	return firstErr
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration. The path template is compiled so an
// unknown placeholder is reported before any server starts.
func (c *Configuration) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.NewError(errors.ErrCodeConfigValidation, fmt.Sprintf(format, args...)).
			WithComponent("config")
	}

	if _, err := logging.ParseLevel(c.Global.LogLevel); err != nil {
		return invalid("invalid log_level: %s", c.Global.LogLevel)
	}
	switch c.Global.LogFormat {
	case "", "json", "console":
	default:
		return invalid("invalid log_format: %s (must be json or console)", c.Global.LogFormat)
	}
	if c.Global.LogMaxSize != "" {
		if _, err := utils.ParseBytes(c.Global.LogMaxSize); err != nil {
			return invalid("invalid log_max_size: %v", err)
		}
	}

	if _, err := template.Compile(c.Namespace.PathTemplate, c.Namespace.TimeTemplate); err != nil {
		return err
	}
	if c.Namespace.Snapshot != "" {
		if _, err := vfs.ParseSpecifier(c.Namespace.Snapshot); err != nil {
			return err
		}
	}

	switch c.Repository.Backend {
	case BackendLocal:
		if c.Repository.Path == "" {
			return invalid("repository.path is required for the local backend")
		}
	case BackendS3:
		if err := c.Repository.S3.Validate(); err != nil {
			return invalid("repository.s3: %v", err)
		}
	default:
		return invalid("invalid repository backend: %s (must be local or s3)", c.Repository.Backend)
	}
	if _, err := c.CacheBytes(); err != nil {
		return invalid("invalid cache_size: %v", err)
	}
	if _, err := c.ChunkBytes(); err != nil {
		return invalid("invalid chunk_size: %v", err)
	}
	if _, err := repository.ParseCompression(c.Repository.Compression); err != nil {
		return invalid("invalid compression: %v", err)
	}
	if c.Repository.Concurrency <= 0 {
		return invalid("repository.concurrency must be greater than 0")
	}
	if c.Repository.Retry.MaxAttempts <= 0 {
		return invalid("repository.retry.max_attempts must be greater than 0")
	}
	if c.Repository.Retry.BreakerThreshold < 0 {
		return invalid("repository.retry.breaker_threshold cannot be negative")
	}

	if c.Bridge.Mode != "" {
		if _, err := vfs.ParseBridgeMode(c.Bridge.Mode); err != nil {
			return invalid("invalid bridge mode: %s (must be inline or offload)", c.Bridge.Mode)
		}
	}
	if c.Bridge.Workers < 0 {
		return invalid("bridge.workers cannot be negative")
	}
	if !strings.HasPrefix(c.WebDAV.Prefix, "/") {
		return invalid("webdav.prefix must start with /")
	}

	return nil
}

// CacheBytes returns the repository cache size in bytes.
func (c *Configuration) CacheBytes() (int64, error) {
	return utils.ParseBytes(c.Repository.CacheSize)
}

// ChunkBytes returns the chunk size used when writing repositories.
func (c *Configuration) ChunkBytes() (int64, error) {
	n, err := utils.ParseBytes(c.Repository.ChunkSize)
	if err != nil {
		return 0, err
	}
	if n <= 0 || n > 64<<20 {
		return 0, fmt.Errorf("chunk size must be between 1B and 64MB")
	}
	return n, nil
}

// BridgeMode returns the configured bridge mode, or fallback when none is set.
func (c *Configuration) BridgeMode(fallback vfs.BridgeMode) vfs.BridgeMode {
	if mode, err := vfs.ParseBridgeMode(c.Bridge.Mode); err == nil {
		return mode
	}
	return fallback
}

// LinkPolicy returns how latest and identical entries are presented.
func (c *Configuration) LinkPolicy() vfs.LinkPolicy {
	if c.Namespace.Symlinks {
		return vfs.AsSymlink
	}
	return vfs.AsDir
}

// Logging returns the logger configuration.
func (c *Configuration) Logging() logging.Config {
	maxSize, _ := utils.ParseBytes(c.Global.LogMaxSize)
	return logging.Config{
		Level:      c.Global.LogLevel,
		Format:     c.Global.LogFormat,
		OutputPath: c.Global.LogFile,
		MaxSize:    maxSize,
		MaxBackups: c.Global.LogMaxBackups,
	}
}
