package main

import (
	"github.com/spf13/cobra"

	"github.com/objectfs/snapfs/internal/adapter"
	"github.com/objectfs/snapfs/internal/config"
	"github.com/objectfs/snapfs/internal/logging"
)

// options carries state shared by every subcommand.
type options struct {
	configFile string
	cfg        *config.Configuration
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "snapfs",
		Short: "Browse backup snapshots as a read-only filesystem",
		Long: `snapfs presents the snapshots of a content-addressed backup repository
as one read-only directory tree. Snapshots are laid out by a path template
such as "{hostname}/{label}/{time}", each group gets a "latest" entry, and
repeated snapshots are folded into links to their identical predecessor.

The tree can be mounted with FUSE or served over WebDAV.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "path to a YAML configuration file")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json)")
	flags.String("log-file", "", "write logs to this file instead of stderr")
	flags.StringP("repo", "r", "", "repository location: a path, file:// URI or s3://bucket/prefix")
	flags.String("cache-size", "", "chunk cache size (e.g. 256MB)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.Bool("verify", false, "verify object ids when loading")

	cmd.AddCommand(
		newMountCmd(opts),
		newWebDAVCmd(opts),
		newSnapshotsCmd(opts),
		newInitCmd(opts),
		newBackupCmd(opts),
	)
	return cmd
}

// load builds the configuration: defaults, then the config file, then
// SNAPFS_* variables, then flags given on the command line.
func (o *options) load(cmd *cobra.Command) error {
	cfg := config.NewDefault()
	if o.configFile != "" {
		if err := cfg.LoadFromFile(o.configFile); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logging.Init(cfg.Logging()); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

// applyFlags copies the flags set on the command line into cfg. Flags a
// subcommand does not define are never reported as changed.
func applyFlags(cmd *cobra.Command, cfg *config.Configuration) error {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if flags.Changed(name) {
			*dst, _ = flags.GetBool(name)
		}
	}
	list := func(name string, dst *[]string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetStringSlice(name)
		}
	}

	str("log-level", &cfg.Global.LogLevel)
	str("log-format", &cfg.Global.LogFormat)
	str("log-file", &cfg.Global.LogFile)
	str("metrics-addr", &cfg.Global.MetricsAddr)
	str("cache-size", &cfg.Repository.CacheSize)
	boolean("verify", &cfg.Repository.Verify)
	if flags.Changed("repo") {
		uri, _ := flags.GetString("repo")
		if err := adapter.ApplyRepositoryURI(&cfg.Repository, uri); err != nil {
			return err
		}
	}

	str("path-template", &cfg.Namespace.PathTemplate)
	str("time-template", &cfg.Namespace.TimeTemplate)
	boolean("symlinks", &cfg.Namespace.Symlinks)
	str("snapshot", &cfg.Namespace.Snapshot)
	list("filter-host", &cfg.Namespace.Filter.Hostnames)
	list("filter-label", &cfg.Namespace.Filter.Labels)
	list("filter-tag", &cfg.Namespace.Filter.Tags)
	list("filter-path", &cfg.Namespace.Filter.Paths)

	str("bridge", &cfg.Bridge.Mode)
	if flags.Changed("bridge-workers") {
		cfg.Bridge.Workers, _ = flags.GetInt("bridge-workers")
	}

	str("fsname", &cfg.Mount.FSName)
	boolean("allow-other", &cfg.Mount.AllowOther)
	boolean("debug", &cfg.Mount.Debug)
	if flags.Changed("attr-timeout") {
		cfg.Mount.AttrTimeout, _ = flags.GetDuration("attr-timeout")
	}
	if flags.Changed("entry-timeout") {
		cfg.Mount.EntryTimeout, _ = flags.GetDuration("entry-timeout")
	}

	str("listen", &cfg.WebDAV.Listen)
	str("prefix", &cfg.WebDAV.Prefix)

	str("compression", &cfg.Repository.Compression)
	str("chunk-size", &cfg.Repository.ChunkSize)
	return nil
}

// addFilterFlags registers the snapshot selection flags.
func addFilterFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSlice("filter-host", nil, "only snapshots from these hostnames")
	f.StringSlice("filter-label", nil, "only snapshots with these labels")
	f.StringSlice("filter-tag", nil, "only snapshots carrying all of these tags")
	f.StringSlice("filter-path", nil, "only snapshots of these backup paths")
}

// addNamespaceFlags registers the flags shaping the served tree.
func addNamespaceFlags(cmd *cobra.Command) {
	addFilterFlags(cmd)
	f := cmd.Flags()
	f.String("path-template", "", "path template, e.g. {hostname}/{label}/{time}")
	f.String("time-template", "", "strftime format for {time}, {backup_start} and {backup_end}")
	f.Bool("symlinks", false, "present latest and identical entries as symlinks")
	f.StringP("snapshot", "s", "", "serve a single SNAPSHOT[:PATH] (id prefix or latest)")
	f.String("bridge", "", "how repository calls run: inline or offload")
	f.Int("bridge-workers", 0, "maximum concurrent offloaded repository calls")
}
