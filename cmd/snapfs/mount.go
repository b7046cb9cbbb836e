package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/objectfs/snapfs/internal/adapter"
	"github.com/objectfs/snapfs/internal/config"
	"github.com/objectfs/snapfs/internal/fuse"
	"github.com/objectfs/snapfs/internal/logging"
	"github.com/objectfs/snapfs/internal/vfs"
	"github.com/objectfs/snapfs/pkg/errors"
)

func newMountCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount [MOUNTPOINT]",
		Short: "Mount the snapshot tree with FUSE",
		Long: `Mount the snapshot tree read-only at MOUNTPOINT and serve it until
interrupted. The mount is released on SIGINT or SIGTERM.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.cfg.Mount.Mountpoint = args[0]
			}
			if opts.cfg.Mount.Mountpoint == "" {
				return errors.ConfigurationError("a mountpoint is required")
			}
			return runMount(cmd.Context(), opts.cfg)
		},
	}
	addNamespaceFlags(cmd)
	f := cmd.Flags()
	f.String("fsname", "", "filesystem name shown in the mount table")
	f.Bool("allow-other", false, "allow other users to access the mount")
	f.Bool("debug", false, "log every FUSE request")
	f.Duration("attr-timeout", 0, "kernel attribute cache timeout")
	f.Duration("entry-timeout", 0, "kernel entry cache timeout")
	return cmd
}

func runMount(ctx context.Context, cfg *config.Configuration) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := adapter.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Stop(context.Background())
	if err := a.Start(ctx); err != nil {
		return err
	}

	fsys, err := a.Filesystem(ctx, vfs.BridgeInline)
	if err != nil {
		return err
	}

	logger := logging.Named("mount")
	mgr := fuse.CreatePlatformMountManager(fsys, &fuse.MountConfig{
		Mountpoint:   cfg.Mount.Mountpoint,
		FSName:       cfg.Mount.FSName,
		AllowOther:   cfg.Mount.AllowOther,
		Debug:        cfg.Mount.Debug,
		AttrTimeout:  cfg.Mount.AttrTimeout,
		EntryTimeout: cfg.Mount.EntryTimeout,
		Logger:       logging.Named("fuse"),
	})
	if err := mgr.Mount(ctx); err != nil {
		return err
	}
	logger.Info("snapshots mounted", zap.String("mountpoint", cfg.Mount.Mountpoint))

	done := make(chan struct{})
	go func() {
		mgr.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		logger.Info("unmounting", zap.String("mountpoint", cfg.Mount.Mountpoint))
		if err := mgr.Unmount(); err != nil {
			return err
		}
	case <-done:
	}

	stats := mgr.GetStats()
	logger.Info("mount released",
		zap.Int64("lookups", stats.Lookups),
		zap.Int64("opens", stats.Opens),
		zap.Int64("reads", stats.Reads),
		zap.Int64("bytes_read", stats.BytesRead),
		zap.Int64("errors", stats.Errors))
	return nil
}
