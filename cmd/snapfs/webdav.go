package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/objectfs/snapfs/internal/adapter"
	"github.com/objectfs/snapfs/internal/config"
	"github.com/objectfs/snapfs/internal/logging"
	"github.com/objectfs/snapfs/internal/vfs"
	"github.com/objectfs/snapfs/internal/webdav"
)

func newWebDAVCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webdav",
		Short: "Serve the snapshot tree over WebDAV",
		Long: `Serve the snapshot tree read-only over WebDAV until interrupted.
Write methods are answered with 403 Forbidden.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWebDAV(cmd.Context(), opts.cfg)
		},
	}
	addNamespaceFlags(cmd)
	f := cmd.Flags()
	f.StringP("listen", "l", "", "address to listen on (default localhost:8000)")
	f.String("prefix", "", "URL path to serve under")
	return cmd
}

func runWebDAV(ctx context.Context, cfg *config.Configuration) error {
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

	fsys, err := a.Filesystem(ctx, vfs.BridgeOffload)
	if err != nil {
		return err
	}

	srv := webdav.NewServer(fsys, webdav.Config{
		Listen: cfg.WebDAV.Listen,
		Prefix: cfg.WebDAV.Prefix,
		Logger: logging.Named("webdav"),
	})
	return srv.ListenAndServe(ctx)
}
