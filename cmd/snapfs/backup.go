package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/objectfs/snapfs/internal/adapter"
	"github.com/objectfs/snapfs/internal/logging"
	"github.com/objectfs/snapfs/pkg/types"
	"github.com/objectfs/snapfs/pkg/utils"
)

func addWriteFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("compression", "", "chunk compression: none, lz4 or zstd")
	f.String("chunk-size", "", "size of stored file chunks (e.g. 1MB)")
}

func newInitCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := adapter.NewWriter(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			if err := w.Init(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized repository (%s backend)\n", opts.cfg.Repository.Backend)
			return nil
		},
	}
	addWriteFlags(cmd)
	return cmd
}

func newBackupCmd(opts *options) *cobra.Command {
	var (
		hostname string
		label    string
		tags     []string
	)
	cmd := &cobra.Command{
		Use:   "backup DIR",
		Short: "Store DIR as a new snapshot",
		Long: `Store the directory tree at DIR as a new snapshot. Content already in the
repository is not stored again. The repository is initialized if needed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if hostname == "" {
				if hostname, err = os.Hostname(); err != nil {
					return fmt.Errorf("determining hostname: %w", err)
				}
			}

			w, err := adapter.NewWriter(ctx, opts.cfg)
			if err != nil {
				return err
			}
			if err := w.Init(ctx); err != nil {
				return err
			}

			start := time.Now().UTC()
			tree, stats, err := w.ImportDir(ctx, dir)
			if err != nil {
				return err
			}
			end := time.Now().UTC()

			snap := types.SnapshotFile{
				Time:     start,
				Hostname: hostname,
				Label:    label,
				Tags:     types.TagList(tags),
				Paths:    []string{dir},
				Summary:  &types.Summary{BackupStart: start, BackupEnd: end},
				Tree:     tree,
			}
			if u, err := user.Current(); err == nil {
				snap.Username = u.Username
			}
			id, err := w.Snapshot(ctx, snap)
			if err != nil {
				return err
			}

			logging.Named("backup").Info("snapshot stored",
				zap.String("id", id.String()),
				zap.String("path", dir),
				zap.Int("files", stats.Files),
				zap.Int("dirs", stats.Dirs),
				zap.Int("skipped", stats.Skipped),
				zap.Duration("duration", end.Sub(start)))
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s saved: %d files, %d directories, %d symlinks, %s\n",
				id.Short(), stats.Files, stats.Dirs, stats.Symlinks, utils.FormatBytes(stats.Bytes))
			return nil
		},
	}
	addWriteFlags(cmd)
	f := cmd.Flags()
	f.StringVar(&hostname, "host", "", "hostname recorded in the snapshot (default: this host)")
	f.StringVar(&label, "label", "", "label recorded in the snapshot")
	f.StringSliceVar(&tags, "tag", nil, "tags recorded in the snapshot")
	return cmd
}
