package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/objectfs/snapfs/internal/adapter"
	"github.com/objectfs/snapfs/pkg/types"
)

func newSnapshotsCmd(opts *options) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:     "snapshots",
		Aliases: []string{"ls"},
		Short:   "List repository snapshots",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := adapter.New(ctx, opts.cfg)
			if err != nil {
				return err
			}
			defer a.Stop(ctx)

			snapshots, err := a.Snapshots(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snapshots)
			}
			return printSnapshots(cmd, snapshots)
		},
	}
	addFilterFlags(cmd)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

func printSnapshots(cmd *cobra.Command, snapshots []types.SnapshotFile) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tHOST\tLABEL\tTAGS\tPATHS")
	for _, snap := range snapshots {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			snap.ID.Short(),
			snap.Time.Local().Format(time.DateTime),
			snap.Hostname,
			snap.Label,
			snap.Tags.String(),
			strings.Join(snap.Paths, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d snapshots\n", len(snapshots))
	return nil
}
