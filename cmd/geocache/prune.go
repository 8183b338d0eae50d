package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newPruneCmd(opts *globalOptions) *cobra.Command {
	var (
		olderThan time.Duration
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete entries that have not been accessed recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			n, err := a.Service.Prune(cmd.Context(), olderThan, dryRun)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "%d entries not accessed in %s would be deleted.\n", n, olderThan)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries not accessed in %s.\n", n, olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "minimum time since last access")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only count matching entries")
	return cmd
}
