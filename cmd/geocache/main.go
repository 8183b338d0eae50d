// Command geocache administers the reverse-geocoding cache: resolve points by
// hand, inspect and prune cached locations, and reconcile entries against a
// chosen provider. Settings come from the same environment variables as the
// geocoder service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts globalOptions

	root := &cobra.Command{
		Use:           "geocache",
		Short:         "Inspect and manage the reverse-geocoding cache",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "cache database path (overrides DB_PATH)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level to stderr")

	root.AddCommand(
		newResolveCmd(&opts),
		newListCmd(&opts),
		newStatsCmd(&opts),
		newProvidersCmd(&opts),
		newReconcileCmd(&opts),
		newDeleteCmd(&opts),
		newPruneCmd(&opts),
	)
	return root
}
