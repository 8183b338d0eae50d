package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			s, err := a.Service.Stats(cmd.Context(), days)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Entries:           %d\n", s.Total)
			fmt.Fprintf(out, "Created last %dd:   %d\n", s.RecentDays, s.CreatedRecently)
			fmt.Fprintf(out, "Enabled providers: %s\n", strings.Join(s.EnabledProviders, ", "))
			if len(s.Providers) == 0 {
				return nil
			}

			fmt.Fprintln(out)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tENTRIES")
			for _, p := range s.Providers {
				fmt.Fprintf(w, "%s\t%d\n", p, s.ByProvider[p])
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "window for the recently created count")
	return cmd
}
