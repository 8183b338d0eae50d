package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProvidersCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the providers that are enabled with the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			names := a.Service.ListEnabledProviders()
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No providers enabled.")
				return nil
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}
