package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/geocode-cache/internal/domain"
)

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	var (
		f   domain.ListFilter
		all bool
	)

	cmd := &cobra.Command{
		Use:   "delete [ID...]",
		Short: "Delete cached locations by id or by filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			filtered := f.Provider != "" || f.Search != ""
			switch {
			case len(ids) > 0 && (filtered || all):
				return errors.New("give ids or a filter, not both")
			case len(ids) == 0 && !filtered && !all:
				return errors.New("nothing selected: give ids, --provider/--search, or --all")
			}

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			n, err := a.Service.Delete(cmd.Context(), f, ids...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries.\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Provider, "provider", "", "delete entries from this provider")
	cmd.Flags().StringVar(&f.Search, "search", "", "delete entries whose name, city or country contains this")
	cmd.Flags().BoolVar(&all, "all", false, "delete every entry")
	return cmd
}
