package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/geocode-cache/internal/domain"
)

func newReconcileCmd(opts *globalOptions) *cobra.Command {
	var (
		provider string
		point    string
		replace  bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile [ID]",
		Short: "Re-resolve an entry, or preview a point, with one provider",
		Long: "With an ID the entry's request coordinate is resolved again by --provider and\n" +
			"stored as a new entry; --replace deletes the old one. With --point the\n" +
			"provider's answer is printed and nothing is stored.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" {
				return errors.New("--provider is required")
			}
			if (len(args) == 0) == (point == "") {
				return errors.New("give either an ID or --point")
			}

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)
			out := cmd.OutOrStdout()

			if point != "" {
				p, err := parsePoint(point)
				if err != nil {
					return err
				}
				result, err := a.Service.ReconcileWithProvider(cmd.Context(), provider, p)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Provider: %s\nName:     %s\nCity:     %s\nCountry:  %s\nPoint:    %s\n",
					domain.ProviderDisplayName(result.ProviderName), result.DisplayName, result.City, result.Country, result.Point)
				return nil
			}

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			loc, err := a.Service.ReconcileEntry(cmd.Context(), id, provider, replace)
			if err != nil {
				return err
			}
			if replace {
				fmt.Fprintf(out, "Entry %d replaced by %d.\n", id, loc.ID)
			} else {
				fmt.Fprintf(out, "Entry %d reconciled as %d.\n", id, loc.ID)
			}
			return writeLocations(out, []domain.CachedLocation{loc})
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "", "provider to ask: nominatim, googlemaps, mapbox or photon")
	cmd.Flags().StringVar(&point, "point", "", "preview a lon,lat point instead of reconciling an entry")
	cmd.Flags().BoolVar(&replace, "replace", false, "delete the old entry after storing the new one")
	return cmd
}
