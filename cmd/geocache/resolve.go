package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/geocode-cache/internal/domain"
)

func newResolveCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "resolve LON,LAT [LON,LAT...]",
		Short: "Resolve points through the cache, calling providers on a miss",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			points := make([]domain.Point, 0, len(args))
			for _, a := range args {
				p, err := parsePoint(a)
				if err != nil {
					return err
				}
				points = append(points, p)
			}

			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			results := a.Service.ReverseGeocodeBatch(cmd.Context(), points)
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				for i, p := range points {
					req := domain.GeocodeRequest{ID: fmt.Sprint(i + 1), Lon: &p.Lon, Lat: &p.Lat}
					if err := enc.Encode(domain.NewGeocodeResponse(req, results[p.Key()])); err != nil {
						return err
					}
				}
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "POINT\tSTATUS\tCACHE\tID\tPROVIDER\tDISPLAY NAME")
			for _, p := range points {
				res := results[p.Key()]
				switch {
				case res.Err != nil:
					fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t%s\n", p, domain.ErrorKind(res.Err), res.Err)
				case res.Location == nil:
					fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t\n", p, domain.StatusNotFound)
				default:
					cache := "miss"
					if res.CacheHit {
						cache = "hit"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
						p, domain.StatusResolved, cache, res.Location.ID, res.Location.ProviderName, res.Location.DisplayName)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON response per point")
	return cmd
}
