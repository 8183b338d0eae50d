package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/geocode-cache/internal/domain"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	var f domain.ListFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			page, err := a.Service.List(cmd.Context(), f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(page.Items) == 0 {
				fmt.Fprintln(out, "No cached locations found.")
				return nil
			}
			if err := writeLocations(out, page.Items); err != nil {
				return err
			}
			fmt.Fprintf(out, "\npage %d, showing %d of %d\n", page.Page, len(page.Items), page.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Provider, "provider", "", "only entries from this provider")
	cmd.Flags().StringVar(&f.Search, "search", "", "substring of display name, city or country")
	cmd.Flags().IntVar(&f.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.Limit, "limit", domain.DefaultListLimit, "entries per page")
	cmd.Flags().StringVar(&f.SortField, "sort", domain.SortLastAccessedAt,
		"sort field: displayName, city, country, providerName, createdAt, lastAccessedAt")
	cmd.Flags().StringVar(&f.SortOrder, "order", "desc", "asc or desc")
	return cmd
}

func writeLocations(out io.Writer, locs []domain.CachedLocation) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROVIDER\tREQUEST\tCITY\tCOUNTRY\tLAST ACCESSED\tDISPLAY NAME")
	for _, l := range locs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.ID, l.ProviderName, l.RequestCoordinate, l.City, l.Country,
			l.LastAccessedAt.Format(timeLayout), l.DisplayName)
	}
	return w.Flush()
}
