package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/geocode-cache/internal/app"
	"github.com/couchcryptid/geocode-cache/internal/config"
	"github.com/couchcryptid/geocode-cache/internal/domain"
	"github.com/couchcryptid/geocode-cache/internal/observability"
)

const timeLayout = "2006-01-02T15:04:05"

type globalOptions struct {
	dbPath  string
	verbose bool
}

// open loads configuration and wires the service for one command run.
func (o *globalOptions) open(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	cfg.LogLevel = "warn"
	if o.verbose {
		cfg.LogLevel = "debug"
	}
	cfg.LogFormat = "text"

	logger := observability.NewLoggerTo(cmd.ErrOrStderr(), cfg)
	return app.New(cfg, logger, observability.NewMetricsWith(prometheus.NewRegistry()))
}

// parsePoint reads "lon,lat".
func parsePoint(s string) (domain.Point, error) {
	lonStr, latStr, ok := strings.Cut(s, ",")
	if !ok {
		return domain.Point{}, fmt.Errorf("point %q: want lon,lat", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return domain.Point{}, fmt.Errorf("point %q: longitude: %w", s, err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return domain.Point{}, fmt.Errorf("point %q: latitude: %w", s, err)
	}
	p := domain.Point{Lon: lon, Lat: lat}
	if err := p.Validate(); err != nil {
		return domain.Point{}, fmt.Errorf("point %q: %w", s, err)
	}
	return p, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close:", err)
	}
}
