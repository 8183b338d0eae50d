// Package app assembles the geocoding service from configuration. Both the
// pipeline binary and the admin CLI start here.
package app

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/geocode-cache/internal/adapter/googlemaps"
	"github.com/couchcryptid/geocode-cache/internal/adapter/mapbox"
	"github.com/couchcryptid/geocode-cache/internal/adapter/nominatim"
	"github.com/couchcryptid/geocode-cache/internal/adapter/photon"
	"github.com/couchcryptid/geocode-cache/internal/adapter/providercache"
	"github.com/couchcryptid/geocode-cache/internal/adapter/providerhttp"
	"github.com/couchcryptid/geocode-cache/internal/adapter/sqlite"
	"github.com/couchcryptid/geocode-cache/internal/config"
	"github.com/couchcryptid/geocode-cache/internal/domain"
	"github.com/couchcryptid/geocode-cache/internal/geocoding"
	"github.com/couchcryptid/geocode-cache/internal/observability"
)

// App holds the wired components.
type App struct {
	Store    *sqlite.Store
	Resolver *geocoding.Resolver
	Service  *geocoding.Service
}

// New opens the store and wires providers, orchestrator, writer and resolver.
func New(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	store, err := sqlite.New(cfg.DBPath, logger, metrics, sqlite.WithChunkSize(cfg.Geocoding.ChunkSize))
	if err != nil {
		return nil, err
	}

	providers := Providers(cfg, logger)
	orch, err := geocoding.NewOrchestrator(providers, cfg.Geocoding.PrimaryProvider, cfg.Geocoding.FallbackProvider, logger, metrics)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("build orchestrator: %w", err), store.Close())
	}
	writer := geocoding.NewWriter(store, cfg.Geocoding.MinBoundingBoxMeters, metrics)
	resolver := geocoding.NewResolver(store, orch, writer, geocoding.ResolverConfig{
		ToleranceMeters: cfg.Geocoding.ToleranceMeters,
		MaxConcurrency:  cfg.Geocoding.MaxConcurrency,
	}, logger, metrics)

	logger.Info("geocoding configured",
		"db_path", cfg.DBPath,
		"primary", orch.Primary(),
		"fallback", orch.Fallback(),
		"enabled", orch.EnabledProviders(),
		"tolerance_m", cfg.Geocoding.ToleranceMeters,
	)

	return &App{
		Store:    store,
		Resolver: resolver,
		Service:  geocoding.NewService(store, resolver, orch, writer, logger),
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// Providers builds every provider client, each wrapped with the in-memory
// empty-result cache.
func Providers(cfg *config.Config, logger *slog.Logger) []domain.Provider {
	g := cfg.Geocoding
	wrap := func(p domain.Provider) domain.Provider {
		return providercache.New(p, g.EmptyCacheSize, g.EmptyCacheTTL)
	}

	return []domain.Provider{
		wrap(nominatim.NewClient(
			providerhttp.New(g.ProviderTimeout, cfg.Nominatim.UserAgent, logger),
			cfg.Nominatim.URL, cfg.Nominatim.Enabled, logger)),
		wrap(googlemaps.NewClient(
			providerhttp.New(g.ProviderTimeout, "", logger),
			cfg.GoogleMaps.Key, cfg.GoogleMaps.Enabled, logger)),
		wrap(mapbox.NewClient(cfg.Mapbox.Key, cfg.Mapbox.Enabled, g.ProviderTimeout, logger)),
		wrap(photon.NewClient(
			providerhttp.New(g.ProviderTimeout, cfg.Photon.UserAgent, logger),
			cfg.Photon.URL, cfg.Photon.Enabled, logger)),
	}
}
