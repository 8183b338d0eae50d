// Package geocoding resolves coordinates to places through a spatial cache,
// falling back to external providers on a miss and remembering what they
// return.
package geocoding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/geocode-cache/internal/domain"
)

// Store is everything the Service needs from persistence.
type Store interface {
	domain.LocationStore
	domain.AdminStore
}

// Service is the entry point used by the pipeline and the admin CLI.
type Service struct {
	resolver     *Resolver
	orchestrator *Orchestrator
	writer       *Writer
	store        Store
	logger       *slog.Logger
}

// NewService assembles a Service from its parts.
func NewService(store Store, resolver *Resolver, orchestrator *Orchestrator, writer *Writer, logger *slog.Logger) *Service {
	return &Service{
		resolver:     resolver,
		orchestrator: orchestrator,
		writer:       writer,
		store:        store,
		logger:       logger,
	}
}

// ReverseGeocode resolves one point. A point no provider can place returns
// domain.ErrNotFound.
func (s *Service) ReverseGeocode(ctx context.Context, p domain.Point) (domain.PlaceResult, error) {
	res := s.resolver.ResolveOne(ctx, p)
	if res.Err != nil {
		return res, res.Err
	}
	if res.Location == nil {
		return res, fmt.Errorf("no place at %s: %w", p, domain.ErrNotFound)
	}
	return res, nil
}

// ReverseGeocodeBatch resolves points, keyed by Point.Key.
func (s *Service) ReverseGeocodeBatch(ctx context.Context, points []domain.Point) map[string]domain.PlaceResult {
	return s.resolver.ResolveMany(ctx, points)
}

// ReconcileWithProvider asks the named provider only, bypassing the cache and
// failover. Nothing is stored.
func (s *Service) ReconcileWithProvider(ctx context.Context, provider string, p domain.Point) (domain.GeocodingResult, error) {
	if err := p.Validate(); err != nil {
		return domain.GeocodingResult{}, err
	}
	result, err := s.orchestrator.ReconcileWithProvider(ctx, provider, p)
	if err != nil {
		return domain.GeocodingResult{}, err
	}
	if !result.Found() {
		return domain.GeocodingResult{}, fmt.Errorf("%s has no place at %s: %w", provider, p, domain.ErrNotFound)
	}
	return result, nil
}

// ReconcileEntry re-resolves the request coordinate of an existing entry
// with the named provider and stores the answer as a new entry. With replace
// set the old entry is deleted afterwards.
func (s *Service) ReconcileEntry(ctx context.Context, id int64, provider string, replace bool) (domain.CachedLocation, error) {
	old, err := s.store.FindByID(ctx, id)
	if err != nil {
		return domain.CachedLocation{}, err
	}
	result, err := s.ReconcileWithProvider(ctx, provider, old.RequestCoordinate)
	if err != nil {
		return domain.CachedLocation{}, fmt.Errorf("reconcile location %d: %w", id, err)
	}
	loc, err := s.writer.Store(ctx, old.RequestCoordinate, result)
	if err != nil {
		return domain.CachedLocation{}, fmt.Errorf("reconcile location %d: %w", id, err)
	}
	if replace {
		if _, err := s.store.Delete(ctx, id); err != nil {
			return loc, fmt.Errorf("reconcile location %d: delete old entry: %w", id, err)
		}
	}
	s.logger.Info("location reconciled",
		"old_id", id,
		"new_id", loc.ID,
		"provider", loc.ProviderName,
		"replaced", replace,
	)
	return loc, nil
}

// ListEnabledProviders returns display names of the providers enabled now.
func (s *Service) ListEnabledProviders() []string {
	return s.orchestrator.EnabledProviders()
}

// Page is one page of an administrative listing.
type Page struct {
	Items []domain.CachedLocation
	Total int64
	Page  int
	Limit int
}

// List returns a page of entries and the total matching f.
func (s *Service) List(ctx context.Context, f domain.ListFilter) (Page, error) {
	f = f.Normalized()
	items, err := s.store.List(ctx, f)
	if err != nil {
		return Page{}, err
	}
	total, err := s.store.Count(ctx, f)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// Stats summarises the cache for reporting.
type Stats struct {
	Total            int64
	ByProvider       map[string]int64
	CreatedRecently  int64
	RecentDays       int
	Providers        []string
	EnabledProviders []string
}

// Stats counts entries overall, per provider and created in the trailing
// recentDays.
func (s *Service) Stats(ctx context.Context, recentDays int) (Stats, error) {
	total, err := s.store.Count(ctx, domain.ListFilter{})
	if err != nil {
		return Stats{}, err
	}
	byProvider, err := s.store.CountByProvider(ctx)
	if err != nil {
		return Stats{}, err
	}
	recent, err := s.store.CountCreatedSince(ctx, recentDays)
	if err != nil {
		return Stats{}, err
	}
	providers, err := s.store.DistinctProviders(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Total:            total,
		ByProvider:       byProvider,
		CreatedRecently:  recent,
		RecentDays:       recentDays,
		Providers:        providers,
		EnabledProviders: s.ListEnabledProviders(),
	}, nil
}

// Get returns one entry by id.
func (s *Service) Get(ctx context.Context, id int64) (domain.CachedLocation, error) {
	return s.store.FindByID(ctx, id)
}

// Delete removes entries by id, or every entry matching f when ids is empty.
func (s *Service) Delete(ctx context.Context, f domain.ListFilter, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		var err error
		ids, err = s.store.IDs(ctx, f)
		if err != nil {
			return 0, err
		}
	}
	n, err := s.store.Delete(ctx, ids...)
	if err != nil {
		return 0, err
	}
	s.logger.Info("locations deleted", "count", n)
	return n, nil
}

// Prune deletes entries not accessed within olderThan. With dryRun set it
// only counts them.
func (s *Service) Prune(ctx context.Context, olderThan time.Duration, dryRun bool) (int64, error) {
	cutoff := domain.Now().Add(-olderThan)
	if dryRun {
		return s.store.CountAccessedBefore(ctx, cutoff)
	}
	n, err := s.store.DeleteAccessedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.logger.Info("stale locations pruned", "count", n, "cutoff", cutoff)
	return n, nil
}
