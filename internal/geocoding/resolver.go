package geocoding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/geocode-cache/internal/domain"
	"github.com/couchcryptid/geocode-cache/internal/observability"
)

const (
	DefaultToleranceMeters = 25.0
	DefaultMaxConcurrency  = 4
)

// ResolverConfig tunes cache matching and provider fan-out. A tolerance of
// zero matches only by bounding box; a negative one means the default.
type ResolverConfig struct {
	ToleranceMeters float64
	MaxConcurrency  int
}

// DefaultResolverConfig returns the defaults used by the service.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{ToleranceMeters: DefaultToleranceMeters, MaxConcurrency: DefaultMaxConcurrency}
}

// Resolver answers points from the cache and sends the misses to the
// providers, storing what they find.
type Resolver struct {
	store        domain.LocationStore
	orchestrator *Orchestrator
	writer       *Writer
	cfg          ResolverConfig
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewResolver wires a Resolver.
func NewResolver(store domain.LocationStore, orchestrator *Orchestrator, writer *Writer, cfg ResolverConfig, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	if cfg.ToleranceMeters < 0 {
		cfg.ToleranceMeters = DefaultToleranceMeters
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Resolver{
		store:        store,
		orchestrator: orchestrator,
		writer:       writer,
		cfg:          cfg,
		logger:       logger,
		metrics:      metrics,
	}
}

// ResolveOne resolves a single point.
func (r *Resolver) ResolveOne(ctx context.Context, p domain.Point) domain.PlaceResult {
	return r.ResolveMany(ctx, []domain.Point{p})[p.Key()]
}

// ResolveMany resolves every point and returns results keyed by Point.Key.
// Each point succeeds or fails on its own; distinct misses are sent to the
// providers concurrently, identical coordinates only once.
func (r *Resolver) ResolveMany(ctx context.Context, points []domain.Point) map[string]domain.PlaceResult {
	results := make(map[string]domain.PlaceResult, len(points))

	valid := make([]domain.Point, 0, len(points))
	for _, p := range points {
		key := p.Key()
		if _, seen := results[key]; seen {
			continue
		}
		if err := p.Validate(); err != nil {
			results[key] = r.failed(p, err)
			continue
		}
		results[key] = domain.PlaceResult{Point: p}
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		return results
	}

	hits, err := r.store.FindBatch(ctx, valid, r.cfg.ToleranceMeters)
	if err != nil {
		r.logger.Error("cache batch lookup failed, resolving all points with providers",
			"points", len(valid),
			"error", err,
		)
		hits = nil
	}

	misses := make([]domain.Point, 0, len(valid))
	for _, p := range valid {
		if loc, ok := hits[p.Key()]; ok && loc != nil {
			results[p.Key()] = domain.PlaceResult{Point: p, Location: loc, CacheHit: true}
			continue
		}
		misses = append(misses, p)
	}
	if len(misses) == 0 {
		return results
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.cfg.MaxConcurrency)
	for _, p := range misses {
		g.Go(func() error {
			res := r.resolveMiss(ctx, p)
			mu.Lock()
			results[p.Key()] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (r *Resolver) resolveMiss(ctx context.Context, p domain.Point) domain.PlaceResult {
	if err := ctx.Err(); err != nil {
		return r.failed(p, fmt.Errorf("reverse geocode %s: %w", p, err))
	}

	result, err := r.orchestrator.ResolveOne(ctx, p)
	if err != nil {
		return r.failed(p, err)
	}
	if err := ctx.Err(); err != nil {
		return r.failed(p, fmt.Errorf("reverse geocode %s: %w", p, err))
	}
	if !result.Found() {
		return domain.PlaceResult{Point: p}
	}

	loc, err := r.writer.Store(ctx, p, result)
	if err != nil {
		return r.failed(p, err)
	}
	return domain.PlaceResult{Point: p, Location: &loc}
}

func (r *Resolver) failed(p domain.Point, err error) domain.PlaceResult {
	if r.metrics != nil {
		r.metrics.ResolveErrors.WithLabelValues(domain.ErrorKind(err)).Inc()
	}
	return domain.PlaceResult{Point: p, Err: err}
}
