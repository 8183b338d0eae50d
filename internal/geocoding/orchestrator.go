package geocoding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/geocode-cache/internal/domain"
	"github.com/couchcryptid/geocode-cache/internal/observability"
)

// Orchestrator picks which provider answers a cache miss: the primary first,
// then the fallback when one is configured.
type Orchestrator struct {
	registry map[string]domain.Provider
	primary  string
	fallback string
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewOrchestrator registers providers by lowercase name. The primary must be
// a known name; a fallback that is blank or equal to the primary means no
// fallback.
func NewOrchestrator(providers []domain.Provider, primary, fallback string, logger *slog.Logger, metrics *observability.Metrics) (*Orchestrator, error) {
	registry := make(map[string]domain.Provider, len(providers))
	for _, p := range providers {
		registry[domain.NormalizeProviderName(p.Name())] = p
	}

	primary = domain.NormalizeProviderName(primary)
	if !domain.IsKnownProvider(primary) {
		return nil, fmt.Errorf("primary provider %q: %w", primary, domain.ErrUnknownProvider)
	}
	fallback = domain.NormalizeProviderName(fallback)
	if fallback == primary {
		fallback = ""
	}
	if fallback != "" && !domain.IsKnownProvider(fallback) {
		return nil, fmt.Errorf("fallback provider %q: %w", fallback, domain.ErrUnknownProvider)
	}

	return &Orchestrator{
		registry: registry,
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Primary returns the configured primary provider name.
func (o *Orchestrator) Primary() string { return o.primary }

// Fallback returns the configured fallback name, or "" when there is none.
func (o *Orchestrator) Fallback() string { return o.fallback }

// ResolveOne asks the primary provider and, if it fails, the fallback. A
// provider that answers "nothing here" has not failed.
func (o *Orchestrator) ResolveOne(ctx context.Context, p domain.Point) (domain.GeocodingResult, error) {
	result, primaryErr := o.call(ctx, o.primary, p)
	if primaryErr == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.GeocodingResult{}, fmt.Errorf("reverse geocode %s: %w", p, ctxErr)
	}
	if o.fallback == "" {
		return domain.GeocodingResult{}, fmt.Errorf("%w: %w", domain.ErrAllProvidersExhausted, primaryErr)
	}

	o.logger.Warn("primary provider failed, trying fallback",
		"primary", o.primary,
		"fallback", o.fallback,
		"point", p.String(),
		"error", primaryErr,
	)
	if o.metrics != nil {
		o.metrics.FallbackAttempts.WithLabelValues(o.fallback).Inc()
	}

	result, fallbackErr := o.call(ctx, o.fallback, p)
	if fallbackErr == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.GeocodingResult{}, fmt.Errorf("reverse geocode %s: %w", p, ctxErr)
	}
	return domain.GeocodingResult{}, fmt.Errorf("%w: %w", domain.ErrAllProvidersExhausted, errors.Join(fallbackErr, primaryErr))
}

// ReconcileWithProvider resolves p with the named provider only. Decorators
// such as the empty-result cache are bypassed so the provider is always
// asked.
func (o *Orchestrator) ReconcileWithProvider(ctx context.Context, name string, p domain.Point) (domain.GeocodingResult, error) {
	return o.callWith(ctx, domain.NormalizeProviderName(name), p, unwrapProvider)
}

// EnabledProviders returns the display names of providers enabled right now,
// in registry order.
func (o *Orchestrator) EnabledProviders() []string {
	var names []string
	for _, name := range domain.ProviderOrder {
		p, ok := o.registry[name]
		if ok && p.Enabled() {
			names = append(names, domain.ProviderDisplayName(name))
		}
	}
	return names
}

func (o *Orchestrator) lookup(name string) (domain.Provider, error) {
	if !domain.IsKnownProvider(name) {
		return nil, fmt.Errorf("%q: %w", name, domain.ErrUnknownProvider)
	}
	p, ok := o.registry[name]
	if !ok {
		return nil, &domain.ProviderError{Provider: name, Kind: domain.ErrProviderDisabled, Err: errors.New("not configured")}
	}
	return p, nil
}

func (o *Orchestrator) call(ctx context.Context, name string, p domain.Point) (domain.GeocodingResult, error) {
	return o.callWith(ctx, name, p, nil)
}

func (o *Orchestrator) callWith(ctx context.Context, name string, p domain.Point, adapt func(domain.Provider) domain.Provider) (domain.GeocodingResult, error) {
	provider, err := o.lookup(name)
	if err != nil {
		return domain.GeocodingResult{}, err
	}
	if adapt != nil {
		provider = adapt(provider)
	}

	enabled := provider.Enabled()
	o.setEnabledGauge(name, enabled)
	if !enabled {
		o.recordOutcome(name, "disabled")
		return domain.GeocodingResult{}, &domain.ProviderError{Provider: name, Kind: domain.ErrProviderDisabled}
	}

	start := time.Now()
	result, err := provider.ReverseGeocode(ctx, p)
	if o.metrics != nil {
		o.metrics.ProviderDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		o.recordOutcome(name, "error")
		return domain.GeocodingResult{}, &domain.ProviderError{Provider: name, Kind: domain.ErrProviderCallFailed, Err: err}
	}
	if !result.Found() {
		o.recordOutcome(name, "empty")
		return domain.GeocodingResult{}, nil
	}

	o.recordOutcome(name, "success")
	result.ProviderName = name
	return result, nil
}

// unwrapProvider strips every decorator exposing Unwrap.
func unwrapProvider(p domain.Provider) domain.Provider {
	for {
		w, ok := p.(interface{ Unwrap() domain.Provider })
		if !ok {
			return p
		}
		p = w.Unwrap()
	}
}

func (o *Orchestrator) recordOutcome(provider, outcome string) {
	if o.metrics != nil {
		o.metrics.ProviderRequests.WithLabelValues(provider, outcome).Inc()
	}
}

func (o *Orchestrator) setEnabledGauge(provider string, enabled bool) {
	if o.metrics == nil {
		return
	}
	v := 0.0
	if enabled {
		v = 1
	}
	o.metrics.ProviderEnabled.WithLabelValues(provider).Set(v)
}
