package geocoding

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geocode-cache/internal/adapter/providercache"
	"github.com/couchcryptid/geocode-cache/internal/domain"
	"github.com/couchcryptid/geocode-cache/internal/observability"
)

func newOrchestrator(t *testing.T, primary, fallback string, providers ...domain.Provider) (*Orchestrator, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	o, err := NewOrchestrator(providers, primary, fallback, discardLogger(), metrics)
	require.NoError(t, err)
	return o, metrics
}

func TestNewOrchestrator_UnknownNames(t *testing.T) {
	_, err := NewOrchestrator(nil, "bing", "", discardLogger(), nil)
	require.ErrorIs(t, err, domain.ErrUnknownProvider)

	_, err = NewOrchestrator(nil, domain.ProviderNominatim, "bing", discardLogger(), nil)
	require.ErrorIs(t, err, domain.ErrUnknownProvider)
}

func TestNewOrchestrator_NormalizesNames(t *testing.T) {
	o, err := NewOrchestrator(nil, " Nominatim ", "NOMINATIM", discardLogger(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderNominatim, o.Primary())
	assert.Empty(t, o.Fallback(), "fallback equal to primary means none")
}

func TestResolveOne_PrimarySucceeds(t *testing.T) {
	primary := newStub(domain.ProviderNominatim, placeAt("Mitte", 50))
	fallback := newStub(domain.ProviderPhoton, placeAt("Photon Mitte", 50))
	o, metrics := newOrchestrator(t, domain.ProviderNominatim, domain.ProviderPhoton, primary, fallback)

	result, err := o.ResolveOne(context.Background(), berlin)
	require.NoError(t, err)
	assert.Equal(t, "Mitte", result.DisplayName)
	assert.Equal(t, domain.ProviderNominatim, result.ProviderName)
	assert.Equal(t, 1, primary.Calls())
	assert.Zero(t, fallback.Calls())
	assert.Zero(t, testutil.ToFloat64(metrics.FallbackAttempts.WithLabelValues(domain.ProviderPhoton)))
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ProviderRequests.WithLabelValues(domain.ProviderNominatim, "success")), 0)
}

func TestResolveOne_FailsOverOnError(t *testing.T) {
	primary := newStub(domain.ProviderNominatim, failWith(errUpstream))
	fallback := newStub(domain.ProviderPhoton, placeAt("Photon Mitte", 50))
	o, metrics := newOrchestrator(t, domain.ProviderNominatim, domain.ProviderPhoton, primary, fallback)

	result, err := o.ResolveOne(context.Background(), berlin)
	require.NoError(t, err)
	assert.Equal(t, "Photon Mitte", result.DisplayName)
	assert.Equal(t, domain.ProviderPhoton, result.ProviderName)
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 1, fallback.Calls())
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.FallbackAttempts.WithLabelValues(domain.ProviderPhoton)), 0)
}

func TestResolveOne_FailsOverWhenPrimaryDisabled(t *testing.T) {
	primary := newStub(domain.ProviderGoogleMaps, placeAt("Google Mitte", 50))
	primary.enabled.Store(false)
	fallback := newStub(domain.ProviderNominatim, placeAt("Mitte", 50))
	o, metrics := newOrchestrator(t, domain.ProviderGoogleMaps, domain.ProviderNominatim, primary, fallback)

	result, err := o.ResolveOne(context.Background(), berlin)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderNominatim, result.ProviderName)
	assert.Zero(t, primary.Calls(), "disabled provider is never called")
	assert.Zero(t, testutil.ToFloat64(metrics.ProviderEnabled.WithLabelValues(domain.ProviderGoogleMaps)))
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ProviderEnabled.WithLabelValues(domain.ProviderNominatim)), 0)
}

func TestResolveOne_FailsOverWhenPrimaryNotRegistered(t *testing.T) {
	fallback := newStub(domain.ProviderNominatim, placeAt("Mitte", 50))
	o, _ := newOrchestrator(t, domain.ProviderMapbox, domain.ProviderNominatim, fallback)

	result, err := o.ResolveOne(context.Background(), berlin)
	require.NoError(t, err)
	assert.Equal(t, "Mitte", result.DisplayName)
}

func TestResolveOne_EmptyResultDoesNotFailOver(t *testing.T) {
	primary := newStub(domain.ProviderNominatim, nothingFound)
	fallback := newStub(domain.ProviderPhoton, placeAt("Photon Mitte", 50))
	o, metrics := newOrchestrator(t, domain.ProviderNominatim, domain.ProviderPhoton, primary, fallback)

	result, err := o.ResolveOne(context.Background(), berlin)
	require.NoError(t, err)
	assert.False(t, result.Found())
	assert.Zero(t, fallback.Calls())
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.ProviderRequests.WithLabelValues(domain.ProviderNominatim, "empty")), 0)
}

func TestResolveOne_NoFallbackConfigured(t *testing.T) {
	primary := newStub(domain.ProviderNominatim, failWith(errUpstream))
	o, _ := newOrchestrator(t, domain.ProviderNominatim, "", primary)

	_, err := o.ResolveOne(context.Background(), berlin)
	require.ErrorIs(t, err, domain.ErrAllProvidersExhausted)
	require.ErrorIs(t, err, domain.ErrProviderCallFailed)
	require.ErrorIs(t, err, errUpstream)
	assert.Equal(t, domain.KindAllProvidersExhausted, domain.ErrorKind(err))
}

func TestResolveOne_BothFail(t *testing.T) {
	errFallback := assert.AnError
	primary := newStub(domain.ProviderNominatim, failWith(errUpstream))
	fallback := newStub(domain.ProviderPhoton, failWith(errFallback))
	o, _ := newOrchestrator(t, domain.ProviderNominatim, domain.ProviderPhoton, primary, fallback)

	_, err := o.ResolveOne(context.Background(), berlin)
	require.ErrorIs(t, err, domain.ErrAllProvidersExhausted)
	require.ErrorIs(t, err, errUpstream)
	require.ErrorIs(t, err, errFallback)

	var pe *domain.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.ProviderPhoton, pe.Provider, "fallback error comes first")
}

func TestResolveOne_CanceledDoesNotFailOver(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	primary := newStub(domain.ProviderNominatim, func(ctx context.Context, _ domain.Point) (domain.GeocodingResult, error) {
		cancel()
		return domain.GeocodingResult{}, ctx.Err()
	})
	fallback := newStub(domain.ProviderPhoton, placeAt("Photon Mitte", 50))
	o, _ := newOrchestrator(t, domain.ProviderNominatim, domain.ProviderPhoton, primary, fallback)

	_, err := o.ResolveOne(ctx, berlin)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fallback.Calls())
}

func TestReconcileWithProvider(t *testing.T) {
	nominatim := newStub(domain.ProviderNominatim, placeAt("Mitte", 50))
	photon := newStub(domain.ProviderPhoton, placeAt("Photon Mitte", 50))
	o, _ := newOrchestrator(t, domain.ProviderNominatim, "", nominatim, photon)
	ctx := context.Background()

	result, err := o.ReconcileWithProvider(ctx, "PHOTON", berlin)
	require.NoError(t, err)
	assert.Equal(t, "Photon Mitte", result.DisplayName)
	assert.Equal(t, domain.ProviderPhoton, result.ProviderName)
	assert.Zero(t, nominatim.Calls())

	_, err = o.ReconcileWithProvider(ctx, "bing", berlin)
	require.ErrorIs(t, err, domain.ErrUnknownProvider)

	_, err = o.ReconcileWithProvider(ctx, domain.ProviderMapbox, berlin)
	require.ErrorIs(t, err, domain.ErrProviderDisabled)

	photon.enabled.Store(false)
	_, err = o.ReconcileWithProvider(ctx, domain.ProviderPhoton, berlin)
	require.ErrorIs(t, err, domain.ErrProviderDisabled)
}

func TestEnabledProviders(t *testing.T) {
	nominatim := newStub(domain.ProviderNominatim, nothingFound)
	photon := newStub(domain.ProviderPhoton, nothingFound)
	google := newStub(domain.ProviderGoogleMaps, nothingFound)
	google.enabled.Store(false)
	o, _ := newOrchestrator(t, domain.ProviderNominatim, "", photon, google, nominatim)

	assert.Equal(t, []string{"Nominatim", "Photon"}, o.EnabledProviders())

	google.enabled.Store(true)
	assert.Equal(t, []string{"Nominatim", "GoogleMaps", "Photon"}, o.EnabledProviders())
}

func TestOrchestratorReconcile_BypassesEmptyResultCache(t *testing.T) {
	freezeClock(t)
	var found atomic.Bool
	stub := newStub(domain.ProviderPhoton, func(ctx context.Context, p domain.Point) (domain.GeocodingResult, error) {
		if !found.Load() {
			return nothingFound(ctx, p)
		}
		return placeAt("Mitte", 50)(ctx, p)
	})
	cached := providercache.New(stub, 10, time.Hour)
	o, _ := newOrchestrator(t, domain.ProviderPhoton, "", cached)
	ctx := context.Background()

	res, err := o.ResolveOne(ctx, berlin)
	require.NoError(t, err)
	assert.False(t, res.Found())

	found.Store(true)
	res, err = o.ResolveOne(ctx, berlin)
	require.NoError(t, err)
	assert.False(t, res.Found(), "empty answer still cached for the pipeline")
	assert.Equal(t, 1, stub.Calls())

	res, err = o.ReconcileWithProvider(ctx, domain.ProviderPhoton, berlin)
	require.NoError(t, err)
	assert.Equal(t, "Mitte", res.DisplayName)
	assert.Equal(t, 2, stub.Calls())
}
