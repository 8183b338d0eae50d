package geocoding

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geocode-cache/internal/domain"
	"github.com/couchcryptid/geocode-cache/internal/observability"
)

func newWriter(t *testing.T) (*Writer, *observability.Metrics, domain.AdminStore) {
	t.Helper()
	freezeClock(t)
	store := newStore(t)
	metrics := observability.NewMetricsForTesting()
	return NewWriter(store, 0, metrics), metrics, store
}

func TestWriterStore_RoundTrip(t *testing.T) {
	w, metrics, store := newWriter(t)
	ctx := context.Background()

	resultPoint := offset(berlin, 30, 90)
	loc, err := w.Store(ctx, berlin, domain.GeocodingResult{
		Point:        resultPoint,
		BoundingBox:  domain.SquareAround(resultPoint, 80),
		DisplayName:  "Unter den Linden, Mitte, Berlin",
		City:         "Berlin",
		Country:      "Germany",
		ProviderName: "Nominatim",
	})
	require.NoError(t, err)
	require.NotZero(t, loc.ID)

	got, err := store.FindByID(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, berlin, got.RequestCoordinate)
	assert.Equal(t, resultPoint, got.ResultCoordinate)
	assert.Equal(t, domain.SquareAround(resultPoint, 80).Bound(), got.BoundingBox.Bound())
	assert.Equal(t, "Unter den Linden, Mitte, Berlin", got.DisplayName)
	assert.Equal(t, "Berlin", got.City)
	assert.Equal(t, "Germany", got.Country)
	assert.Equal(t, domain.ProviderNominatim, got.ProviderName)
	assert.True(t, got.CreatedAt.Equal(t0))
	assert.True(t, got.LastAccessedAt.Equal(t0))
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.CacheWrites), 0)

	if diff := cmp.Diff(loc, got, cmpopts.IgnoreFields(domain.CachedLocation{}, "BoundingBox")); diff != "" {
		t.Fatalf("stored location mismatch (-returned +read):\n%s", diff)
	}
}

func TestWriterStore_SynthesisesMissingBox(t *testing.T) {
	w, _, _ := newWriter(t)

	loc, err := w.Store(context.Background(), berlin, domain.GeocodingResult{
		Point:        berlin,
		DisplayName:  "Mitte",
		ProviderName: domain.ProviderNominatim,
	})
	require.NoError(t, err)
	require.NotEmpty(t, loc.BoundingBox)
	assert.True(t, domain.PolygonContains(loc.BoundingBox, berlin))
	assert.True(t, domain.PolygonContains(loc.BoundingBox, offset(berlin, DefaultMinBoundingBoxMeters-1, 0)))
	assert.False(t, domain.PolygonContains(loc.BoundingBox, offset(berlin, DefaultMinBoundingBoxMeters+5, 0)))
}

func TestWriterStore_FallsBackToRequestPoint(t *testing.T) {
	w, _, _ := newWriter(t)

	loc, err := w.Store(context.Background(), berlin, domain.GeocodingResult{
		DisplayName:  "Mitte",
		ProviderName: domain.ProviderPhoton,
	})
	require.NoError(t, err)
	assert.Equal(t, berlin, loc.ResultCoordinate)
	assert.True(t, domain.PolygonContains(loc.BoundingBox, berlin))
}

func TestWriterStore_Rejects(t *testing.T) {
	w, metrics, store := newWriter(t)
	ctx := context.Background()

	_, err := w.Store(ctx, berlin, domain.GeocodingResult{})
	require.Error(t, err, "results without a place are never stored")

	_, err = w.Store(ctx, domain.Point{Lon: 181, Lat: 0}, domain.GeocodingResult{DisplayName: "Nowhere"})
	require.ErrorIs(t, err, domain.ErrInvalidCoordinate)

	n, err := store.Count(ctx, domain.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, testutil.ToFloat64(metrics.CacheWrites))
}
