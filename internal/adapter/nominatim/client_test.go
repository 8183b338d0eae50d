package nominatim

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geocode-cache/internal/adapter/providerhttp"
	"github.com/couchcryptid/geocode-cache/internal/domain"
)

const berlinResponse = `{
	"place_id": 132224540,
	"lat": "52.5128",
	"lon": "13.3912",
	"display_name": "Unter den Linden 77, Mitte, Berlin, 10117, Deutschland",
	"address": {"road": "Unter den Linden", "city": "Berlin", "country": "Deutschland"},
	"boundingbox": ["52.5127", "52.5131", "13.3908", "13.3916"]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(providerhttp.New(time.Second, "test", logger), srv.URL, true, logger)
}

func TestReverseGeocode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "jsonv2", r.URL.Query().Get("format"))
		assert.Equal(t, "52.5129", r.URL.Query().Get("lat"))
		assert.Equal(t, "13.391", r.URL.Query().Get("lon"))
		w.Write([]byte(berlinResponse))
	})

	res, err := c.ReverseGeocode(context.Background(), domain.Point{Lon: 13.391, Lat: 52.5129})
	require.NoError(t, err)

	assert.True(t, res.Found())
	assert.Equal(t, domain.ProviderNominatim, res.ProviderName)
	assert.Equal(t, "Berlin", res.City)
	assert.Equal(t, "Deutschland", res.Country)
	assert.Equal(t, domain.Point{Lon: 13.3912, Lat: 52.5128}, res.Point)

	require.NotEmpty(t, res.BoundingBox)
	b := res.BoundingBox.Bound()
	assert.InDelta(t, 13.3908, b.Min.Lon(), 1e-9)
	assert.InDelta(t, 52.5127, b.Min.Lat(), 1e-9)
	assert.InDelta(t, 13.3916, b.Max.Lon(), 1e-9)
	assert.InDelta(t, 52.5131, b.Max.Lat(), 1e-9)
}

func TestReverseGeocode_TownFallback(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"lat":"1","lon":"2","display_name":"Somewhere","address":{"town":"Smalltown","country":"X"}}`))
	})

	res, err := c.ReverseGeocode(context.Background(), domain.Point{Lon: 2, Lat: 1})
	require.NoError(t, err)
	assert.Equal(t, "Smalltown", res.City)
	assert.Empty(t, res.BoundingBox)
}

func TestReverseGeocode_UnableToGeocode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error":"Unable to geocode"}`))
	})

	res, err := c.ReverseGeocode(context.Background(), domain.Point{Lon: -30, Lat: 0})
	require.NoError(t, err)
	assert.False(t, res.Found())
}

func TestReverseGeocode_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.ReverseGeocode(context.Background(), domain.Point{Lon: 1, Lat: 1})
	var se *providerhttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
}

func TestEnabledToggle(t *testing.T) {
	c := newTestClient(t, func(http.ResponseWriter, *http.Request) {})
	assert.Equal(t, domain.ProviderNominatim, c.Name())
	assert.True(t, c.Enabled())
	c.SetEnabled(false)
	assert.False(t, c.Enabled())
}

func TestParseBoundingBox(t *testing.T) {
	_, ok := parseBoundingBox([]string{"1", "2", "3"})
	assert.False(t, ok)
	_, ok = parseBoundingBox([]string{"a", "2", "3", "4"})
	assert.False(t, ok)
	_, ok = parseBoundingBox([]string{"1", "2", "3", "4"})
	assert.True(t, ok)
}
