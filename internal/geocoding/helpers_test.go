package geocoding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb/geo"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geocode-cache/internal/adapter/sqlite"
	"github.com/couchcryptid/geocode-cache/internal/domain"
	"github.com/couchcryptid/geocode-cache/internal/observability"
)

var (
	berlin = domain.Point{Lon: 13.391, Lat: 52.5129}
	paris  = domain.Point{Lon: 2.3522, Lat: 48.8566}
	t0     = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
)

var errUpstream = errors.New("upstream returned 503")

// stubProvider answers from a function and counts calls.
type stubProvider struct {
	name    string
	enabled atomic.Bool
	calls   atomic.Int32
	answer  func(ctx context.Context, p domain.Point) (domain.GeocodingResult, error)

	mu     sync.Mutex
	points []domain.Point
}

func newStub(name string, answer func(ctx context.Context, p domain.Point) (domain.GeocodingResult, error)) *stubProvider {
	s := &stubProvider{name: name, answer: answer}
	s.enabled.Store(true)
	return s
}

func (s *stubProvider) Name() string  { return s.name }
func (s *stubProvider) Enabled() bool { return s.enabled.Load() }

func (s *stubProvider) ReverseGeocode(ctx context.Context, p domain.Point) (domain.GeocodingResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.points = append(s.points, p)
	s.mu.Unlock()
	return s.answer(ctx, p)
}

func (s *stubProvider) Calls() int { return int(s.calls.Load()) }

// placeAt answers every point with a place whose box extends boxMeters around
// the requested point.
func placeAt(name string, boxMeters float64) func(context.Context, domain.Point) (domain.GeocodingResult, error) {
	return func(_ context.Context, p domain.Point) (domain.GeocodingResult, error) {
		return domain.GeocodingResult{
			Point:       p,
			BoundingBox: domain.SquareAround(p, boxMeters),
			DisplayName: name,
			City:        name,
			Country:     "Germany",
		}, nil
	}
}

func failWith(err error) func(context.Context, domain.Point) (domain.GeocodingResult, error) {
	return func(context.Context, domain.Point) (domain.GeocodingResult, error) {
		return domain.GeocodingResult{}, err
	}
}

func nothingFound(context.Context, domain.Point) (domain.GeocodingResult, error) {
	return domain.GeocodingResult{}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func offset(p domain.Point, meters, bearing float64) domain.Point {
	return domain.PointFromOrb(geo.PointAtBearingAndDistance(p.Orb(), bearing, meters))
}

func freezeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	domain.SetClock(clock)
	t.Cleanup(func() { domain.SetClock(nil) })
	return clock
}

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "geocache_test.db"), discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type testEnv struct {
	store        *sqlite.Store
	orchestrator *Orchestrator
	writer       *Writer
	resolver     *Resolver
	service      *Service
	metrics      *observability.Metrics
	clock        *clockwork.FakeClock
}

func newEnv(t *testing.T, primary, fallback string, providers ...domain.Provider) *testEnv {
	t.Helper()
	clock := freezeClock(t)
	store := newStore(t)
	metrics := observability.NewMetricsForTesting()

	orch, err := NewOrchestrator(providers, primary, fallback, discardLogger(), metrics)
	require.NoError(t, err)
	writer := NewWriter(store, DefaultMinBoundingBoxMeters, metrics)
	resolver := NewResolver(store, orch, writer, ResolverConfig{ToleranceMeters: 25, MaxConcurrency: 4}, discardLogger(), metrics)

	return &testEnv{
		store:        store,
		orchestrator: orch,
		writer:       writer,
		resolver:     resolver,
		service:      NewService(store, resolver, orch, writer, discardLogger()),
		metrics:      metrics,
		clock:        clock,
	}
}

func (e *testEnv) count(t *testing.T) int64 {
	t.Helper()
	n, err := e.store.Count(context.Background(), domain.ListFilter{})
	require.NoError(t, err)
	return n
}

func (e *testEnv) insert(t *testing.T, request domain.Point, boxMeters float64, name string) domain.CachedLocation {
	t.Helper()
	loc, err := e.store.Insert(context.Background(), domain.CachedLocation{
		RequestCoordinate: request,
		ResultCoordinate:  request,
		BoundingBox:       domain.SquareAround(request, boxMeters),
		DisplayName:       name,
		City:              name,
		Country:           "Germany",
		ProviderName:      domain.ProviderNominatim,
		CreatedAt:         t0,
		LastAccessedAt:    t0,
	})
	require.NoError(t, err)
	return loc
}
