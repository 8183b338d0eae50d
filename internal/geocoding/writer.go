package geocoding

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/geocode-cache/internal/domain"
	"github.com/couchcryptid/geocode-cache/internal/observability"
)

// DefaultMinBoundingBoxMeters is the half-width of the box synthesised for
// results that come without one.
const DefaultMinBoundingBoxMeters = 10.0

// Writer turns provider results into cache records.
type Writer struct {
	store        domain.LocationStore
	minBoxMeters float64
	metrics      *observability.Metrics
}

// NewWriter creates a Writer. A non-positive minBoxMeters uses the default.
func NewWriter(store domain.LocationStore, minBoxMeters float64, metrics *observability.Metrics) *Writer {
	if minBoxMeters <= 0 {
		minBoxMeters = DefaultMinBoundingBoxMeters
	}
	return &Writer{store: store, minBoxMeters: minBoxMeters, metrics: metrics}
}

// Store persists result as answered for request. Provider bounding boxes are
// kept as reported; only missing ones are synthesised around the result point.
func (w *Writer) Store(ctx context.Context, request domain.Point, result domain.GeocodingResult) (domain.CachedLocation, error) {
	if !result.Found() {
		return domain.CachedLocation{}, errors.New("store location: result has no place")
	}
	if err := request.Validate(); err != nil {
		return domain.CachedLocation{}, fmt.Errorf("store location: %w", err)
	}

	var origin domain.Point
	resultPoint := result.Point
	if resultPoint.Validate() != nil || (resultPoint == origin && request != origin) {
		resultPoint = request
	}

	box := result.BoundingBox
	if len(box) == 0 || len(box[0]) < 4 {
		box = domain.SquareAround(resultPoint, w.minBoxMeters)
	}

	now := domain.Now()
	loc, err := w.store.Insert(ctx, domain.CachedLocation{
		RequestCoordinate: request,
		ResultCoordinate:  resultPoint,
		BoundingBox:       box,
		DisplayName:       result.DisplayName,
		City:              result.City,
		Country:           result.Country,
		ProviderName:      domain.NormalizeProviderName(result.ProviderName),
		CreatedAt:         now,
		LastAccessedAt:    now,
	})
	if err != nil {
		return domain.CachedLocation{}, fmt.Errorf("store location: %w", err)
	}
	if w.metrics != nil {
		w.metrics.CacheWrites.Inc()
	}
	return loc, nil
}
