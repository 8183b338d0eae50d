package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// CachedLocation is a persisted provider result together with the coordinate
// that was originally asked for.
type CachedLocation struct {
	ID                int64
	RequestCoordinate Point
	ResultCoordinate  Point
	BoundingBox       orb.Polygon
	DisplayName       string
	City              string
	Country           string
	ProviderName      string
	CreatedAt         time.Time
	LastAccessedAt    time.Time
}

// Matches reports whether p is served by this record: within toleranceMeters
// of the result or request coordinate, or inside the bounding box.
func (l CachedLocation) Matches(p Point, toleranceMeters float64) bool {
	if DistanceMeters(p, l.ResultCoordinate) <= toleranceMeters {
		return true
	}
	if DistanceMeters(p, l.RequestCoordinate) <= toleranceMeters {
		return true
	}
	return PolygonContains(l.BoundingBox, p)
}

// MoreRecent orders candidates by access recency, breaking ties by ID.
func (l CachedLocation) MoreRecent(other CachedLocation) bool {
	if !l.LastAccessedAt.Equal(other.LastAccessedAt) {
		return l.LastAccessedAt.After(other.LastAccessedAt)
	}
	return l.ID > other.ID
}

// GeocodingResult is what a provider returns for a coordinate. A result with
// an empty DisplayName means the provider found nothing there.
type GeocodingResult struct {
	Point        Point
	BoundingBox  orb.Polygon
	DisplayName  string
	City         string
	Country      string
	ProviderName string
}

// Found reports whether the provider resolved the coordinate to a place.
func (r GeocodingResult) Found() bool {
	return r.DisplayName != ""
}

// PlaceResult is the per-point outcome of a resolution. Location and Err are
// never both set; both nil means no provider knows a place at Point.
type PlaceResult struct {
	Point    Point
	Location *CachedLocation
	CacheHit bool
	Err      error
}

// Resolved reports whether the point was matched to a place.
func (r PlaceResult) Resolved() bool {
	return r.Location != nil
}
