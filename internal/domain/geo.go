package domain

import (
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// boundPad widens search envelopes by roughly a centimetre so float rounding
// never drops a point sitting exactly on the tolerance radius.
const boundPad = 1e-7

// Point is a WGS84 coordinate.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Validate reports whether the point is a usable geographic coordinate.
func (p Point) Validate() error {
	if math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinate, p.Lon)
	}
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinate, p.Lat)
	}
	return nil
}

// Key identifies the exact coordinate, used to map batch inputs to results.
func (p Point) Key() string {
	return strconv.FormatFloat(p.Lon, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lat, 'f', -1, 64)
}

func (p Point) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Lon, p.Lat)
}

// Orb converts the point to its orb representation.
func (p Point) Orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// PointFromOrb converts an orb point.
func PointFromOrb(o orb.Point) Point {
	return Point{Lon: o.Lon(), Lat: o.Lat()}
}

// DistanceMeters returns the haversine distance between two points.
func DistanceMeters(a, b Point) float64 {
	return geo.DistanceHaversine(a.Orb(), b.Orb())
}

// SearchBound returns a lon/lat envelope that contains every point within
// meters of p. Envelopes that would cross the antimeridian are widened to the
// full longitude range; callers refine candidates with DistanceMeters.
func SearchBound(p Point, meters float64) orb.Bound {
	if meters < 0 {
		meters = 0
	}
	b := geo.NewBoundAroundPoint(p.Orb(), meters).Pad(boundPad)
	if b.Min[0] < -180 || b.Max[0] > 180 || math.IsNaN(b.Min[0]) || math.IsNaN(b.Max[0]) {
		b.Min[0], b.Max[0] = -180, 180
	}
	b.Min[1] = math.Max(b.Min[1], -90)
	b.Max[1] = math.Min(b.Max[1], 90)
	return b
}

// SquareAround builds a rectangular polygon extending meters from p in every
// direction.
func SquareAround(p Point, meters float64) orb.Polygon {
	b := geo.NewBoundAroundPoint(p.Orb(), meters)
	b.Min[0] = math.Max(b.Min[0], -180)
	b.Max[0] = math.Min(b.Max[0], 180)
	b.Min[1] = math.Max(b.Min[1], -90)
	b.Max[1] = math.Min(b.Max[1], 90)
	return b.ToPolygon()
}

// BoxFromBounds builds a rectangle from provider-reported extremes. Swapped
// latitudes are reordered. A west edge east of the east edge describes a box
// crossing the antimeridian, which a single lon/lat rectangle cannot hold, so
// it is rejected along with out-of-range extremes and empty areas.
func BoxFromBounds(minLon, minLat, maxLon, maxLat float64) (orb.Polygon, bool) {
	if minLat > maxLat {
		minLat, maxLat = maxLat, minLat
	}
	lo, hi := Point{Lon: minLon, Lat: minLat}, Point{Lon: maxLon, Lat: maxLat}
	if lo.Validate() != nil || hi.Validate() != nil {
		return nil, false
	}
	if minLon >= maxLon || minLat == maxLat {
		return nil, false
	}
	return orb.Bound{Min: lo.Orb(), Max: hi.Orb()}.ToPolygon(), true
}

// PolygonContains reports whether p lies inside poly.
func PolygonContains(poly orb.Polygon, p Point) bool {
	if len(poly) == 0 {
		return false
	}
	return planar.PolygonContains(poly, p.Orb())
}
