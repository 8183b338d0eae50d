// Package domain models reverse-geocoding results and the cache records that
// let nearby GPS points reuse them without calling an external provider.
//
// # Coordinates
//
// Points are WGS84 longitude/latitude pairs in that order, matching the
// GeoJSON and WKT conventions used by the store:
//
//	Point{Lon: 13.3910, Lat: 52.5129}  →  WKT "POINT(13.391 52.5129)"
//
// Longitude must be within [-180, 180] and latitude within [-90, 90]. Distances
// are great-circle (haversine) metres on a sphere of radius 6378137 m.
//
// # Cache Matching
//
// A cached location satisfies a query point when any of the following holds:
//
//  1. the point is within the tolerance of the location's result coordinate,
//  2. the point is within the tolerance of the location's request coordinate,
//  3. the point lies inside the location's bounding box (no tolerance).
//
// A distance exactly equal to the tolerance is a hit. When several locations
// match, the one with the most recent LastAccessedAt wins; equal timestamps
// fall back to the higher ID.
//
// # Record Lifecycle
//
// A CachedLocation is inserted once per successful provider resolution and is
// immutable afterwards except for LastAccessedAt, which every cache hit bumps
// on a best-effort basis. Records are only removed by explicit administrative
// deletion. Provider results that found no place are never persisted.
//
// # Providers
//
// Providers are addressed by a closed set of case-insensitive names:
// nominatim, googlemaps, mapbox and photon. An unknown name is an error, never
// a silent no-op. Whether a provider is enabled is asked on every call since
// credentials may change while the process runs.
package domain
