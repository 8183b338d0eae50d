package domain

import (
	"context"
	"strings"
)

// Provider names. Lookups are case-insensitive.
const (
	ProviderNominatim  = "nominatim"
	ProviderGoogleMaps = "googlemaps"
	ProviderMapbox     = "mapbox"
	ProviderPhoton     = "photon"
)

// ProviderOrder is the fixed order used when listing providers.
var ProviderOrder = []string{ProviderNominatim, ProviderGoogleMaps, ProviderMapbox, ProviderPhoton}

var displayNames = map[string]string{
	ProviderNominatim:  "Nominatim",
	ProviderGoogleMaps: "GoogleMaps",
	ProviderMapbox:     "Mapbox",
	ProviderPhoton:     "Photon",
}

// Provider turns a coordinate into place details using an external service.
type Provider interface {
	// Name returns the lowercase provider name.
	Name() string

	// Enabled reports whether the provider may be called right now.
	Enabled() bool

	// ReverseGeocode resolves p. A result with an empty DisplayName and a nil
	// error means the provider has no place at p.
	ReverseGeocode(ctx context.Context, p Point) (GeocodingResult, error)
}

// NormalizeProviderName lowercases and trims a provider name.
func NormalizeProviderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsKnownProvider reports whether name is one of the supported providers.
func IsKnownProvider(name string) bool {
	_, ok := displayNames[NormalizeProviderName(name)]
	return ok
}

// ProviderDisplayName returns the human-facing name, or name unchanged when
// it is not a known provider.
func ProviderDisplayName(name string) string {
	if d, ok := displayNames[NormalizeProviderName(name)]; ok {
		return d
	}
	return name
}
