// Package googlemaps reverse-geocodes coordinates with the Google Maps
// Geocoding API.
package googlemaps

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"sync"

	"github.com/couchcryptid/geocode-cache/internal/adapter/providerhttp"
	"github.com/couchcryptid/geocode-cache/internal/domain"
)

// DefaultBaseURL is the Geocoding API endpoint.
const DefaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// Client implements domain.Provider. It is enabled only while an API key is set.
type Client struct {
	http    *providerhttp.Client
	baseURL string
	logger  *slog.Logger

	mu      sync.RWMutex
	apiKey  string
	enabled bool
}

// NewClient creates a Google Maps client.
func NewClient(client *providerhttp.Client, apiKey string, enabled bool, logger *slog.Logger) *Client {
	return &Client{
		http:    client,
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		enabled: enabled,
		logger:  logger,
	}
}

// WithBaseURL points the client at another endpoint.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = u
	return c
}

func (c *Client) Name() string { return domain.ProviderGoogleMaps }

func (c *Client) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled && c.apiKey != ""
}

// SetAPIKey replaces the key; an empty key disables the provider.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = key
}

// SetEnabled toggles the provider at runtime.
func (c *Client) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

func (c *Client) ReverseGeocode(ctx context.Context, p domain.Point) (domain.GeocodingResult, error) {
	c.mu.RLock()
	key := c.apiKey
	c.mu.RUnlock()

	query := url.Values{
		"latlng": {strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lon, 'f', -1, 64)},
		"key":    {key},
	}

	var resp response
	if err := c.http.GetJSON(ctx, c.baseURL, query, nil, &resp); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("google maps reverse %s: %w", p, err)
	}

	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		c.logger.Debug("google maps found no place", "point", p.String())
		return domain.GeocodingResult{}, nil
	default:
		msg := resp.Status
		if resp.ErrorMessage != "" {
			msg += ": " + resp.ErrorMessage
		}
		return domain.GeocodingResult{}, fmt.Errorf("google maps reverse %s: status %s", p, msg)
	}
	if len(resp.Results) == 0 {
		return domain.GeocodingResult{}, nil
	}

	r := resp.Results[0]
	result := domain.GeocodingResult{
		Point:        domain.Point{Lon: r.Geometry.Location.Lng, Lat: r.Geometry.Location.Lat},
		DisplayName:  r.FormattedAddress,
		City:         r.component("locality", "postal_town", "administrative_area_level_2"),
		Country:      r.component("country"),
		ProviderName: domain.ProviderGoogleMaps,
	}
	box := r.Geometry.Viewport
	if r.Geometry.Bounds != nil {
		box = *r.Geometry.Bounds
	}
	if poly, ok := domain.BoxFromBounds(box.Southwest.Lng, box.Southwest.Lat, box.Northeast.Lng, box.Northeast.Lat); ok {
		result.BoundingBox = poly
	}
	return result, nil
}

type response struct {
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message"`
	Results      []result `json:"results"`
}

type result struct {
	FormattedAddress  string      `json:"formatted_address"`
	AddressComponents []component `json:"address_components"`
	Geometry          geometry    `json:"geometry"`
}

// component returns the long name of the first address component carrying
// any of the given types, trying types in order.
func (r result) component(types ...string) string {
	for _, t := range types {
		for _, c := range r.AddressComponents {
			if slices.Contains(c.Types, t) {
				return c.LongName
			}
		}
	}
	return ""
}

type component struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

type geometry struct {
	Location latLng     `json:"location"`
	Viewport rectangle  `json:"viewport"`
	Bounds   *rectangle `json:"bounds"`
}

type rectangle struct {
	Northeast latLng `json:"northeast"`
	Southwest latLng `json:"southwest"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
