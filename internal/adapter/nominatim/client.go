// Package nominatim reverse-geocodes coordinates with an OpenStreetMap
// Nominatim server.
package nominatim

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/geocode-cache/internal/adapter/providerhttp"
	"github.com/couchcryptid/geocode-cache/internal/domain"
)

// DefaultBaseURL is the public OpenStreetMap instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Client implements domain.Provider using the Nominatim /reverse endpoint.
type Client struct {
	http    *providerhttp.Client
	baseURL string
	logger  *slog.Logger

	mu      sync.RWMutex
	enabled bool
}

// NewClient creates a Nominatim client for baseURL.
func NewClient(client *providerhttp.Client, baseURL string, enabled bool, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: client, baseURL: baseURL, enabled: enabled, logger: logger}
}

func (c *Client) Name() string { return domain.ProviderNominatim }

func (c *Client) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled toggles the provider at runtime.
func (c *Client) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// ReverseGeocode resolves p. Nominatim answers "Unable to geocode" with a
// 200 and an error field, which is reported as an empty result.
func (c *Client) ReverseGeocode(ctx context.Context, p domain.Point) (domain.GeocodingResult, error) {
	query := url.Values{
		"format":         {"jsonv2"},
		"lat":            {strconv.FormatFloat(p.Lat, 'f', -1, 64)},
		"lon":            {strconv.FormatFloat(p.Lon, 'f', -1, 64)},
		"addressdetails": {"1"},
	}

	var resp reverseResponse
	if err := c.http.GetJSON(ctx, c.baseURL+"/reverse", query, nil, &resp); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("nominatim reverse %s: %w", p, err)
	}
	if resp.Error != "" || resp.DisplayName == "" {
		c.logger.Debug("nominatim found no place", "point", p.String(), "reason", resp.Error)
		return domain.GeocodingResult{}, nil
	}

	result := domain.GeocodingResult{
		Point:        p,
		DisplayName:  resp.DisplayName,
		City:         resp.Address.city(),
		Country:      resp.Address.Country,
		ProviderName: domain.ProviderNominatim,
	}
	lat, latErr := strconv.ParseFloat(resp.Lat, 64)
	lon, lonErr := strconv.ParseFloat(resp.Lon, 64)
	if latErr == nil && lonErr == nil {
		result.Point = domain.Point{Lon: lon, Lat: lat}
	}
	if box, ok := parseBoundingBox(resp.BoundingBox); ok {
		result.BoundingBox = box
	}
	return result, nil
}

// parseBoundingBox reads Nominatim's [minLat, maxLat, minLon, maxLon] strings.
func parseBoundingBox(raw []string) (orb.Polygon, bool) {
	if len(raw) != 4 {
		return nil, false
	}
	var v [4]float64
	for i, s := range raw {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		v[i] = f
	}
	return domain.BoxFromBounds(v[2], v[0], v[3], v[1])
}

type reverseResponse struct {
	Error       string   `json:"error"`
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	DisplayName string   `json:"display_name"`
	BoundingBox []string `json:"boundingbox"`
	Address     address  `json:"address"`
}

type address struct {
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	Municipality string `json:"municipality"`
	Country      string `json:"country"`
}

func (a address) city() string {
	for _, s := range []string{a.City, a.Town, a.Village, a.Municipality} {
		if s != "" {
			return s
		}
	}
	return ""
}
