// Package photon reverse-geocodes coordinates with a Komoot Photon server.
package photon

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/geocode-cache/internal/adapter/providerhttp"
	"github.com/couchcryptid/geocode-cache/internal/domain"
)

// DefaultBaseURL is the public Komoot instance.
const DefaultBaseURL = "https://photon.komoot.io"

// Client implements domain.Provider using Photon's GeoJSON /reverse endpoint.
type Client struct {
	http    *providerhttp.Client
	baseURL string
	logger  *slog.Logger

	mu      sync.RWMutex
	enabled bool
}

// NewClient creates a Photon client for baseURL.
func NewClient(client *providerhttp.Client, baseURL string, enabled bool, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: client, baseURL: baseURL, enabled: enabled, logger: logger}
}

func (c *Client) Name() string { return domain.ProviderPhoton }

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

func (c *Client) ReverseGeocode(ctx context.Context, p domain.Point) (domain.GeocodingResult, error) {
	query := url.Values{
		"lat":   {strconv.FormatFloat(p.Lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(p.Lon, 'f', -1, 64)},
		"limit": {"1"},
	}

	fc := geojson.NewFeatureCollection()
	if err := c.http.GetJSON(ctx, c.baseURL+"/reverse", query, nil, fc); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("photon reverse %s: %w", p, err)
	}
	if len(fc.Features) == 0 {
		c.logger.Debug("photon found no place", "point", p.String())
		return domain.GeocodingResult{}, nil
	}

	f := fc.Features[0]
	props := f.Properties
	display := displayName(props)
	if display == "" {
		return domain.GeocodingResult{}, nil
	}

	result := domain.GeocodingResult{
		Point:        p,
		DisplayName:  display,
		City:         firstNonEmpty(props.MustString("city", ""), props.MustString("town", ""), props.MustString("village", "")),
		Country:      props.MustString("country", ""),
		ProviderName: domain.ProviderPhoton,
	}
	if pt, ok := f.Geometry.(orb.Point); ok {
		result.Point = domain.PointFromOrb(pt)
	}
	if box, ok := parseExtent(props["extent"]); ok {
		result.BoundingBox = box
	}
	return result, nil
}

// parseExtent reads Photon's [minLon, maxLat, maxLon, minLat] extent.
func parseExtent(raw any) (orb.Polygon, bool) {
	values, ok := raw.([]any)
	if !ok || len(values) != 4 {
		return nil, false
	}
	var v [4]float64
	for i, x := range values {
		f, ok := x.(float64)
		if !ok {
			return nil, false
		}
		v[i] = f
	}
	return domain.BoxFromBounds(v[0], v[3], v[2], v[1])
}

// displayName joins the populated address parts the way Photon's own UI
// labels a feature.
func displayName(props geojson.Properties) string {
	street := strings.TrimSpace(props.MustString("street", "") + " " + props.MustString("housenumber", ""))
	locality := strings.TrimSpace(props.MustString("postcode", "") + " " +
		firstNonEmpty(props.MustString("city", ""), props.MustString("town", ""), props.MustString("village", "")))

	var parts []string
	for _, s := range []string{props.MustString("name", ""), street, locality, props.MustString("state", ""), props.MustString("country", "")} {
		if s != "" && !slices.Contains(parts, s) {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
