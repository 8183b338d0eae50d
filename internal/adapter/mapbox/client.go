// Package mapbox reverse-geocodes coordinates with the Mapbox Geocoding API.
package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/couchcryptid/geocode-cache/internal/domain"
)

// DefaultBaseURL is the Mapbox places endpoint.
const DefaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// Client implements domain.Provider. It is enabled only while a token is set.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger

	mu      sync.RWMutex
	token   string
	enabled bool
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, enabled bool, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		token:   token,
		enabled: enabled,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: DefaultBaseURL,
		logger:  logger,
	}
}

func (c *Client) Name() string { return domain.ProviderMapbox }

func (c *Client) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled && c.token != ""
}

// SetToken replaces the access token; an empty token disables the provider.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// SetEnabled toggles the provider at runtime.
func (c *Client) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// ReverseGeocode converts coordinates to place details.
func (c *Client) ReverseGeocode(ctx context.Context, p domain.Point) (domain.GeocodingResult, error) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	// Mapbox uses lon,lat order.
	coord := strconv.FormatFloat(p.Lon, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lat, 'f', -1, 64)
	u := fmt.Sprintf("%s/%s.json", c.baseURL, coord)
	params := url.Values{
		"access_token": {token},
		"limit":        {"1"},
	}

	resp, err := c.doRequest(ctx, u+"?"+params.Encode())
	if err != nil {
		return domain.GeocodingResult{}, err
	}
	if len(resp.Features) == 0 {
		c.logger.Debug("mapbox found no place", "point", p.String())
		return domain.GeocodingResult{}, nil
	}

	f := resp.Features[0]
	result := domain.GeocodingResult{
		Point:        p,
		DisplayName:  f.PlaceName,
		City:         f.contextText("place"),
		Country:      f.contextText("country"),
		ProviderName: domain.ProviderMapbox,
	}
	if result.City == "" && strings.HasPrefix(f.ID, "place.") {
		result.City = f.Text
	}
	if len(f.Center) == 2 {
		result.Point = domain.Point{Lon: f.Center[0], Lat: f.Center[1]}
	}
	if len(f.BBox) == 4 {
		if box, ok := domain.BoxFromBounds(f.BBox[0], f.BBox[1], f.BBox[2], f.BBox[3]); ok {
			result.BoundingBox = box
		}
	}
	return result, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return response{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return response{}, ctxErr
		}
		return response{}, fmt.Errorf("mapbox reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return response{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}
	return mapboxResp, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID        string        `json:"id"`
	Center    []float64     `json:"center"` // [lon, lat]
	BBox      []float64     `json:"bbox"`   // [minLon, minLat, maxLon, maxLat]
	PlaceName string        `json:"place_name"`
	Text      string        `json:"text"`
	Context   []contextItem `json:"context"`
}

type contextItem struct {
	ID   string `json:"id"` // "<type>.<id>", e.g. "place.9964"
	Text string `json:"text"`
}

func (f feature) contextText(kind string) string {
	for _, item := range f.Context {
		if strings.HasPrefix(item.ID, kind+".") {
			return item.Text
		}
	}
	return ""
}
