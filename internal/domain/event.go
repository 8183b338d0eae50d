package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// GeocodeRequest asks for the place at a coordinate. ID is chosen by the
// producer and echoed back on the response.
type GeocodeRequest struct {
	ID  string   `json:"id"`
	Lon *float64 `json:"lon"`
	Lat *float64 `json:"lat"`
}

// Point returns the requested coordinate.
func (r GeocodeRequest) Point() Point {
	return Point{Lon: *r.Lon, Lat: *r.Lat}
}

// Response status values.
const (
	StatusResolved = "resolved"
	StatusNotFound = "not_found"
	StatusFailed   = "failed"
)

// LocationPayload is the wire form of a CachedLocation.
type LocationPayload struct {
	ID             int64      `json:"id"`
	DisplayName    string     `json:"display_name"`
	City           string     `json:"city,omitempty"`
	Country        string     `json:"country,omitempty"`
	Provider       string     `json:"provider"`
	Lon            float64    `json:"lon"`
	Lat            float64    `json:"lat"`
	BoundingBox    [4]float64 `json:"bbox"` // minLon, minLat, maxLon, maxLat
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
}

// GeocodeResponse is published for every accepted request.
type GeocodeResponse struct {
	ID          string           `json:"id"`
	Lon         float64          `json:"lon"`
	Lat         float64          `json:"lat"`
	Status      string           `json:"status"`
	CacheHit    bool             `json:"cache_hit"`
	Location    *LocationPayload `json:"location,omitempty"`
	ErrorKind   string           `json:"error_kind,omitempty"`
	Error       string           `json:"error,omitempty"`
	ProcessedAt time.Time        `json:"processed_at"`
}

// ParseGeocodeRequest decodes a request message. A message without a
// usable id or coordinate is rejected.
func ParseGeocodeRequest(raw RawEvent) (GeocodeRequest, error) {
	var req GeocodeRequest
	if err := json.Unmarshal(raw.Value, &req); err != nil {
		return GeocodeRequest{}, fmt.Errorf("parse geocode request: %w", err)
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" && len(raw.Key) > 0 {
		req.ID = string(raw.Key)
	}
	if req.ID == "" {
		return GeocodeRequest{}, errors.New("parse geocode request: missing id")
	}
	if req.Lon == nil || req.Lat == nil {
		return GeocodeRequest{}, fmt.Errorf("parse geocode request %s: %w: missing lon or lat", req.ID, ErrInvalidCoordinate)
	}
	if err := req.Point().Validate(); err != nil {
		return GeocodeRequest{}, fmt.Errorf("parse geocode request %s: %w", req.ID, err)
	}
	return req, nil
}

// NewGeocodeResponse builds the response for req from the engine's result.
func NewGeocodeResponse(req GeocodeRequest, res PlaceResult) GeocodeResponse {
	p := req.Point()
	resp := GeocodeResponse{
		ID:          req.ID,
		Lon:         p.Lon,
		Lat:         p.Lat,
		CacheHit:    res.CacheHit,
		ProcessedAt: Now(),
	}
	switch {
	case res.Err != nil:
		resp.Status = StatusFailed
		resp.ErrorKind = ErrorKind(res.Err)
		resp.Error = res.Err.Error()
	case res.Location != nil:
		resp.Status = StatusResolved
		resp.Location = NewLocationPayload(*res.Location)
	default:
		resp.Status = StatusNotFound
	}
	return resp
}

// NewLocationPayload converts a cached location to its wire form.
func NewLocationPayload(loc CachedLocation) *LocationPayload {
	b := loc.BoundingBox.Bound()
	return &LocationPayload{
		ID:             loc.ID,
		DisplayName:    loc.DisplayName,
		City:           loc.City,
		Country:        loc.Country,
		Provider:       loc.ProviderName,
		Lon:            loc.ResultCoordinate.Lon,
		Lat:            loc.ResultCoordinate.Lat,
		BoundingBox:    [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()},
		CreatedAt:      loc.CreatedAt,
		LastAccessedAt: loc.LastAccessedAt,
	}
}

// SerializeResponse marshals resp into an OutputEvent keyed by request id.
func SerializeResponse(resp GeocodeResponse) (OutputEvent, error) {
	value, err := json.Marshal(resp)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize geocode response: %w", err)
	}
	return OutputEvent{
		Key:   []byte(resp.ID),
		Value: value,
		Headers: map[string]string{
			"status":       resp.Status,
			"processed_at": resp.ProcessedAt.Format(time.RFC3339),
		},
	}, nil
}
