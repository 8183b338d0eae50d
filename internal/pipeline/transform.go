package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/geocode-cache/internal/domain"
)

// Resolver resolves many coordinates at once, keyed by Point.Key.
type Resolver interface {
	ResolveMany(ctx context.Context, points []domain.Point) map[string]domain.PlaceResult
}

// GeocodeTransformer decodes request messages, resolves them with one
// ResolveMany call and encodes a response per request.
type GeocodeTransformer struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewTransformer creates a GeocodeTransformer.
func NewTransformer(resolver Resolver, logger *slog.Logger) *GeocodeTransformer {
	return &GeocodeTransformer{
		resolver: resolver,
		logger:   logger,
	}
}

// TransformBatch returns one Outcome per raw event, in order. Requests that
// cannot be decoded carry Err and never reach the resolver.
func (t *GeocodeTransformer) TransformBatch(ctx context.Context, raws []domain.RawEvent) []Outcome {
	outcomes := make([]Outcome, len(raws))
	requests := make([]domain.GeocodeRequest, len(raws))
	points := make([]domain.Point, 0, len(raws))

	for i, raw := range raws {
		req, err := domain.ParseGeocodeRequest(raw)
		if err != nil {
			outcomes[i].Err = err
			continue
		}
		requests[i] = req
		points = append(points, req.Point())
	}
	if len(points) == 0 {
		return outcomes
	}

	results := t.resolver.ResolveMany(ctx, points)

	for i := range raws {
		if outcomes[i].Err != nil {
			continue
		}
		req := requests[i]
		res := results[req.Point().Key()]
		if res.Err != nil {
			t.logger.Debug("request failed to resolve",
				"id", req.ID,
				"point", req.Point().String(),
				"kind", domain.ErrorKind(res.Err),
				"error", res.Err,
			)
		}
		out, err := domain.SerializeResponse(domain.NewGeocodeResponse(req, res))
		if err != nil {
			outcomes[i].Err = err
			continue
		}
		outcomes[i].Out = out
	}
	return outcomes
}
