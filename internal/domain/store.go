package domain

import (
	"context"
	"strings"
	"time"
)

// LocationStore persists cached locations and answers spatial lookups.
type LocationStore interface {
	// FindNearest returns the best match for p, or nil when nothing matches.
	FindNearest(ctx context.Context, p Point, toleranceMeters float64) (*CachedLocation, error)

	// FindBatch matches every point in one pass. The result is keyed by
	// Point.Key and omits points without a match.
	FindBatch(ctx context.Context, points []Point, toleranceMeters float64) (map[string]*CachedLocation, error)

	// Insert appends a new record and returns it with its ID assigned.
	Insert(ctx context.Context, loc CachedLocation) (CachedLocation, error)
}

// AdminStore is the administrative surface over the cache.
type AdminStore interface {
	List(ctx context.Context, f ListFilter) ([]CachedLocation, error)
	Count(ctx context.Context, f ListFilter) (int64, error)
	CountByProvider(ctx context.Context) (map[string]int64, error)
	CountCreatedSince(ctx context.Context, days int) (int64, error)
	CountAccessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DistinctProviders(ctx context.Context) ([]string, error)
	FindByID(ctx context.Context, id int64) (CachedLocation, error)
	FindByIDs(ctx context.Context, ids []int64) ([]CachedLocation, error)
	FindExact(ctx context.Context, p Point) (CachedLocation, error)
	IDs(ctx context.Context, f ListFilter) ([]int64, error)
	Delete(ctx context.Context, ids ...int64) (int64, error)
	DeleteAccessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sort fields accepted by ListFilter.
const (
	SortDisplayName    = "displayName"
	SortCity           = "city"
	SortCountry        = "country"
	SortProviderName   = "providerName"
	SortCreatedAt      = "createdAt"
	SortLastAccessedAt = "lastAccessedAt"
)

// DefaultListLimit caps a page when the caller does not choose a size.
const DefaultListLimit = 50

// ListFilter narrows administrative listings. Zero values mean "no filter".
type ListFilter struct {
	Provider  string
	Search    string
	Page      int // 1-based
	Limit     int
	SortField string
	SortOrder string // "asc", anything else sorts descending
}

// Normalized fills defaults: page 1, DefaultListLimit, lastAccessedAt
// descending, and replaces unknown sort fields with lastAccessedAt.
func (f ListFilter) Normalized() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	switch f.SortField {
	case SortDisplayName, SortCity, SortCountry, SortProviderName, SortCreatedAt, SortLastAccessedAt:
	default:
		f.SortField = SortLastAccessedAt
	}
	if strings.EqualFold(f.SortOrder, "asc") {
		f.SortOrder = "asc"
	} else {
		f.SortOrder = "desc"
	}
	f.Search = strings.TrimSpace(f.Search)
	f.Provider = strings.TrimSpace(f.Provider)
	return f
}

// Offset returns the row offset of the filter's page.
func (f ListFilter) Offset() int {
	n := f.Normalized()
	return (n.Page - 1) * n.Limit
}
