package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/geocode-cache/internal/domain"
)

var sortColumns = map[string]string{
	domain.SortDisplayName:    "display_name",
	domain.SortCity:           "city",
	domain.SortCountry:        "country",
	domain.SortProviderName:   "provider_name",
	domain.SortCreatedAt:      "created_at",
	domain.SortLastAccessedAt: "last_accessed_at",
}

// whereClause composes the filter predicates shared by List, Count and IDs.
func whereClause(f domain.ListFilter) (string, []any) {
	var b strings.Builder
	var args []any
	b.WriteString(" WHERE 1=1")

	if f.Provider != "" {
		b.WriteString(" AND provider_name = ?")
		args = append(args, domain.NormalizeProviderName(f.Provider))
	}
	if f.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(f.Search)) + "%"
		b.WriteString(` AND (LOWER(display_name) LIKE ? ESCAPE '\' OR LOWER(city) LIKE ? ESCAPE '\' OR LOWER(country) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	return b.String(), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// List returns one page of locations matching f.
func (s *Store) List(ctx context.Context, f domain.ListFilter) ([]domain.CachedLocation, error) {
	f = f.Normalized()
	where, args := whereClause(f)
	order := "DESC"
	if f.SortOrder == "asc" {
		order = "ASC"
	}

	query := "SELECT " + locationColumns + " FROM reverse_geocoding_location" + where +
		fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT ? OFFSET ?", sortColumns[f.SortField], order, order)
	args = append(args, f.Limit, f.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	out, err := scanLocations(rows)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	return out, nil
}

// Count returns the number of locations matching f, ignoring paging.
func (s *Store) Count(ctx context.Context, f domain.ListFilter) (int64, error) {
	where, args := whereClause(f.Normalized())
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reverse_geocoding_location"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count locations: %w", err)
	}
	return n, nil
}

// IDs returns the ids of every location matching f, ignoring paging.
func (s *Store) IDs(ctx context.Context, f domain.ListFilter) ([]int64, error) {
	where, args := whereClause(f.Normalized())
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM reverse_geocoding_location"+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("list location ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list location ids: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountByProvider groups all locations by the provider that produced them.
func (s *Store) CountByProvider(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider_name, COUNT(*) FROM reverse_geocoding_location GROUP BY provider_name`)
	if err != nil {
		return nil, fmt.Errorf("count by provider: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("count by provider: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// CountCreatedSince counts locations created within the trailing days.
func (s *Store) CountCreatedSince(ctx context.Context, days int) (int64, error) {
	cutoff := domain.Now().AddDate(0, 0, -days)
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reverse_geocoding_location WHERE created_at >= ?`, toUnix(cutoff),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recent locations: %w", err)
	}
	return n, nil
}

// CountAccessedBefore counts locations not accessed since cutoff.
func (s *Store) CountAccessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reverse_geocoding_location WHERE last_accessed_at < ?`, toUnix(cutoff),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale locations: %w", err)
	}
	return n, nil
}

// DistinctProviders lists every provider that has produced a location.
func (s *Store) DistinctProviders(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT provider_name FROM reverse_geocoding_location`)
	if err != nil {
		return nil, fmt.Errorf("distinct providers: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("distinct providers: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("distinct providers: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// FindByID returns the location with id or domain.ErrNotFound.
func (s *Store) FindByID(ctx context.Context, id int64) (domain.CachedLocation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+locationColumns+" FROM reverse_geocoding_location WHERE id = ?", id)
	loc, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CachedLocation{}, fmt.Errorf("location %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CachedLocation{}, fmt.Errorf("find location %d: %w", id, err)
	}
	return loc, nil
}

// FindByIDs returns the existing locations among ids ordered by id.
func (s *Store) FindByIDs(ctx context.Context, ids []int64) ([]domain.CachedLocation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("find locations by id: %w", err)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+locationColumns+` FROM reverse_geocoding_location
		 WHERE id IN (SELECT value FROM json_each(?)) ORDER BY id`, string(payload))
	if err != nil {
		return nil, fmt.Errorf("find locations by id: %w", err)
	}
	out, err := scanLocations(rows)
	if err != nil {
		return nil, fmt.Errorf("find locations by id: %w", err)
	}
	return out, nil
}

// FindExact returns the most recently accessed location whose request
// coordinate equals p exactly.
func (s *Store) FindExact(ctx context.Context, p domain.Point) (domain.CachedLocation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+locationColumns+` FROM reverse_geocoding_location
		 WHERE request_lon = ? AND request_lat = ?
		 ORDER BY last_accessed_at DESC, id DESC LIMIT 1`, p.Lon, p.Lat)
	loc, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CachedLocation{}, fmt.Errorf("location at %s: %w", p, domain.ErrNotFound)
	}
	if err != nil {
		return domain.CachedLocation{}, fmt.Errorf("find exact location: %w", err)
	}
	return loc, nil
}

// Delete removes the given locations and reports how many existed.
func (s *Store) Delete(ctx context.Context, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return 0, fmt.Errorf("delete locations: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reverse_geocoding_location WHERE id IN (SELECT value FROM json_each(?))`, string(payload))
	if err != nil {
		return 0, fmt.Errorf("delete locations: %w", err)
	}
	return res.RowsAffected()
}

// DeleteAccessedBefore removes locations not accessed since cutoff.
func (s *Store) DeleteAccessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reverse_geocoding_location WHERE last_accessed_at < ?`, toUnix(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune locations: %w", err)
	}
	return res.RowsAffected()
}
