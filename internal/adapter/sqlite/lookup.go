package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/geocode-cache/internal/domain"
)

// A chunk of query points is loaded into a connection-local table, one row
// per point with its tolerance envelope, and each row probes the R*Tree for
// overlapping location envelopes. Exact distance and polygon containment are
// checked by the caller.
const createQueryTable = `
CREATE TEMP TABLE IF NOT EXISTS geocode_query (
	idx INTEGER PRIMARY KEY,
	lon REAL NOT NULL,
	lat REAL NOT NULL,
	min_lon REAL NOT NULL,
	min_lat REAL NOT NULL,
	max_lon REAL NOT NULL,
	max_lat REAL NOT NULL
)`

// Each element of the JSON parameter is [lon, lat, minLon, minLat, maxLon, maxLat].
const loadQueryTable = `
INSERT INTO temp.geocode_query (idx, lon, lat, min_lon, min_lat, max_lon, max_lat)
SELECT CAST(key AS INTEGER),
	json_extract(value, '$[0]'),
	json_extract(value, '$[1]'),
	json_extract(value, '$[2]'),
	json_extract(value, '$[3]'),
	json_extract(value, '$[4]'),
	json_extract(value, '$[5]')
FROM json_each(?)`

const findBatchQuery = `
SELECT q.idx, ` + qualifiedColumns + `
FROM temp.geocode_query q
CROSS JOIN reverse_geocoding_envelope e
JOIN reverse_geocoding_location l ON l.id = e.id
WHERE e.max_lon >= q.min_lon AND e.min_lon <= q.max_lon
	AND e.max_lat >= q.min_lat AND e.min_lat <= q.max_lat
ORDER BY q.idx, l.last_accessed_at DESC, l.id DESC`

const qualifiedColumns = `l.id, l.request_lon, l.request_lat, l.result_lon, l.result_lat, l.bbox_wkt,
	l.display_name, l.city, l.country, l.provider_name, l.created_at, l.last_accessed_at`

// FindNearest returns the most recently accessed location matching p, or nil
// when there is none. It shares FindBatch's query so single and batch lookups
// agree.
func (s *Store) FindNearest(ctx context.Context, p domain.Point, toleranceMeters float64) (*domain.CachedLocation, error) {
	found, err := s.FindBatch(ctx, []domain.Point{p}, toleranceMeters)
	if err != nil {
		return nil, err
	}
	return found[p.Key()], nil
}

// FindBatch matches all points, one statement per chunk. Points that share a
// match receive the same *CachedLocation. Matched records have their
// last-accessed time bumped in the background.
func (s *Store) FindBatch(ctx context.Context, points []domain.Point, toleranceMeters float64) (map[string]*domain.CachedLocation, error) {
	start := time.Now()
	defer s.observe("find_batch", start)

	unique := dedupe(points)
	result := make(map[string]*domain.CachedLocation, len(unique))
	byID := make(map[int64]*domain.CachedLocation)

	for lo := 0; lo < len(unique); lo += s.chunkSize {
		hi := min(lo+s.chunkSize, len(unique))
		if err := s.findChunk(ctx, unique[lo:hi], toleranceMeters, result, byID); err != nil {
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues("hit").Add(float64(len(result)))
		s.metrics.CacheLookups.WithLabelValues("miss").Add(float64(len(unique) - len(result)))
	}

	if len(byID) > 0 {
		ids := make([]int64, 0, len(byID))
		for id := range byID {
			ids = append(ids, id)
		}
		s.touch(ids)
	}
	return result, nil
}

func (s *Store) findChunk(
	ctx context.Context,
	chunk []domain.Point,
	toleranceMeters float64,
	result map[string]*domain.CachedLocation,
	byID map[int64]*domain.CachedLocation,
) error {
	input := make([][6]float64, len(chunk))
	for i, p := range chunk {
		b := domain.SearchBound(p, toleranceMeters)
		input[i] = [6]float64{p.Lon, p.Lat, b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("find batch: encode points: %w", err)
	}

	// The query table lives only inside this transaction; rollback clears it.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("find batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, createQueryTable); err != nil {
		return fmt.Errorf("find batch: create query table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, loadQueryTable, string(payload)); err != nil {
		return fmt.Errorf("find batch: load points: %w", err)
	}

	rows, err := tx.QueryContext(ctx, findBatchQuery)
	if err != nil {
		return fmt.Errorf("find batch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idx int
		loc, err := scanLocation(rows, &idx)
		if err != nil {
			return fmt.Errorf("find batch: %w", err)
		}
		if idx < 0 || idx >= len(chunk) {
			continue
		}
		p := chunk[idx]
		key := p.Key()
		if _, done := result[key]; done {
			continue
		}
		if !loc.Matches(p, toleranceMeters) {
			continue
		}
		shared, ok := byID[loc.ID]
		if !ok {
			shared = &loc
			byID[loc.ID] = shared
		}
		result[key] = shared
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("find batch: %w", err)
	}
	return nil
}

// touch bumps last_accessed_at for ids on a detached goroutine with its own
// deadline. Failures are logged and counted, never returned.
func (s *Store) touch(ids []int64) {
	now := toUnix(domain.Now())
	payload, err := json.Marshal(ids)
	if err != nil {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.touches.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.touches.Done()
		start := time.Now()
		defer s.observe("touch", start)

		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()

		_, err := s.db.ExecContext(ctx,
			`UPDATE reverse_geocoding_location
			 SET last_accessed_at = MAX(last_accessed_at, ?)
			 WHERE id IN (SELECT value FROM json_each(?))`,
			now, string(payload),
		)
		if err != nil {
			s.logger.Debug("touch last accessed failed", "ids", len(ids), "error", err)
			if s.metrics != nil {
				s.metrics.TouchFailures.Inc()
			}
		}
	}()
}

// dedupe drops repeated and invalid points, keeping first-seen order.
func dedupe(points []domain.Point) []domain.Point {
	seen := make(map[string]struct{}, len(points))
	out := make([]domain.Point, 0, len(points))
	for _, p := range points {
		if p.Validate() != nil {
			continue
		}
		k := p.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}
