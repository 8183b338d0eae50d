// Package sqlite persists cached reverse-geocoding results in a SQLite
// database and answers tolerance and bounding-box lookups against them.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb/encoding/wkt"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/geocode-cache/internal/domain"
	"github.com/couchcryptid/geocode-cache/internal/observability"
)

// DefaultChunkSize bounds the number of points sent in one batch statement.
const DefaultChunkSize = 10000

const touchTimeout = 5 * time.Second

const createLocationTable = `
CREATE TABLE IF NOT EXISTS reverse_geocoding_location (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_lon REAL NOT NULL,
	request_lat REAL NOT NULL,
	result_lon REAL NOT NULL,
	result_lat REAL NOT NULL,
	bbox_wkt TEXT NOT NULL,
	bbox_min_lon REAL NOT NULL,
	bbox_min_lat REAL NOT NULL,
	bbox_max_lon REAL NOT NULL,
	bbox_max_lat REAL NOT NULL,
	display_name TEXT NOT NULL,
	city TEXT NOT NULL DEFAULT '',
	country TEXT NOT NULL DEFAULT '',
	provider_name TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_accessed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rgl_request ON reverse_geocoding_location (request_lon, request_lat);
CREATE INDEX IF NOT EXISTS idx_rgl_provider ON reverse_geocoding_location (provider_name);
CREATE INDEX IF NOT EXISTS idx_rgl_last_accessed ON reverse_geocoding_location (last_accessed_at);
DROP INDEX IF EXISTS idx_rgl_result;
DROP INDEX IF EXISTS idx_rgl_bbox;
`

// Each location has one envelope in the R*Tree covering its result point,
// request point and bounding box. Triggers keep it in step with the table and
// the final statement backfills databases created before the index existed.
const createEnvelopeIndex = `
CREATE VIRTUAL TABLE IF NOT EXISTS reverse_geocoding_envelope USING rtree(
	id, min_lon, max_lon, min_lat, max_lat
);
CREATE TRIGGER IF NOT EXISTS trg_rgl_envelope_insert AFTER INSERT ON reverse_geocoding_location
BEGIN
	INSERT INTO reverse_geocoding_envelope (id, min_lon, max_lon, min_lat, max_lat)
	VALUES (
		NEW.id,
		min(NEW.bbox_min_lon, NEW.result_lon, NEW.request_lon),
		max(NEW.bbox_max_lon, NEW.result_lon, NEW.request_lon),
		min(NEW.bbox_min_lat, NEW.result_lat, NEW.request_lat),
		max(NEW.bbox_max_lat, NEW.result_lat, NEW.request_lat)
	);
END;
CREATE TRIGGER IF NOT EXISTS trg_rgl_envelope_delete AFTER DELETE ON reverse_geocoding_location
BEGIN
	DELETE FROM reverse_geocoding_envelope WHERE id = OLD.id;
END;
INSERT INTO reverse_geocoding_envelope (id, min_lon, max_lon, min_lat, max_lat)
SELECT l.id,
	min(l.bbox_min_lon, l.result_lon, l.request_lon),
	max(l.bbox_max_lon, l.result_lon, l.request_lon),
	min(l.bbox_min_lat, l.result_lat, l.request_lat),
	max(l.bbox_max_lat, l.result_lat, l.request_lat)
FROM reverse_geocoding_location l
WHERE NOT EXISTS (SELECT 1 FROM reverse_geocoding_envelope e WHERE e.id = l.id);
`

const locationColumns = `id, request_lon, request_lat, result_lon, result_lat, bbox_wkt,
	display_name, city, country, provider_name, created_at, last_accessed_at`

// Store is a domain.LocationStore and domain.AdminStore backed by SQLite.
type Store struct {
	db        *sql.DB
	logger    *slog.Logger
	metrics   *observability.Metrics
	chunkSize int

	mu      sync.Mutex
	closed  bool
	touches sync.WaitGroup
}

var (
	_ domain.LocationStore = (*Store)(nil)
	_ domain.AdminStore    = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithChunkSize overrides DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// New opens (creating if needed) the database at dbPath in WAL mode.
func New(dbPath string, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	for _, stmt := range []string{createLocationTable, createEnvelopeIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate cache db: %w", err)
		}
	}

	s := &Store{
		db:        db,
		logger:    logger,
		metrics:   metrics,
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=temp_store(MEMORY)"
}

// Insert appends loc and returns it with the assigned ID.
func (s *Store) Insert(ctx context.Context, loc domain.CachedLocation) (domain.CachedLocation, error) {
	start := time.Now()
	defer s.observe("insert", start)

	if len(loc.BoundingBox) == 0 {
		return domain.CachedLocation{}, errors.New("insert location: bounding box is required")
	}
	if loc.LastAccessedAt.Before(loc.CreatedAt) {
		loc.LastAccessedAt = loc.CreatedAt
	}
	b := loc.BoundingBox.Bound()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reverse_geocoding_location (
			request_lon, request_lat, result_lon, result_lat, bbox_wkt,
			bbox_min_lon, bbox_min_lat, bbox_max_lon, bbox_max_lat,
			display_name, city, country, provider_name, created_at, last_accessed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loc.RequestCoordinate.Lon, loc.RequestCoordinate.Lat,
		loc.ResultCoordinate.Lon, loc.ResultCoordinate.Lat,
		wkt.MarshalString(loc.BoundingBox),
		b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat(),
		loc.DisplayName, loc.City, loc.Country, loc.ProviderName,
		toUnix(loc.CreatedAt), toUnix(loc.LastAccessedAt),
	)
	if err != nil {
		return domain.CachedLocation{}, fmt.Errorf("insert location: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.CachedLocation{}, fmt.Errorf("insert location: %w", err)
	}
	loc.ID = id
	loc.CreatedAt = fromUnix(toUnix(loc.CreatedAt))
	loc.LastAccessedAt = fromUnix(toUnix(loc.LastAccessedAt))
	return loc, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CheckReadiness satisfies the HTTP readiness probe.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("cache db: %w", err)
	}
	return nil
}

// Close waits for pending access-time updates and releases the database.
// Hits after Close starts no longer update access times.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.touches.Wait()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(row rowScanner, extra ...any) (domain.CachedLocation, error) {
	var (
		loc                 domain.CachedLocation
		bbox                string
		created, lastAccess int64
	)
	dest := append(extra,
		&loc.ID,
		&loc.RequestCoordinate.Lon, &loc.RequestCoordinate.Lat,
		&loc.ResultCoordinate.Lon, &loc.ResultCoordinate.Lat,
		&bbox,
		&loc.DisplayName, &loc.City, &loc.Country, &loc.ProviderName,
		&created, &lastAccess,
	)
	if err := row.Scan(dest...); err != nil {
		return domain.CachedLocation{}, err
	}
	poly, err := wkt.UnmarshalPolygon(bbox)
	if err != nil {
		return domain.CachedLocation{}, fmt.Errorf("decode bounding box of location %d: %w", loc.ID, err)
	}
	loc.BoundingBox = poly
	loc.CreatedAt = fromUnix(created)
	loc.LastAccessedAt = fromUnix(lastAccess)
	return loc, nil
}

func scanLocations(rows *sql.Rows) ([]domain.CachedLocation, error) {
	defer rows.Close()
	var out []domain.CachedLocation
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

func (s *Store) observe(op string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.CacheQueryDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
