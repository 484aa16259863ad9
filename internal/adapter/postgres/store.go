// Package postgres implements the persistence contract over pgx.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riverwatch/telemetry-ingest/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a pgx pool with the row operations and remote procedures the
// pipelines use. All writes are idempotent upserts on natural keys, so
// retried or concurrent runs converge instead of duplicating rows.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects a Store to the given database URL.
func New(ctx context.Context, databaseURL string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// NewWithPool wraps an existing pool, for tests.
func NewWithPool(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{pool: pool, logger: logger}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity, used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema applies the embedded schema. Production databases are
// migrated externally; this exists for integration tests.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

// ActiveRivers returns all rivers flagged active, read-only to the pipeline.
func (s *Store) ActiveRivers(ctx context.Context) ([]domain.River, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, slug, name, lat, lon, timezone, COALESCE(default_site_id, ''), active
FROM rivers
WHERE active`)
	if err != nil {
		return nil, fmt.Errorf("select rivers: %w", err)
	}
	defer rows.Close()

	var rivers []domain.River
	for rows.Next() {
		var r domain.River
		if err := rows.Scan(&r.ID, &r.Slug, &r.Name, &r.Lat, &r.Lon, &r.Timezone, &r.DefaultSiteID, &r.Active); err != nil {
			return nil, err
		}
		rivers = append(rivers, r)
	}
	return rivers, rows.Err()
}

// StationMappings returns every active role mapping, loaded once per run.
func (s *Store) StationMappings(ctx context.Context) ([]domain.StationMapping, error) {
	rows, err := s.pool.Query(ctx, `
SELECT river_id, role, site_id, priority, active
FROM station_role_mappings
WHERE active
ORDER BY river_id, role, priority`)
	if err != nil {
		return nil, fmt.Errorf("select station mappings: %w", err)
	}
	defer rows.Close()

	var mappings []domain.StationMapping
	for rows.Next() {
		var m domain.StationMapping
		var role string
		if err := rows.Scan(&m.RiverID, &role, &m.SiteID, &m.Priority, &m.Active); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// LegacyOverrides returns the single-station override per river, kept for
// rivers configured before ranked role mappings existed.
func (s *Store) LegacyOverrides(ctx context.Context) (map[int64]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT river_id, site_id FROM river_site_overrides`)
	if err != nil {
		return nil, fmt.Errorf("select legacy overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[int64]string)
	for rows.Next() {
		var riverID int64
		var siteID string
		if err := rows.Scan(&riverID, &siteID); err != nil {
			return nil, err
		}
		overrides[riverID] = siteID
	}
	return overrides, rows.Err()
}

// StationCapabilities returns the probed capability registry.
func (s *Store) StationCapabilities(ctx context.Context) ([]domain.StationCapability, error) {
	rows, err := s.pool.Query(ctx, `
SELECT site_id, has_flow, has_temperature
FROM station_capabilities`)
	if err != nil {
		return nil, fmt.Errorf("select station capabilities: %w", err)
	}
	defer rows.Close()

	var caps []domain.StationCapability
	for rows.Next() {
		var c domain.StationCapability
		if err := rows.Scan(&c.SiteID, &c.HasFlow, &c.HasTemperature); err != nil {
			return nil, err
		}
		caps = append(caps, c)
	}
	return caps, rows.Err()
}

// UpsertStationCapability records a probe result, used by registry sync.
func (s *Store) UpsertStationCapability(ctx context.Context, c domain.StationCapability) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO station_capabilities (site_id, has_flow, has_temperature, probed_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (site_id) DO UPDATE
SET has_flow = EXCLUDED.has_flow,
    has_temperature = EXCLUDED.has_temperature,
    probed_at = NOW()`,
		c.SiteID, c.HasFlow, c.HasTemperature)
	if err != nil {
		return fmt.Errorf("upsert station capability: %w", err)
	}
	return nil
}

// MappedSiteIDs returns every distinct site referenced by a mapping, an
// override, or a river default. Registry sync probes exactly this set.
func (s *Store) MappedSiteIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT site_id FROM (
    SELECT site_id FROM station_role_mappings WHERE active
    UNION SELECT site_id FROM river_site_overrides
    UNION SELECT default_site_id FROM rivers WHERE default_site_id IS NOT NULL AND default_site_id <> ''
) sites
ORDER BY site_id`)
	if err != nil {
		return nil, fmt.Errorf("select mapped sites: %w", err)
	}
	defer rows.Close()

	var sites []string
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// CreateRun opens a ledger entry in the running state. This happens before
// any river is touched so a crash still leaves an audit trail.
func (s *Store) CreateRun(ctx context.Context, kind, cadence string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
INSERT INTO ingest_runs (kind, cadence, status, started_at)
VALUES ($1, $2, $3, NOW())
RETURNING id`,
		kind, cadence, domain.RunRunning).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// CloseRun records a run's terminal status and counts.
func (s *Store) CloseRun(ctx context.Context, runID int64, status domain.RunStatus, ok, failed int, note string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE ingest_runs
SET status = $2, rivers_ok = $3, rivers_failed = $4, note = $5, finished_at = NOW()
WHERE id = $1`,
		runID, status, ok, failed, note)
	if err != nil {
		return fmt.Errorf("close run: %w", err)
	}
	return nil
}

// InsertSiteLog appends one river-attempt record to a run.
func (s *Store) InsertSiteLog(ctx context.Context, e domain.SiteLogEntry) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO site_logs (run_id, river_id, status, http_status,
    flow_site, flow_value, flow_source, flow_reason,
    temp_site, temp_value, temp_source, temp_reason,
    error, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,NOW())`,
		e.RunID, e.RiverID, e.Status, e.HTTPStatus,
		e.FlowSite, e.FlowValue, e.FlowSource, e.FlowReason,
		e.TempSite, e.TempValue, e.TempSource, e.TempReason,
		e.Error)
	if err != nil {
		return fmt.Errorf("insert site log: %w", err)
	}
	return nil
}

// RecentRuns returns the newest ledger entries, for the audit tool. Entries
// still in running state with an old started_at are orphans from truncated
// runs; surfacing them is the point.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]domain.RunLedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, kind, COALESCE(cadence, ''), status, started_at, finished_at,
       rivers_ok, rivers_failed, COALESCE(note, '')
FROM ingest_runs
ORDER BY started_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunLedgerEntry
	for rows.Next() {
		var r domain.RunLedgerEntry
		var status string
		var finished *time.Time
		if err := rows.Scan(&r.ID, &r.Kind, &r.Cadence, &status, &r.StartedAt, &finished,
			&r.RiversOK, &r.RiversFailed, &r.Note); err != nil {
			return nil, err
		}
		r.Status = domain.RunStatus(status)
		r.FinishedAt = finished
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// SiteLogs returns the per-river attempts for one run, in insertion order.
func (s *Store) SiteLogs(ctx context.Context, runID int64) ([]domain.SiteLogEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT run_id, river_id, status, http_status,
       COALESCE(flow_site, ''), flow_value, COALESCE(flow_source, ''), COALESCE(flow_reason, ''),
       COALESCE(temp_site, ''), temp_value, COALESCE(temp_source, ''), COALESCE(temp_reason, ''),
       COALESCE(error, '')
FROM site_logs
WHERE run_id = $1
ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("select site logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.SiteLogEntry
	for rows.Next() {
		var e domain.SiteLogEntry
		if err := rows.Scan(&e.RunID, &e.RiverID, &e.Status, &e.HTTPStatus,
			&e.FlowSite, &e.FlowValue, &e.FlowSource, &e.FlowReason,
			&e.TempSite, &e.TempValue, &e.TempSource, &e.TempReason,
			&e.Error); err != nil {
			return nil, err
		}
		logs = append(logs, e)
	}
	return logs, rows.Err()
}
