package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/riverwatch/telemetry-ingest/internal/domain"
)

// UpsertDaily reconciles one (river, date) observation row. Each role's
// columns are replaced only when that role's fetch completed this run: a
// completed fetch supersedes stored values even when it carries an explicit
// null with a reason, while an errored fetch leaves the prior columns alone.
func (s *Store) UpsertDaily(ctx context.Context, rec domain.DailyRecord, flowFetched, tempFetched bool) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO daily_observations (river_id, obs_date,
    flow_cfs, flow_site, flow_source, flow_reason, flow_observed_at,
    temp_f, temp_site, temp_source, temp_reason, temp_observed_at,
    gage_height_ft, param_codes, param_summary, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW())
ON CONFLICT (river_id, obs_date) DO UPDATE SET
    flow_cfs         = CASE WHEN $16 THEN EXCLUDED.flow_cfs         ELSE daily_observations.flow_cfs         END,
    flow_site        = CASE WHEN $16 THEN EXCLUDED.flow_site        ELSE daily_observations.flow_site        END,
    flow_source      = CASE WHEN $16 THEN EXCLUDED.flow_source      ELSE daily_observations.flow_source      END,
    flow_reason      = CASE WHEN $16 THEN EXCLUDED.flow_reason      ELSE daily_observations.flow_reason      END,
    flow_observed_at = CASE WHEN $16 THEN EXCLUDED.flow_observed_at ELSE daily_observations.flow_observed_at END,
    temp_f           = CASE WHEN $17 THEN EXCLUDED.temp_f           ELSE daily_observations.temp_f           END,
    temp_site        = CASE WHEN $17 THEN EXCLUDED.temp_site        ELSE daily_observations.temp_site        END,
    temp_source      = CASE WHEN $17 THEN EXCLUDED.temp_source      ELSE daily_observations.temp_source      END,
    temp_reason      = CASE WHEN $17 THEN EXCLUDED.temp_reason      ELSE daily_observations.temp_reason      END,
    temp_observed_at = CASE WHEN $17 THEN EXCLUDED.temp_observed_at ELSE daily_observations.temp_observed_at END,
    gage_height_ft   = CASE WHEN $16 THEN EXCLUDED.gage_height_ft   ELSE daily_observations.gage_height_ft   END,
    param_codes      = EXCLUDED.param_codes,
    param_summary    = EXCLUDED.param_summary,
    updated_at       = NOW()`,
		rec.RiverID, rec.ObsDate,
		rec.Flow.Value, nullStr(rec.Flow.SiteID), nullStr(rec.Flow.SourceKind), nullStr(rec.Flow.Reason), roleObservedAt(rec.Flow),
		rec.Temperature.Value, nullStr(rec.Temperature.SiteID), nullStr(rec.Temperature.SourceKind), nullStr(rec.Temperature.Reason), roleObservedAt(rec.Temperature),
		rec.GageHeight, rec.ParamCodes, rec.Summary,
		flowFetched, tempFetched)
	if err != nil {
		return fmt.Errorf("upsert daily observation: %w", err)
	}
	return nil
}

// UpsertHourly writes the merged intraday points for one river in a single
// batch round trip.
func (s *Store) UpsertHourly(ctx context.Context, riverID int64, points []domain.HourlyPoint) error {
	if len(points) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`
INSERT INTO hourly_observations (river_id, observed_at, flow_cfs, temp_f, gage_height_ft)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (river_id, observed_at) DO UPDATE
SET flow_cfs = COALESCE(EXCLUDED.flow_cfs, hourly_observations.flow_cfs),
    temp_f = COALESCE(EXCLUDED.temp_f, hourly_observations.temp_f),
    gage_height_ft = COALESCE(EXCLUDED.gage_height_ft, hourly_observations.gage_height_ft)`,
			riverID, p.ObservedAt, p.FlowCFS, p.TempF, p.GageHeight)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range points {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert hourly points: %w", err)
		}
	}
	return nil
}

// UpsertWeather writes the enrichment row for one (river, date).
func (s *Store) UpsertWeather(ctx context.Context, rec domain.WeatherRecord) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO daily_weather (river_id, obs_date,
    wind_avg_am_mph, wind_avg_pm_mph, temp_max_f, temp_min_f,
    precip_sum_mm, wind_gust_max_mph, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
ON CONFLICT (river_id, obs_date) DO UPDATE SET
    wind_avg_am_mph   = EXCLUDED.wind_avg_am_mph,
    wind_avg_pm_mph   = EXCLUDED.wind_avg_pm_mph,
    temp_max_f        = EXCLUDED.temp_max_f,
    temp_min_f        = EXCLUDED.temp_min_f,
    precip_sum_mm     = EXCLUDED.precip_sum_mm,
    wind_gust_max_mph = EXCLUDED.wind_gust_max_mph,
    updated_at        = NOW()`,
		rec.RiverID, rec.ObsDate,
		rec.WindAvgAM, rec.WindAvgPM, rec.TempMaxF, rec.TempMinF,
		rec.PrecipSumMM, rec.WindGustMax)
	if err != nil {
		return fmt.Errorf("upsert weather record: %w", err)
	}
	return nil
}

// RefreshMetrics invokes the database-side rollup refresh.
func (s *Store) RefreshMetrics(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `SELECT refresh_river_metrics()`); err != nil {
		return fmt.Errorf("refresh_river_metrics: %w", err)
	}
	return nil
}

// ComputeDailyScores invokes the database-side score recompute for one date.
func (s *Store) ComputeDailyScores(ctx context.Context, obsDate time.Time) error {
	if _, err := s.pool.Exec(ctx, `SELECT compute_daily_scores($1)`, obsDate); err != nil {
		return fmt.Errorf("compute_daily_scores: %w", err)
	}
	return nil
}

func nullStr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func roleObservedAt(r domain.RoleResult) *time.Time {
	if r.Value == nil || r.ObservedAt.IsZero() {
		return nil
	}
	t := r.ObservedAt
	return &t
}
