package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/riverwatch/telemetry-ingest/internal/domain"
	"github.com/riverwatch/telemetry-ingest/internal/observability"
)

// ForecastFetcher retrieves weather for one coordinate on one local date.
type ForecastFetcher interface {
	Forecast(ctx context.Context, lat, lon float64, tz string, date time.Time) (domain.WeatherFetch, error)
}

// WeatherRunner enriches each river with daily weather: AM/PM wind
// averages, temperature extremes, and precipitation. Same shape as the
// observation runner: per-river failures are collected and the run keeps
// going.
type WeatherRunner struct {
	store     Store
	forecast  ForecastFetcher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	defaultTZ string
}

// NewWeatherRunner creates the weather-enrichment orchestrator.
func NewWeatherRunner(store Store, forecast ForecastFetcher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, defaultTZ string) *WeatherRunner {
	return &WeatherRunner{
		store:     store,
		forecast:  forecast,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		defaultTZ: defaultTZ,
	}
}

// Run executes one weather enrichment run.
func (r *WeatherRunner) Run(ctx context.Context, cadence string) (Summary, error) {
	start := r.clock.Now()

	runID, err := r.store.CreateRun(ctx, "weather", cadence)
	if err != nil {
		return Summary{}, fmt.Errorf("create run ledger entry: %w", err)
	}

	obsDate, err := domain.LocalObservationDate(r.clock, r.defaultTZ)
	if err != nil {
		r.closeRun(ctx, runID, domain.RunFailed, 0, 0, err.Error())
		return Summary{}, err
	}

	rivers, err := r.store.ActiveRivers(ctx)
	if err != nil {
		r.closeRun(ctx, runID, domain.RunFailed, 0, 0, err.Error())
		return Summary{}, fmt.Errorf("load rivers: %w", err)
	}
	sort.Slice(rivers, func(i, j int) bool { return rivers[i].ID < rivers[j].ID })

	var ok, failed int
	var riverErrs []string
	for _, river := range rivers {
		if river.Lat == 0 && river.Lon == 0 {
			// No coordinates on file; nothing to enrich.
			continue
		}
		if err := r.processRiver(ctx, runID, river); err != nil {
			failed++
			riverErrs = append(riverErrs, fmt.Sprintf("%s: %v", river.Slug, err))
			r.logger.Error("weather enrichment failed", "run_id", runID, "river", river.Slug, "error", err)
			continue
		}
		ok++
	}

	var note string
	if err := r.store.ComputeDailyScores(ctx, obsDate); err != nil {
		r.logger.Error("score recompute rpc failed", "error", err)
		note = "compute_daily_scores: " + err.Error()
	}

	status := domain.FinalStatus(ok, failed)
	r.closeRun(ctx, runID, status, ok, failed, note)

	if r.metrics != nil {
		r.metrics.RunsTotal.WithLabelValues("weather", string(status)).Inc()
		r.metrics.RunDuration.Observe(r.clock.Now().Sub(start).Seconds())
	}

	return Summary{
		RunID:   runID,
		ObsDate: obsDate.Format("2006-01-02"),
		Status:  status,
		Rivers:  ok + failed,
		OK:      ok,
		Failed:  failed,
		Errors:  firstN(riverErrs, maxSummaryErrors),
	}, nil
}

func (r *WeatherRunner) processRiver(ctx context.Context, runID int64, river domain.River) error {
	tz := river.Timezone
	if tz == "" {
		tz = r.defaultTZ
	}
	date, err := domain.LocalObservationDate(r.clock, tz)
	if err != nil {
		return err
	}

	fetch, err := r.forecast.Forecast(ctx, river.Lat, river.Lon, tz, date)
	if err != nil {
		r.writeSiteLog(ctx, domain.SiteLogEntry{
			RunID: runID, RiverID: river.ID, Status: "failed",
			HTTPStatus: httpStatusOf(err), Error: err.Error(),
		})
		return err
	}

	am, pm := domain.WindAverages(fetch.Hourly, date)
	rec := domain.WeatherRecord{
		RiverID:     river.ID,
		ObsDate:     date,
		WindAvgAM:   am,
		WindAvgPM:   pm,
		TempMaxF:    fetch.TempMaxF,
		TempMinF:    fetch.TempMinF,
		PrecipSumMM: fetch.PrecipSumMM,
		WindGustMax: fetch.WindGustMax,
	}
	if err := r.store.UpsertWeather(ctx, rec); err != nil {
		return fmt.Errorf("upsert weather record: %w", err)
	}

	r.writeSiteLog(ctx, domain.SiteLogEntry{RunID: runID, RiverID: river.ID, Status: "ok"})
	return nil
}

func (r *WeatherRunner) closeRun(ctx context.Context, runID int64, status domain.RunStatus, ok, failed int, note string) {
	if err := r.store.CloseRun(ctx, runID, status, ok, failed, note); err != nil {
		r.logger.Error("close run ledger entry failed", "run_id", runID, "error", err)
	}
}

func (r *WeatherRunner) writeSiteLog(ctx context.Context, entry domain.SiteLogEntry) {
	if err := r.store.InsertSiteLog(ctx, entry); err != nil {
		r.logger.Error("insert site log failed", "run_id", entry.RunID, "river_id", entry.RiverID, "error", err)
	}
}
