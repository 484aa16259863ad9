package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/riverwatch/telemetry-ingest/internal/domain"
	"github.com/riverwatch/telemetry-ingest/internal/observability"
)

// maxSummaryErrors bounds the per-river error messages echoed in the run
// summary response; the full set lives in the site logs.
const maxSummaryErrors = 5

// defaultHourlyCap bounds the intraday points kept per river per fetch.
const defaultHourlyCap = 72

// Store is the persistence contract the pipelines depend on. Implemented
// by the postgres adapter; faked in tests.
type Store interface {
	ActiveRivers(ctx context.Context) ([]domain.River, error)
	StationMappings(ctx context.Context) ([]domain.StationMapping, error)
	LegacyOverrides(ctx context.Context) (map[int64]string, error)
	StationCapabilities(ctx context.Context) ([]domain.StationCapability, error)

	CreateRun(ctx context.Context, kind, cadence string) (int64, error)
	CloseRun(ctx context.Context, runID int64, status domain.RunStatus, ok, failed int, note string) error
	InsertSiteLog(ctx context.Context, entry domain.SiteLogEntry) error

	// UpsertDaily writes one (river, date) record. A role whose fetch did
	// not complete (flowFetched / tempFetched false) keeps its previously
	// stored columns; a completed fetch supersedes them even when its
	// value is an explicit null-with-reason.
	UpsertDaily(ctx context.Context, rec domain.DailyRecord, flowFetched, tempFetched bool) error
	UpsertHourly(ctx context.Context, riverID int64, points []domain.HourlyPoint) error
	UpsertWeather(ctx context.Context, rec domain.WeatherRecord) error

	RefreshMetrics(ctx context.Context) error
	ComputeDailyScores(ctx context.Context, obsDate time.Time) error
}

// Summary is the JSON response body for a completed run.
type Summary struct {
	RunID   int64            `json:"run_id"`
	ObsDate string           `json:"obs_date"`
	Status  domain.RunStatus `json:"status"`
	Rivers  int              `json:"rivers"`
	OK      int              `json:"ok"`
	Failed  int              `json:"failed"`
	Errors  []string         `json:"errors,omitempty"`
}

// Runner ingests observations for every active river in one pass. Rivers
// are independent: one river's total failure is recorded and skipped, never
// allowed to abort the run.
type Runner struct {
	store     Store
	cascade   *Cascade
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	defaultTZ string
	hourlyCap int
}

// NewRunner creates the observation-run orchestrator.
func NewRunner(store Store, cascade *Cascade, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, defaultTZ string) *Runner {
	return &Runner{
		store:     store,
		cascade:   cascade,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		defaultTZ: defaultTZ,
		hourlyCap: defaultHourlyCap,
	}
}

// Run executes one observation ingestion run. The cadence label from the
// trigger is stored verbatim on the ledger entry. An error return means the
// run could not even start or load its inputs; per-river failures are
// reported through the summary instead.
func (r *Runner) Run(ctx context.Context, cadence string) (Summary, error) {
	start := r.clock.Now()
	if r.metrics != nil {
		r.metrics.IngestRunning.Set(1)
		defer r.metrics.IngestRunning.Set(0)
	}

	runID, err := r.store.CreateRun(ctx, "observations", cadence)
	if err != nil {
		return Summary{}, fmt.Errorf("create run ledger entry: %w", err)
	}

	obsDate, err := domain.LocalObservationDate(r.clock, r.defaultTZ)
	if err != nil {
		r.closeRun(ctx, runID, domain.RunFailed, 0, 0, err.Error())
		return Summary{}, err
	}

	rivers, mappings, overrides, caps, err := r.loadInputs(ctx)
	if err != nil {
		// Run-fatal: no per-river processing was attempted.
		r.closeRun(ctx, runID, domain.RunFailed, 0, 0, err.Error())
		return Summary{}, err
	}

	sort.Slice(rivers, func(i, j int) bool { return rivers[i].ID < rivers[j].ID })

	var ok, failed int
	var riverErrs []string
	for _, river := range rivers {
		if err := r.processRiver(ctx, runID, river, mappings, overrides, caps); err != nil {
			failed++
			riverErrs = append(riverErrs, fmt.Sprintf("%s: %v", river.Slug, err))
			r.countRiver("failed")
			r.logger.Error("river ingestion failed", "run_id", runID, "river", river.Slug, "error", err)
			continue
		}
		ok++
		r.countRiver("ok")
	}

	note := r.invokeDownstream(ctx, obsDate)

	status := domain.FinalStatus(ok, failed)
	r.closeRun(ctx, runID, status, ok, failed, note)

	if r.metrics != nil {
		r.metrics.RunsTotal.WithLabelValues("observations", string(status)).Inc()
		r.metrics.RunDuration.Observe(r.clock.Now().Sub(start).Seconds())
	}
	r.logger.Info("observation run finished",
		"run_id", runID, "status", status, "ok", ok, "failed", failed,
		"duration", r.clock.Now().Sub(start))

	return Summary{
		RunID:   runID,
		ObsDate: obsDate.Format("2006-01-02"),
		Status:  status,
		Rivers:  len(rivers),
		OK:      ok,
		Failed:  failed,
		Errors:  firstN(riverErrs, maxSummaryErrors),
	}, nil
}

// loadInputs reads the river list and every mapping table once per run, so
// request volume is bounded by rivers, not rivers x tables.
func (r *Runner) loadInputs(ctx context.Context) ([]domain.River, []domain.StationMapping, map[int64]string, []domain.StationCapability, error) {
	rivers, err := r.store.ActiveRivers(ctx)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load rivers: %w", err)
	}
	mappings, err := r.store.StationMappings(ctx)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load station mappings: %w", err)
	}
	overrides, err := r.store.LegacyOverrides(ctx)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load legacy overrides: %w", err)
	}
	caps, err := r.store.StationCapabilities(ctx)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load station capabilities: %w", err)
	}
	return rivers, mappings, overrides, caps, nil
}

// processRiver resolves candidates and runs the flow and temperature
// cascades independently, then persists whatever completed. The returned
// error marks the river failed; data from the surviving role is still
// written first.
func (r *Runner) processRiver(ctx context.Context, runID int64, river domain.River, mappings []domain.StationMapping, overrides map[int64]string, caps []domain.StationCapability) error {
	tz := river.Timezone
	if tz == "" {
		tz = r.defaultTZ
	}
	obsDate, err := domain.LocalObservationDate(r.clock, tz)
	if err != nil {
		r.writeSiteLog(ctx, domain.SiteLogEntry{
			RunID: runID, RiverID: river.ID, Status: "failed", Error: err.Error(),
		})
		return err
	}

	flowCands := domain.ResolveCandidates(river, domain.RoleFlow, mappings, overrides[river.ID])
	flowPool := domain.RegistryPool(domain.RoleFlow, caps, flowCands)
	flowRes, flowSeries, flowErr := r.cascade.FetchRole(ctx, domain.RoleFlow, flowCands, flowPool)

	tempCands := domain.ResolveCandidates(river, domain.RoleTemperature, mappings, overrides[river.ID])
	tempPool := domain.RegistryPool(domain.RoleTemperature, caps, tempCands)
	tempRes, tempSeries, tempErr := r.cascade.FetchRole(ctx, domain.RoleTemperature, tempCands, tempPool)

	entry := domain.SiteLogEntry{
		RunID:      runID,
		RiverID:    river.ID,
		Status:     "ok",
		FlowSite:   flowRes.SiteID,
		FlowValue:  flowRes.Value,
		FlowSource: flowRes.SourceKind,
		FlowReason: flowRes.Reason,
		TempSite:   tempRes.SiteID,
		TempValue:  tempRes.Value,
		TempSource: tempRes.SourceKind,
		TempReason: tempRes.Reason,
	}

	if flowErr == nil || tempErr == nil {
		rec := domain.DailyRecord{
			RiverID:     river.ID,
			ObsDate:     obsDate,
			Flow:        flowRes,
			Temperature: tempRes,
			GageHeight:  latestGage(flowSeries),
			ParamCodes:  unionCodes(flowSeries, tempSeries),
			Summary:     summarizeSeries(flowSeries, tempSeries),
		}
		if err := r.store.UpsertDaily(ctx, rec, flowErr == nil, tempErr == nil); err != nil {
			entry.Status = "failed"
			entry.Error = err.Error()
			r.writeSiteLog(ctx, entry)
			return fmt.Errorf("upsert daily record: %w", err)
		}

		if points := domain.MergeHourly(flowSeries, tempSeries, r.hourlyCap); len(points) > 0 {
			if err := r.store.UpsertHourly(ctx, river.ID, points); err != nil {
				// Hourly points are display-only; log and keep the river.
				r.logger.Warn("upsert hourly points failed", "river", river.Slug, "error", err)
			}
		}
	}

	if fetchErr := errors.Join(flowErr, tempErr); fetchErr != nil {
		entry.Status = "failed"
		entry.Error = fetchErr.Error()
		entry.HTTPStatus = httpStatusOf(fetchErr)
		r.writeSiteLog(ctx, entry)
		return fetchErr
	}

	r.writeSiteLog(ctx, entry)
	return nil
}

// invokeDownstream fires the metrics-refresh and score-recompute procedures
// once per run. Their failures are noted on the ledger but never flip
// already-ingested rivers to failed; ingestion and scoring are tracked as
// separate concerns.
func (r *Runner) invokeDownstream(ctx context.Context, obsDate time.Time) string {
	var notes []string
	if err := r.store.RefreshMetrics(ctx); err != nil {
		r.logger.Error("metrics refresh rpc failed", "error", err)
		notes = append(notes, "refresh_metrics: "+err.Error())
	}
	if err := r.store.ComputeDailyScores(ctx, obsDate); err != nil {
		r.logger.Error("score recompute rpc failed", "error", err)
		notes = append(notes, "compute_daily_scores: "+err.Error())
	}
	return strings.Join(notes, "; ")
}

func (r *Runner) closeRun(ctx context.Context, runID int64, status domain.RunStatus, ok, failed int, note string) {
	if err := r.store.CloseRun(ctx, runID, status, ok, failed, note); err != nil {
		r.logger.Error("close run ledger entry failed", "run_id", runID, "error", err)
	}
}

func (r *Runner) writeSiteLog(ctx context.Context, entry domain.SiteLogEntry) {
	if err := r.store.InsertSiteLog(ctx, entry); err != nil {
		r.logger.Error("insert site log failed", "run_id", entry.RunID, "river_id", entry.RiverID, "error", err)
	}
}

func (r *Runner) countRiver(outcome string) {
	if r.metrics != nil {
		r.metrics.RiversProcessed.WithLabelValues(outcome).Inc()
	}
}

func latestGage(series domain.ParsedSeries) *float64 {
	if gage, ok := series.Param(domain.ParamGageHeight); ok {
		return gage.Latest
	}
	return nil
}

func unionCodes(series ...domain.ParsedSeries) []string {
	seen := make(map[string]bool)
	var codes []string
	for _, s := range series {
		for _, code := range s.Codes() {
			if !seen[code] {
				seen[code] = true
				codes = append(codes, code)
			}
		}
	}
	sort.Strings(codes)
	return codes
}

// paramSummary is the audit blob stored alongside each daily record.
type paramSummary struct {
	SiteID     string     `json:"site_id"`
	Latest     *float64   `json:"latest"`
	ObservedAt *time.Time `json:"observed_at,omitempty"`
	Qualifiers []string   `json:"qualifiers,omitempty"`
	Points     int        `json:"points"`
}

func summarizeSeries(series ...domain.ParsedSeries) []byte {
	summary := make(map[string]paramSummary)
	for _, s := range series {
		for code, p := range s.Params {
			ps := paramSummary{
				SiteID:     s.SiteID,
				Latest:     p.Latest,
				Qualifiers: p.Qualifiers,
				Points:     len(p.Points),
			}
			if p.Latest != nil {
				t := p.ObservedAt
				ps.ObservedAt = &t
			}
			summary[code] = ps
		}
	}
	if len(summary) == 0 {
		return nil
	}
	blob, err := json.Marshal(summary)
	if err != nil {
		return nil
	}
	return blob
}

// httpStatusOf pulls a provider HTTP status out of a wrapped error chain.
func httpStatusOf(err error) int {
	var coder interface{ HTTPStatus() int }
	if errors.As(err, &coder) {
		return coder.HTTPStatus()
	}
	return 0
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
