package domain

import "time"

// Source kinds recorded on persisted observations. The registry variants
// mark values obtained from the capability-registry fallback pool rather
// than an explicit role mapping.
const (
	SourceLive            = "live"
	SourceDelayed         = "delayed"
	SourceRegistryLive    = "registry_live"
	SourceRegistryDelayed = "registry_delayed"

	// StaleSuffix is appended to a source kind when the accepted value
	// missed every freshness window but was persisted anyway.
	StaleSuffix = "_stale"
)

// Unavailability reason codes. Three distinct shapes per role: a config gap
// (nothing mapped), a capability gap (mapped sites lack the parameter), and
// a sensor outage (parameter exists but no fresh, valid reading). Collapsing
// these loses the signal operators need to tell a config problem from a
// hardware one.
func ReasonNoSiteMapping(role Role) string {
	return "no_" + role.Abbrev() + "_site_mapping"
}

func ReasonSitesMissingParameter(role Role) string {
	return role.Abbrev() + "_sites_missing_parameter"
}

func ReasonStaleOrMissing(role Role) string {
	return role.Abbrev() + "_observation_stale_or_missing"
}

// RoleResult is the outcome of one role's source cascade for one river.
// Value may be non-nil with a non-empty Reason: that is the stale-but-present
// case, persisted so scoring can weigh it against absence.
type RoleResult struct {
	Value      *float64
	SiteID     string
	SourceKind string
	ObservedAt time.Time
	Reason     string // empty when the value is fresh
}

// Fresh reports whether the result carries a value accepted inside its
// freshness window.
func (r RoleResult) Fresh() bool {
	return r.Value != nil && r.Reason == ""
}

// DailyRecord is the reconciled observation row for one (river, date).
// Exactly one row exists per key, maintained by upsert.
type DailyRecord struct {
	RiverID     int64
	ObsDate     time.Time // civil date in the river's zone, stored as DATE
	Flow        RoleResult
	Temperature RoleResult
	GageHeight  *float64
	ParamCodes  []string // codes seen in provider payloads, for audit
	Summary     []byte   // raw per-parameter summary blob, for audit
}

// WeatherHour is one hourly weather reading in the river's local zone.
type WeatherHour struct {
	Time     time.Time
	WindMPH  float64
	HasWind  bool
	PrecipMM float64
}

// WeatherFetch is the typed result of one forecast-provider call.
type WeatherFetch struct {
	Hourly      []WeatherHour
	TempMaxF    *float64
	TempMinF    *float64
	PrecipSumMM *float64
	WindGustMax *float64
}

// WeatherRecord is the enrichment row for one (river, date).
type WeatherRecord struct {
	RiverID     int64
	ObsDate     time.Time
	WindAvgAM   *float64 // mean wind mph over local hours 06-11
	WindAvgPM   *float64 // mean wind mph over local hours 12-18
	TempMaxF    *float64
	TempMinF    *float64
	PrecipSumMM *float64
	WindGustMax *float64
}

// RunStatus is the terminal state machine for a ledger entry:
// running -> success | partial | failed.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// FinalStatus derives the terminal status from per-river outcome counts:
// failed iff zero rivers succeeded, success iff zero failed, else partial.
func FinalStatus(ok, failed int) RunStatus {
	switch {
	case ok == 0 && failed > 0:
		return RunFailed
	case failed == 0:
		return RunSuccess
	default:
		return RunPartial
	}
}

// RunLedgerEntry records one ingestion run for observability and idempotent
// reruns. A row stuck in running marks a truncated run; consumers treat it
// as orphaned rather than this pipeline self-healing it.
type RunLedgerEntry struct {
	ID           int64
	Kind         string // "observations" or "weather"
	Cadence      string // trigger header, stored verbatim
	Status       RunStatus
	StartedAt    time.Time
	FinishedAt   *time.Time
	RiversOK     int
	RiversFailed int
	Note         string // e.g. downstream RPC failures, never flips counts
}

// SiteLogEntry records one river attempt within a run.
type SiteLogEntry struct {
	RunID      int64
	RiverID    int64
	Status     string // "ok" or "failed"
	HTTPStatus int    // last provider status observed, 0 if none
	FlowSite   string
	FlowValue  *float64
	FlowSource string
	FlowReason string
	TempSite   string
	TempValue  *float64
	TempSource string
	TempReason string
	Error      string
}
