package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/riverwatch/telemetry-ingest/internal/domain"
	"github.com/riverwatch/telemetry-ingest/internal/observability"
)

// SiteFetcher retrieves one site's parsed time series from a feed.
type SiteFetcher interface {
	FetchSite(ctx context.Context, siteID string, feed domain.Feed, params []string) (domain.ParsedSeries, error)
}

// Cascade evaluates a role's candidate stations as an ordered list of
// (site, feed, freshness window) attempts. The first fresh hit wins and
// stops the cascade; later candidates are never queried. When nothing is
// fresh, the first stale value seen is returned flagged rather than
// discarded, and when nothing has a value at all the trace collapses into
// one of three unavailability reasons.
type Cascade struct {
	fetcher       SiteFetcher
	clock         clockwork.Clock
	logger        *slog.Logger
	metrics       *observability.Metrics
	liveWindow    time.Duration
	delayedWindow time.Duration
}

// NewCascade creates a Cascade with the given freshness windows.
func NewCascade(fetcher SiteFetcher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, liveWindow, delayedWindow time.Duration) *Cascade {
	return &Cascade{
		fetcher:       fetcher,
		clock:         clock,
		logger:        logger,
		metrics:       metrics,
		liveWindow:    liveWindow,
		delayedWindow: delayedWindow,
	}
}

// attempt is one step of the cascade.
type attempt struct {
	siteID   string
	feed     domain.Feed
	window   time.Duration
	registry bool // candidate came from the capability-registry pool
}

type attemptOutcome string

const (
	outcomeFresh   attemptOutcome = "fresh"
	outcomeStale   attemptOutcome = "stale"
	outcomeNoParam attemptOutcome = "no_param" // site does not expose the parameter
	outcomeNoValue attemptOutcome = "no_value" // parameter present, no valid reading
	outcomeError   attemptOutcome = "error"
)

// attemptResult records why each step of the cascade did or did not yield a
// value. The unavailability reason is a pure function of this trace.
type attemptResult struct {
	attempt
	outcome attemptOutcome
	err     error
}

// roleParams returns the parameter codes requested for a role. Flow fetches
// gage height alongside discharge since both live on the flow station.
func roleParams(role domain.Role) []string {
	switch role {
	case domain.RoleFlow:
		return []string{domain.ParamFlow, domain.ParamGageHeight}
	case domain.RoleTemperature:
		return []string{domain.ParamTemperature}
	case domain.RoleStage:
		return []string{domain.ParamGageHeight}
	default:
		return nil
	}
}

// primaryParam is the code whose value the role resolves to.
func primaryParam(role domain.Role) string {
	switch role {
	case domain.RoleFlow:
		return domain.ParamFlow
	case domain.RoleTemperature:
		return domain.ParamTemperature
	case domain.RoleStage:
		return domain.ParamGageHeight
	default:
		return ""
	}
}

// staleHit remembers the best (first, highest-priority) stale value seen.
type staleHit struct {
	result domain.RoleResult
	series domain.ParsedSeries
}

// FetchRole runs the cascade for one river role. mapped is the resolved
// candidate list, registry the last-resort pool. The returned ParsedSeries
// belongs to the accepted site and feeds the hourly trend records.
//
// An error return means every attempt failed with a transport or decode
// error, the per-river fatal case. Absence of data is not an error; it
// comes back as a RoleResult with a nil value and a reason code.
func (c *Cascade) FetchRole(ctx context.Context, role domain.Role, mapped, registry []string) (domain.RoleResult, domain.ParsedSeries, error) {
	attempts := buildAttempts(mapped, registry, c.liveWindow, c.delayedWindow)
	params := roleParams(role)
	primary := primaryParam(role)

	var (
		trace []attemptResult
		stale *staleHit
	)

	for _, att := range attempts {
		if err := ctx.Err(); err != nil {
			return domain.RoleResult{}, domain.ParsedSeries{}, err
		}

		series, err := c.fetcher.FetchSite(ctx, att.siteID, att.feed, params)
		if err != nil {
			c.observe(att, outcomeError)
			c.logger.Warn("cascade fetch failed",
				"role", role, "site", att.siteID, "feed", att.feed, "error", err)
			trace = append(trace, attemptResult{attempt: att, outcome: outcomeError, err: err})
			continue
		}

		param, present := series.Param(primary)
		switch {
		case !present:
			c.observe(att, outcomeNoParam)
			trace = append(trace, attemptResult{attempt: att, outcome: outcomeNoParam})
			continue
		case param.Latest == nil:
			c.observe(att, outcomeNoValue)
			trace = append(trace, attemptResult{attempt: att, outcome: outcomeNoValue})
			continue
		}

		age := c.clock.Now().Sub(param.ObservedAt)
		if age <= att.window {
			c.observe(att, outcomeFresh)
			if att.registry && c.metrics != nil {
				c.metrics.RegistryFallbacks.Inc()
			}
			return domain.RoleResult{
				Value:      param.Latest,
				SiteID:     att.siteID,
				SourceKind: sourceKind(att),
				ObservedAt: param.ObservedAt,
			}, series, nil
		}

		c.observe(att, outcomeStale)
		trace = append(trace, attemptResult{attempt: att, outcome: outcomeStale})
		if stale == nil {
			stale = &staleHit{
				result: domain.RoleResult{
					Value:      param.Latest,
					SiteID:     att.siteID,
					SourceKind: sourceKind(att) + domain.StaleSuffix,
					ObservedAt: param.ObservedAt,
					Reason:     domain.ReasonStaleOrMissing(role),
				},
				series: series,
			}
		}
	}

	if stale != nil {
		if c.metrics != nil {
			c.metrics.StaleAccepted.Inc()
		}
		c.logger.Info("accepting stale observation",
			"role", role, "site", stale.result.SiteID, "observed_at", stale.result.ObservedAt)
		return stale.result, stale.series, nil
	}

	return c.resolveMiss(role, attempts, trace)
}

// resolveMiss turns an exhausted, valueless cascade into either a reasoned
// absence or a per-river fatal error.
func (c *Cascade) resolveMiss(role domain.Role, attempts []attempt, trace []attemptResult) (domain.RoleResult, domain.ParsedSeries, error) {
	if len(attempts) == 0 {
		return domain.RoleResult{Reason: domain.ReasonNoSiteMapping(role)}, domain.ParsedSeries{}, nil
	}

	var (
		errs       []error
		anyFetched bool // at least one attempt got a payload back
		anyExposed bool // at least one site exposes the parameter
	)
	for _, res := range trace {
		switch res.outcome {
		case outcomeError:
			errs = append(errs, res.err)
		case outcomeNoParam:
			anyFetched = true
		case outcomeNoValue, outcomeStale:
			anyFetched = true
			anyExposed = true
		}
	}

	if !anyFetched {
		// Every candidate failed at the transport layer.
		return domain.RoleResult{}, domain.ParsedSeries{}, errors.Join(errs...)
	}

	reason := domain.ReasonSitesMissingParameter(role)
	if anyExposed {
		reason = domain.ReasonStaleOrMissing(role)
	}
	return domain.RoleResult{Reason: reason}, domain.ParsedSeries{}, nil
}

func buildAttempts(mapped, registry []string, liveWindow, delayedWindow time.Duration) []attempt {
	attempts := make([]attempt, 0, 2*(len(mapped)+len(registry)))
	for _, site := range mapped {
		attempts = append(attempts, attempt{siteID: site, feed: domain.FeedLive, window: liveWindow})
	}
	for _, site := range mapped {
		attempts = append(attempts, attempt{siteID: site, feed: domain.FeedDelayed, window: delayedWindow})
	}
	for _, site := range registry {
		attempts = append(attempts, attempt{siteID: site, feed: domain.FeedLive, window: liveWindow, registry: true})
	}
	for _, site := range registry {
		attempts = append(attempts, attempt{siteID: site, feed: domain.FeedDelayed, window: delayedWindow, registry: true})
	}
	return attempts
}

func sourceKind(att attempt) string {
	switch {
	case att.registry && att.feed == domain.FeedLive:
		return domain.SourceRegistryLive
	case att.registry:
		return domain.SourceRegistryDelayed
	case att.feed == domain.FeedLive:
		return domain.SourceLive
	default:
		return domain.SourceDelayed
	}
}

func (c *Cascade) observe(att attempt, outcome attemptOutcome) {
	if c.metrics == nil {
		return
	}
	c.metrics.CascadeAttempts.WithLabelValues(string(att.feed), string(outcome)).Inc()
}
