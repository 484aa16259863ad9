// Package usgs fetches and parses NWIS time-series payloads.
package usgs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/riverwatch/telemetry-ingest/internal/config"
	"github.com/riverwatch/telemetry-ingest/internal/domain"
	"github.com/riverwatch/telemetry-ingest/internal/observability"
	"github.com/riverwatch/telemetry-ingest/internal/ratelimit"
)

// Lookback windows requested from each service. The live feed is queried
// wide enough to cover the 72h freshness window; the daily feed wide enough
// for the 240h delayed window.
const (
	instantPeriod = "P4D"
	dailyPeriod   = "P14D"
)

// StatusError reports a non-2xx provider response. The pipeline records the
// code on the site log.
type StatusError struct {
	Provider string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.Code)
}

// HTTPStatus exposes the code without importing this package's type.
func (e *StatusError) HTTPStatus() int { return e.Code }

// Client queries the NWIS instantaneous-values and daily-values services.
type Client struct {
	httpClient *http.Client
	instantURL string
	dailyURL   string
	limiter    *ratelimit.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a NWIS client. The limiter spaces requests per provider
// hostname and may be nil in tests.
func NewClient(cfg *config.Config, limiter *ratelimit.Limiter, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.ProviderTimeout},
		instantURL: cfg.USGSInstantURL,
		dailyURL:   cfg.USGSDailyURL,
		limiter:    limiter,
		metrics:    metrics,
		logger:     logger,
	}
}

// FetchSite retrieves the time series for one site and the given parameter
// codes from the requested feed, returning the parsed, typed series.
func (c *Client) FetchSite(ctx context.Context, siteID string, feed domain.Feed, params []string) (domain.ParsedSeries, error) {
	base := c.instantURL
	period := instantPeriod
	provider := "usgs_iv"
	if feed == domain.FeedDelayed {
		base = c.dailyURL
		period = dailyPeriod
		provider = "usgs_dv"
	}

	q := url.Values{
		"format":      {"json"},
		"sites":       {siteID},
		"parameterCd": {strings.Join(params, ",")},
		"siteStatus":  {"all"},
		"period":      {period},
	}

	body, err := c.get(ctx, base+"?"+q.Encode(), provider)
	if err != nil {
		return domain.ParsedSeries{}, err
	}

	var payload timeSeriesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.ParsedSeries{}, fmt.Errorf("%s: decode response: %w", provider, err)
	}

	return parseTimeSeries(siteID, payload), nil
}

// Probe checks which role parameters a site actually exposes, for the
// capability registry. A site "has" a parameter when the live feed returned
// at least one valid reading for it in the lookback window.
func (c *Client) Probe(ctx context.Context, siteID string) (domain.StationCapability, error) {
	series, err := c.FetchSite(ctx, siteID, domain.FeedLive, []string{domain.ParamFlow, domain.ParamTemperature})
	if err != nil {
		return domain.StationCapability{}, err
	}

	capability := domain.StationCapability{SiteID: siteID}
	if p, ok := series.Param(domain.ParamFlow); ok && p.Latest != nil {
		capability.HasFlow = true
	}
	if p, ok := series.Param(domain.ParamTemperature); ok && p.Latest != nil {
		capability.HasTemperature = true
	}
	return capability, nil
}

func (c *Client) get(ctx context.Context, fullURL, provider string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", provider, err)
	}
	req.Header.Set("Accept", "application/json")

	if err := c.limiter.Wait(ctx, req.URL.Hostname()); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.ProviderRequestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.countError(provider)
		return nil, fmt.Errorf("%s: request: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.countError(provider)
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil, &StatusError{Provider: provider, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.countError(provider)
		return nil, fmt.Errorf("%s: read response: %w", provider, err)
	}
	return body, nil
}

func (c *Client) countError(provider string) {
	if c.metrics != nil {
		c.metrics.ProviderErrors.WithLabelValues(provider).Inc()
	}
}
