// Package openmeteo fetches daily and hourly forecast data per coordinate.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/riverwatch/telemetry-ingest/internal/config"
	"github.com/riverwatch/telemetry-ingest/internal/domain"
	"github.com/riverwatch/telemetry-ingest/internal/observability"
	"github.com/riverwatch/telemetry-ingest/internal/ratelimit"
)

// hourlyTimeLayout is Open-Meteo's local-time format when a timezone
// parameter is supplied.
const hourlyTimeLayout = "2006-01-02T15:04"

// Client queries the Open-Meteo forecast API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *ratelimit.Limiter
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an Open-Meteo client. The limiter may be nil in tests.
func NewClient(cfg *config.Config, limiter *ratelimit.Limiter, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.ProviderTimeout},
		baseURL:    cfg.OpenMeteoURL,
		limiter:    limiter,
		metrics:    metrics,
		logger:     logger,
	}
}

// Forecast fetches hourly wind and daily extremes for a coordinate. Units
// are requested explicitly (Fahrenheit, mph, millimeters) and timestamps in
// the given IANA zone, so the caller's wall-clock date math lines up with
// the provider's buckets.
func (c *Client) Forecast(ctx context.Context, lat, lon float64, tz string, date time.Time) (domain.WeatherFetch, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return domain.WeatherFetch{}, fmt.Errorf("load location %q: %w", tz, err)
	}

	q := url.Values{
		"latitude":           {strconv.FormatFloat(lat, 'f', 4, 64)},
		"longitude":          {strconv.FormatFloat(lon, 'f', 4, 64)},
		"hourly":             {"wind_speed_10m,precipitation"},
		"daily":              {"temperature_2m_max,temperature_2m_min,precipitation_sum,wind_gusts_10m_max"},
		"temperature_unit":   {"fahrenheit"},
		"wind_speed_unit":    {"mph"},
		"precipitation_unit": {"mm"},
		"timezone":           {tz},
		"forecast_days":      {"2"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return domain.WeatherFetch{}, fmt.Errorf("open_meteo: create request: %w", err)
	}

	if err := c.limiter.Wait(ctx, req.URL.Hostname()); err != nil {
		return domain.WeatherFetch{}, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.ProviderRequestDuration.WithLabelValues("open_meteo").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.countError()
		return domain.WeatherFetch{}, fmt.Errorf("open_meteo: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.countError()
		body, _ := io.ReadAll(resp.Body)
		return domain.WeatherFetch{}, fmt.Errorf("open_meteo: status %d: %s", resp.StatusCode, body)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.countError()
		return domain.WeatherFetch{}, fmt.Errorf("open_meteo: decode response: %w", err)
	}

	return payload.toFetch(loc, date), nil
}

func (c *Client) countError() {
	if c.metrics != nil {
		c.metrics.ProviderErrors.WithLabelValues("open_meteo").Inc()
	}
}

// Open-Meteo response types: parallel arrays aligned by index.

type response struct {
	Hourly struct {
		Time          []string   `json:"time"`
		WindSpeed10m  []*float64 `json:"wind_speed_10m"`
		Precipitation []*float64 `json:"precipitation"`
	} `json:"hourly"`
	Daily struct {
		Time             []string   `json:"time"`
		TemperatureMax   []*float64 `json:"temperature_2m_max"`
		TemperatureMin   []*float64 `json:"temperature_2m_min"`
		PrecipitationSum []*float64 `json:"precipitation_sum"`
		WindGustsMax     []*float64 `json:"wind_gusts_10m_max"`
	} `json:"daily"`
}

func (r response) toFetch(loc *time.Location, date time.Time) domain.WeatherFetch {
	fetch := domain.WeatherFetch{}

	for i, raw := range r.Hourly.Time {
		ts, err := time.ParseInLocation(hourlyTimeLayout, raw, loc)
		if err != nil {
			continue
		}
		hour := domain.WeatherHour{Time: ts}
		if v := at(r.Hourly.WindSpeed10m, i); v != nil {
			hour.WindMPH = *v
			hour.HasWind = true
		}
		if v := at(r.Hourly.Precipitation, i); v != nil {
			hour.PrecipMM = *v
		}
		fetch.Hourly = append(fetch.Hourly, hour)
	}

	target := date.Format("2006-01-02")
	for i, day := range r.Daily.Time {
		if day != target {
			continue
		}
		fetch.TempMaxF = at(r.Daily.TemperatureMax, i)
		fetch.TempMinF = at(r.Daily.TemperatureMin, i)
		fetch.PrecipSumMM = at(r.Daily.PrecipitationSum, i)
		fetch.WindGustMax = at(r.Daily.WindGustsMax, i)
		break
	}

	return fetch
}

// at guards index lookups into the provider's parallel arrays, which are
// not guaranteed to match the time array's length.
func at(vals []*float64, i int) *float64 {
	if i < 0 || i >= len(vals) {
		return nil
	}
	return vals[i]
}
