package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverwatch/telemetry-ingest/internal/domain"
	"github.com/riverwatch/telemetry-ingest/internal/observability"
	"github.com/riverwatch/telemetry-ingest/internal/pipeline"
)

var testNow = time.Date(2026, 6, 15, 18, 0, 0, 0, time.UTC)

// fakeFetcher serves canned series per (site, feed) and records call order.
type fakeFetcher struct {
	series map[string]domain.ParsedSeries // key: site + "/" + feed
	errs   map[string]error
	calls  []string
}

func (f *fakeFetcher) FetchSite(_ context.Context, siteID string, feed domain.Feed, _ []string) (domain.ParsedSeries, error) {
	key := siteID + "/" + string(feed)
	f.calls = append(f.calls, key)
	if err, ok := f.errs[key]; ok {
		return domain.ParsedSeries{}, err
	}
	if s, ok := f.series[key]; ok {
		return s, nil
	}
	// Site responds but without the requested parameter.
	return domain.ParsedSeries{SiteID: siteID, Params: map[string]domain.ParamSeries{}}, nil
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		series: make(map[string]domain.ParsedSeries),
		errs:   make(map[string]error),
	}
}

// serve registers a single-parameter series whose latest reading is age old.
func (f *fakeFetcher) serve(site string, feed domain.Feed, code string, value float64, age time.Duration) {
	observedAt := testNow.Add(-age)
	v := value
	f.series[site+"/"+string(feed)] = domain.ParsedSeries{
		SiteID: site,
		Params: map[string]domain.ParamSeries{
			code: {
				Code:       code,
				Latest:     &v,
				ObservedAt: observedAt,
				Points:     []domain.SeriesPoint{{ObservedAt: observedAt, Value: value}},
			},
		},
	}
}

// servePresentButEmpty registers a series where the code exists with no
// usable reading.
func (f *fakeFetcher) servePresentButEmpty(site string, feed domain.Feed, code string) {
	f.series[site+"/"+string(feed)] = domain.ParsedSeries{
		SiteID: site,
		Params: map[string]domain.ParamSeries{code: {Code: code}},
	}
}

func newCascade(f *fakeFetcher) *pipeline.Cascade {
	return pipeline.NewCascade(
		f,
		clockwork.NewFakeClockAt(testNow),
		slog.Default(),
		observability.NewMetricsForTesting(),
		72*time.Hour,
		240*time.Hour,
	)
}

func TestCascade_FreshPrimaryShortCircuits(t *testing.T) {
	f := newFakeFetcher()
	f.serve("100", domain.FeedLive, domain.ParamFlow, 455, 10*time.Hour)
	f.serve("200", domain.FeedLive, domain.ParamFlow, 390, time.Hour)

	res, series, err := newCascade(f).FetchRole(context.Background(), domain.RoleFlow, []string{"100", "200"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 455.0, *res.Value)
	assert.Equal(t, "100", res.SiteID)
	assert.Equal(t, domain.SourceLive, res.SourceKind)
	assert.Empty(t, res.Reason)
	assert.True(t, res.Fresh())
	assert.Equal(t, "100", series.SiteID)

	// The lower-priority candidate must never be queried.
	assert.Equal(t, []string{"100/live"}, f.calls)
}

func TestCascade_StaleThenFreshPrefersFresh(t *testing.T) {
	f := newFakeFetcher()
	f.serve("A", domain.FeedLive, domain.ParamTemperature, 50, 100*time.Hour) // stale
	f.serve("B", domain.FeedLive, domain.ParamTemperature, 54, 5*time.Hour)   // fresh

	res, _, err := newCascade(f).FetchRole(context.Background(), domain.RoleTemperature, []string{"A", "B"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 54.0, *res.Value)
	assert.Equal(t, "B", res.SiteID)
	assert.Equal(t, domain.SourceLive, res.SourceKind)
	assert.Empty(t, res.Reason)
}

func TestCascade_StaleOnlyReturnsFlaggedValue(t *testing.T) {
	f := newFakeFetcher()
	f.serve("A", domain.FeedLive, domain.ParamTemperature, 50, 100*time.Hour)
	f.serve("A", domain.FeedDelayed, domain.ParamTemperature, 50, 300*time.Hour)

	res, _, err := newCascade(f).FetchRole(context.Background(), domain.RoleTemperature, []string{"A"}, nil)
	require.NoError(t, err)

	require.NotNil(t, res.Value)
	assert.Equal(t, 50.0, *res.Value)
	assert.Equal(t, "live_stale", res.SourceKind)
	assert.Equal(t, "temp_observation_stale_or_missing", res.Reason)
	assert.False(t, res.Fresh())
}

func TestCascade_DelayedFallbackWithinWiderWindow(t *testing.T) {
	f := newFakeFetcher()
	// Live reading too old for 72h, delayed summary inside 240h.
	f.serve("A", domain.FeedLive, domain.ParamFlow, 400, 90*time.Hour)
	f.serve("A", domain.FeedDelayed, domain.ParamFlow, 410, 90*time.Hour)

	res, _, err := newCascade(f).FetchRole(context.Background(), domain.RoleFlow, []string{"A"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 410.0, *res.Value)
	assert.Equal(t, domain.SourceDelayed, res.SourceKind)
	assert.Empty(t, res.Reason)
}

func TestCascade_RegistryPoolIsLastResort(t *testing.T) {
	f := newFakeFetcher()
	f.serve("R1", domain.FeedLive, domain.ParamTemperature, 52, time.Hour)

	res, _, err := newCascade(f).FetchRole(context.Background(), domain.RoleTemperature, []string{"A"}, []string{"R1"})
	require.NoError(t, err)

	assert.Equal(t, 52.0, *res.Value)
	assert.Equal(t, domain.SourceRegistryLive, res.SourceKind)
	// Mapped candidate is exhausted on both feeds before the pool is tried.
	assert.Equal(t, []string{"A/live", "A/delayed", "R1/live"}, f.calls)
}

func TestCascade_NoMappingsAtAll(t *testing.T) {
	f := newFakeFetcher()

	res, _, err := newCascade(f).FetchRole(context.Background(), domain.RoleTemperature, nil, nil)
	require.NoError(t, err)

	assert.Nil(t, res.Value)
	assert.Equal(t, "no_temp_site_mapping", res.Reason)
	assert.Empty(t, f.calls)
}

func TestCascade_SitesMissingParameter(t *testing.T) {
	f := newFakeFetcher()
	// Site responds on both feeds but never carries 00010.

	res, _, err := newCascade(f).FetchRole(context.Background(), domain.RoleTemperature, []string{"A"}, nil)
	require.NoError(t, err)

	assert.Nil(t, res.Value)
	assert.Equal(t, "temp_sites_missing_parameter", res.Reason)
}

func TestCascade_ParameterPresentButNoValidReading(t *testing.T) {
	f := newFakeFetcher()
	f.servePresentButEmpty("A", domain.FeedLive, domain.ParamTemperature)
	f.servePresentButEmpty("A", domain.FeedDelayed, domain.ParamTemperature)

	res, _, err := newCascade(f).FetchRole(context.Background(), domain.RoleTemperature, []string{"A"}, nil)
	require.NoError(t, err)

	assert.Nil(t, res.Value)
	assert.Equal(t, "temp_observation_stale_or_missing", res.Reason)
}

func TestCascade_AllTransportFailuresAreFatal(t *testing.T) {
	f := newFakeFetcher()
	f.errs["A/live"] = errors.New("connection refused")
	f.errs["A/delayed"] = errors.New("connection refused")

	_, _, err := newCascade(f).FetchRole(context.Background(), domain.RoleFlow, []string{"A"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCascade_TransportFailureThenFallbackSucceeds(t *testing.T) {
	f := newFakeFetcher()
	f.errs["A/live"] = fmt.Errorf("usgs_iv: %w", errors.New("timeout"))
	f.serve("B", domain.FeedLive, domain.ParamFlow, 425, time.Hour)

	res, _, err := newCascade(f).FetchRole(context.Background(), domain.RoleFlow, []string{"A", "B"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 425.0, *res.Value)
	assert.Equal(t, "B", res.SiteID)
}
