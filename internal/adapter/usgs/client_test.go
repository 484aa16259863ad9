package usgs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverwatch/telemetry-ingest/internal/config"
	"github.com/riverwatch/telemetry-ingest/internal/domain"
	"github.com/riverwatch/telemetry-ingest/internal/observability"
)

const ivFixture = `{"value":{"timeSeries":[
	{
		"sourceInfo":{"siteCode":[{"value":"06041000"}]},
		"variable":{"variableCode":[{"value":"00060"}]},
		"values":[{"value":[{"value":"455","dateTime":"2026-06-01T10:00:00.000-06:00","qualifiers":["P"]}]}]
	},
	{
		"sourceInfo":{"siteCode":[{"value":"06041000"}]},
		"variable":{"variableCode":[{"value":"00010"}]},
		"values":[{"value":[{"value":"11.5","dateTime":"2026-06-01T10:00:00.000-06:00","qualifiers":["P"]}]}]
	}
]}}`

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		USGSInstantURL:  srv.URL + "/iv/",
		USGSDailyURL:    srv.URL + "/dv/",
		ProviderTimeout: 5 * time.Second,
	}
	return NewClient(cfg, nil, observability.NewMetricsForTesting(), slog.Default()), srv
}

func TestFetchSite_Live(t *testing.T) {
	var gotQuery map[string][]string
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/iv/", r.URL.Path)
		gotQuery = r.URL.Query()
		w.Write([]byte(ivFixture)) //nolint:errcheck
	}))

	series, err := client.FetchSite(context.Background(), "06041000", domain.FeedLive,
		[]string{domain.ParamFlow, domain.ParamTemperature})
	require.NoError(t, err)

	assert.Equal(t, []string{"json"}, gotQuery["format"])
	assert.Equal(t, []string{"06041000"}, gotQuery["sites"])
	assert.Equal(t, []string{"00060,00010"}, gotQuery["parameterCd"])
	assert.Equal(t, []string{"P4D"}, gotQuery["period"])

	flow, ok := series.Param(domain.ParamFlow)
	require.True(t, ok)
	assert.Equal(t, 455.0, *flow.Latest)

	temp, ok := series.Param(domain.ParamTemperature)
	require.True(t, ok)
	assert.InDelta(t, 52.7, *temp.Latest, 1e-9)
}

func TestFetchSite_DelayedUsesDailyEndpoint(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/dv/", r.URL.Path)
		assert.Equal(t, "P14D", r.URL.Query().Get("period"))
		w.Write([]byte(`{"value":{"timeSeries":[]}}`)) //nolint:errcheck
	}))

	series, err := client.FetchSite(context.Background(), "06041000", domain.FeedDelayed, []string{domain.ParamFlow})
	require.NoError(t, err)
	assert.Empty(t, series.Params)
}

func TestFetchSite_StatusError(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.FetchSite(context.Background(), "06041000", domain.FeedLive, []string{domain.ParamFlow})
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Equal(t, "usgs_iv", statusErr.Provider)
}

func TestFetchSite_MalformedJSON(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"value":`)) //nolint:errcheck
	}))

	_, err := client.FetchSite(context.Background(), "06041000", domain.FeedLive, []string{domain.ParamFlow})
	assert.Error(t, err)
}

func TestProbe(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(ivFixture)) //nolint:errcheck
	}))

	cap, err := client.Probe(context.Background(), "06041000")
	require.NoError(t, err)
	assert.True(t, cap.HasFlow)
	assert.True(t, cap.HasTemperature)
	assert.Equal(t, "06041000", cap.SiteID)
}

func TestProbe_NoUsableReadings(t *testing.T) {
	client, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"value":{"timeSeries":[{
			"sourceInfo":{"siteCode":[{"value":"123"}]},
			"variable":{"variableCode":[{"value":"00060"}]},
			"values":[{"value":[{"value":"-999999","dateTime":"2026-06-01T10:00:00.000-06:00"}]}]
		}]}}`)) //nolint:errcheck
	}))

	cap, err := client.Probe(context.Background(), "123")
	require.NoError(t, err)
	assert.False(t, cap.HasFlow)
	assert.False(t, cap.HasTemperature)
}
