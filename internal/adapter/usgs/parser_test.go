package usgs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverwatch/telemetry-ingest/internal/domain"
)

func decodePayload(t *testing.T, raw string) timeSeriesResponse {
	t.Helper()
	var payload timeSeriesResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}

func TestParseTimeSeries_LatestSkipsTrailingSentinel(t *testing.T) {
	payload := decodePayload(t, `{"value":{"timeSeries":[{
		"sourceInfo":{"siteCode":[{"value":"06041000"}]},
		"variable":{"variableCode":[{"value":"00060"}]},
		"values":[{"value":[
			{"value":"455","dateTime":"2026-06-01T10:00:00.000-06:00","qualifiers":["P"]},
			{"value":"-999999","dateTime":"2026-06-01T10:15:00.000-06:00","qualifiers":["Ice"]}
		]}]
	}]}}`)

	series := parseTimeSeries("06041000", payload)
	flow, ok := series.Param(domain.ParamFlow)
	require.True(t, ok)
	require.NotNil(t, flow.Latest)
	assert.Equal(t, 455.0, *flow.Latest)
	assert.Equal(t, []string{"P"}, flow.Qualifiers)
	assert.Len(t, flow.Points, 1)
}

func TestParseTimeSeries_AllSentinelIsPresentButAbsent(t *testing.T) {
	payload := decodePayload(t, `{"value":{"timeSeries":[{
		"sourceInfo":{"siteCode":[{"value":"06041000"}]},
		"variable":{"variableCode":[{"value":"00060"}]},
		"values":[{"value":[
			{"value":"-999999","dateTime":"2026-06-01T10:00:00.000-06:00"}
		]}]
	}]}}`)

	series := parseTimeSeries("06041000", payload)
	flow, ok := series.Param(domain.ParamFlow)
	require.True(t, ok, "code returned by provider must stay present")
	assert.Nil(t, flow.Latest)
	assert.Empty(t, flow.Points)

	_, ok = series.Param(domain.ParamTemperature)
	assert.False(t, ok, "unreturned code must be entirely absent")
}

func TestParseTimeSeries_TemperatureConvertedAndBounded(t *testing.T) {
	payload := decodePayload(t, `{"value":{"timeSeries":[{
		"sourceInfo":{"siteCode":[{"value":"06041000"}]},
		"variable":{"variableCode":[{"value":"00010"}]},
		"values":[{"value":[
			{"value":"12","dateTime":"2026-06-01T10:00:00.000-06:00"},
			{"value":"48.3","dateTime":"2026-06-01T10:15:00.000-06:00"}
		]}]
	}]}}`)

	series := parseTimeSeries("06041000", payload)
	temp, ok := series.Param(domain.ParamTemperature)
	require.True(t, ok)
	require.NotNil(t, temp.Latest, "48.3C glitch skipped, 12C stands")
	assert.InDelta(t, 53.6, *temp.Latest, 1e-9)
	assert.Len(t, temp.Points, 1)
}

func TestParseTimeSeries_PointsSortedAscending(t *testing.T) {
	payload := decodePayload(t, `{"value":{"timeSeries":[{
		"sourceInfo":{"siteCode":[{"value":"06041000"}]},
		"variable":{"variableCode":[{"value":"00060"}]},
		"values":[{"value":[
			{"value":"420","dateTime":"2026-06-01T11:00:00.000-06:00"},
			{"value":"400","dateTime":"2026-06-01T10:00:00.000-06:00"}
		]}]
	}]}}`)

	series := parseTimeSeries("06041000", payload)
	flow, _ := series.Param(domain.ParamFlow)
	require.Len(t, flow.Points, 2)
	assert.True(t, flow.Points[0].ObservedAt.Before(flow.Points[1].ObservedAt))
	assert.Equal(t, 420.0, *flow.Latest)
}

func TestParseTimeSeries_DailyFeedTimestampWithoutZone(t *testing.T) {
	payload := decodePayload(t, `{"value":{"timeSeries":[{
		"sourceInfo":{"siteCode":[{"value":"06041000"}]},
		"variable":{"variableCode":[{"value":"00060"}]},
		"values":[{"value":[
			{"value":"390","dateTime":"2026-05-30T00:00:00.000"}
		]}]
	}]}}`)

	series := parseTimeSeries("06041000", payload)
	flow, _ := series.Param(domain.ParamFlow)
	require.NotNil(t, flow.Latest)
	assert.Equal(t, time.Date(2026, 5, 30, 0, 0, 0, 0, time.UTC), flow.ObservedAt.UTC())
}

func TestParseTimeSeries_SkipsOtherSites(t *testing.T) {
	payload := decodePayload(t, `{"value":{"timeSeries":[{
		"sourceInfo":{"siteCode":[{"value":"99999999"}]},
		"variable":{"variableCode":[{"value":"00060"}]},
		"values":[{"value":[{"value":"100","dateTime":"2026-06-01T10:00:00.000-06:00"}]}]
	}]}}`)

	series := parseTimeSeries("06041000", payload)
	assert.Empty(t, series.Params)
}

func TestParseTimeSeries_EmptyPayload(t *testing.T) {
	series := parseTimeSeries("06041000", timeSeriesResponse{})
	assert.Empty(t, series.Params)
	assert.Equal(t, "06041000", series.SiteID)
}
