package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/riverwatch/telemetry-ingest/internal/adapter/http"
	"github.com/riverwatch/telemetry-ingest/internal/domain"
	"github.com/riverwatch/telemetry-ingest/internal/pipeline"
)

type mockRunner struct {
	summary pipeline.Summary
	err     error
	cadence string
}

func (m *mockRunner) Run(_ context.Context, cadence string) (pipeline.Summary, error) {
	m.cadence = cadence
	return m.summary, m.err
}

type mockReadiness struct {
	err error
}

func (m *mockReadiness) Ping(_ context.Context) error { return m.err }

func newTestServer(obs, weather *mockRunner, readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", obs, weather, &mockReadiness{err: readyErr}, slog.Default())
}

func TestIngestObservationsReturnsSummary(t *testing.T) {
	obs := &mockRunner{summary: pipeline.Summary{
		RunID:   7,
		ObsDate: "2026-06-15",
		Status:  domain.RunPartial,
		Rivers:  3,
		OK:      2,
		Failed:  1,
		Errors:  []string{"gallatin: connection refused"},
	}}
	srv := newTestServer(obs, &mockRunner{}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ingest/observations", nil)
	req.Header.Set("X-Trigger-Cadence", "morning")

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "morning", obs.cadence)

	var body pipeline.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(7), body.RunID)
	assert.Equal(t, domain.RunPartial, body.Status)
	assert.Equal(t, 1, body.Failed)
	assert.Contains(t, body.Errors[0], "gallatin")
}

func TestIngestDefaultsToManualCadence(t *testing.T) {
	obs := &mockRunner{summary: pipeline.Summary{Status: domain.RunSuccess}}
	srv := newTestServer(obs, &mockRunner{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/observations", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "manual", obs.cadence)
}

func TestIngestRunFatalReturns500(t *testing.T) {
	obs := &mockRunner{err: errors.New("load rivers: connection refused")}
	srv := newTestServer(obs, &mockRunner{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ingest/observations", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "load rivers")
}

func TestIngestWeatherRoutesToWeatherRunner(t *testing.T) {
	weather := &mockRunner{summary: pipeline.Summary{Status: domain.RunSuccess}}
	srv := newTestServer(&mockRunner{}, weather, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ingest/weather", nil)
	req.Header.Set("X-Trigger-Cadence", "midday")

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "midday", weather.cadence)
}

func TestIngestRejectsGet(t *testing.T) {
	srv := newTestServer(&mockRunner{}, &mockRunner{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ingest/observations", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(&mockRunner{}, &mockRunner{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns503WhenDatabaseUnreachable(t *testing.T) {
	srv := newTestServer(&mockRunner{}, &mockRunner{}, fmt.Errorf("dial tcp: connection refused"))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(&mockRunner{}, &mockRunner{}, nil)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
