package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riverwatch/telemetry-ingest/internal/pipeline"
)

// cadenceHeader carries the scheduler's cadence label; stored verbatim on
// the run ledger entry.
const cadenceHeader = "X-Trigger-Cadence"

// IngestRunner executes one ingestion run and returns its summary.
type IngestRunner interface {
	Run(ctx context.Context, cadence string) (pipeline.Summary, error)
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	Ping(ctx context.Context) error
}

// Server exposes the ingestion triggers plus health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the trigger and operational routes.
func NewServer(addr string, observations, weather IngestRunner, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 15 * time.Minute, // runs fetch every river synchronously
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("POST /ingest/observations", s.handleRun("observations", observations))
	mux.HandleFunc("POST /ingest/weather", s.handleRun("weather", weather))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleRun triggers one run. A non-nil error from Run means the run could
// not start or load its inputs; per-river failures come back inside the
// summary with a 200.
func (s *Server) handleRun(kind string, runner IngestRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cadence := r.Header.Get(cadenceHeader)
		if cadence == "" {
			cadence = "manual"
		}

		s.logger.Info("run triggered", "kind", kind, "cadence", cadence)
		summary, err := runner.Run(r.Context(), cadence)
		if err != nil {
			s.logger.Error("run failed to start", "kind", kind, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"status": "failed",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
