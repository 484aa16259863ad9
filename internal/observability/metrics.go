package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipelines.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec // labels: kind={observations,weather}, status={success,partial,failed}
	RiversProcessed *prometheus.CounterVec // labels: outcome={ok,failed}
	RunDuration     prometheus.Histogram
	IngestRunning   prometheus.Gauge

	// Source cascade metrics.
	CascadeAttempts   *prometheus.CounterVec // labels: feed={live,delayed}, outcome={fresh,stale,no_param,no_value,error}
	StaleAccepted     prometheus.Counter
	RegistryFallbacks prometheus.Counter

	// Provider metrics.
	ProviderRequestDuration *prometheus.HistogramVec // labels: provider={usgs_iv,usgs_dv,open_meteo}
	ProviderErrors          *prometheus.CounterVec   // labels: provider
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.RunsTotal,
		m.RiversProcessed,
		m.RunDuration,
		m.IngestRunning,
		m.CascadeAttempts,
		m.StaleAccepted,
		m.RegistryFallbacks,
		m.ProviderRequestDuration,
		m.ProviderErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "river_ingest",
			Name:      "runs_total",
			Help:      "Completed ingestion runs by kind and terminal status.",
		}, []string{"kind", "status"}),
		RiversProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "river_ingest",
			Name:      "rivers_processed_total",
			Help:      "Per-river attempts by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "river_ingest",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete ingestion run.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "river_ingest",
			Name:      "run_in_progress",
			Help:      "1 while an ingestion run is active.",
		}),
		CascadeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "river_ingest",
			Name:      "cascade_attempts_total",
			Help:      "Source cascade attempts by feed and outcome.",
		}, []string{"feed", "outcome"}),
		StaleAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "river_ingest",
			Name:      "stale_observations_accepted_total",
			Help:      "Observations persisted despite missing every freshness window.",
		}),
		RegistryFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "river_ingest",
			Name:      "registry_fallbacks_total",
			Help:      "Values resolved from the capability-registry pool.",
		}),
		ProviderRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "river_ingest",
			Name:      "provider_request_duration_seconds",
			Help:      "Outbound provider request duration.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		ProviderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "river_ingest",
			Name:      "provider_errors_total",
			Help:      "Outbound provider transport and status failures.",
		}, []string{"provider"}),
	}
}
