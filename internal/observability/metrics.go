// Package observability holds the Prometheus metrics exported by indexlab.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Simulation
	SimulationsTotal   *prometheus.CounterVec
	SimulationDuration prometheus.Histogram
	ContributionEvents prometheus.Counter

	// Price data
	SeriesFetches *prometheus.CounterVec

	// Snapshots and treemaps
	SnapshotSymbolsFailed prometheus.Counter
	TreemapRuns           *prometheus.CounterVec
	LastTreemapSuccess    prometheus.Gauge
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "indexlab"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status code",
		}, []string{"route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		SimulationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "runs_total",
			Help:      "Simulation runs by strategy and outcome",
		}, []string{"strategy", "status"}),
		SimulationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "duration_seconds",
			Help:      "Engine replay time in seconds, excluding data fetch",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5},
		}),
		ContributionEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "events_total",
			Help:      "Contribution events produced across all runs",
		}),

		SeriesFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "prices",
			Name:      "series_fetches_total",
			Help:      "Series lookups by source (cache, provider, store) and outcome",
		}, []string{"source", "status"}),

		SnapshotSymbolsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "symbols_failed_total",
			Help:      "Constituents skipped because their market data could not be loaded",
		}),
		TreemapRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "treemap",
			Name:      "runs_total",
			Help:      "Daily treemap jobs by outcome",
		}, []string{"status"}),
		LastTreemapSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "treemap",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful treemap job",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveSimulation records one engine run.
func (m *Metrics) ObserveSimulation(strategy string, err error, events int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SimulationsTotal.WithLabelValues(strategy, status(err)).Inc()
	if err == nil {
		m.SimulationDuration.Observe(elapsed.Seconds())
		m.ContributionEvents.Add(float64(events))
	}
}

// ObserveSeriesFetch records a lookup against one series source.
func (m *Metrics) ObserveSeriesFetch(source string, err error) {
	if m == nil {
		return
	}
	m.SeriesFetches.WithLabelValues(source, status(err)).Inc()
}

// SymbolFailed counts a constituent dropped from a snapshot.
func (m *Metrics) SymbolFailed() {
	if m == nil {
		return
	}
	m.SnapshotSymbolsFailed.Inc()
}

// ObserveTreemapRun records the outcome of a daily treemap job.
func (m *Metrics) ObserveTreemapRun(err error, at time.Time) {
	if m == nil {
		return
	}
	m.TreemapRuns.WithLabelValues(status(err)).Inc()
	if err == nil {
		m.LastTreemapSuccess.Set(float64(at.Unix()))
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
