package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crawlrun"

// Metrics holds all Prometheus metrics on a dedicated registry
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Pipeline metrics
	RunsTotal     *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	StageDuration *prometheus.HistogramVec
	RunsInFlight  prometheus.Gauge
	FetchedBytes  prometheus.Histogram
	CodeLength    prometheus.Histogram
	AsyncResults  prometheus.Counter

	startTime time.Time
	snapshot  Snapshot
	mu        sync.RWMutex
}

// Snapshot holds running totals for the capability description
type Snapshot struct {
	TotalRuns   int64   `json:"total_runs"`
	FailedRuns  int64   `json:"failed_runs"`
	AvgDuration float64 `json:"avg_duration_seconds"`
	Uptime      float64 `json:"uptime_seconds"`

	totalDuration float64
}

// NewMetrics creates a new metrics collector with its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		Registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total pipeline runs by mode and outcome kind",
			},
			[]string{"mode", "outcome"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "End-to-end pipeline run duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20},
			},
			[]string{"mode"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"stage", "outcome"},
		),
		RunsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "runs_in_flight",
				Help:      "Number of pipeline runs currently executing",
			},
		),
		FetchedBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetched_bytes",
				Help:      "Size of fetched target bodies in bytes",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
			},
		),
		CodeLength: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "code_length_chars",
				Help:      "Length of submitted code in characters",
				Buckets:   []float64{16, 64, 256, 1000, 2500, 5000, 10000},
			},
		),
		AsyncResults: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "async_results_total",
				Help:      "Runs whose function returned a promise",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordRun records a finished pipeline run. outcome is "ok" or an error kind.
func (m *Metrics) RecordRun(mode, outcome string, duration time.Duration) {
	m.RunsTotal.WithLabelValues(mode, outcome).Inc()
	m.RunDuration.WithLabelValues(mode).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRuns++
	m.snapshot.totalDuration += duration.Seconds()
	if outcome != "ok" {
		m.snapshot.FailedRuns++
	}
	m.mu.Unlock()
}

// RecordStage records one pipeline stage
func (m *Metrics) RecordStage(stage, outcome string, duration time.Duration) {
	m.StageDuration.WithLabelValues(stage, outcome).Observe(duration.Seconds())
}

// RecordFetch records the size of a fetched body
func (m *Metrics) RecordFetch(size int) {
	m.FetchedBytes.Observe(float64(size))
}

// RecordCode records the length of submitted code
func (m *Metrics) RecordCode(length int) {
	m.CodeLength.Observe(float64(length))
}

// IncAsyncResults counts a promise-returning run
func (m *Metrics) IncAsyncResults() {
	m.AsyncResults.Inc()
}

// TrackInFlight marks a run as started and returns the function ending it
func (m *Metrics) TrackInFlight() func() {
	m.RunsInFlight.Inc()
	return m.RunsInFlight.Dec
}

// Snapshot returns current running totals
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	s := m.snapshot
	m.mu.RUnlock()

	if s.TotalRuns > 0 {
		s.AvgDuration = s.totalDuration / float64(s.TotalRuns)
	}
	s.Uptime = time.Since(m.startTime).Seconds()
	return s
}
