// Package metrics provides Prometheus metrics export for the memory engine.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports engine metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	// Ingress metrics
	ingestRequests *prometheus.CounterVec
	recallRequests *prometheus.CounterVec
	recallLatency  prometheus.Histogram

	// Fact lifecycle metrics
	factsExtracted  *prometheus.CounterVec
	factsRefreshed  prometheus.Counter
	factsSuperseded prometheus.Counter

	// Job fabric metrics
	jobDuration *prometheus.HistogramVec
	queueDepth  prometheus.Gauge
}

// Config configures the exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default exporter configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}
}

// NewExporter creates a new Prometheus metrics exporter.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.ingestRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mnemo",
			Subsystem: "ingest",
			Name:      "requests_total",
			Help:      "Total number of ingest requests",
		},
		[]string{"status"},
	)

	e.recallRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mnemo",
			Subsystem: "recall",
			Name:      "requests_total",
			Help:      "Total number of recall requests",
		},
		[]string{"status"},
	)

	e.recallLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mnemo",
			Subsystem: "recall",
			Name:      "latency_seconds",
			Help:      "Recall request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.factsExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mnemo",
			Subsystem: "facts",
			Name:      "extracted_total",
			Help:      "Total number of facts inserted by extraction",
		},
		[]string{"category"},
	)

	e.factsRefreshed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mnemo",
			Subsystem: "facts",
			Name:      "refreshed_total",
			Help:      "Total number of duplicate detections that refreshed an existing fact",
		},
	)

	e.factsSuperseded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mnemo",
			Subsystem: "facts",
			Name:      "superseded_total",
			Help:      "Total number of facts superseded by newer slot occupants",
		},
	)

	e.jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mnemo",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Job execution duration in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"kind", "status"},
	)

	e.queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mnemo",
			Subsystem: "jobs",
			Name:      "queue_depth",
			Help:      "Number of pending jobs in the queue",
		},
	)

	registry.MustRegister(
		e.ingestRequests,
		e.recallRequests,
		e.recallLatency,
		e.factsExtracted,
		e.factsRefreshed,
		e.factsSuperseded,
		e.jobDuration,
		e.queueDepth,
	)
	return e
}

// Handler returns the HTTP handler serving the text exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// RecordIngest counts one ingest request.
func (e *Exporter) RecordIngest(status string) {
	e.ingestRequests.WithLabelValues(status).Inc()
}

// RecordRecall counts one recall request and its latency.
func (e *Exporter) RecordRecall(status string, elapsed time.Duration) {
	e.recallRequests.WithLabelValues(status).Inc()
	e.recallLatency.Observe(elapsed.Seconds())
}

// RecordExtraction counts the outcome of one extraction commit.
func (e *Exporter) RecordExtraction(insertedByCategory map[string]int, refreshed, superseded int) {
	for category, n := range insertedByCategory {
		e.factsExtracted.WithLabelValues(category).Add(float64(n))
	}
	e.factsRefreshed.Add(float64(refreshed))
	e.factsSuperseded.Add(float64(superseded))
}

// RecordJob counts one finished job.
func (e *Exporter) RecordJob(kind, status string, elapsed time.Duration) {
	e.jobDuration.WithLabelValues(kind, status).Observe(elapsed.Seconds())
}

// SetQueueDepth publishes the current pending job count.
func (e *Exporter) SetQueueDepth(depth int) {
	e.queueDepth.Set(float64(depth))
}

var (
	defaultExporter *Exporter
	defaultOnce     sync.Once
)

// Default returns the process-wide exporter, created on first use.
func Default() *Exporter {
	defaultOnce.Do(func() {
		defaultExporter = NewExporter(DefaultConfig())
	})
	return defaultExporter
}
