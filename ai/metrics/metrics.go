// Package metrics provides Prometheus metrics export for the
// generation pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter exports generation metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	generationRequests *prometheus.CounterVec
	generationLatency  *prometheus.HistogramVec
	generationActive   prometheus.Gauge
	cancellations      prometheus.Counter

	tokensUsed *prometheus.CounterVec
	costUsd    *prometheus.CounterVec

	enrichments *prometheus.CounterVec
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
		LatencyBuckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}
}

// NewExporter creates a metrics exporter.
func NewExporter(cfg Config) *Exporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &Exporter{registry: registry}

	e.generationRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftchat",
			Subsystem: "ai",
			Name:      "generation_requests_total",
			Help:      "Total number of generation requests",
		},
		[]string{"modality", "status"},
	)

	e.generationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "driftchat",
			Subsystem: "ai",
			Name:      "generation_latency_seconds",
			Help:      "End-to-end generation latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"modality"},
	)

	e.generationActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "driftchat",
			Subsystem: "ai",
			Name:      "generation_active",
			Help:      "Number of in-flight generations",
		},
	)

	e.cancellations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "driftchat",
			Subsystem: "ai",
			Name:      "generation_cancellations_total",
			Help:      "Total number of user-initiated cancellations",
		},
	)

	e.tokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftchat",
			Subsystem: "ai",
			Name:      "tokens_total",
			Help:      "Total tokens consumed",
		},
		[]string{"model", "kind"},
	)

	e.costUsd = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftchat",
			Subsystem: "ai",
			Name:      "cost_usd_total",
			Help:      "Total generation cost in USD",
		},
		[]string{"model"},
	)

	e.enrichments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftchat",
			Subsystem: "ai",
			Name:      "enrichments_total",
			Help:      "Total context enrichment attempts",
		},
		[]string{"kind", "status"},
	)

	registry.MustRegister(
		e.generationRequests,
		e.generationLatency,
		e.generationActive,
		e.cancellations,
		e.tokensUsed,
		e.costUsd,
		e.enrichments,
	)

	return e
}

// Handler returns the /metrics HTTP handler.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// GenerationStarted records the start of a generation run.
func (e *Exporter) GenerationStarted() {
	e.generationActive.Inc()
}

// GenerationFinished records the end of a generation run.
func (e *Exporter) GenerationFinished(modality, status string, elapsed time.Duration) {
	e.generationActive.Dec()
	e.generationRequests.WithLabelValues(modality, status).Inc()
	e.generationLatency.WithLabelValues(modality).Observe(elapsed.Seconds())
}

// Cancelled records a user-initiated cancellation.
func (e *Exporter) Cancelled() {
	e.cancellations.Inc()
}

// TokensUsed records token consumption for one call.
func (e *Exporter) TokensUsed(model string, prompt, completion int) {
	e.tokensUsed.WithLabelValues(model, "prompt").Add(float64(prompt))
	e.tokensUsed.WithLabelValues(model, "completion").Add(float64(completion))
}

// CostAdded records generation spend.
func (e *Exporter) CostAdded(model string, usd float64) {
	e.costUsd.WithLabelValues(model).Add(usd)
}

// Enrichment records one enrichment attempt outcome.
func (e *Exporter) Enrichment(kind, status string) {
	e.enrichments.WithLabelValues(kind, status).Inc()
}
