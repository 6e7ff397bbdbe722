// Package metrics provides Prometheus-backed collection of run
// telemetry: trial throughput, mechanism latency, token consumption,
// and LLM request outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/guardtax/internal/ports"
)

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. Metrics are partitioned by mechanism so a dashboard can
// compare guarded and unguarded conditions live during a run.
type PrometheusMetrics struct {
	trialsTotal      *prometheus.CounterVec
	trialLatency     *prometheus.HistogramVec
	tokensTotal      *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsTotal    *prometheus.CounterVec
	inFlightTrials   *prometheus.GaugeVec
	generalCounters  *prometheus.CounterVec
	generalGauges    *prometheus.GaugeVec
	generalHistogram *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and
// registers all metrics in the global Prometheus registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		trialsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trials_total",
				Help: "Total trials completed, by mechanism and outcome.",
			},
			[]string{"mechanism", "status"},
		),
		trialLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trial_latency_seconds",
				Help:    "End-to-end trial latency by mechanism.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"mechanism"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trial_tokens_total",
				Help: "Tokens consumed by trials, by mechanism and direction.",
			},
			[]string{"mechanism", "token_type"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of individual LLM provider requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "status"},
		),
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total LLM provider requests issued.",
			},
			[]string{"model", "status"},
		),
		inFlightTrials: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trials_in_flight",
				Help: "Trials currently executing, by mechanism.",
			},
			[]string{"mechanism"},
		),
		generalCounters: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "runner_events_total",
				Help: "Total occurrences of uncategorized runner events.",
			},
			[]string{"event", "mechanism"},
		),
		generalGauges: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "runner_state",
				Help: "Current runner state values.",
			},
			[]string{"metric", "mechanism"},
		),
		generalHistogram: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "runner_operation_duration_seconds",
				Help:    "Duration of uncategorized runner operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "mechanism"},
		),
	}
}

func mechanismLabel(labels map[string]string) string {
	if m, ok := labels["mechanism"]; ok {
		return m
	}
	return "unknown"
}

// RecordLatency records operation latency. Trial latencies route to the
// per-mechanism histogram; everything else lands in the general
// operation histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string, duration time.Duration, labels map[string]string,
) {
	mechanism := mechanismLabel(labels)
	switch operation {
	case "trial":
		pm.trialLatency.WithLabelValues(mechanism).Observe(duration.Seconds())
	case "llm_request":
		pm.requestDuration.WithLabelValues(labels["model"], labels["status"]).Observe(duration.Seconds())
	default:
		pm.generalHistogram.WithLabelValues(operation, mechanism).Observe(duration.Seconds())
	}
}

// RecordCounter increments the counter identified by metric.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	mechanism := mechanismLabel(labels)
	switch metric {
	case "trials_total":
		pm.trialsTotal.WithLabelValues(mechanism, labels["status"]).Add(value)
	case "trial_tokens_total":
		pm.tokensTotal.WithLabelValues(mechanism, labels["token_type"]).Add(value)
	case "llm_requests_total":
		pm.requestsTotal.WithLabelValues(labels["model"], labels["status"]).Add(value)
	case "llm_tokens_total":
		pm.tokensTotal.WithLabelValues(mechanism, labels["token_type"]).Add(value)
	default:
		pm.generalCounters.WithLabelValues(metric, mechanism).Add(value)
	}
}

// RecordGauge sets the gauge identified by metric.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	mechanism := mechanismLabel(labels)
	if metric == "trials_in_flight" {
		pm.inFlightTrials.WithLabelValues(mechanism).Set(value)
		return
	}
	pm.generalGauges.WithLabelValues(metric, mechanism).Set(value)
}

// RecordHistogram records a raw value in the histogram identified by
// metric.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	if metric == "llm_request_duration_seconds" {
		pm.requestDuration.WithLabelValues(labels["model"], labels["status"]).Observe(value)
		return
	}
	pm.generalHistogram.WithLabelValues(metric, mechanismLabel(labels)).Observe(value)
}
