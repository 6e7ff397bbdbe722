package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/guardtax/internal/ports"
)

// testPrometheusMetrics is shared across tests; creating more than one
// instance would panic on duplicate registration in the global
// Prometheus registry.
var testPrometheusMetrics *PrometheusMetrics

func init() {
	testPrometheusMetrics = NewPrometheusMetrics()
}

func TestNewPrometheusMetrics(t *testing.T) {
	pm := testPrometheusMetrics
	require.NotNil(t, pm)

	assert.NotNil(t, pm.trialsTotal)
	assert.NotNil(t, pm.trialLatency)
	assert.NotNil(t, pm.tokensTotal)
	assert.NotNil(t, pm.requestDuration)
	assert.NotNil(t, pm.requestsTotal)
	assert.NotNil(t, pm.inFlightTrials)

	var _ ports.MetricsCollector = pm
}

func TestPrometheusMetrics_RecordCounter(t *testing.T) {
	pm := testPrometheusMetrics

	tests := []struct {
		name   string
		metric string
		labels map[string]string
	}{
		{"trial counter", "trials_total", map[string]string{"mechanism": "control", "status": "success"}},
		{"token counter", "trial_tokens_total", map[string]string{"mechanism": "schemaguard", "token_type": "input"}},
		{"llm request counter", "llm_requests_total", map[string]string{"model": "gpt-4o-mini", "status": "success"}},
		{"llm token counter", "llm_tokens_total", map[string]string{"model": "gpt-4o-mini", "token_type": "output"}},
		{"unknown metric routes to general counter", "something_else", map[string]string{"mechanism": "control"}},
		{"nil labels", "trials_total", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				pm.RecordCounter(tt.metric, 1.0, tt.labels)
			})
		})
	}
}

func TestPrometheusMetrics_RecordLatency(t *testing.T) {
	pm := testPrometheusMetrics

	tests := []struct {
		name      string
		operation string
		labels    map[string]string
	}{
		{"trial latency", "trial", map[string]string{"mechanism": "dialogguard"}},
		{"llm request latency", "llm_request", map[string]string{"model": "gpt-4o-mini", "status": "success"}},
		{"general operation", "corpus_load", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				pm.RecordLatency(tt.operation, 150*time.Millisecond, tt.labels)
			})
		})
	}
}

func TestPrometheusMetrics_RecordGauge(t *testing.T) {
	pm := testPrometheusMetrics

	assert.NotPanics(t, func() {
		pm.RecordGauge("trials_in_flight", 8, map[string]string{"mechanism": "control"})
	})
	assert.NotPanics(t, func() {
		pm.RecordGauge("corpus_size", 40, nil)
	})
}

func TestPrometheusMetrics_RecordHistogram(t *testing.T) {
	pm := testPrometheusMetrics

	assert.NotPanics(t, func() {
		pm.RecordHistogram("llm_request_duration_seconds", 0.42,
			map[string]string{"model": "claude-sonnet-4-5", "status": "success"})
	})
	assert.NotPanics(t, func() {
		pm.RecordHistogram("reask_count", 2, map[string]string{"mechanism": "schemaguard"})
	})
}
