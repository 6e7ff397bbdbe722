package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/guardtax/internal/ports"
)

// metricsLLM records request latency, token usage, and error rates per
// provider call, feeding the same collector the runner uses for trial
// metrics.
type metricsLLM struct {
	next      CoreLLM
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that collects request metrics.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreLLM) CoreLLM {
		return &metricsLLM{next: next, collector: collector}
	}
}

// DoRequest executes the request while recording latency and token
// counters labeled by model and outcome status.
func (m *metricsLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	start := time.Now()
	response, tokensIn, tokensOut, err := m.next.DoRequest(ctx, prompt, opts)

	if m.collector == nil {
		return response, tokensIn, tokensOut, err
	}

	labels := map[string]string{
		"model":  m.next.GetModel(),
		"status": statusLabel(ctx, err),
	}
	m.collector.RecordHistogram("llm_request_duration_seconds", time.Since(start).Seconds(), labels)
	m.collector.RecordCounter("llm_requests_total", 1, labels)

	if err == nil {
		m.collector.RecordCounter("llm_tokens_total", float64(tokensIn),
			map[string]string{"model": labels["model"], "token_type": "input"})
		m.collector.RecordCounter("llm_tokens_total", float64(tokensOut),
			map[string]string{"model": labels["model"], "token_type": "output"})
	}

	return response, tokensIn, tokensOut, err
}

func statusLabel(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// GetModel returns the model name from the wrapped implementation.
func (m *metricsLLM) GetModel() string { return m.next.GetModel() }

// SetModel updates the model name in the wrapped implementation.
func (m *metricsLLM) SetModel(model string) { m.next.SetModel(model) }
