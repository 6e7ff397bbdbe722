package ports

import (
	"context"
	"time"
)

// LLMClient defines the interface for interacting with Large Language
// Model providers.
// Implementations should handle provider-specific details like authentication,
// request formatting, and response parsing.
type LLMClient interface {
	// Complete sends a completion request to the LLM provider.
	// It returns the generated text and any error encountered.
	//
	// The options map allows flexibility for different providers without
	// changing the interface. Common options include:
	//   - "temperature": float64 (0.0-1.0)
	//   - "max_tokens": int
	//   - "model": string (specific model version)
	//   - "system": string (system prompt, where supported)
	Complete(ctx context.Context, prompt string, options map[string]any) (string, error)

	// CompleteWithUsage sends a completion request and additionally
	// returns input and output token counts. Mechanisms use this form:
	// token accounting is part of the tax being measured, so the counts
	// must come from the provider when available.
	CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (response string, tokensIn, tokensOut int, err error)

	// GetModel returns the model identifier being used by this client.
	GetModel() string
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus, OpenTelemetry, or custom monitoring solutions.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like completed trials or errors.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like in-flight trial count.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like latencies or
	// token counts.
	RecordHistogram(metric string, value float64, labels map[string]string)
}
