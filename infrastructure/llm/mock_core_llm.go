package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockCoreLLM is a configurable CoreLLM for tests. It gives precise
// control over responses, timing, and failure patterns, and tracks the
// calls it receives so middleware behavior can be asserted.
type MockCoreLLM struct {
	mu sync.Mutex

	// Response configuration.
	Response      string
	TokensIn      int
	TokensOut     int
	Error         error
	Model         string
	ResponseDelay time.Duration

	// FailUntilAttempt fails the first N calls, then succeeds.
	FailUntilAttempt int

	// Responses, when non-empty, is consumed one entry per call after
	// which Response is returned. Useful for reask-loop tests.
	Responses []string

	// Tracking.
	CallCount  int
	LastPrompt string
	LastOpts   map[string]any
	Prompts    []string
}

// NewMockCoreLLM creates a mock with default successful behavior.
func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		Response:  "test response",
		TokensIn:  10,
		TokensOut: 20,
		Model:     "test-model",
	}
}

// DoRequest implements CoreLLM with the configured behavior.
func (m *MockCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	m.CallCount++
	call := m.CallCount
	m.LastPrompt = prompt
	m.LastOpts = opts
	m.Prompts = append(m.Prompts, prompt)
	delay := m.ResponseDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUntilAttempt > 0 && call <= m.FailUntilAttempt {
		if m.Error != nil {
			return "", 0, 0, m.Error
		}
		return "", 0, 0, errors.New("simulated failure")
	}
	if m.Error != nil && m.FailUntilAttempt == 0 {
		return "", 0, 0, m.Error
	}

	response := m.Response
	if len(m.Responses) > 0 {
		response = m.Responses[0]
		m.Responses = m.Responses[1:]
	}

	return response, m.TokensIn, m.TokensOut, nil
}

// GetCallCount returns how many times DoRequest has been invoked.
func (m *MockCoreLLM) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// GetModel returns the configured mock model name.
func (m *MockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

// SetModel updates the mock model name.
func (m *MockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Model = model
}
