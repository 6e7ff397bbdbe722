package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/guardtax/internal/ports"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient("anthropic", ClientConfig{Model: "claude-sonnet-4-5"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyAPIKey)
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient("nonsense", ClientConfig{APIKey: "k", Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestNewClient_MiddlewareOrder(t *testing.T) {
	mock := NewMockCoreLLM()
	RegisterProviderFactory("mock-order", func(ClientConfig) (CoreLLM, error) { return mock, nil })

	var order []string
	tag := func(name string) Middleware {
		return func(next CoreLLM) CoreLLM {
			return &taggedLLM{next: next, name: name, order: &order}
		}
	}

	client, err := NewClient("mock-order", ClientConfig{
		APIKey:     "k",
		Model:      "m",
		Middleware: []Middleware{tag("outer"), tag("inner")},
	})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order, "first listed middleware should be outermost")
}

type taggedLLM struct {
	next  CoreLLM
	name  string
	order *[]string
}

func (t *taggedLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	*t.order = append(*t.order, t.name)
	return t.next.DoRequest(ctx, prompt, opts)
}
func (t *taggedLLM) GetModel() string  { return t.next.GetModel() }
func (t *taggedLLM) SetModel(m string) { t.next.SetModel(m) }

func TestParseModelRef(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ModelRef
		wantErr bool
	}{
		{name: "anthropic", input: "anthropic/claude-sonnet-4-5", want: ModelRef{Provider: "anthropic", Model: "claude-sonnet-4-5"}},
		{name: "openai", input: "openai/gpt-5", want: ModelRef{Provider: "openai", Model: "gpt-5"}},
		{name: "missing slash", input: "gpt-5", wantErr: true},
		{name: "unknown provider", input: "acme/model", wantErr: true},
		{name: "empty model", input: "openai/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseModelRef(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 3, EstimateTokens("twelve chars"))
}

func TestClient_TranslatesProviderErrors(t *testing.T) {
	tests := []struct {
		name      string
		coreErr   error
		sentinel  error
		retryable bool
	}{
		{
			name:      "rate limit",
			coreErr:   &ProviderError{Type: ErrorTypeRateLimit, Provider: "anthropic", StatusCode: 429},
			sentinel:  ports.ErrRateLimited,
			retryable: true,
		},
		{
			name:      "server error",
			coreErr:   &ProviderError{Type: ErrorTypeServerError, Provider: "openai", StatusCode: 503},
			sentinel:  ports.ErrServiceUnavailable,
			retryable: true,
		},
		{
			name:      "timeout",
			coreErr:   &ProviderError{Type: ErrorTypeTimeout, Provider: "google"},
			sentinel:  ports.ErrTimeout,
			retryable: true,
		},
		{
			name:      "authentication",
			coreErr:   &ProviderError{Type: ErrorTypeAuthentication, Provider: "anthropic", StatusCode: 401},
			sentinel:  ports.ErrAuthenticationFailed,
			retryable: false,
		},
		{
			name:      "empty response",
			coreErr:   ErrEmptyResponse,
			sentinel:  ports.ErrInvalidResponse,
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockCoreLLM()
			mock.Error = tt.coreErr
			client := &Client{core: mock}

			_, err := client.Complete(context.Background(), "hi", nil)
			require.Error(t, err)

			var le *ports.LLMError
			require.ErrorAs(t, err, &le, "port boundary should wrap in LLMError")
			assert.Equal(t, "complete", le.Operation)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.retryable, le.IsRetryable())
		})
	}
}

func TestClient_PassesThroughUnclassifiedErrors(t *testing.T) {
	mock := NewMockCoreLLM()
	mock.Error = errors.New("wire snapped")
	client := &Client{core: mock}

	_, _, _, err := client.CompleteWithUsage(context.Background(), "hi", nil)
	require.Error(t, err)

	var le *ports.LLMError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "complete_with_usage", le.Operation)
	assert.False(t, le.IsRetryable())
	assert.Contains(t, err.Error(), "wire snapped")
}
