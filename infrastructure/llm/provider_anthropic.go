package llm

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicDefaultModel is used when no model is configured.
const AnthropicDefaultModel = "claude-sonnet-4-5"

func init() {
	RegisterProviderFactory("anthropic", newAnthropicProvider)
}

// anthropicProvider implements CoreLLM for Anthropic's Messages API.
type anthropicProvider struct {
	client anthropic.Client
	mu     sync.RWMutex
	model  string
}

func newAnthropicProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = AnthropicDefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &anthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

// DoRequest sends a request to the Messages API, tracking token usage
// from the response's usage block.
func (p *anthropicProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	cfg := parseRequestOptions(opts, p.GetModel())

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.model),
		MaxTokens: int64(cfg.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if cfg.temperature != nil {
		params.Temperature = anthropic.Float(*cfg.temperature)
	}
	if cfg.system != "" {
		params.System = []anthropic.TextBlockParam{{Text: cfg.system}}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", 0, 0, p.wrapError(err)
	}

	var responseText strings.Builder
	for _, block := range message.Content {
		switch content := block.AsAny().(type) {
		case anthropic.TextBlock:
			responseText.WriteString(content.Text)
		}
	}

	response := responseText.String()
	if response == "" {
		return "", 0, 0, ErrEmptyResponse
	}

	tokensIn := tokenCountOrEstimate(int(message.Usage.InputTokens), prompt)
	tokensOut := tokenCountOrEstimate(int(message.Usage.OutputTokens), response)

	return response, tokensIn, tokensOut, nil
}

func (p *anthropicProvider) wrapError(err error) error {
	if ctxErr := wrapContextError("anthropic", err); ctxErr != nil {
		return ctxErr
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Type:         classifyStatus(apiErr.StatusCode),
			Provider:     "anthropic",
			StatusCode:   apiErr.StatusCode,
			Message:      "request failed",
			WrappedError: err,
		}
	}

	return &ProviderError{Type: ErrorTypeUnknown, Provider: "anthropic", Message: "request failed", WrappedError: err}
}

// GetModel returns the currently configured Anthropic model name.
func (p *anthropicProvider) GetModel() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// SetModel updates the Anthropic model for subsequent requests.
func (p *anthropicProvider) SetModel(m string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.model = m
}

// tokenCountOrEstimate prefers the API's own usage figure, estimating
// only when the response lacked one.
func tokenCountOrEstimate(apiTokens int, text string) int {
	if apiTokens > 0 {
		return apiTokens
	}
	return EstimateTokens(text)
}
