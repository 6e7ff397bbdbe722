package llm

import (
	"context"
	"errors"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIDefaultModel is used when no model is configured.
const OpenAIDefaultModel = "gpt-4o-mini"

func init() {
	RegisterProviderFactory("openai", newOpenAIProvider)
}

// openAIProvider implements CoreLLM for OpenAI's chat completions API.
// It is the provider backing the judge by default.
type openAIProvider struct {
	client *openai.Client
	mu     sync.RWMutex
	model  string
}

func newOpenAIProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = OpenAIDefaultModel
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &openAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

// DoRequest sends a chat completion request, mapping the optional
// "system" and "response_format" options onto the OpenAI request shape.
func (p *openAIProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	cfg := parseRequestOptions(opts, p.GetModel())

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if cfg.system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: cfg.system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:     cfg.model,
		Messages:  messages,
		MaxTokens: cfg.maxTokens,
	}
	if cfg.temperature != nil {
		req.Temperature = float32(*cfg.temperature)
	}
	if cfg.jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", 0, 0, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, 0, ErrNoResponseChoice
	}

	content := resp.Choices[0].Message.Content
	tokensIn := tokenCountOrEstimate(resp.Usage.PromptTokens, prompt)
	tokensOut := tokenCountOrEstimate(resp.Usage.CompletionTokens, content)

	return content, tokensIn, tokensOut, nil
}

func (p *openAIProvider) wrapError(err error) error {
	if ctxErr := wrapContextError("openai", err); ctxErr != nil {
		return ctxErr
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = "unknown error"
		}
		return &ProviderError{
			Type:         classifyStatus(apiErr.HTTPStatusCode),
			Provider:     "openai",
			StatusCode:   apiErr.HTTPStatusCode,
			Message:      message,
			WrappedError: err,
		}
	}

	return &ProviderError{Type: ErrorTypeUnknown, Provider: "openai", Message: "request failed", WrappedError: err}
}

// GetModel returns the currently configured OpenAI model name.
func (p *openAIProvider) GetModel() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// SetModel updates the OpenAI model for subsequent requests.
func (p *openAIProvider) SetModel(m string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.model = m
}
