package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"
)

// GoogleDefaultModel is used when no model is configured.
const GoogleDefaultModel = "gemini-2.0-flash"

func init() {
	RegisterProviderFactory("google", newGoogleProvider)
}

// googleProvider implements CoreLLM for Google's Gemini API.
// Gemini has no separate system role, so system prompts are folded into
// the user content.
type googleProvider struct {
	client *genai.Client
	mu     sync.RWMutex
	model  string
}

func newGoogleProvider(config ClientConfig) (CoreLLM, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	model := config.Model
	if model == "" {
		model = GoogleDefaultModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &googleProvider{client: client, model: model}, nil
}

// DoRequest sends a generation request to the Gemini API.
func (p *googleProvider) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	cfg := parseRequestOptions(opts, p.GetModel())

	finalPrompt := prompt
	if cfg.system != "" {
		finalPrompt = fmt.Sprintf("System: %s\n\nUser: %s", cfg.system, prompt)
	}
	contents := []*genai.Content{genai.NewContentFromText(finalPrompt, genai.RoleUser)}

	genConfig := &genai.GenerateContentConfig{}
	if cfg.temperature != nil {
		genConfig.Temperature = genai.Ptr(float32(*cfg.temperature))
	}
	if cfg.maxTokens > 0 && cfg.maxTokens <= math.MaxInt32 {
		genConfig.MaxOutputTokens = int32(cfg.maxTokens)
	}

	resp, err := p.client.Models.GenerateContent(ctx, cfg.model, contents, genConfig)
	if err != nil {
		return "", 0, 0, p.wrapError(err)
	}

	content := resp.Text()
	if content == "" {
		return "", 0, 0, ErrEmptyResponse
	}

	tokensIn, tokensOut := 0, 0
	if usage := resp.UsageMetadata; usage != nil {
		tokensIn = int(usage.PromptTokenCount)
		tokensOut = int(usage.CandidatesTokenCount)
	}
	tokensIn = tokenCountOrEstimate(tokensIn, finalPrompt)
	tokensOut = tokenCountOrEstimate(tokensOut, content)

	return content, tokensIn, tokensOut, nil
}

func (p *googleProvider) wrapError(err error) error {
	if ctxErr := wrapContextError("google", err); ctxErr != nil {
		return ctxErr
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" && len(apiErr.Errors) > 0 {
			message = apiErr.Errors[0].Message
		}
		return &ProviderError{
			Type:         classifyStatus(apiErr.Code),
			Provider:     "google",
			StatusCode:   apiErr.Code,
			Message:      message,
			WrappedError: err,
		}
	}

	return &ProviderError{Type: ErrorTypeUnknown, Provider: "google", Message: "request failed", WrappedError: err}
}

// GetModel returns the currently configured Gemini model name.
func (p *googleProvider) GetModel() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.model
}

// SetModel updates the Gemini model for subsequent requests.
func (p *googleProvider) SetModel(m string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.model = m
}
