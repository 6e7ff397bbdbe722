// Package llm provides a unified interface for the LLM providers the
// harness talks to, with middleware support for rate limiting, retries,
// timeouts, metrics, and tracing.
//
// Mechanisms and the judge never construct provider SDK clients
// directly; they hold a ports.LLMClient built here, so cross-cutting
// concerns are composed once and apply uniformly to every condition
// being measured.
//
// Basic usage:
//
//	client, err := llm.NewClient("anthropic", llm.ClientConfig{
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-sonnet-4-5",
//	    Middleware: []llm.Middleware{
//	        llm.RateLimitMiddleware(10, 20),
//	        llm.RetryMiddleware(3, time.Second, 30*time.Second),
//	        llm.TimeoutMiddleware(60 * time.Second),
//	    },
//	})
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ahrav/guardtax/internal/ports"
)

// CoreLLM defines the minimal interface that LLM providers must implement.
// Middleware wraps any conforming implementation, so providers stay free
// of cross-cutting logic.
type CoreLLM interface {
	// DoRequest sends a prompt to the provider and returns the response
	// text plus input and output token counts as reported by the API.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	// GetModel returns the currently configured model name.
	GetModel() string

	// SetModel updates the model used for subsequent requests.
	SetModel(model string)
}

// Middleware wraps a CoreLLM implementation to add cross-cutting
// functionality. Middleware composes without modifying provider logic.
type Middleware func(CoreLLM) CoreLLM

// ClientConfig holds all configuration options for creating an LLM client.
type ClientConfig struct {
	// APIKey authenticates requests to the provider.
	APIKey string

	// Model specifies which model to use for requests.
	Model string

	// BaseURL overrides the provider's default endpoint; empty uses the
	// default.
	BaseURL string

	// Middleware is applied in order; the first entry is outermost.
	Middleware []Middleware
}

// Client implements ports.LLMClient by wrapping a provider-specific
// CoreLLM with the configured middleware chain. Provider failures are
// translated into the port error vocabulary at this boundary, so
// callers never see SDK-specific error types.
type Client struct {
	core CoreLLM
}

var _ ports.LLMClient = (*Client)(nil)

// NewClient creates an LLM client for the named provider type
// ("anthropic", "openai", or "google") with the middleware chain
// assembled and ready.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}

	factory, ok := providerFactories[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", providerType, err)
	}

	// Apply middleware in reverse order so the first listed is outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	return &Client{core: core}, nil
}

// Complete sends a prompt and returns the response text, discarding
// usage data.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.core.DoRequest(ctx, prompt, options)
	if err != nil {
		return "", c.portError("complete", err)
	}
	return response, nil
}

// CompleteWithUsage sends a prompt and returns the response text with
// input and output token counts.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	response, tokensIn, tokensOut, err := c.core.DoRequest(ctx, prompt, options)
	if err != nil {
		return "", 0, 0, c.portError("complete_with_usage", err)
	}
	return response, tokensIn, tokensOut, nil
}

// portError wraps a request failure in ports.LLMError, tagging
// classified provider failures with the matching port sentinel so
// callers can test retryability with errors.Is alone.
func (c *Client) portError(operation string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		if sentinel := portSentinel(pe.Type); sentinel != nil {
			err = fmt.Errorf("%w: %w", sentinel, err)
		}
	} else if errors.Is(err, ErrEmptyResponse) || errors.Is(err, ErrNoResponseChoice) {
		err = fmt.Errorf("%w: %w", ports.ErrInvalidResponse, err)
	}
	return ports.NewLLMError(c.GetModel(), operation, err)
}

// portSentinel maps a classified provider error type to the port-level
// sentinel, or nil when no sentinel applies.
func portSentinel(t ErrorType) error {
	switch t {
	case ErrorTypeRateLimit:
		return ports.ErrRateLimited
	case ErrorTypeServerError:
		return ports.ErrServiceUnavailable
	case ErrorTypeTimeout:
		return ports.ErrTimeout
	case ErrorTypeAuthentication:
		return ports.ErrAuthenticationFailed
	case ErrorTypeBadRequest, ErrorTypeNotFound:
		return ports.ErrInvalidResponse
	}
	return nil
}

// GetModel returns the configured model name from the underlying provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// EstimateTokens approximates tokens as one per four characters, a
// reasonable heuristic for English text. Providers fall back to it when
// a response carries no usage block.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// ProviderFactory creates a CoreLLM implementation from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var providerFactories = map[string]ProviderFactory{}

// RegisterProviderFactory registers a custom provider factory, enabling
// extension without modifying this package.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}

// ModelRef is a parsed "provider/model" reference as written in run
// configuration, e.g. "anthropic/claude-sonnet-4-5" or "openai/gpt-5".
type ModelRef struct {
	Provider string
	Model    string
}

// ParseModelRef splits a "provider/model" string. The model part may
// itself contain slashes (some providers version models that way).
func ParseModelRef(s string) (ModelRef, error) {
	provider, model, ok := strings.Cut(s, "/")
	if !ok || provider == "" || model == "" {
		return ModelRef{}, fmt.Errorf("model reference must be provider/model, got %q", s)
	}
	if _, known := providerFactories[provider]; !known {
		return ModelRef{}, fmt.Errorf("unknown provider %q in model reference %q", provider, s)
	}
	return ModelRef{Provider: provider, Model: model}, nil
}
