package llm

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/mkravets/tectonic/internal/model"
)

// Provider defines the interface for generation providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate runs one structured-generation call. The response is raw text
	// expected to contain a JSON object; callers decode it with the
	// structured package.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// GenerateRequest contains the input for one generation call
type GenerateRequest struct {
	// Prompt is the full natural-language prompt
	Prompt string

	// System is the system instruction (provider default used when empty)
	System string

	// Temperature is the sampling temperature. Zero means deterministic;
	// self-consistency sampling passes a shared non-zero value.
	Temperature float64

	// Model overrides the configured model for this call
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// GenerateResponse contains the provider's raw output
type GenerateResponse struct {
	// Text is the raw generated text (JSON is extracted from it downstream)
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds generation provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout bounds every call's wall clock. A timed-out call is a
	// generation failure, never fatal to the run.
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Model:     "",
		Timeout:   60,
		MaxTokens: 2000,
	}
}

const defaultSystemPrompt = "You are an analyst that extracts structured signals from text. " +
	"Respond with exactly one JSON object matching the requested shape and nothing else."

// Throttled wraps a provider with a token-bucket rate limiter so concurrent
// pipeline stages cannot flood the upstream API
type Throttled struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewThrottled creates a rate-limited wrapper around a provider
func NewThrottled(inner Provider, requestsPerSecond float64, burst int) *Throttled {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2
	}
	if burst <= 0 {
		burst = 1
	}
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Name returns the wrapped provider's name
func (t *Throttled) Name() string {
	return t.inner.Name()
}

// Generate waits for rate limit clearance, then delegates
func (t *Throttled) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.inner.Generate(ctx, req)
}

// IsAvailable delegates without consuming rate budget
func (t *Throttled) IsAvailable(ctx context.Context) bool {
	return t.inner.IsAvailable(ctx)
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(mc model.LLMConfig, httpCfg model.HTTPConfig) Config {
	return Config{
		Provider:   mc.Provider,
		Model:      mc.Model,
		APIKey:     mc.APIKey,
		BaseURL:    mc.BaseURL,
		Timeout:    int(mc.Timeout / time.Second),
		MaxTokens:  mc.MaxTokens,
		HTTPProxy:  httpCfg.HTTPProxy,
		HTTPSProxy: httpCfg.HTTPSProxy,
		NoProxy:    httpCfg.NoProxy,
	}
}
