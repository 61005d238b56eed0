package providers

import (
	"context"
	"fmt"
	"time"
)

// ReviewRequest contains the two prompt blocks sent to a completion service.
type ReviewRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
	// JSONMode asks services that support it to constrain output to a
	// single JSON object.
	JSONMode bool
}

// ReviewResponse contains the raw response from a completion service.
type ReviewResponse struct {
	Content    string
	TokensUsed int
}

// Reviewer is the completion-service abstraction.
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error)
	Name() string
}

// Options configures a provider client.
type Options struct {
	// MaxRetries bounds retries of rate-limited or 5xx responses. Zero,
	// the default, disables retries.
	MaxRetries int
	// BaseURL overrides the service endpoint.
	BaseURL string
	// Timeout bounds a single HTTP round-trip. Zero means no timeout.
	Timeout time.Duration
}

// New creates a provider by name.
func New(provider, model string, opts Options) (Reviewer, error) {
	switch provider {
	case "anthropic":
		return NewAnthropic(model, opts)
	case "openai":
		return NewOpenAI(model, opts)
	case "gemini", "google":
		return NewGemini(model, opts)
	case "ollama", "lmstudio":
		return NewOllama(model, opts)
	case "worker":
		return NewWorker(model, opts)
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

func defaultMaxTokens(n int) int {
	if n == 0 {
		return 4096
	}
	return n
}
