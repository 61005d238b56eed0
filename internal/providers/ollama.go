package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama implements the Reviewer interface for Ollama and LM Studio
// through their OpenAI-compatible endpoint.
type Ollama struct {
	apiKey     string
	model      string
	baseURL    string
	maxRetries int
	client     *http.Client
}

// NewOllama creates a new Ollama provider. No API key is required by default.
func NewOllama(model string, opts Options) (*Ollama, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}

	baseURL = strings.TrimRight(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1/chat/completions")
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	return &Ollama{
		apiKey:     os.Getenv("TONECHECK_OLLAMA_API_KEY"),
		model:      model,
		baseURL:    baseURL + "/v1/chat/completions",
		maxRetries: opts.MaxRetries,
		client:     newHTTPClient(opts.Timeout),
	}, nil
}

func (o *Ollama) Name() string { return "ollama" }

func (o *Ollama) Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error) {
	payload, err := json.Marshal(newChatRequest(o.model, req))
	if err != nil {
		return ReviewResponse{}, fmt.Errorf("marshaling request: %w", err)
	}

	headers := map[string]string{}
	if o.apiKey != "" {
		headers["Authorization"] = "Bearer " + o.apiKey
	}

	var resp ReviewResponse
	err = retryWithBackoff(ctx, o.maxRetries, func() error {
		body, err := postJSON(ctx, o.client, o.baseURL, headers, payload)
		if err != nil {
			return err
		}
		resp, err = parseChatResponse(body)
		return err
	})
	return resp, err
}
