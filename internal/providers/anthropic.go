package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
)

// Anthropic implements the Reviewer interface for Anthropic's API.
type Anthropic struct {
	apiKey     string
	model      string
	baseURL    string
	maxRetries int
	client     *http.Client
}

// NewAnthropic creates a new Anthropic provider.
func NewAnthropic(model string, opts Options) (*Anthropic, error) {
	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = anthropicAPIURL
	}
	return &Anthropic{
		apiKey:     key,
		model:      model,
		baseURL:    baseURL,
		maxRetries: opts.MaxRetries,
		client:     newHTTPClient(opts.Timeout),
	}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error) {
	body := anthropicRequest{
		Model:     a.model,
		MaxTokens: defaultMaxTokens(req.MaxTokens),
		System:    req.SystemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.UserPrompt},
		},
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	// The messages API has no JSON mode; prefilling the reply with an
	// opening brace keeps the model from wrapping the object in prose.
	prefill := ""
	if req.JSONMode {
		prefill = "{"
		body.Messages = append(body.Messages, anthropicMessage{Role: "assistant", Content: prefill})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return ReviewResponse{}, fmt.Errorf("marshaling request: %w", err)
	}

	var resp ReviewResponse
	err = retryWithBackoff(ctx, a.maxRetries, func() error {
		respBody, err := postJSON(ctx, a.client, a.baseURL, map[string]string{
			"x-api-key":         a.apiKey,
			"anthropic-version": anthropicAPIVersion,
		}, payload)
		if err != nil {
			return err
		}

		var result anthropicResponse
		if err := json.Unmarshal(respBody, &result); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}

		var content strings.Builder
		content.WriteString(prefill)
		for _, block := range result.Content {
			if block.Type == "text" {
				content.WriteString(block.Text)
			}
		}
		if content.Len() == len(prefill) {
			return fmt.Errorf("empty text content in API response")
		}

		resp = ReviewResponse{
			Content:    content.String(),
			TokensUsed: result.Usage.InputTokens + result.Usage.OutputTokens,
		}
		return nil
	})

	return resp, err
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicBlock `json:"content"`
	Usage   anthropicUsage   `json:"usage"`
}

type anthropicBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
