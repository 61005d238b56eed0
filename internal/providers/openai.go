package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

const defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

// OpenAI implements the Reviewer interface for OpenAI's chat completions API.
type OpenAI struct {
	apiKey     string
	model      string
	baseURL    string
	maxRetries int
	client     *http.Client
}

// NewOpenAI creates a new OpenAI provider.
func NewOpenAI(model string, opts Options) (*OpenAI, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("TONECHECK_OPENAI_BASE_URL")
	}
	if baseURL == "" {
		baseURL = defaultOpenAIURL
	}
	return &OpenAI{
		apiKey:     key,
		model:      model,
		baseURL:    baseURL,
		maxRetries: opts.MaxRetries,
		client:     newHTTPClient(opts.Timeout),
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error) {
	payload, err := json.Marshal(newChatRequest(o.model, req))
	if err != nil {
		return ReviewResponse{}, fmt.Errorf("marshaling request: %w", err)
	}

	var resp ReviewResponse
	err = retryWithBackoff(ctx, o.maxRetries, func() error {
		body, err := postJSON(ctx, o.client, o.baseURL, map[string]string{
			"Authorization": "Bearer " + o.apiKey,
		}, payload)
		if err != nil {
			return err
		}
		resp, err = parseChatResponse(body)
		return err
	})
	return resp, err
}

type openaiRequest struct {
	Model          string                `json:"model"`
	Messages       []openaiMessage       `json:"messages"`
	MaxTokens      int                   `json:"max_tokens"`
	Temperature    *float64              `json:"temperature,omitempty"`
	ResponseFormat *openaiResponseFormat `json:"response_format,omitempty"`
}

type openaiResponseFormat struct {
	Type string `json:"type"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Message openaiMessage `json:"message"`
}

type openaiUsage struct {
	TotalTokens int `json:"total_tokens"`
}

// newChatRequest builds the chat-completions body shared by the OpenAI,
// Ollama and worker clients.
func newChatRequest(model string, req ReviewRequest) openaiRequest {
	body := openaiRequest{
		Model: model,
		Messages: []openaiMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens: defaultMaxTokens(req.MaxTokens),
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	if req.JSONMode {
		body.ResponseFormat = &openaiResponseFormat{Type: "json_object"}
	}
	return body
}

func parseChatResponse(body []byte) (ReviewResponse, error) {
	var result openaiResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return ReviewResponse{}, fmt.Errorf("parsing response: %w", err)
	}
	if len(result.Choices) == 0 {
		return ReviewResponse{}, fmt.Errorf("no choices in response")
	}
	if result.Choices[0].Message.Content == "" {
		return ReviewResponse{}, fmt.Errorf("empty text content in API response")
	}
	return ReviewResponse{
		Content:    result.Choices[0].Message.Content,
		TokensUsed: result.Usage.TotalTokens,
	}, nil
}
