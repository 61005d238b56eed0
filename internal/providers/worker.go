package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Worker talks to a review proxy that holds the completion-service
// credentials. The proxy accepts {systemPrompt, userPrompt} on POST /review
// and answers with an OpenAI chat-completion body.
type Worker struct {
	model      string
	baseURL    string
	maxRetries int
	client     *http.Client
}

// NewWorker creates a worker provider. The proxy URL comes from opts.BaseURL
// or TONECHECK_WORKER_URL.
func NewWorker(model string, opts Options) (*Worker, error) {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("TONECHECK_WORKER_URL")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("worker provider requires workerURL (or TONECHECK_WORKER_URL)")
	}
	return &Worker{
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/") + "/review",
		maxRetries: opts.MaxRetries,
		client:     newHTTPClient(opts.Timeout),
	}, nil
}

func (w *Worker) Name() string { return "worker" }

func (w *Worker) Review(ctx context.Context, req ReviewRequest) (ReviewResponse, error) {
	payload, err := json.Marshal(workerRequest{
		SystemPrompt: req.SystemPrompt,
		UserPrompt:   req.UserPrompt,
		Model:        w.model,
	})
	if err != nil {
		return ReviewResponse{}, fmt.Errorf("marshaling request: %w", err)
	}

	var resp ReviewResponse
	err = retryWithBackoff(ctx, w.maxRetries, func() error {
		body, err := postJSON(ctx, w.client, w.baseURL, nil, payload)
		if err != nil {
			return err
		}
		resp, err = parseChatResponse(body)
		return err
	})
	return resp, err
}

type workerRequest struct {
	SystemPrompt string `json:"systemPrompt"`
	UserPrompt   string `json:"userPrompt"`
	Model        string `json:"model,omitempty"`
}
