package review

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/tonecheck/internal/cache"
	"github.com/dshills/tonecheck/internal/providers"
	"github.com/dshills/tonecheck/internal/redact"
)

const (
	// DefaultChunkSize is the number of units sent in one completion request.
	DefaultChunkSize = 40
	// DefaultConcurrency limits parallel completion requests.
	DefaultConcurrency = 4
)

// Engine runs one review round: rule filtering, prompt rendering, the
// completion call and reconciliation.
type Engine struct {
	provider    providers.Reviewer
	model       string
	cache       *cache.Cache
	log         *zap.Logger
	chunkSize   int
	concurrency int
	maxTokens   int
	temperature float64
	prompt      PromptOptions

	mu    sync.RWMutex
	rules []Rule
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithCache enables reply caching.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithModel records the model name for cache keys.
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithChunking sets the units per request and the parallel request limit.
func WithChunking(size, concurrency int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.chunkSize = size
		}
		if concurrency > 0 {
			e.concurrency = concurrency
		}
	}
}

// WithSampling sets max tokens and temperature for each request.
func WithSampling(maxTokens int, temperature float64) Option {
	return func(e *Engine) {
		e.maxTokens = maxTokens
		e.temperature = temperature
	}
}

// WithReasonLanguage sets the language corrections are explained in.
func WithReasonLanguage(lang string) Option {
	return func(e *Engine) { e.prompt.ReasonLanguage = lang }
}

// WithRules sets the initial rule corpus.
func WithRules(rules []Rule) Option {
	return func(e *Engine) { e.rules = rules }
}

// NewEngine creates an Engine backed by provider.
func NewEngine(provider providers.Reviewer, opts ...Option) *Engine {
	e := &Engine{
		provider:    provider,
		log:         zap.NewNop(),
		chunkSize:   DefaultChunkSize,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetRules replaces the rule corpus, e.g. after a sync.
func (e *Engine) SetRules(rules []Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
}

// Rules returns the current rule corpus.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules
}

// Review reviews a batch. An empty batch returns an empty result without
// contacting the provider. Any failed chunk fails the whole batch.
func (e *Engine) Review(ctx context.Context, units []TextUnit) ([]ReviewResult, error) {
	if len(units) == 0 {
		return []ReviewResult{}, nil
	}
	start := time.Now()

	matched := FilterRulesForTexts(e.Rules(), units)
	systemPrompt := BuildSystemPrompt(matched, e.prompt)
	e.log.Debug("rules matched",
		zap.Int("units", len(units)),
		zap.Int("corpus", len(e.Rules())),
		zap.Int("matched", len(matched)))

	chunks := SplitUnits(units, e.chunkSize)
	results := make([][]ReviewResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			out, err := e.reviewChunk(gctx, systemPrompt, chunk)
			if err != nil {
				if len(chunks) > 1 {
					return fmt.Errorf("chunk %d: %w", i, err)
				}
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := make([]ReviewResult, 0, len(units))
	for _, r := range results {
		all = append(all, r...)
	}
	e.log.Info("review complete",
		zap.Int("units", len(units)),
		zap.Int("chunks", len(chunks)),
		zap.Int("results", len(all)),
		zap.Duration("elapsed", time.Since(start)))
	return all, nil
}

func (e *Engine) reviewChunk(ctx context.Context, systemPrompt string, units []TextUnit) ([]ReviewResult, error) {
	userPrompt := BuildUserPrompt(units)
	key := cache.CompletionKey(e.provider.Name(), e.model, systemPrompt, userPrompt)

	content, hit := e.cache.Get(key)
	if !hit {
		e.log.Debug("completion request",
			zap.String("provider", e.provider.Name()),
			zap.String("user_prompt", redact.Secrets(userPrompt)))

		resp, err := e.provider.Review(ctx, providers.ReviewRequest{
			SystemPrompt: systemPrompt,
			UserPrompt:   userPrompt,
			MaxTokens:    e.maxTokens,
			Temperature:  e.temperature,
			JSONMode:     true,
		})
		if err != nil {
			return nil, fmt.Errorf("provider review: %w", err)
		}
		content = resp.Content
	}

	parsed, err := ParseResponse(content)
	if err != nil {
		return nil, fmt.Errorf("response validation: %w", err)
	}
	if !hit {
		if err := e.cache.Put(key, content); err != nil {
			e.log.Warn("caching completion", zap.Error(err))
		}
	}

	out := Reconcile(parsed, units)
	if dropped := len(parsed.Results) - len(out); dropped > 0 {
		e.log.Debug("dropped unresolvable results", zap.Int("dropped", dropped))
	}
	return out, nil
}

// SplitUnits splits a batch into consecutive chunks of at most size units.
func SplitUnits(units []TextUnit, size int) [][]TextUnit {
	if len(units) == 0 {
		return nil
	}
	if size <= 0 || size >= len(units) {
		return [][]TextUnit{units}
	}
	chunks := make([][]TextUnit, 0, (len(units)+size-1)/size)
	for start := 0; start < len(units); start += size {
		end := min(start+size, len(units))
		chunks = append(chunks, units[start:end])
	}
	return chunks
}
