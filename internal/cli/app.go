package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dshills/tonecheck/internal/cache"
	"github.com/dshills/tonecheck/internal/config"
	"github.com/dshills/tonecheck/internal/guidelines"
	"github.com/dshills/tonecheck/internal/providers"
	"github.com/dshills/tonecheck/internal/review"
)

// Shared flags for commands that build a review engine.
var (
	flagProvider   string
	flagModel      string
	flagFormat     string
	flagOut        string
	flagGuidelines string
	flagChunkSize  int
	flagWorkerURL  string
)

func buildOverrides() map[string]string {
	m := make(map[string]string)
	if flagProvider != "" {
		m["provider"] = flagProvider
	}
	if flagModel != "" {
		m["model"] = flagModel
	}
	if flagFormat != "" {
		m["format"] = flagFormat
	}
	if flagGuidelines != "" {
		m["guidelinesFile"] = flagGuidelines
	}
	if flagChunkSize > 0 {
		m["chunkSize"] = strconv.Itoa(flagChunkSize)
	}
	if flagWorkerURL != "" {
		m["workerURL"] = flagWorkerURL
	}
	return m
}

func openCache(cfg config.Config) (*cache.Cache, error) {
	c, err := cache.New(cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.TTLSeconds)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return c, nil
}

func newProvider(cfg config.Config) (providers.Reviewer, error) {
	opts := providers.Options{MaxRetries: cfg.MaxRetries}
	if cfg.Provider == "worker" {
		opts.BaseURL = cfg.WorkerURL
	}
	return providers.New(cfg.Provider, cfg.Model, opts)
}

func newEngine(cfg config.Config, corpus guidelines.Corpus, c *cache.Cache) (*review.Engine, error) {
	p, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return review.NewEngine(p,
		review.WithLogger(logger),
		review.WithCache(c),
		review.WithModel(cfg.Model),
		review.WithChunking(cfg.ChunkSize, cfg.Concurrency),
		review.WithSampling(cfg.MaxTokens, cfg.Temperature),
		review.WithReasonLanguage(cfg.ReasonLanguage),
		review.WithRules(corpus.Rules),
	), nil
}

// readUnits reads text units from path, or from stdin when path is empty
// or "-". Both a bare array and a selection message ({"texts": [...]}) are
// accepted.
func readUnits(path string, stdin io.Reader) ([]review.TextUnit, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading units: %w", err)
	}
	return parseUnits(data)
}

func parseUnits(data []byte) ([]review.TextUnit, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("no text units given")
	}
	var units []review.TextUnit
	if data[0] == '[' {
		if err := json.Unmarshal(data, &units); err != nil {
			return nil, fmt.Errorf("parsing units: %w", err)
		}
	} else {
		var sel struct {
			Texts []review.TextUnit `json:"texts"`
		}
		if err := json.Unmarshal(data, &sel); err != nil {
			return nil, fmt.Errorf("parsing units: %w", err)
		}
		units = sel.Texts
	}
	for i, u := range units {
		if u.ID == "" {
			return nil, fmt.Errorf("unit %d has no id", i)
		}
	}
	return units, nil
}

func argOrEmpty(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// fail records a runtime failure: auth problems exit 3, everything else 4.
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if providers.IsAuthError(err) {
		exitCode = ExitAuthError
		return
	}
	exitCode = ExitRuntimeError
}
