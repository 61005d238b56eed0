package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/tonecheck/internal/config"
	"github.com/dshills/tonecheck/internal/guidelines"
	"github.com/dshills/tonecheck/internal/output"
	"github.com/dshills/tonecheck/internal/review"
)

var flagFailOnFindings bool

var reviewCmd = &cobra.Command{
	Use:   "review [units.json]",
	Short: "Review one batch of text units",
	Long: "Review one batch of text units against the rule corpus. Units are read from the file\n" +
		"argument or stdin, either as a JSON array or as a selection message {\"texts\": [...]}.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(buildOverrides())
		if err != nil {
			return err
		}
		units, err := readUnits(argOrEmpty(args), cmd.InOrStdin())
		if err != nil {
			return err
		}
		runReview(cmd.Context(), cfg, units)
		return nil
	},
}

func runReview(ctx context.Context, cfg config.Config, units []review.TextUnit) {
	start := time.Now()

	c, err := openCache(cfg)
	if err != nil {
		fail(err)
		return
	}
	corpus, source, err := guidelines.Resolve(cfg.GuidelinesFile, c)
	if err != nil {
		fail(err)
		return
	}
	logger.Debug("guidelines loaded",
		zap.String("source", string(source)),
		zap.Int("rules", len(corpus.Rules)))

	engine, err := newEngine(cfg, corpus, c)
	if err != nil {
		fail(err)
		return
	}
	results, err := engine.Review(ctx, units)
	if err != nil {
		fail(err)
		return
	}

	report := &output.Report{
		Tool:     "tonecheck",
		Version:  version,
		Provider: cfg.Provider,
		Model:    cfg.Model,
		Units:    len(units),
		Rules:    len(review.FilterRulesForTexts(corpus.Rules, units)),
		Results:  results,
		TotalMs:  time.Since(start).Milliseconds(),
	}
	report.Summarize()

	if err := output.WriteReport(report, cfg.Format, flagOut); err != nil {
		fail(err)
		return
	}

	if flagFailOnFindings && report.Summary.Fixes > 0 {
		exitCode = ExitFindings
	}
}

func init() {
	reviewCmd.Flags().StringVar(&flagProvider, "provider", "", "LLM provider (openai, anthropic, gemini, ollama, worker)")
	reviewCmd.Flags().StringVar(&flagModel, "model", "", "Model name")
	reviewCmd.Flags().StringVar(&flagFormat, "format", "", "Output format (text, json, markdown)")
	reviewCmd.Flags().StringVar(&flagOut, "out", "", "Output file path (default: stdout)")
	reviewCmd.Flags().StringVar(&flagGuidelines, "guidelines", "", "Rule corpus file (JSON or YAML)")
	reviewCmd.Flags().IntVar(&flagChunkSize, "chunk-size", 0, "Units per completion request")
	reviewCmd.Flags().StringVar(&flagWorkerURL, "worker-url", "", "Review proxy URL for the worker provider")
	reviewCmd.Flags().BoolVar(&flagFailOnFindings, "fail-on-findings", false, "Exit 1 when any correction is suggested")
}
