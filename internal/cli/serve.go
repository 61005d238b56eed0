package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/tonecheck/internal/bridge"
	"github.com/dshills/tonecheck/internal/config"
	"github.com/dshills/tonecheck/internal/guidelines"
	"github.com/dshills/tonecheck/internal/review"
	"github.com/dshills/tonecheck/internal/session"
	"github.com/dshills/tonecheck/internal/store"
)

var flagNoHistory bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the review session over stdio",
	Long: "Serve reads newline-delimited bridge messages from stdin and writes host requests and\n" +
		"result snapshots to stdout. Logs go to stderr. The history log is persisted to historyDB\n" +
		"unless --no-history is given.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(buildOverrides())
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := serve(ctx, cmd, cfg); err != nil {
			fail(err)
		}
		return nil
	},
}

func serve(ctx context.Context, cmd *cobra.Command, cfg config.Config) error {
	c, err := openCache(cfg)
	if err != nil {
		return err
	}
	corpus, source, err := guidelines.Resolve(cfg.GuidelinesFile, c)
	if err != nil {
		return err
	}
	engine, err := newEngine(cfg, corpus, c)
	if err != nil {
		return err
	}

	var st *store.Store
	var history []review.HistoryEntry
	if !flagNoHistory {
		path, err := cfg.HistoryPath()
		if err != nil {
			return err
		}
		st, err = store.Open(path)
		if err != nil {
			return err
		}
		defer st.Close()
		history, err = st.LoadHistory(ctx)
		if err != nil {
			return fmt.Errorf("loading history: %w", err)
		}
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		// A signal must be able to unblock the reader.
		in = bridge.Pollable(f)
	}
	conn := bridge.NewConn(in, cmd.OutOrStdout())
	sess := session.New(conn, engine,
		session.WithLogger(logger.Named("session")),
		session.WithHistory(history))

	opts := []session.RunnerOption{
		session.WithRunnerLogger(logger.Named("runner")),
		session.WithPendingTTL(time.Duration(cfg.PendingTTLSeconds)*time.Second, 0),
	}
	if st != nil {
		saved := history
		opts = append(opts, session.WithChangeHook(func(snap session.Snapshot) {
			if sameHistory(saved, snap.History) {
				return
			}
			if err := st.SaveHistory(context.Background(), snap.History); err != nil {
				logger.Warn("saving history", zap.Error(err))
				return
			}
			saved = snap.History
		}))
	}

	logger.Info("serving",
		zap.String("guidelines", string(source)),
		zap.Int("rules", len(corpus.Rules)),
		zap.Int("history", len(history)))

	runErr := session.NewRunner(sess, conn, opts...).Run(ctx)

	// The open round would be lost on exit; keep it in the log.
	if st != nil {
		if _, ok := sess.ArchiveActiveRound(); ok {
			if err := st.SaveHistory(context.Background(), sess.History()); err != nil {
				logger.Warn("saving history", zap.Error(err))
			}
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func sameHistory(a, b []review.HistoryEntry) bool {
	return slices.EqualFunc(a, b, func(x, y review.HistoryEntry) bool {
		return x.Timestamp == y.Timestamp && slices.Equal(x.Results, y.Results)
	})
}

func init() {
	serveCmd.Flags().StringVar(&flagProvider, "provider", "", "LLM provider (openai, anthropic, gemini, ollama, worker)")
	serveCmd.Flags().StringVar(&flagModel, "model", "", "Model name")
	serveCmd.Flags().StringVar(&flagGuidelines, "guidelines", "", "Rule corpus file (JSON or YAML)")
	serveCmd.Flags().StringVar(&flagWorkerURL, "worker-url", "", "Review proxy URL for the worker provider")
	serveCmd.Flags().BoolVar(&flagNoHistory, "no-history", false, "Do not load or persist the history log")
}
