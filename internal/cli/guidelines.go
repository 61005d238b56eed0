package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/tonecheck/internal/config"
	"github.com/dshills/tonecheck/internal/guidelines"
)

// notionAPI is used when syncing directly with NOTION_TOKEN instead of
// through the worker proxy.
const notionAPI = "https://api.notion.com/v1"

var (
	flagGuidelinesJSON bool
	flagPageID         string
	flagDatabaseID     string
	flagSyncOut        string
)

var guidelinesCmd = &cobra.Command{
	Use:   "guidelines",
	Short: "Show or sync the rule corpus",
}

var guidelinesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the rule corpus reviews would use",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(buildOverrides())
		if err != nil {
			return err
		}
		c, err := openCache(cfg)
		if err != nil {
			return err
		}
		corpus, source, err := guidelines.Resolve(cfg.GuidelinesFile, c)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if flagGuidelinesJSON {
			data, err := json.MarshalIndent(corpus, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		fmt.Fprintf(out, "Source: %s\n", source)
		if corpus.Timestamp > 0 {
			fmt.Fprintf(out, "Synced: %s\n", corpus.SyncedAt().Format(time.RFC3339))
		}
		fmt.Fprintf(out, "Rules: %d\n", len(corpus.Rules))
		for _, r := range corpus.Rules {
			fmt.Fprintf(out, "  - %s\n", describeRule(r))
		}
		return nil
	},
}

var guidelinesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch the guideline page and rule database",
	Long: "Sync fetches the guideline page and rule database through the worker proxy (workerURL),\n" +
		"or directly from the Notion API when NOTION_TOKEN is set and no proxy is configured.\n" +
		"The result is cached for later reviews and optionally written to --out.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(buildOverrides())
		if err != nil {
			return err
		}
		pageID := cfg.Guidelines.PageID
		if flagPageID != "" {
			pageID = flagPageID
		}
		databaseID := cfg.Guidelines.DatabaseID
		if flagDatabaseID != "" {
			databaseID = flagDatabaseID
		}

		baseURL := cfg.WorkerURL
		opts := []guidelines.SyncOption{guidelines.WithSyncLogger(logger.Named("sync"))}
		if token := os.Getenv("NOTION_TOKEN"); token != "" && baseURL == "" {
			baseURL = notionAPI
			opts = append(opts, guidelines.WithToken(token))
		}

		corpus, err := guidelines.NewSyncer(baseURL, opts...).Sync(cmd.Context(), pageID, databaseID)
		if err != nil {
			fail(fmt.Errorf("syncing guidelines: %w", err))
			return nil
		}

		c, err := openCache(cfg)
		if err != nil {
			return err
		}
		if c.Enabled() {
			if err := guidelines.Save(c, corpus); err != nil {
				logger.Warn("caching guidelines", zap.Error(err))
			}
		} else if flagSyncOut == "" {
			fmt.Fprintln(os.Stderr, "WARNING: cache is disabled and --out is not set; the synced corpus is discarded")
		}
		if flagSyncOut != "" {
			if err := guidelines.WriteFile(flagSyncOut, corpus); err != nil {
				fail(err)
				return nil
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Synced %d rules (%d characters of guideline text)\n",
			len(corpus.Rules), len([]rune(corpus.PageText)))
		return nil
	},
}

func init() {
	guidelinesCmd.AddCommand(guidelinesShowCmd)
	guidelinesCmd.AddCommand(guidelinesSyncCmd)

	guidelinesShowCmd.Flags().StringVar(&flagGuidelines, "guidelines", "", "Rule corpus file (JSON or YAML)")
	guidelinesShowCmd.Flags().BoolVar(&flagGuidelinesJSON, "json", false, "Print the corpus as JSON")

	guidelinesSyncCmd.Flags().StringVar(&flagWorkerURL, "worker-url", "", "Knowledge-base proxy URL")
	guidelinesSyncCmd.Flags().StringVar(&flagPageID, "page-id", "", "Guideline page id (overrides guidelines.pageId)")
	guidelinesSyncCmd.Flags().StringVar(&flagDatabaseID, "database-id", "", "Rule database id (overrides guidelines.databaseId)")
	guidelinesSyncCmd.Flags().StringVar(&flagSyncOut, "out", "", "Also write the corpus to this file (.json, .yaml)")
}
