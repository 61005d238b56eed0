package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/tonecheck/internal/config"
	"github.com/dshills/tonecheck/internal/review"
	"github.com/dshills/tonecheck/internal/store"
)

var flagHistoryJSON bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the persisted review history",
}

func openHistory() (*store.Store, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, err
	}
	path, err := cfg.HistoryPath()
	if err != nil {
		return nil, err
	}
	return store.Open(path)
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived review rounds, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openHistory()
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := st.LoadHistory(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if flagHistoryJSON {
			if entries == nil {
				entries = []review.HistoryEntry{}
			}
			data, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No review history.")
			return nil
		}
		for _, e := range entries {
			s := review.ComputeSummary(e.Results)
			fmt.Fprintf(out, "%d  %s  %d results, %d fixes, %d applied, %d dismissed\n",
				e.Timestamp, time.UnixMilli(e.Timestamp).Format(time.DateTime),
				s.Total, s.Fixes, s.Applied, s.Dismissed)
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all archived review rounds",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openHistory()
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.Clear(cmd.Context())
		if err != nil {
			return fmt.Errorf("clearing history: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d history entries.\n", n)
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyClearCmd)
	historyListCmd.Flags().BoolVar(&flagHistoryJSON, "json", false, "Print entries as JSON")
}
