package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/tonecheck/internal/cache"
	"github.com/dshills/tonecheck/internal/config"
	"github.com/dshills/tonecheck/internal/guidelines"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached completions and the synced corpus",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear cached completions (and the synced corpus with --all)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(nil)
		if err != nil {
			return err
		}
		c, err := cache.New(true, cfg.Cache.Dir, cfg.Cache.TTLSeconds)
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		var saved string
		if !flagClearAll {
			saved, _ = c.Get(guidelines.CacheKey)
		}
		n, err := c.Clear()
		if err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		if saved != "" {
			if err := c.Put(guidelines.CacheKey, saved); err != nil {
				return fmt.Errorf("restoring synced guidelines: %w", err)
			}
			n--
		}
		fmt.Fprintf(os.Stdout, "Cache cleared (%d entries).\n", n)
		return nil
	},
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(nil)
		if err != nil {
			return err
		}
		c, err := cache.New(cfg.Cache.Enabled, cfg.Cache.Dir, cfg.Cache.TTLSeconds)
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		if !c.Enabled() {
			fmt.Fprintln(os.Stdout, "Cache is disabled.")
			return nil
		}
		stats, err := c.GetStats()
		if err != nil {
			return fmt.Errorf("reading cache stats: %w", err)
		}
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(data))
		return nil
	},
}

var flagClearAll bool

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheShowCmd)
	cacheClearCmd.Flags().BoolVar(&flagClearAll, "all", false, "Also remove the synced guideline corpus")
}
