package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/tonecheck/internal/config"
	"github.com/dshills/tonecheck/internal/guidelines"
	"github.com/dshills/tonecheck/internal/review"
)

var flagRulesJSON bool

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect rule matching",
}

var rulesMatchCmd = &cobra.Command{
	Use:   "match [units.json]",
	Short: "Show the rules that apply to a batch of text units",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(buildOverrides())
		if err != nil {
			return err
		}
		units, err := readUnits(argOrEmpty(args), cmd.InOrStdin())
		if err != nil {
			return err
		}
		c, err := openCache(cfg)
		if err != nil {
			return err
		}
		corpus, _, err := guidelines.Resolve(cfg.GuidelinesFile, c)
		if err != nil {
			return err
		}

		matched := review.FilterRulesForTexts(corpus.Rules, units)
		out := cmd.OutOrStdout()
		if flagRulesJSON {
			data, err := json.MarshalIndent(matched, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}
		fmt.Fprintf(out, "%d of %d rules apply to %d units\n", len(matched), len(corpus.Rules), len(units))
		for _, r := range matched {
			fmt.Fprintf(out, "  - %s\n", describeRule(r))
		}
		return nil
	},
}

func describeRule(r review.Rule) string {
	var b strings.Builder
	b.WriteString(r.Name)
	if r.Category != "" {
		fmt.Fprintf(&b, " [%s]", r.Category)
	}
	if r.IsUniversal() {
		b.WriteString(" (all)")
		return b.String()
	}
	targets := make([]string, 0, len(r.Targets))
	for _, tag := range r.Targets {
		t := review.ParseTarget(tag)
		if t == review.TargetUnknown {
			targets = append(targets, tag+"?")
			continue
		}
		targets = append(targets, t.String())
	}
	fmt.Fprintf(&b, " (%s)", strings.Join(targets, ", "))
	return b.String()
}

func init() {
	rulesCmd.AddCommand(rulesMatchCmd)
	rulesMatchCmd.Flags().StringVar(&flagGuidelines, "guidelines", "", "Rule corpus file (JSON or YAML)")
	rulesMatchCmd.Flags().BoolVar(&flagRulesJSON, "json", false, "Print matched rules as JSON")
}
