package output

import (
	"fmt"
	"io"
	"strings"
)

// MarkdownWriter outputs a markdown report suitable for a review thread.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *Report) error {
	s := report.Summary

	fmt.Fprintf(w, "## Tonecheck Review\n\n")

	fmt.Fprintf(w, "| State | Count |\n")
	fmt.Fprintf(w, "|-------|-------|\n")
	fmt.Fprintf(w, "| Fixes | %d |\n", s.Fixes)
	fmt.Fprintf(w, "| Passes | %d |\n", s.Passes)
	fmt.Fprintf(w, "| Applied | %d |\n", s.Applied)
	fmt.Fprintf(w, "| Dismissed | %d |\n", s.Dismissed)
	fmt.Fprintf(w, "| **Total** | **%d** |\n\n", s.Total)

	if s.Fixes == 0 {
		fmt.Fprintln(w, "No corrections suggested. :white_check_mark:")
		return nil
	}

	fmt.Fprintf(w, "<details>\n<summary>%s Suggested fixes (%d)</summary>\n\n", ":pencil2:", s.Fixes)
	for _, r := range report.Results {
		if r.IsPass() {
			continue
		}
		fmt.Fprintf(w, "### `%s`", mdEscape(r.NodeID))
		switch {
		case r.Dismissed:
			fmt.Fprintf(w, " (dismissed)")
		case r.Applied:
			fmt.Fprintf(w, " (applied)")
		}
		fmt.Fprintf(w, "\n\n")
		if r.ViolationType != "" {
			fmt.Fprintf(w, "**%s**\n\n", mdEscape(r.ViolationType))
		}
		fmt.Fprintf(w, "```diff\n- %s\n+ %s\n```\n\n", oneLine(r.Original), oneLine(r.Suggestion))
		if r.Reason != "" {
			fmt.Fprintf(w, "> %s\n\n", strings.ReplaceAll(r.Reason, "\n", "\n> "))
		}
		fmt.Fprintf(w, "---\n\n")
	}
	fmt.Fprintf(w, "</details>\n\n")

	fmt.Fprintf(w, "*Reviewed %d units against %d rules in %dms*\n", report.Units, report.Rules, report.TotalMs)
	return nil
}

func mdEscape(s string) string {
	return strings.NewReplacer("`", "'", "|", "\\|", "*", "\\*").Replace(s)
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}
