package output

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dshills/tonecheck/internal/review"
)

// TextWriter outputs a human-readable text report.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, report *Report) error {
	ew := &errWriter{w: w}
	s := report.Summary

	ew.printf("Tonecheck Review (%s/%s)\n", report.Provider, report.Model)
	ew.printf("Units: %d | Rules applied: %d\n", report.Units, report.Rules)
	ew.println(strings.Repeat("─", 60))
	ew.printf("Results: %d total (%d fixes, %d passes)", s.Total, s.Fixes, s.Passes)
	if s.Applied > 0 || s.Dismissed > 0 {
		ew.printf(", %d applied, %d dismissed", s.Applied, s.Dismissed)
	}
	ew.println("")
	ew.println(strings.Repeat("─", 60))

	if s.Fixes == 0 {
		ew.println("\nNo corrections suggested. Looks good!")
	}

	for _, r := range report.Results {
		ew.printf("\n%s %s\n", resultMark(r), r.NodeID)
		if r.IsPass() {
			ew.printf("    %q\n", r.Original)
			continue
		}
		ew.printf("    - %q\n", r.Original)
		ew.printf("    + %q\n", r.Suggestion)
		if r.ViolationType != "" {
			ew.printf("  Rule: %s\n", r.ViolationType)
		}
		for _, line := range wrapText(r.Reason, 70) {
			ew.printf("    %s\n", line)
		}
	}

	ew.printf("\n%s\n", strings.Repeat("─", 60))
	ew.printf("Completed in %dms\n", report.TotalMs)
	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func resultMark(r review.ReviewResult) string {
	switch {
	case r.Dismissed:
		return "[dismissed]"
	case r.Applied:
		return "[applied]"
	case r.IsPass():
		return "[ok]"
	default:
		return "[fix]"
	}
}

// wrapText wraps on word boundaries, measuring width in runes so Hangul
// text wraps at the same column as Latin text.
func wrapText(text string, width int) []string {
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= width {
		return []string{text}
	}
	var lines []string
	var current strings.Builder
	n := 0
	for _, word := range strings.Fields(text) {
		wl := utf8.RuneCountInString(word)
		if n+wl+1 > width && n > 0 {
			lines = append(lines, current.String())
			current.Reset()
			n = 0
		}
		if n > 0 {
			current.WriteString(" ")
			n++
		}
		current.WriteString(word)
		n += wl
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
