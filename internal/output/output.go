package output

import (
	"fmt"
	"io"
	"os"

	"github.com/dshills/tonecheck/internal/review"
)

// Report is one rendered review round.
type Report struct {
	Tool     string                `json:"tool"`
	Version  string                `json:"version"`
	Provider string                `json:"provider"`
	Model    string                `json:"model"`
	Units    int                   `json:"units"`
	Rules    int                   `json:"rules"`
	Results  []review.ReviewResult `json:"results"`
	Summary  review.Summary        `json:"summary"`
	TotalMs  int64                 `json:"totalMs"`
}

// Summarize fills in the report summary from its results.
func (r *Report) Summarize() {
	r.Summary = review.ComputeSummary(r.Results)
}

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *Report) error
}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes the report to the specified output (file path or stdout).
func WriteReport(report *Report, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}

	var w io.Writer
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	} else {
		w = os.Stdout
	}

	return writer.Write(w, report)
}
