package review

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// TextUnit is one reviewable string extracted from the host document.
// The JSON shape matches the host's selection payload.
type TextUnit struct {
	ID            string `json:"id"`
	Content       string `json:"characters"`
	LayerName     string `json:"layerName"`
	ParentName    string `json:"parentName"`
	ComponentName string `json:"componentName,omitempty"`
}

// contextText is the string target patterns are matched against.
func (u TextUnit) contextText() string {
	return norm.NFC.String(u.ComponentName + " " + u.ParentName + " " + u.LayerName)
}

// Rule is one style guideline from the rule corpus.
type Rule struct {
	Name        string   `json:"ruleName" yaml:"ruleName"`
	Category    string   `json:"category" yaml:"category"`
	BadExample  string   `json:"badExample" yaml:"badExample"`
	GoodExample string   `json:"goodExample" yaml:"goodExample"`
	Description string   `json:"description" yaml:"description"`
	Targets     []string `json:"targets" yaml:"targets"`
	Priority    string   `json:"priority" yaml:"priority"`
}

// ReviewResult is the outcome of reviewing one TextUnit in one round.
type ReviewResult struct {
	NodeID        string `json:"nodeId"`
	Original      string `json:"original"`
	Suggestion    string `json:"suggestion"`
	Reason        string `json:"reason"`
	ViolationType string `json:"violationType"`
	Applied       bool   `json:"applied"`
	Dismissed     bool   `json:"dismissed"`
}

// IsPass reports whether the model left the text unchanged. Pass results
// are never eligible for apply or revert.
func (r ReviewResult) IsPass() bool {
	return normalize(r.Original) == normalize(r.Suggestion)
}

// Visible reports whether the result should still be shown to the user.
func (r ReviewResult) Visible() bool {
	return !r.Dismissed
}

// HistoryEntry is an archived review round. Timestamp is in Unix
// milliseconds and is unique across a session's history.
type HistoryEntry struct {
	Timestamp int64          `json:"timestamp"`
	Results   []ReviewResult `json:"results"`
}

// Clone returns a deep copy of the entry.
func (h HistoryEntry) Clone() HistoryEntry {
	return HistoryEntry{Timestamp: h.Timestamp, Results: CloneResults(h.Results)}
}

// CloneResults copies a result slice so callers cannot alias session state.
func CloneResults(results []ReviewResult) []ReviewResult {
	if results == nil {
		return nil
	}
	out := make([]ReviewResult, len(results))
	copy(out, results)
	return out
}

// Summary counts results by lifecycle state.
type Summary struct {
	Total     int `json:"total"`
	Passes    int `json:"passes"`
	Fixes     int `json:"fixes"`
	Applied   int `json:"applied"`
	Dismissed int `json:"dismissed"`
}

// ComputeSummary calculates the summary for a result set.
func ComputeSummary(results []ReviewResult) Summary {
	var s Summary
	for _, r := range results {
		s.Total++
		if r.IsPass() {
			s.Passes++
		} else {
			s.Fixes++
		}
		if r.Applied {
			s.Applied++
		}
		if r.Dismissed {
			s.Dismissed++
		}
	}
	return s
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
