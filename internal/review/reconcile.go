package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrMissingResults means the reply had no top-level results array.
	ErrMissingResults = errors.New("response has no results array")
	// ErrMalformedEntry means a results entry lacked a field or had the
	// wrong primitive type.
	ErrMalformedEntry = errors.New("malformed results entry")
)

// SchemaError describes a strict-validation failure of a model reply.
type SchemaError struct {
	Index int
	Field string
	Err   error
}

func (e *SchemaError) Error() string {
	if e.Index < 0 {
		return e.Err.Error()
	}
	if e.Field == "" {
		return fmt.Sprintf("results[%d]: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("results[%d].%s: %v", e.Index, e.Field, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ResponseItem is one validated entry of a model reply.
type ResponseItem struct {
	ID            float64
	Original      string
	Suggestion    string
	Reason        string
	ViolationType string
}

// Response is a validated model reply.
type Response struct {
	Results []ResponseItem
}

// rawItem is the JSON structure returned by the model. Pointers let
// validation tell a missing field from a zero value.
type rawItem struct {
	ID            *float64 `json:"id"`
	Original      *string  `json:"original"`
	Suggestion    *string  `json:"suggestion"`
	Reason        *string  `json:"reason"`
	ViolationType *string  `json:"violation_type"`
}

// ParseResponse strictly validates a model reply. Any violation fails the
// whole reply; nothing is partially accepted.
func ParseResponse(content string) (*Response, error) {
	content = stripFences(content)

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &top); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	rawResults, ok := top["results"]
	if !ok {
		return nil, &SchemaError{Index: -1, Err: ErrMissingResults}
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(rawResults, &entries); err != nil || entries == nil {
		return nil, &SchemaError{Index: -1, Err: ErrMissingResults}
	}

	resp := &Response{Results: make([]ResponseItem, 0, len(entries))}
	for i, entry := range entries {
		var raw rawItem
		if err := json.Unmarshal(entry, &raw); err != nil {
			field := ""
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				field = typeErr.Field
			}
			return nil, &SchemaError{Index: i, Field: field, Err: ErrMalformedEntry}
		}
		if field := raw.missingField(); field != "" {
			return nil, &SchemaError{Index: i, Field: field, Err: ErrMalformedEntry}
		}
		resp.Results = append(resp.Results, ResponseItem{
			ID:            *raw.ID,
			Original:      *raw.Original,
			Suggestion:    *raw.Suggestion,
			Reason:        *raw.Reason,
			ViolationType: *raw.ViolationType,
		})
	}
	return resp, nil
}

func (r rawItem) missingField() string {
	switch {
	case r.ID == nil:
		return "id"
	case r.Original == nil:
		return "original"
	case r.Suggestion == nil:
		return "suggestion"
	case r.Reason == nil:
		return "reason"
	case r.ViolationType == nil:
		return "violation_type"
	}
	return ""
}

// Reconcile maps each reply entry's ordinal back onto the batch's stable
// document ids. Entries with an unknown, non-integer or repeated ordinal
// are dropped. Output follows reply order.
func Reconcile(resp *Response, units []TextUnit) []ReviewResult {
	if resp == nil {
		return []ReviewResult{}
	}
	byOrdinal := make(map[int]TextUnit, len(units))
	for i, u := range units {
		byOrdinal[i+1] = u
	}

	seen := make(map[int]bool, len(resp.Results))
	out := make([]ReviewResult, 0, len(resp.Results))
	for _, item := range resp.Results {
		if item.ID != math.Trunc(item.ID) || item.ID < 1 || item.ID > float64(len(units)) {
			continue
		}
		ordinal := int(item.ID)
		unit, ok := byOrdinal[ordinal]
		if !ok || seen[ordinal] {
			continue
		}
		seen[ordinal] = true
		out = append(out, ReviewResult{
			NodeID:        unit.ID,
			Original:      item.Original,
			Suggestion:    item.Suggestion,
			Reason:        item.Reason,
			ViolationType: item.ViolationType,
		})
	}
	return out
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	end := len(lines)
	if strings.TrimSpace(lines[end-1]) == "```" {
		end--
	}
	return strings.Join(lines[1:end], "\n")
}
