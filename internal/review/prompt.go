package review

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultReasonLanguage is the language the model is asked to explain
// corrections in.
const DefaultReasonLanguage = "Korean"

// PromptOptions tunes the instruction block.
type PromptOptions struct {
	ReasonLanguage string
}

const systemPreamble = `You are an expert UX writing reviewer for product UI copy.
Review each UI text against the style rules below and propose a correction whenever a rule is violated.
`

const responseFormat = `## Response format
Respond with ONLY a JSON object in exactly this shape. Each result's id must equal the id of the input text:
{
  "results": [
    {
      "id": 1,
      "original": "original text",
      "suggestion": "corrected text (identical to original when no change is needed)",
      "reason": "why the correction is needed, written in %s",
      "violation_type": "category of the violated rule, or \"none\""
    }
  ]
}
`

const reviewGuidelines = `## Guidelines
- Use the layer, parent frame and component names to infer the UI element, and apply a rule only when the element is one of the rule's targets.
- When no change is needed, set suggestion equal to original and violation_type to "none".
- When several rules are violated, correct the most important violation.
- Preserve the meaning of the original text.
`

// BuildSystemPrompt renders the instruction block from the filtered rules.
func BuildSystemPrompt(rules []Rule, opts PromptOptions) string {
	lang := opts.ReasonLanguage
	if lang == "" {
		lang = DefaultReasonLanguage
	}

	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n## Rules\n")
	b.WriteString(BuildRulesPromptSection(rules))
	b.WriteString("\n")
	fmt.Fprintf(&b, responseFormat, lang)
	b.WriteString("\n")
	b.WriteString(reviewGuidelines)
	return b.String()
}

// BuildRulesPromptSection renders each rule as a labeled record.
func BuildRulesPromptSection(rules []Rule) string {
	if len(rules) == 0 {
		return "No style rules apply to this batch. Only fix clear typos.\n"
	}

	var b strings.Builder
	for i, r := range rules {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "### %s [%s] (%s)\n", r.Name, r.Category, r.Priority)
		if r.IsUniversal() {
			b.WriteString("Applies to: all UI elements.\n")
		} else {
			fmt.Fprintf(&b, "Applies to: %s. Do not apply it to other UI elements.\n", strings.Join(r.Targets, ", "))
		}
		fmt.Fprintf(&b, "Description: %s\n", r.Description)
		fmt.Fprintf(&b, "Bad example: %s\n", r.BadExample)
		fmt.Fprintf(&b, "Good example: %s\n", r.GoodExample)
	}
	return b.String()
}

// BuildUserPrompt renders the data block. Units are identified by their
// 1-based position in the batch, never by their document id.
func BuildUserPrompt(units []TextUnit) string {
	var b strings.Builder
	b.WriteString("Review the following UI texts:\n\n")
	for i, u := range units {
		fmt.Fprintf(&b, "- id: %d\n", i+1)
		fmt.Fprintf(&b, "  text: %s\n", strconv.Quote(u.Content))
		fmt.Fprintf(&b, "  layer: %s\n", u.LayerName)
		fmt.Fprintf(&b, "  parent frame: %s\n", u.ParentName)
		if u.ComponentName != "" {
			fmt.Fprintf(&b, "  component: %s\n", u.ComponentName)
		}
	}
	return b.String()
}
