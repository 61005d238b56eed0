package review

// ResolvedTargets parses the rule's target tags in order.
func (r Rule) ResolvedTargets() []Target {
	out := make([]Target, 0, len(r.Targets))
	for _, tag := range r.Targets {
		out = append(out, ParseTarget(tag))
	}
	return out
}

// IsUniversal reports whether the rule applies regardless of context.
// A rule without any target tags counts as universal.
func (r Rule) IsUniversal() bool {
	if len(r.Targets) == 0 {
		return true
	}
	for _, t := range r.ResolvedTargets() {
		if t == TargetAll {
			return true
		}
	}
	return false
}

// AppliesTo reports whether any of the rule's non-universal targets
// matches the unit.
func (r Rule) AppliesTo(u TextUnit) bool {
	for _, t := range r.ResolvedTargets() {
		if t == TargetAll {
			continue
		}
		if t.Matches(u) {
			return true
		}
	}
	return false
}

// FilterRulesForTexts returns the rules relevant to a batch, in corpus
// order. A rule is kept when it is universal or when at least one unit
// matches at least one of its targets. Unknown tags match every unit.
func FilterRulesForTexts(rules []Rule, units []TextUnit) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.IsUniversal() {
			out = append(out, r)
			continue
		}
		for _, u := range units {
			if r.AppliesTo(u) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
