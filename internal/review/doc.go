// Package review contains the core types and engine for rule-based UI copy
// review.
//
// It defines TextUnit, Rule and ReviewResult, resolves free-form rule target
// tags into a closed set of UI element classes (target.go), selects the rules
// relevant to a batch, renders the system and user prompt blocks, and
// strictly validates model replies before mapping their 1-based ordinals
// back onto document ids (reconcile.go).
//
// Large batches are split into fixed-size chunks and reviewed in parallel
// with bounded concurrency. A failure in any chunk fails the whole batch.
package review
