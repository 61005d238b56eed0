// Tonecheck reviews UI copy against a curated style-rule corpus with LLM
// providers.
//
// It reviews batches of text units from a file or stdin, shows which rules
// apply to a batch, and serves the interactive apply/dismiss/revert session
// for a host editor over newline-delimited JSON on stdio.
//
// Usage:
//
//	tonecheck review units.json           # review one batch
//	tonecheck rules match units.json      # show the rules that apply
//	tonecheck serve                       # run the session over stdio
//	tonecheck guidelines sync             # refresh the rule corpus
//	tonecheck history list                # list archived rounds
package main
