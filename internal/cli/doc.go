// Package cli wires together the Cobra command tree for the tonecheck binary.
//
// It defines the root command and all subcommands (review, rules, serve,
// guidelines, history, config, models, cache, version), binds flags, reads
// configuration, builds the zap logger, and returns deterministic exit codes
// for CI gating.
package cli
