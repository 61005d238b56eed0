// Package redact scrubs credentials from text before it reaches a log line
// or an error message.
//
// Detection uses regex heuristics covering common secret shapes: bearer
// tokens, JWTs, key and password assignments, and provider-specific keys
// (Anthropic, OpenAI, Google, Notion). Prompts are logged only after
// [Secrets]; remote error bodies are embedded only through [Snippet].
package redact
