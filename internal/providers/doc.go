// Package providers implements the Reviewer interface for each supported
// completion service.
//
// Supported providers: Anthropic (Claude), OpenAI (GPT), Google (Gemini),
// Ollama / LMStudio for local models, and a review worker proxy that keeps
// service credentials off the client.
//
// All providers share one HTTP helper that maps status codes onto typed
// errors, and a retry helper with exponential back-off for rate-limit and
// 5xx responses. Retries are off unless Options.MaxRetries is set; a failed
// call otherwise fails the calling review round immediately.
//
// Use [New] to obtain a Reviewer by provider name and model string.
package providers
