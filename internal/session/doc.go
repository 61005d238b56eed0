// Package session implements the review-session orchestrator.
//
// A [Session] owns the active result set, the history of archived rounds and
// the registry of replace requests still waiting for the host to answer.
// User commands (apply, revert, dismiss, apply all, re-review) and host
// completion signals mutate that state; every replace request carries a
// request id so its completion resolves exactly one operation.
//
// [Runner] is the event loop used by the serve command. It reads frames
// from a transport, runs reviews off-loop, and applies every mutation on a
// single goroutine.
package session
