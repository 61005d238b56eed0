// Package bridge defines the message protocol spoken between the review core,
// the sandboxed host that owns the document, and the UI.
//
// Every frame is a JSON object with a "type" discriminator. Host messages
// (selection, replace-result, storage-result) and UI commands (review,
// apply, revert, dismiss, apply-all) flow into the core; replace, storage
// and notify requests flow to the host and results snapshots flow to the UI.
//
// [Conn] carries frames as newline-delimited JSON over any reader/writer
// pair, which is how the serve command talks over stdio.
package bridge
