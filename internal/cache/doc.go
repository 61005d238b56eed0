// Package cache provides a file-based TTL cache.
//
// Two kinds of payload live here: raw completion replies, keyed by provider,
// model and both prompt blocks (see [CompletionKey]), and the most recently
// synced rule corpus. Each entry stores the payload with a creation time;
// expired entries are skipped and removed on read.
//
// The default cache directory is $XDG_CACHE_HOME/tonecheck (or the
// OS-appropriate equivalent).
package cache
