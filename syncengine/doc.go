// Package syncengine implements the sync engine: a single-flight state
// machine orchestrating authenticated, cursor-paginated HTTP pulls,
// delegated payload application, delegated push, retry with exponential
// backoff, auth refresh, and cooperative cancellation. It uses
// golang.org/x/sync/errgroup to supervise the goroutines it spawns for
// push/apply dispatch (so Shutdown can wait for them to drain) and
// github.com/google/uuid (via platform.NewRequestIDGenerator) for
// per-sync-attempt request ids.
package syncengine
