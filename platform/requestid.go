package platform

import "github.com/google/uuid"

// NewRequestIDGenerator returns a RequestIDGenerator backed by
// github.com/google/uuid: a stable, unique-per-sync-attempt identifier,
// the same id across retries and auth refreshes within a run, and a
// different id across runs. Uniqueness across runs comes from generating
// a fresh id once per sync attempt and latching it, not from calling the
// generator per request.
func NewRequestIDGenerator() RequestIDGenerator {
	return func() string {
		return uuid.NewString()
	}
}
