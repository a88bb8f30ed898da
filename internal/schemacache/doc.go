// Package schemacache is the process-wide, mutex-guarded column-set cache
// keyed by table name that the sync apply engine consults before building
// an upsert statement. Each entry records the schema_version it was loaded
// under, but a lookup does not compare it against the current
// schema_version: a cached entry is replaced only by an explicit Reload.
// A cache hit that turns out stale (a row names a column the cache doesn't
// know) forces exactly one reload before the caller gives up.
package schemacache
