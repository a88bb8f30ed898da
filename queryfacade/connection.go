package queryfacade

import (
	"context"
	"database/sql"
)

// ConnectionProvider is implemented by the host SQLite driver: it
// opens/closes connections and serves a
// per-tag connection pointer. readOnly selects a read connection for
// SELECT/WITH/EXPLAIN statements, a write connection for everything else.
// Acquire/Release must be balanced: every successful Acquire is followed
// by exactly one Release, even on error paths after acquisition.
type ConnectionProvider interface {
	Acquire(ctx context.Context, tag string, readOnly bool) (*sql.Conn, error)
	Release(tag string, conn *sql.Conn)
}

// IdentityCache is implemented by the host: a set of
// (table, id) pairs used by FindByTable to short-circuit rows the caller
// has already materialized.
type IdentityCache interface {
	// CheckAndMark reports whether (table, id) was already cached. As a
	// side effect, if it was not, it is marked cached now.
	CheckAndMark(table, id string) (alreadyCached bool)
}
