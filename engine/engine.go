package engine

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

// Open opens a SQLite database using the modernc.org/sqlite driver.
//
// For file-based databases, pass a path like "./db.sqlite". For in-memory
// databases, pass ":memory:".
func Open(dsn string) (*sql.DB, error) { return sql.Open("sqlite", dsn) }

// Execer is satisfied by both *sql.DB and *sql.Conn. The pragma helpers
// below accept it rather than *sql.DB specifically, since a long-running
// import transaction pins a single *sql.Conn for its whole lifetime and
// must apply pragmas on that same connection.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ApplyImportPragmas sets the WAL/synchronous/temp-store/cache-size/
// wal_autocheckpoint pragmas a long-running import transaction wants, per
// the glossary's "WAL pragmas (set at import begin)" entry. Pragma
// failures are returned verbatim; the caller decides whether they are
// fatal for its own beginTransaction sequence.
func ApplyImportPragmas(ctx context.Context, db Execer) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA cache_size=-20000",
		"PRAGMA wal_autocheckpoint=10000",
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// RestoreDefaultPragmas runs the commit-time checkpoint and restores
// wal_autocheckpoint to its default, per the same glossary entry.
func RestoreDefaultPragmas(ctx context.Context, db Execer) error {
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, "PRAGMA wal_autocheckpoint=1000")
	return err
}
