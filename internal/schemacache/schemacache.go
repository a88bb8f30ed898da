package schemacache

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
)

// Cache is a process-wide column-set cache keyed by table name, carrying
// the SQLite schema_version it was loaded under. A Cache is safe for
// concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	schemaVersion int64
	columns       map[string]struct{}
}

// Queryer is satisfied by both *sql.DB and *sql.Conn, so the cache can be
// driven either by a pooled handle or by the single pinned connection an
// apply/import transaction holds.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// New returns an empty Cache. Production code shares one Cache across the
// process; tests construct fresh ones for isolation.
func New() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

// Columns returns the known column set for table, loading it from db if
// absent from the cache. It does not check schema_version on a cache hit;
// callers that observe an unknown column call Reload explicitly instead,
// since checking schema_version on every access would mean a PRAGMA round
// trip per row.
func (c *Cache) Columns(ctx context.Context, db Queryer, table string) (map[string]struct{}, error) {
	c.mu.Lock()
	if e, ok := c.entries[table]; ok {
		cols := e.columns
		c.mu.Unlock()
		return cols, nil
	}
	c.mu.Unlock()
	return c.Reload(ctx, db, table)
}

// Reload unconditionally re-reads table's column set from db via
// PRAGMA table_info and replaces the cached entry, recording the current
// PRAGMA schema_version alongside it.
func (c *Cache) Reload(ctx context.Context, db Queryer, table string) (map[string]struct{}, error) {
	version, err := schemaVersion(ctx, db)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("schemacache: table_info(%s): %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]struct{})
	for rows.Next() {
		var (
			cid        int64
			name       string
			colType    sql.NullString
			notNull    int64
			dfltValue  sql.NullString
			pk         int64
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("schemacache: scan table_info(%s): %w", table, err)
		}
		cols[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("schemacache: table %q has no columns (does it exist?)", table)
	}

	c.mu.Lock()
	c.entries[table] = entry{schemaVersion: version, columns: cols}
	c.mu.Unlock()
	return cols, nil
}

func schemaVersion(ctx context.Context, db Queryer) (int64, error) {
	var v int64
	if err := db.QueryRowContext(ctx, "PRAGMA schema_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("schemacache: schema_version: %w", err)
	}
	return v, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
