package sqlinsert

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/syncgrove/core/batch"
	"github.com/syncgrove/core/fieldvalue"
)

// maxParamsPerStatement mirrors SQLite's default parameter cap of 999,
// with a conservative safety margin.
const maxParamsPerStatement = 900

// preparer is satisfied by *sql.Tx and *sql.Conn; a Helper can sit either
// atop a database/sql transaction object or atop a single pinned
// connection carrying a manually-issued "BEGIN IMMEDIATE" (the slice
// import engine needs the latter to control savepoints explicitly).
type preparer interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Helper executes multi-row "INSERT OR IGNORE" statements against an open
// transaction, caching prepared statements keyed by (table, column
// signature, chunk size).
type Helper struct {
	tx    preparer
	cache map[string]*sql.Stmt
}

// New returns a Helper bound to tx. The same Helper should be reused for
// every flush within one import transaction so its statement cache pays
// off across savepoint cycles.
func New(tx preparer) *Helper {
	return &Helper{tx: tx, cache: make(map[string]*sql.Stmt)}
}

func maxRowsPerStmt(columnCount int) int {
	if columnCount <= 0 {
		columnCount = 1
	}
	n := maxParamsPerStatement / columnCount
	if n < 1 {
		n = 1
	}
	return n
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func cacheKey(table string, columns []string, rows int) string {
	return table + "|" + batch.ColumnSignature(columns) + "|" + strconv.Itoa(rows)
}

func buildInsertSQL(table string, columns []string, rows int) string {
	quotedCols := make([]string, len(columns))
	for i, c := range columns {
		quotedCols[i] = quoteIdent(c)
	}
	colList := strings.Join(quotedCols, ", ") + `, "_status"`

	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	tuple := "(" + strings.Join(placeholders, ", ") + ", 'synced')"

	tuples := make([]string, rows)
	for i := range tuples {
		tuples[i] = tuple
	}

	return fmt.Sprintf(`INSERT OR IGNORE INTO %s (%s) VALUES %s`, quoteIdent(table), colList, strings.Join(tuples, ", "))
}

// InsertBatch flushes every table in b, iterating tables in sorted order
// for deterministic testing. On any prepare/bind/step error it
// returns the driver's error verbatim and stops; the caller is responsible
// for rolling back the outer transaction.
func (h *Helper) InsertBatch(ctx context.Context, b *batch.Batch) error {
	for _, table := range b.TableNamesSorted() {
		t := b.Table(table)
		if err := h.insertTable(ctx, table, t.Columns, t.Rows); err != nil {
			return err
		}
	}
	return nil
}

func (h *Helper) insertTable(ctx context.Context, table string, columns []string, rows [][]fieldvalue.Value) error {
	n := len(columns)
	maxRows := maxRowsPerStmt(n)

	i := 0
	for i < len(rows) {
		chunk := maxRows
		if remaining := len(rows) - i; remaining < chunk {
			chunk = remaining
		}
		cacheable := chunk == maxRows

		stmt, err := h.stmtFor(ctx, table, columns, chunk, cacheable)
		if err != nil {
			return err
		}

		args := make([]interface{}, 0, chunk*n)
		for r := i; r < i+chunk; r++ {
			row := rows[r]
			for c := 0; c < n; c++ {
				if c < len(row) {
					args = append(args, row[c].Interface())
				} else {
					args = append(args, nil)
				}
			}
		}

		_, execErr := stmt.ExecContext(ctx, args...)
		if !cacheable {
			_ = stmt.Close()
		}
		if execErr != nil {
			return execErr
		}
		i += chunk
	}
	return nil
}

func (h *Helper) stmtFor(ctx context.Context, table string, columns []string, chunk int, cacheable bool) (*sql.Stmt, error) {
	if !cacheable {
		return h.tx.PrepareContext(ctx, buildInsertSQL(table, columns, chunk))
	}
	key := cacheKey(table, columns, chunk)
	if stmt, ok := h.cache[key]; ok {
		return stmt, nil
	}
	stmt, err := h.tx.PrepareContext(ctx, buildInsertSQL(table, columns, chunk))
	if err != nil {
		return nil, err
	}
	h.cache[key] = stmt
	return stmt, nil
}

// FinalizeStatements releases every cached prepared statement. Called at
// transaction end (commit) or on rollback.
func (h *Helper) FinalizeStatements() error {
	var firstErr error
	for key, stmt := range h.cache {
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(h.cache, key)
	}
	return firstErr
}
