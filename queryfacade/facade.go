package queryfacade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/syncgrove/core/logging"
)

// ErrMissingIDColumn is returned by FindByTable when the query's first
// result column is not named "id".
var ErrMissingIDColumn = errors.New("queryfacade: query must produce id as its first column")

// Options configures a new Facade.
type Options struct {
	Connections ConnectionProvider
	Identity    IdentityCache
	Logger      *slog.Logger // optional; defaults to a discarding logger
}

// Facade is the query facade: parameterized execSql plus an
// identity-cached findByTable, both acquiring and releasing a per-tag
// connection around a single prepare/bind/step/finalize cycle.
type Facade struct {
	conns  ConnectionProvider
	cache  IdentityCache
	logger *slog.Logger
}

// New returns a Facade backed by the given host collaborators.
func New(opts Options) *Facade {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Facade{conns: opts.Connections, cache: opts.Identity, logger: logger}
}

// ExecSQL runs sqlText against tag's read or write connection (read for a
// leading SELECT/WITH/EXPLAIN, case-insensitive, write otherwise), binding
// args positionally, and returns every produced row as a column-to-value
// map. Database errors are returned unwrapped, carrying the driver's own
// errmsg, so the host sees the same message the driver produced.
func (f *Facade) ExecSQL(ctx context.Context, tag, sqlText string, args []interface{}) ([]Row, error) {
	conn, err := f.conns.Acquire(ctx, tag, isReadOnly(sqlText))
	if err != nil {
		return nil, err
	}
	defer f.conns.Release(tag, conn)

	stmt, err := conn.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

// FindByTable runs query (which must produce id as its first column)
// against table's read connection, consulting the identity cache per row:
// a row already cached is reduced to {"id": <id>}; otherwise it is marked
// cached and emitted in full. This lets higher layers short-circuit
// re-materializing records they already hold.
func (f *Facade) FindByTable(ctx context.Context, tag, table, query string, args []interface{}) ([]Row, error) {
	conn, err := f.conns.Acquire(ctx, tag, true)
	if err != nil {
		return nil, err
	}
	defer f.conns.Release(tag, conn)

	stmt, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 || !strings.EqualFold(cols[0], "id") {
		return nil, ErrMissingIDColumn
	}

	all, err := scanRows(rows)
	if err != nil {
		return nil, err
	}

	out := make([]Row, 0, len(all))
	for _, row := range all {
		id := fmt.Sprint(row[cols[0]])
		if f.cache != nil && f.cache.CheckAndMark(table, id) {
			out = append(out, Row{"id": row[cols[0]]})
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// isReadOnly reports whether sqlText's leading keyword is SELECT, WITH, or
// EXPLAIN, matched case-insensitively against the first non-whitespace
// word.
func isReadOnly(sqlText string) bool {
	trimmed := strings.TrimLeft(sqlText, " \t\r\n")
	end := strings.IndexFunc(trimmed, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r' || r == '\n' || r == '('
	})
	word := trimmed
	if end >= 0 {
		word = trimmed[:end]
	}
	switch strings.ToUpper(word) {
	case "SELECT", "WITH", "EXPLAIN":
		return true
	default:
		return false
	}
}
