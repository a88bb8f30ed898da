package batch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/syncgrove/core/fieldvalue"
)

// Table holds the accumulated rows for one table, aligned with Columns.
type Table struct {
	Columns []string
	Rows    [][]fieldvalue.Value
}

// Batch accumulates rows across tables between flushes.
type Batch struct {
	tables    map[string]*Table
	totalRows int
}

// New returns an empty Batch.
func New() *Batch {
	return &Batch{tables: make(map[string]*Table)}
}

// AddRow appends a row to the named table. The first call for a table
// fixes its column signature; subsequent calls must agree, since a single
// slice table header is parsed once and every row is column-aligned
// with it.
func (b *Batch) AddRow(table string, columns []string, row []fieldvalue.Value) error {
	t, ok := b.tables[table]
	if !ok {
		t = &Table{Columns: append([]string(nil), columns...)}
		b.tables[table] = t
	} else if !sameColumns(t.Columns, columns) {
		return fmt.Errorf("batch: column signature changed for table %q mid-batch", table)
	}
	t.Rows = append(t.Rows, row)
	b.totalRows++
	return nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TotalRows returns the number of rows accumulated across all tables.
func (b *Batch) TotalRows() int { return b.totalRows }

// Table returns the accumulated table data for name.
func (b *Batch) Table(name string) *Table { return b.tables[name] }

// TableNamesSorted returns the accumulated table names in deterministic
// (lexicographic) order, so callers iterate tables in a stable order.
func (b *Batch) TableNamesSorted() []string {
	names := make([]string, 0, len(b.tables))
	for name := range b.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear empties the batch after a flush. Callers must only Clear after a
// successful flush.
func (b *Batch) Clear() {
	b.tables = make(map[string]*Table)
	b.totalRows = 0
}

// ColumnSignature renders a table's column list as a cache-key fragment.
func ColumnSignature(columns []string) string {
	return strings.Join(columns, ",")
}
