// Package batch implements the batch accumulator: rows gathered
// per-table, aligned with each table's declared column order, ready to
// hand to the SQL insert helper in one flush.
package batch
