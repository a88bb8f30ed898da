// Package fieldvalue defines the tagged-variant value used as the
// canonical intermediate form between the slice binary format, SQL
// parameter binding, and JSON payload application. A Value is always one
// of NULL, INT, REAL, TEXT, or BLOB; callers never need to juggle separate
// Go types across those boundaries.
package fieldvalue
