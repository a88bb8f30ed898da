// Package sqlinsert implements the SQL insert helper: a prepared-statement
// cache keyed by (table, column signature, chunk size)
// that executes multi-row "INSERT OR IGNORE" statements against an open
// transaction. Identifiers are trusted and quoted; values are always
// parameter-bound.
package sqlinsert
