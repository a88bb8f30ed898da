// Package engine provides helpers for working with the modernc.org/sqlite
// driver in this module: opening connections and applying the WAL pragma
// sequence the slice import engine needs around a long-running write
// transaction. It intentionally keeps a thin surface so other packages can
// share the same driver instance.
package engine
