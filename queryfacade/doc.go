// Package queryfacade implements the query facade: parameterized SQL
// execution with read/write connection selection, plus an identity-cache
// short-circuit for the common "give me the row, or just its id if I
// already have it materialized" access pattern. It follows the same
// acquire/prepare/step/finalize/release cycle as sqlinsert and
// schemacache, generalized from fixed statements to arbitrary
// caller-supplied SQL.
package queryfacade
