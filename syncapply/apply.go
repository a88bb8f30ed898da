package syncapply

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/syncgrove/core/internal/schemacache"
)

// jsonConfig decodes numbers as json.Number so bindValueFor can classify
// "3" vs "3.0" vs "3e1" by the literal's own text, following the
// int-unless-.eE rule: jsoniter's default float64 decode would already
// have discarded that distinction.
var jsonConfig = jsoniter.Config{UseNumber: true}.Froze()

const maxDeleteChunk = 900

var reservedEntryKeys = map[string]struct{}{
	"table": {}, "tableName": {},
	"deleted": {}, "isDeleted": {}, "is_deleted": {},
	"type": {}, "op": {}, "operation": {},
	"row": {}, "record": {}, "data": {},
	"sequenceId": {}, "sequence_id": {}, "sequence": {},
}

// execer is satisfied by *sql.Conn (and *sql.DB), the minimal surface
// Apply needs for raw BEGIN/COMMIT/ROLLBACK and prepared execution.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// conn is the combination of execer and schemacache.Queryer that Apply
// requires; *sql.Conn satisfies it.
type conn interface {
	execer
	schemacache.Queryer
}

// Apply parses payloadJSON and applies it transactionally to the database
// reachable through c, advancing the local_storage watermark. c is
// expected to be a single pinned connection (e.g. *sql.Conn) selected by
// the host via connectionTag, since the whole apply run must stay on one
// SQLite handle.
func Apply(ctx context.Context, c conn, cache *schemacache.Cache, payloadJSON string) error {
	var root interface{}
	if err := jsonConfig.UnmarshalFromString(payloadJSON, &root); err != nil {
		return fieldErr("root", "invalid JSON: "+err.Error())
	}
	entries, ok := root.([]interface{})
	if !ok {
		return fieldErr("root", "Invalid JSON root")
	}

	if _, err := c.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("syncapply: BEGIN IMMEDIATE: %w", err)
	}

	deletes := make(map[string][]string)
	maxSeq := ""

	if err := applyEntries(ctx, c, cache, entries, deletes, &maxSeq); err != nil {
		rollback(ctx, c)
		return err
	}

	for table, ids := range deletes {
		if err := deleteIDs(ctx, c, table, ids); err != nil {
			rollback(ctx, c)
			return err
		}
	}

	if maxSeq != "" {
		if err := upsertWatermark(ctx, c, maxSeq); err != nil {
			rollback(ctx, c)
			return fmt.Errorf("syncapply: updating watermark: %w", err)
		}
	}

	if _, err := c.ExecContext(ctx, "COMMIT"); err != nil {
		rollback(ctx, c)
		return fmt.Errorf("syncapply: COMMIT: %w", err)
	}
	return nil
}

func rollback(ctx context.Context, c conn) {
	_, _ = c.ExecContext(ctx, "ROLLBACK")
}

func applyEntries(ctx context.Context, c conn, cache *schemacache.Cache, entries []interface{}, deletes map[string][]string, maxSeq *string) error {
	for i, raw := range entries {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			return fieldErr(fmt.Sprintf("entries[%d]", i), "entry is not a JSON object")
		}

		table := firstString(entry, "table", "tableName")
		if table == "" {
			return fieldErr(fmt.Sprintf("entries[%d].table", i), "missing table/tableName")
		}

		if seq, present := extractSequenceID(entry); present {
			if *maxSeq == "" || seq > *maxSeq {
				*maxSeq = seq
			}
		}

		isDeleted := extractDeleteFlag(entry)
		row := extractRow(entry)

		if isDeleted {
			id, ok := firstStringFrom(row, entry, "id")
			if !ok {
				return fieldErr(fmt.Sprintf("entries[%d].id", i), "delete entry missing id")
			}
			deletes[table] = append(deletes[table], id)
			continue
		}

		if err := applyRowObject(ctx, c, cache, table, row); err != nil {
			return err
		}
	}
	return nil
}

func extractDeleteFlag(entry map[string]interface{}) bool {
	for _, k := range []string{"deleted", "isDeleted", "is_deleted"} {
		if v, ok := entry[k]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
	}
	for _, k := range []string{"type", "op", "operation"} {
		if v, ok := entry[k]; ok {
			if s, ok := v.(string); ok {
				switch strings.ToLower(s) {
				case "delete", "deleted":
					return true
				case "upsert", "insert", "update":
					return false
				}
			}
		}
	}
	return false
}

func extractRow(entry map[string]interface{}) map[string]interface{} {
	for _, k := range []string{"row", "record", "data"} {
		if v, ok := entry[k]; ok {
			if m, ok := v.(map[string]interface{}); ok {
				return m
			}
		}
	}
	row := make(map[string]interface{}, len(entry))
	for k, v := range entry {
		if _, reserved := reservedEntryKeys[k]; reserved {
			continue
		}
		row[k] = v
	}
	return row
}

func extractSequenceID(entry map[string]interface{}) (string, bool) {
	for _, k := range []string{"sequenceId", "sequence_id", "sequence"} {
		if v, ok := entry[k]; ok {
			return sequenceIDString(v)
		}
	}
	return "", false
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// firstStringFrom looks for key in row first, falling back to entry, to
// extract id from the row (or the entry).
func firstStringFrom(row, entry map[string]interface{}, key string) (string, bool) {
	if v, ok := row[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	if v, ok := entry[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func applyRowObject(ctx context.Context, c conn, cache *schemacache.Cache, table string, row map[string]interface{}) error {
	cols, err := cache.Columns(ctx, c, table)
	if err != nil {
		return fmt.Errorf("syncapply: loading schema for %q: %w", table, err)
	}

	if missingColumn(row, cols) {
		cols, err = cache.Reload(ctx, c, table)
		if err != nil {
			return fmt.Errorf("syncapply: reloading schema for %q: %w", table, err)
		}
		if missingColumn(row, cols) {
			return fieldErr(table, "row contains a column unknown to the table schema")
		}
	}

	if _, ok := cols["id"]; !ok {
		return fieldErr(table, "table has no id column")
	}
	if _, ok := row["id"]; !ok {
		return fieldErr(table, "row missing id")
	}

	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	quotedCols := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		quotedCols[i] = quoteIdent(k)
		placeholders[i] = "?"
		v, err := bindValueFor(row[k])
		if err != nil {
			return fieldErr(table+"."+k, err.Error())
		}
		args[i] = v
	}

	stmtSQL := fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (%s)`,
		quoteIdent(table), strings.Join(quotedCols, ", "), strings.Join(placeholders, ", "))

	stmt, err := c.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return fmt.Errorf("syncapply: preparing upsert for %q: %w", table, err)
	}
	defer stmt.Close()

	if _, err := stmt.ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("syncapply: upserting into %q: %w", table, err)
	}
	return nil
}

func missingColumn(row map[string]interface{}, cols map[string]struct{}) bool {
	for k := range row {
		if _, ok := cols[k]; !ok {
			return true
		}
	}
	return false
}

func deleteIDs(ctx context.Context, c conn, table string, ids []string) error {
	for i := 0; i < len(ids); i += maxDeleteChunk {
		end := i + maxDeleteChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[i:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, len(chunk))
		for j, id := range chunk {
			placeholders[j] = "?"
			args[j] = id
		}

		stmtSQL := fmt.Sprintf(`DELETE FROM %s WHERE id IN (%s)`, quoteIdent(table), strings.Join(placeholders, ", "))
		if _, err := c.ExecContext(ctx, stmtSQL, args...); err != nil {
			return fmt.Errorf("syncapply: deleting from %q: %w", table, err)
		}
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
