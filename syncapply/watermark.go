package syncapply

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/syncgrove/core/internal/schemacache"
)

// WatermarkKey is the reserved local_storage key the host JS layer reads to
// derive the next sync's sequenceId= query parameter.
const WatermarkKey = "__watermelon_last_sequence_id"

// LocalStorageDDL returns the CREATE TABLE IF NOT EXISTS statement for the
// local_storage watermark table, for hosts that want to run setup DDL once
// rather than hand-writing the schema.
func LocalStorageDDL() string {
	return `CREATE TABLE IF NOT EXISTS local_storage (
    key   TEXT PRIMARY KEY,
    value TEXT
);`
}

// LastSequenceID reads the current watermark value, returning "" if unset.
func LastSequenceID(ctx context.Context, db schemacache.Queryer) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM local_storage WHERE key = ?`, WatermarkKey).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("syncapply: reading watermark: %w", err)
	}
	return value, nil
}

func upsertWatermark(ctx context.Context, exec execer, value string) error {
	_, err := exec.ExecContext(ctx, `INSERT OR REPLACE INTO local_storage (key, value) VALUES (?, ?)`, WatermarkKey, value)
	return err
}
