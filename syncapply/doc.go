// Package syncapply implements the sync apply engine: a transactional
// JSON array of upsert/delete entries is applied to the
// local SQLite database, advancing the local_storage last-sequence-id
// watermark. Column sets are validated against the schema cache and
// INSERT statements are built dynamically from whatever columns a given
// entry names.
package syncapply
