package sliceimport

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/syncgrove/core/engine"
	"github.com/syncgrove/core/platform"
)

func appendUvarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

func appendString(buf []byte, s string) []byte {
	buf = appendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendTextField(buf []byte, s string) []byte {
	buf = appendUvarint(buf, uint64(len(s)))
	buf = append(buf, s...)
	return append(buf, 0x03)
}

func appendIntField(buf []byte, v int64) []byte {
	buf = appendUvarint(buf, 8)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	buf = append(buf, tmp[:]...)
	return append(buf, 0x01)
}

// buildSlice constructs one raw (uncompressed) slice with a single table
// "tasks"(id, name, rank) holding two rows.
func buildSlice(t *testing.T) []byte {
	t.Helper()
	var raw []byte
	raw = appendString(raw, "slice-1")
	raw = appendUvarint(raw, 1)
	raw = appendString(raw, "normal")
	raw = appendUvarint(raw, 1700000000)
	raw = appendUvarint(raw, 1) // numberOfTables

	raw = appendString(raw, "tasks")
	raw = appendUvarint(raw, 3)
	raw = appendString(raw, "id")
	raw = appendString(raw, "name")
	raw = appendString(raw, "rank")

	raw = appendTextField(raw, "t1")
	raw = appendTextField(raw, "Alpha")
	raw = appendIntField(raw, 1)

	raw = appendTextField(raw, "t2")
	raw = appendTextField(raw, "Beta")
	raw = appendIntField(raw, 2)

	raw = append(raw, 0xFF) // end-of-table delimiter
	return raw
}

// buildLegacyZeroTablesSlice constructs a slice whose header sets
// numberOfTables to 0 (§3.1's legacy producer convention of streaming
// tables until frame-EOF rather than declaring a count up front) holding
// one table "tasks"(id) with a single row.
func buildLegacyZeroTablesSlice(t *testing.T) []byte {
	t.Helper()
	var raw []byte
	raw = appendString(raw, "slice-legacy")
	raw = appendUvarint(raw, 1)
	raw = appendString(raw, "normal")
	raw = appendUvarint(raw, 1700000000)
	raw = appendUvarint(raw, 0) // legacy: numberOfTables == 0

	raw = appendString(raw, "tasks")
	raw = appendUvarint(raw, 1)
	raw = appendString(raw, "id")

	raw = appendTextField(raw, "t1")

	raw = append(raw, 0xFF) // end-of-table delimiter
	return raw
}

func compress(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

type noopHandle struct{ cancelled chan struct{} }

func (h noopHandle) Cancel() {
	if h.cancelled != nil {
		select {
		case h.cancelled <- struct{}{}:
		default:
		}
	}
}

// syncDownloader delivers its chunks and completion synchronously, inline
// within the DownloadFile call.
type syncDownloader struct {
	chunks [][]byte
}

func (d *syncDownloader) DownloadFile(ctx context.Context, url string, onChunk func([]byte), onComplete func(string)) platform.CancelHandle {
	for _, c := range d.chunks {
		onChunk(c)
	}
	onComplete("")
	return noopHandle{}
}

// hangingDownloader never calls onChunk/onComplete; it only records whether
// Cancel was called on its handle.
type hangingDownloader struct {
	cancelled chan struct{}
}

func (d *hangingDownloader) DownloadFile(ctx context.Context, url string, onChunk func([]byte), onComplete func(string)) platform.CancelHandle {
	return noopHandle{cancelled: d.cancelled}
}

func openTestConn(t *testing.T, schema string) (*sql.DB, *sql.Conn) {
	t.Helper()
	db, err := engine.Open(":memory:")
	require.NoError(t, err)
	ctx := context.Background()
	if schema != "" {
		_, err := db.ExecContext(ctx, schema)
		require.NoError(t, err)
	}
	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		db.Close()
	})
	return db, conn
}

func waitForCompletion(t *testing.T, done chan string) string {
	t.Helper()
	select {
	case msg := <-done:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for import completion")
		return ""
	}
}

func TestEngineImportsSingleTable(t *testing.T) {
	_, conn := openTestConn(t, `CREATE TABLE tasks (id TEXT PRIMARY KEY, name TEXT, rank INTEGER, "_status" TEXT);`)

	compressed := compress(t, buildSlice(t))
	eng := New(Options{
		Conn:       conn,
		Downloader: &syncDownloader{chunks: [][]byte{compressed}},
	})

	done := make(chan string, 1)
	require.NoError(t, eng.Start(context.Background(), "https://example.com/slice", func(msg string) { done <- msg }))

	require.Empty(t, waitForCompletion(t, done))
	require.EqualValues(t, 2, eng.TotalRows())

	var name string
	err := conn.QueryRowContext(context.Background(), `SELECT name FROM tasks WHERE id = 't2'`).Scan(&name)
	require.NoError(t, err)
	require.Equal(t, "Beta", name)
}

func TestEngineImportsLegacyZeroTablesStream(t *testing.T) {
	_, conn := openTestConn(t, `CREATE TABLE tasks (id TEXT PRIMARY KEY, "_status" TEXT);`)

	compressed := compress(t, buildLegacyZeroTablesSlice(t))
	eng := New(Options{
		Conn:       conn,
		Downloader: &syncDownloader{chunks: [][]byte{compressed}},
	})

	done := make(chan string, 1)
	require.NoError(t, eng.Start(context.Background(), "https://example.com/slice", func(msg string) { done <- msg }))

	require.Empty(t, waitForCompletion(t, done), "legacy numberOfTables==0 stream should complete once frame-EOF is reached")
	require.EqualValues(t, 1, eng.TotalRows())

	var id string
	err := conn.QueryRowContext(context.Background(), `SELECT id FROM tasks WHERE id = 't1'`).Scan(&id)
	require.NoError(t, err)
	require.Equal(t, "t1", id)
}

func TestEngineChunkSplittingProducesSameResult(t *testing.T) {
	_, conn := openTestConn(t, `CREATE TABLE tasks (id TEXT PRIMARY KEY, name TEXT, rank INTEGER, "_status" TEXT);`)

	compressed := compress(t, buildSlice(t))
	var chunks [][]byte
	for i := 0; i < len(compressed); i += 3 {
		end := i + 3
		if end > len(compressed) {
			end = len(compressed)
		}
		chunks = append(chunks, compressed[i:end])
	}

	eng := New(Options{
		Conn:       conn,
		Downloader: &syncDownloader{chunks: chunks},
	})

	done := make(chan string, 1)
	require.NoError(t, eng.Start(context.Background(), "https://example.com/slice", func(msg string) { done <- msg }))
	require.Empty(t, waitForCompletion(t, done))
	require.EqualValues(t, 2, eng.TotalRows())
}

func TestEngineStartTwiceFails(t *testing.T) {
	_, conn := openTestConn(t, `CREATE TABLE tasks (id TEXT PRIMARY KEY, name TEXT, rank INTEGER, "_status" TEXT);`)

	compressed := compress(t, buildSlice(t))
	eng := New(Options{
		Conn:       conn,
		Downloader: &syncDownloader{chunks: [][]byte{compressed}},
	})

	done := make(chan string, 1)
	require.NoError(t, eng.Start(context.Background(), "https://example.com/slice", func(msg string) { done <- msg }))
	waitForCompletion(t, done)

	err := eng.Start(context.Background(), "https://example.com/slice", func(string) {})
	require.ErrorIs(t, err, ErrAlreadyInProgress)
}

func TestEngineFailsOnMissingTable(t *testing.T) {
	_, conn := openTestConn(t, "") // no tasks table created

	compressed := compress(t, buildSlice(t))
	eng := New(Options{
		Conn:       conn,
		Downloader: &syncDownloader{chunks: [][]byte{compressed}},
	})

	done := make(chan string, 1)
	require.NoError(t, eng.Start(context.Background(), "https://example.com/slice", func(msg string) { done <- msg }))

	msg := waitForCompletion(t, done)
	require.NotEmpty(t, msg, "expected a failure message for a missing table")
	require.Zero(t, eng.TotalRows(), "expected rollback to leave TotalRows at 0")
}

func TestEngineCancelBeforeDownloadCompletes(t *testing.T) {
	_, conn := openTestConn(t, `CREATE TABLE tasks (id TEXT PRIMARY KEY, name TEXT, rank INTEGER, "_status" TEXT);`)

	cancelled := make(chan struct{}, 1)
	eng := New(Options{
		Conn:       conn,
		Downloader: &hangingDownloader{cancelled: cancelled},
	})

	done := make(chan string, 1)
	require.NoError(t, eng.Start(context.Background(), "https://example.com/slice", func(msg string) { done <- msg }))

	eng.Cancel()

	msg := waitForCompletion(t, done)
	require.Equal(t, ErrCancelled.Error(), msg)
	select {
	case <-cancelled:
	default:
		t.Fatal("expected downloader handle to be cancelled")
	}
}

func TestEngineMemoryAlertShrinksBatchSize(t *testing.T) {
	_, conn := openTestConn(t, `CREATE TABLE tasks (id TEXT PRIMARY KEY, name TEXT, rank INTEGER, "_status" TEXT);`)

	var subscribed platform.MemoryAlertFunc
	alerts := fakeMemoryAlerts{subscribe: func(fn platform.MemoryAlertFunc) platform.CancelHandle {
		subscribed = fn
		return noopHandle{}
	}}

	eng := New(Options{
		Conn:          conn,
		Downloader:    &hangingDownloader{cancelled: make(chan struct{}, 1)},
		MemoryAlerts:  alerts,
		BatchSizeHint: func() int { return 2000 },
	})

	done := make(chan string, 1)
	require.NoError(t, eng.Start(context.Background(), "https://example.com/slice", func(msg string) { done <- msg }))
	require.NotNil(t, subscribed, "engine did not subscribe to memory alerts")
	subscribed(platform.MemoryWarn)

	eng.mu.Lock()
	got := eng.batchSize
	eng.mu.Unlock()
	require.Equal(t, 1000, got)

	eng.Cancel()
	waitForCompletion(t, done)
}

type fakeMemoryAlerts struct {
	subscribe func(platform.MemoryAlertFunc) platform.CancelHandle
}

func (f fakeMemoryAlerts) Subscribe(fn platform.MemoryAlertFunc) platform.CancelHandle {
	return f.subscribe(fn)
}
