package slicedecoder

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
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

func appendIntField(buf []byte, v int64) []byte {
	buf = appendUvarint(buf, 8)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	buf = append(buf, tmp[:]...)
	return append(buf, 0x01)
}

func appendTextField(buf []byte, s string) []byte {
	buf = appendUvarint(buf, uint64(len(s)))
	buf = append(buf, s...)
	return append(buf, 0x03)
}

func appendNullField(buf []byte) []byte {
	buf = appendUvarint(buf, 0)
	return append(buf, 0x00)
}

func appendRealField(buf []byte, v float64) []byte {
	buf = appendUvarint(buf, 8)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v))
	buf = append(buf, tmp[:]...)
	return append(buf, 0x02)
}

// buildSlice constructs one raw (uncompressed) slice with a single table
// "tasks"(id, name) holding one row ("t1", "Alpha").
func buildSlice(t *testing.T) []byte {
	t.Helper()
	var raw []byte
	raw = appendString(raw, "slice-1")   // sliceId
	raw = appendUvarint(raw, 1)          // version
	raw = appendString(raw, "normal")    // priority
	raw = appendUvarint(raw, 1700000000) // timestamp
	raw = appendUvarint(raw, 1)          // numberOfTables

	raw = appendString(raw, "tasks") // tableName
	raw = appendUvarint(raw, 2)      // columnCount
	raw = appendString(raw, "id")
	raw = appendString(raw, "name")

	raw = appendTextField(raw, "t1")
	raw = appendTextField(raw, "Alpha")

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

// drive feeds compressed bytes in the given chunk splitting and parses the
// single-table fixture to completion, returning the decoded table name,
// column names, and rows (as TEXT values).
func drive(t *testing.T, compressed []byte, chunkSize int) (tableName string, columns []string, rows [][]string) {
	t.Helper()
	d := New()
	require.NoError(t, d.Initialize())

	feedAll := func() {
		for i := 0; i < len(compressed); i += chunkSize {
			end := i + chunkSize
			if end > len(compressed) {
				end = len(compressed)
			}
			require.NoError(t, d.Feed(compressed[i:end]))
		}
		require.NoError(t, d.Close())
	}
	feedAll()

	for {
		_, st, err := d.ParseSliceHeader()
		require.NoError(t, err)
		if st == StatusOK {
			break
		}
		require.Equal(t, StatusNeedMoreData, st)
	}

	th, st, err := d.ParseTableHeader()
	require.NoError(t, err)
	require.Equal(t, StatusOK, st)
	tableName = th.TableName
	columns = th.Columns

	for {
		row, st, err := d.ParseRow(len(columns))
		require.NoError(t, err)
		if st == StatusEndOfTable {
			break
		}
		require.Equal(t, StatusOK, st)
		var r []string
		for _, v := range row.Values {
			r = append(r, v.S)
		}
		rows = append(rows, r)
	}

	_, st, err = d.ParseTableHeader()
	require.NoError(t, err)
	require.Equal(t, StatusEndOfStream, st)
	require.True(t, d.IsEndOfStream())
	require.Zero(t, d.RemainingBytes())
	return
}

func TestDecoderChunkSplittingInvariant(t *testing.T) {
	raw := buildSlice(t)
	compressed := compress(t, raw)

	for _, chunkSize := range []int{1, 3, 7, len(compressed), len(compressed) + 100} {
		table, cols, rows := drive(t, compressed, chunkSize)
		require.Equal(t, "tasks", table, "chunkSize=%d", chunkSize)
		require.Equal(t, []string{"id", "name"}, cols, "chunkSize=%d", chunkSize)
		require.Equal(t, [][]string{{"t1", "Alpha"}}, rows, "chunkSize=%d", chunkSize)
	}
}

func TestDecoderCompactBufferDoesNotChangeParseResults(t *testing.T) {
	raw := buildSlice(t)
	compressed := compress(t, raw)

	d := New()
	require.NoError(t, d.Initialize())
	require.NoError(t, d.Feed(compressed))
	require.NoError(t, d.Close())

	_, _, err := d.ParseSliceHeader()
	require.NoError(t, err)
	d.CompactBuffer()

	th, st, err := d.ParseTableHeader()
	require.NoError(t, err)
	require.Equal(t, StatusOK, st)
	d.CompactBuffer()

	row, st, err := d.ParseRow(len(th.Columns))
	require.NoError(t, err)
	require.Equal(t, StatusOK, st)
	require.Equal(t, "t1", row.Values[0].S)
}

func TestLegacyZeroTablesEndsAtFrameEOF(t *testing.T) {
	var raw []byte
	raw = appendString(raw, "slice-legacy")
	raw = appendUvarint(raw, 1)
	raw = appendString(raw, "normal")
	raw = appendUvarint(raw, 1700000000)
	raw = appendUvarint(raw, 0) // legacy: numberOfTables == 0

	raw = appendString(raw, "tasks")
	raw = appendUvarint(raw, 1)
	raw = appendString(raw, "id")
	raw = appendNullField(raw)
	raw = append(raw, 0xFF)

	compressed := compress(t, raw)
	d := New()
	require.NoError(t, d.Initialize())
	require.NoError(t, d.Feed(compressed))
	require.NoError(t, d.Close())

	_, _, err := d.ParseSliceHeader()
	require.NoError(t, err)
	th, st, err := d.ParseTableHeader()
	require.NoError(t, err)
	require.Equal(t, StatusOK, st)
	row, st, err := d.ParseRow(len(th.Columns))
	require.NoError(t, err)
	require.Equal(t, StatusOK, st)
	require.True(t, row.Values[0].IsNull())

	_, st, err = d.ParseRow(len(th.Columns))
	require.NoError(t, err)
	require.Equal(t, StatusEndOfTable, st)

	_, st, err = d.ParseTableHeader()
	require.NoError(t, err)
	require.Equal(t, StatusEndOfStream, st)
}

func TestAppendRealFieldUnused(t *testing.T) {
	// exercised indirectly via appendRealField helper availability for
	// future fixtures; keep a smoke check so the helper stays compiled in.
	b := appendRealField(nil, 3.5)
	require.Len(t, b, 10)
}
