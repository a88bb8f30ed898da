package slicedecoder

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/syncgrove/core/fieldvalue"
	"github.com/syncgrove/core/slicefmt"
)

// Decoder is a streaming decompressor plus binary-slice parser cursor. A
// Decoder is created per import and is not safe for concurrent use: the
// import engine serializes all decoder access under its own mutex.
type Decoder struct {
	mu sync.Mutex

	buf    []byte
	offset int

	frameEOF       bool // the zstd frame itself has ended
	headerParsed   bool
	expectedTables int64
	tablesParsed   int64

	pw       *io.PipeWriter
	zr       *zstd.Decoder
	pumpDone chan struct{}
	pumpErr  error
}

// New returns an uninitialized Decoder. Call Initialize before Feed.
func New() *Decoder {
	return &Decoder{}
}

// Initialize starts the zstd decompression stream. It must be called
// exactly once, before the first Feed.
func (d *Decoder) Initialize() error {
	pr, pw := io.Pipe()
	zr, err := zstd.NewReader(pr)
	if err != nil {
		return fmt.Errorf("slicedecoder: zstd.NewReader: %w", err)
	}
	d.pw = pw
	d.zr = zr
	d.pumpDone = make(chan struct{})
	go d.pump()
	return nil
}

// pump continuously drains decompressed bytes from the zstd reader into the
// decoder's buffer. It exits when the zstd reader reports the frame ended
// (io.EOF, triggered by Close() closing the pipe writer) or hits a fatal
// decompression error.
func (d *Decoder) pump() {
	defer close(d.pumpDone)
	chunk := make([]byte, 64*1024)
	for {
		n, err := d.zr.Read(chunk)
		if n > 0 {
			d.mu.Lock()
			d.buf = append(d.buf, chunk[:n]...)
			d.mu.Unlock()
		}
		if err != nil {
			d.mu.Lock()
			if err == io.EOF {
				d.frameEOF = true
			} else {
				d.pumpErr = fmt.Errorf("slicedecoder: zstd decompression: %w", err)
			}
			d.mu.Unlock()
			return
		}
	}
}

// Feed appends a chunk of compressed bytes to the decompression stream.
// Feed blocks only until the zstd reader has consumed the compressed bytes
// from the pipe (an io.Pipe write/read pairing), not until a full frame is
// available, so callers may feed arbitrarily small chunks. The decompressed
// output of a chunk may reach the buffer after Feed returns; Close waits
// for the pump to drain.
func (d *Decoder) Feed(chunk []byte) error {
	if d.pw == nil {
		return errors.New("slicedecoder: Feed called before Initialize")
	}
	if len(chunk) > 0 {
		if _, err := d.pw.Write(chunk); err != nil {
			return fmt.Errorf("slicedecoder: zstd write: %w", err)
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pumpErr
}

// Close signals that no more compressed bytes will be fed, waits for the
// pump goroutine to drain, and releases the zstd decoder. It is idempotent.
func (d *Decoder) Close() error {
	if d.pw != nil {
		_ = d.pw.Close()
		d.pw = nil
	}
	if d.pumpDone != nil {
		<-d.pumpDone
		d.pumpDone = nil
	}
	if d.zr != nil {
		d.zr.Close()
		d.zr = nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pumpErr
}

// RemainingBytes returns the number of undecoded bytes currently buffered.
func (d *Decoder) RemainingBytes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buf) - d.offset
}

// IsEndOfStream reports whether the table loop has observed end-of-stream
// (ParseTableHeader returned StatusEndOfStream).
func (d *Decoder) IsEndOfStream() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isEndOfStreamLocked()
}

func (d *Decoder) isEndOfStreamLocked() bool {
	if d.expectedTables > 0 {
		return d.tablesParsed >= d.expectedTables
	}
	return d.frameEOF && d.offset >= len(d.buf)
}

// CompactBuffer discards already-consumed bytes from the front of the
// buffer: clear (and shrink) when fully consumed; otherwise shift the
// unconsumed tail to the front once the consumed prefix has grown past
// 2 MiB or past half the buffer's size.
func (d *Decoder) CompactBuffer() {
	const (
		shrinkCapThreshold  = 16 * 1024 * 1024
		compactAbsThreshold = 2 * 1024 * 1024
	)
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.offset == len(d.buf) {
		if cap(d.buf) > shrinkCapThreshold {
			d.buf = nil
		} else {
			d.buf = d.buf[:0]
		}
		d.offset = 0
		return
	}

	if d.offset > compactAbsThreshold || d.offset > len(d.buf)/2 {
		remaining := len(d.buf) - d.offset
		copy(d.buf, d.buf[d.offset:])
		d.buf = d.buf[:remaining]
		d.offset = 0
	}
}

// ParseSliceHeader decodes the slice header from the current position. It
// may only be called once per Decoder; the caller is
// responsible for sequencing (the import engine calls it exactly once).
func (d *Decoder) ParseSliceHeader() (slicefmt.SliceHeader, Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	hdr, n, err := slicefmt.ReadSliceHeader(d.buf, d.offset)
	status, err := d.classify(err)
	if status != StatusOK {
		return slicefmt.SliceHeader{}, status, err
	}
	d.offset += n
	d.headerParsed = true
	d.expectedTables = hdr.NumberOfTables
	return hdr, StatusOK, nil
}

// ParseTableHeader decodes the next table header, or reports EndOfStream
// when the table loop is complete.
func (d *Decoder) ParseTableHeader() (slicefmt.TableHeader, Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isEndOfStreamLocked() {
		return slicefmt.TableHeader{}, StatusEndOfStream, nil
	}

	hdr, n, err := slicefmt.ReadTableHeader(d.buf, d.offset)
	status, err := d.classify(err)
	if status == StatusNeedMoreData {
		// A legacy (expectedTables==0) stream that has reached frame EOF
		// with a partial table header on the wire is truncated, not
		// merely waiting for more data.
		if d.frameEOF {
			return slicefmt.TableHeader{}, StatusError, errors.New("slicedecoder: truncated data after frame-EOF (table header)")
		}
		return slicefmt.TableHeader{}, StatusNeedMoreData, nil
	}
	if status != StatusOK {
		return slicefmt.TableHeader{}, status, err
	}
	d.offset += n
	return hdr, StatusOK, nil
}

// ParseRow decodes one row of columnCount fields, or reports EndOfTable
// when the 0xFF delimiter is encountered instead of a row.
func (d *Decoder) ParseRow(columnCount int) (Row, Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.offset >= len(d.buf) {
		if d.frameEOF {
			return Row{}, StatusError, errors.New("slicedecoder: truncated data after frame-EOF (row)")
		}
		return Row{}, StatusNeedMoreData, nil
	}

	if d.buf[d.offset] == 0xFF {
		d.offset++
		d.tablesParsed++
		return Row{}, StatusEndOfTable, nil
	}

	pos := d.offset
	values := make([]fieldvalue.Value, 0, columnCount)
	for i := 0; i < columnCount; i++ {
		v, n, err := slicefmt.ReadFieldValue(d.buf, pos)
		status, cerr := d.classify(err)
		if status == StatusNeedMoreData {
			if d.frameEOF {
				return Row{}, StatusError, errors.New("slicedecoder: truncated data after frame-EOF (row field)")
			}
			return Row{}, StatusNeedMoreData, nil
		}
		if status != StatusOK {
			return Row{}, status, cerr
		}
		values = append(values, v)
		pos += n
	}
	d.offset = pos
	return Row{Values: values}, StatusOK, nil
}

// Row is a single decoded data row, column-aligned with the owning table's
// declared column order.
type Row struct {
	Values []fieldvalue.Value
}

// classify maps a slicefmt error into a decoder Status.
func (d *Decoder) classify(err error) (Status, error) {
	if err == nil {
		return StatusOK, nil
	}
	if errors.Is(err, slicefmt.ErrNeedMoreData) {
		return StatusNeedMoreData, nil
	}
	return StatusError, err
}
