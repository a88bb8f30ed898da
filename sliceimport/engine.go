package sliceimport

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/syncgrove/core/batch"
	"github.com/syncgrove/core/engine"
	"github.com/syncgrove/core/internal/registry"
	"github.com/syncgrove/core/logging"
	"github.com/syncgrove/core/platform"
	"github.com/syncgrove/core/slicedecoder"
	"github.com/syncgrove/core/sqlinsert"
)

// alertThrottleInterval caps how often a memory alert is allowed to resize
// the batch threshold, on top of the halving/quartering rule below, so a
// flapping WARN/CRITICAL stream cannot thrash the batch size every chunk.
const alertThrottleInterval = 200 * time.Millisecond

// compactEveryNChunks controls how often the decoder's buffer is compacted:
// every this many chunks, call compactBuffer.
const compactEveryNChunks = 16

// savepointRowThreshold cycles the savepoint every 10,000 rows.
const savepointRowThreshold = 10000

const (
	minBatchSize = 1
	maxBatchSize = 10000

	warnFloor     = 250
	criticalFloor = 100
)

// activeImports keeps started Engines alive by handle while they have
// async download/HTTP callbacks outstanding.
var activeImports = registry.New[*Engine]()

// Options configures one Engine. Conn and Downloader are required;
// everything else has a default.
type Options struct {
	// Conn is the single pinned SQLite connection the whole import runs
	// on (selected by the host via connectionTag: per-tag connection
	// lookup is an external collaborator, so callers do their own lookup
	// and hand us the resulting *sql.Conn).
	Conn *sql.Conn

	Downloader    platform.Downloader
	MemoryAlerts  platform.MemoryAlerts  // optional; nil disables memory-pressure throttling
	BatchSizeHint platform.BatchSizeHint // optional; defaults to platform.DefaultBatchSizeHint()
	Logger        *slog.Logger           // optional; defaults to a discarding logger
}

// Engine runs one slice import. Create a fresh Engine per import;
// Start fails with ErrAlreadyInProgress if called twice on the same
// instance.
type Engine struct {
	mu sync.Mutex

	conn          *sql.Conn
	downloader    platform.Downloader
	memoryAlerts  platform.MemoryAlerts
	batchSizeHint platform.BatchSizeHint
	logger        *slog.Logger

	ctx        context.Context
	onComplete func(errMsg string)

	decoder  *slicedecoder.Decoder
	batchAcc *batch.Batch
	helper   *sqlinsert.Helper

	batchSize          int
	rowsSinceSavepoint int
	totalRows          int
	chunkCount         int

	currentTable      string
	currentColumns    []string
	inTable           bool
	sliceHeaderParsed bool

	started  bool
	failed   bool
	finished bool

	downloadHandle platform.CancelHandle
	memHandle      platform.CancelHandle
	regHandle      registry.Handle

	alertLimiter *rate.Limiter
}

// New returns an unstarted Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{
		conn:          opts.Conn,
		downloader:    opts.Downloader,
		memoryAlerts:  opts.MemoryAlerts,
		batchSizeHint: opts.BatchSizeHint,
		logger:        logger,
		alertLimiter:  rate.NewLimiter(rate.Every(alertThrottleInterval), 1),
	}
}

// TotalRows reports how many rows have been inserted so far (for tests and
// host-visible progress reporting).
func (e *Engine) TotalRows() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalRows
}

// Start begins streaming sliceURL through the decoder and insert pipeline.
// onComplete is invoked exactly once, with an empty string on success or a
// nonempty error message on failure/cancellation.
func (e *Engine) Start(ctx context.Context, sliceURL string, onComplete func(errMsg string)) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyInProgress
	}
	e.started = true
	e.ctx = ctx
	e.onComplete = onComplete
	e.mu.Unlock()

	if err := e.setup(); err != nil {
		e.mu.Lock()
		e.failLocked(err)
		e.mu.Unlock()
		return err
	}

	handle := e.downloader.DownloadFile(ctx, sliceURL, e.onChunk, e.onDownloadComplete)
	e.mu.Lock()
	if !e.failed && !e.finished {
		e.downloadHandle = handle
	} else {
		handle.Cancel()
	}
	e.mu.Unlock()
	return nil
}

// Cancel aborts an in-flight import: signals the downloader, releases the
// memory-alert subscription, rolls back the transaction, and fires the
// completion callback with ErrCancelled.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failed || e.finished {
		return
	}
	if e.downloadHandle != nil {
		e.downloadHandle.Cancel()
	}
	e.failLocked(ErrCancelled)
}

func (e *Engine) setup() error {
	hint := e.batchSizeHint
	if hint == nil {
		hint = platform.DefaultBatchSizeHint()
	}
	size := hint()
	if size < minBatchSize {
		size = minBatchSize
	}
	if size > maxBatchSize {
		size = maxBatchSize
	}
	e.batchSize = size

	if err := engine.ApplyImportPragmas(e.ctx, e.conn); err != nil {
		return fmt.Errorf("sliceimport: applying pragmas: %w", err)
	}
	if _, err := e.conn.ExecContext(e.ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("sliceimport: BEGIN IMMEDIATE: %w", err)
	}
	if _, err := e.conn.ExecContext(e.ctx, "SAVEPOINT sp"); err != nil {
		e.logger.Warn("sliceimport: initial savepoint failed", "error", err)
	}

	e.decoder = slicedecoder.New()
	if err := e.decoder.Initialize(); err != nil {
		_, _ = e.conn.ExecContext(e.ctx, "ROLLBACK")
		return fmt.Errorf("sliceimport: initializing decoder: %w", err)
	}

	e.helper = sqlinsert.New(e.conn)
	e.batchAcc = batch.New()
	e.regHandle = activeImports.Insert(e)

	if e.memoryAlerts != nil {
		e.memHandle = e.memoryAlerts.Subscribe(e.onMemoryAlert)
	}
	return nil
}

func (e *Engine) onChunk(chunk []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failed || e.finished {
		return
	}

	if err := e.decoder.Feed(chunk); err != nil {
		e.failLocked(fmt.Errorf("sliceimport: feeding decoder: %w", err))
		return
	}
	e.drainParse()
	if e.failed {
		return
	}

	e.chunkCount++
	if e.chunkCount%compactEveryNChunks == 0 {
		e.decoder.CompactBuffer()
	}
}

func (e *Engine) onDownloadComplete(errMsg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failed || e.finished {
		return
	}
	if errMsg != "" {
		e.failLocked(fmt.Errorf("sliceimport: download failed: %s", errMsg))
		return
	}

	// Close signals end-of-input to the decoder's zstd pump and blocks
	// until it has drained: without this, frameEOF is never set (for a
	// legacy numberOfTables==0 stream IsEndOfStream() depends on it) and
	// the last Feed's decompressed output is not guaranteed to have been
	// appended to the buffer yet, since a successful Write only means the
	// pipe's raw bytes were consumed, not that the pump's Read of the
	// decompressed result has returned.
	if err := e.decoder.Close(); err != nil {
		e.failLocked(fmt.Errorf("sliceimport: closing decoder: %w", err))
		return
	}

	e.drainParse()
	if e.failed {
		return
	}
	e.decoder.CompactBuffer()

	if !e.decoder.IsEndOfStream() || e.decoder.RemainingBytes() != 0 {
		e.failLocked(fmt.Errorf("sliceimport: incomplete slice stream (endOfStream=%v remaining=%d)",
			e.decoder.IsEndOfStream(), e.decoder.RemainingBytes()))
		return
	}

	if e.batchAcc.TotalRows() > 0 {
		if !e.flushLocked() {
			return
		}
	}

	if _, err := e.conn.ExecContext(e.ctx, "RELEASE SAVEPOINT sp"); err != nil {
		e.logger.Warn("sliceimport: release savepoint failed", "error", err)
	}

	if _, err := e.conn.ExecContext(e.ctx, "COMMIT"); err != nil {
		_, _ = e.conn.ExecContext(e.ctx, "ROLLBACK")
		e.failLocked(fmt.Errorf("sliceimport: COMMIT: %w", err))
		return
	}

	if err := e.helper.FinalizeStatements(); err != nil {
		e.logger.Warn("sliceimport: finalizing statements after commit", "error", err)
	}
	if err := engine.RestoreDefaultPragmas(e.ctx, e.conn); err != nil {
		e.logger.Warn("sliceimport: restoring default pragmas", "error", err)
	}

	e.logger.Info("sliceimport: import complete", "rows", humanize.Comma(int64(e.totalRows)))
	e.completeLocked()
}

// drainParse runs the parsing protocol as far as the buffered bytes allow,
// stopping cleanly on NeedMoreData. It assumes e.mu is held.
func (e *Engine) drainParse() {
	for {
		if !e.sliceHeaderParsed {
			hdr, status, err := e.decoder.ParseSliceHeader()
			switch status {
			case slicedecoder.StatusOK:
				e.sliceHeaderParsed = true
				e.logger.Info("sliceimport: parsed slice header",
					"sliceId", hdr.SliceID, "version", hdr.Version, "tables", hdr.NumberOfTables)
				continue
			case slicedecoder.StatusNeedMoreData:
				return
			default:
				e.failLocked(err)
				return
			}
		}

		if !e.inTable {
			hdr, status, err := e.decoder.ParseTableHeader()
			switch status {
			case slicedecoder.StatusOK:
				e.currentTable = hdr.TableName
				e.currentColumns = hdr.Columns
				e.inTable = true
				continue
			case slicedecoder.StatusNeedMoreData:
				return
			case slicedecoder.StatusEndOfStream:
				return
			default:
				e.failLocked(err)
				return
			}
		}

		remainingBefore := e.decoder.RemainingBytes()
		row, status, err := e.decoder.ParseRow(len(e.currentColumns))
		switch status {
		case slicedecoder.StatusOK:
			if e.decoder.RemainingBytes() >= remainingBefore {
				e.failLocked(fmt.Errorf("sliceimport: parser did not advance (infinite-loop guard)"))
				return
			}
			if err := e.batchAcc.AddRow(e.currentTable, e.currentColumns, row.Values); err != nil {
				e.failLocked(err)
				return
			}
			if e.batchAcc.TotalRows() >= e.batchSize {
				if !e.flushLocked() {
					return
				}
			}
			continue
		case slicedecoder.StatusNeedMoreData:
			return
		case slicedecoder.StatusEndOfTable:
			e.inTable = false
			continue
		default:
			e.failLocked(err)
			return
		}
	}
}

// flushLocked inserts the accumulated batch and cycles the savepoint every
// savepointRowThreshold rows. It assumes e.mu is held and returns false if
// it called failLocked.
func (e *Engine) flushLocked() bool {
	if err := e.helper.InsertBatch(e.ctx, e.batchAcc); err != nil {
		e.failLocked(fmt.Errorf("sliceimport: insertBatch: %w", err))
		return false
	}
	rows := e.batchAcc.TotalRows()
	e.batchAcc.Clear()
	e.rowsSinceSavepoint += rows
	e.totalRows += rows

	if e.rowsSinceSavepoint >= savepointRowThreshold {
		if _, err := e.conn.ExecContext(e.ctx, "RELEASE SAVEPOINT sp"); err != nil {
			e.logger.Warn("sliceimport: release savepoint failed", "error", err)
		}
		if _, err := e.conn.ExecContext(e.ctx, "SAVEPOINT sp"); err != nil {
			e.logger.Warn("sliceimport: create savepoint failed", "error", err)
		}
		e.rowsSinceSavepoint = 0
	}
	return true
}

func (e *Engine) onMemoryAlert(level platform.MemoryAlertLevel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failed || e.finished {
		return
	}
	if !e.alertLimiter.Allow() {
		return
	}
	switch level {
	case platform.MemoryWarn:
		e.batchSize = maxInt(warnFloor, e.batchSize/2)
	case platform.MemoryCritical:
		e.batchSize = maxInt(criticalFloor, e.batchSize/4)
	}
	e.logger.Warn("sliceimport: memory pressure", "level", level, "newBatchSize", humanize.Comma(int64(e.batchSize)))
}

// failLocked marks the import failed, rolls back, releases resources, and
// fires the completion callback exactly once. It assumes e.mu is held.
func (e *Engine) failLocked(err error) {
	if e.failed || e.finished {
		return
	}
	e.failed = true
	_, _ = e.conn.ExecContext(e.ctx, "ROLLBACK")
	if e.helper != nil {
		_ = e.helper.FinalizeStatements()
	}
	e.logger.Error("sliceimport: import failed", "error", err)
	e.cleanupLocked()
	e.invokeCompletion(err.Error())
}

func (e *Engine) completeLocked() {
	if e.failed || e.finished {
		return
	}
	e.finished = true
	e.cleanupLocked()
	e.invokeCompletion("")
}

func (e *Engine) cleanupLocked() {
	if e.memHandle != nil {
		e.memHandle.Cancel()
		e.memHandle = nil
	}
	if e.decoder != nil {
		_ = e.decoder.Close()
	}
	activeImports.Erase(e.regHandle)
}

func (e *Engine) invokeCompletion(errMsg string) {
	cb := e.onComplete
	e.onComplete = nil
	if cb == nil {
		return
	}
	go cb(errMsg)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
