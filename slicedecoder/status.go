package slicedecoder

// Status reports the outcome of a single parse step.
type Status int

const (
	// StatusOK means a value was fully decoded and the cursor advanced.
	StatusOK Status = iota
	// StatusNeedMoreData means buf[offset:] does not yet hold a complete
	// value; the caller should Feed more bytes and retry. The cursor does
	// not advance.
	StatusNeedMoreData
	// StatusEndOfStream means the table loop is complete: either the
	// declared numberOfTables has been reached, or (for legacy streams
	// declaring zero tables) the zstd frame has ended with no more bytes
	// to parse.
	StatusEndOfStream
	// StatusEndOfTable means the row loop for the current table is
	// complete (the 0xFF delimiter was consumed).
	StatusEndOfTable
	// StatusError means a fatal, non-recoverable parse error occurred;
	// the accompanying error carries detail.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNeedMoreData:
		return "NeedMoreData"
	case StatusEndOfStream:
		return "EndOfStream"
	case StatusEndOfTable:
		return "EndOfTable"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}
