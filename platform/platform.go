package platform

import "context"

// MemoryAlertLevel is the severity of a host-delivered memory-pressure
// notification.
type MemoryAlertLevel int

const (
	MemoryWarn MemoryAlertLevel = iota
	MemoryCritical
)

func (l MemoryAlertLevel) String() string {
	if l == MemoryCritical {
		return "CRITICAL"
	}
	return "WARN"
}

// CancelHandle is returned by subscription-style platform calls so the
// core can unsubscribe or abort them.
type CancelHandle interface {
	Cancel()
}

// Downloader streams bytes from a URL without blocking the caller.
// Delivery contract: OnChunk may fire any number of times (including
// zero) before exactly one OnComplete call; after OnComplete, no further
// callbacks fire; after Cancel, no further callbacks are required.
type Downloader interface {
	DownloadFile(ctx context.Context, url string, onChunk func([]byte), onComplete func(errMsg string)) CancelHandle
}

// HTTPRequest is the platform-neutral shape of an outgoing HTTP request.
type HTTPRequest struct {
	Method    string
	URL       string
	Headers   map[string]string
	Body      []byte
	TimeoutMs int
}

// HTTPResponse is the platform-neutral shape of an HTTP response.
// StatusCode == 0 with a non-empty ErrorMessage means a transport failure,
// not a server response.
type HTTPResponse struct {
	StatusCode   int
	Body         string
	ErrorMessage string
}

// HTTPClient issues a single HTTP request without blocking the caller.
type HTTPClient interface {
	Do(ctx context.Context, req HTTPRequest, onDone func(HTTPResponse))
}

// MemoryAlertFunc is invoked by the host when memory pressure changes.
type MemoryAlertFunc func(level MemoryAlertLevel)

// MemoryAlerts lets the core subscribe to host memory-pressure callbacks.
type MemoryAlerts interface {
	Subscribe(onAlert MemoryAlertFunc) CancelHandle
}

// BatchSizeHint reports the initial row-batch size the import engine should
// start with, per the device's available memory and core count.
type BatchSizeHint func() int

// WorkQueue guarantees serialized execution of all DB-adapter operations on
// a single thread distinct from the caller.
type WorkQueue interface {
	// Submit enqueues fn and blocks until fn has run and returned.
	Submit(ctx context.Context, fn func() error) error
}

// RequestIDGenerator produces a stable, unique-per-sync-attempt identifier
// propagated across retries and auth refreshes.
type RequestIDGenerator func() string
