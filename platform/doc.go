// Package platform declares the non-blocking, callback-based interfaces
// the core expects its mobile host to provide: file download, HTTP
// transport, memory-pressure alerts, work-queue dispatch, batch-size
// sizing hints, and request-id generation. The core never blocks on I/O;
// every interface here is callback-driven so the host can bridge to its
// own native networking and threading primitives.
package platform
