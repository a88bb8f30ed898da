// Package registry is the mutex-guarded, handle-keyed keepalive registry
// for active slice-import engines: inserted on start, erased on
// completion, so an engine stays reachable through its own async
// download/HTTP callbacks even though nothing else in the host holds a
// reference to it.
package registry
