package sliceimport

import "errors"

// ErrAlreadyInProgress is returned by Start when the Engine already has an
// import running: a concurrent Start on an already-running engine fails
// immediately rather than queuing or replacing it.
var ErrAlreadyInProgress = errors.New("Import already in progress")

// ErrCancelled is the error text delivered to the completion callback on
// cancellation.
var ErrCancelled = errors.New("Import cancelled")
