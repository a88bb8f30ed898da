// Package sliceimport implements the slice import engine: it
// orchestrates a platform.Downloader, a slicedecoder.Decoder, a
// batch.Batch, and a sqlinsert.Helper inside one outer transaction with
// savepoint cycling and memory-pressure-adaptive batch sizing.
package sliceimport
