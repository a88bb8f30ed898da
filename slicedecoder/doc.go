// Package slicedecoder implements the streaming slice decoder: a cursor
// over a growing, zstd-decompressed buffer that exposes
// parse-header / parse-table-header / parse-row operations one step at a
// time, so the caller can feed compressed bytes as they arrive from a
// downloader without ever holding the whole decompressed slice in memory
// at once.
package slicedecoder
