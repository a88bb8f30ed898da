// Package slicefmt implements the pure, allocation-light parsing primitives
// for the slice binary format: LEB128 varints, length-prefixed UTF-8
// strings, and typed field values. Every function here operates on a byte
// slice starting at a caller-supplied offset and never blocks or retains
// state; the streaming cursor behavior (NeedMoreData, buffer compaction,
// frame lifecycle) lives one layer up in package slicedecoder.
package slicefmt
