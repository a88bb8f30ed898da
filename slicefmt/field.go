package slicefmt

import (
	"encoding/binary"
	"math"

	"github.com/syncgrove/core/fieldvalue"
)

const (
	// MaxFieldBytes is the hard cap on a single field's value-bytes length:
	// 10 MiB.
	MaxFieldBytes = 10 * 1024 * 1024
	// MaxTextBytes further bounds TEXT fields to 1 MiB.
	MaxTextBytes = 1 * 1024 * 1024
)

// ReadFieldValue decodes one field: a varint length prefix, that many value
// bytes, and a trailing one-byte type tag. A zero-length value is always
// NULL regardless of the tag byte.
func ReadFieldValue(buf []byte, offset int) (value fieldvalue.Value, n int, err error) {
	length, ln, err := ReadUvarint(buf, offset)
	if err != nil {
		return fieldvalue.Value{}, 0, err
	}
	if length > MaxFieldBytes {
		return fieldvalue.Value{}, 0, newParseError("field value", "exceeds 10 MiB")
	}
	need := ln + int(length) + 1 // value bytes + trailing type tag
	if offset+need > len(buf) {
		return fieldvalue.Value{}, 0, ErrNeedMoreData
	}
	valStart := offset + ln
	valEnd := valStart + int(length)
	tag := buf[valEnd]

	if length == 0 {
		return fieldvalue.NullValue(), need, nil
	}

	raw := buf[valStart:valEnd]
	switch fieldvalue.Type(tag) {
	case fieldvalue.Int:
		if length != 8 {
			return fieldvalue.Value{}, 0, newParseError("INT field", "expected exactly 8 bytes")
		}
		return fieldvalue.IntValue(int64(binary.BigEndian.Uint64(raw))), need, nil
	case fieldvalue.Real:
		if length != 8 {
			return fieldvalue.Value{}, 0, newParseError("REAL field", "expected exactly 8 bytes")
		}
		return fieldvalue.RealValue(math.Float64frombits(binary.BigEndian.Uint64(raw))), need, nil
	case fieldvalue.Text:
		if length > MaxTextBytes {
			return fieldvalue.Value{}, 0, newParseError("TEXT field", "exceeds 1 MiB")
		}
		return fieldvalue.TextValue(string(raw)), need, nil
	case fieldvalue.Blob:
		cp := make([]byte, len(raw))
		copy(cp, raw)
		return fieldvalue.BlobValue(cp), need, nil
	default:
		return fieldvalue.Value{}, 0, newParseError("field type tag", "unknown type tag with nonzero length")
	}
}
