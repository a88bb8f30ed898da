package slicefmt

// ReadString decodes a length-prefixed UTF-8 string: a varint byte length
// followed by that many raw bytes. field names the logical element (e.g.
// "tableName", "columnName") for error messages. When maxLen > 0 the
// decoded length is bounded above by maxLen; when requireNonEmpty is
// false, a zero-length string is accepted (used for slice-header strings,
// which have no documented lower bound).
func ReadString(buf []byte, offset int, field string, maxLen int, requireNonEmpty bool) (value string, n int, err error) {
	length, ln, err := ReadUvarint(buf, offset)
	if err != nil {
		return "", 0, err
	}
	if requireNonEmpty && length == 0 {
		return "", 0, newParseError(field, "length must be >= 1")
	}
	if maxLen > 0 && length > uint64(maxLen) {
		return "", 0, newParseError(field, "length exceeds maximum")
	}
	total := ln + int(length)
	if offset+total > len(buf) {
		return "", 0, ErrNeedMoreData
	}
	start := offset + ln
	value = string(buf[start : start+int(length)])
	return value, total, nil
}
