package slicefmt

// SliceHeader is the decoded form of the slice format's slice header.
type SliceHeader struct {
	SliceID        string
	Version        int64
	Priority       string
	Timestamp      int64
	NumberOfTables int64
}

// MaxTables bounds numberOfTables to the range [0, 10000].
const MaxTables = 10000

// MaxColumns bounds columnCount to the range [1, 200].
const MaxColumns = 200

// MaxNameBytes bounds table/column name lengths to 256 bytes.
const MaxNameBytes = 256

// ReadSliceHeader decodes the slice header starting at buf[offset].
func ReadSliceHeader(buf []byte, offset int) (hdr SliceHeader, n int, err error) {
	pos := offset

	sliceID, c, err := ReadString(buf, pos, "sliceId", 0, false)
	if err != nil {
		return SliceHeader{}, 0, err
	}
	pos += c

	version, c, err := ReadVarintI64(buf, pos)
	if err != nil {
		return SliceHeader{}, 0, err
	}
	pos += c

	priority, c, err := ReadString(buf, pos, "priority", 0, false)
	if err != nil {
		return SliceHeader{}, 0, err
	}
	pos += c

	timestamp, c, err := ReadVarintI64(buf, pos)
	if err != nil {
		return SliceHeader{}, 0, err
	}
	pos += c

	numberOfTables, c, err := ReadVarintI64(buf, pos)
	if err != nil {
		return SliceHeader{}, 0, err
	}
	pos += c
	if numberOfTables < 0 || numberOfTables > MaxTables {
		return SliceHeader{}, 0, newParseError("numberOfTables", "out of reasonable range")
	}

	return SliceHeader{
		SliceID:        sliceID,
		Version:        version,
		Priority:       priority,
		Timestamp:      timestamp,
		NumberOfTables: numberOfTables,
	}, pos - offset, nil
}

// TableHeader is the decoded form of the slice format's per-table header.
type TableHeader struct {
	TableName string
	Columns   []string
}

// ReadTableHeader decodes a table header starting at buf[offset].
func ReadTableHeader(buf []byte, offset int) (hdr TableHeader, n int, err error) {
	pos := offset

	tableName, c, err := ReadString(buf, pos, "tableName", MaxNameBytes, true)
	if err != nil {
		return TableHeader{}, 0, err
	}
	pos += c

	columnCount, c, err := ReadVarintI64(buf, pos)
	if err != nil {
		return TableHeader{}, 0, err
	}
	pos += c
	if columnCount < 1 || columnCount > MaxColumns {
		return TableHeader{}, 0, newParseError("columnCount", "out of reasonable range")
	}

	columns := make([]string, 0, columnCount)
	for i := int64(0); i < columnCount; i++ {
		col, c, err := ReadString(buf, pos, "columnName", MaxNameBytes, true)
		if err != nil {
			return TableHeader{}, 0, err
		}
		pos += c
		columns = append(columns, col)
	}

	return TableHeader{TableName: tableName, Columns: columns}, pos - offset, nil
}
