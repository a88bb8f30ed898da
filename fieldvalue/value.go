package fieldvalue

import "fmt"

// Type identifies the wire/type tag of a Value, matching the one-byte tags
// used by the slice binary format.
type Type uint8

const (
	Null Type = 0x00
	Int  Type = 0x01
	Real Type = 0x02
	Text Type = 0x03
	Blob Type = 0x04
)

func (t Type) String() string {
	switch t {
	case Null:
		return "NULL"
	case Int:
		return "INT"
	case Real:
		return "REAL"
	case Text:
		return "TEXT"
	case Blob:
		return "BLOB"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
	}
}

// Value is a tagged union over the five field kinds the core ever moves
// between the slice decoder, the SQL insert helper, and the sync apply
// engine. Only the field matching Type is meaningful.
type Value struct {
	Type Type
	I    int64
	R    float64
	S    string
	B    []byte
}

func NullValue() Value          { return Value{Type: Null} }
func IntValue(v int64) Value    { return Value{Type: Int, I: v} }
func RealValue(v float64) Value { return Value{Type: Real, R: v} }
func TextValue(v string) Value  { return Value{Type: Text, S: v} }
func BlobValue(v []byte) Value  { return Value{Type: Blob, B: v} }

func (v Value) IsNull() bool { return v.Type == Null }

// Interface returns the value in the shape database/sql expects as a bind
// parameter: nil, int64, float64, string, or []byte.
func (v Value) Interface() interface{} {
	switch v.Type {
	case Null:
		return nil
	case Int:
		return v.I
	case Real:
		return v.R
	case Text:
		return v.S
	case Blob:
		return v.B
	default:
		return nil
	}
}
