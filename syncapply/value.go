package syncapply

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// bindValueFor maps a decoded JSON value onto a database/sql bind argument:
// null -> NULL; bool -> 0/1; numbers -> int64 unless the literal carries
// '.', 'e', or 'E' (then float64); strings -> themselves; arrays/objects ->
// their JSON text.
func bindValueFor(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid numeric literal %q: %w", s, err)
			}
			return f, nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			// Out of int64 range despite lacking '.'/'e' - fall back to float
			// rather than fail the whole apply over one oversized literal.
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return nil, fmt.Errorf("invalid numeric literal %q: %w", s, err)
			}
			return f, nil
		}
		return i, nil
	case string:
		return val, nil
	case []interface{}, map[string]interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("serializing compound value: %w", err)
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("unsupported JSON value type %T", v)
	}
}

// sequenceIDString renders a sequenceId value (string or number) as the
// string used for lexicographic max-sequence comparison.
func sequenceIDString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, val != ""
	case json.Number:
		s := string(val)
		return s, s != ""
	default:
		return "", false
	}
}
