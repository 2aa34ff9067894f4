package livefeed

// ValueType identifies the JSON value kind of a section. It is sniffed from the first
// non-whitespace content character and never changes afterwards.
type ValueType int

const (
	// TypeUnknown means the section name has arrived but its value has not started yet.
	TypeUnknown ValueType = iota
	TypeString
	TypeNumber
	TypeBoolean
	TypeNull
	TypeObject
	TypeArray
)

// String returns the JSON name of the value type.
func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBoolean:
		return "boolean"
	case TypeNull:
		return "null"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so value types render by name in JSON and
// YAML output.
func (t ValueType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unrecognized names decode as TypeUnknown.
func (t *ValueType) UnmarshalText(text []byte) error {
	*t = TypeUnknown
	for v := TypeString; v <= TypeArray; v++ {
		if v.String() == string(text) {
			*t = v
			break
		}
	}
	return nil
}

// SniffValueType classifies a JSON value by its first non-whitespace character.
// Returns false when c cannot start a JSON value.
func SniffValueType(c rune) (ValueType, bool) {
	switch {
	case c == '"':
		return TypeString, true
	case c == '{':
		return TypeObject, true
	case c == '[':
		return TypeArray, true
	case c == '-' || (c >= '0' && c <= '9'):
		return TypeNumber, true
	case c == 't' || c == 'f':
		return TypeBoolean, true
	case c == 'n':
		return TypeNull, true
	default:
		return TypeUnknown, false
	}
}

// Section is one materialized top-level value from the feed.
//
// Value holds the typed value built from what has arrived so far:
//   - TypeString: string
//   - TypeNumber: float64 (nil while the literal is not yet a valid number, e.g. "-")
//   - TypeBoolean: bool (nil while ambiguous, e.g. "tr")
//   - TypeNull, TypeUnknown: nil
//   - TypeObject: map[string]any
//   - TypeArray: []any
//
// A string section carrying escaped JSON (e.g. "{\"tool\":\"x\"}") materializes as the
// nested map or slice, with Type still reporting TypeString.
type Section struct {
	// Name is the section name. It is empty for the anonymous root-array section.
	Name string

	// Value is the typed value materialized from Raw.
	Value any

	// Type is the sniffed value type.
	Type ValueType

	// Complete reports whether the value's closing delimiter has been seen.
	Complete bool

	// Raw is the accumulated buffer the value was materialized from. Escape sequences are
	// preserved verbatim.
	Raw string
}
