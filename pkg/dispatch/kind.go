package dispatch

import (
	"math"
)

// Kind is the expected value kind of a task parameter.
type Kind int

const (
	String Kind = iota
	Int
	Float
	Bool
	Bytes
	Map
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Bytes:
		return "bytes"
	case Map:
		return "map"
	default:
		return "unknown"
	}
}

// Matches reports whether v is acceptable for k. Int accepts any Go integer
// and integral float64 values, which is what JSON decoding produces. Float
// accepts any float or integer.
func (k Kind) Matches(v any) bool {
	switch k {
	case String:
		_, ok := v.(string)
		return ok
	case Int:
		if isInteger(v) {
			return true
		}
		switch f := v.(type) {
		case float64:
			return f == math.Trunc(f) && !math.IsInf(f, 0)
		case float32:
			return float64(f) == math.Trunc(float64(f)) && !math.IsInf(float64(f), 0)
		}
		return false
	case Float:
		switch v.(type) {
		case float32, float64:
			return true
		}
		return isInteger(v)
	case Bool:
		_, ok := v.(bool)
		return ok
	case Bytes:
		_, ok := v.([]byte)
		return ok
	case Map:
		_, ok := v.(map[string]any)
		return ok
	default:
		return false
	}
}

func isInteger(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

// AsInt converts a value accepted by Int into an int.
func AsInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case float32:
		if float64(n) != math.Trunc(float64(n)) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

// AsFloat converts a value accepted by Float into a float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := AsInt(v); ok {
		return float64(i), true
	}
	return 0, false
}
