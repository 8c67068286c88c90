package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// IsNull reports whether a cell is missing: nil or a blank string.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}

// ToFloat coerces a cell to a number. Numeric strings are accepted; booleans are not.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToString renders a cell as text.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// GroupKey is the canonical identity of a value for grouping and counting.
// Numbers compare by value, text is case-sensitive, and nulls share one key.
func GroupKey(v any) string {
	if IsNull(v) {
		return "\x00"
	}
	if f, ok := ToFloat(v); ok {
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	return "s:" + ToString(v)
}

// MatchKey is the canonical identity of a value for equality predicates.
// Numbers compare by value and text compares case-insensitively.
func MatchKey(v any) string {
	if IsNull(v) {
		return "\x00"
	}
	if f, ok := ToFloat(v); ok {
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	return "s:" + strings.ToLower(ToString(v))
}

// Equal reports whether two non-null values are equal under predicate semantics.
func Equal(a, b any) bool {
	if IsNull(a) || IsNull(b) {
		return false
	}
	return MatchKey(a) == MatchKey(b)
}

// Compare orders two non-null values: numerically when both are numbers,
// otherwise by case-insensitive text with the raw text as tiebreaker.
func Compare(a, b any) int {
	fa, okA := ToFloat(a)
	fb, okB := ToFloat(b)
	switch {
	case okA && okB:
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case okA:
		return -1
	case okB:
		return 1
	}
	sa, sb := ToString(a), ToString(b)
	if c := strings.Compare(strings.ToLower(sa), strings.ToLower(sb)); c != 0 {
		return c
	}
	return strings.Compare(sa, sb)
}
