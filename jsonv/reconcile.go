package jsonv

import (
	"math"
	"strconv"
	"strings"
)

// Accessor extracts a candidate value from a record.
type Accessor func(Value) Value

// Key returns an Accessor reading member name.
func Key(name string) Accessor {
	return func(v Value) Value { return v.Get(name) }
}

// Path returns an Accessor following a chain of member names.
func Path(names ...string) Accessor {
	return func(v Value) Value { return v.Lookup(names...) }
}

// Const returns an Accessor that always yields c.
func Const(c Value) Accessor {
	return func(Value) Value { return c }
}

// Keys is shorthand for one Key accessor per name.
func Keys(names ...string) []Accessor {
	out := make([]Accessor, len(names))
	for i, n := range names {
		out[i] = Key(n)
	}
	return out
}

// FirstDefined tries each accessor against src in order and returns the
// first result that is neither undefined nor null. If every candidate is
// nullish, Undefined is returned.
func FirstDefined(src Value, accessors ...Accessor) Value {
	for _, get := range accessors {
		if v := get(src); !v.IsNullish() {
			return v
		}
	}
	return Value{}
}

// FirstArray returns the first accessor result that is an array.
func FirstArray(src Value, accessors ...Accessor) ([]Value, bool) {
	for _, get := range accessors {
		if list, ok := get(src).Array(); ok {
			return list, true
		}
	}
	return nil, false
}

// number converts v the way a JavaScript Number() call would for JSON
// inputs. The boolean result is false when the conversion is NaN.
func number(v Value) (float64, bool) {
	switch v.Kind() {
	case Number:
		return v.Float()
	case Null:
		return 0, true
	case Bool:
		if b, _ := v.Bool(); b {
			return 1, true
		}
		return 0, true
	case String:
		s, _ := v.Str()
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, true
		}
		if n, ok := parseRadix(s); ok {
			return n, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil && !isRangeErr(err) {
			return 0, false
		}
		// ParseFloat accepts forms JavaScript rejects.
		if strings.ContainsAny(s, "_pP") || strings.EqualFold(strings.TrimLeft(s, "+-"), "inf") {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func parseRadix(s string) (float64, bool) {
	if len(s) < 3 || s[0] != '0' {
		return 0, false
	}
	base := 0
	switch s[1] {
	case 'x', 'X':
		base = 16
	case 'o', 'O':
		base = 8
	case 'b', 'B':
		base = 2
	default:
		return 0, false
	}
	n, err := strconv.ParseUint(s[2:], base, 64)
	if err != nil {
		return 0, false
	}
	return float64(n), true
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ToNumber returns the numeric interpretation of v if it is finite,
// otherwise fallback.
func ToNumber(v Value, fallback float64) float64 {
	if f, ok := number(v); ok && finite(f) {
		return f
	}
	return fallback
}

// ToOptionalNumber returns the numeric interpretation of v, reporting false
// when it is not finite.
func ToOptionalNumber(v Value) (float64, bool) {
	if f, ok := number(v); ok && finite(f) {
		return f, true
	}
	return 0, false
}

// ToString returns v trimmed if it is a non-blank string, or formatted if it
// is a finite number, otherwise fallback.
func ToString(v Value, fallback string) string {
	if s, ok := ToOptionalString(v); ok {
		return s
	}
	return fallback
}

// ToOptionalString is ToString without a fallback: blank strings and
// non-string, non-numeric values report false.
func ToOptionalString(v Value) (string, bool) {
	switch v.Kind() {
	case String:
		s, _ := v.Str()
		s = strings.TrimSpace(s)
		return s, s != ""
	case Number:
		f, _ := v.Float()
		if !finite(f) {
			return "", false
		}
		return FormatNumber(f), true
	}
	return "", false
}

// FormatNumber renders f the way JavaScript's String(number) does for the
// magnitudes found in API payloads.
func FormatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// JavaScript drops the leading zero of the exponent: 1e+21, 1e-7.
		s = strings.Replace(s, "e+0", "e+", 1)
		s = strings.Replace(s, "e-0", "e-", 1)
		return s
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
