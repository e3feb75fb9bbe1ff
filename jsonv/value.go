// Package jsonv provides a typed view over loosely structured JSON.
//
// A Value wraps whatever encoding/json produced for a document fragment and
// distinguishes an absent value (Undefined) from an explicit JSON null. All
// accessors are total: reading a missing key or indexing past the end of an
// array yields Undefined instead of failing, so callers can chain lookups
// through payloads whose shape is not known in advance.
package jsonv

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

var errTrailingData = errors.New("jsonv: invalid data after top-level value")

// Kind identifies the JSON type held by a Value.
type Kind int

const (
	Undefined Kind = iota
	Null
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "undefined"
	}
}

// Value is an immutable JSON fragment. The zero Value is Undefined.
type Value struct {
	raw     any
	defined bool
}

// Parse decodes data into a Value.
func Parse(data []byte) (Value, error) {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return Value{}, err
	}
	// Only whitespace may follow the value.
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, errTrailingData
	}
	return Value{raw: raw, defined: true}, nil
}

// Of wraps a Go value produced by encoding/json (or built from the same
// types: nil, bool, float64, string, []any, map[string]any). Integers are
// widened to float64.
func Of(v any) Value {
	switch n := v.(type) {
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case float32:
		v = float64(n)
	case []Value:
		list := make([]any, len(n))
		for i := range n {
			list[i] = n[i].raw
		}
		v = list
	}
	return Value{raw: v, defined: true}
}

// Kind reports the JSON type of v.
func (v Value) Kind() Kind {
	if !v.defined {
		return Undefined
	}
	switch v.raw.(type) {
	case nil:
		return Null
	case bool:
		return Bool
	case float64, json.Number:
		return Number
	case string:
		return String
	case []any:
		return Array
	case map[string]any:
		return Object
	default:
		return Undefined
	}
}

func (v Value) IsUndefined() bool { return v.Kind() == Undefined }

func (v Value) IsNull() bool { return v.Kind() == Null }

// IsNullish reports whether v is undefined or null.
func (v Value) IsNullish() bool {
	k := v.Kind()
	return k == Undefined || k == Null
}

// Truthy follows JavaScript truthiness: false, 0, NaN, "", null and
// undefined are falsy, everything else (including empty arrays and objects)
// is truthy.
func (v Value) Truthy() bool {
	switch v.Kind() {
	case Bool:
		b, _ := v.Bool()
		return b
	case Number:
		f, _ := v.Float()
		return f != 0 && f == f
	case String:
		s, _ := v.Str()
		return s != ""
	case Array, Object:
		return true
	default:
		return false
	}
}

// Get returns the member key of an object, or Undefined.
func (v Value) Get(key string) Value {
	obj, ok := v.raw.(map[string]any)
	if !ok {
		return Value{}
	}
	member, ok := obj[key]
	if !ok {
		return Value{}
	}
	return Value{raw: member, defined: true}
}

// Lookup follows a chain of object keys.
func (v Value) Lookup(keys ...string) Value {
	for _, k := range keys {
		v = v.Get(k)
	}
	return v
}

// Index returns element i of an array, or Undefined.
func (v Value) Index(i int) Value {
	list, ok := v.raw.([]any)
	if !ok || i < 0 || i >= len(list) {
		return Value{}
	}
	return Value{raw: list[i], defined: true}
}

// Array returns the elements of v if it is an array.
func (v Value) Array() ([]Value, bool) {
	list, ok := v.raw.([]any)
	if !ok {
		return nil, false
	}
	out := make([]Value, len(list))
	for i, item := range list {
		out[i] = Value{raw: item, defined: true}
	}
	return out, true
}

// Bool returns the boolean held by v.
func (v Value) Bool() (bool, bool) {
	b, ok := v.raw.(bool)
	return b, ok && v.defined
}

// Str returns the string held by v, untrimmed.
func (v Value) Str() (string, bool) {
	s, ok := v.raw.(string)
	return s, ok && v.defined
}

// Float returns the number held by v.
func (v Value) Float() (float64, bool) {
	switch n := v.raw.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Interface returns the underlying Go value; nil for undefined and null.
func (v Value) Interface() any {
	return v.raw
}

// MarshalJSON encodes v; Undefined encodes as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.defined {
		return []byte("null"), nil
	}
	return json.Marshal(v.raw)
}

// UnmarshalJSON decodes a fragment into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
