package ir

import (
	"slices"
	"time"
	"unicode/utf16"
)

// Value is a sealed interface over the literal values carried by documents,
// filters and table rows. Only the types in this package implement it.
//
// Variants: Null, String, Number, Bool, Array, Object, Date.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Null represents a JSON null.
type Null struct{}

func (Null) irValue() {}

// String represents a text value.
type String string

func (String) irValue() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) irValue() {}

// Array represents an ordered list of values.
type Array []Value

func (Array) irValue() {}

// Object represents a map of field names to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) irValue() {}

// Date is an instant with millisecond precision, encoded as EJSON
// {"$date": <millis since epoch>}.
type Date int64

func (Date) irValue() {}

// NewDate truncates t to milliseconds.
func NewDate(t time.Time) Date {
	return Date(t.UnixMilli())
}

// Time returns the instant in UTC.
func (d Date) Time() time.Time {
	return time.UnixMilli(int64(d)).UTC()
}

// Kind names the variant of a value. Used in error messages and hashing.
type Kind string

const (
	KindNull   Kind = "null"
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "boolean"
	KindArray  Kind = "array"
	KindObject Kind = "object"
	KindDate   Kind = "date"
)

// KindOf returns the variant name of v. A nil interface is reported as null.
func KindOf(v Value) Kind {
	switch v.(type) {
	case nil, Null:
		return KindNull
	case String:
		return KindString
	case Number:
		return KindNumber
	case Bool:
		return KindBool
	case Array:
		return KindArray
	case Object:
		return KindObject
	case Date:
		return KindDate
	default:
		return KindNull
	}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings compares UTF-8 bytes, which orders some keys differently.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// Clone returns a deep copy of the object.
func (obj Object) Clone() Object {
	if obj == nil {
		return nil
	}
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v Value) Value {
	switch val := v.(type) {
	case Object:
		return val.Clone()
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return v
	}
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}
