package ir

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// UnmarshalValue decodes JSON into a Value.
// Numbers are decoded as decimals, never as float64.
// EJSON {"$date": <millis>} decodes to Date.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromNative(raw)
}

// UnmarshalObject decodes a JSON object.
func UnmarshalObject(data []byte) (Object, error) {
	v, err := UnmarshalValue(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %s", KindOf(v))
	}
	return obj, nil
}

// FromNative converts plain Go values (as produced by encoding/json or
// yaml.v3) into a Value.
func FromNative(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case json.Number:
		return ParseNumber(string(val))
	case int:
		return NewInt(int64(val)), nil
	case int8:
		return NewInt(int64(val)), nil
	case int16:
		return NewInt(int64(val)), nil
	case int32:
		return NewInt(int64(val)), nil
	case int64:
		return NewInt(val), nil
	case uint8:
		return NewInt(int64(val)), nil
	case uint16:
		return NewInt(int64(val)), nil
	case uint32:
		return NewInt(int64(val)), nil
	case uint64:
		if val > math.MaxInt64 {
			return ParseNumber(strconv.FormatUint(val, 10))
		}
		return NewInt(int64(val)), nil
	case float32:
		return NewFloat(float64(val))
	case float64:
		return NewFloat(val)
	case time.Time:
		return NewDate(val), nil
	case []byte:
		return Object{"$binary": String(base64.StdEncoding.EncodeToString(val))}, nil
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			irElem, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		if d, ok, err := dateFromNative(val); ok || err != nil {
			return d, err
		}
		obj := make(Object, len(val))
		for k, elem := range val {
			irElem, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func dateFromNative(m map[string]any) (Value, bool, error) {
	if len(m) != 1 {
		return nil, false, nil
	}
	raw, ok := m["$date"]
	if !ok {
		return nil, false, nil
	}
	n, err := FromNative(raw)
	if err != nil {
		return nil, true, fmt.Errorf("$date: %w", err)
	}
	num, ok := n.(Number)
	if !ok {
		return nil, true, fmt.Errorf("$date must be a number of milliseconds, got %s", KindOf(n))
	}
	millis, err := num.Int64()
	if err != nil {
		return nil, true, fmt.Errorf("$date: %w", err)
	}
	return Date(millis), true, nil
}

// ToNative converts a Value into plain Go values suitable for encoding/json
// consumers (JSON schema validation, YAML output). Numbers become json.Number.
func ToNative(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Bool:
		return bool(val)
	case Number:
		return json.Number(val.String())
	case Date:
		return map[string]any{"$date": int64(val)}
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToNative(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToNative(elem)
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler with RFC 8785 key ordering.
func (obj Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(obj)
}

// MarshalJSON implements json.Marshaler.
func (arr Array) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(arr)
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(d)
}

// MarshalJSON implements json.Marshaler.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}
