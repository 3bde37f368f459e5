// Package codec converts between ir values and the Go values the CQL
// driver binds and scans, per declared column type.
package codec

import (
	"encoding/base64"
	"fmt"
	"math"
	"math/big"
	"net"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"gopkg.in/inf.v0"

	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/schema"
)

// ConversionError reports a value that cannot be stored in a column type.
type ConversionError struct {
	Type   schema.DataType
	Value  ir.Value
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s value to %s: %s", ir.KindOf(e.Value), e.Type, e.Reason)
}

func fail(t schema.DataType, v ir.Value, format string, args ...any) error {
	return &ConversionError{Type: t, Value: v, Reason: fmt.Sprintf(format, args...)}
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05.999999999"
)

// ToCQL converts v into the Go value bound for a column of type t.
// Null converts to nil for every type.
func ToCQL(t schema.DataType, v ir.Value) (any, error) {
	if _, isNull := v.(ir.Null); isNull || v == nil {
		return nil, nil
	}

	switch t.Kind {
	case schema.TypeText, schema.TypeASCII:
		s, ok := v.(ir.String)
		if !ok {
			return nil, fail(t, v, "expected a string")
		}
		if t.Kind == schema.TypeASCII {
			for _, r := range string(s) {
				if r > 127 {
					return nil, fail(t, v, "non ASCII character %q", r)
				}
			}
		}
		return string(s), nil

	case schema.TypeBoolean:
		b, ok := v.(ir.Bool)
		if !ok {
			return nil, fail(t, v, "expected a boolean")
		}
		return bool(b), nil

	case schema.TypeTinyint, schema.TypeSmallint, schema.TypeInt, schema.TypeBigint, schema.TypeCounter:
		return toInteger(t, v)

	case schema.TypeVarint:
		n, ok := v.(ir.Number)
		if !ok || !n.IsIntegral() {
			return nil, fail(t, v, "expected an integer")
		}
		out, ok := new(big.Int).SetString(n.String(), 10)
		if !ok {
			return nil, fail(t, v, "invalid integer %s", n)
		}
		return out, nil

	case schema.TypeDecimal:
		n, ok := v.(ir.Number)
		if !ok {
			return nil, fail(t, v, "expected a number")
		}
		out, ok := new(inf.Dec).SetString(n.String())
		if !ok {
			return nil, fail(t, v, "invalid decimal %s", n)
		}
		return out, nil

	case schema.TypeFloat, schema.TypeDouble:
		return toFloat(t, v)

	case schema.TypeTimestamp:
		switch val := v.(type) {
		case ir.Date:
			return val.Time(), nil
		case ir.String:
			ts, err := time.Parse(time.RFC3339Nano, string(val))
			if err != nil {
				return nil, fail(t, v, "expected RFC 3339 timestamp")
			}
			return ts, nil
		}
		return nil, fail(t, v, "expected a date or RFC 3339 string")

	case schema.TypeDate:
		switch val := v.(type) {
		case ir.Date:
			return val.Time().Truncate(24 * time.Hour), nil
		case ir.String:
			d, err := time.Parse(dateLayout, string(val))
			if err != nil {
				return nil, fail(t, v, "expected YYYY-MM-DD")
			}
			return d, nil
		}
		return nil, fail(t, v, "expected a date or YYYY-MM-DD string")

	case schema.TypeTime:
		s, ok := v.(ir.String)
		if !ok {
			return nil, fail(t, v, "expected HH:MM:SS[.fffffffff]")
		}
		tod, err := time.Parse(timeLayout, string(s))
		if err != nil {
			return nil, fail(t, v, "expected HH:MM:SS[.fffffffff]")
		}
		return time.Duration(tod.Hour())*time.Hour +
			time.Duration(tod.Minute())*time.Minute +
			time.Duration(tod.Second())*time.Second +
			time.Duration(tod.Nanosecond()), nil

	case schema.TypeDuration:
		s, ok := v.(ir.String)
		if !ok {
			return nil, fail(t, v, "expected a duration string such as 1h30m")
		}
		d, err := time.ParseDuration(string(s))
		if err != nil {
			return nil, fail(t, v, "expected a duration string such as 1h30m")
		}
		return gocql.Duration{Nanoseconds: d.Nanoseconds()}, nil

	case schema.TypeUUID, schema.TypeTimeUUID:
		s, ok := v.(ir.String)
		if !ok {
			return nil, fail(t, v, "expected a UUID string")
		}
		u, err := gocql.ParseUUID(string(s))
		if err != nil {
			return nil, fail(t, v, "invalid UUID %q", s)
		}
		if t.Kind == schema.TypeTimeUUID && u.Version() != 1 {
			return nil, fail(t, v, "timeuuid must be a version 1 UUID")
		}
		return u, nil

	case schema.TypeInet:
		s, ok := v.(ir.String)
		if !ok {
			return nil, fail(t, v, "expected an IP address string")
		}
		ip := net.ParseIP(string(s))
		if ip == nil {
			return nil, fail(t, v, "invalid IP address %q", s)
		}
		return ip, nil

	case schema.TypeBlob:
		return toBlob(t, v)

	case schema.TypeList, schema.TypeSet:
		arr, ok := v.(ir.Array)
		if !ok {
			return nil, fail(t, v, "expected an array")
		}
		out := make([]any, len(arr))
		for i, elem := range arr {
			c, err := ToCQL(*t.Elem, elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil

	case schema.TypeMap:
		return toMap(t, v)

	case schema.TypeTuple:
		arr, ok := v.(ir.Array)
		if !ok || len(arr) != len(t.Fields) {
			return nil, fail(t, v, "expected an array of %d elements", len(t.Fields))
		}
		out := make([]any, len(arr))
		for i, elem := range arr {
			c, err := ToCQL(t.Fields[i], elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil

	case schema.TypeVector:
		arr, ok := v.(ir.Array)
		if !ok || len(arr) != t.Dimension {
			return nil, fail(t, v, "expected an array of %d numbers", t.Dimension)
		}
		out := make([]float32, len(arr))
		for i, elem := range arr {
			n, ok := elem.(ir.Number)
			if !ok {
				return nil, fail(t, v, "element %d is not a number", i)
			}
			f, err := n.Float64()
			if err != nil {
				return nil, fail(t, v, "element %d: %v", i, err)
			}
			if math.Abs(f) > math.MaxFloat32 {
				return nil, fail(t, v, "element %d is out of range for a 32-bit float", i)
			}
			out[i] = float32(f)
		}
		return out, nil
	}

	return nil, fail(t, v, "unsupported column type")
}

func toInteger(t schema.DataType, v ir.Value) (any, error) {
	n, ok := v.(ir.Number)
	if !ok {
		return nil, fail(t, v, "expected an integer")
	}
	i, err := n.Int64()
	if err != nil {
		return nil, fail(t, v, "expected an integer, got %s", n)
	}

	var lo, hi int64
	switch t.Kind {
	case schema.TypeTinyint:
		lo, hi = math.MinInt8, math.MaxInt8
	case schema.TypeSmallint:
		lo, hi = math.MinInt16, math.MaxInt16
	case schema.TypeInt:
		lo, hi = math.MinInt32, math.MaxInt32
	default:
		return i, nil
	}
	if i < lo || i > hi {
		return nil, fail(t, v, "%d out of range [%d, %d]", i, lo, hi)
	}

	switch t.Kind {
	case schema.TypeTinyint:
		return int8(i), nil
	case schema.TypeSmallint:
		return int16(i), nil
	default:
		return int32(i), nil
	}
}

func toFloat(t schema.DataType, v ir.Value) (any, error) {
	var f float64
	switch val := v.(type) {
	case ir.Number:
		var err error
		if f, err = val.Float64(); err != nil {
			return nil, fail(t, v, "%v", err)
		}
	case ir.String:
		switch val {
		case "NaN":
			f = math.NaN()
		case "Infinity":
			f = math.Inf(1)
		case "-Infinity":
			f = math.Inf(-1)
		default:
			return nil, fail(t, v, "only NaN, Infinity and -Infinity are accepted as strings")
		}
	default:
		return nil, fail(t, v, "expected a number")
	}
	if t.Kind == schema.TypeFloat {
		if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
			return nil, fail(t, v, "out of range for a 32-bit float")
		}
		return float32(f), nil
	}
	return f, nil
}

func toBlob(t schema.DataType, v ir.Value) (any, error) {
	obj, ok := v.(ir.Object)
	if !ok || len(obj) != 1 {
		return nil, fail(t, v, `expected {"$binary": "<base64>"}`)
	}
	enc, ok := obj["$binary"].(ir.String)
	if !ok {
		return nil, fail(t, v, `expected {"$binary": "<base64>"}`)
	}
	data, err := base64.StdEncoding.DecodeString(string(enc))
	if err != nil {
		return nil, fail(t, v, "invalid base64: %v", err)
	}
	return data, nil
}

// toMap accepts an object when the key type is text, otherwise an array
// of [key, value] pairs.
func toMap(t schema.DataType, v ir.Value) (any, error) {
	out := make(map[any]any)
	switch val := v.(type) {
	case ir.Object:
		if !t.Key.IsText() {
			return nil, fail(t, v, "object form requires text keys; use [[key, value], ...]")
		}
		for k, elem := range val {
			c, err := ToCQL(*t.Elem, elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			out[k] = c
		}
	case ir.Array:
		for i, entry := range val {
			pair, ok := entry.(ir.Array)
			if !ok || len(pair) != 2 {
				return nil, fail(t, v, "entry %d is not a [key, value] pair", i)
			}
			k, err := ToCQL(*t.Key, pair[0])
			if err != nil {
				return nil, fmt.Errorf("[%d] key: %w", i, err)
			}
			if k == nil || !reflect.TypeOf(k).Comparable() {
				return nil, fail(t, v, "entry %d: key type %s cannot be a map key", i, t.Key)
			}
			c, err := ToCQL(*t.Elem, pair[1])
			if err != nil {
				return nil, fmt.Errorf("[%d] value: %w", i, err)
			}
			out[k] = c
		}
	default:
		return nil, fail(t, v, "expected an object or an array of pairs")
	}
	return out, nil
}

// FromCQL converts a scanned driver value into an ir value, using t to
// pick the representation for dates, times and durations.
func FromCQL(t schema.DataType, v any) (ir.Value, error) {
	if v == nil {
		return ir.Null{}, nil
	}

	switch val := v.(type) {
	case time.Time:
		if val.IsZero() {
			return ir.Null{}, nil
		}
		if t.Kind == schema.TypeDate {
			return ir.String(val.UTC().Format(dateLayout)), nil
		}
		return ir.NewDate(val), nil
	case time.Duration:
		if t.Kind == schema.TypeTime {
			return ir.String(time.Time{}.Add(val).Format("15:04:05.000000000")), nil
		}
		return ir.String(val.String()), nil
	case gocql.Duration:
		if val.Months != 0 || val.Days != 0 {
			return ir.String(fmt.Sprintf("%dmo%dd%s", val.Months, val.Days, time.Duration(val.Nanoseconds))), nil
		}
		return ir.String(time.Duration(val.Nanoseconds).String()), nil
	case gocql.UUID:
		return ir.String(val.String()), nil
	case net.IP:
		return ir.String(val.String()), nil
	case *big.Int:
		return ir.ParseNumber(val.String())
	case *inf.Dec:
		return ir.ParseNumber(val.String())
	case float32:
		return floatValue(float64(val))
	case float64:
		return floatValue(val)
	case []byte:
		return ir.Object{"$binary": ir.String(base64.StdEncoding.EncodeToString(val))}, nil
	case []float32:
		arr := make(ir.Array, len(val))
		for i, f := range val {
			n, err := ir.NewFloat(float64(f))
			if err != nil {
				return nil, err
			}
			arr[i] = n
		}
		return arr, nil
	case bool, string, int, int8, int16, int32, int64:
		return ir.FromNative(val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		arr := make(ir.Array, rv.Len())
		for i := range arr {
			elemType := elementType(t, i)
			elem, err := FromCQL(elemType, rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = elem
		}
		return arr, nil
	case reflect.Map:
		return mapFromCQL(t, rv)
	}

	if s, ok := v.(fmt.Stringer); ok {
		return ir.String(s.String()), nil
	}
	return nil, fmt.Errorf("unsupported driver value %T for %s", v, t)
}

func floatValue(f float64) (ir.Value, error) {
	switch {
	case math.IsNaN(f):
		return ir.String("NaN"), nil
	case math.IsInf(f, 1):
		return ir.String("Infinity"), nil
	case math.IsInf(f, -1):
		return ir.String("-Infinity"), nil
	}
	return ir.NewFloat(f)
}

func elementType(t schema.DataType, i int) schema.DataType {
	switch {
	case t.Kind == schema.TypeTuple && i < len(t.Fields):
		return t.Fields[i]
	case t.Elem != nil:
		return *t.Elem
	default:
		return schema.DataType{}
	}
}

func mapFromCQL(t schema.DataType, rv reflect.Value) (ir.Value, error) {
	var keyType, elemType schema.DataType
	if t.Key != nil {
		keyType = *t.Key
	}
	if t.Elem != nil {
		elemType = *t.Elem
	}

	if keyType.Kind == "" || keyType.IsText() {
		obj := make(ir.Object, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := fmt.Sprint(iter.Key().Interface())
			elem, err := FromCQL(elemType, iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = elem
		}
		return obj, nil
	}

	pairs := make(ir.Array, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := FromCQL(keyType, iter.Key().Interface())
		if err != nil {
			return nil, err
		}
		elem, err := FromCQL(elemType, iter.Value().Interface())
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, ir.Array{k, elem})
	}
	slices.SortFunc(pairs, func(a, b ir.Value) int {
		return ir.Compare(a.(ir.Array)[0], b.(ir.Array)[0])
	})
	return pairs, nil
}

// RowToObject converts a scanned row into a document, keeping only the
// table's declared columns.
func RowToObject(obj *schema.Object, row map[string]any) (ir.Object, error) {
	out := make(ir.Object, len(row))
	for _, col := range obj.Columns {
		raw, ok := row[col.Name]
		if !ok {
			continue
		}
		v, err := FromCQL(col.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		out[col.Name] = v
	}
	return out, nil
}

// Literal renders a bound value as CQL text for explain output.
func Literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case []byte:
		return fmt.Sprintf("0x%x", val)
	case time.Time:
		return "'" + val.UTC().Format(time.RFC3339Nano) + "'"
	case *inf.Dec:
		return val.String()
	case *big.Int:
		return val.String()
	case gocql.UUID:
		return val.String()
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = Literal(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(val)
	}
}
