package shred

import (
	"fmt"
	"strconv"

	"github.com/roach88/cqlbridge/internal/ir"
)

// Key type ids stored in the first element of the key tuple.
const (
	KeyTypeString int8 = 1
	KeyTypeNumber int8 = 2
	KeyTypeBool   int8 = 3
	KeyTypeNull   int8 = 4
	KeyTypeDate   int8 = 5
)

// Key is the (type id, text) tuple stored in a collection's key column.
type Key struct {
	Type int8
	Text string
}

// NewKey encodes a document id. Arrays and objects cannot be ids.
func NewKey(id ir.Value) (Key, error) {
	switch v := id.(type) {
	case ir.String:
		return Key{Type: KeyTypeString, Text: string(v)}, nil
	case ir.Number:
		return Key{Type: KeyTypeNumber, Text: v.String()}, nil
	case ir.Bool:
		return Key{Type: KeyTypeBool, Text: strconv.FormatBool(bool(v))}, nil
	case ir.Null, nil:
		return Key{Type: KeyTypeNull, Text: ""}, nil
	case ir.Date:
		return Key{Type: KeyTypeDate, Text: strconv.FormatInt(int64(v), 10)}, nil
	default:
		return Key{}, fmt.Errorf("document id cannot be %s", ir.KindOf(id))
	}
}

// Tuple returns the value bound to the tuple<tinyint, text> column.
func (k Key) Tuple() []any {
	return []any{k.Type, k.Text}
}

// Value decodes the key back into the document id.
func (k Key) Value() (ir.Value, error) {
	switch k.Type {
	case KeyTypeString:
		return ir.String(k.Text), nil
	case KeyTypeNumber:
		return ir.ParseNumber(k.Text)
	case KeyTypeBool:
		return ir.Bool(k.Text == "true"), nil
	case KeyTypeNull:
		return ir.Null{}, nil
	case KeyTypeDate:
		ms, err := strconv.ParseInt(k.Text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid date key %q: %w", k.Text, err)
		}
		return ir.Date(ms), nil
	default:
		return nil, fmt.Errorf("unknown key type %d", k.Type)
	}
}
