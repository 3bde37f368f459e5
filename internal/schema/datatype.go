package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// TypeKind is a CQL native or container type name.
type TypeKind string

const (
	TypeASCII     TypeKind = "ascii"
	TypeBigint    TypeKind = "bigint"
	TypeBlob      TypeKind = "blob"
	TypeBoolean   TypeKind = "boolean"
	TypeCounter   TypeKind = "counter"
	TypeDate      TypeKind = "date"
	TypeDecimal   TypeKind = "decimal"
	TypeDouble    TypeKind = "double"
	TypeDuration  TypeKind = "duration"
	TypeFloat     TypeKind = "float"
	TypeInet      TypeKind = "inet"
	TypeInt       TypeKind = "int"
	TypeSmallint  TypeKind = "smallint"
	TypeText      TypeKind = "text"
	TypeTime      TypeKind = "time"
	TypeTimestamp TypeKind = "timestamp"
	TypeTimeUUID  TypeKind = "timeuuid"
	TypeTinyint   TypeKind = "tinyint"
	TypeUUID      TypeKind = "uuid"
	TypeVarint    TypeKind = "varint"

	TypeList   TypeKind = "list"
	TypeSet    TypeKind = "set"
	TypeMap    TypeKind = "map"
	TypeTuple  TypeKind = "tuple"
	TypeVector TypeKind = "vector"
)

var nativeTypes = map[TypeKind]bool{
	TypeASCII: true, TypeBigint: true, TypeBlob: true, TypeBoolean: true,
	TypeCounter: true, TypeDate: true, TypeDecimal: true, TypeDouble: true,
	TypeDuration: true, TypeFloat: true, TypeInet: true, TypeInt: true,
	TypeSmallint: true, TypeText: true, TypeTime: true, TypeTimestamp: true,
	TypeTimeUUID: true, TypeTinyint: true, TypeUUID: true, TypeVarint: true,
}

// DataType describes a column type.
//
// Elem is set for list, set and vector; Key and Elem for map; Fields for tuple.
type DataType struct {
	Kind      TypeKind
	Key       *DataType
	Elem      *DataType
	Fields    []DataType
	Dimension int
}

// Native returns a DataType for a non-container type.
func Native(kind TypeKind) DataType {
	return DataType{Kind: kind}
}

// ParseType parses a CQL type string such as "int", "map<text, int>",
// "frozen<list<text>>" or "vector<float, 3>". Frozen wrappers are dropped.
func ParseType(s string) (DataType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return DataType{}, fmt.Errorf("empty type")
	}

	open := strings.IndexByte(s, '<')
	if open < 0 {
		kind := TypeKind(s)
		if kind == "varchar" {
			kind = TypeText
		}
		if !nativeTypes[kind] {
			return DataType{}, fmt.Errorf("unknown type %q", s)
		}
		return DataType{Kind: kind}, nil
	}
	if !strings.HasSuffix(s, ">") {
		return DataType{}, fmt.Errorf("malformed type %q", s)
	}

	name := strings.TrimSpace(s[:open])
	args, err := splitTypeArgs(s[open+1 : len(s)-1])
	if err != nil {
		return DataType{}, fmt.Errorf("type %q: %w", s, err)
	}

	switch TypeKind(name) {
	case "frozen":
		if len(args) != 1 {
			return DataType{}, fmt.Errorf("frozen takes one argument: %q", s)
		}
		return ParseType(args[0])
	case TypeList, TypeSet:
		if len(args) != 1 {
			return DataType{}, fmt.Errorf("%s takes one argument: %q", name, s)
		}
		elem, err := ParseType(args[0])
		if err != nil {
			return DataType{}, err
		}
		return DataType{Kind: TypeKind(name), Elem: &elem}, nil
	case TypeMap:
		if len(args) != 2 {
			return DataType{}, fmt.Errorf("map takes two arguments: %q", s)
		}
		key, err := ParseType(args[0])
		if err != nil {
			return DataType{}, err
		}
		elem, err := ParseType(args[1])
		if err != nil {
			return DataType{}, err
		}
		return DataType{Kind: TypeMap, Key: &key, Elem: &elem}, nil
	case TypeTuple:
		fields := make([]DataType, 0, len(args))
		for _, a := range args {
			f, err := ParseType(a)
			if err != nil {
				return DataType{}, err
			}
			fields = append(fields, f)
		}
		return DataType{Kind: TypeTuple, Fields: fields}, nil
	case TypeVector:
		if len(args) != 2 {
			return DataType{}, fmt.Errorf("vector takes an element type and a dimension: %q", s)
		}
		elem, err := ParseType(args[0])
		if err != nil {
			return DataType{}, err
		}
		dim, err := strconv.Atoi(args[1])
		if err != nil || dim <= 0 {
			return DataType{}, fmt.Errorf("invalid vector dimension %q", args[1])
		}
		return DataType{Kind: TypeVector, Elem: &elem, Dimension: dim}, nil
	default:
		return DataType{}, fmt.Errorf("unknown type %q", s)
	}
}

// MustParseType is like ParseType but panics on error.
func MustParseType(s string) DataType {
	t, err := ParseType(s)
	if err != nil {
		panic(err)
	}
	return t
}

// splitTypeArgs splits on commas that are not nested inside angle brackets.
func splitTypeArgs(s string) ([]string, error) {
	var args []string
	depth, start := 0, 0
	for i, c := range s {
		switch c {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced '>'")
			}
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced '<'")
	}
	args = append(args, strings.TrimSpace(s[start:]))
	for _, a := range args {
		if a == "" {
			return nil, fmt.Errorf("empty type argument")
		}
	}
	return args, nil
}

// String renders the CQL form of the type.
func (t DataType) String() string {
	switch t.Kind {
	case TypeList, TypeSet:
		return fmt.Sprintf("%s<%s>", t.Kind, t.Elem)
	case TypeMap:
		return fmt.Sprintf("map<%s, %s>", t.Key, t.Elem)
	case TypeTuple:
		parts := make([]string, len(t.Fields))
		for i, f := range t.Fields {
			parts[i] = f.String()
		}
		return "tuple<" + strings.Join(parts, ", ") + ">"
	case TypeVector:
		return fmt.Sprintf("vector<%s, %d>", t.Elem, t.Dimension)
	default:
		return string(t.Kind)
	}
}

// IsNumeric reports integer, floating point and decimal types.
func (t DataType) IsNumeric() bool {
	switch t.Kind {
	case TypeBigint, TypeCounter, TypeDecimal, TypeDouble, TypeFloat,
		TypeInt, TypeSmallint, TypeTinyint, TypeVarint:
		return true
	}
	return false
}

// IsTemporal reports date, time and timestamp. Duration is not temporal
// in this sense because it has no ordering.
func (t DataType) IsTemporal() bool {
	switch t.Kind {
	case TypeDate, TypeTime, TypeTimestamp:
		return true
	}
	return false
}

// IsText reports text and ascii.
func (t DataType) IsText() bool {
	return t.Kind == TypeText || t.Kind == TypeASCII
}

// IsContainer reports list, set, map and tuple.
func (t DataType) IsContainer() bool {
	switch t.Kind {
	case TypeList, TypeSet, TypeMap, TypeTuple:
		return true
	}
	return false
}

// Filterable reports whether a column of this type can appear in a
// where clause as a scalar.
func (t DataType) Filterable() bool {
	return !t.IsContainer() && t.Kind != TypeVector
}

// Orderable reports whether range restrictions ($gt, $lt...) are defined
// for the type.
func (t DataType) Orderable() bool {
	switch t.Kind {
	case TypeDuration, TypeBoolean, TypeVector:
		return false
	}
	return !t.IsContainer()
}

// NegationNeedsFullScan reports types for which a $ne / $nin restriction
// cannot be served by an SAI index alone.
func (t DataType) NegationNeedsFullScan() bool {
	switch t.Kind {
	case TypeText, TypeASCII, TypeBoolean, TypeBlob, TypeDuration,
		TypeUUID, TypeTimeUUID, TypeInet:
		return true
	}
	return false
}
