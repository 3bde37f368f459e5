package filter

import (
	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/codec"
	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/schema"
	"github.com/roach88/cqlbridge/internal/shred"
)

// collectionLeaf carries the parts shared by every collection filter.
type collectionLeaf struct {
	path string
	op   Operator
}

func (l collectionLeaf) Path() string       { return l.path }
func (l collectionLeaf) Operator() Operator { return l.op }

func (l collectionLeaf) AppliesToPrimaryKey(*schema.Object) bool { return false }

func (l collectionLeaf) indexed(obj *schema.Object, column string) bool {
	return obj.HasIndex(column) && obj.Collection.IsIndexed(l.path)
}

func hashEntry(path string, v ir.Value) (string, error) {
	h, err := ir.PathHash(path, v)
	if err != nil {
		return "", apierr.New(apierr.CodeInvalidFilterValue, "%s: %v", path, err).With("path", path)
	}
	return h, nil
}

// IDFilter restricts the document id through the key column: $eq or $in.
type IDFilter struct {
	collectionLeaf
	Values []ir.Value
}

// NewIDFilter creates an $eq (one value) or $in filter on _id.
func NewIDFilter(op Operator, values ...ir.Value) *IDFilter {
	return &IDFilter{collectionLeaf: collectionLeaf{path: schema.IDField, op: op}, Values: values}
}

func (*IDFilter) filterNode() {}

func (f *IDFilter) Target(*schema.Object) (schema.Column, error) {
	return schema.Column{Name: schema.ColKey, Type: schema.Native(schema.TypeText)}, nil
}

func (f *IDFilter) AppliesToPrimaryKey(*schema.Object) bool { return true }

func (f *IDFilter) HasIndexCoverage(*schema.Object) bool { return true }

func (f *IDFilter) Predicates(*schema.Object) (PredicateGroup, error) {
	keys := make([]any, len(f.Values))
	for i, v := range f.Values {
		k, err := shred.NewKey(v)
		if err != nil {
			return PredicateGroup{}, apierr.New(apierr.CodeInvalidFilterValue, "_id: %v", err).With("path", schema.IDField)
		}
		keys[i] = k.Tuple()
	}
	if f.op == IN {
		return single(Predicate{Column: schema.ColKey, Op: "IN", Value: keys}), nil
	}
	return single(Predicate{Column: schema.ColKey, Op: "=", Value: keys[0]}), nil
}

// TextFilter compares a string value: query_text_values[path] op text.
type TextFilter struct {
	collectionLeaf
	Value string
}

func (*TextFilter) filterNode() {}

func (f *TextFilter) Target(*schema.Object) (schema.Column, error) {
	return schema.Column{Name: schema.ColQueryTextValues, Type: schema.Native(schema.TypeText)}, nil
}

func (f *TextFilter) HasIndexCoverage(obj *schema.Object) bool {
	return f.indexed(obj, schema.ColQueryTextValues)
}

func (f *TextFilter) Predicates(*schema.Object) (PredicateGroup, error) {
	return single(Predicate{Column: schema.ColQueryTextValues, MapKey: ir.NormalizePath(f.path), Op: f.op.CQL(), Value: ir.NormalizePath(f.Value)}), nil
}

// NumberFilter compares a number: query_dbl_values[path] op decimal.
type NumberFilter struct {
	collectionLeaf
	Value ir.Number
}

func (*NumberFilter) filterNode() {}

func (f *NumberFilter) Target(*schema.Object) (schema.Column, error) {
	return schema.Column{Name: schema.ColQueryDblValues, Type: schema.Native(schema.TypeDecimal)}, nil
}

func (f *NumberFilter) HasIndexCoverage(obj *schema.Object) bool {
	return f.indexed(obj, schema.ColQueryDblValues)
}

func (f *NumberFilter) Predicates(*schema.Object) (PredicateGroup, error) {
	dec, err := codec.ToCQL(schema.Native(schema.TypeDecimal), f.Value)
	if err != nil {
		return PredicateGroup{}, apierr.New(apierr.CodeInvalidFilterValue, "%s: %v", f.path, err).With("path", f.path)
	}
	return single(Predicate{Column: schema.ColQueryDblValues, MapKey: ir.NormalizePath(f.path), Op: f.op.CQL(), Value: dec}), nil
}

// BoolFilter matches a boolean: query_bool_values[path] = 0|1.
type BoolFilter struct {
	collectionLeaf
	Value bool
}

func (*BoolFilter) filterNode() {}

func (f *BoolFilter) Target(*schema.Object) (schema.Column, error) {
	return schema.Column{Name: schema.ColQueryBoolValues, Type: schema.Native(schema.TypeTinyint)}, nil
}

func (f *BoolFilter) HasIndexCoverage(obj *schema.Object) bool {
	return f.indexed(obj, schema.ColQueryBoolValues)
}

func (f *BoolFilter) Predicates(*schema.Object) (PredicateGroup, error) {
	var v int8
	if f.Value {
		v = 1
	}
	return single(Predicate{Column: schema.ColQueryBoolValues, MapKey: ir.NormalizePath(f.path), Op: "=", Value: v}), nil
}

// NullFilter matches an explicit null: query_null_values CONTAINS path.
type NullFilter struct {
	collectionLeaf
}

func (*NullFilter) filterNode() {}

func (f *NullFilter) Target(*schema.Object) (schema.Column, error) {
	return schema.Column{Name: schema.ColQueryNullValues, Type: schema.Native(schema.TypeText)}, nil
}

func (f *NullFilter) HasIndexCoverage(obj *schema.Object) bool {
	return f.indexed(obj, schema.ColQueryNullValues)
}

func (f *NullFilter) Predicates(*schema.Object) (PredicateGroup, error) {
	return single(Predicate{Column: schema.ColQueryNullValues, Op: "CONTAINS", Value: ir.NormalizePath(f.path)}), nil
}

// DateFilter compares a date: query_timestamp_values[path] op timestamp.
type DateFilter struct {
	collectionLeaf
	Value ir.Date
}

func (*DateFilter) filterNode() {}

func (f *DateFilter) Target(*schema.Object) (schema.Column, error) {
	return schema.Column{Name: schema.ColQueryTimestampValues, Type: schema.Native(schema.TypeTimestamp)}, nil
}

func (f *DateFilter) HasIndexCoverage(obj *schema.Object) bool {
	return f.indexed(obj, schema.ColQueryTimestampValues)
}

func (f *DateFilter) Predicates(*schema.Object) (PredicateGroup, error) {
	return single(Predicate{Column: schema.ColQueryTimestampValues, MapKey: ir.NormalizePath(f.path), Op: f.op.CQL(), Value: f.Value.Time()}), nil
}

// ArrayFilter matches a whole array: array_equals[path] = hash.
type ArrayFilter struct {
	collectionLeaf
	Value ir.Array
}

func (*ArrayFilter) filterNode() {}

func (f *ArrayFilter) Target(*schema.Object) (schema.Column, error) {
	return schema.Column{Name: schema.ColArrayEquals, Type: schema.Native(schema.TypeText)}, nil
}

func (f *ArrayFilter) HasIndexCoverage(obj *schema.Object) bool {
	return f.indexed(obj, schema.ColArrayEquals)
}

func (f *ArrayFilter) Predicates(*schema.Object) (PredicateGroup, error) {
	h, err := ir.Hash(f.Value)
	if err != nil {
		return PredicateGroup{}, apierr.New(apierr.CodeInvalidFilterValue, "%s: %v", f.path, err).With("path", f.path)
	}
	return single(Predicate{Column: schema.ColArrayEquals, MapKey: ir.NormalizePath(f.path), Op: "=", Value: h}), nil
}

// SubDocFilter matches a whole sub document: sub_doc_equals[path] = hash.
type SubDocFilter struct {
	collectionLeaf
	Value ir.Object
}

func (*SubDocFilter) filterNode() {}

func (f *SubDocFilter) Target(*schema.Object) (schema.Column, error) {
	return schema.Column{Name: schema.ColSubDocEquals, Type: schema.Native(schema.TypeText)}, nil
}

func (f *SubDocFilter) HasIndexCoverage(obj *schema.Object) bool {
	return f.indexed(obj, schema.ColSubDocEquals)
}

func (f *SubDocFilter) Predicates(*schema.Object) (PredicateGroup, error) {
	h, err := ir.Hash(f.Value)
	if err != nil {
		return PredicateGroup{}, apierr.New(apierr.CodeInvalidFilterValue, "%s: %v", f.path, err).With("path", f.path)
	}
	return single(Predicate{Column: schema.ColSubDocEquals, MapKey: ir.NormalizePath(f.path), Op: "=", Value: h}), nil
}

// NotEqualFilter excludes one value: array_contains NOT CONTAINS "path hash".
// Documents without the path match, as they do for $ne.
type NotEqualFilter struct {
	collectionLeaf
	Value ir.Value
}

func (*NotEqualFilter) filterNode() {}

func (f *NotEqualFilter) Target(*schema.Object) (schema.Column, error) {
	return schema.Column{Name: schema.ColArrayContains, Type: schema.Native(schema.TypeText)}, nil
}

func (f *NotEqualFilter) HasIndexCoverage(obj *schema.Object) bool {
	return f.indexed(obj, schema.ColArrayContains)
}

func (f *NotEqualFilter) Predicates(*schema.Object) (PredicateGroup, error) {
	h, err := hashEntry(f.path, f.Value)
	if err != nil {
		return PredicateGroup{}, err
	}
	return single(Predicate{Column: schema.ColArrayContains, Op: "NOT CONTAINS", Value: h}), nil
}

// InFilter is $in (an OR of CONTAINS) or $nin (an AND of NOT CONTAINS)
// over array_contains.
type InFilter struct {
	collectionLeaf
	Values []ir.Value
}

func (*InFilter) filterNode() {}

func (f *InFilter) Target(*schema.Object) (schema.Column, error) {
	return schema.Column{Name: schema.ColArrayContains, Type: schema.Native(schema.TypeText)}, nil
}

func (f *InFilter) HasIndexCoverage(obj *schema.Object) bool {
	return f.indexed(obj, schema.ColArrayContains)
}

func (f *InFilter) Predicates(*schema.Object) (PredicateGroup, error) {
	group := PredicateGroup{Join: Or}
	op := "CONTAINS"
	if f.op == NIN {
		group.Join = And
		op = "NOT CONTAINS"
	}
	for _, v := range f.Values {
		h, err := hashEntry(f.path, v)
		if err != nil {
			return PredicateGroup{}, err
		}
		group.Predicates = append(group.Predicates, Predicate{Column: schema.ColArrayContains, Op: op, Value: h})
	}
	return group, nil
}

// AllFilter requires every value to be present: one CONTAINS per element.
type AllFilter struct {
	collectionLeaf
	Values []ir.Value
}

func (*AllFilter) filterNode() {}

func (f *AllFilter) Target(*schema.Object) (schema.Column, error) {
	return schema.Column{Name: schema.ColArrayContains, Type: schema.Native(schema.TypeText)}, nil
}

func (f *AllFilter) HasIndexCoverage(obj *schema.Object) bool {
	return f.indexed(obj, schema.ColArrayContains)
}

func (f *AllFilter) Predicates(*schema.Object) (PredicateGroup, error) {
	group := PredicateGroup{Join: And}
	for _, v := range f.Values {
		h, err := hashEntry(f.path, v)
		if err != nil {
			return PredicateGroup{}, err
		}
		group.Predicates = append(group.Predicates, Predicate{Column: schema.ColArrayContains, Op: "CONTAINS", Value: h})
	}
	return group, nil
}

// SizeFilter matches the length of an array: array_size[path] = n.
type SizeFilter struct {
	collectionLeaf
	Size int32
}

func (*SizeFilter) filterNode() {}

func (f *SizeFilter) Target(*schema.Object) (schema.Column, error) {
	return schema.Column{Name: schema.ColArraySize, Type: schema.Native(schema.TypeInt)}, nil
}

func (f *SizeFilter) HasIndexCoverage(obj *schema.Object) bool {
	return f.indexed(obj, schema.ColArraySize)
}

func (f *SizeFilter) Predicates(*schema.Object) (PredicateGroup, error) {
	return single(Predicate{Column: schema.ColArraySize, MapKey: ir.NormalizePath(f.path), Op: "=", Value: f.Size}), nil
}

// ExistsFilter tests path presence: exist_keys [NOT] CONTAINS path.
type ExistsFilter struct {
	collectionLeaf
	Exists bool
}

func (*ExistsFilter) filterNode() {}

func (f *ExistsFilter) Target(*schema.Object) (schema.Column, error) {
	return schema.Column{Name: schema.ColExistKeys, Type: schema.Native(schema.TypeText)}, nil
}

func (f *ExistsFilter) HasIndexCoverage(obj *schema.Object) bool {
	return f.indexed(obj, schema.ColExistKeys)
}

func (f *ExistsFilter) Predicates(*schema.Object) (PredicateGroup, error) {
	op := "CONTAINS"
	if !f.Exists {
		op = "NOT CONTAINS"
	}
	return single(Predicate{Column: schema.ColExistKeys, Op: op, Value: ir.NormalizePath(f.path)}), nil
}

// newCollectionFilter picks the variant for one path/operator/value triple.
func newCollectionFilter(obj *schema.Object, path string, op Operator, v ir.Value) (Filter, error) {
	if path == "" || path[0] == '$' {
		return nil, apierr.New(apierr.CodeInvalidFilterExpression, "invalid filter path %q", path).With("path", path)
	}
	if !obj.Collection.IsIndexed(path) {
		return nil, apierr.New(apierr.CodeUnindexedFilterPath, "path %q is excluded from indexing and cannot be filtered on", path).
			With("path", path).With("collection", obj.Name)
	}
	leaf := collectionLeaf{path: path, op: op}

	switch op {
	case EQ:
		if path == schema.IDField {
			if _, err := shred.NewKey(v); err != nil {
				return nil, invalidValue(path, op, err.Error())
			}
			return NewIDFilter(EQ, v), nil
		}
		switch val := v.(type) {
		case ir.String:
			return &TextFilter{collectionLeaf: leaf, Value: string(val)}, nil
		case ir.Number:
			return &NumberFilter{collectionLeaf: leaf, Value: val}, nil
		case ir.Bool:
			return &BoolFilter{collectionLeaf: leaf, Value: bool(val)}, nil
		case ir.Null:
			return &NullFilter{collectionLeaf: leaf}, nil
		case ir.Date:
			return &DateFilter{collectionLeaf: leaf, Value: val}, nil
		case ir.Array:
			return &ArrayFilter{collectionLeaf: leaf, Value: val}, nil
		case ir.Object:
			return &SubDocFilter{collectionLeaf: leaf, Value: val}, nil
		}

	case NE:
		return &NotEqualFilter{collectionLeaf: leaf, Value: v}, nil

	case GT, GTE, LT, LTE:
		switch val := v.(type) {
		case ir.String:
			return &TextFilter{collectionLeaf: leaf, Value: string(val)}, nil
		case ir.Number:
			return &NumberFilter{collectionLeaf: leaf, Value: val}, nil
		case ir.Date:
			return &DateFilter{collectionLeaf: leaf, Value: val}, nil
		}
		return nil, apierr.New(apierr.CodeInvalidFilterOperatorForType,
			"operator %s cannot be applied to %s values", op, ir.KindOf(v)).
			With("path", path).With("operator", string(op))

	case IN, NIN:
		arr, ok := v.(ir.Array)
		if !ok {
			return nil, invalidValue(path, op, "requires an array")
		}
		if op == IN && len(arr) == 0 {
			return nil, invalidValue(path, op, "requires a non-empty array")
		}
		if op == IN && path == schema.IDField {
			for _, id := range arr {
				if _, err := shred.NewKey(id); err != nil {
					return nil, invalidValue(path, op, err.Error())
				}
			}
			return NewIDFilter(IN, arr...), nil
		}
		return &InFilter{collectionLeaf: leaf, Values: arr}, nil

	case ALL:
		arr, ok := v.(ir.Array)
		if !ok || len(arr) == 0 {
			return nil, invalidValue(path, op, "requires a non-empty array")
		}
		return &AllFilter{collectionLeaf: leaf, Values: arr}, nil

	case SIZE:
		n, ok := v.(ir.Number)
		if !ok || !n.IsIntegral() || n.Sign() < 0 {
			return nil, invalidValue(path, op, "requires a non-negative integer")
		}
		size, err := n.Int64()
		if err != nil || size > 1<<31-1 {
			return nil, invalidValue(path, op, "size out of range")
		}
		return &SizeFilter{collectionLeaf: leaf, Size: int32(size)}, nil

	case EXISTS:
		b, ok := v.(ir.Bool)
		if !ok {
			return nil, invalidValue(path, op, "requires a boolean")
		}
		return &ExistsFilter{collectionLeaf: leaf, Exists: bool(b)}, nil
	}

	return nil, apierr.New(apierr.CodeInvalidFilterExpression, "unsupported filter operator %q", op).With("path", path)
}

func invalidValue(path string, op Operator, reason string) error {
	return apierr.New(apierr.CodeInvalidFilterValue, "%s on %q %s", op, path, reason).
		With("path", path).With("operator", string(op))
}
