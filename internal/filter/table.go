package filter

import (
	"errors"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/codec"
	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/schema"
)

// ColumnFilter is a scalar comparison against a declared table column.
type ColumnFilter struct {
	Column string
	Op     Operator
	Value  ir.Value
}

func (*ColumnFilter) filterNode() {}

func (f *ColumnFilter) Path() string       { return f.Column }
func (f *ColumnFilter) Operator() Operator { return f.Op }

func (f *ColumnFilter) Target(obj *schema.Object) (schema.Column, error) {
	return lookupColumn(obj, f.Column)
}

func (f *ColumnFilter) AppliesToPrimaryKey(obj *schema.Object) bool {
	return obj.IsPrimaryKey(f.Column)
}

func (f *ColumnFilter) HasIndexCoverage(obj *schema.Object) bool {
	return obj.HasIndex(f.Column)
}

func (f *ColumnFilter) Predicates(obj *schema.Object) (PredicateGroup, error) {
	col, err := lookupColumn(obj, f.Column)
	if err != nil {
		return PredicateGroup{}, err
	}
	v, err := bindValue(col, f.Op, f.Value)
	if err != nil {
		return PredicateGroup{}, err
	}
	return single(Predicate{Column: f.Column, Op: f.Op.CQL(), Value: v}), nil
}

// ColumnInFilter is $in / $nin against a declared table column.
type ColumnInFilter struct {
	Column string
	Op     Operator
	Values []ir.Value
}

func (*ColumnInFilter) filterNode() {}

func (f *ColumnInFilter) Path() string       { return f.Column }
func (f *ColumnInFilter) Operator() Operator { return f.Op }

func (f *ColumnInFilter) Target(obj *schema.Object) (schema.Column, error) {
	return lookupColumn(obj, f.Column)
}

func (f *ColumnInFilter) AppliesToPrimaryKey(obj *schema.Object) bool {
	return obj.IsPrimaryKey(f.Column)
}

func (f *ColumnInFilter) HasIndexCoverage(obj *schema.Object) bool {
	return obj.HasIndex(f.Column)
}

func (f *ColumnInFilter) Predicates(obj *schema.Object) (PredicateGroup, error) {
	col, err := lookupColumn(obj, f.Column)
	if err != nil {
		return PredicateGroup{}, err
	}
	values := make([]any, len(f.Values))
	for i, v := range f.Values {
		if values[i], err = bindValue(col, f.Op, v); err != nil {
			return PredicateGroup{}, err
		}
	}
	return single(Predicate{Column: f.Column, Op: f.Op.CQL(), Value: values}), nil
}

func lookupColumn(obj *schema.Object, name string) (schema.Column, error) {
	col, ok := obj.Column(name)
	if !ok {
		return schema.Column{}, apierr.New(apierr.CodeUnknownTableColumns,
			"filter references unknown column %q; known columns: %v", name, obj.ColumnNames()).
			With("column", name).With("table", obj.Name)
	}
	return col, nil
}

func bindValue(col schema.Column, op Operator, v ir.Value) (any, error) {
	if _, isNull := v.(ir.Null); isNull {
		return nil, apierr.New(apierr.CodeInvalidFilterValue, "column %q cannot be compared with null", col.Name).
			With("column", col.Name).With("operator", string(op))
	}
	out, err := codec.ToCQL(col.Type, v)
	if err != nil {
		var ce *codec.ConversionError
		if errors.As(err, &ce) {
			return nil, apierr.New(apierr.CodeInvalidFilterValue, "column %q: %s", col.Name, ce.Reason).
				With("column", col.Name).With("type", col.Type.String())
		}
		return nil, apierr.New(apierr.CodeInvalidFilterValue, "column %q: %v", col.Name, err).With("column", col.Name)
	}
	return out, nil
}

func newTableFilter(column string, op Operator, v ir.Value) (Filter, error) {
	switch op {
	case EQ, NE, GT, GTE, LT, LTE:
		return &ColumnFilter{Column: column, Op: op, Value: v}, nil
	case IN, NIN:
		arr, ok := v.(ir.Array)
		if !ok {
			return nil, invalidValue(column, op, "requires an array")
		}
		if op == IN && len(arr) == 0 {
			return nil, invalidValue(column, op, "requires a non-empty array")
		}
		return &ColumnInFilter{Column: column, Op: op, Values: arr}, nil
	}
	return nil, apierr.New(apierr.CodeInvalidFilterOperatorForType,
		"operator %s is not supported on table columns", op).
		With("column", column).With("operator", string(op))
}
