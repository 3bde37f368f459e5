// Package filter holds the filter model: typed predicates bound to a
// collection path or a table column, and the AND/OR expression tree that
// mirrors the caller's filter clause.
//
// There are two families. Collection filters hash document paths into the
// generic index columns of a collection table; one logical filter may
// expand into several physical predicates. Table filters bind directly to
// declared columns. Both implement Filter, so the analyzer and statement
// generation never need to know which family they are looking at.
package filter

import (
	"github.com/roach88/cqlbridge/internal/schema"
)

// Operator is a logical filter operator as written by the caller.
type Operator string

const (
	EQ     Operator = "$eq"
	NE     Operator = "$ne"
	GT     Operator = "$gt"
	GTE    Operator = "$gte"
	LT     Operator = "$lt"
	LTE    Operator = "$lte"
	IN     Operator = "$in"
	NIN    Operator = "$nin"
	EXISTS Operator = "$exists"
	ALL    Operator = "$all"
	SIZE   Operator = "$size"
)

// IsOrdering reports the range operators.
func (op Operator) IsOrdering() bool {
	switch op {
	case GT, GTE, LT, LTE:
		return true
	}
	return false
}

// CQL returns the CQL comparison for scalar operators.
func (op Operator) CQL() string {
	switch op {
	case EQ:
		return "="
	case NE:
		return "!="
	case GT:
		return ">"
	case GTE:
		return ">="
	case LT:
		return "<"
	case LTE:
		return "<="
	case IN:
		return "IN"
	case NIN:
		return "NOT IN"
	}
	return ""
}

// Join combines predicates or expressions.
type Join string

const (
	And Join = "AND"
	Or  Join = "OR"
)

// Predicate is one physical restriction: column (or map entry),
// CQL operator and bind value.
type Predicate struct {
	Column string
	// MapKey is set for restrictions on a map entry: column[key] op value.
	MapKey any
	Op     string
	Value  any
}

// PredicateGroup is the physical form of one logical filter.
type PredicateGroup struct {
	Join       Join
	Predicates []Predicate
}

func single(p Predicate) PredicateGroup {
	return PredicateGroup{Join: And, Predicates: []Predicate{p}}
}

// Filter is a sealed interface implemented by the collection and table
// filter variants in this package.
type Filter interface {
	// Path is the document path or column name the caller filtered on.
	Path() string

	// Operator is the caller's logical operator.
	Operator() Operator

	// Predicates converts the filter into physical predicates.
	Predicates(obj *schema.Object) (PredicateGroup, error)

	// Target resolves the restricted column. The returned column's type is
	// the type of the operand compared against it, which for map entry
	// restrictions is the map value type.
	Target(obj *schema.Object) (schema.Column, error)

	// AppliesToPrimaryKey reports whether the filter restricts a primary key column.
	AppliesToPrimaryKey(obj *schema.Object) bool

	// HasIndexCoverage reports whether an index covers the restricted column.
	HasIndexCoverage(obj *schema.Object) bool

	filterNode()
}

// IsNegation reports filters that restrict by absence: $ne, $nin and
// $exists: false.
func IsNegation(f Filter) bool {
	if e, ok := f.(*ExistsFilter); ok {
		return !e.Exists
	}
	op := f.Operator()
	return op == NE || op == NIN
}

// Expression is a node of the filter tree.
type Expression struct {
	Join     Join
	Filters  []Filter
	Children []*Expression
}

// IsEmpty reports an expression without any filter.
func (e *Expression) IsEmpty() bool {
	if e == nil {
		return true
	}
	if len(e.Filters) > 0 {
		return false
	}
	for _, c := range e.Children {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// Walk visits every filter depth first: a node's filters in declaration
// order, then its children in declaration order. It stops at the first error.
func (e *Expression) Walk(fn func(f Filter, parent *Expression) error) error {
	if e == nil {
		return nil
	}
	for _, f := range e.Filters {
		if err := fn(f, e); err != nil {
			return err
		}
	}
	for _, c := range e.Children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Leaves returns every filter in traversal order.
func (e *Expression) Leaves() []Filter {
	var out []Filter
	_ = e.Walk(func(f Filter, _ *Expression) error {
		out = append(out, f)
		return nil
	})
	return out
}

// RootConjuncts returns the filters whose verdict alone restricts every
// matching row: the root's filters when the root is an AND, plus the
// filters of AND children reachable through AND nodes only.
func (e *Expression) RootConjuncts() []Filter {
	if e == nil || e.Join != And {
		return nil
	}
	out := append([]Filter(nil), e.Filters...)
	for _, c := range e.Children {
		out = append(out, c.RootConjuncts()...)
	}
	return out
}
