package analyzer

import (
	"fmt"
	"strings"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/filter"
	"github.com/roach88/cqlbridge/internal/schema"
)

// Statement is the kind of CQL statement the expression will restrict.
type Statement string

const (
	StatementSelect Statement = "SELECT"
	StatementUpdate Statement = "UPDATE"
	StatementDelete Statement = "DELETE"
)

// AllowsFullScan reports whether ALLOW FILTERING is legal for the statement.
func (s Statement) AllowsFullScan() bool {
	return s == StatementSelect
}

// Result is the verdict for one expression.
type Result struct {
	// FullScanRequired is true when the statement needs ALLOW FILTERING.
	FullScanRequired bool

	// Warnings explain each leaf that needs a full scan, in traversal order.
	Warnings []string
}

// IsEmpty reports a verdict without full scan and without warnings.
func (r Result) IsEmpty() bool {
	return !r.FullScanRequired && len(r.Warnings) == 0
}

// Analyze classifies every leaf of expr against obj.
//
// Unknown columns and illegal operator/type combinations are returned as
// typed request errors. For UPDATE and DELETE a full scan verdict is
// returned as FULL_SCAN_NOT_ALLOWED.
//
// Analyze is a pure function with no side effects.
func Analyze(obj *schema.Object, expr *filter.Expression, stmt Statement) (Result, error) {
	if obj == nil {
		return Result{}, apierr.Internal("analyze: nil schema object")
	}
	a := &analyzer{
		obj:  obj,
		keys: keyCoverage(obj, expr),
	}

	err := expr.Walk(func(f filter.Filter, _ *filter.Expression) error {
		return a.leaf(f)
	})
	if err != nil {
		return Result{}, apierr.From(err)
	}

	res := Result{FullScanRequired: a.fullScan, Warnings: a.warnings}
	if res.FullScanRequired && !stmt.AllowsFullScan() {
		return Result{}, apierr.New(apierr.CodeFullScanNotAllowed,
			"%s on %s cannot use ALLOW FILTERING: %s", stmt, obj.QualifiedName(), strings.Join(res.Warnings, " ")).
			With("statement", string(stmt)).With("object", obj.Name)
	}
	return res, nil
}

// analyzer accumulates the verdict during traversal.
type analyzer struct {
	obj      *schema.Object
	keys     map[filter.Filter]bool
	fullScan bool
	warnings []string
}

func (a *analyzer) requireFullScan(format string, args ...any) {
	a.fullScan = true
	a.warnings = append(a.warnings, fmt.Sprintf(format, args...))
}

func (a *analyzer) leaf(f filter.Filter) error {
	col, err := f.Target(a.obj)
	if err != nil {
		return err
	}
	op := f.Operator()

	if !col.Type.Filterable() {
		return apierr.New(apierr.CodeUnsupportedFilterDataType,
			"column %q of type %s cannot be filtered on", f.Path(), col.Type).
			With("column", f.Path()).With("type", col.Type.String())
	}
	if op.IsOrdering() && !col.Type.Orderable() {
		return apierr.New(apierr.CodeInvalidFilterOperatorForType,
			"operator %s is not supported on column %q of type %s", op, f.Path(), col.Type).
			With("column", f.Path()).With("operator", string(op)).With("type", col.Type.String())
	}

	covered := a.keys[f] || f.HasIndexCoverage(a.obj)

	switch {
	case filter.IsNegation(f):
		if !covered {
			a.requireFullScan("Filter on column %q with operator %s is not covered by an index, ALLOW FILTERING required.", f.Path(), op)
		} else if col.Type.NegationNeedsFullScan() {
			a.requireFullScan("Filter on column %q with operator %s negates a %s value, indexes cannot serve it, ALLOW FILTERING required.", f.Path(), op, col.Type)
		}
	case op.IsOrdering():
		if !covered {
			a.requireFullScan("Filter on column %q with operator %s is a range over an unindexed column, ALLOW FILTERING required.", f.Path(), op)
		}
	default:
		if !covered {
			a.requireFullScan("Filter on column %q with operator %s is not covered by an index, ALLOW FILTERING required.", f.Path(), op)
		}
	}
	return nil
}

// keyCoverage returns the root conjuncts the primary key serves without
// an index. Collection filters report their own key coverage through
// AppliesToPrimaryKey and HasIndexCoverage, so only tables are inspected.
func keyCoverage(obj *schema.Object, expr *filter.Expression) map[filter.Filter]bool {
	covered := map[filter.Filter]bool{}
	if obj.Kind != schema.KindTable || len(obj.PrimaryKey.Partition) == 0 {
		return covered
	}

	byColumn := map[string][]filter.Filter{}
	for _, f := range expr.RootConjuncts() {
		if f.AppliesToPrimaryKey(obj) {
			byColumn[f.Path()] = append(byColumn[f.Path()], f)
		}
	}

	var partition []filter.Filter
	for _, col := range obj.PrimaryKey.Partition {
		f := firstWith(byColumn[col], filter.EQ, filter.IN)
		if f == nil {
			return covered
		}
		partition = append(partition, f)
	}
	for _, f := range partition {
		covered[f] = true
	}

	// Clustering columns are served left to right while every preceding
	// column is pinned by $eq. The first column restricted any other way
	// (range or $in) is served too and ends the prefix.
	for _, cc := range obj.PrimaryKey.Clustering {
		filters := byColumn[cc.Column]
		if len(filters) == 0 {
			break
		}
		pinned := false
		for _, f := range filters {
			op := f.Operator()
			if op == filter.EQ || op == filter.IN || op.IsOrdering() {
				covered[f] = true
			}
			if op == filter.EQ {
				pinned = true
			}
		}
		if !pinned {
			break
		}
	}
	return covered
}

func firstWith(filters []filter.Filter, ops ...filter.Operator) filter.Filter {
	for _, f := range filters {
		for _, op := range ops {
			if f.Operator() == op {
				return f
			}
		}
	}
	return nil
}
