package filter

import (
	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/command"
	"github.com/roach88/cqlbridge/internal/schema"
)

// Build converts a command filter clause into an expression using the
// filter family of obj. A nil clause yields an empty AND expression.
func Build(obj *schema.Object, clause *command.Clause) (*Expression, error) {
	var newFilter func(command.Condition) (Filter, error)
	switch obj.Kind {
	case schema.KindCollection:
		newFilter = func(c command.Condition) (Filter, error) {
			return newCollectionFilter(obj, c.Path, Operator(c.Op), c.Value)
		}
	case schema.KindTable:
		newFilter = func(c command.Condition) (Filter, error) {
			return newTableFilter(c.Path, Operator(c.Op), c.Value)
		}
	default:
		return nil, apierr.Internal("cannot build filters for %s", obj)
	}

	if clause == nil {
		return &Expression{Join: And}, nil
	}
	return buildNode(clause, newFilter)
}

func buildNode(c *command.Clause, newFilter func(command.Condition) (Filter, error)) (*Expression, error) {
	e := &Expression{Join: And}
	if c.Join == command.Or {
		e.Join = Or
	}
	for _, cond := range c.Conditions {
		f, err := newFilter(cond)
		if err != nil {
			return nil, err
		}
		e.Filters = append(e.Filters, f)
	}
	for _, child := range c.Children {
		ce, err := buildNode(child, newFilter)
		if err != nil {
			return nil, err
		}
		e.Children = append(e.Children, ce)
	}
	return e, nil
}
