package resolve

import (
	"slices"

	"github.com/roach88/cqlbridge/internal/command"
	"github.com/roach88/cqlbridge/internal/cql"
	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/schema"
	"github.com/roach88/cqlbridge/internal/task"
)

// findPlan is how the rows of a find are windowed, sorted and returned.
type findPlan struct {
	one        bool
	limit      int
	skip       int
	exhaust    bool
	memorySort []command.SortTerm
}

// lookupFunc reads a sort or projection path from a decoded row.
type lookupFunc func(doc ir.Object, path string) (ir.Value, bool)

// column looks up a table column by name.
func column(doc ir.Object, name string) (ir.Value, bool) {
	v, ok := doc[name]
	return v, ok
}

// findWork plans a find or findOne. With memorySort, or with skip, every
// page is read (bounded by MaxInMemorySortRows) and windowed afterwards;
// otherwise the store pages and a page state is handed back.
func (r *Resolver) findWork(cmd *command.Command, sel cql.Select, memorySort bool) (task.ReadWork, findPlan, error) {
	opts := cmd.Options
	if opts.Limit < 0 || opts.Skip < 0 {
		return task.ReadWork{}, findPlan{}, invalidCommand("limit and skip must not be negative")
	}
	p := findPlan{one: cmd.Name == command.FindOne, limit: opts.Limit, skip: opts.Skip}
	if p.one {
		p.limit = 1
	}
	if p.skip > 0 && len(cmd.Sort) == 0 {
		return task.ReadWork{}, findPlan{}, invalidCommand("skip requires a sort clause")
	}
	if memorySort {
		p.memorySort = cmd.Sort
	}
	p.exhaust = memorySort || p.skip > 0

	sel.PageSize = r.cfg.PageSize
	if p.exhaust {
		if opts.PageState != "" {
			return task.ReadWork{}, findPlan{}, invalidCommand("pageState cannot be combined with skip or an in-memory sort")
		}
		if !memorySort && p.limit > 0 {
			sel.Limit = p.limit + p.skip
		}
		stmt, err := compile(sel)
		if err != nil {
			return task.ReadWork{}, findPlan{}, err
		}
		return task.ReadWork{Statement: stmt, Exhaust: true, MaxRows: r.cfg.MaxInMemorySortRows}, p, nil
	}

	state, err := decodePageState(opts.PageState)
	if err != nil {
		return task.ReadWork{}, findPlan{}, err
	}
	sel.PageState = state
	if p.limit > 0 {
		sel.Limit = p.limit
		sel.PageSize = min(sel.PageSize, p.limit)
	}
	stmt, err := compile(sel)
	if err != nil {
		return task.ReadWork{}, findPlan{}, err
	}
	return task.ReadWork{Statement: stmt}, p, nil
}

// shape decodes, sorts, windows and projects the rows of the read task.
func (p findPlan) shape(decode func(row map[string]any) (ir.Object, error), lookup lookupFunc, project func(ir.Object) ir.Object) shapeFunc {
	return func(res *task.Result) (*Response, error) {
		resp := &Response{Data: &Data{}}
		it, ok := res.Item(0)
		if !ok || it.Status != task.StatusCompleted {
			return resp, nil
		}

		docs := make([]ir.Object, 0, len(it.Outcome.Rows))
		for _, row := range it.Outcome.Rows {
			doc, err := decode(row)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		if len(p.memorySort) > 0 {
			sortDocuments(docs, p.memorySort, lookup)
		}
		docs = window(docs, p.skip, p.limit)
		for i := range docs {
			docs[i] = project(docs[i])
		}

		if p.one {
			if len(docs) > 0 {
				resp.Data.Document = docs[0]
			}
			return resp, nil
		}
		resp.Data.Documents = docs
		if !p.exhaust {
			resp.Data.NextPageState = encodePageState(it.Outcome.PageState)
		}
		return resp, nil
	}
}

func window(docs []ir.Object, skip, limit int) []ir.Object {
	if skip >= len(docs) {
		return nil
	}
	docs = docs[skip:]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs
}

// sortDocuments orders documents by the sort terms. A missing value sorts
// before every present one, null included.
func sortDocuments(docs []ir.Object, terms []command.SortTerm, lookup lookupFunc) {
	slices.SortStableFunc(docs, func(a, b ir.Object) int {
		for _, t := range terms {
			av, aok := lookup(a, t.Path)
			bv, bok := lookup(b, t.Path)
			var c int
			switch {
			case !aok && !bok:
			case !aok:
				c = -1
			case !bok:
				c = 1
			default:
				c = ir.Compare(av, bv)
			}
			if t.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

// projectDocument applies a projection to a collection document. _id is
// kept by inclusions unless it is excluded explicitly.
func projectDocument(p *command.Projection) func(ir.Object) ir.Object {
	return func(doc ir.Object) ir.Object {
		switch {
		case p == nil:
			return doc
		case len(p.Include) > 0:
			out := ir.Object{}
			if id, ok := doc[schema.IDField]; ok {
				out[schema.IDField] = id
			}
			for _, path := range p.Include {
				if v, ok := ir.Lookup(doc, path); ok {
					_ = setPath(out, path, v)
				}
			}
			return out
		default:
			out := doc.Clone()
			for _, path := range p.Exclude {
				unsetPath(out, path)
			}
			return out
		}
	}
}

// projectRow applies a projection to a table row.
func projectRow(p *command.Projection) func(ir.Object) ir.Object {
	return func(row ir.Object) ir.Object {
		switch {
		case p == nil:
			return row
		case len(p.Include) > 0:
			out := make(ir.Object, len(p.Include))
			for _, col := range p.Include {
				if v, ok := row[col]; ok {
					out[col] = v
				}
			}
			return out
		default:
			for _, col := range p.Exclude {
				delete(row, col)
			}
			return row
		}
	}
}
