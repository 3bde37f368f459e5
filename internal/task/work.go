package task

import (
	"context"
	"fmt"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/ir"
)

// Outcome is what a task produced. Counters are kept even when the task
// failed part way, so partial progress is reported.
type Outcome struct {
	// Rows and PageState are set by reads.
	Rows      []map[string]any
	PageState []byte

	// InsertedID identifies the row written by an insert.
	InsertedID ir.Value

	Matched  int64
	Modified int64

	// Deleted is -1 when the store cannot say how many rows were removed.
	Deleted int64

	// Count is set by count tasks.
	Count int64

	// MoreData reports that the task stopped before exhausting its matches.
	MoreData bool
}

// Work is the operation a task performs. The variants are closed:
// ReadWork, CountWork, InsertWork, WriteWork, ReadModifyWork, SchemaWork.
type Work interface {
	// Kind names the variant for logs, metrics and the journal.
	Kind() string

	// Statements returns the statements known before execution.
	Statements() []driver.Statement

	run(ctx context.Context, c driver.Client) (Outcome, error)
}

// ReadWork runs one select.
type ReadWork struct {
	Statement driver.Statement

	// Exhaust follows page states until the result is complete.
	// MaxRows bounds the rows collected that way; exceeding it fails
	// with DATASET_TOO_BIG.
	Exhaust bool
	MaxRows int
}

func (ReadWork) Kind() string { return "read" }

func (w ReadWork) Statements() []driver.Statement { return []driver.Statement{w.Statement} }

func (w ReadWork) run(ctx context.Context, c driver.Client) (Outcome, error) {
	stmt := w.Statement
	var out Outcome
	for {
		rs, err := c.ExecuteRead(ctx, stmt)
		if err != nil {
			return out, err
		}
		out.Rows = append(out.Rows, rs.Rows...)
		out.PageState = rs.PageState
		out.MoreData = len(rs.PageState) > 0

		if w.Exhaust && w.MaxRows > 0 && len(out.Rows) > w.MaxRows {
			return Outcome{}, apierr.New(apierr.CodeDatasetTooBig,
				"more than %d rows would have to be sorted in memory, narrow the filter", w.MaxRows).
				With("maxRows", fmt.Sprint(w.MaxRows))
		}
		if !w.Exhaust || !out.MoreData {
			return out, nil
		}
		stmt.PageState = rs.PageState
	}
}

// CountWork counts matching rows.
//
// With Limit zero the statement is a SELECT COUNT(*) and its single row is
// read. Otherwise the statement selects the key of each match and rows are
// counted page by page, stopping once Limit is passed.
type CountWork struct {
	Statement driver.Statement
	Limit     int
}

func (CountWork) Kind() string { return "count" }

func (w CountWork) Statements() []driver.Statement { return []driver.Statement{w.Statement} }

func (w CountWork) run(ctx context.Context, c driver.Client) (Outcome, error) {
	if w.Limit == 0 {
		rs, err := c.ExecuteRead(ctx, w.Statement)
		if err != nil {
			return Outcome{}, err
		}
		if len(rs.Rows) != 1 {
			return Outcome{}, apierr.Internal("count returned %d rows", len(rs.Rows))
		}
		n, ok := rs.Rows[0]["count"].(int64)
		if !ok {
			return Outcome{}, apierr.Internal("count returned %T", rs.Rows[0]["count"])
		}
		return Outcome{Count: n}, nil
	}

	stmt := w.Statement
	var n int64
	for {
		rs, err := c.ExecuteRead(ctx, stmt)
		if err != nil {
			return Outcome{Count: n}, err
		}
		n += int64(len(rs.Rows))
		if n > int64(w.Limit) {
			return Outcome{Count: int64(w.Limit), MoreData: true}, nil
		}
		if len(rs.PageState) == 0 {
			return Outcome{Count: n}, nil
		}
		stmt.PageState = rs.PageState
	}
}

// InsertWork writes one row. A conditional insert (IF NOT EXISTS) that is
// not applied fails with DOCUMENT_ALREADY_EXISTS.
type InsertWork struct {
	Statement   driver.Statement
	ID          ir.Value
	Conditional bool
}

func (InsertWork) Kind() string { return "insert" }

func (w InsertWork) Statements() []driver.Statement { return []driver.Statement{w.Statement} }

func (w InsertWork) run(ctx context.Context, c driver.Client) (Outcome, error) {
	rs, err := c.ExecuteWrite(ctx, w.Statement)
	if err != nil {
		return Outcome{}, err
	}
	if w.Conditional && !rs.Applied {
		id := "?"
		if b, err := ir.MarshalCanonical(w.ID); err == nil {
			id = string(b)
		}
		return Outcome{}, apierr.New(apierr.CodeDocumentAlreadyExists, "a document with _id %s already exists", id).
			With("id", id)
	}
	return Outcome{InsertedID: w.ID}, nil
}

// WriteWork runs one update, delete or truncate. CQL does not report how
// many rows a write touched, so Effect is reported on success. A
// conditional write that is not applied reports nothing.
type WriteWork struct {
	Statement   driver.Statement
	Conditional bool
	Effect      Outcome
}

func (WriteWork) Kind() string { return "write" }

func (w WriteWork) Statements() []driver.Statement { return []driver.Statement{w.Statement} }

func (w WriteWork) run(ctx context.Context, c driver.Client) (Outcome, error) {
	rs, err := c.ExecuteWrite(ctx, w.Statement)
	if err != nil {
		return Outcome{}, err
	}
	if w.Conditional && !rs.Applied {
		return Outcome{}, nil
	}
	return w.Effect, nil
}

// ReadModifyWork updates or deletes collection documents one at a time.
// Read selects candidates; Mutate turns each into a conditional write
// guarded by the row's transaction id, or nil when the document is
// already in the requested state. When the guard fails Reread fetches the
// current version of that one document (it must repeat the filter), and
// the mutation is tried again up to MaxConflicts times.
type ReadModifyWork struct {
	Read   driver.Statement
	Mutate func(row map[string]any) (*driver.Statement, error)
	Reread func(row map[string]any) (driver.Statement, error)

	// Limit stops after this many matched documents. Zero means all.
	Limit int

	// Delete counts applied writes as deletions instead of modifications.
	Delete bool

	MaxConflicts int
}

func (ReadModifyWork) Kind() string { return "read_modify" }

func (w ReadModifyWork) Statements() []driver.Statement { return []driver.Statement{w.Read} }

func (w ReadModifyWork) run(ctx context.Context, c driver.Client) (Outcome, error) {
	stmt := w.Read
	var out Outcome
	for {
		rs, err := c.ExecuteRead(ctx, stmt)
		if err != nil {
			return out, err
		}
		for _, row := range rs.Rows {
			if w.Limit > 0 && out.Matched >= int64(w.Limit) {
				out.MoreData = true
				return out, nil
			}
			if err := w.modify(ctx, c, row, &out); err != nil {
				return out, err
			}
		}
		if len(rs.PageState) == 0 {
			return out, nil
		}
		if w.Limit > 0 && out.Matched >= int64(w.Limit) {
			out.MoreData = true
			return out, nil
		}
		stmt.PageState = rs.PageState
	}
}

func (w ReadModifyWork) modify(ctx context.Context, c driver.Client, row map[string]any, out *Outcome) error {
	for conflicts := 0; ; conflicts++ {
		write, err := w.Mutate(row)
		if err != nil {
			return err
		}
		if write == nil {
			out.Matched++
			return nil
		}

		rs, err := c.ExecuteWrite(ctx, *write)
		if err != nil {
			return err
		}
		if rs.Applied {
			out.Matched++
			if w.Delete {
				out.Deleted++
			} else {
				out.Modified++
			}
			return nil
		}

		if conflicts >= w.MaxConflicts || w.Reread == nil {
			return apierr.New(apierr.CodeConcurrencyFailure,
				"document changed concurrently %d times, giving up", conflicts+1)
		}
		again, err := w.Reread(row)
		if err != nil {
			return err
		}
		fresh, err := c.ExecuteRead(ctx, again)
		if err != nil {
			return err
		}
		if len(fresh.Rows) == 0 {
			// Deleted or no longer matching.
			return nil
		}
		row = fresh.Rows[0]
	}
}

// SchemaWork runs one DDL statement.
type SchemaWork struct {
	Statement driver.Statement
}

func (SchemaWork) Kind() string { return "schema" }

func (w SchemaWork) Statements() []driver.Statement { return []driver.Statement{w.Statement} }

func (w SchemaWork) run(ctx context.Context, c driver.Client) (Outcome, error) {
	if _, err := c.ExecuteSchemaChange(ctx, w.Statement); err != nil {
		return Outcome{}, err
	}
	return Outcome{}, nil
}
