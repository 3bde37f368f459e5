package resolve

import (
	"fmt"
	"strings"

	"github.com/roach88/cqlbridge/internal/analyzer"
	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/command"
	"github.com/roach88/cqlbridge/internal/cql"
	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/exhandler"
	"github.com/roach88/cqlbridge/internal/filter"
	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/schema"
	"github.com/roach88/cqlbridge/internal/shred"
	"github.com/roach88/cqlbridge/internal/task"
)

var collectionCommands = map[command.Name]resolveFunc{
	command.Find:                   (*Resolver).findDocuments,
	command.FindOne:                (*Resolver).findDocuments,
	command.InsertOne:              (*Resolver).insertDocuments,
	command.InsertMany:             (*Resolver).insertDocuments,
	command.UpdateOne:              (*Resolver).updateDocuments,
	command.UpdateMany:             (*Resolver).updateDocuments,
	command.DeleteOne:              (*Resolver).deleteDocuments,
	command.DeleteMany:             (*Resolver).deleteDocuments,
	command.CountDocuments:         (*Resolver).countDocuments,
	command.EstimatedDocumentCount: (*Resolver).estimateDocuments,
}

// Columns read for every document a command looks at.
var documentColumns = []string{schema.ColKey, schema.ColTxID, schema.ColDocJSON}

var documentHandler = exhandler.Of(exhandler.Default{})

func readDocument(row map[string]any) (ir.Object, error) {
	stored, err := shred.ReadRow(row)
	if err != nil {
		return nil, err
	}
	return stored.Doc, nil
}

func (r *Resolver) findDocuments(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	expr, analysis, err := where(obj, cmd.Filter, analyzer.StatementSelect)
	if err != nil {
		return nil, err
	}
	sel := cql.Select{
		Object:         obj,
		Columns:        documentColumns,
		Where:          expr,
		AllowFiltering: analysis.FullScanRequired,
	}
	work, plan, err := r.findWork(cmd, sel, len(cmd.Sort) > 0)
	if err != nil {
		return nil, err
	}

	b := task.NewBuilder(task.NewPositions(), obj).
		WithRetryPolicy(r.readPolicy()).
		WithHandlerFactory(documentHandler).
		WithAnalysis(analysis)
	g, err := single(b, work)
	if err != nil {
		return nil, err
	}
	op := newOperation(cmd, obj, g, plan.shape(readDocument, ir.Lookup, projectDocument(cmd.Projection)))
	if len(plan.memorySort) > 0 {
		op.warn(fmt.Sprintf("sort on %s is done in memory over at most %d documents", sortPaths(cmd.Sort), r.cfg.MaxInMemorySortRows))
	}
	return op, nil
}

// checkDocuments enforces the document count rules of insertOne and insertMany.
func (r *Resolver) checkDocuments(cmd *command.Command) error {
	n := len(cmd.Documents)
	switch {
	case cmd.Name == command.InsertOne && n != 1:
		return invalidCommand("insertOne requires exactly one document, got %d", n)
	case n == 0:
		return invalidCommand("%s requires at least one document", cmd.Name)
	case n > r.cfg.MaxInsertManyDocuments:
		return apierr.New(apierr.CodeTooManyDocuments,
			"%s accepts at most %d documents, got %d", cmd.Name, r.cfg.MaxInsertManyDocuments, n).
			With("limit", fmt.Sprint(r.cfg.MaxInsertManyDocuments))
	}
	return nil
}

// insertDocuments builds one conditional insert per document. A document
// that cannot be shredded becomes a failed task at its position, so the
// other documents are still inserted.
func (r *Resolver) insertDocuments(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	if err := r.checkDocuments(cmd); err != nil {
		return nil, err
	}
	shredder, err := shred.New(obj, r.shredOpts...)
	if err != nil {
		return nil, err
	}

	b := task.NewBuilder(task.NewPositions(), obj).
		WithRetryPolicy(task.NoRetry).
		WithHandlerFactory(documentHandler)
	ids := make([]ir.Value, len(cmd.Documents))
	tasks := make([]*task.Task, 0, len(cmd.Documents))
	for i, doc := range cmd.Documents {
		ids[i] = doc[schema.IDField]
		t, err := insertDocument(b, shredder, obj, doc, &ids[i])
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	ordered := cmd.Options.IsOrdered(false)
	g, err := task.NewGroup(ordered, ordered, tasks...)
	if err != nil {
		return nil, apierr.Internal("build group: %v", err)
	}
	return newOperation(cmd, obj, g, shapeInsert(ids, cmd.Options.ReturnDocumentResponses)), nil
}

func insertDocument(b task.Builder, s *shred.Shredder, obj *schema.Object, doc ir.Object, id *ir.Value) (*task.Task, error) {
	row, _, err := s.Shred(doc)
	if err != nil {
		return b.BuildFailed(err)
	}
	*id = row.ID

	cols, values := row.Columns()
	stmt, err := compile(cql.Insert{Object: obj, Values: assignments(cols, values), IfNotExists: true})
	if err != nil {
		return b.BuildFailed(err)
	}
	return b.WithWork(task.InsertWork{Statement: stmt, ID: row.ID, Conditional: true}).Build()
}

func assignments(cols []string, values []any) []cql.Assignment {
	out := make([]cql.Assignment, len(cols))
	for i := range cols {
		out[i] = cql.Assignment{Column: cols[i], Value: values[i]}
	}
	return out
}

// shapeInsert reports inserted ids in position order. ids holds the id of
// every document, generated ones included, nil where none is known.
func shapeInsert(ids []ir.Value, documentResponses bool) shapeFunc {
	return func(res *task.Result) (*Response, error) {
		inserted := []ir.Value{}
		var responses []DocumentResponse
		failed := 0
		for _, it := range res.Items {
			dr := DocumentResponse{ID: ids[it.Position]}
			switch it.Status {
			case task.StatusCompleted:
				inserted = append(inserted, it.Outcome.InsertedID)
				dr.Status = documentOK
			case task.StatusError:
				idx := failed
				failed++
				dr.Status = documentError
				dr.ErrorsIdx = &idx
			default:
				dr.Status = documentSkipped
			}
			responses = append(responses, dr)
		}

		resp := &Response{Status: map[string]any{}}
		if documentResponses {
			resp.Status[StatusDocumentResponses] = responses
		} else {
			resp.Status[StatusInsertedIDs] = inserted
		}
		return resp, nil
	}
}

// byID restricts a statement to one document.
func byID(id ir.Value) *filter.Expression {
	return &filter.Expression{Join: filter.And, Filters: []filter.Filter{filter.NewIDFilter(filter.EQ, id)}}
}

// rereadFunc fetches the current version of a document if it still
// matches expr.
func rereadFunc(obj *schema.Object, expr *filter.Expression, allowFiltering bool) func(map[string]any) (driver.Statement, error) {
	return func(row map[string]any) (driver.Statement, error) {
		stored, err := shred.ReadRow(row)
		if err != nil {
			return driver.Statement{}, err
		}
		narrowed := byID(stored.Doc[schema.IDField])
		if !expr.IsEmpty() {
			narrowed.Children = []*filter.Expression{expr}
		}
		return compile(cql.Select{Object: obj, Columns: documentColumns, Where: narrowed, AllowFiltering: allowFiltering})
	}
}

// documentWrites checks the shape shared by collection updates and deletes
// and builds the candidate read.
func (r *Resolver) documentWrites(cmd *command.Command, obj *schema.Object) (*filter.Expression, analyzer.Result, driver.Statement, error) {
	if len(cmd.Sort) > 0 {
		return nil, analyzer.Result{}, driver.Statement{}, unsupportedSort(cmd.Name)
	}
	// Candidates are read with a SELECT; the writes themselves are
	// restricted to one key.
	expr, analysis, err := where(obj, cmd.Filter, analyzer.StatementSelect)
	if err != nil {
		return nil, analyzer.Result{}, driver.Statement{}, err
	}
	read, err := compile(cql.Select{
		Object:         obj,
		Columns:        documentColumns,
		Where:          expr,
		AllowFiltering: analysis.FullScanRequired,
		PageSize:       r.cfg.PageSize,
	})
	if err != nil {
		return nil, analyzer.Result{}, driver.Statement{}, err
	}
	return expr, analysis, read, nil
}

func (r *Resolver) writeLimit(name command.Name) int {
	if name == command.UpdateOne || name == command.DeleteOne {
		return 1
	}
	return r.cfg.MaxWriteManyDocuments
}

// updateDocuments reads the matching documents, applies the update in
// memory and writes each changed document back guarded by its tx_id.
func (r *Resolver) updateDocuments(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	if cmd.Options.Upsert {
		return nil, invalidCommand("upsert is not supported")
	}
	if err := checkDocumentUpdate(cmd.Update); err != nil {
		return nil, err
	}
	expr, analysis, read, err := r.documentWrites(cmd, obj)
	if err != nil {
		return nil, err
	}
	shredder, err := shred.New(obj, r.shredOpts...)
	if err != nil {
		return nil, err
	}

	mutate := func(row map[string]any) (*driver.Statement, error) {
		stored, err := shred.ReadRow(row)
		if err != nil {
			return nil, err
		}
		updated, changed, err := applyUpdate(stored.Doc, cmd.Update)
		if err != nil || !changed {
			return nil, err
		}
		next, _, err := shredder.Shred(updated)
		if err != nil {
			return nil, err
		}
		cols, values := next.Columns()
		stmt, err := compile(cql.Update{
			Object: obj,
			// The key is the restriction, never an assignment.
			Set:   assignments(cols[1:], values[1:]),
			Where: byID(stored.Doc[schema.IDField]),
			If:    []cql.Assignment{{Column: schema.ColTxID, Value: stored.TxID}},
		})
		if err != nil {
			return nil, err
		}
		return &stmt, nil
	}

	work := task.ReadModifyWork{
		Read:         read,
		Mutate:       mutate,
		Reread:       rereadFunc(obj, expr, analysis.FullScanRequired),
		Limit:        r.writeLimit(cmd.Name),
		MaxConflicts: r.cfg.MaxConflicts,
	}
	b := task.NewBuilder(task.NewPositions(), obj).
		WithRetryPolicy(task.NoRetry).
		WithHandlerFactory(documentHandler).
		WithAnalysis(analysis)
	g, err := single(b, work)
	if err != nil {
		return nil, err
	}
	return newOperation(cmd, obj, g, shapeUpdate(cmd.Name == command.UpdateMany)), nil
}

func shapeUpdate(many bool) shapeFunc {
	return func(res *task.Result) (*Response, error) {
		totals := res.Totals()
		status := map[string]any{
			StatusMatchedCount:  totals.Matched,
			StatusModifiedCount: totals.Modified,
		}
		if many && totals.MoreData {
			status[StatusMoreData] = true
		}
		return &Response{Status: status}, nil
	}
}

// deleteDocuments deletes matching documents one by one, guarded by
// tx_id. deleteMany without a filter truncates the table.
func (r *Resolver) deleteDocuments(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	if cmd.Name == command.DeleteMany && cmd.Filter.IsEmpty() && len(cmd.Sort) == 0 {
		return r.truncate(cmd, obj, documentHandler)
	}
	expr, analysis, read, err := r.documentWrites(cmd, obj)
	if err != nil {
		return nil, err
	}

	mutate := func(row map[string]any) (*driver.Statement, error) {
		stored, err := shred.ReadRow(row)
		if err != nil {
			return nil, err
		}
		stmt, err := compile(cql.Delete{
			Object: obj,
			Where:  byID(stored.Doc[schema.IDField]),
			If:     []cql.Assignment{{Column: schema.ColTxID, Value: stored.TxID}},
		})
		if err != nil {
			return nil, err
		}
		return &stmt, nil
	}

	work := task.ReadModifyWork{
		Read:         read,
		Mutate:       mutate,
		Reread:       rereadFunc(obj, expr, analysis.FullScanRequired),
		Limit:        r.writeLimit(cmd.Name),
		Delete:       true,
		MaxConflicts: r.cfg.MaxConflicts,
	}
	b := task.NewBuilder(task.NewPositions(), obj).
		WithRetryPolicy(task.NoRetry).
		WithHandlerFactory(documentHandler).
		WithAnalysis(analysis)
	g, err := single(b, work)
	if err != nil {
		return nil, err
	}
	return newOperation(cmd, obj, g, shapeDelete(cmd.Name == command.DeleteMany)), nil
}

func shapeDelete(many bool) shapeFunc {
	return func(res *task.Result) (*Response, error) {
		totals := res.Totals()
		status := map[string]any{StatusDeletedCount: totals.Deleted}
		if many && totals.MoreData {
			status[StatusMoreData] = true
		}
		return &Response{Status: status}, nil
	}
}

// truncate removes every row; the number removed is unknown.
func (r *Resolver) truncate(cmd *command.Command, obj *schema.Object, factory exhandler.Factory) (*Operation, error) {
	stmt, err := compile(cql.Truncate{Object: obj})
	if err != nil {
		return nil, err
	}
	b := task.NewBuilder(task.NewPositions(), obj).
		WithRetryPolicy(r.writePolicy(stmt)).
		WithHandlerFactory(factory)
	g, err := single(b, task.WriteWork{Statement: stmt, Effect: task.Outcome{Deleted: -1}})
	if err != nil {
		return nil, err
	}
	return newOperation(cmd, obj, g, shapeDelete(false)), nil
}

// countDocuments counts matching keys up to MaxCountLimit.
func (r *Resolver) countDocuments(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	expr, analysis, err := where(obj, cmd.Filter, analyzer.StatementSelect)
	if err != nil {
		return nil, err
	}
	stmt, err := compile(cql.Select{
		Object:         obj,
		Columns:        []string{schema.ColKey},
		Where:          expr,
		AllowFiltering: analysis.FullScanRequired,
		PageSize:       r.cfg.PageSize,
	})
	if err != nil {
		return nil, err
	}
	b := task.NewBuilder(task.NewPositions(), obj).
		WithRetryPolicy(r.readPolicy()).
		WithHandlerFactory(documentHandler).
		WithAnalysis(analysis)
	g, err := single(b, task.CountWork{Statement: stmt, Limit: r.cfg.MaxCountLimit})
	if err != nil {
		return nil, err
	}
	return newOperation(cmd, obj, g, shapeCount), nil
}

// estimateDocuments runs an unbounded COUNT(*) over the collection.
func (r *Resolver) estimateDocuments(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	if !cmd.Filter.IsEmpty() {
		return nil, invalidCommand("estimatedDocumentCount does not accept a filter")
	}
	stmt, err := compile(cql.Select{Object: obj, Count: true})
	if err != nil {
		return nil, err
	}
	b := task.NewBuilder(task.NewPositions(), obj).
		WithRetryPolicy(r.readPolicy()).
		WithHandlerFactory(documentHandler)
	g, err := single(b, task.CountWork{Statement: stmt})
	if err != nil {
		return nil, err
	}
	return newOperation(cmd, obj, g, shapeCount), nil
}

func shapeCount(res *task.Result) (*Response, error) {
	totals := res.Totals()
	status := map[string]any{StatusCount: totals.Count}
	if totals.MoreData {
		status[StatusMoreData] = true
	}
	return &Response{Status: status}, nil
}

func unsupportedSort(name command.Name) *apierr.Error {
	return apierr.New(apierr.CodeUnsupportedSortForCommand, "%s does not accept a sort clause", name).
		With("command", string(name))
}

func sortPaths(terms []command.SortTerm) string {
	paths := make([]string, len(terms))
	for i, t := range terms {
		paths[i] = t.Path
	}
	return strings.Join(paths, ", ")
}
