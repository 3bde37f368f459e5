package resolve

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/cqlbridge/internal/analyzer"
	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/codec"
	"github.com/roach88/cqlbridge/internal/command"
	"github.com/roach88/cqlbridge/internal/cql"
	"github.com/roach88/cqlbridge/internal/exhandler"
	"github.com/roach88/cqlbridge/internal/filter"
	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/schema"
	"github.com/roach88/cqlbridge/internal/task"
)

var tableCommands = map[command.Name]resolveFunc{
	command.Find:        (*Resolver).findRows,
	command.FindOne:     (*Resolver).findRows,
	command.InsertOne:   (*Resolver).insertRows,
	command.InsertMany:  (*Resolver).insertRows,
	command.UpdateOne:   (*Resolver).updateRow,
	command.DeleteOne:   (*Resolver).deleteRows,
	command.DeleteMany:  (*Resolver).deleteRows,
	command.AlterTable:  (*Resolver).alterTable,
	command.CreateIndex: (*Resolver).createIndex,
	command.ListIndexes: (*Resolver).listIndexes,
}

var (
	tableRead  = exhandler.Of(exhandler.TableRead{})
	tableWrite = exhandler.Of(exhandler.TableWrite{})
)

func unknownColumns(obj *schema.Object, cols []string) *apierr.Error {
	return apierr.New(apierr.CodeUnknownTableColumns,
		"unknown columns %s; known columns: %s", strings.Join(cols, ", "), strings.Join(obj.ColumnNames(), ", ")).
		With("columns", strings.Join(cols, ",")).
		With("table", obj.Name)
}

// checkColumns reports the names obj does not declare.
func checkColumns(obj *schema.Object, cols []string) error {
	var unknown []string
	for _, c := range cols {
		if _, ok := obj.Column(c); !ok {
			unknown = append(unknown, c)
		}
	}
	if len(unknown) > 0 {
		return unknownColumns(obj, unknown)
	}
	return nil
}

func (r *Resolver) findRows(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	expr, analysis, err := where(obj, cmd.Filter, analyzer.StatementSelect)
	if err != nil {
		return nil, err
	}
	if cmd.Projection != nil {
		if err := checkColumns(obj, append(slices.Clone(cmd.Projection.Include), cmd.Projection.Exclude...)); err != nil {
			return nil, err
		}
	}
	if err := checkSort(obj, cmd.Sort); err != nil {
		return nil, err
	}

	sel := cql.Select{Object: obj, Where: expr, AllowFiltering: analysis.FullScanRequired}
	order, pushed := orderBy(obj, expr, cmd.Sort)
	if pushed {
		sel.OrderBy = order
	}
	work, plan, err := r.findWork(cmd, sel, len(cmd.Sort) > 0 && !pushed)
	if err != nil {
		return nil, err
	}

	b := task.NewBuilder(task.NewPositions(), obj).
		WithRetryPolicy(r.readPolicy()).
		WithHandlerFactory(tableRead).
		WithAnalysis(analysis)
	g, err := single(b, work)
	if err != nil {
		return nil, err
	}
	decode := func(row map[string]any) (ir.Object, error) {
		doc, err := codec.RowToObject(obj, row)
		if err != nil {
			return nil, apierr.Internal("decode row of %s: %v", obj, err)
		}
		return doc, nil
	}
	op := newOperation(cmd, obj, g, plan.shape(decode, column, projectRow(cmd.Projection)))
	if len(plan.memorySort) > 0 {
		op.warn(fmt.Sprintf("sort on %s is done in memory over at most %d rows", sortPaths(cmd.Sort), r.cfg.MaxInMemorySortRows))
	}
	return op, nil
}

func checkSort(obj *schema.Object, terms []command.SortTerm) error {
	var unknown []string
	for _, t := range terms {
		col, ok := obj.Column(t.Path)
		if !ok {
			unknown = append(unknown, t.Path)
			continue
		}
		if !col.Type.Filterable() {
			return apierr.New(apierr.CodeInvalidSortClause, "cannot sort on column %q of type %s", col.Name, col.Type).
				With("column", col.Name)
		}
	}
	if len(unknown) > 0 {
		return unknownColumns(obj, unknown)
	}
	return nil
}

// orderBy returns the ORDER BY the store can serve for the sort: every
// filter on the primary key, the partition key restricted by equality and
// the terms a prefix of the clustering columns, all in declared order or
// all reversed.
func orderBy(obj *schema.Object, expr *filter.Expression, terms []command.SortTerm) ([]cql.Order, bool) {
	clustering := obj.PrimaryKey.Clustering
	if len(terms) == 0 || len(terms) > len(clustering) {
		return nil, false
	}
	for _, f := range expr.Leaves() {
		if !f.AppliesToPrimaryKey(obj) {
			return nil, false
		}
	}
	eq := equalityColumns(expr)
	for _, p := range obj.PrimaryKey.Partition {
		if !eq[p] {
			return nil, false
		}
	}

	reversed := terms[0].Descending != clustering[0].Descending
	out := make([]cql.Order, len(terms))
	for i, t := range terms {
		c := clustering[i]
		if t.Path != c.Column || (t.Descending != c.Descending) != reversed {
			return nil, false
		}
		out[i] = cql.Order{Column: t.Path, Descending: t.Descending}
	}
	return out, true
}

// equalityColumns returns the columns restricted by $eq on every row.
func equalityColumns(expr *filter.Expression) map[string]bool {
	out := make(map[string]bool)
	for _, f := range expr.RootConjuncts() {
		if cf, ok := f.(*filter.ColumnFilter); ok && cf.Op == filter.EQ {
			out[cf.Column] = true
		}
	}
	return out
}

// rowAssignments converts a document into column assignments in
// declaration order. The returned id is the primary key, in key order.
func rowAssignments(obj *schema.Object, doc ir.Object) ([]cql.Assignment, ir.Array, error) {
	var unknown []string
	for _, k := range doc.SortedKeys() {
		if _, ok := obj.Column(k); !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		return nil, nil, unknownColumns(obj, unknown)
	}

	var missing []string
	id := ir.Array{}
	for _, k := range obj.PrimaryKey.Columns() {
		v, ok := doc[k]
		if _, isNull := v.(ir.Null); !ok || isNull {
			missing = append(missing, k)
			continue
		}
		id = append(id, v)
	}
	if len(missing) > 0 {
		return nil, nil, apierr.New(apierr.CodeMissingPrimaryKeyColumns,
			"row is missing primary key columns %s", strings.Join(missing, ", ")).
			With("columns", strings.Join(missing, ",")).
			With("table", obj.Name)
	}

	var out []cql.Assignment
	for _, col := range obj.Columns {
		v, ok := doc[col.Name]
		if !ok {
			continue
		}
		bound, err := columnValue(obj, col, v)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, cql.Assignment{Column: col.Name, Value: bound})
	}
	return out, id, nil
}

func columnValue(obj *schema.Object, col schema.Column, v ir.Value) (any, error) {
	bound, err := codec.ToCQL(col.Type, v)
	if err == nil {
		return bound, nil
	}
	reason := err.Error()
	var ce *codec.ConversionError
	if errors.As(err, &ce) {
		reason = ce.Reason
	}
	return nil, apierr.New(apierr.CodeInvalidColumnValue, "column %q of type %s: %s", col.Name, col.Type, reason).
		With("column", col.Name).
		With("type", col.Type.String()).
		With("table", obj.Name)
}

// insertRows builds one insert per row. A row that cannot be converted
// becomes a failed task at its position.
func (r *Resolver) insertRows(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	if err := r.checkDocuments(cmd); err != nil {
		return nil, err
	}

	b := task.NewBuilder(task.NewPositions(), obj).WithHandlerFactory(tableWrite)
	ids := make([]ir.Value, len(cmd.Documents))
	tasks := make([]*task.Task, 0, len(cmd.Documents))
	for i, doc := range cmd.Documents {
		t, err := r.insertRow(b, obj, doc, &ids[i])
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

func (r *Resolver) insertRow(b task.Builder, obj *schema.Object, doc ir.Object, id *ir.Value) (*task.Task, error) {
	values, key, err := rowAssignments(obj, doc)
	if err != nil {
		return b.BuildFailed(err)
	}
	*id = key
	stmt, err := compile(cql.Insert{Object: obj, Values: values, IfNotExists: false})
	if err != nil {
		return b.BuildFailed(err)
	}
	return b.WithRetryPolicy(r.writePolicy(stmt)).
		WithWork(task.InsertWork{Statement: stmt, ID: key}).
		Build()
}

// keyOnly rejects filters a CQL write cannot express: $or and restrictions
// on columns outside the primary key. With full set every primary key
// column must be restricted by $eq.
func keyOnly(obj *schema.Object, expr *filter.Expression, name command.Name, full bool) error {
	leaves := expr.Leaves()
	if len(leaves) != len(expr.RootConjuncts()) {
		return apierr.New(apierr.CodeInvalidFilterExpression, "%s on a table cannot combine filters with $or", name).
			With("command", string(name))
	}
	for _, f := range leaves {
		if !f.AppliesToPrimaryKey(obj) {
			return apierr.New(apierr.CodeInvalidFilterExpression,
				"%s can only filter on primary key columns, %q is not one", name, f.Path()).
				With("command", string(name)).
				With("column", f.Path())
		}
		if full && f.Operator() != filter.EQ {
			return apierr.New(apierr.CodeInvalidFilterExpression,
				"%s requires $eq on primary key columns, got %s on %q", name, f.Operator(), f.Path()).
				With("command", string(name)).
				With("column", f.Path())
		}
	}
	if !full {
		return nil
	}

	eq := equalityColumns(expr)
	var missing []string
	for _, c := range obj.PrimaryKey.Columns() {
		if !eq[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return apierr.New(apierr.CodeMissingPrimaryKeyFilter,
			"%s must restrict every primary key column, missing %s", name, strings.Join(missing, ", ")).
			With("command", string(name)).
			With("columns", strings.Join(missing, ","))
	}
	return nil
}

// tableUpdate converts $set and $unset into assignments.
func tableUpdate(obj *schema.Object, ops []command.UpdateOp) ([]cql.Assignment, error) {
	if len(ops) == 0 {
		return nil, apierr.New(apierr.CodeInvalidUpdate, "update clause is empty")
	}
	var unknown []string
	var out []cql.Assignment
	for _, op := range ops {
		if op.Operator != opSet && op.Operator != opUnset {
			return nil, apierr.New(apierr.CodeUnsupportedUpdateOperator,
				"update operator %q is not supported on tables, use $set or $unset", op.Operator).
				With("operator", op.Operator)
		}
		col, ok := obj.Column(op.Path)
		if !ok {
			unknown = append(unknown, op.Path)
			continue
		}
		if obj.IsPrimaryKey(col.Name) {
			return nil, invalidUpdate(col.Name, "primary key column %q cannot be updated", col.Name)
		}
		if slices.ContainsFunc(out, func(a cql.Assignment) bool { return a.Column == col.Name }) {
			return nil, invalidUpdate(col.Name, "column %q is updated twice", col.Name)
		}
		var bound any
		if op.Operator == opSet {
			var err error
			if bound, err = columnValue(obj, col, op.Value); err != nil {
				return nil, err
			}
		}
		out = append(out, cql.Assignment{Column: col.Name, Value: bound})
	}
	if len(unknown) > 0 {
		return nil, unknownColumns(obj, unknown)
	}
	return out, nil
}

func (r *Resolver) updateRow(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	if len(cmd.Sort) > 0 {
		return nil, unsupportedSort(cmd.Name)
	}
	if cmd.Options.Upsert {
		return nil, invalidCommand("upsert is not supported")
	}
	expr, analysis, err := where(obj, cmd.Filter, analyzer.StatementUpdate)
	if err != nil {
		return nil, err
	}
	if err := keyOnly(obj, expr, cmd.Name, true); err != nil {
		return nil, err
	}
	set, err := tableUpdate(obj, cmd.Update)
	if err != nil {
		return nil, err
	}
	stmt, err := compile(cql.Update{Object: obj, Set: set, Where: expr})
	if err != nil {
		return nil, err
	}

	b := task.NewBuilder(task.NewPositions(), obj).
		WithRetryPolicy(r.writePolicy(stmt)).
		WithHandlerFactory(tableWrite).
		WithAnalysis(analysis)
	// CQL updates are upserts and report nothing; the addressed row counts
	// as matched and modified.
	g, err := single(b, task.WriteWork{Statement: stmt, Effect: task.Outcome{Matched: 1, Modified: 1}})
	if err != nil {
		return nil, err
	}
	return newOperation(cmd, obj, g, shapeUpdate(false)), nil
}

// deleteRows handles deleteOne (full primary key) and deleteMany (any
// primary key restriction the store can serve without a full scan).
func (r *Resolver) deleteRows(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	if len(cmd.Sort) > 0 {
		return nil, unsupportedSort(cmd.Name)
	}
	if cmd.Name == command.DeleteMany && cmd.Filter.IsEmpty() {
		return r.truncate(cmd, obj, tableWrite)
	}
	expr, analysis, err := where(obj, cmd.Filter, analyzer.StatementDelete)
	if err != nil {
		return nil, err
	}
	if err := keyOnly(obj, expr, cmd.Name, cmd.Name == command.DeleteOne); err != nil {
		return nil, err
	}
	stmt, err := compile(cql.Delete{Object: obj, Where: expr})
	if err != nil {
		return nil, err
	}

	b := task.NewBuilder(task.NewPositions(), obj).
		WithRetryPolicy(r.writePolicy(stmt)).
		WithHandlerFactory(tableWrite).
		WithAnalysis(analysis)
	g, err := single(b, task.WriteWork{Statement: stmt, Effect: task.Outcome{Deleted: -1}})
	if err != nil {
		return nil, err
	}
	return newOperation(cmd, obj, g, shapeDelete(false)), nil
}

// alterTable adds or drops columns. Drops that would break the primary
// key or an index are refused here, before the store is asked.
func (r *Resolver) alterTable(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	alter := cmd.Alter
	if alter == nil || (len(alter.Add) == 0) == (len(alter.Drop) == 0) {
		return nil, invalidCommand("alterTable requires exactly one of add and drop")
	}
	q := cql.AlterTable{Keyspace: obj.Keyspace, Name: obj.Name}

	var conflicts []string
	for _, c := range alter.Add {
		if _, ok := obj.Column(c.Name); ok {
			conflicts = append(conflicts, c.Name)
		}
		q.Add = append(q.Add, schema.Column{Name: c.Name, Type: c.Type})
	}
	if len(conflicts) > 0 {
		return nil, apierr.New(apierr.CodeCannotAddExistingColumns, "columns %s already exist", strings.Join(conflicts, ", ")).
			With("columns", strings.Join(conflicts, ",")).
			With("table", obj.Name)
	}

	if err := checkColumns(obj, alter.Drop); err != nil {
		return nil, err
	}
	var keys, indexed []string
	for _, c := range alter.Drop {
		if obj.IsPrimaryKey(c) {
			keys = append(keys, c)
		}
		if idx, ok := obj.IndexOn(c); ok {
			indexed = append(indexed, c+" ("+idx.Name+")")
		}
	}
	switch {
	case len(keys) > 0:
		return nil, apierr.New(apierr.CodeCannotDropPrimaryKeyColumns, "primary key columns %s cannot be dropped", strings.Join(keys, ", ")).
			With("columns", strings.Join(keys, ",")).
			With("table", obj.Name)
	case len(indexed) > 0:
		return nil, apierr.New(apierr.CodeCannotDropIndexedColumns, "indexed columns %s cannot be dropped, drop their indexes first", strings.Join(indexed, ", ")).
			With("columns", strings.Join(indexed, ",")).
			With("table", obj.Name)
	}
	q.Drop = alter.Drop

	return r.ddl(cmd, obj, q, exhandler.AlterTable{Keyspace: obj.Keyspace, Table: obj.Name})
}

func (r *Resolver) createIndex(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	if cmd.Target == "" || cmd.Index == nil {
		return nil, invalidCommand("createIndex requires a name and a definition")
	}
	col, ok := obj.Column(cmd.Index.Column)
	if !ok {
		return nil, unknownColumns(obj, []string{cmd.Index.Column})
	}

	idx := schema.Index{Name: cmd.Target, Column: col.Name, Options: cmd.Index.Options}
	switch {
	case col.Type.Kind == schema.TypeMap:
		idx.Target = cmd.Index.Target
	case col.Type.IsContainer():
		idx.Target = schema.TargetValues
	}
	q := cql.CreateIndex{
		Keyspace:    obj.Keyspace,
		Table:       obj.Name,
		Index:       idx,
		IfNotExists: cmd.Options.IfNotExists,
	}
	return r.ddl(cmd, obj, q, exhandler.CreateIndex{
		Keyspace: obj.Keyspace,
		Table:    obj.Name,
		Index:    idx.Name,
		Column:   idx.Column,
	})
}

func (r *Resolver) listIndexes(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	stmt, err := compile(cql.ListIndexes{Keyspace: obj.Keyspace, Table: obj.Name})
	if err != nil {
		return nil, err
	}
	return r.readOnly(cmd, obj, stmt, tableRead, shapeNames(StatusIndexes, "index_name", nil))
}
