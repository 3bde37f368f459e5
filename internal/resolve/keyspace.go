package resolve

import (
	"regexp"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/command"
	"github.com/roach88/cqlbridge/internal/cql"
	"github.com/roach88/cqlbridge/internal/exhandler"
	"github.com/roach88/cqlbridge/internal/schema"
	"github.com/roach88/cqlbridge/internal/task"
)

var keyspaceCommands = map[command.Name]resolveFunc{
	command.CreateTable:      (*Resolver).createTable,
	command.DropTable:        (*Resolver).dropTable,
	command.DropIndex:        (*Resolver).dropIndex,
	command.ListTables:       (*Resolver).listTables,
	command.CreateCollection: (*Resolver).createCollection,
	command.DeleteCollection: (*Resolver).deleteCollection,
	command.FindCollections:  (*Resolver).findCollections,
}

var schemaRead = exhandler.Of(exhandler.Default{})

// Names of tables, collections, indexes and keyspaces created here.
var reName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,47}$`)

func checkName(what, name string) error {
	if !reName.MatchString(name) {
		return apierr.New(apierr.CodeInvalidSchemaDefinition,
			"%s name %q must start with a letter and hold at most 48 letters, digits or underscores", what, name).
			With("name", name)
	}
	return nil
}

func (r *Resolver) createTable(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	if cmd.Table == nil {
		return nil, invalidCommand("createTable requires a definition")
	}
	if err := checkName("table", cmd.Target); err != nil {
		return nil, err
	}
	table := &schema.Object{
		Kind:       schema.KindTable,
		Keyspace:   obj.Keyspace,
		Name:       cmd.Target,
		PrimaryKey: cmd.Table.PrimaryKey,
	}
	for _, c := range cmd.Table.Columns {
		table.Columns = append(table.Columns, schema.Column{Name: c.Name, Type: c.Type})
	}
	if err := table.Validate(); err != nil {
		return nil, apierr.New(apierr.CodeInvalidSchemaDefinition, "%v", err).With("table", cmd.Target)
	}
	for _, k := range table.PrimaryKey.Columns() {
		if col, _ := table.Column(k); col.Type.IsContainer() {
			return nil, apierr.New(apierr.CodeInvalidSchemaDefinition,
				"primary key column %q cannot be of type %s", k, col.Type).
				With("table", cmd.Target).
				With("column", k)
		}
	}

	q := cql.CreateTable{
		Keyspace:    obj.Keyspace,
		Name:        table.Name,
		Columns:     table.Columns,
		PrimaryKey:  table.PrimaryKey,
		IfNotExists: cmd.Options.IfNotExists,
	}
	return r.ddl(cmd, obj, q, exhandler.CreateTable{Keyspace: obj.Keyspace, Table: table.Name})
}

func (r *Resolver) dropTable(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	if cmd.Target == "" {
		return nil, invalidCommand("dropTable requires a name")
	}
	q := cql.DropTable{Keyspace: obj.Keyspace, Name: cmd.Target, IfExists: cmd.Options.IfExists}
	return r.ddl(cmd, obj, q, exhandler.DropTable{Keyspace: obj.Keyspace, Table: cmd.Target})
}

func (r *Resolver) dropIndex(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	if cmd.Target == "" {
		return nil, invalidCommand("dropIndex requires a name")
	}
	q := cql.DropIndex{Keyspace: obj.Keyspace, Name: cmd.Target, IfExists: cmd.Options.IfExists}
	return r.ddl(cmd, obj, q, exhandler.DropIndex{Keyspace: obj.Keyspace, Index: cmd.Target})
}

// isCollection tells collection tables from plain tables by their comment.
func isCollection(row map[string]any) bool {
	comment, _ := row["comment"].(string)
	_, ok, _ := schema.ParseCollectionComment(comment)
	return ok
}

func (r *Resolver) listTables(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	stmt, err := compile(cql.ListTables{Keyspace: obj.Keyspace})
	if err != nil {
		return nil, err
	}
	return r.readOnly(cmd, obj, stmt, schemaRead, shapeNames(StatusTables, "table_name", func(row map[string]any) bool {
		return !isCollection(row)
	}))
}

func (r *Resolver) findCollections(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	stmt, err := compile(cql.ListTables{Keyspace: obj.Keyspace})
	if err != nil {
		return nil, err
	}
	return r.readOnly(cmd, obj, stmt, schemaRead, shapeNames(StatusCollections, "table_name", isCollection))
}

// createCollection creates the collection table followed by its indexes,
// in order, stopping at the first failure. Everything is created with IF
// NOT EXISTS so a failed attempt can be repeated.
func (r *Resolver) createCollection(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	if err := checkName("collection", cmd.Target); err != nil {
		return nil, err
	}
	var def command.CollectionDefinition
	if cmd.Collection != nil {
		def = *cmd.Collection
	}
	settings, err := schema.NewCollectionSettings(def.Indexing, def.DefaultID, def.Validator)
	if err != nil {
		return nil, apierr.New(apierr.CodeInvalidSchemaDefinition, "collection %q: %v", cmd.Target, err).
			With("collection", cmd.Target)
	}
	comment, err := settings.Comment(cmd.Target)
	if err != nil {
		return nil, apierr.Internal("%v", err)
	}
	coll := schema.NewCollection(obj.Keyspace, cmd.Target, settings)

	positions := task.NewPositions()
	b := task.NewBuilder(positions, obj).WithRetryPolicy(r.schemaPolicy())
	stmt, err := compile(cql.CreateTable{
		Keyspace:    coll.Keyspace,
		Name:        coll.Name,
		Columns:     coll.Columns,
		PrimaryKey:  coll.PrimaryKey,
		Comment:     comment,
		IfNotExists: true,
	})
	if err != nil {
		return nil, err
	}
	t, err := b.WithHandlerFactory(exhandler.Of(exhandler.CreateTable{Keyspace: coll.Keyspace, Table: coll.Name})).
		WithWork(task.SchemaWork{Statement: stmt}).
		Build()
	if err != nil {
		return nil, apierr.Internal("build task: %v", err)
	}
	tasks := []*task.Task{t}

	for _, idx := range coll.Indexes {
		stmt, err := compile(cql.CreateIndex{Keyspace: coll.Keyspace, Table: coll.Name, Index: idx, IfNotExists: true})
		if err != nil {
			return nil, err
		}
		h := exhandler.CreateIndex{Keyspace: coll.Keyspace, Table: coll.Name, Index: idx.Name, Column: idx.Column}
		t, err := b.WithHandlerFactory(exhandler.Of(h)).WithWork(task.SchemaWork{Statement: stmt}).Build()
		if err != nil {
			return nil, apierr.Internal("build task: %v", err)
		}
		tasks = append(tasks, t)
	}

	g, err := task.NewGroup(true, true, tasks...)
	if err != nil {
		return nil, apierr.Internal("build group: %v", err)
	}
	return newOperation(cmd, obj, g, shapeOK), nil
}

func (r *Resolver) deleteCollection(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	if cmd.Target == "" {
		return nil, invalidCommand("deleteCollection requires a name")
	}
	q := cql.DropTable{Keyspace: obj.Keyspace, Name: cmd.Target, IfExists: true}
	return r.ddl(cmd, obj, q, exhandler.DropTable{Keyspace: obj.Keyspace, Table: cmd.Target})
}
