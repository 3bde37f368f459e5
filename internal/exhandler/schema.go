package exhandler

import (
	"regexp"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/schema"
)

// Server messages shared by the DDL tables.
var (
	reKeyspaceMissing = regexp.MustCompile(`(?i)keyspace '?([^'\s]+?)'? (?:doesn't|does not) exist|cannot drop non existing keyspace '?([^'\s]+)'?`)
	reTableMissing    = regexp.MustCompile(`(?i)unconfigured table '?([^'\s]+)'?|table '?([^'\s]+?)'? (?:doesn't|does not) exist`)
	reUndefinedColumn = regexp.MustCompile(`(?i)undefined column name '?([^'\s]+)'?`)
)

func unknownKeyspace(keyspace string) func([]string) *apierr.Error {
	return func(m []string) *apierr.Error {
		ks := group(m, 1, group(m, 2, keyspace))
		return apierr.New(apierr.CodeUnknownKeyspace, "keyspace %q does not exist", ks).With("keyspace", ks)
	}
}

func unknownTable(keyspace, table string) func([]string) *apierr.Error {
	return func(m []string) *apierr.Error {
		return apierr.New(apierr.CodeUnknownTable, "table %q does not exist in keyspace %q", table, keyspace).
			With("keyspace", keyspace).With("table", table)
	}
}

// CreateTable translates createTable and createCollection failures.
//
//	ALREADY_EXISTS                        -> TABLE_ALREADY_EXISTS
//	Keyspace 'ks' doesn't exist           -> UNKNOWN_KEYSPACE
//	Unknown type / Invalid type ...       -> INVALID_SCHEMA_DEFINITION
type CreateTable struct {
	Default
	Keyspace string
	Table    string
}

var reBadType = regexp.MustCompile(`(?i)unknown type|invalid type|cannot use .* type|is not a valid type`)

// Handle implements Handler.
func (h CreateTable) Handle(obj *schema.Object, err error) error {
	rules := []rule{
		{alreadyExists, reAny, func([]string) *apierr.Error {
			return apierr.New(apierr.CodeTableAlreadyExists, "table %q already exists in keyspace %q", h.Table, h.Keyspace).
				With("keyspace", h.Keyspace).With("table", h.Table)
		}},
		{invalid, reKeyspaceMissing, unknownKeyspace(h.Keyspace)},
		{invalid, reBadType, func(m []string) *apierr.Error {
			return apierr.New(apierr.CodeInvalidSchemaDefinition, "table %q has an invalid column type: %s", h.Table, m[0]).
				With("table", h.Table)
		}},
	}
	if e, ok := apply(rules, err); ok {
		return e
	}
	return h.Default.Handle(obj, err)
}

// DropTable translates dropTable and deleteCollection failures.
//
//	unconfigured table x / Table 'x' doesn't exist -> UNKNOWN_TABLE
//	Keyspace 'ks' doesn't exist                    -> UNKNOWN_KEYSPACE
type DropTable struct {
	Default
	Keyspace string
	Table    string
}

// Handle implements Handler.
func (h DropTable) Handle(obj *schema.Object, err error) error {
	rules := []rule{
		{invalid, reKeyspaceMissing, unknownKeyspace(h.Keyspace)},
		{invalid, reTableMissing, unknownTable(h.Keyspace, h.Table)},
	}
	if e, ok := apply(rules, err); ok {
		return e
	}
	return h.Default.Handle(obj, err)
}

// CreateIndex translates createIndex failures.
//
//	Index 'x' already exists / ALREADY_EXISTS           -> INDEX_ALREADY_EXISTS
//	Index x is a duplicate of existing index y          -> INDEX_ALREADY_EXISTS
//	Undefined column name x / No column definition ...  -> UNKNOWN_TABLE_COLUMNS
//	Cannot create secondary index on ...                -> INVALID_SCHEMA_DEFINITION
//	unconfigured table x                                -> UNKNOWN_TABLE
type CreateIndex struct {
	Default
	Keyspace string
	Table    string
	Index    string
	Column   string
}

var (
	reIndexExists = regexp.MustCompile(`(?i)index '?([^'\s]+?)'? already exists|is a duplicate of existing index '?([^'\s]+)'?`)
	reNoColumnDef = regexp.MustCompile(`(?i)no column definition found for column '?([^'\s]+)'?`)
	reCannotIndex = regexp.MustCompile(`(?i)cannot create (?:secondary )?index on .*`)
	reAny         = regexp.MustCompile(`.*`)
)

// Handle implements Handler.
func (h CreateIndex) Handle(obj *schema.Object, err error) error {
	indexExists := func(m []string) *apierr.Error {
		e := apierr.New(apierr.CodeIndexAlreadyExists, "index %q already exists on table %q", h.Index, h.Table).
			With("index", h.Index).With("table", h.Table)
		if existing := group(m, 2, ""); existing != "" {
			e.Message = "index " + h.Index + " duplicates existing index " + existing
			e.With("existingIndex", existing)
		}
		return e
	}
	unknownColumn := func(m []string) *apierr.Error {
		return apierr.New(apierr.CodeUnknownTableColumns, "table %q has no column %q", h.Table, h.Column).
			With("table", h.Table).With("column", h.Column)
	}
	rules := []rule{
		{alreadyExists, reAny, indexExists},
		{invalid, reIndexExists, indexExists},
		{invalid, reUndefinedColumn, unknownColumn},
		{invalid, reNoColumnDef, unknownColumn},
		{invalid, reCannotIndex, func(m []string) *apierr.Error {
			return apierr.New(apierr.CodeInvalidSchemaDefinition, "cannot index column %q: %s", h.Column, m[0]).
				With("column", h.Column)
		}},
		{invalid, reTableMissing, unknownTable(h.Keyspace, h.Table)},
	}
	if e, ok := apply(rules, err); ok {
		return e
	}
	return h.Default.Handle(obj, err)
}

// DropIndex translates dropIndex failures.
//
//	Index 'x' doesn't exist                          -> UNKNOWN_INDEX
//	Index 'x' could not be found in any of the tables -> UNKNOWN_INDEX
//	Keyspace 'ks' doesn't exist                       -> UNKNOWN_KEYSPACE
type DropIndex struct {
	Default
	Keyspace string
	Index    string
}

var reIndexMissing = regexp.MustCompile(`(?i)index '?([^'\s]+?)'? (?:doesn't exist|does not exist|could not be found)`)

// Handle implements Handler.
func (h DropIndex) Handle(obj *schema.Object, err error) error {
	rules := []rule{
		{invalid, reIndexMissing, func([]string) *apierr.Error {
			return apierr.New(apierr.CodeUnknownIndex, "index %q does not exist in keyspace %q", h.Index, h.Keyspace).
				With("keyspace", h.Keyspace).With("index", h.Index)
		}},
		{invalid, reKeyspaceMissing, unknownKeyspace(h.Keyspace)},
	}
	if e, ok := apply(rules, err); ok {
		return e
	}
	return h.Default.Handle(obj, err)
}

// AlterTable translates alterTable failures.
//
//	Column with name 'x' already exists               -> CANNOT_ADD_EXISTING_COLUMNS
//	Invalid column name x because it conflicts ...     -> CANNOT_ADD_EXISTING_COLUMNS
//	Column x was not found in table                    -> UNKNOWN_TABLE_COLUMNS
//	Cannot drop PRIMARY KEY column x                   -> CANNOT_DROP_PRIMARY_KEY_COLUMNS
//	Cannot drop column x because it has dependent ...  -> CANNOT_DROP_INDEXED_COLUMNS
//	unconfigured table x                               -> UNKNOWN_TABLE
type AlterTable struct {
	Default
	Keyspace string
	Table    string
}

var (
	reColumnExists   = regexp.MustCompile(`(?i)column with name '?([^'\s]+?)'? already exists|invalid column name '?([^'\s]+?)'? because it conflicts`)
	reColumnNotFound = regexp.MustCompile(`(?i)column '?([^'\s]+?)'? was not found`)
	reDropKey        = regexp.MustCompile(`(?i)cannot drop primary key column '?([^'\s]+)'?`)
	reDropIndexed    = regexp.MustCompile(`(?i)cannot drop column '?([^'\s]+?)'? because it has dependent secondary indexes`)
)

// Handle implements Handler.
func (h AlterTable) Handle(obj *schema.Object, err error) error {
	col := func(code apierr.Code, format string) func([]string) *apierr.Error {
		return func(m []string) *apierr.Error {
			c := group(m, 1, group(m, 2, ""))
			return apierr.New(code, format, c, h.Table).With("table", h.Table).With("column", c)
		}
	}
	rules := []rule{
		{invalid, reColumnExists, col(apierr.CodeCannotAddExistingColumns, "column %q already exists in table %q")},
		{invalid, reColumnNotFound, col(apierr.CodeUnknownTableColumns, "column %q does not exist in table %q")},
		{invalid, reUndefinedColumn, col(apierr.CodeUnknownTableColumns, "column %q does not exist in table %q")},
		{invalid, reDropKey, col(apierr.CodeCannotDropPrimaryKeyColumns, "column %q is part of the primary key of table %q")},
		{invalid, reDropIndexed, col(apierr.CodeCannotDropIndexedColumns, "column %q of table %q is indexed, drop the index first")},
		{invalid, reTableMissing, unknownTable(h.Keyspace, h.Table)},
	}
	if e, ok := apply(rules, err); ok {
		return e
	}
	return h.Default.Handle(obj, err)
}

// CreateKeyspace translates createKeyspace failures.
//
//	ALREADY_EXISTS                                  -> KEYSPACE_ALREADY_EXISTS
//	Unable to find replication strategy class ...   -> INVALID_SCHEMA_DEFINITION
//	Unrecognized strategy option ...                -> INVALID_SCHEMA_DEFINITION
type CreateKeyspace struct {
	Default
	Keyspace string
}

var reReplication = regexp.MustCompile(`(?i)(?:unable to find replication strategy|unrecognized strategy option|error constructing replication strategy|replication_factor).*`)

// Handle implements Handler.
func (h CreateKeyspace) Handle(obj *schema.Object, err error) error {
	rules := []rule{
		{alreadyExists, reAny, func([]string) *apierr.Error {
			return apierr.New(apierr.CodeKeyspaceAlreadyExists, "keyspace %q already exists", h.Keyspace).
				With("keyspace", h.Keyspace)
		}},
		{invalid, reReplication, func(m []string) *apierr.Error {
			return apierr.New(apierr.CodeInvalidSchemaDefinition, "invalid replication for keyspace %q: %s", h.Keyspace, m[0]).
				With("keyspace", h.Keyspace)
		}},
	}
	if e, ok := apply(rules, err); ok {
		return e
	}
	return h.Default.Handle(obj, err)
}

// DropKeyspace translates dropKeyspace failures.
//
//	Keyspace 'ks' doesn't exist / Cannot drop non existing keyspace -> UNKNOWN_KEYSPACE
type DropKeyspace struct {
	Default
	Keyspace string
}

// Handle implements Handler.
func (h DropKeyspace) Handle(obj *schema.Object, err error) error {
	rules := []rule{
		{invalid, reKeyspaceMissing, unknownKeyspace(h.Keyspace)},
	}
	if e, ok := apply(rules, err); ok {
		return e
	}
	return h.Default.Handle(obj, err)
}
