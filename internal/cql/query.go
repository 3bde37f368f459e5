// Package cql compiles statement descriptions into parameterized CQL.
//
// Values are never interpolated: every literal is a positional bind
// marker and travels in driver.Statement.Values, in marker order.
// Identifiers are always quoted.
package cql

import (
	"github.com/roach88/cqlbridge/internal/filter"
	"github.com/roach88/cqlbridge/internal/schema"
)

// Query is a sealed interface over the statements this package compiles.
type Query interface {
	cqlQuery() // Sealed - only types in this package implement it
}

// Order is one ORDER BY term.
type Order struct {
	Column     string
	Descending bool
}

// Assignment binds a value to a column in SET and IF clauses.
type Assignment struct {
	Column string
	Value  any
}

// Select reads rows or counts them.
type Select struct {
	Object *schema.Object
	// Columns are the selected columns; empty selects every column.
	Columns        []string
	Count          bool
	Where          *filter.Expression
	OrderBy        []Order
	Limit          int
	AllowFiltering bool
	PageSize       int
	PageState      []byte
}

// Insert writes one row.
type Insert struct {
	Object      *schema.Object
	Values      []Assignment
	IfNotExists bool
}

// Update changes the rows selected by Where.
type Update struct {
	Object   *schema.Object
	Set      []Assignment
	Where    *filter.Expression
	IfExists bool
	// If adds column equality conditions (compare and set).
	If []Assignment
}

// Delete removes the rows selected by Where.
type Delete struct {
	Object   *schema.Object
	Where    *filter.Expression
	IfExists bool
	If       []Assignment
}

// Truncate removes every row of a table.
type Truncate struct {
	Object *schema.Object
}

// CreateTable creates a table.
type CreateTable struct {
	Keyspace    string
	Name        string
	Columns     []schema.Column
	PrimaryKey  schema.PrimaryKey
	Comment     string
	IfNotExists bool
}

// DropTable drops a table.
type DropTable struct {
	Keyspace string
	Name     string
	IfExists bool
}

// AlterTable adds or drops columns. Exactly one of Add and Drop is set.
type AlterTable struct {
	Keyspace string
	Name     string
	Add      []schema.Column
	Drop     []string
}

// CreateIndex creates a storage attached index.
type CreateIndex struct {
	Keyspace    string
	Table       string
	Index       schema.Index
	IfNotExists bool
}

// DropIndex drops an index.
type DropIndex struct {
	Keyspace string
	Name     string
	IfExists bool
}

// CreateKeyspace creates a keyspace.
type CreateKeyspace struct {
	Name        string
	Replication map[string]string
	IfNotExists bool
}

// DropKeyspace drops a keyspace.
type DropKeyspace struct {
	Name     string
	IfExists bool
}

// ListKeyspaces reads keyspace names from system_schema.
type ListKeyspaces struct{}

// ListTables reads table names and comments of a keyspace from system_schema.
type ListTables struct {
	Keyspace string
}

// ListIndexes reads the indexes of a table from system_schema.
type ListIndexes struct {
	Keyspace string
	Table    string
}

func (Select) cqlQuery()         {}
func (Insert) cqlQuery()         {}
func (Update) cqlQuery()         {}
func (Delete) cqlQuery()         {}
func (Truncate) cqlQuery()       {}
func (CreateTable) cqlQuery()    {}
func (DropTable) cqlQuery()      {}
func (AlterTable) cqlQuery()     {}
func (CreateIndex) cqlQuery()    {}
func (DropIndex) cqlQuery()      {}
func (CreateKeyspace) cqlQuery() {}
func (DropKeyspace) cqlQuery()   {}
func (ListKeyspaces) cqlQuery()  {}
func (ListTables) cqlQuery()     {}
func (ListIndexes) cqlQuery()    {}
