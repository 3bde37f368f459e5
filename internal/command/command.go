// Package command holds the caller's intent: one named command with its
// filter, sort, projection, update, documents, options and DDL payload.
//
// Commands are created once by Decode and never modified afterwards.
package command

import (
	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/schema"
)

// Name is a command name as it appears in the request document.
type Name string

const (
	FindOne                Name = "findOne"
	Find                   Name = "find"
	InsertOne              Name = "insertOne"
	InsertMany             Name = "insertMany"
	UpdateOne              Name = "updateOne"
	UpdateMany             Name = "updateMany"
	DeleteOne              Name = "deleteOne"
	DeleteMany             Name = "deleteMany"
	CountDocuments         Name = "countDocuments"
	EstimatedDocumentCount Name = "estimatedDocumentCount"

	AlterTable  Name = "alterTable"
	CreateIndex Name = "createIndex"
	ListIndexes Name = "listIndexes"

	CreateTable      Name = "createTable"
	DropTable        Name = "dropTable"
	DropIndex        Name = "dropIndex"
	ListTables       Name = "listTables"
	CreateCollection Name = "createCollection"
	DeleteCollection Name = "deleteCollection"
	FindCollections  Name = "findCollections"

	CreateKeyspace Name = "createKeyspace"
	DropKeyspace   Name = "dropKeyspace"
	FindKeyspaces  Name = "findKeyspaces"
)

// Join combines the members of a clause node.
type Join string

const (
	And Join = "AND"
	Or  Join = "OR"
)

// Condition is one path/operator/value triple from a filter clause.
// Implicit equality ({"name": "x"}) is decoded as Op "$eq".
type Condition struct {
	Path  string
	Op    string
	Value ir.Value
}

// Clause is a node of the caller's boolean filter clause. Conditions and
// Children keep the order in which they were declared.
type Clause struct {
	Join       Join
	Conditions []Condition
	Children   []*Clause
}

// IsEmpty reports a clause with nothing to filter on.
func (c *Clause) IsEmpty() bool {
	return c == nil || (len(c.Conditions) == 0 && len(c.Children) == 0)
}

// SortTerm is one sort key in declaration order.
type SortTerm struct {
	Path       string
	Descending bool
}

// Projection selects document fields or table columns to return.
// At most one of Include and Exclude is set.
type Projection struct {
	Include []string
	Exclude []string
}

// UpdateOp is one operator application from an update clause.
type UpdateOp struct {
	Operator string
	Path     string
	Value    ir.Value
}

// Options are the flags shared by all commands. Fields that do not apply
// to a command are ignored.
type Options struct {
	Limit                   int    `yaml:"limit"`
	Skip                    int    `yaml:"skip"`
	PageState               string `yaml:"pageState"`
	Ordered                 *bool  `yaml:"ordered"`
	Upsert                  bool   `yaml:"upsert"`
	IfNotExists             bool   `yaml:"ifNotExists"`
	IfExists                bool   `yaml:"ifExists"`
	ReturnDocumentResponses bool   `yaml:"returnDocumentResponses"`
}

// IsOrdered returns the ordered flag, or def when unset.
func (o Options) IsOrdered(def bool) bool {
	if o.Ordered == nil {
		return def
	}
	return *o.Ordered
}

// ColumnDefinition is a column in a createTable or alterTable payload.
type ColumnDefinition struct {
	Name string
	Type schema.DataType
}

// TableDefinition is the createTable payload.
type TableDefinition struct {
	Columns    []ColumnDefinition
	PrimaryKey schema.PrimaryKey
}

// IndexDefinition is the createIndex payload.
type IndexDefinition struct {
	Column  string
	Target  schema.IndexTarget
	Options map[string]string
}

// AlterTableDefinition is the alterTable payload; exactly one of Add and Drop is set.
type AlterTableDefinition struct {
	Add  []ColumnDefinition
	Drop []string
}

// CollectionDefinition is the createCollection payload.
type CollectionDefinition struct {
	Indexing  schema.Indexing
	DefaultID schema.IDType
	Validator string
}

// KeyspaceDefinition is the createKeyspace payload.
type KeyspaceDefinition struct {
	Replication map[string]string
}

// Command is an immutable description of caller intent.
type Command struct {
	Name Name

	Filter     *Clause
	Sort       []SortTerm
	Projection *Projection
	Update     []UpdateOp
	Documents  []ir.Object
	Options    Options

	// Target is the "name" of the object created or dropped by DDL commands.
	Target     string
	Table      *TableDefinition
	Index      *IndexDefinition
	Alter      *AlterTableDefinition
	Collection *CollectionDefinition
	Keyspace   *KeyspaceDefinition
}
