package schema

import (
	"fmt"
	"slices"
	"strings"
)

// Kind identifies the target of a command.
type Kind string

const (
	KindDatabase   Kind = "database"
	KindKeyspace   Kind = "keyspace"
	KindTable      Kind = "table"
	KindCollection Kind = "collection"
)

// Column is one declared column of a table.
type Column struct {
	Name   string
	Type   DataType
	Static bool
}

// ClusteringColumn is a clustering key column and its declared order.
type ClusteringColumn struct {
	Column     string
	Descending bool
}

// PrimaryKey is the partition key plus optional clustering columns.
type PrimaryKey struct {
	Partition  []string
	Clustering []ClusteringColumn
}

// Columns returns all primary key column names, partition first.
func (pk PrimaryKey) Columns() []string {
	cols := slices.Clone(pk.Partition)
	for _, c := range pk.Clustering {
		cols = append(cols, c.Column)
	}
	return cols
}

// IndexTarget selects what part of a map column an index covers.
type IndexTarget string

const (
	TargetValues  IndexTarget = "values"
	TargetKeys    IndexTarget = "keys"
	TargetEntries IndexTarget = "entries"
	TargetFull    IndexTarget = "full"
)

// Index is a storage attached index on one column.
type Index struct {
	Name    string
	Column  string
	Target  IndexTarget
	Options map[string]string
}

// Object is a read-only description of a command target.
// Objects are shared between requests and must never be mutated once loaded.
type Object struct {
	Kind     Kind
	Keyspace string
	Name     string

	Columns    []Column
	PrimaryKey PrimaryKey
	Indexes    []Index

	// Collection is set when Kind is KindCollection.
	Collection *CollectionSettings
}

// NewDatabase returns the database root object.
func NewDatabase() *Object {
	return &Object{Kind: KindDatabase}
}

// NewKeyspace returns a keyspace object.
func NewKeyspace(name string) *Object {
	return &Object{Kind: KindKeyspace, Keyspace: name, Name: name}
}

// String returns a human readable identifier used in logs and errors.
func (o *Object) String() string {
	switch o.Kind {
	case KindDatabase:
		return "database"
	case KindKeyspace:
		return fmt.Sprintf("keyspace %s", o.Keyspace)
	default:
		return fmt.Sprintf("%s %s.%s", o.Kind, o.Keyspace, o.Name)
	}
}

// QualifiedName returns the quoted "keyspace"."name" form used in CQL.
func (o *Object) QualifiedName() string {
	if o.Kind == KindKeyspace {
		return Quote(o.Keyspace)
	}
	return Quote(o.Keyspace) + "." + Quote(o.Name)
}

// Column looks up a column by name.
func (o *Object) Column(name string) (Column, bool) {
	for _, c := range o.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns column names in declaration order.
func (o *Object) ColumnNames() []string {
	names := make([]string, len(o.Columns))
	for i, c := range o.Columns {
		names[i] = c.Name
	}
	return names
}

// IndexOn returns the index declared on a column, if any.
func (o *Object) IndexOn(column string) (Index, bool) {
	for _, idx := range o.Indexes {
		if idx.Column == column {
			return idx, true
		}
	}
	return Index{}, false
}

// HasIndex reports whether a column is covered by an index.
func (o *Object) HasIndex(column string) bool {
	_, ok := o.IndexOn(column)
	return ok
}

// IndexNamed looks up an index by name.
func (o *Object) IndexNamed(name string) (Index, bool) {
	for _, idx := range o.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// IsPartitionKey reports whether column is part of the partition key.
func (o *Object) IsPartitionKey(column string) bool {
	return slices.Contains(o.PrimaryKey.Partition, column)
}

// ClusteringPosition returns the clustering position of a column, or -1.
func (o *Object) ClusteringPosition(column string) int {
	for i, c := range o.PrimaryKey.Clustering {
		if c.Column == column {
			return i
		}
	}
	return -1
}

// IsPrimaryKey reports whether column is any primary key component.
func (o *Object) IsPrimaryKey(column string) bool {
	return o.IsPartitionKey(column) || o.ClusteringPosition(column) >= 0
}

// Validate checks the internal consistency of a table definition.
func (o *Object) Validate() error {
	if o.Kind != KindTable && o.Kind != KindCollection {
		return nil
	}
	if len(o.PrimaryKey.Partition) == 0 {
		return fmt.Errorf("%s: primary key has no partition columns", o)
	}
	seen := make(map[string]bool, len(o.Columns))
	for _, c := range o.Columns {
		if seen[c.Name] {
			return fmt.Errorf("%s: duplicate column %q", o, c.Name)
		}
		seen[c.Name] = true
	}
	for _, k := range o.PrimaryKey.Columns() {
		if !seen[k] {
			return fmt.Errorf("%s: primary key column %q is not declared", o, k)
		}
	}
	for _, idx := range o.Indexes {
		if !seen[idx.Column] {
			return fmt.Errorf("%s: index %q targets undeclared column %q", o, idx.Name, idx.Column)
		}
	}
	return nil
}

// Quote quotes a CQL identifier, doubling embedded quotes.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
