// Package schema describes command targets: the database root,
// keyspaces, typed tables and document collections.
//
// A table carries its columns in declaration order, its primary key and
// its SAI indexes. A collection is a table with a fixed physical layout
// (see CollectionColumns) plus CollectionSettings. Objects are loaded
// from a CUE catalog and cached per tenant; they are never mutated.
package schema
