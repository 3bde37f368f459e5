// Package ir defines the literal values carried by commands, filters,
// documents and table rows.
//
// Values form a closed union (Null, String, Number, Bool, Array, Object,
// Date). Numbers are arbitrary precision decimals so that values bound to
// decimal and varint columns never lose digits.
//
// MarshalCanonical gives the one serialization used for stored documents
// and for the typed index hashes written to a collection's generic columns.
package ir
