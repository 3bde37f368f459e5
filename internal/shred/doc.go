// Package shred converts documents into the generic row of a collection
// table and back.
//
// Every indexed path of a document lands in exactly one typed map column
// (query_text_values, query_dbl_values...). exist_keys lists the paths,
// array_contains holds "<path> <hash>" entries for every value, array
// element and sub document, so membership filters are single CONTAINS
// restrictions. The document itself is stored as canonical JSON in doc_json.
package shred
