// Package analyzer decides whether a filter expression can run as a
// targeted query against its schema object.
//
// The analyzer walks the expression depth first and classifies every
// leaf with a decision table keyed by (operator, coverage, column type):
//
//	equality, no index or key        -> full scan
//	negation, no index or key        -> full scan
//	negation on text/boolean/blob... -> full scan even when indexed
//	ordering, no index or key        -> full scan
//	ordering on unorderable type     -> rejected
//	membership, no index or key      -> full scan
//
// A leaf is covered by the primary key when it sits in the root AND and
// restricts the partition key (every partition column restricted by
// $eq or $in) or a clustering column whose preceding clustering columns
// are $eq restricted.
//
// The verdict is the OR of the leaf verdicts. Warnings follow traversal
// order, one per leaf that needs a full scan. UPDATE and DELETE
// statements cannot carry ALLOW FILTERING, so for them a full scan
// verdict is an error instead.
package analyzer
