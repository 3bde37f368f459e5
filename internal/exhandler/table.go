package exhandler

import (
	"regexp"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/schema"
)

var (
	reDataFiltering = regexp.MustCompile(`(?i)might involve data filtering`)
	reOrderBy       = regexp.MustCompile(`(?i)(?:order by is only supported|order by is currently only supported|only clustering key columns can be used in the order by|order by with 2ndary indexes is not supported).*`)
	reMissingKey    = regexp.MustCompile(`(?i)some (?:partition key parts|clustering keys) are missing: (\S+)|missing (?:mandatory )?primary key part '?([^'\s]+)'?|invalid null value (?:for|in condition for) (?:partition key part|clustering column|column) '?([^'\s]+)'?`)
	reBadValue      = regexp.MustCompile(`(?i)expected \d+ or 0 byte|invalid (?:\w+ )?constant \(.*\) for "?([^"\s]+)"? of type|unable to make .* from|invalid unset value`)
)

// TableRead translates read failures on tables and collections.
//
//	Undefined column name x             -> UNKNOWN_TABLE_COLUMNS
//	unconfigured table x                -> UNKNOWN_TABLE
//	... might involve data filtering    -> FULL_SCAN_NOT_ALLOWED
//	ORDER BY is only supported when ... -> INVALID_SORT_CLAUSE
type TableRead struct {
	Default
}

// Handle implements Handler.
func (h TableRead) Handle(obj *schema.Object, err error) error {
	ks, tbl := names(obj)
	rules := []rule{
		{invalid, reUndefinedColumn, func(m []string) *apierr.Error {
			return apierr.New(apierr.CodeUnknownTableColumns, "table %q has no column %q", tbl, m[1]).
				With("table", tbl).With("column", m[1])
		}},
		{invalid, reTableMissing, unknownTable(ks, tbl)},
		{invalid, reDataFiltering, func([]string) *apierr.Error {
			return apierr.New(apierr.CodeFullScanNotAllowed, "the database requires ALLOW FILTERING for this filter on %q", tbl).
				With("table", tbl)
		}},
		{invalid, reOrderBy, func(m []string) *apierr.Error {
			return apierr.New(apierr.CodeInvalidSortClause, "sort cannot be served by the database: %s", m[0]).
				With("table", tbl)
		}},
	}
	if e, ok := apply(rules, err); ok {
		return e
	}
	return h.Default.Handle(obj, err)
}

// TableWrite translates insert, update and delete failures.
//
//	Undefined column name x                   -> UNKNOWN_TABLE_COLUMNS
//	Some partition key parts are missing: x   -> MISSING_PRIMARY_KEY_COLUMNS
//	Invalid null value for partition key part -> MISSING_PRIMARY_KEY_COLUMNS
//	Expected 4 or 0 byte int / Invalid ... constant -> INVALID_COLUMN_VALUE
//	unconfigured table x                      -> UNKNOWN_TABLE
type TableWrite struct {
	Default
}

// Handle implements Handler.
func (h TableWrite) Handle(obj *schema.Object, err error) error {
	ks, tbl := names(obj)
	rules := []rule{
		{invalid, reUndefinedColumn, func(m []string) *apierr.Error {
			return apierr.New(apierr.CodeUnknownTableColumns, "table %q has no column %q", tbl, m[1]).
				With("table", tbl).With("column", m[1])
		}},
		{invalid, reMissingKey, func(m []string) *apierr.Error {
			col := group(m, 1, group(m, 2, group(m, 3, "")))
			return apierr.New(apierr.CodeMissingPrimaryKeyColumns, "primary key column %q of table %q is missing", col, tbl).
				With("table", tbl).With("column", col)
		}},
		{invalid, reBadValue, func(m []string) *apierr.Error {
			e := apierr.New(apierr.CodeInvalidColumnValue, "value rejected by table %q: %s", tbl, m[0]).With("table", tbl)
			if col := group(m, 1, ""); col != "" {
				e.With("column", col)
			}
			return e
		}},
		{invalid, reTableMissing, unknownTable(ks, tbl)},
	}
	if e, ok := apply(rules, err); ok {
		return e
	}
	return h.Default.Handle(obj, err)
}

func names(obj *schema.Object) (string, string) {
	if obj == nil {
		return "", ""
	}
	return obj.Keyspace, obj.Name
}
