// Package apierr defines the typed errors returned to callers.
//
// Every error carries a stable Code, the Family (caller mistake or server
// side problem), the Scope it relates to, a message and a context map of
// the identifiers involved (column, index, keyspace...).
package apierr

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Code identifies an error condition.
type Code string

// Family separates errors the caller can fix from server side failures.
type Family string

const (
	FamilyRequest Family = "REQUEST"
	FamilyServer  Family = "SERVER"
)

// Scope groups codes by the part of the request they concern.
type Scope string

const (
	ScopeFilter   Scope = "FILTER"
	ScopeSort     Scope = "SORT"
	ScopeCommand  Scope = "COMMAND"
	ScopeDocument Scope = "DOCUMENT"
	ScopeSchema   Scope = "SCHEMA"
	ScopeDatabase Scope = "DATABASE"
	ScopeInternal Scope = "INTERNAL"
)

const (
	// Filter and analysis.
	CodeUnknownTableColumns          Code = "UNKNOWN_TABLE_COLUMNS"
	CodeUnsupportedFilterDataType    Code = "UNSUPPORTED_FILTER_DATA_TYPE"
	CodeInvalidFilterOperatorForType Code = "INVALID_FILTER_OPERATOR_FOR_TYPE"
	CodeInvalidFilterExpression      Code = "INVALID_FILTER_EXPRESSION"
	CodeInvalidFilterValue           Code = "INVALID_FILTER_VALUE"
	CodeUnindexedFilterPath          Code = "UNINDEXED_FILTER_PATH"
	CodeFullScanNotAllowed           Code = "FULL_SCAN_NOT_ALLOWED"
	CodeMissingPrimaryKeyFilter      Code = "MISSING_PRIMARY_KEY_FILTER"
	CodeUnsupportedSortForCommand    Code = "UNSUPPORTED_SORT_FOR_COMMAND"
	CodeInvalidSortClause            Code = "INVALID_SORT_CLAUSE"
	CodeDatasetTooBig                Code = "DATASET_TOO_BIG"

	// Command shape.
	CodeUnsupportedCommandForTarget Code = "UNSUPPORTED_COMMAND_FOR_TARGET"
	CodeInvalidCommand              Code = "INVALID_COMMAND"
	CodeTooManyDocuments            Code = "TOO_MANY_DOCUMENTS"
	CodeUnsupportedUpdateOperator   Code = "UNSUPPORTED_UPDATE_OPERATOR"
	CodeInvalidUpdate               Code = "INVALID_UPDATE"

	// Documents and rows.
	CodeDocumentAlreadyExists    Code = "DOCUMENT_ALREADY_EXISTS"
	CodeDocumentSchemaViolation  Code = "DOCUMENT_SCHEMA_VIOLATION"
	CodeInvalidDocument          Code = "INVALID_DOCUMENT"
	CodeInvalidColumnValue       Code = "INVALID_COLUMN_VALUE"
	CodeMissingPrimaryKeyColumns Code = "MISSING_PRIMARY_KEY_COLUMNS"

	// Schema changes.
	CodeTableAlreadyExists          Code = "TABLE_ALREADY_EXISTS"
	CodeUnknownTable                Code = "UNKNOWN_TABLE"
	CodeIndexAlreadyExists          Code = "INDEX_ALREADY_EXISTS"
	CodeUnknownIndex                Code = "UNKNOWN_INDEX"
	CodeKeyspaceAlreadyExists       Code = "KEYSPACE_ALREADY_EXISTS"
	CodeUnknownKeyspace             Code = "UNKNOWN_KEYSPACE"
	CodeCannotDropPrimaryKeyColumns Code = "CANNOT_DROP_PRIMARY_KEY_COLUMNS"
	CodeCannotDropIndexedColumns    Code = "CANNOT_DROP_INDEXED_COLUMNS"
	CodeCannotAddExistingColumns    Code = "CANNOT_ADD_EXISTING_COLUMNS"
	CodeInvalidSchemaDefinition     Code = "INVALID_SCHEMA_DEFINITION"

	// Database.
	CodeDriverTimeout        Code = "DRIVER_TIMEOUT"
	CodeDatabaseReadTimeout  Code = "DATABASE_READ_TIMEOUT"
	CodeDatabaseWriteTimeout Code = "DATABASE_WRITE_TIMEOUT"
	CodeDatabaseUnavailable  Code = "DATABASE_UNAVAILABLE"
	CodeDatabaseOverloaded   Code = "DATABASE_OVERLOADED"
	CodeDatabaseUnauthorized Code = "DATABASE_UNAUTHORIZED"
	CodeInvalidDatabaseQuery Code = "INVALID_DATABASE_QUERY"
	CodeDatabaseSyntaxError  Code = "DATABASE_SYNTAX_ERROR"
	CodeObjectAlreadyExists  Code = "OBJECT_ALREADY_EXISTS"
	CodeConcurrencyFailure   Code = "CONCURRENCY_FAILURE"

	// Internal.
	CodeServerInternalError Code = "SERVER_INTERNAL_ERROR"
)

type classification struct {
	family Family
	scope  Scope
}

var classifications = map[Code]classification{
	CodeUnknownTableColumns:          {FamilyRequest, ScopeFilter},
	CodeUnsupportedFilterDataType:    {FamilyRequest, ScopeFilter},
	CodeInvalidFilterOperatorForType: {FamilyRequest, ScopeFilter},
	CodeInvalidFilterExpression:      {FamilyRequest, ScopeFilter},
	CodeInvalidFilterValue:           {FamilyRequest, ScopeFilter},
	CodeUnindexedFilterPath:          {FamilyRequest, ScopeFilter},
	CodeFullScanNotAllowed:           {FamilyRequest, ScopeFilter},
	CodeMissingPrimaryKeyFilter:      {FamilyRequest, ScopeFilter},
	CodeUnsupportedSortForCommand:    {FamilyRequest, ScopeSort},
	CodeInvalidSortClause:            {FamilyRequest, ScopeSort},
	CodeDatasetTooBig:                {FamilyRequest, ScopeSort},

	CodeUnsupportedCommandForTarget: {FamilyRequest, ScopeCommand},
	CodeInvalidCommand:              {FamilyRequest, ScopeCommand},
	CodeTooManyDocuments:            {FamilyRequest, ScopeCommand},
	CodeUnsupportedUpdateOperator:   {FamilyRequest, ScopeCommand},
	CodeInvalidUpdate:               {FamilyRequest, ScopeCommand},

	CodeDocumentAlreadyExists:    {FamilyRequest, ScopeDocument},
	CodeDocumentSchemaViolation:  {FamilyRequest, ScopeDocument},
	CodeInvalidDocument:          {FamilyRequest, ScopeDocument},
	CodeInvalidColumnValue:       {FamilyRequest, ScopeDocument},
	CodeMissingPrimaryKeyColumns: {FamilyRequest, ScopeDocument},

	CodeTableAlreadyExists:          {FamilyRequest, ScopeSchema},
	CodeUnknownTable:                {FamilyRequest, ScopeSchema},
	CodeIndexAlreadyExists:          {FamilyRequest, ScopeSchema},
	CodeUnknownIndex:                {FamilyRequest, ScopeSchema},
	CodeKeyspaceAlreadyExists:       {FamilyRequest, ScopeSchema},
	CodeUnknownKeyspace:             {FamilyRequest, ScopeSchema},
	CodeCannotDropPrimaryKeyColumns: {FamilyRequest, ScopeSchema},
	CodeCannotDropIndexedColumns:    {FamilyRequest, ScopeSchema},
	CodeCannotAddExistingColumns:    {FamilyRequest, ScopeSchema},
	CodeInvalidSchemaDefinition:     {FamilyRequest, ScopeSchema},

	CodeDriverTimeout:        {FamilyServer, ScopeDatabase},
	CodeDatabaseReadTimeout:  {FamilyServer, ScopeDatabase},
	CodeDatabaseWriteTimeout: {FamilyServer, ScopeDatabase},
	CodeDatabaseUnavailable:  {FamilyServer, ScopeDatabase},
	CodeDatabaseOverloaded:   {FamilyServer, ScopeDatabase},
	CodeDatabaseUnauthorized: {FamilyServer, ScopeDatabase},
	CodeInvalidDatabaseQuery: {FamilyServer, ScopeDatabase},
	CodeDatabaseSyntaxError:  {FamilyServer, ScopeDatabase},
	CodeObjectAlreadyExists:  {FamilyServer, ScopeDatabase},
	CodeConcurrencyFailure:   {FamilyServer, ScopeDatabase},

	CodeServerInternalError: {FamilyServer, ScopeInternal},
}

// Error is a user facing error with a stable code.
type Error struct {
	// Code identifies the condition.
	Code Code `json:"errorCode"`

	// Family and Scope are derived from Code.
	Family Family `json:"family"`
	Scope  Scope  `json:"scope"`

	// Message is a human readable description naming the offending identifiers.
	Message string `json:"message"`

	// Context holds the identifiers involved (column, index, keyspace, table...).
	Context map[string]string `json:"context,omitempty"`
}

// New creates an Error. Family and Scope come from the code table;
// unknown codes are classified as internal server errors.
func New(code Code, format string, args ...any) *Error {
	c, ok := classifications[code]
	if !ok {
		c = classification{FamilyServer, ScopeInternal}
	}
	return &Error{
		Code:    code,
		Family:  c.family,
		Scope:   c.scope,
		Message: fmt.Sprintf(format, args...),
	}
}

// Internal creates a SERVER_INTERNAL_ERROR.
func Internal(format string, args ...any) *Error {
	return New(CodeServerInternalError, format, args...)
}

// With adds a context entry and returns the receiver for chaining.
func (e *Error) With(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	keys := slices.Sorted(maps.Keys(e.Context))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + e.Context[k]
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, ", "))
}

// As extracts an *Error from err. Uses errors.As to handle wrapped errors.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// HasCode reports whether err is, or wraps, an Error with the given code.
func HasCode(err error, code Code) bool {
	ae, ok := As(err)
	return ok && ae.Code == code
}

// IsRequestError reports whether err is a caller mistake that must not be retried.
func IsRequestError(err error) bool {
	ae, ok := As(err)
	return ok && ae.Family == FamilyRequest
}

// From converts any error into an *Error, mapping unknown errors to
// SERVER_INTERNAL_ERROR.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := As(err); ok {
		return ae
	}
	return Internal("%v", err)
}
