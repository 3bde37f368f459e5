// Package driver is the boundary to the database. The engine talks to a
// Client; Session implements it over gocql.
package driver

import (
	"context"
	"errors"
	"fmt"
)

// Statement is one CQL statement with positional bind values.
type Statement struct {
	CQL    string
	Values []any

	// PageSize limits rows per page for reads. Zero uses the session default.
	PageSize int

	// PageState resumes a paged read.
	PageState []byte

	// Idempotent marks statements that are safe to retry after a timeout.
	Idempotent bool
}

// RowSet is the result of a statement.
type RowSet struct {
	// Rows are keyed by column name, values as returned by the driver.
	Rows []map[string]any

	// PageState is set when more rows are available.
	PageState []byte

	// Applied is the outcome of a lightweight transaction.
	// Always true for statements without a condition.
	Applied bool
}

// Client executes statements. Implementations must be safe for
// concurrent use; the engine shares one client between tasks.
type Client interface {
	ExecuteRead(ctx context.Context, stmt Statement) (*RowSet, error)
	ExecuteWrite(ctx context.Context, stmt Statement) (*RowSet, error)
	ExecuteSchemaChange(ctx context.Context, stmt Statement) (*RowSet, error)
}

// ErrorKind classifies driver failures.
type ErrorKind string

const (
	// KindTimeout is a client side timeout: no response from any host.
	KindTimeout       ErrorKind = "TIMEOUT"
	KindReadTimeout   ErrorKind = "READ_TIMEOUT"
	KindWriteTimeout  ErrorKind = "WRITE_TIMEOUT"
	KindUnavailable   ErrorKind = "UNAVAILABLE"
	KindOverloaded    ErrorKind = "OVERLOADED"
	KindAlreadyExists ErrorKind = "ALREADY_EXISTS"
	KindInvalidQuery  ErrorKind = "INVALID_QUERY"
	KindSyntax        ErrorKind = "SYNTAX_ERROR"
	KindUnauthorized  ErrorKind = "UNAUTHORIZED"
	KindConfig        ErrorKind = "CONFIG_ERROR"
	KindServer        ErrorKind = "SERVER_ERROR"
	KindUnknown       ErrorKind = "UNKNOWN"
)

// Error is a classified driver failure.
type Error struct {
	Kind    ErrorKind
	Message string

	// Keyspace and Table are set for ALREADY_EXISTS.
	Keyspace string
	Table    string

	// Err is the original driver error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the original driver error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error without an underlying cause.
// Used by scripted clients in tests.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or KindUnknown if err is not a driver error.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// IsTimeout reports client side, read and write timeouts.
func IsTimeout(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindReadTimeout, KindWriteTimeout:
		return true
	}
	return false
}
