package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewClassifiesCode(t *testing.T) {
	err := New(CodeUnknownTableColumns, "unknown column %q", "age")

	assert.Equal(t, FamilyRequest, err.Family)
	assert.Equal(t, ScopeFilter, err.Scope)
	assert.Equal(t, `unknown column "age"`, err.Message)
}

func TestNewUnknownCodeIsInternal(t *testing.T) {
	err := New(Code("SOMETHING_NEW"), "boom")

	assert.Equal(t, FamilyServer, err.Family)
	assert.Equal(t, ScopeInternal, err.Scope)
}

func TestErrorStringIncludesSortedContext(t *testing.T) {
	err := New(CodeUnknownIndex, "index not found").
		With("keyspace", "shop").
		With("index", "idx_total")

	assert.Equal(t, "UNKNOWN_INDEX: index not found (index=idx_total, keyspace=shop)", err.Error())
}

func TestHelpersUnwrap(t *testing.T) {
	wrapped := fmt.Errorf("task 3: %w", New(CodeDatabaseWriteTimeout, "timed out"))

	assert.True(t, HasCode(wrapped, CodeDatabaseWriteTimeout))
	assert.False(t, HasCode(wrapped, CodeDriverTimeout))
	assert.False(t, IsRequestError(wrapped))

	ae, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, ScopeDatabase, ae.Scope)
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	plain := From(errors.New("disk on fire"))
	assert.Equal(t, CodeServerInternalError, plain.Code)
	assert.Equal(t, "disk on fire", plain.Message)

	typed := New(CodeTooManyDocuments, "too many")
	assert.Same(t, typed, From(fmt.Errorf("wrap: %w", typed)))
}
