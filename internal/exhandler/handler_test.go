package exhandler

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/schema"
)

func orders() *schema.Object {
	return &schema.Object{Kind: schema.KindTable, Keyspace: "shop", Name: "orders"}
}

func invalidQuery(msg string) error {
	return driver.NewError(driver.KindInvalidQuery, "%s", msg)
}

// handled runs h and asserts the result is a domain error.
func handled(t *testing.T, h Handler, obj *schema.Object, err error) *apierr.Error {
	t.Helper()
	out := h.Handle(obj, err)
	ae, ok := apierr.As(out)
	require.True(t, ok, "expected *apierr.Error, got %T: %v", out, out)
	return ae
}

func TestDefaultByKind(t *testing.T) {
	tests := []struct {
		kind driver.ErrorKind
		want apierr.Code
	}{
		{driver.KindTimeout, apierr.CodeDriverTimeout},
		{driver.KindReadTimeout, apierr.CodeDatabaseReadTimeout},
		{driver.KindWriteTimeout, apierr.CodeDatabaseWriteTimeout},
		{driver.KindUnavailable, apierr.CodeDatabaseUnavailable},
		{driver.KindOverloaded, apierr.CodeDatabaseOverloaded},
		{driver.KindUnauthorized, apierr.CodeDatabaseUnauthorized},
		{driver.KindAlreadyExists, apierr.CodeObjectAlreadyExists},
		{driver.KindInvalidQuery, apierr.CodeInvalidDatabaseQuery},
		{driver.KindConfig, apierr.CodeInvalidDatabaseQuery},
		{driver.KindSyntax, apierr.CodeDatabaseSyntaxError},
		{driver.KindServer, apierr.CodeServerInternalError},
		{driver.KindUnknown, apierr.CodeServerInternalError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			ae := handled(t, Default{}, orders(), driver.NewError(tt.kind, "boom"))
			assert.Equal(t, tt.want, ae.Code)
		})
	}
}

func TestDefaultNonDriverErrors(t *testing.T) {
	assert.NoError(t, Default{}.Handle(orders(), nil))

	domain := apierr.New(apierr.CodeUnknownTable, "gone")
	assert.Same(t, domain, Default{}.Handle(orders(), fmt.Errorf("wrapped: %w", domain)))

	ae := handled(t, Default{}, orders(), context.Canceled)
	assert.Equal(t, apierr.CodeDriverTimeout, ae.Code)

	ae = handled(t, Default{}, nil, errors.New("boom"))
	assert.Equal(t, apierr.CodeServerInternalError, ae.Code)
	assert.Contains(t, ae.Message, "database")
}

func TestDefaultAlreadyExistsCarriesNames(t *testing.T) {
	err := &driver.Error{Kind: driver.KindAlreadyExists, Message: "exists", Keyspace: "shop", Table: "orders"}
	ae := handled(t, Default{}, orders(), err)

	assert.Equal(t, map[string]string{"keyspace": "shop", "table": "orders"}, ae.Context)
}

func TestDropIndexUnknownIndexCarriesName(t *testing.T) {
	h := DropIndex{Keyspace: "shop", Index: "orders_total_idx"}

	for _, msg := range []string{
		"Index 'shop.orders_total_idx' doesn't exist",
		"Index 'orders_total_idx' could not be found in any of the tables of keyspace 'shop'",
	} {
		t.Run(msg, func(t *testing.T) {
			ae := handled(t, h, schema.NewKeyspace("shop"), invalidQuery(msg))
			assert.Equal(t, apierr.CodeUnknownIndex, ae.Code)
			assert.Equal(t, "orders_total_idx", ae.Context["index"])
			assert.Contains(t, ae.Message, "orders_total_idx")
		})
	}
}

func TestSchemaHandlers(t *testing.T) {
	tests := []struct {
		name    string
		handler Handler
		err     error
		want    apierr.Code
		context map[string]string
	}{
		{
			name:    "create table exists",
			handler: CreateTable{Keyspace: "shop", Table: "orders"},
			err:     driver.NewError(driver.KindAlreadyExists, `Cannot add already existing table "orders" to keyspace "shop"`),
			want:    apierr.CodeTableAlreadyExists,
			context: map[string]string{"keyspace": "shop", "table": "orders"},
		},
		{
			name:    "create table exists without message",
			handler: CreateTable{Keyspace: "shop", Table: "orders"},
			err:     driver.NewError(driver.KindAlreadyExists, ""),
			want:    apierr.CodeTableAlreadyExists,
			context: map[string]string{"keyspace": "shop", "table": "orders"},
		},
		{
			name:    "create table keyspace missing",
			handler: CreateTable{Keyspace: "nope", Table: "orders"},
			err:     invalidQuery("Keyspace 'nope' doesn't exist"),
			want:    apierr.CodeUnknownKeyspace,
			context: map[string]string{"keyspace": "nope"},
		},
		{
			name:    "create table bad type",
			handler: CreateTable{Keyspace: "shop", Table: "orders"},
			err:     invalidQuery("Unknown type shop.money"),
			want:    apierr.CodeInvalidSchemaDefinition,
			context: map[string]string{"table": "orders"},
		},
		{
			name:    "drop table missing",
			handler: DropTable{Keyspace: "shop", Table: "orders"},
			err:     invalidQuery("Table 'shop.orders' doesn't exist"),
			want:    apierr.CodeUnknownTable,
			context: map[string]string{"keyspace": "shop", "table": "orders"},
		},
		{
			name:    "drop table keyspace missing",
			handler: DropTable{Keyspace: "shop", Table: "orders"},
			err:     invalidQuery("Keyspace shop does not exist"),
			want:    apierr.CodeUnknownKeyspace,
			context: map[string]string{"keyspace": "shop"},
		},
		{
			name:    "create index exists",
			handler: CreateIndex{Keyspace: "shop", Table: "orders", Index: "orders_total_idx", Column: "total"},
			err:     invalidQuery("Index 'orders_total_idx' already exists"),
			want:    apierr.CodeIndexAlreadyExists,
			context: map[string]string{"index": "orders_total_idx", "table": "orders"},
		},
		{
			name:    "create index duplicate",
			handler: CreateIndex{Keyspace: "shop", Table: "orders", Index: "by_total", Column: "total"},
			err:     invalidQuery("Index by_total is a duplicate of existing index orders_total_idx"),
			want:    apierr.CodeIndexAlreadyExists,
			context: map[string]string{"index": "by_total", "table": "orders", "existingIndex": "orders_total_idx"},
		},
		{
			name:    "create index unknown column",
			handler: CreateIndex{Keyspace: "shop", Table: "orders", Index: "orders_x_idx", Column: "x"},
			err:     invalidQuery("Undefined column name x in table shop.orders"),
			want:    apierr.CodeUnknownTableColumns,
			context: map[string]string{"table": "orders", "column": "x"},
		},
		{
			name:    "create index on partition key",
			handler: CreateIndex{Keyspace: "shop", Table: "orders", Index: "orders_customer_idx", Column: "customer"},
			err:     invalidQuery("Cannot create secondary index on the only partition key column customer"),
			want:    apierr.CodeInvalidSchemaDefinition,
			context: map[string]string{"column": "customer"},
		},
		{
			name:    "alter add existing",
			handler: AlterTable{Keyspace: "shop", Table: "orders"},
			err:     invalidQuery("Column with name 'note' already exists"),
			want:    apierr.CodeCannotAddExistingColumns,
			context: map[string]string{"table": "orders", "column": "note"},
		},
		{
			name:    "alter add conflicting",
			handler: AlterTable{Keyspace: "shop", Table: "orders"},
			err:     invalidQuery("Invalid column name note because it conflicts with an existing column"),
			want:    apierr.CodeCannotAddExistingColumns,
			context: map[string]string{"table": "orders", "column": "note"},
		},
		{
			name:    "alter drop missing",
			handler: AlterTable{Keyspace: "shop", Table: "orders"},
			err:     invalidQuery("Column nope was not found in table shop.orders"),
			want:    apierr.CodeUnknownTableColumns,
			context: map[string]string{"table": "orders", "column": "nope"},
		},
		{
			name:    "alter drop primary key",
			handler: AlterTable{Keyspace: "shop", Table: "orders"},
			err:     invalidQuery("Cannot drop PRIMARY KEY column customer"),
			want:    apierr.CodeCannotDropPrimaryKeyColumns,
			context: map[string]string{"table": "orders", "column": "customer"},
		},
		{
			name:    "alter drop indexed",
			handler: AlterTable{Keyspace: "shop", Table: "orders"},
			err:     invalidQuery("Cannot drop column total because it has dependent secondary indexes (orders_total_idx)"),
			want:    apierr.CodeCannotDropIndexedColumns,
			context: map[string]string{"table": "orders", "column": "total"},
		},
		{
			name:    "create keyspace exists",
			handler: CreateKeyspace{Keyspace: "shop"},
			err:     driver.NewError(driver.KindAlreadyExists, "Keyspace shop already exists"),
			want:    apierr.CodeKeyspaceAlreadyExists,
			context: map[string]string{"keyspace": "shop"},
		},
		{
			name:    "create keyspace bad replication",
			handler: CreateKeyspace{Keyspace: "shop"},
			err:     driver.NewError(driver.KindConfig, "Unable to find replication strategy class 'org.example.Nope'"),
			want:    apierr.CodeInvalidSchemaDefinition,
			context: map[string]string{"keyspace": "shop"},
		},
		{
			name:    "drop keyspace missing",
			handler: DropKeyspace{Keyspace: "shop"},
			err:     driver.NewError(driver.KindConfig, "Cannot drop non existing keyspace 'shop'."),
			want:    apierr.CodeUnknownKeyspace,
			context: map[string]string{"keyspace": "shop"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ae := handled(t, tt.handler, orders(), fmt.Errorf("execute: %w", tt.err))
			assert.Equal(t, tt.want, ae.Code, ae.Message)
			assert.Equal(t, tt.context, ae.Context)
		})
	}
}

func TestTableHandlers(t *testing.T) {
	tests := []struct {
		name    string
		handler Handler
		err     error
		want    apierr.Code
		column  string
	}{
		{"read unknown column", TableRead{}, invalidQuery("Undefined column name nope in table shop.orders"), apierr.CodeUnknownTableColumns, "nope"},
		{"read unknown table", TableRead{}, invalidQuery("unconfigured table orders"), apierr.CodeUnknownTable, ""},
		{"read filtering", TableRead{}, invalidQuery("Cannot execute this query as it might involve data filtering and thus may have unpredictable performance."), apierr.CodeFullScanNotAllowed, ""},
		{"read order by", TableRead{}, invalidQuery("ORDER BY is only supported when the partition key is restricted by an EQ or an IN."), apierr.CodeInvalidSortClause, ""},
		{"write unknown column", TableWrite{}, invalidQuery("Undefined column name nope"), apierr.CodeUnknownTableColumns, "nope"},
		{"write partition missing", TableWrite{}, invalidQuery("Some partition key parts are missing: customer"), apierr.CodeMissingPrimaryKeyColumns, "customer"},
		{"write clustering missing", TableWrite{}, invalidQuery("Some clustering keys are missing: placed_at"), apierr.CodeMissingPrimaryKeyColumns, "placed_at"},
		{"write null key", TableWrite{}, invalidQuery("Invalid null value for partition key part customer"), apierr.CodeMissingPrimaryKeyColumns, "customer"},
		{"write bad bytes", TableWrite{}, invalidQuery("Expected 4 or 0 byte int (8)"), apierr.CodeInvalidColumnValue, ""},
		{"write bad constant", TableWrite{}, invalidQuery(`Invalid STRING constant (abc) for "qty" of type int`), apierr.CodeInvalidColumnValue, "qty"},
		{"write unknown table", TableWrite{}, invalidQuery("unconfigured table orders"), apierr.CodeUnknownTable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ae := handled(t, tt.handler, orders(), tt.err)
			assert.Equal(t, tt.want, ae.Code, ae.Message)
			assert.Equal(t, "orders", ae.Context["table"])
			assert.Equal(t, tt.column, ae.Context["column"])
		})
	}
}

func TestUnmatchedMessagesFallBackToDefault(t *testing.T) {
	ae := handled(t, CreateIndex{Keyspace: "shop", Table: "orders", Index: "i"}, orders(), invalidQuery("something new"))
	assert.Equal(t, apierr.CodeInvalidDatabaseQuery, ae.Code)

	// Message tables only apply to the kinds they list.
	ae = handled(t, TableRead{}, orders(), driver.NewError(driver.KindSyntax, "Undefined column name x"))
	assert.Equal(t, apierr.CodeDatabaseSyntaxError, ae.Code)

	ae = handled(t, TableWrite{}, orders(), driver.NewError(driver.KindWriteTimeout, "timed out"))
	assert.Equal(t, apierr.CodeDatabaseWriteTimeout, ae.Code)
}

func TestOf(t *testing.T) {
	f := Of(TableRead{})
	assert.Equal(t, TableRead{}, f(orders()))
}
