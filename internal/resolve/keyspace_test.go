package resolve

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/schema"
	"github.com/roach88/cqlbridge/internal/testutil"
)

func town() *schema.Object {
	return schema.NewKeyspace("town")
}

func TestCreateTable(t *testing.T) {
	client := testutil.NewClient()
	_, resp := run(t, client, town(), `{"createTable": {
		"name": "events",
		"definition": {
			"columns": {"day": "text", "at": "timestamp", "what": "text", "tags": {"type": "set", "valueType": "text"}},
			"primaryKey": {"partitionBy": ["day"], "partitionSort": {"at": -1}}
		},
		"options": {"ifNotExists": true}
	}}`)

	assert.Equal(t, 1, resp.Status[StatusOK])
	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, testutil.OpSchema, calls[0].Op)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "town"."events" ("day" text, "at" timestamp, "what" text, "tags" set<text>, PRIMARY KEY ("day", "at")) WITH CLUSTERING ORDER BY ("at" DESC)`,
		calls[0].Statement.CQL)
}

func TestCreateTableRejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code apierr.Code
	}{
		{"no definition", `{"createTable": {"name": "t"}}`, apierr.CodeInvalidCommand},
		{"bad name", `{"createTable": {"name": "1t", "definition": {"columns": {"a": "text"}, "primaryKey": "a"}}}`, apierr.CodeInvalidSchemaDefinition},
		{"name too long", `{"createTable": {"name": "` + strings.Repeat("t", 49) + `", "definition": {"columns": {"a": "text"}, "primaryKey": "a"}}}`, apierr.CodeInvalidSchemaDefinition},
		{"undeclared key", `{"createTable": {"name": "t", "definition": {"columns": {"a": "text"}, "primaryKey": "b"}}}`, apierr.CodeInvalidSchemaDefinition},
		{"container key", `{"createTable": {"name": "t", "definition": {"columns": {"a": {"type": "list", "valueType": "int"}}, "primaryKey": "a"}}}`, apierr.CodeInvalidSchemaDefinition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newResolver(t).Resolve(decode(t, tt.doc), town())
			assert.True(t, apierr.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestCreateTableAlreadyExists(t *testing.T) {
	client := testutil.NewClient()
	client.On("CREATE TABLE").Fail(driver.NewError(driver.KindAlreadyExists, "Table town.events already exists"))

	_, resp := run(t, client, town(), `{"createTable": {"name": "events", "definition": {"columns": {"a": "text"}, "primaryKey": "a"}}}`)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, apierr.CodeTableAlreadyExists, resp.Errors[0].Code)
	assert.NotContains(t, resp.Status, StatusOK)
}

func TestDropStatements(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"dropTable", `{"dropTable": {"name": "people"}}`, `DROP TABLE "town"."people"`},
		{"dropTable if exists", `{"dropTable": {"name": "people", "options": {"ifExists": true}}}`, `DROP TABLE IF EXISTS "town"."people"`},
		{"dropIndex", `{"dropIndex": {"name": "people_email"}}`, `DROP INDEX "town"."people_email"`},
		{"deleteCollection", `{"deleteCollection": {"name": "users"}}`, `DROP TABLE IF EXISTS "town"."users"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testutil.NewClient()
			_, resp := run(t, client, town(), tt.doc)
			assert.Equal(t, 1, resp.Status[StatusOK])
			assert.Equal(t, []string{tt.want}, client.CQL())
		})
	}

	for _, doc := range []string{`{"dropTable": {}}`, `{"dropIndex": {}}`, `{"deleteCollection": {}}`} {
		_, err := newResolver(t).Resolve(decode(t, doc), town())
		assert.True(t, apierr.HasCode(err, apierr.CodeInvalidCommand), "%s: got %v", doc, err)
	}
}

const usersComment = `{"collection":{"name":"users","schema_version":1,"options":{"defaultId":{"type":"uuidv7"}}}}`

func TestCreateCollection(t *testing.T) {
	client := testutil.NewClient()
	_, resp := run(t, client, town(), `{"createCollection": {"name": "users"}}`)

	assert.Equal(t, 1, resp.Status[StatusOK])
	stmts := client.CQL()
	indexes := schema.CollectionIndexes("users")
	require.Len(t, stmts, 1+len(indexes))

	assert.True(t, strings.HasPrefix(stmts[0], `CREATE TABLE IF NOT EXISTS "town"."users" ("key" tuple<tinyint, text>, "tx_id" timeuuid, "doc_json" text, `), stmts[0])
	assert.True(t, strings.HasSuffix(stmts[0], `PRIMARY KEY ("key")) WITH comment = '`+usersComment+`'`), stmts[0])

	assert.Equal(t,
		`CREATE CUSTOM INDEX IF NOT EXISTS "users_exist_keys" ON "town"."users" (values("exist_keys")) USING 'StorageAttachedIndex'`,
		stmts[1])
	for i, idx := range indexes {
		assert.Contains(t, stmts[i+1], `"`+idx.Name+`"`)
	}
}

func TestCreateCollectionStopsAtFirstFailure(t *testing.T) {
	client := testutil.NewClient()
	client.On(`"users_array_size"`).Fail(driver.NewError(driver.KindUnauthorized, "no CREATE permission"))

	_, resp := run(t, client, town(), `{"createCollection": {"name": "users"}}`)

	assert.Len(t, client.Calls(), 3)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, apierr.CodeDatabaseUnauthorized, resp.Errors[0].Code)
	assert.NotContains(t, resp.Status, StatusOK)
}

func TestCreateCollectionOptions(t *testing.T) {
	client := testutil.NewClient()
	run(t, client, town(), `{"createCollection": {"name": "users", "options": {
		"indexing": {"deny": ["blob"]},
		"defaultId": {"type": "uuid"}
	}}}`)

	create := client.CQL()[0]
	assert.Contains(t, create, `"indexing":{"deny":["blob"]}`)
	assert.Contains(t, create, `"defaultId":{"type":"uuid"}`)

	tests := []struct {
		name string
		doc  string
	}{
		{"bad name", `{"createCollection": {"name": "my-users"}}`},
		{"allow and deny", `{"createCollection": {"name": "users", "options": {"indexing": {"allow": ["a"], "deny": ["b"]}}}}`},
		{"unknown id type", `{"createCollection": {"name": "users", "options": {"defaultId": {"type": "objectId"}}}}`},
		{"bad validator", `{"createCollection": {"name": "users", "options": {"validator": {"type": 12}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newResolver(t).Resolve(decode(t, tt.doc), town())
			assert.True(t, apierr.HasCode(err, apierr.CodeInvalidSchemaDefinition), "got %v", err)
		})
	}
}

func TestListTablesAndCollections(t *testing.T) {
	newClient := func() *testutil.Client {
		client := testutil.NewClient()
		client.On("system_schema.tables").Rows(
			map[string]any{"table_name": "people", "comment": ""},
			map[string]any{"table_name": "users", "comment": usersComment},
			map[string]any{"table_name": "audit", "comment": "written by the batch job"},
			map[string]any{"table_name": "orders", "comment": `{"collection":{"name":"orders","schema_version":1,"options":{"defaultId":{"type":"uuid"}}}}`},
		)
		return client
	}

	client := newClient()
	_, resp := run(t, client, town(), `{"listTables": {}}`)
	assert.Equal(t, []string{"audit", "people"}, resp.Status[StatusTables])
	assert.Equal(t, []any{"town"}, client.Calls()[0].Statement.Values)
	assert.Equal(t, testutil.OpRead, client.Calls()[0].Op)

	_, resp = run(t, newClient(), town(), `{"findCollections": {}}`)
	assert.Equal(t, []string{"orders", "users"}, resp.Status[StatusCollections])
}

func TestListTablesEmptyKeyspace(t *testing.T) {
	_, resp := run(t, testutil.NewClient(), town(), `{"listTables": {}}`)
	assert.Equal(t, []string{}, resp.Status[StatusTables])
}
