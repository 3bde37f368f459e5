package shred

import (
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/schema"
)

func collection(t *testing.T, indexing schema.Indexing, validator string) *schema.Object {
	t.Helper()
	settings, err := schema.NewCollectionSettings(indexing, "", validator)
	require.NoError(t, err)
	return schema.NewCollection("shop", "users", settings)
}

func mustObject(t *testing.T, s string) ir.Object {
	t.Helper()
	obj, err := ir.UnmarshalObject([]byte(s))
	require.NoError(t, err)
	return obj
}

func TestShredFillsIndexColumns(t *testing.T) {
	s, err := New(collection(t, schema.Indexing{}, ""))
	require.NoError(t, err)

	row, stored, err := s.Shred(mustObject(t, `{
    "_id": "u1",
    "name": "Ada",
    "age": 36,
    "active": true,
    "nick": null,
    "born": {"$date": 0},
    "tags": ["a", "b"],
    "address": {"city": "London"},
    "items": [{"sku": "x"}]
  }`))
	require.NoError(t, err)

	assert.Equal(t, ir.String("u1"), stored["_id"])
	assert.Equal(t, Key{Type: KeyTypeString, Text: "u1"}, row.Key)
	assert.Equal(t, `{"_id":"u1","active":true,"address":{"city":"London"},"age":36,"born":{"$date":0},"items":[{"sku":"x"}],"name":"Ada","nick":null,"tags":["a","b"]}`, row.DocJSON)

	assert.Equal(t, []string{"_id", "active", "address", "address.city", "age", "born", "items", "items.sku", "name", "nick", "tags"}, row.ExistKeys)
	assert.Equal(t, map[string]string{"_id": "u1", "name": "Ada", "address.city": "London"}, row.QueryTextValues)
	require.Contains(t, row.QueryDblValues, "age")
	assert.Equal(t, "36", row.QueryDblValues["age"].String())
	assert.Equal(t, map[string]int8{"active": 1}, row.QueryBoolValues)
	assert.Equal(t, []string{"nick"}, row.QueryNullValues)
	assert.Equal(t, time.UnixMilli(0).UTC(), row.QueryTimestampValues["born"])
	assert.Equal(t, map[string]int32{"tags": 2, "items": 1}, row.ArraySize)
	assert.Contains(t, row.ArrayEquals, "tags")
	assert.Contains(t, row.SubDocEquals, "address")

	tagsHash, err := ir.PathHash("tags", ir.Array{ir.String("a"), ir.String("b")})
	require.NoError(t, err)
	for _, want := range []string{"_id Su1", "name SAda", "age N36", "active B1", "nick Z", "born T0", "tags Sa", "tags Sb", "address.city SLondon", "items.sku Sx", tagsHash} {
		assert.Contains(t, row.ArrayContains, want)
	}
	assert.IsIncreasing(t, row.ArrayContains)
}

func TestShredRespectsIndexingRules(t *testing.T) {
	s, err := New(collection(t, schema.Indexing{Deny: []string{"address"}}, ""))
	require.NoError(t, err)

	row, _, err := s.Shred(mustObject(t, `{"_id": 1, "address": {"city": "London"}, "name": "Ada"}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"_id", "name"}, row.ExistKeys)
	assert.NotContains(t, row.QueryTextValues, "address.city")
	assert.Empty(t, row.SubDocEquals)
	assert.Contains(t, row.DocJSON, "London", "unindexed fields are still stored")
	assert.Equal(t, Key{Type: KeyTypeNumber, Text: "1"}, row.Key)
}

func TestShredGeneratesIDs(t *testing.T) {
	s, err := New(collection(t, schema.Indexing{}, ""))
	require.NoError(t, err)

	row, stored, err := s.Shred(ir.Object{"name": ir.String("x")})
	require.NoError(t, err)

	id, ok := stored["_id"].(ir.String)
	require.True(t, ok)
	parsed, err := uuid.Parse(string(id))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Equal(t, string(id), row.Key.Text)
	assert.Equal(t, 1, row.TxID.Version())

	fixed, err := New(collection(t, schema.Indexing{}, ""),
		WithIDGenerator(func() (ir.Value, error) { return ir.String("fixed"), nil }),
		WithTxIDGenerator(func() gocql.UUID { return gocql.UUIDFromTime(time.UnixMilli(0)) }))
	require.NoError(t, err)
	_, stored, err = fixed.Shred(ir.Object{})
	require.NoError(t, err)
	assert.Equal(t, ir.String("fixed"), stored["_id"])
}

func TestShredDoesNotMutateInput(t *testing.T) {
	s, err := New(collection(t, schema.Indexing{}, ""))
	require.NoError(t, err)

	doc := ir.Object{"a": ir.Object{"b": ir.String("c")}}
	_, _, err = s.Shred(doc)
	require.NoError(t, err)
	assert.NotContains(t, doc, "_id")
}

func TestShredRejectsInvalidDocuments(t *testing.T) {
	deep := ir.Value(ir.String("x"))
	for i := 0; i < MaxDepth+2; i++ {
		deep = ir.Object{"a": deep}
	}

	tests := []struct {
		name string
		doc  ir.Object
		code apierr.Code
	}{
		{"array id", ir.Object{"_id": ir.Array{}}, apierr.CodeInvalidDocument},
		{"object id", ir.Object{"_id": ir.Object{}}, apierr.CodeInvalidDocument},
		{"dotted field", ir.Object{"a.b": ir.NewInt(1)}, apierr.CodeInvalidDocument},
		{"operator field", ir.Object{"x": ir.Object{"$set": ir.NewInt(1)}}, apierr.CodeInvalidDocument},
		{"too deep", ir.Object{"deep": deep}, apierr.CodeInvalidDocument},
	}

	s, err := New(collection(t, schema.Indexing{}, ""))
	require.NoError(t, err)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.Shred(tt.doc)
			require.Error(t, err)
			assert.True(t, apierr.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestShredValidatesAgainstJSONSchema(t *testing.T) {
	validator := `{"type": "object", "properties": {"age": {"type": "integer", "minimum": 0}}, "required": ["age"]}`
	s, err := New(collection(t, schema.Indexing{}, validator))
	require.NoError(t, err)

	_, _, err = s.Shred(mustObject(t, `{"age": 3}`))
	require.NoError(t, err)

	_, _, err = s.Shred(mustObject(t, `{"name": "x"}`))
	require.Error(t, err)
	assert.True(t, apierr.HasCode(err, apierr.CodeDocumentSchemaViolation))

	_, _, err = s.Shred(mustObject(t, `{"age": -1}`))
	assert.True(t, apierr.HasCode(err, apierr.CodeDocumentSchemaViolation))
}

func TestNewRequiresCollection(t *testing.T) {
	_, err := New(schema.NewKeyspace("shop"))
	assert.True(t, apierr.HasCode(err, apierr.CodeServerInternalError))
}

func TestRowColumnsFollowPhysicalLayout(t *testing.T) {
	s, err := New(collection(t, schema.Indexing{}, ""))
	require.NoError(t, err)
	row, _, err := s.Shred(ir.Object{"_id": ir.String("a")})
	require.NoError(t, err)

	names, values := row.Columns()
	require.Len(t, values, len(names))
	var physical []string
	for _, c := range schema.CollectionColumns() {
		physical = append(physical, c.Name)
	}
	assert.Equal(t, physical, names)
}

func TestReadRow(t *testing.T) {
	tx := gocql.TimeUUID()
	stored, err := ReadRow(map[string]any{
		schema.ColDocJSON: `{"_id":"a","n":1.50}`,
		schema.ColTxID:    tx,
	})
	require.NoError(t, err)
	assert.Equal(t, tx, stored.TxID)
	assert.Equal(t, ir.String("a"), stored.Doc["_id"])
	assert.Equal(t, 0, stored.Doc["n"].(ir.Number).Cmp(ir.MustNumber("1.5")))

	_, err = ReadRow(map[string]any{})
	assert.Error(t, err)
}
