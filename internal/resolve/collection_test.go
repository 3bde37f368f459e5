package resolve

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/testutil"
)

const (
	tx1 = "5a2f6c00-8d4e-11ef-8000-000000000001"
	tx2 = "5a2f6c00-8d4e-11ef-8000-000000000002"
)

func TestCollectionInsertManyDuplicate(t *testing.T) {
	client := testutil.NewClient()
	client.On("INSERT").
		Where(func(s driver.Statement) bool { return strings.Contains(fmt.Sprint(s.Values), "u1") }).
		Return(driver.RowSet{Applied: false})

	_, resp := run(t, client, users(), `{"insertMany": {"documents": [{"_id": "u1", "a": 1}, {"b": 2}]}}`)

	inserted := resp.Status[StatusInsertedIDs].([]ir.Value)
	require.Len(t, inserted, 1)
	assert.Equal(t, ir.String("doc-1"), inserted[0])
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, apierr.CodeDocumentAlreadyExists, resp.Errors[0].Code)

	for _, c := range client.CQL() {
		assert.True(t, strings.HasSuffix(c, "IF NOT EXISTS"), c)
	}
}

func TestCollectionInsertOrderedStopsAtFirstFailure(t *testing.T) {
	client := testutil.NewClient()
	client.On("INSERT").
		Where(func(s driver.Statement) bool { return strings.Contains(fmt.Sprint(s.Values), "u2") }).
		Return(driver.RowSet{Applied: false})

	_, resp := run(t, client, users(), `{"insertMany": {
		"documents": [{"_id": "u1"}, {"_id": "u2"}, {"_id": "u3"}],
		"options": {"ordered": true, "returnDocumentResponses": true}
	}}`)

	responses := resp.Status[StatusDocumentResponses].([]DocumentResponse)
	require.Len(t, responses, 3)
	assert.Equal(t, []string{documentOK, documentError, documentSkipped},
		[]string{responses[0].Status, responses[1].Status, responses[2].Status})
	assert.Equal(t, ir.String("u3"), responses[2].ID)
	assert.Len(t, client.Calls(), 2)
}

func TestCollectionInsertRejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code apierr.Code
	}{
		{"insertOne without document", `{"insertOne": {}}`, apierr.CodeInvalidCommand},
		{"insertMany empty", `{"insertMany": {"documents": []}}`, apierr.CodeInvalidCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newResolver(t).Resolve(decode(t, tt.doc), users())
			assert.True(t, apierr.HasCode(err, tt.code), "got %v", err)
		})
	}

	docs := make([]string, 101)
	for i := range docs {
		docs[i] = fmt.Sprintf(`{"n": %d}`, i)
	}
	_, err := newResolver(t).Resolve(decode(t, `{"insertMany": {"documents": [`+strings.Join(docs, ",")+`]}}`), users())
	ae, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.CodeTooManyDocuments, ae.Code)
	assert.Equal(t, "100", ae.Context["limit"])
}

func TestCollectionInsertInvalidDocumentFailsItsPosition(t *testing.T) {
	client := testutil.NewClient()
	_, resp := run(t, client, users(), `{"insertMany": {"documents": [{"_id": "u1"}, {"_id": "u2", "$bad": 1}]}}`)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, apierr.FamilyRequest, resp.Errors[0].Family)
	assert.Len(t, client.Calls(), 1)
}

func TestCollectionUpdateOne(t *testing.T) {
	client := testutil.NewClient()
	client.On("SELECT").Rows(storedDocument([]any{1, "u1"}, tx1, `{"_id":"u1","n":1}`))

	_, resp := run(t, client, users(), `{"updateOne": {"filter": {"_id": "u1"}, "update": {"$inc": {"n": 2}}}}`)

	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, testutil.OpRead, calls[0].Op)
	assert.True(t, strings.HasPrefix(calls[1].Statement.CQL, `UPDATE "town"."users" SET "tx_id" = ?, "doc_json" = ?`), calls[1].Statement.CQL)
	assert.True(t, strings.HasSuffix(calls[1].Statement.CQL, `WHERE "key" = ? IF "tx_id" = ?`), calls[1].Statement.CQL)
	assert.Contains(t, calls[1].Statement.Values, `{"_id":"u1","n":3}`)
	assert.Equal(t, map[string]any{StatusMatchedCount: int64(1), StatusModifiedCount: int64(1)}, resp.Status)
}

func TestCollectionUpdateWithoutChange(t *testing.T) {
	client := testutil.NewClient()
	client.On("SELECT").Rows(storedDocument([]any{1, "u1"}, tx1, `{"_id":"u1","n":1}`))

	_, resp := run(t, client, users(), `{"updateOne": {"filter": {"_id": "u1"}, "update": {"$set": {"n": 1}}}}`)
	assert.Len(t, client.Calls(), 1)
	assert.Equal(t, int64(1), resp.Status[StatusMatchedCount])
	assert.Equal(t, int64(0), resp.Status[StatusModifiedCount])
}

func TestCollectionUpdateRetriesAfterConflict(t *testing.T) {
	client := testutil.NewClient()
	client.On("SELECT").
		Rows(storedDocument([]any{1, "u1"}, tx1, `{"_id":"u1","tag":"a","n":1}`)).
		Rows(storedDocument([]any{1, "u1"}, tx2, `{"_id":"u1","tag":"a","n":5}`))
	client.On("UPDATE").Return(driver.RowSet{Applied: false}).Rows()

	_, resp := run(t, client, users(), `{"updateMany": {"filter": {"tag": "a"}, "update": {"$inc": {"n": 1}}}}`)

	calls := client.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, []testutil.Op{testutil.OpRead, testutil.OpWrite, testutil.OpRead, testutil.OpWrite},
		[]testutil.Op{calls[0].Op, calls[1].Op, calls[2].Op, calls[3].Op})
	// The re-read narrows to the document and repeats the filter.
	assert.Contains(t, calls[2].Statement.CQL, `"key" = ?`)
	assert.Contains(t, calls[2].Statement.CQL, `"query_text_values"[?] = ?`)
	assert.Contains(t, calls[3].Statement.Values, `{"_id":"u1","n":6,"tag":"a"}`)
	assert.Equal(t, int64(1), resp.Status[StatusModifiedCount])
	assert.NotContains(t, resp.Status, StatusMoreData)
}

func TestCollectionUpdateGivesUpAfterConflicts(t *testing.T) {
	client := testutil.NewClient()
	client.On("SELECT").Rows(storedDocument([]any{1, "u1"}, tx1, `{"_id":"u1","n":1}`))
	client.On("UPDATE").Return(driver.RowSet{Applied: false})

	_, resp := run(t, client, users(), `{"updateOne": {"filter": {"_id": "u1"}, "update": {"$set": {"n": 2}}}}`)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, apierr.CodeConcurrencyFailure, resp.Errors[0].Code)
}

func TestCollectionUpdateRejections(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code apierr.Code
	}{
		{"upsert", `{"updateOne": {"update": {"$set": {"a": 1}}, "options": {"upsert": true}}}`, apierr.CodeInvalidCommand},
		{"sort", `{"updateOne": {"sort": {"a": 1}, "update": {"$set": {"a": 1}}}}`, apierr.CodeUnsupportedSortForCommand},
		{"empty update", `{"updateMany": {"filter": {"a": 1}}}`, apierr.CodeInvalidUpdate},
		{"update _id", `{"updateOne": {"update": {"$set": {"_id": 2}}}}`, apierr.CodeInvalidUpdate},
		{"overlapping paths", `{"updateOne": {"update": {"$set": {"a.b": 1}, "$unset": {"a": ""}}}}`, apierr.CodeInvalidUpdate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newResolver(t).Resolve(decode(t, tt.doc), users())
			assert.True(t, apierr.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestCollectionDeleteMany(t *testing.T) {
	client := testutil.NewClient()
	client.On("SELECT").Rows(
		storedDocument([]any{1, "u1"}, tx1, `{"_id":"u1","a":1}`),
		storedDocument([]any{1, "u2"}, tx2, `{"_id":"u2","a":1}`),
	)

	_, resp := run(t, client, users(), `{"deleteMany": {"filter": {"a": 1}}}`)

	cql := client.CQL()
	require.Len(t, cql, 3)
	assert.Equal(t, `DELETE FROM "town"."users" WHERE "key" = ? IF "tx_id" = ?`, cql[1])
	assert.Equal(t, int64(2), resp.Status[StatusDeletedCount])
}

func TestCollectionDeleteOneStopsAtOne(t *testing.T) {
	client := testutil.NewClient()
	client.On("SELECT").Rows(
		storedDocument([]any{1, "u1"}, tx1, `{"_id":"u1","a":1}`),
		storedDocument([]any{1, "u2"}, tx2, `{"_id":"u2","a":1}`),
	)

	_, resp := run(t, client, users(), `{"deleteOne": {"filter": {"a": 1}}}`)
	assert.Len(t, client.Calls(), 2)
	assert.Equal(t, map[string]any{StatusDeletedCount: int64(1)}, resp.Status)
}

func TestCollectionDeleteAllTruncates(t *testing.T) {
	client := testutil.NewClient()
	_, resp := run(t, client, users(), `{"deleteMany": {}}`)
	assert.Equal(t, []string{`TRUNCATE TABLE "town"."users"`}, client.CQL())
	assert.Equal(t, int64(-1), resp.Status[StatusDeletedCount])
}

func TestCollectionFindSortsInMemory(t *testing.T) {
	client := testutil.NewClient()
	client.On("SELECT").Rows(
		storedDocument([]any{1, "u1"}, tx1, `{"_id":"u1","age":30,"name":"x"}`),
		storedDocument([]any{1, "u2"}, tx1, `{"_id":"u2","name":"y"}`),
		storedDocument([]any{1, "u3"}, tx1, `{"_id":"u3","age":12,"name":"z"}`),
	)

	op, resp := run(t, client, users(), `{"find": {"sort": {"age": 1}, "projection": {"name": 1}}}`)

	require.Len(t, resp.Data.Documents, 3)
	var got []string
	for _, d := range resp.Data.Documents {
		got = append(got, canonical(d))
	}
	assert.Equal(t, []string{`{"_id":"u2","name":"y"}`, `{"_id":"u3","name":"z"}`, `{"_id":"u1","name":"x"}`}, got)
	require.Len(t, op.Warnings(), 1)
	assert.Contains(t, op.Warnings()[0], "in memory over at most 10000 documents")
	assert.NotContains(t, client.CQL()[0], "LIMIT")
}

func TestCollectionFindPagesThroughStore(t *testing.T) {
	client := testutil.NewClient()
	client.On("SELECT").Return(driver.RowSet{
		Rows:      []map[string]any{storedDocument([]any{1, "u1"}, tx1, `{"_id":"u1","a":{"b":1}}`)},
		PageState: []byte("next"),
	})

	_, resp := run(t, client, users(), `{"find": {"filter": {"a.b": 1}, "projection": {"a": 0}}}`)
	require.Len(t, resp.Data.Documents, 1)
	assert.Equal(t, `{"_id":"u1"}`, canonical(resp.Data.Documents[0]))
	assert.Equal(t, encodePageState([]byte("next")), resp.Data.NextPageState)
	assert.Equal(t, 20, client.Calls()[0].Statement.PageSize)
}

func TestCountDocuments(t *testing.T) {
	client := testutil.NewClient()
	client.On("SELECT").Rows(map[string]any{"key": []any{1, "a"}}, map[string]any{"key": []any{1, "b"}})

	_, resp := run(t, client, users(), `{"countDocuments": {"filter": {"a": 1}}}`)
	assert.Equal(t, map[string]any{StatusCount: int64(2)}, resp.Status)
	assert.True(t, strings.HasPrefix(client.CQL()[0], `SELECT "key" FROM "town"."users"`))
}

func TestEstimatedDocumentCount(t *testing.T) {
	client := testutil.NewClient()
	client.On("COUNT(*)").Rows(map[string]any{"count": int64(4200)})

	_, resp := run(t, client, users(), `{"estimatedDocumentCount": {}}`)
	assert.Equal(t, map[string]any{StatusCount: int64(4200)}, resp.Status)

	_, err := newResolver(t).Resolve(decode(t, `{"estimatedDocumentCount": {"filter": {"a": 1}}}`), users())
	assert.True(t, apierr.HasCode(err, apierr.CodeInvalidCommand))
}
