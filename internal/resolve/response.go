package resolve

import (
	"encoding/base64"
	"slices"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/task"
)

// Status keys of a response.
const (
	StatusInsertedIDs       = "insertedIds"
	StatusDocumentResponses = "documentResponses"
	StatusMatchedCount      = "matchedCount"
	StatusModifiedCount     = "modifiedCount"
	StatusDeletedCount      = "deletedCount"
	StatusCount             = "count"
	StatusMoreData          = "moreData"
	StatusOK                = "ok"
	StatusTables            = "tables"
	StatusCollections       = "collections"
	StatusKeyspaces         = "keyspaces"
	StatusIndexes           = "indexes"
)

// Response is the single answer to a command: what happened to every
// item, in the shape of the document API.
type Response struct {
	Status   map[string]any  `json:"status,omitempty"`
	Data     *Data           `json:"data,omitempty"`
	Errors   []*apierr.Error `json:"errors,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Data carries the documents returned by a read. findOne fills Document,
// find fills Documents.
type Data struct {
	Document      ir.Object   `json:"document,omitempty"`
	Documents     []ir.Object `json:"documents,omitempty"`
	NextPageState string      `json:"nextPageState,omitempty"`
}

// DocumentResponse is the per document status of an insert.
type DocumentResponse struct {
	ID        ir.Value `json:"_id,omitempty"`
	Status    string   `json:"status"`
	ErrorsIdx *int     `json:"errorsIdx,omitempty"`
}

const (
	documentOK      = "OK"
	documentError   = "ERROR"
	documentSkipped = "SKIPPED"
)

// itemErrors lists the errors of failed items in position order.
func itemErrors(res *task.Result) []*apierr.Error {
	var out []*apierr.Error
	for _, it := range res.Failed() {
		out = append(out, it.Error)
	}
	return out
}

// succeeded reports whether every item completed.
func succeeded(res *task.Result) bool {
	return res.Completed() == len(res.Items)
}

// shapeOK reports {"ok": 1} when every task completed.
func shapeOK(res *task.Result) (*Response, error) {
	resp := &Response{Status: map[string]any{}}
	if succeeded(res) {
		resp.Status[StatusOK] = 1
	}
	return resp, nil
}

func encodePageState(state []byte) string {
	if len(state) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(state)
}

func decodePageState(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	state, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, invalidCommand("pageState is not a valid page state").With("pageState", s)
	}
	return state, nil
}

// shapeNames reports the sorted values of column col of the rows that
// keep accepts under status key. A nil keep accepts every row.
func shapeNames(key, col string, keep func(row map[string]any) bool) shapeFunc {
	return func(res *task.Result) (*Response, error) {
		names := []string{}
		if it, ok := res.Item(0); ok && it.Status == task.StatusCompleted {
			for _, row := range it.Outcome.Rows {
				if keep != nil && !keep(row) {
					continue
				}
				if name, ok := row[col].(string); ok {
					names = append(names, name)
				}
			}
		}
		slices.Sort(names)
		return &Response{Status: map[string]any{key: names}}, nil
	}
}
