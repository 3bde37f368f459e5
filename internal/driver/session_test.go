package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordingQuery records the paging calls a query receives.
type recordingQuery struct {
	pageSize     int
	pageState    []byte
	pageStateSet bool
}

func (q *recordingQuery) PageSize(n int) *recordingQuery {
	q.pageSize = n
	return q
}

func (q *recordingQuery) PageState(state []byte) *recordingQuery {
	q.pageState = state
	q.pageStateSet = true
	return q
}

func TestPagedAlwaysSetsPageState(t *testing.T) {
	tests := []struct {
		name      string
		stmt      Statement
		wantSize  int
		wantState []byte
	}{
		{"first page", Statement{CQL: "SELECT * FROM t", PageSize: 20}, 20, nil},
		{"next page", Statement{CQL: "SELECT * FROM t", PageSize: 20, PageState: []byte{1, 2}}, 20, []byte{1, 2}},
		{"session page size", Statement{CQL: "SELECT * FROM t"}, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := paged(&recordingQuery{}, tt.stmt)
			assert.True(t, q.pageStateSet, "a page state must be set to stop gocql from fetching every page")
			assert.Equal(t, tt.wantSize, q.pageSize)
			assert.Equal(t, tt.wantState, q.pageState)
		})
	}
}
