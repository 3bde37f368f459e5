package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStatements() []StatementTrace {
	return []StatementTrace{
		{Op: "schema", CQL: `CREATE TABLE IF NOT EXISTS "town"."users" ("key" tuple<tinyint, text>)`},
		{Op: "write", CQL: `INSERT INTO "town"."users" ("key", "doc_json") VALUES (?, ?) IF NOT EXISTS`},
		{Op: "read", CQL: `SELECT "key" FROM "town"."users" WHERE "key" = ?`},
		{Op: "write", CQL: `INSERT INTO "town"."users" ("key", "doc_json") VALUES (?, ?) IF NOT EXISTS`},
	}
}

func TestAssertStatementContains(t *testing.T) {
	stmts := sampleStatements()

	assert.NoError(t, assertStatementContains(stmts, Assertion{Fragment: "INSERT INTO"}))
	assert.NoError(t, assertStatementContains(stmts, Assertion{Fragment: `WHERE "key" = ?`, Op: "read"}))

	err := assertStatementContains(stmts, Assertion{Type: AssertStatementContains, Fragment: "INSERT INTO", Op: "read"})
	require.Error(t, err)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, `read statement containing "INSERT INTO"`, ae.Expected)
	assert.Equal(t, "not found", ae.Actual)
	assert.Len(t, ae.Statements, 4)

	err = assertStatementContains(stmts, Assertion{Fragment: "TRUNCATE"})
	assert.ErrorContains(t, err, `statement containing "TRUNCATE"`)
}

func TestAssertStatementOrder(t *testing.T) {
	stmts := sampleStatements()

	assert.NoError(t, assertStatementOrder(stmts, Assertion{Fragments: []string{"CREATE TABLE", "INSERT", "SELECT"}}))
	// Only first occurrences count, so the second INSERT does not matter.
	assert.NoError(t, assertStatementOrder(stmts, Assertion{Fragments: []string{"INSERT", "SELECT"}}))

	err := assertStatementOrder(stmts, Assertion{Fragments: []string{"SELECT", "CREATE TABLE"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"SELECT" (pos 3) should be before "CREATE TABLE" (pos 1)`)

	err = assertStatementOrder(stmts, Assertion{Fragments: []string{"CREATE TABLE", "DROP"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing fragment: "DROP"`)
}

func TestAssertStatementCount(t *testing.T) {
	stmts := sampleStatements()

	tests := []struct {
		name     string
		fragment string
		count    int
		wantErr  bool
	}{
		{"exact", "IF NOT EXISTS", 3, false},
		{"too few expected", "INSERT", 1, true},
		{"too many expected", "SELECT", 2, true},
		{"zero", "DROP", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertStatementCount(stmts, Assertion{Fragment: tt.fragment, Count: tt.count})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = []StepTrace{
		{Statements: sampleStatements()[:2]},
		{Statements: sampleStatements()[2:]},
	}

	failures := EvaluateAssertions(result, []Assertion{
		{Type: AssertStatementCount, Fragment: "INSERT", Count: 2},
		{Type: AssertStatementOrder, Fragments: []string{"CREATE TABLE", "SELECT"}},
	})
	assert.Empty(t, failures)

	failures = EvaluateAssertions(result, []Assertion{
		{Type: AssertStatementContains, Fragment: "TRUNCATE"},
		{Type: AssertStatementCount, Fragment: "INSERT", Count: 2},
		{Type: "final_state"},
	})
	require.Len(t, failures, 2)
	assert.Contains(t, failures[0], "assertions[0]")
	assert.Contains(t, failures[1], `assertions[2]: unknown assertion type "final_state"`)
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:       AssertStatementCount,
		Expected:   `1 statements containing "X"`,
		Actual:     "0",
		Statements: sampleStatements()[:1],
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: statement_count")
	assert.Contains(t, msg, `Expected: 1 statements containing "X"`)
	assert.Contains(t, msg, "Actual: 0")
	assert.Contains(t, msg, `[1] schema CREATE TABLE IF NOT EXISTS "town"."users"`)
}
