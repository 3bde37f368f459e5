package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/testutil"
)

// execResponse mirrors the response document for decoding.
type execResponse struct {
	Status map[string]any `json:"status"`
	Errors []struct {
		Code    string `json:"errorCode"`
		Message string `json:"message"`
	} `json:"errors"`
}

func runExecWith(t *testing.T, client *testutil.Client, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newExecCommand(&ExecOptions{
		RootOptions: &RootOptions{Format: "json"},
		Client:      client,
	})
	return execute(t, cmd, stdin, args...)
}

func TestExecInsertWithJournalAndMetrics(t *testing.T) {
	dir := t.TempDir()
	catalog := writeFile(t, dir, "catalog.cue", shopCatalog)
	journalPath := filepath.Join(dir, "cqlbridge.db")
	metricsPath := filepath.Join(dir, "metrics.prom")
	client := testutil.NewClient()

	stdout, _, err := runExecWith(t, client, `{"insertOne": {"document": {"sku": "abc", "price": 7}}}`,
		"--catalog", catalog, "-k", "shop", "-t", "skus",
		"--journal", journalPath, "--metrics-file", metricsPath, "-")
	require.NoError(t, err)

	var resp execResponse
	assert.Equal(t, "ok", decodeResponse(t, stdout, &resp).Status)
	assert.Empty(t, resp.Errors)
	assert.Equal(t, []any{[]any{"abc"}}, resp.Status["insertedIds"])

	cql := client.CQL()
	require.Len(t, cql, 1)
	assert.True(t, strings.HasPrefix(cql[0], `INSERT INTO "shop"."skus"`), cql[0])

	metricsText, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), "cqlbridge_tasks_total")

	t.Run("history lists the request", func(t *testing.T) {
		stdout, _, err := runRoot(t, "", "history", "--journal", journalPath, "--format", "json")
		require.NoError(t, err)

		var requests []RequestView
		decodeResponse(t, stdout, &requests)
		require.Len(t, requests, 1)
		assert.Equal(t, "insertOne", requests[0].Command)
		assert.Equal(t, "table shop.skus", requests[0].Target)
		assert.Equal(t, 1, requests[0].Tasks)
		assert.Equal(t, 1, requests[0].Completed)
		assert.Zero(t, requests[0].Failed)

		t.Run("group entries", func(t *testing.T) {
			stdout, _, err := runRoot(t, "", "history", "--journal", journalPath, "--format", "json", requests[0].GroupID)
			require.NoError(t, err)

			var entries []EntryView
			decodeResponse(t, stdout, &entries)
			require.Len(t, entries, 1)
			assert.Equal(t, 0, entries[0].Position)
			assert.Equal(t, "insert", entries[0].Kind)
			assert.Equal(t, "COMPLETED", entries[0].Status)
			assert.Equal(t, 1, entries[0].Attempts)
		})

		t.Run("text", func(t *testing.T) {
			stdout, _, err := runRoot(t, "", "history", "--journal", journalPath)
			require.NoError(t, err)
			assert.Contains(t, stdout, "insertOne on table shop.skus: 1 task(s), 1 completed, 0 failed, 0 skipped")
		})

		t.Run("no failures", func(t *testing.T) {
			stdout, _, err := runRoot(t, "", "history", "--journal", journalPath, "--failures")
			require.NoError(t, err)
			assert.Equal(t, "No tasks recorded.\n", stdout)
		})
	})
}

func TestExecFailedItemsExitNonZero(t *testing.T) {
	dir := t.TempDir()
	catalog := writeFile(t, dir, "catalog.cue", shopCatalog)
	journalPath := filepath.Join(dir, "cqlbridge.db")
	client := testutil.NewClient()
	client.On("INSERT INTO").Fail(driver.NewError(driver.KindUnauthorized, "no permission"))

	stdout, _, err := runExecWith(t, client, `{"insertOne": {"document": {"sku": "abc", "price": 7}}}`,
		"--catalog", catalog, "-k", "shop", "-t", "skus", "--journal", journalPath, "-")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "1 item(s) failed", err.Error())

	var resp execResponse
	decodeResponse(t, stdout, &resp)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "DATABASE_UNAUTHORIZED", resp.Errors[0].Code)

	stdout, _, err = runRoot(t, "", "history", "--journal", journalPath, "--failures", "--format", "json")
	require.NoError(t, err)
	var entries []EntryView
	decodeResponse(t, stdout, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "ERROR", entries[0].Status)
	assert.Equal(t, "DATABASE_UNAUTHORIZED", entries[0].ErrorCode)
}

func TestExecRejectedCommandRunsNothing(t *testing.T) {
	dir := t.TempDir()
	catalog := writeFile(t, dir, "catalog.cue", shopCatalog)
	client := testutil.NewClient()

	stdout, _, err := runExecWith(t, client, `{"countDocuments": {}}`,
		"--catalog", catalog, "-k", "shop", "-t", "skus", "-")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Empty(t, client.Calls())

	resp := decodeResponse(t, stdout, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNSUPPORTED_COMMAND_FOR_TARGET", resp.Error.Code)
}

func TestExecKeyspaceCommand(t *testing.T) {
	client := testutil.NewClient()

	stdout, _, err := runExecWith(t, client, `createKeyspace: {name: shop}`, "-")
	require.NoError(t, err)

	var resp execResponse
	decodeResponse(t, stdout, &resp)
	assert.Equal(t, float64(1), resp.Status["ok"])

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, testutil.OpSchema, calls[0].Op)
	assert.Contains(t, calls[0].Statement.CQL, `CREATE KEYSPACE "shop"`)
}

func TestHistoryErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing journal", func(t *testing.T) {
		stdout, _, err := runRoot(t, "", "history", "--journal", filepath.Join(dir, "none.db"), "--format", "json")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		resp := decodeResponse(t, stdout, nil)
		assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	})

	t.Run("failures with group", func(t *testing.T) {
		_, _, err := runRoot(t, "", "history", "--journal", filepath.Join(dir, "none.db"), "--failures", "g1")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("journal flag required", func(t *testing.T) {
		_, _, err := runRoot(t, "", "history")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"journal" not set`)
	})
}
