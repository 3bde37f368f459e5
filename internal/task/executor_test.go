package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/exhandler"
	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/schema"
	"github.com/roach88/cqlbridge/internal/testutil"
)

func TestOrderedFailFastSkipsRemaining(t *testing.T) {
	client := testutil.NewClient()
	client.On("W2").Fail(driver.NewError(driver.KindInvalidQuery, "Undefined column name nope"))

	g := group(t, true, true, "W0", "W1", "W2", "W3", "W4")
	res, err := newExecutor(t, client).Run(context.Background(), g)
	require.NoError(t, err)

	assert.Equal(t, []Status{StatusCompleted, StatusCompleted, StatusError, StatusSkipped, StatusSkipped}, statuses(res))
	assert.Equal(t, []string{"W0", "W1", "W2"}, client.CQL())

	failed := res.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Position)
	assert.Equal(t, apierr.CodeUnknownTableColumns, failed[0].Error.Code)
	assert.Equal(t, "nope", failed[0].Error.Context["column"])
}

func TestOrderedWithoutFailFastRunsEverything(t *testing.T) {
	client := testutil.NewClient()
	client.On("W1").Fail(driver.NewError(driver.KindSyntax, "bad"))

	g := group(t, true, false, "W0", "W1", "W2")
	res, err := newExecutor(t, client).Run(context.Background(), g)
	require.NoError(t, err)

	assert.Equal(t, []Status{StatusCompleted, StatusError, StatusCompleted}, statuses(res))
	assert.Equal(t, []string{"W0", "W1", "W2"}, client.CQL())
}

func TestUnorderedFailureDoesNotAffectSiblings(t *testing.T) {
	client := testutil.NewClient()
	client.On("W").Respond(testutil.Response{RowSet: driver.RowSet{Applied: true}, Delay: 20 * time.Millisecond})
	client.On("X3").Fail(driver.NewError(driver.KindWriteTimeout, "timed out"))

	g := group(t, false, true, "W0", "W1", "W2", "X3", "W4", "W5")
	res, err := newExecutor(t, client, WithConcurrency(4)).Run(context.Background(), g)
	require.NoError(t, err)

	require.Len(t, res.Items, 6)
	for i, it := range res.Items {
		assert.Equal(t, i, it.Position)
		if i == 3 {
			assert.Equal(t, StatusError, it.Status)
			assert.Equal(t, apierr.CodeDatabaseWriteTimeout, it.Error.Code)
			continue
		}
		assert.Equal(t, StatusCompleted, it.Status)
		assert.Equal(t, int64(1), it.Outcome.Modified)
	}
	assert.Greater(t, client.PeakConcurrency(), 1)
	assert.LessOrEqual(t, client.PeakConcurrency(), 4)
	assert.Equal(t, Outcome{Matched: 5, Modified: 5}, res.Totals())
}

func TestInsertManyPartialSuccess(t *testing.T) {
	client := testutil.NewClient()
	positions := NewPositions()
	b := NewBuilder(positions, orders()).WithHandlerFactory(exhandler.Of(exhandler.TableWrite{}))

	var tasks []*Task
	for i, id := range []string{"a", "b", "c"} {
		var tk *Task
		var err error
		if i == 1 {
			tk, err = b.BuildFailed(apierr.New(apierr.CodeDocumentSchemaViolation, "document does not match the collection schema"))
		} else {
			tk, err = b.WithWork(InsertWork{
				Statement:   driver.Statement{CQL: "INSERT " + id},
				ID:          ir.String(id),
				Conditional: true,
			}).Build()
		}
		require.NoError(t, err)
		tasks = append(tasks, tk)
	}
	g, err := NewGroup(false, false, tasks...)
	require.NoError(t, err)

	res, err := newExecutor(t, client).Run(context.Background(), g)
	require.NoError(t, err)

	assert.Equal(t, []Status{StatusCompleted, StatusError, StatusCompleted}, statuses(res))
	assert.Equal(t, ir.String("a"), res.Items[0].Outcome.InsertedID)
	assert.Equal(t, ir.String("c"), res.Items[2].Outcome.InsertedID)
	assert.Equal(t, apierr.CodeDocumentSchemaViolation, res.Items[1].Error.Code)
	assert.Equal(t, []string{"INSERT a", "INSERT c"}, client.CQL(), "failed builds are never submitted")
}

func TestPreFailedTaskTriggersFailFast(t *testing.T) {
	client := testutil.NewClient()
	positions := NewPositions()
	b := builder(positions)

	t0, _ := b.WithWork(write("W0")).Build()
	t1, _ := b.BuildFailed(apierr.New(apierr.CodeInvalidColumnValue, "bad"))
	t2, _ := b.WithWork(write("W2")).Build()
	g, err := NewGroup(true, true, t0, t1, t2)
	require.NoError(t, err)

	res, err := newExecutor(t, client).Run(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusCompleted, StatusError, StatusSkipped}, statuses(res))
}

func TestPreSkippedTaskTriggersFailFast(t *testing.T) {
	client := testutil.NewClient()
	g := group(t, true, true, "W0", "W1", "W2")
	g.Tasks[1].status = StatusSkipped

	res, err := newExecutor(t, client).Run(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusCompleted, StatusSkipped, StatusSkipped}, statuses(res))
	assert.Equal(t, []string{"W0"}, client.CQL())
}

func TestRetryPolicy(t *testing.T) {
	timeout := driver.NewError(driver.KindWriteTimeout, "timed out")
	policy := RetryPolicy{MaxRetries: 2, Delay: time.Millisecond, Retryable: Transient}

	tests := []struct {
		name     string
		script   func(r *testutil.Rule)
		policy   RetryPolicy
		status   Status
		attempts int
		code     apierr.Code
	}{
		{
			name:     "recovers",
			script:   func(r *testutil.Rule) { r.Fail(timeout).Return(driver.RowSet{Applied: true}) },
			policy:   policy,
			status:   StatusCompleted,
			attempts: 2,
		},
		{
			name:     "exhausted",
			script:   func(r *testutil.Rule) { r.Fail(timeout) },
			policy:   policy,
			status:   StatusError,
			attempts: 3,
			code:     apierr.CodeDatabaseWriteTimeout,
		},
		{
			name:     "not retryable",
			script:   func(r *testutil.Rule) { r.Fail(driver.NewError(driver.KindSyntax, "bad")) },
			policy:   policy,
			status:   StatusError,
			attempts: 1,
			code:     apierr.CodeDatabaseSyntaxError,
		},
		{
			name:     "no retry",
			script:   func(r *testutil.Rule) { r.Fail(timeout).Return(driver.RowSet{Applied: true}) },
			policy:   NoRetry,
			status:   StatusError,
			attempts: 1,
			code:     apierr.CodeDatabaseWriteTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testutil.NewClient()
			tt.script(client.On("W0"))

			tk, err := builder(NewPositions()).WithRetryPolicy(tt.policy).WithWork(write("W0")).Build()
			require.NoError(t, err)
			g, err := NewGroup(true, true, tk)
			require.NoError(t, err)

			res, err := newExecutor(t, client).Run(context.Background(), g)
			require.NoError(t, err)

			it := res.Items[0]
			assert.Equal(t, tt.status, it.Status)
			assert.Equal(t, tt.attempts, it.Attempts)
			assert.Len(t, client.Calls(), tt.attempts)
			if tt.code != "" {
				require.NotNil(t, it.Error)
				assert.Equal(t, tt.code, it.Error.Code)
			}
		})
	}
}

func TestCancelledContextSkipsUnstartedTasks(t *testing.T) {
	for _, ordered := range []bool{true, false} {
		client := testutil.NewClient()
		g := group(t, ordered, false, "W0", "W1")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := newExecutor(t, client).Run(ctx, g)
		require.NoError(t, err)

		assert.Equal(t, []Status{StatusSkipped, StatusSkipped}, statuses(res))
		assert.Empty(t, client.Calls())
	}
}

func TestCancellationDuringOrderedRunStopsSubmission(t *testing.T) {
	client := testutil.NewClient()
	g := group(t, true, false, "W0", "W1", "W2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	observer := ObserverFunc(func(_ string, tk *Task) {
		if tk.Position() == 0 {
			cancel()
		}
	})

	res, err := newExecutor(t, client, WithObserver(observer)).Run(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusCompleted, StatusSkipped, StatusSkipped}, statuses(res))
}

func TestHandlerTranslatesTerminalFailure(t *testing.T) {
	client := testutil.NewClient()
	client.On("DROP INDEX").Fail(driver.NewError(driver.KindInvalidQuery, "Index 'shop.by_total' doesn't exist"))

	tk, err := NewBuilder(NewPositions(), schema.NewKeyspace("shop")).
		WithHandlerFactory(exhandler.Of(exhandler.DropIndex{Keyspace: "shop", Index: "by_total"})).
		WithWork(SchemaWork{Statement: driver.Statement{CQL: `DROP INDEX "shop"."by_total"`}}).
		Build()
	require.NoError(t, err)
	g, err := NewGroup(true, true, tk)
	require.NoError(t, err)

	res, err := newExecutor(t, client).Run(context.Background(), g)
	require.NoError(t, err)

	item := res.Items[0]
	assert.Equal(t, StatusError, item.Status)
	assert.Equal(t, apierr.CodeUnknownIndex, item.Error.Code)
	assert.Equal(t, "by_total", item.Error.Context["index"])
}

func TestPanickingWorkFailsItsTask(t *testing.T) {
	client := testutil.NewClient()
	client.On("scan").Rows(map[string]any{"k": "a"})

	work := ReadModifyWork{
		Read: driver.Statement{CQL: "scan"},
		Mutate: func(map[string]any) (*driver.Statement, error) {
			panic("boom")
		},
	}
	b := builder(NewPositions())
	bad, _ := b.WithWork(work).Build()
	good, _ := b.WithWork(write("W1")).Build()
	g, err := NewGroup(false, false, bad, good)
	require.NoError(t, err)

	res, err := newExecutor(t, client).Run(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusError, StatusCompleted}, statuses(res))
	assert.Equal(t, apierr.CodeServerInternalError, res.Items[0].Error.Code)
	assert.Contains(t, res.Items[0].Error.Message, "boom")
}

func TestObserversSeeEveryTerminalTask(t *testing.T) {
	client := testutil.NewClient()
	client.On("W1").Fail(driver.NewError(driver.KindSyntax, "bad"))

	var (
		mu   sync.Mutex
		seen = map[int]Status{}
	)
	observer := ObserverFunc(func(groupID string, tk *Task) {
		mu.Lock()
		defer mu.Unlock()
		seen[tk.Position()] = tk.Status()
	})

	g := group(t, true, true, "W0", "W1", "W2")
	_, err := newExecutor(t, client, WithObserver(observer)).Run(context.Background(), g)
	require.NoError(t, err)

	assert.Equal(t, map[int]Status{0: StatusCompleted, 1: StatusError, 2: StatusSkipped}, seen)
}

func TestRunRejectsUnfoldableGroup(t *testing.T) {
	_, err := newExecutor(t, testutil.NewClient()).Run(context.Background(), nil)
	assert.True(t, apierr.HasCode(err, apierr.CodeServerInternalError))

	g := &Group{ID: "g", Ordered: true, Tasks: []*Task{{position: 0, target: orders(), status: StatusUninitialized}}}
	_, err = newExecutor(t, testutil.NewClient()).Run(context.Background(), g)
	assert.True(t, apierr.HasCode(err, apierr.CodeServerInternalError))
}
