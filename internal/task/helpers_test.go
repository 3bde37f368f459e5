package task

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/exhandler"
	"github.com/roach88/cqlbridge/internal/schema"
)

func orders() *schema.Object {
	return &schema.Object{Kind: schema.KindTable, Keyspace: "shop", Name: "orders"}
}

func newExecutor(t *testing.T, c driver.Client, opts ...Option) *Executor {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	e, err := NewExecutor(c, opts...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func builder(positions *Positions) Builder {
	return NewBuilder(positions, orders()).WithHandlerFactory(exhandler.Of(exhandler.TableWrite{}))
}

func write(cql string) Work {
	return WriteWork{Statement: driver.Statement{CQL: cql}, Effect: Outcome{Matched: 1, Modified: 1}}
}

// group builds one write task per statement, in order.
func group(t *testing.T, ordered, failFast bool, cqls ...string) *Group {
	t.Helper()
	positions := NewPositions()
	b := builder(positions)
	var tasks []*Task
	for _, cql := range cqls {
		tk, err := b.WithWork(write(cql)).Build()
		require.NoError(t, err)
		tasks = append(tasks, tk)
	}
	g, err := NewGroup(ordered, failFast, tasks...)
	require.NoError(t, err)
	return g
}

func statuses(r *Result) []Status {
	out := make([]Status, len(r.Items))
	for i, it := range r.Items {
		out[i] = it.Status
	}
	return out
}
