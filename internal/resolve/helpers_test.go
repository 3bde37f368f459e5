package resolve

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/cqlbridge/internal/command"
	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/schema"
	"github.com/roach88/cqlbridge/internal/shred"
	"github.com/roach88/cqlbridge/internal/task"
	"github.com/roach88/cqlbridge/internal/testutil"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// people is partitioned by city, clustered by name ascending then born
// descending, with an index on email.
func people() *schema.Object {
	return &schema.Object{
		Kind:     schema.KindTable,
		Keyspace: "town",
		Name:     "people",
		Columns: []schema.Column{
			{Name: "city", Type: schema.MustParseType("text")},
			{Name: "name", Type: schema.MustParseType("text")},
			{Name: "born", Type: schema.MustParseType("int")},
			{Name: "age", Type: schema.MustParseType("int")},
			{Name: "email", Type: schema.MustParseType("text")},
			{Name: "tags", Type: schema.MustParseType("set<text>")},
			{Name: "scores", Type: schema.MustParseType("map<text, int>")},
		},
		PrimaryKey: schema.PrimaryKey{
			Partition: []string{"city"},
			Clustering: []schema.ClusteringColumn{
				{Column: "name"},
				{Column: "born", Descending: true},
			},
		},
		Indexes: []schema.Index{{Name: "people_email", Column: "email"}},
	}
}

func users() *schema.Object {
	return schema.NewCollection("town", "users", nil)
}

func decode(t *testing.T, doc string) *command.Command {
	t.Helper()
	cmd, err := command.Decode([]byte(doc))
	require.NoError(t, err)
	return cmd
}

func newResolver(t *testing.T, opts ...Option) *Resolver {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ReadRetry.Delay = 0
	cfg.WriteRetry.Delay = 0
	cfg.SchemaRetry.Delay = 0
	opts = append([]Option{
		WithLogger(quiet()),
		WithShredOptions(
			shred.WithIDGenerator(testutil.NewSequence("doc").DocumentID),
			shred.WithTxIDGenerator(testutil.TxIDs()),
		),
	}, opts...)
	r, err := New(cfg, opts...)
	require.NoError(t, err)
	return r
}

func newExecutor(t *testing.T, c driver.Client) *task.Executor {
	t.Helper()
	e, err := task.NewExecutor(c, task.WithLogger(quiet()))
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

// run resolves doc against obj and executes it on client.
func run(t *testing.T, client *testutil.Client, obj *schema.Object, doc string) (*Operation, *Response) {
	t.Helper()
	op, err := newResolver(t).Resolve(decode(t, doc), obj)
	require.NoError(t, err)
	resp, err := op.Execute(context.Background(), newExecutor(t, client))
	require.NoError(t, err)
	return op, resp
}

// storedDocument is a collection row as the store returns it.
func storedDocument(key []any, txID, docJSON string) map[string]any {
	return map[string]any{
		schema.ColKey:     key,
		schema.ColTxID:    txID,
		schema.ColDocJSON: docJSON,
	}
}
