package resolve

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/roach88/cqlbridge/internal/analyzer"
	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/command"
	"github.com/roach88/cqlbridge/internal/cql"
	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/exhandler"
	"github.com/roach88/cqlbridge/internal/filter"
	"github.com/roach88/cqlbridge/internal/schema"
	"github.com/roach88/cqlbridge/internal/shred"
	"github.com/roach88/cqlbridge/internal/task"
)

// Retry is the retry budget of one class of statements.
type Retry struct {
	MaxRetries int
	Delay      time.Duration
}

// Config holds the limits and retry settings applied during resolution.
type Config struct {
	// PageSize is the default number of rows per page for reads.
	PageSize int

	// MaxInsertManyDocuments bounds the documents of one insertMany.
	MaxInsertManyDocuments int

	// MaxWriteManyDocuments bounds the documents one updateMany or
	// deleteMany touches on a collection before reporting moreData.
	MaxWriteManyDocuments int

	// MaxInMemorySortRows bounds the rows read for a sort the store cannot do.
	MaxInMemorySortRows int

	// MaxCountLimit bounds countDocuments.
	MaxCountLimit int

	// MaxConflicts is how often a collection write is retried after a
	// concurrent modification of the same document.
	MaxConflicts int

	ReadRetry   Retry
	WriteRetry  Retry
	SchemaRetry Retry

	// Replication is used by createKeyspace when the command has none.
	Replication map[string]string
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		PageSize:               20,
		MaxInsertManyDocuments: 100,
		MaxWriteManyDocuments:  20,
		MaxInMemorySortRows:    10000,
		MaxCountLimit:          1000,
		MaxConflicts:           3,
		ReadRetry:              Retry{MaxRetries: 1, Delay: 10 * time.Millisecond},
		WriteRetry:             Retry{MaxRetries: 2, Delay: 50 * time.Millisecond},
		SchemaRetry:            Retry{MaxRetries: 2, Delay: 500 * time.Millisecond},
		Replication:            map[string]string{"class": "SimpleStrategy", "replication_factor": "1"},
	}
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value int
	}{
		{"PageSize", c.PageSize},
		{"MaxInsertManyDocuments", c.MaxInsertManyDocuments},
		{"MaxWriteManyDocuments", c.MaxWriteManyDocuments},
		{"MaxInMemorySortRows", c.MaxInMemorySortRows},
		{"MaxCountLimit", c.MaxCountLimit},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("resolve config: %s must be positive, got %d", p.name, p.value)
		}
	}
	if c.MaxConflicts < 0 {
		return fmt.Errorf("resolve config: MaxConflicts must not be negative, got %d", c.MaxConflicts)
	}
	for name, r := range map[string]Retry{"ReadRetry": c.ReadRetry, "WriteRetry": c.WriteRetry, "SchemaRetry": c.SchemaRetry} {
		if r.MaxRetries < 0 || r.Delay < 0 {
			return fmt.Errorf("resolve config: %s must not be negative", name)
		}
	}
	return nil
}

// Resolver builds operations. It is stateless apart from its
// configuration and safe for concurrent use.
type Resolver struct {
	cfg       Config
	logger    *slog.Logger
	shredOpts []shred.Option
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithShredOptions passes options to every document shredder, typically
// deterministic id generators in tests.
func WithShredOptions(opts ...shred.Option) Option {
	return func(r *Resolver) {
		r.shredOpts = append(r.shredOpts, opts...)
	}
}

// New creates a Resolver.
func New(cfg Config, opts ...Option) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Resolver{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// resolveFunc resolves one command name for one target kind.
type resolveFunc func(r *Resolver, cmd *command.Command, obj *schema.Object) (*Operation, error)

// Resolve builds the operation for cmd against obj. Errors are always
// *apierr.Error; nothing has been sent to the database when one is returned.
func (r *Resolver) Resolve(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	if cmd == nil || obj == nil {
		return nil, apierr.Internal("resolve: command and target are required")
	}

	var commands map[command.Name]resolveFunc
	switch obj.Kind {
	case schema.KindCollection:
		commands = collectionCommands
	case schema.KindTable:
		commands = tableCommands
	case schema.KindKeyspace:
		commands = keyspaceCommands
	case schema.KindDatabase:
		commands = databaseCommands
	default:
		return nil, apierr.Internal("resolve: unknown target kind %q", obj.Kind)
	}

	fn, ok := commands[cmd.Name]
	if !ok {
		return nil, unsupported(cmd.Name, obj.Kind, commands)
	}
	op, err := fn(r, cmd, obj)
	if err != nil {
		r.logger.Debug("command rejected", "command", cmd.Name, "target", obj.String(), "error", err)
		return nil, apierr.From(err)
	}

	r.logger.Debug("command resolved",
		"command", cmd.Name,
		"target", obj.String(),
		"group", op.group.ID,
		"tasks", op.group.Len(),
		"ordered", op.group.Ordered)
	return op, nil
}

// Supported returns the command names accepted for a target kind, sorted.
func Supported(kind schema.Kind) []command.Name {
	switch kind {
	case schema.KindCollection:
		return names(collectionCommands)
	case schema.KindTable:
		return names(tableCommands)
	case schema.KindKeyspace:
		return names(keyspaceCommands)
	case schema.KindDatabase:
		return names(databaseCommands)
	}
	return nil
}

func names(commands map[command.Name]resolveFunc) []command.Name {
	return slices.Sorted(maps.Keys(commands))
}

func unsupported(name command.Name, kind schema.Kind, commands map[command.Name]resolveFunc) error {
	supported := names(commands)
	list := make([]string, len(supported))
	for i, n := range supported {
		list[i] = string(n)
	}
	return apierr.New(apierr.CodeUnsupportedCommandForTarget,
		"command %q is not supported on a %s; supported commands: %s", name, kind, strings.Join(list, ", ")).
		With("command", string(name)).
		With("target", string(kind)).
		With("supported", strings.Join(list, ","))
}

// where builds the filter expression of a clause and analyses it.
func where(obj *schema.Object, clause *command.Clause, stmt analyzer.Statement) (*filter.Expression, analyzer.Result, error) {
	expr, err := filter.Build(obj, clause)
	if err != nil {
		return nil, analyzer.Result{}, err
	}
	res, err := analyzer.Analyze(obj, expr, stmt)
	if err != nil {
		return nil, analyzer.Result{}, err
	}
	return expr, res, nil
}

// compile turns a query into a statement. Typed errors raised while
// binding values pass through; anything else is a defect.
func compile(q cql.Query) (driver.Statement, error) {
	stmt, err := cql.Compile(q)
	if err != nil {
		if ae, ok := apierr.As(err); ok {
			return driver.Statement{}, ae
		}
		return driver.Statement{}, apierr.Internal("compile statement: %v", err)
	}
	return stmt, nil
}

func policy(r Retry, retryable func(error) bool) task.RetryPolicy {
	return task.RetryPolicy{MaxRetries: r.MaxRetries, Delay: r.Delay, Retryable: retryable}
}

func (r *Resolver) readPolicy() task.RetryPolicy {
	return policy(r.cfg.ReadRetry, task.Transient)
}

// writePolicy retries idempotent writes only. A lightweight transaction
// that timed out may have been applied, so repeating it could report a
// conflict with itself.
func (r *Resolver) writePolicy(stmt driver.Statement) task.RetryPolicy {
	if !stmt.Idempotent {
		return task.NoRetry
	}
	return policy(r.cfg.WriteRetry, task.Transient)
}

func (r *Resolver) schemaPolicy() task.RetryPolicy {
	return policy(r.cfg.SchemaRetry, task.SchemaTransient)
}

// single wraps one task in a group.
func single(b task.Builder, w task.Work) (*task.Group, error) {
	t, err := b.WithWork(w).Build()
	if err != nil {
		return nil, apierr.Internal("build task: %v", err)
	}
	g, err := task.NewGroup(true, true, t)
	if err != nil {
		return nil, apierr.Internal("build group: %v", err)
	}
	return g, nil
}

// readOnly builds a one statement read operation against any target.
func (r *Resolver) readOnly(cmd *command.Command, obj *schema.Object, stmt driver.Statement, factory exhandler.Factory, shape shapeFunc) (*Operation, error) {
	b := task.NewBuilder(task.NewPositions(), obj).
		WithRetryPolicy(r.readPolicy()).
		WithHandlerFactory(factory)
	g, err := single(b, task.ReadWork{Statement: stmt, Exhaust: true})
	if err != nil {
		return nil, err
	}
	return newOperation(cmd, obj, g, shape), nil
}

// ddl builds a one statement schema change.
func (r *Resolver) ddl(cmd *command.Command, obj *schema.Object, q cql.Query, h exhandler.Handler) (*Operation, error) {
	stmt, err := compile(q)
	if err != nil {
		return nil, err
	}
	b := task.NewBuilder(task.NewPositions(), obj).
		WithRetryPolicy(r.schemaPolicy()).
		WithHandlerFactory(exhandler.Of(h))
	g, err := single(b, task.SchemaWork{Statement: stmt})
	if err != nil {
		return nil, err
	}
	return newOperation(cmd, obj, g, shapeOK), nil
}

func invalidCommand(format string, args ...any) *apierr.Error {
	return apierr.New(apierr.CodeInvalidCommand, format, args...)
}
