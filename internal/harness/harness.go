package harness

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/command"
	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/resolve"
	"github.com/roach88/cqlbridge/internal/schema"
	"github.com/roach88/cqlbridge/internal/shred"
	"github.com/roach88/cqlbridge/internal/task"
	"github.com/roach88/cqlbridge/internal/testutil"
)

// emptyCatalog is used when a scenario declares no catalog.
const emptyCatalog = "keyspaces: {}"

// Harness runs the steps of one scenario. Each Run builds a fresh one so
// id sequences and scripted answers start over.
type Harness struct {
	cache    *schema.Cache
	resolver *resolve.Resolver
	executor *task.Executor
	client   *testutil.Client
	tasks    *taskRecorder
}

// Option configures a scenario run.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger passed to the resolver and executor.
// Defaults to discarding everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Run executes a scenario and returns the result.
//
// The returned error reports a scenario that could not be run at all: a
// catalog that does not compile, a step targeting an undeclared table. A
// step that does not meet its expectations fails the result instead.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	h, err := newHarness(scenario, o.logger)
	if err != nil {
		return nil, err
	}
	defer h.executor.Close()

	result := NewResult()
	for i, step := range scenario.Steps {
		trace, err := h.runStep(ctx, &step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Trace = append(result.Trace, *trace)
		for _, msg := range checkExpect(step.Expect, trace) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", i, trace.Command, msg))
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario, logger *slog.Logger) (*Harness, error) {
	src := scenario.Catalog
	if strings.TrimSpace(src) == "" {
		src = emptyCatalog
	}
	catalog, err := schema.CompileCatalog(src)
	if err != nil {
		return nil, fmt.Errorf("failed to compile catalog: %w", err)
	}
	cache, err := schema.NewCache(catalog, 64)
	if err != nil {
		return nil, err
	}

	cfg := resolve.DefaultConfig()
	cfg.ReadRetry.Delay = 0
	cfg.WriteRetry.Delay = 0
	cfg.SchemaRetry.Delay = 0
	resolver, err := resolve.New(cfg,
		resolve.WithLogger(logger),
		resolve.WithShredOptions(
			shred.WithIDGenerator(testutil.NewSequence("doc").DocumentID),
			shred.WithTxIDGenerator(testutil.TxIDs()),
		),
	)
	if err != nil {
		return nil, err
	}

	client, err := scriptClient(scenario.Client)
	if err != nil {
		return nil, err
	}

	// One worker keeps unordered groups in submission order.
	tasks := &taskRecorder{byGroup: make(map[string][]TaskTrace)}
	executor, err := task.NewExecutor(client,
		task.WithLogger(logger),
		task.WithConcurrency(1),
		task.WithObserver(tasks),
	)
	if err != nil {
		return nil, err
	}

	return &Harness{
		cache:    cache,
		resolver: resolver,
		executor: executor,
		client:   client,
		tasks:    tasks,
	}, nil
}

// runStep resolves and executes one command.
func (h *Harness) runStep(ctx context.Context, step *Step) (*StepTrace, error) {
	obj, err := h.target(ctx, step.Target)
	if err != nil {
		return nil, err
	}
	trace := &StepTrace{
		Target:     obj.String(),
		Statements: []StatementTrace{},
		Tasks:      []TaskTrace{},
	}

	cmd, err := command.DecodeNode(&step.Command)
	if err != nil {
		trace.Command = commandName(&step.Command)
		trace.Rejected = string(apierr.From(err).Code)
		return trace, nil
	}
	trace.Command = string(cmd.Name)

	op, err := h.resolver.Resolve(cmd, obj)
	if err != nil {
		trace.Rejected = string(apierr.From(err).Code)
		return trace, nil
	}

	before := len(h.client.Calls())
	resp, err := op.Execute(ctx, h.executor)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", cmd.Name, err)
	}

	for _, call := range h.client.Calls()[before:] {
		trace.Statements = append(trace.Statements, StatementTrace{Op: string(call.Op), CQL: call.Statement.CQL})
	}
	trace.Tasks = h.tasks.take(op.Group().ID)

	trace.Response, err = traceResponse(resp)
	if err != nil {
		return nil, err
	}
	return trace, nil
}

// target resolves "", "ks" or "ks.name".
func (h *Harness) target(ctx context.Context, name string) (*schema.Object, error) {
	if name == "" {
		return schema.NewDatabase(), nil
	}
	ks, rest, qualified := strings.Cut(name, ".")
	if !qualified {
		return schema.NewKeyspace(ks), nil
	}
	obj, err := h.cache.Get(ctx, "", ks, rest)
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", name, err)
	}
	return obj, nil
}

// commandName is the top level key of a command document that failed to
// decode, or "" when there is none.
func commandName(n *yaml.Node) string {
	if len(n.Content) == 0 {
		return ""
	}
	return n.Content[0].Value
}

// traceResponse reduces a response to its stable parts. Status values go
// through JSON so typed slices and ir values compare alike.
func traceResponse(resp *resolve.Response) (*ResponseTrace, error) {
	out := &ResponseTrace{Warnings: resp.Warnings}
	if len(resp.Status) > 0 {
		data, err := json.Marshal(resp.Status)
		if err != nil {
			return nil, fmt.Errorf("encode status: %w", err)
		}
		if out.Status, err = ir.UnmarshalObject(data); err != nil {
			return nil, fmt.Errorf("decode status: %w", err)
		}
	}
	if resp.Data != nil {
		out.Document = resp.Data.Document
		out.Documents = resp.Data.Documents
		out.PageState = resp.Data.NextPageState
	}
	for _, e := range resp.Errors {
		out.Errors = append(out.Errors, string(e.Code))
	}
	return out, nil
}

// checkExpect compares a step trace to its expectations.
func checkExpect(exp *Expect, trace *StepTrace) []string {
	if exp == nil {
		if trace.Rejected != "" {
			return []string{fmt.Sprintf("unexpected rejection %s", trace.Rejected)}
		}
		return nil
	}

	if exp.Rejected != "" || trace.Rejected != "" {
		if exp.Rejected != trace.Rejected {
			return []string{fmt.Sprintf("expected rejection %q, got %q", exp.Rejected, trace.Rejected)}
		}
		return nil
	}

	var problems []string
	resp := trace.Response
	if exp.Errors != nil && !slices.Equal(exp.Errors, resp.Errors) {
		problems = append(problems, fmt.Sprintf("expected errors %v, got %v", exp.Errors, resp.Errors))
	}
	for _, key := range sortedKeys(exp.Status) {
		want, err := ir.FromNative(exp.Status[key])
		if err != nil {
			problems = append(problems, fmt.Sprintf("status.%s: %v", key, err))
			continue
		}
		got, ok := resp.Status[key]
		if !ok {
			problems = append(problems, fmt.Sprintf("status.%s: missing", key))
			continue
		}
		wantJSON, gotJSON := ir.MustMarshalCanonical(want), ir.MustMarshalCanonical(got)
		if !bytes.Equal(wantJSON, gotJSON) {
			problems = append(problems, fmt.Sprintf("status.%s: expected %s, got %s", key, wantJSON, gotJSON))
		}
	}
	if exp.Documents != nil {
		n := len(resp.Documents)
		if resp.Document != nil {
			n = 1
		}
		if n != *exp.Documents {
			problems = append(problems, fmt.Sprintf("expected %d documents, got %d", *exp.Documents, n))
		}
	}
	return problems
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// scriptClient builds the scripted client from the scenario rules.
func scriptClient(rules []ClientRule) (*testutil.Client, error) {
	client := testutil.NewClient()
	for i, rule := range rules {
		r := client.On(rule.Match)
		if rule.Op != "" {
			r.For(testutil.Op(rule.Op))
		}
		if rule.ValuesContain != "" {
			needle := rule.ValuesContain
			r.Where(func(s driver.Statement) bool {
				return strings.Contains(fmt.Sprint(s.Values), needle)
			})
		}
		for j, resp := range rule.Responses {
			scripted, err := scriptResponse(resp)
			if err != nil {
				return nil, fmt.Errorf("client[%d].responses[%d]: %w", i, j, err)
			}
			r.Respond(scripted)
		}
	}
	return client, nil
}

func scriptResponse(resp ClientResponse) (testutil.Response, error) {
	if resp.Error != "" {
		return testutil.Response{Err: driver.NewError(driver.ErrorKind(resp.Error), "%s", resp.Message)}, nil
	}
	rs := driver.RowSet{Rows: resp.Rows, Applied: true}
	if resp.Applied != nil {
		rs.Applied = *resp.Applied
	}
	if resp.PageState != "" {
		state, err := base64.StdEncoding.DecodeString(resp.PageState)
		if err != nil {
			return testutil.Response{}, fmt.Errorf("page_state must be base64: %w", err)
		}
		rs.PageState = state
	}
	return testutil.Response{RowSet: rs}, nil
}

// taskRecorder collects terminal task states per group.
type taskRecorder struct {
	mu      sync.Mutex
	byGroup map[string][]TaskTrace
}

// TaskFinished implements task.Observer.
func (r *taskRecorder) TaskFinished(groupID string, t *task.Task) {
	tt := TaskTrace{Position: t.Position(), Kind: t.Kind(), Status: string(t.Status())}
	if err := t.Err(); err != nil {
		tt.Code = string(err.Code)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byGroup[groupID] = append(r.byGroup[groupID], tt)
}

// take removes and returns the tasks of a group in position order.
func (r *taskRecorder) take(groupID string) []TaskTrace {
	r.mu.Lock()
	defer r.mu.Unlock()
	tasks := r.byGroup[groupID]
	delete(r.byGroup, groupID)
	slices.SortFunc(tasks, func(a, b TaskTrace) int { return a.Position - b.Position })
	if tasks == nil {
		tasks = []TaskTrace{}
	}
	return tasks
}
