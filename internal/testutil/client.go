// Package testutil provides deterministic stand-ins for the database and
// id sources, used by package tests and the scenario harness.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/roach88/cqlbridge/internal/driver"
)

// Op names the client method a statement went through.
type Op string

const (
	OpRead   Op = "read"
	OpWrite  Op = "write"
	OpSchema Op = "schema"
)

// Call is one recorded statement.
type Call struct {
	Op        Op
	Statement driver.Statement
}

// Response is one scripted answer.
type Response struct {
	RowSet driver.RowSet
	Err    error

	// Delay holds the call before answering. Honours the context.
	Delay time.Duration
}

// Rule scripts the answers for statements containing a CQL fragment.
// Answers are consumed in order; the last one repeats.
type Rule struct {
	op        Op
	fragment  string
	match     func(driver.Statement) bool
	responses []Response
	next      int
}

// For restricts the rule to one client method.
func (r *Rule) For(op Op) *Rule {
	r.op = op
	return r
}

// Where adds a predicate over the whole statement.
func (r *Rule) Where(match func(driver.Statement) bool) *Rule {
	r.match = match
	return r
}

// Return queues a successful answer.
func (r *Rule) Return(rs driver.RowSet) *Rule {
	r.responses = append(r.responses, Response{RowSet: rs})
	return r
}

// Rows queues an answer with the given rows.
func (r *Rule) Rows(rows ...map[string]any) *Rule {
	return r.Return(driver.RowSet{Rows: rows, Applied: true})
}

// Fail queues a failure.
func (r *Rule) Fail(err error) *Rule {
	r.responses = append(r.responses, Response{Err: err})
	return r
}

// Respond queues a fully specified answer.
func (r *Rule) Respond(resp Response) *Rule {
	r.responses = append(r.responses, resp)
	return r
}

func (r *Rule) matches(op Op, stmt driver.Statement) bool {
	if r.op != "" && r.op != op {
		return false
	}
	if !strings.Contains(stmt.CQL, r.fragment) {
		return false
	}
	return r.match == nil || r.match(stmt)
}

func (r *Rule) take() Response {
	if len(r.responses) == 0 {
		return Response{RowSet: driver.RowSet{Applied: true}}
	}
	resp := r.responses[r.next]
	if r.next < len(r.responses)-1 {
		r.next++
	}
	return resp
}

// Client is a scripted driver.Client. Rules are tried in registration
// order. Unmatched statements succeed with an empty, applied row set
// unless the client is strict.
//
// Thread-safety: safe for concurrent use.
type Client struct {
	mu       sync.Mutex
	rules    []*Rule
	calls    []Call
	strict   bool
	inFlight int
	peak     int
}

// NewClient creates an empty scripted client.
func NewClient() *Client {
	return &Client{}
}

// Strict makes unmatched statements fail.
func (c *Client) Strict() *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strict = true
	return c
}

// On registers a rule for statements whose CQL contains fragment.
// An empty fragment matches everything.
func (c *Client) On(fragment string) *Rule {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := &Rule{fragment: fragment}
	c.rules = append(c.rules, r)
	return r
}

// ExecuteRead implements driver.Client.
func (c *Client) ExecuteRead(ctx context.Context, stmt driver.Statement) (*driver.RowSet, error) {
	return c.execute(ctx, OpRead, stmt)
}

// ExecuteWrite implements driver.Client.
func (c *Client) ExecuteWrite(ctx context.Context, stmt driver.Statement) (*driver.RowSet, error) {
	return c.execute(ctx, OpWrite, stmt)
}

// ExecuteSchemaChange implements driver.Client.
func (c *Client) ExecuteSchemaChange(ctx context.Context, stmt driver.Statement) (*driver.RowSet, error) {
	return c.execute(ctx, OpSchema, stmt)
}

func (c *Client) execute(ctx context.Context, op Op, stmt driver.Statement) (*driver.RowSet, error) {
	resp, err := c.begin(op, stmt)
	defer c.end()
	if err != nil {
		return nil, err
	}

	if resp.Delay > 0 {
		timer := time.NewTimer(resp.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, driver.Translate(ctx.Err())
		case <-timer.C:
		}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	rs := resp.RowSet
	return &rs, nil
}

func (c *Client) begin(op Op, stmt driver.Statement) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, Call{Op: op, Statement: stmt})
	c.inFlight++
	c.peak = max(c.peak, c.inFlight)

	for _, r := range c.rules {
		if r.matches(op, stmt) {
			return r.take(), nil
		}
	}
	if c.strict {
		return Response{}, fmt.Errorf("testutil: unscripted %s statement: %s", op, stmt.CQL)
	}
	return Response{RowSet: driver.RowSet{Applied: true}}, nil
}

func (c *Client) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight--
}

// Calls returns the statements executed so far, in arrival order.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CQL returns the text of every executed statement in arrival order.
func (c *Client) CQL() []string {
	calls := c.Calls()
	out := make([]string, len(calls))
	for i, call := range calls {
		out[i] = call.Statement.CQL
	}
	return out
}

// PeakConcurrency is the largest number of statements seen in flight at once.
func (c *Client) PeakConcurrency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

// Reset forgets recorded calls. Rules are kept and rewound.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
	c.peak = 0
	for _, r := range c.rules {
		r.next = 0
	}
}

var _ driver.Client = (*Client)(nil)
