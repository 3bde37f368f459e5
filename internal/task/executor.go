package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/exhandler"
)

// DefaultConcurrency bounds the tasks of an unordered group in flight.
const DefaultConcurrency = 16

// Executor runs groups against a client. It owns every status transition
// of a task once the task is built.
//
// Thread-safety: Run may be called concurrently; groups must not be
// shared between concurrent runs.
type Executor struct {
	client      driver.Client
	pool        *ants.Pool
	logger      *slog.Logger
	observers   []Observer
	concurrency int
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(e *Executor) { e.observers = append(e.observers, o) }
}

// WithConcurrency sets the worker pool size for unordered groups.
func WithConcurrency(n int) Option {
	return func(e *Executor) { e.concurrency = n }
}

// NewExecutor creates an executor. Close releases its worker pool.
func NewExecutor(client driver.Client, opts ...Option) (*Executor, error) {
	if client == nil {
		return nil, errors.New("executor needs a client")
	}
	e := &Executor{
		client:      client,
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.concurrency <= 0 {
		e.concurrency = DefaultConcurrency
	}

	pool, err := ants.NewPool(e.concurrency, ants.WithPanicHandler(func(v any) {
		e.logger.Error("task worker panic", "panic", v)
	}))
	if err != nil {
		return nil, err
	}
	e.pool = pool
	return e, nil
}

// Close releases the worker pool.
func (e *Executor) Close() {
	e.pool.Release()
}

// Run executes every runnable task of g and folds the results.
//
// Per-task failures never fail Run; they are reported on their items.
// Run returns an error only if the group could not be folded. A done
// context stops submission: tasks not yet started end SKIPPED. Tasks
// already submitted run to completion.
func (e *Executor) Run(ctx context.Context, g *Group) (*Result, error) {
	if g == nil {
		return nil, apierr.Internal("run of nil group")
	}
	start := time.Now()
	e.logger.Debug("group starting",
		"group", g.ID,
		"tasks", len(g.Tasks),
		"ordered", g.Ordered,
		"fail_fast", g.ShouldFailFast(),
	)

	if g.Ordered {
		e.runOrdered(ctx, g)
	} else {
		e.runUnordered(ctx, g)
	}

	acc := NewAccumulator(g.ID)
	for _, t := range g.Tasks {
		if err := acc.Fold(t); err != nil {
			return nil, err
		}
	}
	res := acc.Result()

	e.logger.Info("group finished",
		"group", g.ID,
		"completed", res.Completed(),
		"failed", len(res.Failed()),
		"duration", time.Since(start),
	)
	return res, nil
}

func (e *Executor) runOrdered(ctx context.Context, g *Group) {
	stopped := false
	for _, t := range g.Tasks {
		if t.status.Terminal() {
			e.notify(g, t)
			if (t.status == StatusError || t.status == StatusSkipped) && g.ShouldFailFast() {
				stopped = true
			}
			continue
		}
		if t.status != StatusReady {
			// Left for the accumulator to reject.
			continue
		}
		if stopped || ctx.Err() != nil {
			e.skip(g, t)
			continue
		}

		e.execute(ctx, g, t)
		if t.status == StatusError && g.ShouldFailFast() {
			stopped = true
		}
	}
}

func (e *Executor) runUnordered(ctx context.Context, g *Group) {
	var wg sync.WaitGroup
	for _, t := range g.Tasks {
		if t.status.Terminal() {
			e.notify(g, t)
			continue
		}
		if t.status != StatusReady {
			continue
		}
		if ctx.Err() != nil {
			e.skip(g, t)
			continue
		}

		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			e.execute(ctx, g, t)
		})
		if err != nil {
			wg.Done()
			t.fail(apierr.Internal("could not schedule %s: %v", t, err))
			e.notify(g, t)
		}
	}
	wg.Wait()
}

// execute runs one task to a terminal state, retrying per its policy.
func (e *Executor) execute(ctx context.Context, g *Group, t *Task) {
	start := time.Now()
	t.status = StatusInProgress
	defer func() {
		if r := recover(); r != nil {
			t.fail(apierr.Internal("%s panicked: %v", t, r))
		}
		t.elapsed = time.Since(start)
		e.notify(g, t)
	}()

	for retries := 0; ; retries++ {
		t.attempts++
		out, err := t.work.run(ctx, e.client)
		t.outcome = out
		if err == nil {
			t.status = StatusCompleted
			return
		}
		if !t.retry.allows(err, retries) {
			t.fail(t.translate(err))
			return
		}

		e.logger.Warn("retrying task",
			"group", g.ID,
			"position", t.position,
			"kind", t.Kind(),
			"attempt", t.attempts,
			"error", err,
		)
		if werr := wait(ctx, t.retry.Delay); werr != nil {
			t.fail(t.translate(err))
			return
		}
	}
}

func (e *Executor) skip(g *Group, t *Task) {
	t.status = StatusSkipped
	e.notify(g, t)
}

func (e *Executor) notify(g *Group, t *Task) {
	switch t.status {
	case StatusError:
		e.logger.Warn("task failed",
			"group", g.ID,
			"position", t.position,
			"kind", t.Kind(),
			"target", t.target.String(),
			"code", t.err.Code,
			"attempts", t.attempts,
		)
	default:
		e.logger.Debug("task finished",
			"group", g.ID,
			"position", t.position,
			"kind", t.Kind(),
			"status", t.status,
			"attempts", t.attempts,
		)
	}
	for _, o := range e.observers {
		o.TaskFinished(g.ID, t)
	}
}

func (t *Task) fail(err *apierr.Error) {
	t.status = StatusError
	t.err = err
}

// translate runs the task's exception handler over a terminal failure.
func (t *Task) translate(err error) *apierr.Error {
	h := t.handler
	if h == nil {
		h = exhandler.Default{}
	}
	if out := apierr.From(h.Handle(t.target, err)); out != nil {
		return out
	}
	return apierr.Internal("%s: handler discarded failure: %v", t, err)
}
