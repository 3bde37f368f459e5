package task

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/cqlbridge/internal/analyzer"
	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/exhandler"
	"github.com/roach88/cqlbridge/internal/schema"
)

// Task is one unit of work against one schema object.
// Identity is (Position, Target).
type Task struct {
	position int
	target   *schema.Object
	work     Work
	retry    RetryPolicy
	handler  exhandler.Handler
	analysis analyzer.Result

	status   Status
	err      *apierr.Error
	outcome  Outcome
	attempts int
	elapsed  time.Duration
}

// Position is the task's permanent index within its request.
func (t *Task) Position() int { return t.position }

// Target is the schema object the task operates on.
func (t *Task) Target() *schema.Object { return t.target }

// Work returns the operation. Nil for tasks created by BuildFailed.
func (t *Task) Work() Work { return t.work }

// Kind names the work variant, or "failed" for a task that never had work.
func (t *Task) Kind() string {
	if t.work == nil {
		return "failed"
	}
	return t.work.Kind()
}

// Analysis is the where-clause verdict the task was built with.
func (t *Task) Analysis() analyzer.Result { return t.analysis }

// Status returns the lifecycle state.
func (t *Task) Status() Status { return t.status }

// Err returns the captured failure of an ERROR task.
func (t *Task) Err() *apierr.Error { return t.err }

// Outcome returns what the task produced, including partial counters of
// a failed task.
func (t *Task) Outcome() Outcome { return t.outcome }

// Attempts is the number of times the work was run.
func (t *Task) Attempts() int { return t.attempts }

// Elapsed is the wall time spent running the task, retries included.
func (t *Task) Elapsed() time.Duration { return t.elapsed }

// String identifies the task in logs.
func (t *Task) String() string {
	return fmt.Sprintf("task %d (%s on %s)", t.position, t.Kind(), t.target)
}

// ErrIncomplete is returned when a builder lacks a required property.
var ErrIncomplete = errors.New("task builder incomplete")

// Builder assembles tasks. It is a value: each With method returns a
// modified copy, so a configured builder can be shared by every item of
// a bulk command and specialised per item.
//
//	base := task.NewBuilder(positions, obj).
//		WithRetryPolicy(writes).
//		WithHandlerFactory(exhandler.Of(exhandler.TableWrite{}))
//	for _, doc := range docs {
//		t, err := base.WithWork(insertFor(doc)).Build()
//		...
//	}
type Builder struct {
	positions *Positions
	target    *schema.Object
	retry     RetryPolicy
	factory   exhandler.Factory
	analysis  analyzer.Result
	work      Work
}

// NewBuilder starts a builder for tasks on target, numbered by positions.
func NewBuilder(positions *Positions, target *schema.Object) Builder {
	return Builder{positions: positions, target: target, retry: NoRetry}
}

// WithRetryPolicy sets the retry policy. Defaults to NoRetry.
func (b Builder) WithRetryPolicy(p RetryPolicy) Builder {
	b.retry = p
	return b
}

// WithHandlerFactory sets the factory of the task's exception handler.
func (b Builder) WithHandlerFactory(f exhandler.Factory) Builder {
	b.factory = f
	return b
}

// WithAnalysis attaches the where-clause verdict.
func (b Builder) WithAnalysis(r analyzer.Result) Builder {
	b.analysis = r
	return b
}

// WithWork sets the operation.
func (b Builder) WithWork(w Work) Builder {
	b.work = w
	return b
}

// Build returns a READY task with the next position. Positions, target,
// handler factory and work are required; a missing one fails with
// ErrIncomplete and consumes no position.
func (b Builder) Build() (*Task, error) {
	if err := b.check(true); err != nil {
		return nil, err
	}
	return &Task{
		position: b.positions.Next(),
		target:   b.target,
		work:     b.work,
		retry:    b.retry,
		handler:  b.factory(b.target),
		analysis: b.analysis,
		status:   StatusReady,
	}, nil
}

// BuildFailed returns an ERROR task carrying cause, for an item that
// failed before it could become work (a document that does not shred, a
// row that does not convert). The task keeps its position so the failure
// is reported against the right input item; it is never submitted.
func (b Builder) BuildFailed(cause error) (*Task, error) {
	if err := b.check(false); err != nil {
		return nil, err
	}
	if cause == nil {
		return nil, fmt.Errorf("%w: failed task without a cause", ErrIncomplete)
	}
	return &Task{
		position: b.positions.Next(),
		target:   b.target,
		retry:    b.retry,
		analysis: b.analysis,
		status:   StatusError,
		err:      apierr.From(cause),
	}, nil
}

func (b Builder) check(runnable bool) error {
	var missing []string
	if b.positions == nil {
		missing = append(missing, "positions")
	}
	if b.target == nil {
		missing = append(missing, "target")
	}
	if runnable {
		if b.factory == nil {
			missing = append(missing, "handler factory")
		}
		if b.work == nil {
			missing = append(missing, "work")
		}
	}
	if b.retry.MaxRetries < 0 || b.retry.Delay < 0 {
		return fmt.Errorf("%w: negative retry policy %d/%s", ErrIncomplete, b.retry.MaxRetries, b.retry.Delay)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncomplete, strings.Join(missing, ", "))
	}
	return nil
}
