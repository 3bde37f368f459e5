package resolve

import (
	"context"
	"slices"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/command"
	"github.com/roach88/cqlbridge/internal/schema"
	"github.com/roach88/cqlbridge/internal/task"
)

// Runner executes task groups. *task.Executor implements it.
type Runner interface {
	Run(ctx context.Context, g *task.Group) (*task.Result, error)
}

// shapeFunc turns the accumulated result into a response. Item errors
// and warnings are filled in by Execute.
type shapeFunc func(res *task.Result) (*Response, error)

// Operation is a resolved command, ready to run.
type Operation struct {
	name     command.Name
	target   *schema.Object
	group    *task.Group
	warnings []string
	shape    shapeFunc
}

func newOperation(cmd *command.Command, obj *schema.Object, g *task.Group, shape shapeFunc) *Operation {
	return &Operation{name: cmd.Name, target: obj, group: g, shape: shape}
}

// warn adds a resolution warning, reported with the response.
func (o *Operation) warn(msg string) *Operation {
	o.warnings = append(o.warnings, msg)
	return o
}

// Command returns the resolved command name.
func (o *Operation) Command() command.Name { return o.name }

// Target returns the schema object the command runs against.
func (o *Operation) Target() *schema.Object { return o.target }

// Group returns the tasks to run.
func (o *Operation) Group() *task.Group { return o.group }

// Warnings returns the warnings known before execution: analyzer verdicts
// of every task and resolution warnings, in first occurrence order.
func (o *Operation) Warnings() []string {
	var out []string
	for _, t := range o.group.Tasks {
		out = appendUnique(out, t.Analysis().Warnings...)
	}
	return appendUnique(out, o.warnings...)
}

// Execute runs the group and shapes the response. The error is non-nil
// only when the group could not be run at all; failed items are reported
// in Response.Errors.
func (o *Operation) Execute(ctx context.Context, run Runner) (*Response, error) {
	res, err := run.Run(ctx, o.group)
	if err != nil {
		return nil, err
	}
	resp, err := o.shape(res)
	if err != nil {
		return nil, apierr.From(err)
	}
	resp.Errors = itemErrors(res)
	resp.Warnings = appendUnique(appendUnique(nil, res.Warnings...), o.warnings...)
	return resp, nil
}

func appendUnique(dst []string, src ...string) []string {
	for _, s := range src {
		if !slices.Contains(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}
