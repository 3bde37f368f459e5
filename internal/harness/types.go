package harness

import (
	"github.com/roach88/cqlbridge/internal/ir"
)

// StatementTrace is one statement the engine sent to the database.
type StatementTrace struct {
	Op  string `json:"op"`
	CQL string `json:"cql"`
}

// TaskTrace is the terminal state of one task.
type TaskTrace struct {
	Position int    `json:"position"`
	Kind     string `json:"kind"`
	Status   string `json:"status"`
	Code     string `json:"code,omitempty"`
}

// ResponseTrace is the response of a step with errors reduced to their
// codes, which are stable across message rewording.
type ResponseTrace struct {
	Status    ir.Object   `json:"status,omitempty"`
	Document  ir.Object   `json:"document,omitempty"`
	Documents []ir.Object `json:"documents,omitempty"`
	PageState string      `json:"nextPageState,omitempty"`
	Errors    []string    `json:"errors,omitempty"`
	Warnings  []string    `json:"warnings,omitempty"`
}

// StepTrace is everything one step did.
type StepTrace struct {
	Command string `json:"command"`
	Target  string `json:"target"`

	// Rejected is the error code when the command never reached the
	// database.
	Rejected string `json:"rejected,omitempty"`

	Statements []StatementTrace `json:"statements"`
	Tasks      []TaskTrace      `json:"tasks"`
	Response   *ResponseTrace   `json:"response,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one entry per step, in order.
	Trace []StepTrace `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []StepTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Statements returns the statements of all steps in execution order.
func (r *Result) Statements() []StatementTrace {
	var out []StatementTrace
	for _, step := range r.Trace {
		out = append(out, step.Statements...)
	}
	return out
}
