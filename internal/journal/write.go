package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/cqlbridge/internal/ir"
	"github.com/roach88/cqlbridge/internal/task"
)

// Entry is the journal record of one task.
type Entry struct {
	Seq      int64
	GroupID  string
	Position int
	Target   string
	Kind     string
	Status   task.Status

	ErrorCode    string
	ErrorMessage string

	Attempts int
	Elapsed  time.Duration

	// Statement is the first statement known before execution.
	Statement string

	Rows       int
	Matched    int64
	Modified   int64
	Deleted    int64
	InsertedID string

	RecordedAt time.Time
}

// NewEntry captures the terminal state of t.
func NewEntry(groupID string, t *task.Task) Entry {
	out := t.Outcome()
	e := Entry{
		GroupID:  groupID,
		Position: t.Position(),
		Target:   t.Target().String(),
		Kind:     t.Kind(),
		Status:   t.Status(),
		Attempts: t.Attempts(),
		Elapsed:  t.Elapsed(),
		Rows:     len(out.Rows),
		Matched:  out.Matched,
		Modified: out.Modified,
		Deleted:  out.Deleted,
	}
	if err := t.Err(); err != nil {
		e.ErrorCode = string(err.Code)
		e.ErrorMessage = err.Message
	}
	if w := t.Work(); w != nil {
		if stmts := w.Statements(); len(stmts) > 0 {
			e.Statement = stmts[0].CQL
		}
	}
	if out.InsertedID != nil {
		if b, err := ir.MarshalCanonical(out.InsertedID); err == nil {
			e.InsertedID = string(b)
		}
	}
	return e
}

// Begin registers a request before its group runs.
func (j *Journal) Begin(ctx context.Context, g *task.Group, command, target string) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO requests (group_id, command, target, tasks, recorded_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(group_id) DO NOTHING
	`, g.ID, command, target, g.Len(), j.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("begin %s: %w", g.ID, err)
	}
	return nil
}

// Record writes e. A second record for the same group and position is
// ignored.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = j.now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO task_outcomes
		(group_id, position, target, kind, status, error_code, error_msg, attempts, elapsed_us,
		 statement, rows, matched, modified, deleted, inserted_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id, position) DO NOTHING
	`,
		e.GroupID,
		e.Position,
		e.Target,
		e.Kind,
		string(e.Status),
		e.ErrorCode,
		e.ErrorMessage,
		e.Attempts,
		e.Elapsed.Microseconds(),
		e.Statement,
		e.Rows,
		e.Matched,
		e.Modified,
		e.Deleted,
		e.InsertedID,
		e.RecordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record task %d of %s: %w", e.Position, e.GroupID, err)
	}
	return nil
}

// TaskFinished implements task.Observer. A failed write is logged and
// does not affect the task.
func (j *Journal) TaskFinished(groupID string, t *task.Task) {
	if err := j.Record(context.Background(), NewEntry(groupID, t)); err != nil {
		j.logger.Warn("journal write failed",
			"group", groupID,
			"position", t.Position(),
			"error", err,
		)
	}
}
