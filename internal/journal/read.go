package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/cqlbridge/internal/task"
)

// Request summarises one registered request and its recorded tasks.
type Request struct {
	GroupID    string
	Command    string
	Target     string
	Tasks      int
	Completed  int
	Failed     int
	Skipped    int
	RecordedAt time.Time
}

// Requests returns the most recent requests first, at most limit of them.
// A limit of zero or less returns all.
func (j *Journal) Requests(ctx context.Context, limit int) ([]Request, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT r.group_id, r.command, r.target, r.tasks, r.recorded_at,
		       COALESCE(SUM(o.status = ?), 0),
		       COALESCE(SUM(o.status = ?), 0),
		       COALESCE(SUM(o.status = ?), 0)
		FROM requests r
		LEFT JOIN task_outcomes o ON o.group_id = r.group_id
		GROUP BY r.seq
		ORDER BY r.seq DESC
		LIMIT ?
	`, string(task.StatusCompleted), string(task.StatusError), string(task.StatusSkipped), limit)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	out := []Request{}
	for rows.Next() {
		var r Request
		var recorded string
		if err := rows.Scan(&r.GroupID, &r.Command, &r.Target, &r.Tasks, &recorded, &r.Completed, &r.Failed, &r.Skipped); err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		if r.RecordedAt, err = time.Parse(time.RFC3339Nano, recorded); err != nil {
			return nil, fmt.Errorf("request %s: recorded_at: %w", r.GroupID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return out, nil
}

// Entries returns the recorded tasks of a group in position order.
// Returns an empty slice, not nil, for an unknown group.
func (j *Journal) Entries(ctx context.Context, groupID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, group_id, position, target, kind, status, error_code, error_msg, attempts, elapsed_us,
		       statement, rows, matched, modified, deleted, inserted_id, recorded_at
		FROM task_outcomes
		WHERE group_id = ?
		ORDER BY position ASC, seq ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Failures returns the most recent failed tasks across all groups.
func (j *Journal) Failures(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, group_id, position, target, kind, status, error_code, error_msg, attempts, elapsed_us,
		       statement, rows, matched, modified, deleted, inserted_id, recorded_at
		FROM task_outcomes
		WHERE status = ?
		ORDER BY seq DESC
		LIMIT ?
	`, string(task.StatusError), limit)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	out := []Entry{}
	for rows.Next() {
		var (
			e         Entry
			status    string
			elapsedUS int64
			recorded  string
		)
		err := rows.Scan(&e.Seq, &e.GroupID, &e.Position, &e.Target, &e.Kind, &status, &e.ErrorCode, &e.ErrorMessage,
			&e.Attempts, &elapsedUS, &e.Statement, &e.Rows, &e.Matched, &e.Modified, &e.Deleted, &e.InsertedID, &recorded)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Status = task.Status(status)
		e.Elapsed = time.Duration(elapsedUS) * time.Microsecond
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recorded); err != nil {
			return nil, fmt.Errorf("entry %d: recorded_at: %w", e.Seq, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}
