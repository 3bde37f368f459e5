package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cqlbridge/internal/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Journal  string
	Limit    int
	Failures bool
}

// RequestView is one journaled request.
type RequestView struct {
	GroupID    string    `json:"group_id"`
	Command    string    `json:"command"`
	Target     string    `json:"target"`
	Tasks      int       `json:"tasks"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	RecordedAt time.Time `json:"recorded_at"`
}

// EntryView is one journaled task outcome.
type EntryView struct {
	GroupID    string `json:"group_id"`
	Position   int    `json:"position"`
	Target     string `json:"target"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	ErrorCode  string `json:"error_code,omitempty"`
	Error      string `json:"error,omitempty"`
	Attempts   int    `json:"attempts"`
	ElapsedUS  int64  `json:"elapsed_us"`
	Statement  string `json:"statement,omitempty"`
	Rows       int    `json:"rows,omitempty"`
	Matched    int64  `json:"matched,omitempty"`
	Modified   int64  `json:"modified,omitempty"`
	Deleted    int64  `json:"deleted,omitempty"`
	InsertedID string `json:"inserted_id,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [group-id]",
		Short: "List journaled requests and task outcomes",
		Long: `Read the task journal written by exec --journal.

Without arguments, lists the most recent requests with their task
counts. With a group id, lists the tasks of that request in position
order. With --failures, lists the most recent failed tasks.

Examples:
  cqlbridge history --journal ./cqlbridge.db
  cqlbridge history --journal ./cqlbridge.db 01890a5d-ac96-774b-bcce-b302099a8057
  cqlbridge history --journal ./cqlbridge.db --failures --limit 5 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID := ""
			if len(args) == 1 {
				groupID = args[0]
			}
			return runHistory(opts, groupID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the SQLite task journal (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of rows (0 for all)")
	cmd.Flags().BoolVar(&opts.Failures, "failures", false, "list failed tasks instead of requests")
	_ = cmd.MarkFlagRequired("journal")

	return cmd
}

func runHistory(opts *HistoryOptions, groupID string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	if groupID != "" && opts.Failures {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "--failures cannot be combined with a group id", nil)
	}
	// Opening would create an empty journal.
	if _, err := os.Stat(opts.Journal); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("journal not found: %s", opts.Journal), nil)
	}
	j, err := journal.Open(opts.Journal, journal.WithLogger(newLogger(cmd.ErrOrStderr(), opts.Verbose)))
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConnect, "failed to open journal", err)
	}
	defer j.Close()

	switch {
	case groupID != "":
		entries, err := j.Entries(ctx, groupID)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to read journal", err)
		}
		if len(entries) == 0 {
			return formatter.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("no tasks recorded for group %s", groupID), nil)
		}
		return writeEntries(formatter, entryViews(entries))

	case opts.Failures:
		entries, err := j.Failures(ctx, opts.Limit)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to read journal", err)
		}
		return writeEntries(formatter, entryViews(entries))

	default:
		requests, err := j.Requests(ctx, opts.Limit)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to read journal", err)
		}
		views := make([]RequestView, len(requests))
		for i, r := range requests {
			views[i] = RequestView(r)
		}
		if formatter.JSON() {
			return formatter.Success(views)
		}
		writeRequestsText(formatter.Writer, views)
		return nil
	}
}

func entryViews(entries []journal.Entry) []EntryView {
	out := make([]EntryView, len(entries))
	for i, e := range entries {
		out[i] = EntryView{
			GroupID:    e.GroupID,
			Position:   e.Position,
			Target:     e.Target,
			Kind:       e.Kind,
			Status:     string(e.Status),
			ErrorCode:  e.ErrorCode,
			Error:      e.ErrorMessage,
			Attempts:   e.Attempts,
			ElapsedUS:  e.Elapsed.Microseconds(),
			Statement:  e.Statement,
			Rows:       e.Rows,
			Matched:    e.Matched,
			Modified:   e.Modified,
			Deleted:    e.Deleted,
			InsertedID: e.InsertedID,
		}
	}
	return out
}

func writeEntries(f *OutputFormatter, entries []EntryView) error {
	if f.JSON() {
		return f.Success(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(f.Writer, "No tasks recorded.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(f.Writer, "%s [%d] %s %s on %s (%d attempt(s), %dus)\n",
			e.GroupID, e.Position, e.Kind, e.Status, e.Target, e.Attempts, e.ElapsedUS)
		if e.ErrorCode != "" {
			fmt.Fprintf(f.Writer, "  error: %s: %s\n", e.ErrorCode, e.Error)
		}
		if e.Statement != "" {
			fmt.Fprintf(f.Writer, "  %s\n", e.Statement)
		}
	}
	return nil
}

func writeRequestsText(w io.Writer, requests []RequestView) {
	if len(requests) == 0 {
		fmt.Fprintln(w, "No requests recorded.")
		return
	}
	for _, r := range requests {
		fmt.Fprintf(w, "%s  %s  %s on %s: %d task(s), %d completed, %d failed, %d skipped\n",
			r.RecordedAt.Format(time.RFC3339), r.GroupID, r.Command, r.Target,
			r.Tasks, r.Completed, r.Failed, r.Skipped)
	}
}
