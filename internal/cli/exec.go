package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/cqlbridge/internal/config"
	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/journal"
	"github.com/roach88/cqlbridge/internal/metrics"
	"github.com/roach88/cqlbridge/internal/resolve"
	"github.com/roach88/cqlbridge/internal/task"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	TargetOptions
	Config      string
	Hosts       []string
	Journal     string
	MetricsFile string

	// Client overrides the cluster session (for testing). If nil, a
	// session is opened from the cluster settings.
	Client driver.Client
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	return newExecCommand(&ExecOptions{RootOptions: rootOpts})
}

func newExecCommand(opts *ExecOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <command-file|->",
		Short: "Run a command against a cluster",
		Long: `Resolve a command and run its tasks against a cluster.

Prints the response: status, returned documents and the errors of the
items that failed. Cluster, limits and retry settings come from the
config file and CQLBRIDGE_ environment variables.

With --journal every task outcome is recorded in a SQLite journal that
the history command reads. With --metrics-file the task counters are
written in the Prometheus text format once the command finishes.

Exit codes:
  0 - Every item succeeded
  1 - The command was rejected or some items failed
  2 - Command error (bad input, unreachable cluster, etc.)

Examples:
  cqlbridge exec --keyspace shop --target orders --catalog ./catalog.cue insert.json
  cqlbridge exec --hosts 10.0.0.1,10.0.0.2 --journal ./cqlbridge.db --keyspace shop create.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], cmd)
		},
	}

	addTargetFlags(cmd, &opts.TargetOptions)
	cmd.Flags().StringVar(&opts.Config, "config", "", "config file (default ./cqlbridge.yaml)")
	cmd.Flags().StringSliceVar(&opts.Hosts, "hosts", nil, "cluster contact points (overrides cluster.hosts)")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the SQLite task journal")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write task metrics to this file")

	return cmd
}

func runExec(opts *ExecOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	if len(opts.Hosts) > 0 {
		cfg.Cluster.Hosts = opts.Hosts
	}

	op, err := prepare(cmd, opts.TargetOptions, cfg, path, resolve.WithLogger(logger))
	if err != nil {
		return reportPrepareError(formatter, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := opts.Client
	if client == nil {
		logger.Info("connecting", "hosts", cfg.Cluster.Hosts)
		session, err := driver.NewSession(cfg.Session(), driver.WithLogger(logger))
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeConnect, "failed to connect", err)
		}
		defer session.Close()
		client = session
	}

	recorder := metrics.NewRecorder()
	execOpts := []task.Option{
		task.WithLogger(logger),
		task.WithConcurrency(cfg.Executor.Concurrency),
		task.WithObserver(recorder),
	}

	if opts.Journal != "" {
		j, err := journal.Open(opts.Journal, journal.WithLogger(logger))
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeConnect, "failed to open journal", err)
		}
		defer closeJournal(j, logger)
		if err := j.Begin(ctx, op.Group(), string(op.Command()), op.Target().String()); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to record request", err)
		}
		execOpts = append(execOpts, task.WithObserver(j))
	}

	executor, err := task.NewExecutor(client, execOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to start executor", err)
	}
	defer executor.Close()

	logger.Debug("executing", "command", op.Command(), "target", op.Target().String(), "group", op.Group().ID)
	resp, err := op.Execute(ctx, executor)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "execution failed", err)
	}

	if opts.MetricsFile != "" {
		if err := recorder.WriteFile(opts.MetricsFile); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write metrics", err)
		}
	}

	if err := writeResponse(formatter, resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d item(s) failed", len(resp.Errors)))
	}
	return nil
}

// writeResponse prints the response. Text output is the response
// document itself.
func writeResponse(f *OutputFormatter, resp *resolve.Response) error {
	if f.JSON() {
		return f.Success(resp)
	}
	return writeIndented(f.Writer, resp)
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func closeJournal(j *journal.Journal, logger *slog.Logger) {
	if err := j.Close(); err != nil {
		logger.Error("error closing journal", "error", err)
	}
}
