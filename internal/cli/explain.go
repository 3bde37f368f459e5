package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/codec"
	"github.com/roach88/cqlbridge/internal/config"
	"github.com/roach88/cqlbridge/internal/resolve"
	"github.com/roach88/cqlbridge/internal/schema"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	TargetOptions
	Config string
}

// StatementPlan is one statement with its bind values rendered as CQL
// literals.
type StatementPlan struct {
	CQL    string   `json:"cql"`
	Values []string `json:"values,omitempty"`
}

// TaskPlan is one task of a resolved command.
type TaskPlan struct {
	Position   int             `json:"position"`
	Kind       string          `json:"kind"`
	Statements []StatementPlan `json:"statements,omitempty"`
	FullScan   bool            `json:"full_scan,omitempty"`
	Error      *apierr.Error   `json:"error,omitempty"`
}

// ExplainResult describes what a command would do.
type ExplainResult struct {
	Command  string     `json:"command"`
	Target   string     `json:"target"`
	GroupID  string     `json:"group_id"`
	Ordered  bool       `json:"ordered"`
	FailFast bool       `json:"fail_fast"`
	Tasks    []TaskPlan `json:"tasks"`
	Warnings []string   `json:"warnings,omitempty"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <command-file|->",
		Short: "Show the statements a command resolves to",
		Long: `Resolve a command without executing it.

Prints every task of the command with its CQL and bind values, and the
warnings of the where-clause analysis. Nothing is sent to a cluster.

Without --keyspace the command targets the database; with --keyspace
only it targets that keyspace; with --target it targets a table or
collection declared in the catalog.

Examples:
  cqlbridge explain --catalog ./catalog.cue --keyspace shop --target orders find.json
  echo '{"createKeyspace": {"name": "shop"}}' | cqlbridge explain -
  cqlbridge explain --catalog ./catalog --keyspace shop --target users --format json update.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args[0], cmd)
		},
	}

	addTargetFlags(cmd, &opts.TargetOptions)
	cmd.Flags().StringVar(&opts.Config, "config", "", "config file (default ./cqlbridge.yaml)")

	return cmd
}

func addTargetFlags(cmd *cobra.Command, opts *TargetOptions) {
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "CUE catalog file or directory (default schema.catalog from config)")
	cmd.Flags().StringVarP(&opts.Keyspace, "keyspace", "k", "", "target keyspace")
	cmd.Flags().StringVarP(&opts.Target, "target", "t", "", "target table or collection")
}

func runExplain(opts *ExplainOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}

	op, err := prepare(cmd, opts.TargetOptions, cfg, path, resolve.WithLogger(logger))
	if err != nil {
		return reportPrepareError(formatter, err)
	}

	result := explain(op)
	if formatter.JSON() {
		return formatter.Success(result)
	}
	writeExplainText(formatter.Writer, result)
	return nil
}

// prepare loads the catalog and command and resolves it.
func prepare(cmd *cobra.Command, target TargetOptions, cfg config.Config, path string, opts ...resolve.Option) (*resolve.Operation, error) {
	if target.Catalog == "" {
		target.Catalog = cfg.Schema.Catalog
	}
	catalog, err := loadCatalog(target.Catalog)
	if err != nil {
		return nil, err
	}
	cache, err := schema.NewCache(catalog, cfg.Schema.CacheSize)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeConfig, Message: "schema cache", Err: err}
	}
	obj, err := resolveTarget(cmd.Context(), cache, target)
	if err != nil {
		return nil, err
	}

	c, err := readCommand(path, cmd.InOrStdin())
	if err != nil {
		return nil, err
	}
	resolver, err := resolve.New(cfg.Resolve(), opts...)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeConfig, Message: "invalid resolver settings", Err: err}
	}
	return resolver.Resolve(c, obj)
}

// reportPrepareError reports input problems as command errors and
// rejected commands under their own code.
func reportPrepareError(f *OutputFormatter, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return f.Fail(ExitCommandError, le.Code, le.Message, le.Err)
	}
	ae := apierr.From(err)
	var details any
	if len(ae.Context) > 0 {
		details = ae.Context
	}
	if outErr := f.Error(string(ae.Code), ae.Message, details); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, "command rejected", ae)
}

func explain(op *resolve.Operation) ExplainResult {
	g := op.Group()
	out := ExplainResult{
		Command:  string(op.Command()),
		Target:   op.Target().String(),
		GroupID:  g.ID,
		Ordered:  g.Ordered,
		FailFast: g.FailFast,
		Tasks:    make([]TaskPlan, 0, len(g.Tasks)),
		Warnings: op.Warnings(),
	}
	for _, t := range g.Tasks {
		tp := TaskPlan{
			Position: t.Position(),
			Kind:     t.Kind(),
			FullScan: t.Analysis().FullScanRequired,
			Error:    t.Err(),
		}
		if w := t.Work(); w != nil {
			for _, stmt := range w.Statements() {
				sp := StatementPlan{CQL: stmt.CQL}
				for _, v := range stmt.Values {
					sp.Values = append(sp.Values, codec.Literal(v))
				}
				tp.Statements = append(tp.Statements, sp)
			}
		}
		out.Tasks = append(out.Tasks, tp)
	}
	return out
}

func writeExplainText(w io.Writer, r ExplainResult) {
	mode := "unordered"
	if r.Ordered {
		mode = "ordered"
	}
	if r.FailFast {
		mode += ", fail fast"
	}
	fmt.Fprintf(w, "%s on %s (%s, %d task(s))\n", r.Command, r.Target, mode, len(r.Tasks))

	for _, t := range r.Tasks {
		fmt.Fprintf(w, "  [%d] %s\n", t.Position, t.Kind)
		if t.Error != nil {
			fmt.Fprintf(w, "      error: %s: %s\n", t.Error.Code, t.Error.Message)
		}
		for _, s := range t.Statements {
			fmt.Fprintf(w, "      %s\n", s.CQL)
			if len(s.Values) > 0 {
				fmt.Fprintf(w, "      values: %s\n", strings.Join(s.Values, ", "))
			}
		}
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
}
