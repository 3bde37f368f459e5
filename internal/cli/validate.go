package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cqlbridge/internal/schema"
)

// ObjectSummary describes one catalog table or collection.
type ObjectSummary struct {
	Keyspace   string   `json:"keyspace"`
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Columns    int      `json:"columns"`
	Partition  []string `json:"partition"`
	Clustering []string `json:"clustering,omitempty"`
	Indexes    []string `json:"indexes,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool            `json:"valid"`
	Keyspaces []string        `json:"keyspaces"`
	Objects   []ObjectSummary `json:"objects"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog>",
		Short: "Validate a CUE catalog",
		Long: `Load a CUE catalog file or directory and check every table and
collection it declares: column types, primary key and index targets.

Prints the declared objects with their keys and indexes.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	catalog, err := loadCatalog(path)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			return formatter.Fail(ExitFailure, le.Code, le.Message, le.Err)
		}
		return formatter.Fail(ExitFailure, ErrCodeCatalog, "failed to load catalog", err)
	}

	result := ValidationResult{Valid: true, Keyspaces: catalog.Keyspaces(), Objects: []ObjectSummary{}}
	for _, ks := range result.Keyspaces {
		formatter.VerboseLog("Validating keyspace: %s", ks)
		for _, name := range catalog.Names(ks) {
			obj, err := catalog.Load(cmd.Context(), ks, name)
			if err != nil {
				return formatter.Fail(ExitFailure, ErrCodeCatalog, "failed to load catalog", err)
			}
			if err := obj.Validate(); err != nil {
				return formatter.Fail(ExitFailure, ErrCodeCatalog, fmt.Sprintf("invalid %s", obj), err)
			}
			result.Objects = append(result.Objects, summarize(obj))
		}
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	writeValidationText(formatter.Writer, result)
	return nil
}

func summarize(obj *schema.Object) ObjectSummary {
	s := ObjectSummary{
		Keyspace:  obj.Keyspace,
		Name:      obj.Name,
		Kind:      string(obj.Kind),
		Columns:   len(obj.Columns),
		Partition: obj.PrimaryKey.Partition,
	}
	for _, c := range obj.PrimaryKey.Clustering {
		order := "asc"
		if c.Descending {
			order = "desc"
		}
		s.Clustering = append(s.Clustering, c.Column+" "+order)
	}
	for _, idx := range obj.Indexes {
		s.Indexes = append(s.Indexes, idx.Name)
	}
	return s
}

func writeValidationText(w io.Writer, r ValidationResult) {
	fmt.Fprintf(w, "✓ Catalog valid: %d keyspace(s), %d object(s)\n", len(r.Keyspaces), len(r.Objects))
	for _, o := range r.Objects {
		fmt.Fprintf(w, "  %s %s.%s: %d column(s), partition (%s)",
			o.Kind, o.Keyspace, o.Name, o.Columns, strings.Join(o.Partition, ", "))
		if len(o.Clustering) > 0 {
			fmt.Fprintf(w, ", clustering (%s)", strings.Join(o.Clustering, ", "))
		}
		if len(o.Indexes) > 0 {
			fmt.Fprintf(w, ", indexes %s", strings.Join(o.Indexes, ", "))
		}
		fmt.Fprintln(w)
	}
}
