package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/roach88/cqlbridge/internal/command"
	"github.com/roach88/cqlbridge/internal/schema"
)

// TargetOptions select the object a command runs against.
type TargetOptions struct {
	Catalog  string // CUE file or directory
	Keyspace string
	Target   string // table or collection name within Keyspace
}

// LoadError is a problem reading the inputs of a command, tagged with
// the JSON error code it is reported under.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LoadError) Unwrap() error { return e.Err }

// loadCatalog loads the catalog at path. An empty path yields an empty
// catalog, enough for database and keyspace commands.
func loadCatalog(path string) (*schema.Catalog, error) {
	if path == "" {
		return schema.CompileCatalog("keyspaces: {}")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog not found: %s", path), Err: err}
	}
	cat, err := schema.LoadCatalog(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeCatalog, Message: "failed to load catalog", Err: err}
	}
	return cat, nil
}

// resolveTarget picks the command target. Keyspace commands do not need
// the keyspace in the catalog; table and collection commands do.
func resolveTarget(ctx context.Context, cache *schema.Cache, opts TargetOptions) (*schema.Object, error) {
	switch {
	case opts.Keyspace == "" && opts.Target != "":
		return nil, &LoadError{Code: ErrCodeTarget, Message: "--target requires --keyspace"}
	case opts.Keyspace == "":
		return schema.NewDatabase(), nil
	case opts.Target == "":
		return schema.NewKeyspace(opts.Keyspace), nil
	}
	obj, err := cache.Get(ctx, "", opts.Keyspace, opts.Target)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeTarget, Message: "unknown target", Err: err}
	}
	return obj, nil
}

// readCommand decodes the command document in path, or stdin for "-".
func readCommand(path string, stdin io.Reader) (*command.Command, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("failed to read command %s", path), Err: err}
	}
	return command.Decode(data)
}
