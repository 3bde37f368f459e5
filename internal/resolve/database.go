package resolve

import (
	"maps"
	"strings"

	"github.com/roach88/cqlbridge/internal/command"
	"github.com/roach88/cqlbridge/internal/cql"
	"github.com/roach88/cqlbridge/internal/exhandler"
	"github.com/roach88/cqlbridge/internal/schema"
)

var databaseCommands = map[command.Name]resolveFunc{
	command.CreateKeyspace: (*Resolver).createKeyspace,
	command.DropKeyspace:   (*Resolver).dropKeyspace,
	command.FindKeyspaces:  (*Resolver).findKeyspaces,
}

func (r *Resolver) createKeyspace(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	if err := checkName("keyspace", cmd.Target); err != nil {
		return nil, err
	}
	replication := maps.Clone(r.cfg.Replication)
	if cmd.Keyspace != nil && len(cmd.Keyspace.Replication) > 0 {
		replication = cmd.Keyspace.Replication
	}
	q := cql.CreateKeyspace{Name: cmd.Target, Replication: replication, IfNotExists: cmd.Options.IfNotExists}
	return r.ddl(cmd, obj, q, exhandler.CreateKeyspace{Keyspace: cmd.Target})
}

func (r *Resolver) dropKeyspace(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	if cmd.Target == "" {
		return nil, invalidCommand("dropKeyspace requires a name")
	}
	q := cql.DropKeyspace{Name: cmd.Target, IfExists: cmd.Options.IfExists}
	return r.ddl(cmd, obj, q, exhandler.DropKeyspace{Keyspace: cmd.Target})
}

// userKeyspace hides the keyspaces the store manages itself.
func userKeyspace(row map[string]any) bool {
	name, _ := row["keyspace_name"].(string)
	return !strings.HasPrefix(name, "system") && !strings.HasPrefix(name, "dse_") && name != "solr_admin"
}

func (r *Resolver) findKeyspaces(cmd *command.Command, obj *schema.Object) (*Operation, error) {
	stmt, err := compile(cql.ListKeyspaces{})
	if err != nil {
		return nil, err
	}
	return r.readOnly(cmd, obj, stmt, schemaRead, shapeNames(StatusKeyspaces, "keyspace_name", userKeyspace))
}
