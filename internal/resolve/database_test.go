package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cqlbridge/internal/apierr"
	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/schema"
	"github.com/roach88/cqlbridge/internal/testutil"
)

func TestCreateKeyspace(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			"configured replication",
			`{"createKeyspace": {"name": "town"}}`,
			`CREATE KEYSPACE "town" WITH replication = {'class': 'SimpleStrategy', 'replication_factor': '1'}`,
		},
		{
			"command replication",
			`{"createKeyspace": {"name": "town", "options": {"ifNotExists": true, "replication": {"class": "NetworkTopologyStrategy", "dc2": "2", "dc1": "3"}}}}`,
			`CREATE KEYSPACE IF NOT EXISTS "town" WITH replication = {'class': 'NetworkTopologyStrategy', 'dc1': '3', 'dc2': '2'}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testutil.NewClient()
			_, resp := run(t, client, schema.NewDatabase(), tt.doc)
			assert.Equal(t, 1, resp.Status[StatusOK])
			assert.Equal(t, []string{tt.want}, client.CQL())
		})
	}
}

func TestCreateKeyspaceFailures(t *testing.T) {
	_, err := newResolver(t).Resolve(decode(t, `{"createKeyspace": {"name": "system-x"}}`), schema.NewDatabase())
	assert.True(t, apierr.HasCode(err, apierr.CodeInvalidSchemaDefinition), "got %v", err)

	client := testutil.NewClient()
	client.On("CREATE KEYSPACE").Fail(driver.NewError(driver.KindAlreadyExists, "Keyspace town already exists"))
	_, resp := run(t, client, schema.NewDatabase(), `{"createKeyspace": {"name": "town"}}`)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, apierr.CodeKeyspaceAlreadyExists, resp.Errors[0].Code)
	assert.Equal(t, "town", resp.Errors[0].Context["keyspace"])
}

func TestDropKeyspace(t *testing.T) {
	client := testutil.NewClient()
	_, resp := run(t, client, schema.NewDatabase(), `{"dropKeyspace": {"name": "town", "options": {"ifExists": true}}}`)
	assert.Equal(t, 1, resp.Status[StatusOK])
	assert.Equal(t, []string{`DROP KEYSPACE IF EXISTS "town"`}, client.CQL())

	_, err := newResolver(t).Resolve(decode(t, `{"dropKeyspace": {}}`), schema.NewDatabase())
	assert.True(t, apierr.HasCode(err, apierr.CodeInvalidCommand))
}

func TestFindKeyspacesHidesSystemKeyspaces(t *testing.T) {
	client := testutil.NewClient()
	client.On("system_schema.keyspaces").Rows(
		map[string]any{"keyspace_name": "system"},
		map[string]any{"keyspace_name": "system_schema"},
		map[string]any{"keyspace_name": "dse_security"},
		map[string]any{"keyspace_name": "solr_admin"},
		map[string]any{"keyspace_name": "town"},
		map[string]any{"keyspace_name": "shop"},
	)

	_, resp := run(t, client, schema.NewDatabase(), `{"findKeyspaces": {}}`)
	assert.Equal(t, []string{"shop", "town"}, resp.Status[StatusKeyspaces])
}
