package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const minimalScenario = `
name: minimal
description: "One keyspace listing"
steps:
  - target: ""
    command: {findKeyspaces: {}}
`

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "test.yaml", `
name: test_scenario
description: "Test scenario for validation"
catalog: |
  keyspaces: shop: tables: skus: {columns: {sku: "text"}, primaryKey: "sku"}
client:
  - match: SELECT
    op: read
    values_contain: abc
    responses:
      - rows: [{sku: abc}]
      - error: READ_TIMEOUT
        message: timed out
steps:
  - target: shop.skus
    command: {find: {filter: {sku: abc}}}
    expect:
      documents: 1
assertions:
  - type: statement_contains
    op: read
    fragment: SELECT
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Contains(t, scenario.Catalog, "skus")
	require.Len(t, scenario.Client, 1)
	assert.Equal(t, "read", scenario.Client[0].Op)
	assert.Equal(t, "abc", scenario.Client[0].ValuesContain)
	require.Len(t, scenario.Client[0].Responses, 2)
	assert.Equal(t, "abc", scenario.Client[0].Responses[0].Rows[0]["sku"])
	assert.Equal(t, "READ_TIMEOUT", scenario.Client[0].Responses[1].Error)

	require.Len(t, scenario.Steps, 1)
	assert.Equal(t, "shop.skus", scenario.Steps[0].Target)
	assert.Equal(t, yaml.MappingNode, scenario.Steps[0].Command.Kind)
	require.NotNil(t, scenario.Steps[0].Expect.Documents)
	assert.Equal(t, 1, *scenario.Steps[0].Expect.Documents)
	assert.Len(t, scenario.Assertions, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			"malformed yaml",
			"name: [",
			"failed to parse YAML",
		},
		{
			"unknown field",
			minimalScenario + "assertion:\n  - type: statement_count\n",
			"field assertion not found",
		},
		{
			"missing name",
			"description: d\nsteps:\n  - command: {findKeyspaces: {}}\n",
			"name is required",
		},
		{
			"missing description",
			"name: n\nsteps:\n  - command: {findKeyspaces: {}}\n",
			"description is required",
		},
		{
			"no steps",
			"name: n\ndescription: d\n",
			"steps list is required",
		},
		{
			"step without command",
			"name: n\ndescription: d\nsteps:\n  - target: town\n",
			"steps[0]: command is required",
		},
		{
			"command not a mapping",
			"name: n\ndescription: d\nsteps:\n  - command: find\n",
			"steps[0]: command must be a mapping",
		},
		{
			"target too deep",
			"name: n\ndescription: d\nsteps:\n  - target: a.b.c\n    command: {find: {}}\n",
			"must be empty, keyspace or keyspace.name",
		},
		{
			"rejected with status",
			"name: n\ndescription: d\nsteps:\n  - command: {find: {}}\n    expect: {rejected: X, status: {ok: 1}}\n",
			"rejected cannot be combined",
		},
		{
			"unknown op",
			minimalScenario + "client:\n  - match: x\n    op: batch\n    responses: [{}]\n",
			`client[0]: unknown op "batch"`,
		},
		{
			"rule without responses",
			minimalScenario + "client:\n  - match: x\n",
			"client[0]: responses list is required",
		},
		{
			"unknown error kind",
			minimalScenario + "client:\n  - match: x\n    responses: [{error: BOOM}]\n",
			`client[0].responses[0]: unknown error kind "BOOM"`,
		},
		{
			"assertion without type",
			minimalScenario + "assertions:\n  - fragment: x\n",
			"assertions[0]: type is required",
		},
		{
			"unknown assertion type",
			minimalScenario + "assertions:\n  - type: final_state\n",
			`unknown assertion type "final_state"`,
		},
		{
			"contains without fragment",
			minimalScenario + "assertions:\n  - type: statement_contains\n",
			"fragment is required for statement_contains",
		},
		{
			"order without fragments",
			minimalScenario + "assertions:\n  - type: statement_order\n",
			"fragments list is required for statement_order",
		},
		{
			"negative count",
			minimalScenario + "assertions:\n  - type: statement_count\n    fragment: x\n    count: -1\n",
			"count must be non-negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.content))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseScenario_CountZeroAllowed(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario + "assertions:\n  - type: statement_count\n    fragment: DROP\n    count: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Assertions[0].Count)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "b.yaml", "name: b\ndescription: d\nsteps:\n  - command: {findKeyspaces: {}}\n")
	writeScenario(t, dir, "a.yml", "name: a\ndescription: d\nsteps:\n  - command: {findKeyspaces: {}}\n")
	writeScenario(t, dir, "notes.txt", "not a scenario")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.yaml"), 0o755))

	scenarios, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "a", scenarios[0].Name)
	assert.Equal(t, "b", scenarios[1].Name)

	writeScenario(t, dir, "c.yaml", "name: c\n")
	_, err = LoadDir(dir)
	assert.ErrorContains(t, err, "c.yaml")
}

func TestLoadExampleScenarios(t *testing.T) {
	scenarios, err := LoadDir("../../testdata/scenarios")
	require.NoError(t, err)
	assert.NotEmpty(t, scenarios)
}
