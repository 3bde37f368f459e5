package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "cqlbridge", cmd.Use)
	assert.Contains(t, cmd.Long, "CQL statements")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"explain", "exec", "history", "test", "validate"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestTargetFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"explain", "exec"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		for _, flag := range []string{"catalog", "keyspace", "target", "config"} {
			assert.NotNil(t, sub.Flags().Lookup(flag), "%s --%s", name, flag)
		}
	}

	exec, _, err := cmd.Find([]string{"exec"})
	require.NoError(t, err)
	for _, flag := range []string{"hosts", "journal", "metrics-file"} {
		assert.NotNil(t, exec.Flags().Lookup(flag), "exec --%s", flag)
	}
	assert.Equal(t, "k", exec.Flags().Lookup("keyspace").Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := runRoot(t, "", "validate", "catalog.cue", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}
