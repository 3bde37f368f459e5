package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cqlbridge/internal/resolve"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cqlbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultMatchesResolver(t *testing.T) {
	require.NoError(t, Default().Validate())
	assert.Equal(t, resolve.DefaultConfig(), Default().Resolve())
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
cluster:
  hosts: [cass-1, cass-2]
  keyspace: shop
  timeout: 3s
limits:
  page_size: 50
  max_conflicts: 5
retry:
  write:
    max_retries: 4
    delay: 20ms
executor:
  concurrency: 4
replication:
  class: NetworkTopologyStrategy
  dc1: "3"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"cass-1", "cass-2"}, cfg.Cluster.Hosts)
	assert.Equal(t, "shop", cfg.Cluster.Keyspace)
	assert.Equal(t, "LOCAL_QUORUM", cfg.Cluster.Consistency)
	assert.Equal(t, 3*time.Second, cfg.Cluster.Timeout)
	assert.Equal(t, 4, cfg.Executor.Concurrency)

	rc := cfg.Resolve()
	assert.Equal(t, 50, rc.PageSize)
	assert.Equal(t, 5, rc.MaxConflicts)
	assert.Equal(t, resolve.Retry{MaxRetries: 4, Delay: 20 * time.Millisecond}, rc.WriteRetry)
	assert.Equal(t, resolve.DefaultConfig().ReadRetry, rc.ReadRetry)
	assert.Equal(t, map[string]string{"class": "NetworkTopologyStrategy", "dc1": "3"}, rc.Replication)

	session := cfg.Session()
	assert.Equal(t, 50, session.PageSize)
	assert.Equal(t, "shop", session.Keyspace)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "limits:\n  page_size: 50\n")
	t.Setenv("CQLBRIDGE_LIMITS_PAGE_SIZE", "7")
	t.Setenv("CQLBRIDGE_CLUSTER_HOSTS", "a,b")
	t.Setenv("CQLBRIDGE_RETRY_SCHEMA_DELAY", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Limits.PageSize)
	assert.Equal(t, []string{"a", "b"}, cfg.Cluster.Hosts)
	assert.Equal(t, 2*time.Second, cfg.Retry.Schema.Delay)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "limits: [", "read config"},
		{"bad page size", "limits:\n  page_size: 0\n", "PageSize"},
		{"bad concurrency", "executor:\n  concurrency: -1\n", "executor.concurrency"},
		{"bad duration", "retry:\n  read:\n    delay: soon\n", "decode config"},
		{"no replication class", "replication:\n  dc1: \"3\"\n", "replication needs a class"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			assert.ErrorContains(t, err, tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")
}
