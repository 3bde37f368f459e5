// Package config loads cqlbridge settings from a YAML file and
// CQLBRIDGE_ environment variables.
//
// Keys are nested with dots in the file and underscores in the
// environment: limits.page_size is CQLBRIDGE_LIMITS_PAGE_SIZE.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/cqlbridge/internal/driver"
	"github.com/roach88/cqlbridge/internal/resolve"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CQLBRIDGE"

// Config holds all settings.
type Config struct {
	Cluster     ClusterConfig     `mapstructure:"cluster"`
	Limits      LimitsConfig      `mapstructure:"limits"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Executor    ExecutorConfig    `mapstructure:"executor"`
	Schema      SchemaConfig      `mapstructure:"schema"`
	Replication map[string]string `mapstructure:"replication"`
}

type ClusterConfig struct {
	Hosts       []string      `mapstructure:"hosts"`
	Keyspace    string        `mapstructure:"keyspace"`
	Consistency string        `mapstructure:"consistency"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type LimitsConfig struct {
	PageSize               int `mapstructure:"page_size"`
	MaxInsertManyDocuments int `mapstructure:"max_insert_many_documents"`
	MaxWriteManyDocuments  int `mapstructure:"max_write_many_documents"`
	MaxInMemorySortRows    int `mapstructure:"max_in_memory_sort_rows"`
	MaxCountLimit          int `mapstructure:"max_count_limit"`
	MaxConflicts           int `mapstructure:"max_conflicts"`
}

type RetrySettings struct {
	MaxRetries int           `mapstructure:"max_retries"`
	Delay      time.Duration `mapstructure:"delay"`
}

type RetryConfig struct {
	Read   RetrySettings `mapstructure:"read"`
	Write  RetrySettings `mapstructure:"write"`
	Schema RetrySettings `mapstructure:"schema"`
}

type ExecutorConfig struct {
	// Concurrency is the worker pool size for unordered groups.
	Concurrency int `mapstructure:"concurrency"`
}

type SchemaConfig struct {
	// Catalog is a CUE file or directory describing known tables.
	Catalog   string `mapstructure:"catalog"`
	CacheSize int    `mapstructure:"cache_size"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	rc := resolve.DefaultConfig()
	return Config{
		Cluster: ClusterConfig{
			Hosts:       []string{"127.0.0.1"},
			Consistency: "LOCAL_QUORUM",
			Timeout:     10 * time.Second,
		},
		Limits: LimitsConfig{
			PageSize:               rc.PageSize,
			MaxInsertManyDocuments: rc.MaxInsertManyDocuments,
			MaxWriteManyDocuments:  rc.MaxWriteManyDocuments,
			MaxInMemorySortRows:    rc.MaxInMemorySortRows,
			MaxCountLimit:          rc.MaxCountLimit,
			MaxConflicts:           rc.MaxConflicts,
		},
		Retry: RetryConfig{
			Read:   RetrySettings(rc.ReadRetry),
			Write:  RetrySettings(rc.WriteRetry),
			Schema: RetrySettings(rc.SchemaRetry),
		},
		Executor:    ExecutorConfig{Concurrency: 16},
		Schema:      SchemaConfig{CacheSize: 256},
		Replication: rc.Replication,
	}
}

// setDefaults registers every key so environment overrides are seen by
// Unmarshal even when no file mentions them. Replication is left out: a
// file replaces it as a whole.
func setDefaults(v *viper.Viper) {
	d := Default()
	defaults := map[string]any{
		"cluster.hosts":                    d.Cluster.Hosts,
		"cluster.keyspace":                 d.Cluster.Keyspace,
		"cluster.consistency":              d.Cluster.Consistency,
		"cluster.username":                 d.Cluster.Username,
		"cluster.password":                 d.Cluster.Password,
		"cluster.timeout":                  d.Cluster.Timeout,
		"limits.page_size":                 d.Limits.PageSize,
		"limits.max_insert_many_documents": d.Limits.MaxInsertManyDocuments,
		"limits.max_write_many_documents":  d.Limits.MaxWriteManyDocuments,
		"limits.max_in_memory_sort_rows":   d.Limits.MaxInMemorySortRows,
		"limits.max_count_limit":           d.Limits.MaxCountLimit,
		"limits.max_conflicts":             d.Limits.MaxConflicts,
		"retry.read.max_retries":           d.Retry.Read.MaxRetries,
		"retry.read.delay":                 d.Retry.Read.Delay,
		"retry.write.max_retries":          d.Retry.Write.MaxRetries,
		"retry.write.delay":                d.Retry.Write.Delay,
		"retry.schema.max_retries":         d.Retry.Schema.MaxRetries,
		"retry.schema.delay":               d.Retry.Schema.Delay,
		"executor.concurrency":             d.Executor.Concurrency,
		"schema.catalog":                   d.Schema.Catalog,
		"schema.cache_size":                d.Schema.CacheSize,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load reads path, or cqlbridge.yaml from the working directory or the
// user config directory when path is empty, then applies environment
// overrides. A missing default file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cqlbridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "cqlbridge"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Replication) == 0 {
		cfg.Replication = Default().Replication
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the resolver and executor depend on.
func (c Config) Validate() error {
	if c.Executor.Concurrency <= 0 {
		return fmt.Errorf("config: executor.concurrency must be positive, got %d", c.Executor.Concurrency)
	}
	if c.Schema.CacheSize <= 0 {
		return fmt.Errorf("config: schema.cache_size must be positive, got %d", c.Schema.CacheSize)
	}
	if _, ok := c.Replication["class"]; !ok {
		return fmt.Errorf("config: replication needs a class")
	}
	return c.Resolve().Validate()
}

// Resolve returns the resolver settings.
func (c Config) Resolve() resolve.Config {
	return resolve.Config{
		PageSize:               c.Limits.PageSize,
		MaxInsertManyDocuments: c.Limits.MaxInsertManyDocuments,
		MaxWriteManyDocuments:  c.Limits.MaxWriteManyDocuments,
		MaxInMemorySortRows:    c.Limits.MaxInMemorySortRows,
		MaxCountLimit:          c.Limits.MaxCountLimit,
		MaxConflicts:           c.Limits.MaxConflicts,
		ReadRetry:              resolve.Retry(c.Retry.Read),
		WriteRetry:             resolve.Retry(c.Retry.Write),
		SchemaRetry:            resolve.Retry(c.Retry.Schema),
		Replication:            c.Replication,
	}
}

// Session returns the connection settings.
func (c Config) Session() driver.ClusterConfig {
	return driver.ClusterConfig{
		Hosts:       c.Cluster.Hosts,
		Keyspace:    c.Cluster.Keyspace,
		Consistency: c.Cluster.Consistency,
		Username:    c.Cluster.Username,
		Password:    c.Cluster.Password,
		Timeout:     c.Cluster.Timeout,
		PageSize:    c.Limits.PageSize,
	}
}
