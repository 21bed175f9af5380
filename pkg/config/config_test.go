package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/shardstore/internal/bytesize"
	"github.com/marmos91/shardstore/pkg/metadata/store"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, store.DatabaseTypeSQLite, cfg.Database.Type)
	assert.NotEmpty(t, cfg.Database.SQLite.Path)
	assert.Equal(t, 5*bytesize.MiB, cfg.Storage.ChunkSize)
	assert.Equal(t, 3, cfg.Storage.MinAvailableNodes)
	assert.Equal(t, 1, cfg.Replication.MinReplicas)
	assert.Equal(t, 5, cfg.Replication.MaxDrainAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Replication.DrainInterval)
	assert.Equal(t, 60*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 3*time.Second, cfg.Monitor.ProbeTimeout)
	assert.Equal(t, time.Hour, cfg.Cache.FileTTL)
	assert.Equal(t, 50*bytesize.MiB, cfg.Cache.MaxFileSize)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)

	require.NoError(t, Validate(cfg))
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "debug"
	cfg.Storage.MinAvailableNodes = 1
	cfg.Replication.MinReplicas = 3

	ApplyDefaults(cfg)

	// Level is normalized to uppercase, not replaced.
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, 1, cfg.Storage.MinAvailableNodes)
	assert.Equal(t, 3, cfg.Replication.MinReplicas)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "VERBOSE"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Logging.Level")
}

func TestValidate_TelemetryNeedsEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telemetry")
}

func TestValidate_ProfilingNeedsEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Profiling.Enabled = true
	cfg.Telemetry.Profiling.Endpoint = ""

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profiling")
}

func TestValidate_PostgresMissingHost(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Database.Type = store.DatabaseTypePostgres
	cfg.Database.Postgres.Database = "shardstore"
	cfg.Database.Postgres.User = "shardstore"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host")
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), cfg)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: debug
  format: json
storage:
  chunk_size: "8Mi"
  min_available_nodes: 2
replication:
  min_replicas: 2
  drain_interval: "90s"
monitor:
  probe_timeout: "10s"
cache:
  max_file_size: "1Mi"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 8*bytesize.MiB, cfg.Storage.ChunkSize)
	assert.Equal(t, 2, cfg.Storage.MinAvailableNodes)
	assert.Equal(t, 2, cfg.Replication.MinReplicas)
	assert.Equal(t, 90*time.Second, cfg.Replication.DrainInterval)
	assert.Equal(t, 10*time.Second, cfg.Monitor.ProbeTimeout)
	assert.Equal(t, bytesize.MiB, cfg.Cache.MaxFileSize)

	// Unset values still get defaults.
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 5, cfg.Replication.MaxDrainAttempts)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("SHARDSTORE_LOGGING_LEVEL", "ERROR")

	path := writeConfigFile(t, `
logging:
  level: info
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ERROR", cfg.Logging.Level)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeConfigFile(t, "logging: [not: a: mapping\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  format: xml
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestSaveConfig_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Logging.Level = "DEBUG"
	cfg.Storage.ChunkSize = 8 * bytesize.MiB
	require.NoError(t, SaveConfig(cfg, path))

	// Config files may hold credentials, so they are written 0600.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", loaded.Logging.Level)
	assert.Equal(t, 8*bytesize.MiB, loaded.Storage.ChunkSize)
}

func TestInitConfigToPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, InitConfigToPath(path, false))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.Logging.Level)

	// A second init refuses to clobber the file unless forced.
	err = InitConfigToPath(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, InitConfigToPath(path, true))
}

func TestMustLoad_MissingExplicitFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
