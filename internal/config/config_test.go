package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creatorstudio/internal/blob"
	"creatorstudio/internal/core"
	"creatorstudio/pkg/domain"
)

func env(kv map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := kv[k]
		return v, ok
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "creatorstudio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := LoadWith("", nil)
	require.NoError(t, err)
	assert.Equal(t, core.StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, domain.CascadeLeave, cfg.Storage.Cascade)
	assert.Equal(t, blob.DriverFilesystem, cfg.Blob.Driver)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, DefaultAssetOrigin, cfg.Cache.Manifest.Origin)
}

func TestFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
log:
  level: debug
http:
  addr: 127.0.0.1:9000
  shutdown_timeout: 3s
storage:
  driver: snapshot
  cascade: detach
  snapshot:
    persister: sqlite
    path: /tmp/state.db
blob:
  driver: memory
cache:
  manifest:
    origin: https://studio.example
    version: v7
`)
	cfg, err := LoadWith(path, env(nil))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, 3*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, core.StorageSnapshot, cfg.Storage.Driver)
	assert.Equal(t, core.PersisterSQLite, cfg.Storage.Snapshot.Persister)
	assert.Equal(t, domain.CascadeDetach, cfg.Storage.Cascade)
	assert.Equal(t, blob.DriverMemory, cfg.Blob.Driver)
	assert.Equal(t, "v7", cfg.Cache.Manifest.Version)
	assert.NotEmpty(t, cfg.Cache.Manifest.Assets, "unset manifest fields keep their defaults")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "storage:\n  driver: memdb\n")
	cfg, err := LoadWith(path, env(map[string]string{
		"CREATORSTUDIO_STORAGE_DRIVER":       "sqlite",
		"CREATORSTUDIO_STORAGE_SQLITE_PATH":  "/data/studio.db",
		"CREATORSTUDIO_STORAGE_CASCADE":      "delete",
		"CREATORSTUDIO_HTTP_ALLOWED_ORIGINS": "http://a.test, http://b.test",
		"CREATORSTUDIO_BLOB_DRIVER":          "s3",
		"CREATORSTUDIO_S3_BUCKET":            "assets",
		"CREATORSTUDIO_S3_PATH_STYLE":        "true",
		"CREATORSTUDIO_CACHE_ENABLED":        "false",
		"CREATORSTUDIO_PLANNER_TIMEOUT":      "5s",
	}))
	require.NoError(t, err)
	assert.Equal(t, core.StorageSQLite, cfg.Storage.Driver)
	assert.Equal(t, "/data/studio.db", cfg.Storage.SQLitePath)
	assert.Equal(t, domain.CascadeDelete, cfg.Storage.Cascade)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, blob.DriverS3, cfg.Blob.Driver)
	assert.Equal(t, "assets", cfg.Blob.S3.Bucket)
	assert.True(t, cfg.Blob.S3.PathStyle)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Planner.Timeout)
}

func TestInvalidConfigurations(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown storage driver": {"CREATORSTUDIO_STORAGE_DRIVER": "tape"},
		"unknown cascade":        {"CREATORSTUDIO_STORAGE_CASCADE": "orphan"},
		"bad bool":               {"CREATORSTUDIO_CACHE_ENABLED": "maybe"},
		"bad duration":           {"CREATORSTUDIO_PLANNER_TIMEOUT": "soon"},
		"s3 without bucket":      {"CREATORSTUDIO_BLOB_DRIVER": "s3"},
		"bad log level":          {"CREATORSTUDIO_LOG_LEVEL": "loud"},
		"bad origin":             {"CREATORSTUDIO_CACHE_ORIGIN": "not a url"},
		"postgres without dsn": {
			"CREATORSTUDIO_STORAGE_DRIVER":             "snapshot",
			"CREATORSTUDIO_STORAGE_SNAPSHOT_PERSISTER": "postgres",
		},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadWith("", env(vars))
			assert.Error(t, err)
		})
	}
}

func TestFileErrors(t *testing.T) {
	_, err := LoadWith(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	_, err = LoadWith(writeFile(t, "storage:\n  drvier: memdb\n"), nil)
	assert.Error(t, err, "unknown keys are rejected")

	cfg, err := LoadWith(writeFile(t, ""), nil)
	require.NoError(t, err)
	assert.Equal(t, Default().HTTP.Addr, cfg.HTTP.Addr)
}
