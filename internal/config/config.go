// Package config loads creatorstudio settings. Values are layered: built-in
// defaults, then an optional YAML file, then CREATORSTUDIO_* environment
// variables. The result is validated before use.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"creatorstudio/internal/blob"
	"creatorstudio/internal/core"
	"creatorstudio/internal/offline"
	"creatorstudio/internal/planner"
	"creatorstudio/pkg/domain"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CREATORSTUDIO_"

// DefaultAssetOrigin is where the front-end assets are served from during
// development. It must differ from HTTP.Addr when the asset proxy is mounted.
const DefaultAssetOrigin = "http://localhost:3000"

// Config is the complete application configuration.
type Config struct {
	Log     LogConfig          `yaml:"log"`
	HTTP    HTTPConfig         `yaml:"http"`
	Storage core.StorageConfig `yaml:"storage"`
	Blob    blob.Config        `yaml:"blob"`
	Cache   CacheConfig        `yaml:"cache"`
	Planner PlannerConfig      `yaml:"planner"`
}

// LogConfig selects the zap logger.
type LogConfig struct {
	Level       string `yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
}

// CacheConfig configures the offline cache coordinator.
type CacheConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Root     string           `yaml:"root"`
	Manifest offline.Manifest `yaml:"manifest"`
}

// PlannerConfig configures the planning collaborator.
type PlannerConfig struct {
	SettingsKey string                `yaml:"settings_key"`
	Timeout     time.Duration         `yaml:"timeout" validate:"gte=0"`
	Breaker     planner.BreakerConfig `yaml:"breaker"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"*"},
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: core.StorageConfig{
			Driver:     core.StorageSQLite,
			SQLitePath: "creatorstudio.db",
			Snapshot:   core.SnapshotConfig{Persister: core.PersisterFile, Path: "creatorstudio.json"},
			Cascade:    domain.CascadeLeave,
		},
		Blob: blob.Config{Driver: blob.DriverFilesystem, Root: "blobdata"},
		Cache: CacheConfig{
			Enabled:  true,
			Root:     "offline",
			Manifest: offline.DefaultManifest(DefaultAssetOrigin),
		},
		Planner: PlannerConfig{
			SettingsKey: planner.DefaultSettingsKey,
			Timeout:     30 * time.Second,
			Breaker:     planner.DefaultBreakerConfig(),
		},
	}
}

// Load builds the configuration from path (optional) and the process
// environment.
func Load(path string) (Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// LoadWith is Load with an explicit environment.
func LoadWith(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if lookup != nil {
		if err := applyEnv(&cfg, lookup); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Blob.Driver == blob.DriverS3 && c.Blob.S3.Bucket == "" {
		return errors.New("invalid config: blob.s3.bucket is required when blob.driver is s3")
	}
	if c.Storage.Driver == core.StorageSnapshot && c.Storage.Snapshot.Persister == core.PersisterPostgres && c.Storage.Snapshot.PostgresDSN == "" {
		return errors.New("invalid config: storage.snapshot.postgres_dsn is required for the postgres persister")
	}
	return nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(name string, dst *bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = b
	}
	duration := func(name string, dst *time.Duration) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = d
	}

	str("LOG_LEVEL", &cfg.Log.Level)
	boolean("LOG_DEVELOPMENT", &cfg.Log.Development)

	str("HTTP_ADDR", &cfg.HTTP.Addr)
	if v, ok := lookup(EnvPrefix + "HTTP_ALLOWED_ORIGINS"); ok && v != "" {
		cfg.HTTP.AllowedOrigins = splitList(v)
	}
	duration("HTTP_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout)

	var driver, persister, cascade string
	str("STORAGE_DRIVER", &driver)
	if driver != "" {
		cfg.Storage.Driver = core.StorageDriver(driver)
	}
	str("STORAGE_SQLITE_PATH", &cfg.Storage.SQLitePath)
	str("STORAGE_SNAPSHOT_PERSISTER", &persister)
	if persister != "" {
		cfg.Storage.Snapshot.Persister = core.PersisterKind(persister)
	}
	str("STORAGE_SNAPSHOT_PATH", &cfg.Storage.Snapshot.Path)
	str("STORAGE_POSTGRES_DSN", &cfg.Storage.Snapshot.PostgresDSN)
	str("STORAGE_BLOB_PREFIX", &cfg.Storage.Snapshot.BlobPrefix)
	str("STORAGE_CASCADE", &cascade)
	if cascade != "" {
		p, err := domain.ParseCascadePolicy(cascade)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sSTORAGE_CASCADE: %w", EnvPrefix, err))
		} else {
			cfg.Storage.Cascade = p
		}
	}

	var blobDriver string
	str("BLOB_DRIVER", &blobDriver)
	if blobDriver != "" {
		cfg.Blob.Driver = blob.Driver(blobDriver)
	}
	str("BLOB_ROOT", &cfg.Blob.Root)
	str("S3_BUCKET", &cfg.Blob.S3.Bucket)
	str("S3_REGION", &cfg.Blob.S3.Region)
	str("S3_ENDPOINT", &cfg.Blob.S3.Endpoint)
	str("S3_ACCESS_KEY_ID", &cfg.Blob.S3.AccessKeyID)
	str("S3_SECRET_ACCESS_KEY", &cfg.Blob.S3.SecretAccessKey)
	str("S3_SESSION_TOKEN", &cfg.Blob.S3.SessionToken)
	boolean("S3_PATH_STYLE", &cfg.Blob.S3.PathStyle)

	boolean("CACHE_ENABLED", &cfg.Cache.Enabled)
	str("CACHE_ROOT", &cfg.Cache.Root)
	str("CACHE_ORIGIN", &cfg.Cache.Manifest.Origin)
	str("CACHE_VERSION", &cfg.Cache.Manifest.Version)

	str("PLANNER_SETTINGS_KEY", &cfg.Planner.SettingsKey)
	duration("PLANNER_TIMEOUT", &cfg.Planner.Timeout)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
