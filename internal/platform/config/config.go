// Package config loads devflow-identity settings from defaults, YAML profiles
// and APP_ environment variables using koanf, and validates them with
// go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Defaults referenced by tests and callers. Durations live in defaults().
const (
	DefaultServerPort     = 8080
	DefaultMaxRequestSize = 1 << 20

	// DefaultClientTimeout bounds every outbound request unless the caller
	// overrides it.
	DefaultClientTimeout = 5 * time.Second

	DefaultClientCircuitMaxFailures     = 5
	DefaultClientCircuitHalfOpenLimit   = 3
	DefaultTransportMaxIdleConns        = 100
	DefaultTransportMaxIdleConnsPerHost = 10

	DefaultLogFileMaxSizeMB  = 100
	DefaultLogFileMaxBackups = 3
	DefaultLogFileMaxAgeDays = 28

	// DefaultStoreRetryAttempts covers a database still starting alongside
	// the service.
	DefaultStoreRetryAttempts = 3
	DefaultMongoMaxPoolSize   = 100
	DefaultPostgresMaxConns   = 10
)

// envPrefix scopes the environment variables read by Load.
const envPrefix = "APP_"

// Storage drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the root configuration structure.
type Config struct {
	App         AppConfig         `koanf:"app"          validate:"required"`
	Server      ServerConfig      `koanf:"server"       validate:"required"`
	Log         LogConfig         `koanf:"log"          validate:"required"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Storage     StorageConfig     `koanf:"storage"      validate:"required"`
	Events      EventsConfig      `koanf:"events"`
	Client      ClientConfig      `koanf:"client"       validate:"required"`
	IdentityAPI IdentityAPIConfig `koanf:"identity_api" validate:"required"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `koanf:"name"        validate:"required"`
	Version     string `koanf:"version"     validate:"required"`
	Environment string `koanf:"environment" validate:"required,oneof=local dev qa prod test"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"             validate:"required,min=1,max=65535"`
	Host            string        `koanf:"host"             validate:"required"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"required,min=1s"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"required,min=1s"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"required,min=1s"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required,min=1s"`
	MaxRequestSize  int64         `koanf:"max_request_size" validate:"required,min=1"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string        `koanf:"level"  validate:"required,oneof=trace debug info warn error"`
	Format string        `koanf:"format" validate:"required,oneof=json text pretty"`
	File   LogFileConfig `koanf:"file"`
}

// LogFileConfig contains rolling log file settings.
type LogFileConfig struct {
	Enabled    bool   `koanf:"enabled"`
	Path       string `koanf:"path"        validate:"required_if=Enabled true"`
	MaxSizeMB  int    `koanf:"max_size"    validate:"omitempty,min=1,max=1024"`
	MaxBackups int    `koanf:"max_backups" validate:"omitempty,min=0,max=100"`
	MaxAgeDays int    `koanf:"max_age"     validate:"omitempty,min=0,max=365"`
	Compress   bool   `koanf:"compress"`
}

// TelemetryConfig contains OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"      validate:"required_if=Enabled true,omitempty,url"`
	ServiceName  string  `koanf:"service_name"  validate:"required_if=Enabled true"`
	SamplingRate float64 `koanf:"sampling_rate" validate:"min=0,max=1"`
}

// StorageConfig selects and configures the identity store.
type StorageConfig struct {
	Driver        string         `koanf:"driver"         validate:"required,oneof=mongo postgres memory"`
	RetryAttempts int            `koanf:"retry_attempts" validate:"required,min=1,max=20"`
	RetryInterval time.Duration  `koanf:"retry_interval" validate:"required,min=100ms"`
	Mongo         MongoConfig    `koanf:"mongo"`
	Postgres      PostgresConfig `koanf:"postgres"`
}

// MongoConfig contains MongoDB settings. Transactions require a replica set.
type MongoConfig struct {
	URI            string        `koanf:"uri"`
	Database       string        `koanf:"database"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" validate:"omitempty,min=1s"`
	MaxPoolSize    uint64        `koanf:"max_pool_size"   validate:"omitempty,min=1"`
}

// PostgresConfig contains PostgreSQL settings.
type PostgresConfig struct {
	DSN             string        `koanf:"dsn"`
	MaxConns        int32         `koanf:"max_conns"          validate:"omitempty,min=1"`
	MaxConnIdleTime time.Duration `koanf:"max_conn_idle_time"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
	MigrationsTable string        `koanf:"migrations_table"`
}

// EventsConfig contains identity event publishing settings.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	NATSURL       string `koanf:"nats_url"       validate:"required_if=Enabled true"`
	SubjectPrefix string `koanf:"subject_prefix" validate:"required_if=Enabled true"`
}

// ClientConfig contains outbound HTTP client settings.
type ClientConfig struct {
	Timeout        time.Duration        `koanf:"timeout"         validate:"required,min=100ms"`
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker" validate:"required"`
	Transport      TransportConfig      `koanf:"transport"       validate:"required"`
}

// CircuitBreakerConfig contains circuit breaker settings for HTTP clients.
type CircuitBreakerConfig struct {
	MaxFailures   int           `koanf:"max_failures"    validate:"required,min=1"`
	Timeout       time.Duration `koanf:"timeout"         validate:"required,min=1s"`
	HalfOpenLimit int           `koanf:"half_open_limit" validate:"required,min=1"`
}

// TransportConfig contains HTTP transport pool settings.
type TransportConfig struct {
	MaxIdleConns        int           `koanf:"max_idle_conns"          validate:"required,min=1"`
	MaxIdleConnsPerHost int           `koanf:"max_idle_conns_per_host" validate:"required,min=1"`
	IdleConnTimeout     time.Duration `koanf:"idle_conn_timeout"       validate:"required,min=1s"`
}

// IdentityAPIConfig locates a running identity service for outbound callers
// such as identityctl.
type IdentityAPIConfig struct {
	BaseURL string `koanf:"base_url" validate:"required,url"`
	Name    string `koanf:"name"     validate:"required"`
}

// defaults returns the default configuration values.
func defaults() map[string]any {
	return map[string]any{
		"app.name":        "devflow-identity",
		"app.version":     "dev",
		"app.environment": "local",

		"server.port":             DefaultServerPort,
		"server.host":             "0.0.0.0",
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "10s",
		"server.max_request_size": DefaultMaxRequestSize,

		"log.level":            "info",
		"log.format":           "json",
		"log.file.enabled":     false,
		"log.file.path":        "./logs/app.log",
		"log.file.max_size":    DefaultLogFileMaxSizeMB,
		"log.file.max_backups": DefaultLogFileMaxBackups,
		"log.file.max_age":     DefaultLogFileMaxAgeDays,
		"log.file.compress":    true,

		"telemetry.enabled":       false,
		"telemetry.endpoint":      "",
		"telemetry.service_name":  "devflow-identity",
		"telemetry.sampling_rate": 1.0,

		"storage.driver":                      DriverMemory,
		"storage.retry_attempts":              DefaultStoreRetryAttempts,
		"storage.retry_interval":              "2s",
		"storage.mongo.uri":                   "mongodb://localhost:27017/?replicaSet=rs0",
		"storage.mongo.database":              "devflow",
		"storage.mongo.connect_timeout":       "10s",
		"storage.mongo.max_pool_size":         DefaultMongoMaxPoolSize,
		"storage.postgres.dsn":                "",
		"storage.postgres.max_conns":          DefaultPostgresMaxConns,
		"storage.postgres.max_conn_idle_time": "10m",
		"storage.postgres.max_conn_lifetime":  "30m",
		"storage.postgres.migrations_table":   "schema_migrations",

		"events.enabled":        false,
		"events.nats_url":       "nats://localhost:4222",
		"events.subject_prefix": "devflow.identity",

		"client.timeout":                           DefaultClientTimeout.String(),
		"client.circuit_breaker.max_failures":      DefaultClientCircuitMaxFailures,
		"client.circuit_breaker.timeout":           "30s",
		"client.circuit_breaker.half_open_limit":   DefaultClientCircuitHalfOpenLimit,
		"client.transport.max_idle_conns":          DefaultTransportMaxIdleConns,
		"client.transport.max_idle_conns_per_host": DefaultTransportMaxIdleConnsPerHost,
		"client.transport.idle_conn_timeout":       "90s",

		"identity_api.base_url": "http://localhost:8080",
		"identity_api.name":     "identity-api",
	}
}

// Load layers configuration sources, later ones winning:
//
//	defaults < configs/base.yaml < configs/<profile>.yaml < APP_* env vars
//
// Missing files are skipped. Load does not validate; call Validate.
func Load(profile string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	layers := []struct{ name, path string }{{"base config", "configs/base.yaml"}}
	if profile != "" {
		layers = append(layers, struct{ name, path string }{
			fmt.Sprintf("profile config %q", profile),
			filepath.Join("configs", profile+".yaml"),
		})
	}

	for _, layer := range layers {
		if err := loadFileIfExists(k, layer.path); err != nil {
			return nil, fmt.Errorf("loading %s: %w", layer.name, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

// envKeys maps the underscore form of every known key back to its dotted
// path, so segments like nats_url survive the env translation.
var envKeys = func() map[string]string {
	keys := make(map[string]string)
	for key := range defaults() {
		keys[strings.ReplaceAll(key, ".", "_")] = key
	}

	return keys
}()

// envKey maps APP_SERVER_READ_TIMEOUT to server.read_timeout. Unknown keys
// have every underscore replaced with a dot.
func envKey(s string) string {
	name := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if key, ok := envKeys[name]; ok {
		return key
	}

	return strings.ReplaceAll(name, "_", ".")
}

// loadFileIfExists parses path as YAML. A missing file is not an error.
func loadFileIfExists(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return k.Load(file.Provider(path), yaml.Parser())
}
