// Package config loads the service configuration once at startup. The
// resulting Config is treated as immutable and passed by value into the
// components that need it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	// MinSigningKeyLength is the shortest HS256 key accepted at startup.
	MinSigningKeyLength = 32

	DefaultServiceName = "taskapi"
)

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr" env:"TASKAPI_HTTP_ADDR"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"TASKAPI_REQUEST_TIMEOUT"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver" env:"TASKAPI_DB_DRIVER"`
	Source       string `yaml:"source" env:"TASKAPI_DB_SOURCE"`
	MaxOpenConns int    `yaml:"max_open_conns" env:"TASKAPI_DB_MAX_OPEN_CONNS"`
}

// RedisConfig configures the task read cache. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string        `yaml:"addr" env:"TASKAPI_REDIS_ADDR"`
	Password string        `yaml:"password" env:"TASKAPI_REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"TASKAPI_REDIS_DB"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"TASKAPI_CACHE_TTL"`
}

type AuthConfig struct {
	SigningKey        string        `yaml:"signing_key" env:"TASKAPI_JWT_SIGNING_KEY"`
	Issuer            string        `yaml:"issuer" env:"TASKAPI_JWT_ISSUER"`
	Audience          string        `yaml:"audience" env:"TASKAPI_JWT_AUDIENCE"`
	TokenTTL          time.Duration `yaml:"token_ttl" env:"TASKAPI_JWT_TTL"`
	PasswordMinLength int           `yaml:"password_min_length" env:"TASKAPI_PASSWORD_MIN_LENGTH"`
}

// TelemetryConfig enables OTLP tracing when OTLPEndpoint is set.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"TASKAPI_OTEL_ENDPOINT"`
	ServiceName  string `yaml:"service_name" env:"TASKAPI_OTEL_SERVICE_NAME"`
}

// Load reads the optional YAML file at path, overlays environment variables,
// fills defaults and validates the result.
func Load(path string) (Config, error) {
	var cfg Config

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.RequestTimeout == 0 {
		c.HTTP.RequestTimeout = 3 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = 5 * time.Minute
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = time.Hour
	}
	if c.Auth.PasswordMinLength == 0 {
		c.Auth.PasswordMinLength = 8
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("TASKAPI_DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver))
	}
	if strings.TrimSpace(c.Database.Source) == "" {
		errs = append(errs, errors.New("TASKAPI_DB_SOURCE is required"))
	}
	if len(c.Auth.SigningKey) < MinSigningKeyLength {
		errs = append(errs, fmt.Errorf("TASKAPI_JWT_SIGNING_KEY must be at least %d bytes", MinSigningKeyLength))
	}
	if strings.TrimSpace(c.Auth.Issuer) == "" {
		errs = append(errs, errors.New("TASKAPI_JWT_ISSUER is required"))
	}
	if strings.TrimSpace(c.Auth.Audience) == "" {
		errs = append(errs, errors.New("TASKAPI_JWT_AUDIENCE is required"))
	}
	if c.Auth.TokenTTL < 0 || c.HTTP.RequestTimeout < 0 || c.Redis.CacheTTL < 0 {
		errs = append(errs, errors.New("durations must be positive"))
	}
	if c.Auth.PasswordMinLength < 1 {
		errs = append(errs, errors.New("TASKAPI_PASSWORD_MIN_LENGTH must be positive"))
	}

	return errors.Join(errs...)
}
