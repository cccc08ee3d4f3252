package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TASKAPI_DB_SOURCE", "postgres://localhost/tasks")
	t.Setenv("TASKAPI_JWT_SIGNING_KEY", testKey)
	t.Setenv("TASKAPI_JWT_ISSUER", "taskapi")
	t.Setenv("TASKAPI_JWT_AUDIENCE", "taskapi-clients")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 3*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, 8, cfg.Auth.PasswordMinLength)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadYAMLThenEnvOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TASKAPI_HTTP_ADDR", ":9090")

	path := filepath.Join(t.TempDir(), "taskapi.yaml")
	content := `
http:
  addr: ":7070"
  request_timeout: 10s
database:
  driver: sqlite
redis:
  addr: "localhost:6379"
  cache_ttl: 1m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Minute, cfg.Redis.CacheTTL)
}

func TestLoadMissingFile(t *testing.T) {
	setRequiredEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "short signing key", mutate: func(c *Config) { c.Auth.SigningKey = "short" }, wantErr: "TASKAPI_JWT_SIGNING_KEY"},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: "TASKAPI_DB_DRIVER"},
		{name: "missing source", mutate: func(c *Config) { c.Database.Source = " " }, wantErr: "TASKAPI_DB_SOURCE"},
		{name: "missing issuer", mutate: func(c *Config) { c.Auth.Issuer = "" }, wantErr: "TASKAPI_JWT_ISSUER"},
		{name: "missing audience", mutate: func(c *Config) { c.Auth.Audience = "" }, wantErr: "TASKAPI_JWT_AUDIENCE"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{
				Database: DatabaseConfig{Driver: DriverSQLite, Source: ":memory:"},
				Auth:     AuthConfig{SigningKey: testKey, Issuer: "iss", Audience: "aud"},
			}
			cfg.applyDefaults()
			tc.mutate(&cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
