package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "X-Payment-Signature", cfg.Webhook.SignatureHeader)
	assert.True(t, cfg.Webhook.PaymentsEnabled)
	assert.Equal(t, 0, cfg.Authz.CacheSize)
	assert.Empty(t, cfg.Audit.LogDir)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("MERCHANTRY_ENV", "production")
	t.Setenv("MERCHANTRY_PORT", "8888")
	t.Setenv("MERCHANTRY_POSTGRES_HOST", "db.internal")
	t.Setenv("MERCHANTRY_AUTHZ_CACHE_SIZE", "4096")
	t.Setenv("MERCHANTRY_AUTHZ_CACHE_TTL", "1m")
	t.Setenv("MERCHANTRY_PAYMENTS_ENABLED", "false")
	t.Setenv("MERCHANTRY_AUDIT_LOG_DIR", "/var/log/merchantry/audit")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.True(t, cfg.Environment.IsProduction())
	assert.Equal(t, "8888", cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 4096, cfg.Authz.CacheSize)
	assert.Equal(t, "1m0s", cfg.Authz.CacheTTL.String())
	assert.False(t, cfg.Webhook.PaymentsEnabled)
	assert.Equal(t, "/var/log/merchantry/audit", cfg.Audit.LogDir)
}

func TestLoadConfigRejectsSamePorts(t *testing.T) {
	t.Setenv("MERCHANTRY_PORT", "8080")
	t.Setenv("MERCHANTRY_HEALTH_PORT", "8080")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be different")
}

func TestParseEnvironment(t *testing.T) {
	assert.Equal(t, EnvProduction, parseEnvironment("production"))
	assert.Equal(t, EnvProduction, parseEnvironment("PROD"))
	assert.Equal(t, EnvStaging, parseEnvironment("staging"))
	assert.Equal(t, EnvDevelopment, parseEnvironment("development"))
	assert.Equal(t, EnvDevelopment, parseEnvironment(""))
	assert.Equal(t, EnvDevelopment, parseEnvironment("anything-else"))
}

func TestDatabaseDSN(t *testing.T) {
	dsn := DatabaseConfig{
		Host:     "localhost",
		Port:     "5432",
		User:     "merchantry",
		Password: "hunter2hunter2",
		Name:     "merchantry",
		SSLMode:  "require",
	}.DSN()

	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "sslmode=require")
	assert.Contains(t, dsn, "dbname=merchantry")
}

func TestValidateNegativeCacheSize(t *testing.T) {
	cfg := &Config{
		Environment: EnvDevelopment,
		Server:      ServerConfig{Port: "8080", HealthPort: "9090"},
		Database:    DatabaseConfig{Host: "localhost", Name: "merchantry"},
		Authz:       AuthzConfig{CacheSize: -1},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache size")
}
