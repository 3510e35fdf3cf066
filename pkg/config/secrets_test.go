package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchantry/merchantry/pkg/observability"
)

func strongSecret() string {
	return strings.Repeat("s", 40)
}

func secretsConfig(env Environment) *Config {
	return &Config{
		Environment: env,
		Auth:        AuthConfig{SecretKey: strongSecret()},
		Database:    DatabaseConfig{Password: strongSecret()},
		Webhook:     WebhookConfig{Secret: strongSecret(), PaymentsEnabled: true},
	}
}

// logLines parses one JSON log record per line
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var lines []map[string]interface{}
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var record map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(raw), &record))
		lines = append(lines, record)
	}
	return lines
}

func TestValidateRequiredSecretsAllPresent(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.DebugLevel, &buf)

	ok := secretsConfig(EnvProduction).ValidateRequiredSecrets(logger)
	assert.True(t, ok)
	assert.Empty(t, buf.String())
}

func TestValidateRequiredSecretsProductionMissing(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.DebugLevel, &buf)

	cfg := secretsConfig(EnvProduction)
	cfg.Auth.SecretKey = ""
	cfg.Webhook.Secret = ""

	ok := cfg.ValidateRequiredSecrets(logger)
	assert.False(t, ok)

	// One log line per missing secret, at error level
	lines := logLines(t, &buf)
	require.Len(t, lines, 2)
	names := []string{}
	for _, line := range lines {
		assert.Equal(t, "ERROR", line["level"])
		names = append(names, line["secret"].(string))
	}
	assert.Contains(t, names, "MERCHANTRY_SECRET_KEY")
	assert.Contains(t, names, "MERCHANTRY_WEBHOOK_SECRET")
}

func TestValidateRequiredSecretsDevelopmentMissing(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.DebugLevel, &buf)

	cfg := secretsConfig(EnvDevelopment)
	cfg.Auth.SecretKey = ""
	cfg.Database.Password = ""

	ok := cfg.ValidateRequiredSecrets(logger)
	assert.True(t, ok)

	lines := logLines(t, &buf)
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Equal(t, "WARN", line["level"])
	}
}

func TestValidateRequiredSecretsInsecurePlaceholder(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.DebugLevel, &buf)

	cfg := secretsConfig(EnvProduction)
	cfg.Auth.SecretKey = "ChangeMe"

	ok := cfg.ValidateRequiredSecrets(logger)
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "insecure placeholder")
}

func TestValidateRequiredSecretsShortSecretWarnsOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.DebugLevel, &buf)

	cfg := secretsConfig(EnvProduction)
	cfg.Webhook.Secret = "tooshortbutreal"

	ok := cfg.ValidateRequiredSecrets(logger)
	assert.True(t, ok)

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "WARN", lines[0]["level"])
	assert.Contains(t, lines[0]["msg"], "shorter than recommended")
}

func TestValidateRequiredSecretsWebhookOptionalWhenPaymentsDisabled(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(observability.DebugLevel, &buf)

	cfg := secretsConfig(EnvProduction)
	cfg.Webhook.Secret = ""
	cfg.Webhook.PaymentsEnabled = false

	ok := cfg.ValidateRequiredSecrets(logger)
	assert.True(t, ok)
	assert.Empty(t, buf.String())
}
