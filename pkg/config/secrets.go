package config

import (
	"strings"

	"github.com/merchantry/merchantry/pkg/observability"
)

// minSecretLength is the threshold below which a secret is flagged as weak
const minSecretLength = 32

// insecureDefaults are placeholder values that must never ship. Comparison is
// case-insensitive.
var insecureDefaults = []string{
	"changeme",
	"change-me",
	"secret",
	"password",
	"default",
	"dev-secret",
	"insecure",
	"test",
}

// requiredSecret names one mandatory configuration value
type requiredSecret struct {
	name  string
	value string
}

// ValidateRequiredSecrets checks that every mandatory secret is present and
// is not a known insecure placeholder. One line is logged per offending
// value. In production the result is false when anything is missing; in
// non-production environments missing values only produce warnings and the
// result stays true, so local development is not blocked.
func (c *Config) ValidateRequiredSecrets(logger *observability.Logger) bool {
	required := []requiredSecret{
		{name: "MERCHANTRY_SECRET_KEY", value: c.Auth.SecretKey},
		{name: "MERCHANTRY_POSTGRES_PASSWORD", value: c.Database.Password},
	}
	if c.Webhook.PaymentsEnabled {
		required = append(required, requiredSecret{
			name:  "MERCHANTRY_WEBHOOK_SECRET",
			value: c.Webhook.Secret,
		})
	}

	production := c.Environment.IsProduction()
	ok := true

	for _, secret := range required {
		switch {
		case strings.TrimSpace(secret.value) == "":
			if production {
				logger.WithField("secret", secret.name).Error("required secret is not set")
				ok = false
			} else {
				logger.WithField("secret", secret.name).Warn("required secret is not set")
			}
		case isInsecureDefault(secret.value):
			if production {
				logger.WithField("secret", secret.name).Error("required secret is an insecure placeholder")
				ok = false
			} else {
				logger.WithField("secret", secret.name).Warn("required secret is an insecure placeholder")
			}
		case len(secret.value) < minSecretLength:
			// Weak but present: a quality signal, never a startup failure.
			logger.WithField("secret", secret.name).
				WithField("min_length", minSecretLength).
				Warn("secret is shorter than recommended")
		}
	}

	return ok
}

func isInsecureDefault(value string) bool {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, placeholder := range insecureDefaults {
		if normalized == placeholder {
			return true
		}
	}
	return false
}
