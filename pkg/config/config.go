// Package config loads and validates application configuration from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/merchantry/merchantry/pkg/observability"
)

// Environment identifies the deployment environment
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvStaging     Environment = "staging"
	EnvDevelopment Environment = "development"
)

// IsProduction reports whether the environment is production
func (e Environment) IsProduction() bool {
	return e == EnvProduction
}

// Config holds all application configuration
type Config struct {
	Environment Environment

	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Webhook   WebhookConfig
	Authz     AuthzConfig
	Audit     AuditConfig
	LogLevel  observability.LogLevel
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the PostgreSQL connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// RedisConfig holds Redis configuration for distributed rate limiting
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// SecretKey signs session material and must be strong in production
	SecretKey string
}

// WebhookConfig holds payment-provider webhook configuration
type WebhookConfig struct {
	// Secret is the shared HMAC key for inbound payment callbacks
	Secret string
	// PaymentsEnabled gates whether the webhook secret is mandatory
	PaymentsEnabled bool
	// SignatureHeader carries the provider's hex HMAC-SHA256 signature
	SignatureHeader string
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	// LogDir enables the file sink alongside the database when non-empty
	LogDir string
}

// AuthzConfig holds permission evaluator tuning
type AuthzConfig struct {
	// CacheSize is the max number of cached memberships; 0 disables caching
	CacheSize int
	// CacheTTL bounds staleness for cached entries
	CacheTTL time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment: parseEnvironment(getEnv("MERCHANTRY_ENV", "development")),
		Server: ServerConfig{
			Host:            getEnv("MERCHANTRY_HOST", "0.0.0.0"),
			Port:            getEnv("MERCHANTRY_PORT", "8080"),
			ReadTimeout:     getEnvDuration("MERCHANTRY_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("MERCHANTRY_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("MERCHANTRY_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("MERCHANTRY_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("MERCHANTRY_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("MERCHANTRY_POSTGRES_HOST", "localhost"),
			Port:            getEnv("MERCHANTRY_POSTGRES_PORT", "5432"),
			User:            getEnv("MERCHANTRY_POSTGRES_USER", "merchantry"),
			Password:        getEnv("MERCHANTRY_POSTGRES_PASSWORD", ""),
			Name:            getEnv("MERCHANTRY_POSTGRES_DB", "merchantry"),
			SSLMode:         getEnv("MERCHANTRY_POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("MERCHANTRY_POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("MERCHANTRY_POSTGRES_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("MERCHANTRY_POSTGRES_CONN_MAX_LIFETIME", 15*time.Minute),
		},
		Redis: RedisConfig{
			URL:      getEnv("MERCHANTRY_REDIS_URL", ""),
			Password: getEnv("MERCHANTRY_REDIS_PASSWORD", ""),
			DB:       getEnvInt("MERCHANTRY_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			SecretKey: getEnv("MERCHANTRY_SECRET_KEY", ""),
		},
		Webhook: WebhookConfig{
			Secret:          getEnv("MERCHANTRY_WEBHOOK_SECRET", ""),
			PaymentsEnabled: getEnvBool("MERCHANTRY_PAYMENTS_ENABLED", true),
			SignatureHeader: getEnv("MERCHANTRY_WEBHOOK_SIGNATURE_HEADER", "X-Payment-Signature"),
		},
		Authz: AuthzConfig{
			CacheSize: getEnvInt("MERCHANTRY_AUTHZ_CACHE_SIZE", 0),
			CacheTTL:  getEnvDuration("MERCHANTRY_AUTHZ_CACHE_TTL", 30*time.Second),
		},
		Audit: AuditConfig{
			LogDir: getEnv("MERCHANTRY_AUDIT_LOG_DIR", ""),
		},
		LogLevel: parseLogLevel(getEnv("MERCHANTRY_LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks structural configuration validity. Secret presence is the
// job of ValidateRequiredSecrets, consulted separately at startup.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	switch c.Environment {
	case EnvProduction, EnvStaging, EnvDevelopment:
	default:
		return fmt.Errorf("invalid environment: %s (must be production, staging, or development)", c.Environment)
	}
	if c.Database.Host == "" || c.Database.Name == "" {
		return fmt.Errorf("database host and name are required")
	}
	if c.Authz.CacheSize < 0 {
		return fmt.Errorf("authz cache size must not be negative")
	}
	return nil
}

func parseEnvironment(value string) Environment {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "production", "prod":
		return EnvProduction
	case "staging":
		return EnvStaging
	default:
		return EnvDevelopment
	}
}

func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
