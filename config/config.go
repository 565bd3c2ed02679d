package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: login providers and password hashing
//   - session.go: session cookie and store
//   - database.go: Postgres and Redis connections
//   - http.go: HTTP server and upload limits
//   - observability.go: StatsD metrics
type AppConfig struct {
	// IsDev controls development mode behavior (error detail in 500 responses).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// DevSeed creates local demo accounts on start. Only honored in dev mode.
	DevSeed bool `env:"DEV_SEED" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// TokenEncryptionKey encrypts OAuth tokens at rest.
	// Required for production, optional for development.
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`

	// Authentication configuration
	Auth AuthConfig

	// Session configuration
	Session SessionConfig `envPrefix:"SESSION_"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Metrics configuration
	Metrics MetricsConfig

	// HTTP server configuration
	HTTP   HTTPConfig
	Upload UploadConfig `envPrefix:"UPLOAD_"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Session.Sanitize()
	c.Auth.Sanitize()
	c.Upload.Sanitize()
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}
