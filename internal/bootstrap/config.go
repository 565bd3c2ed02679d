package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/target/lessonhub/config"
)

// InitLogger initializes the structured logger at the given level
// (debug, info, warn, error). Unknown levels fall back to info.
func InitLogger(level string) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateConfig rejects configurations the server cannot start with.
func ValidateConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	var errs []error
	if cfg.Session.Secret == "" {
		if !cfg.IsDev {
			errs = append(errs, errors.New("SESSION_SECRET is required"))
		}
	}
	if cfg.TokenEncryptionKey == "" && !cfg.IsDev {
		errs = append(errs, errors.New("TOKEN_ENCRYPTION_KEY is required outside development"))
	}
	if cfg.Auth.Mode == config.AuthModeMock && !cfg.IsDev {
		errs = append(errs, errors.New("AUTH_MODE=mock is only allowed in development"))
	}
	return errors.Join(errs...)
}
