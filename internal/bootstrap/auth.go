package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/lessonhub/config"
	"github.com/target/lessonhub/internal/adapters/devauth"
	"github.com/target/lessonhub/internal/adapters/github"
	"github.com/target/lessonhub/internal/adapters/google"
	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/ports"
)

// ProvidersConfig contains configuration for the identity providers.
type ProvidersConfig struct {
	Auth   config.AuthConfig
	Logger *slog.Logger
}

// BuildProviders creates the identity providers for the configured auth mode.
// In oauth mode a provider without a client id is skipped; an empty result
// leaves local email/password login as the only option.
func BuildProviders(ctx context.Context, cfg ProvidersConfig) ([]ports.OAuthProvider, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		return buildMockProviders(cfg.Auth.DevAuth, logger)
	case config.AuthModeOAuth, "":
		return buildOAuthProviders(ctx, cfg.Auth, logger)
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
}

// buildMockProviders registers the dev provider plus local stand-ins for
// GitHub and Google so every login route works offline.
func buildMockProviders(dev config.DevAuthConfig, logger *slog.Logger) ([]ports.OAuthProvider, error) {
	standIns := []struct {
		name   domainauth.Provider
		scopes []string
	}{
		{domainauth.ProviderDev, dev.Scopes},
		{domainauth.ProviderGitHub, github.DefaultScopes},
		{domainauth.ProviderGoogle, google.DefaultScopes},
	}

	providers := make([]ports.OAuthProvider, 0, len(standIns))
	for _, s := range standIns {
		subject := dev.Subject
		if s.name != domainauth.ProviderDev {
			subject = dev.Subject + "-" + s.name.String()
		}
		prov, err := devauth.NewProvider(devauth.Config{
			Provider: s.name,
			Subject:  subject,
			Email:    dev.Email,
			Name:     dev.Name,
			Scopes:   s.scopes,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s dev provider: %w", s.name, err)
		}
		providers = append(providers, prov)
	}

	logger.Warn("mock auth mode enabled; identity providers are local stand-ins",
		"subject", dev.Subject, "email", dev.Email)
	return providers, nil
}

func buildOAuthProviders(ctx context.Context, cfg config.AuthConfig, logger *slog.Logger) ([]ports.OAuthProvider, error) {
	var (
		providers []ports.OAuthProvider
		errs      []error
	)

	if cfg.GitHub.Enabled() {
		prov, err := github.NewProvider(github.ProviderConfig{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			RedirectURL:  cfg.GitHub.RedirectURL,
			Scopes:       cfg.GitHub.Scopes,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("create github provider: %w", err))
		} else {
			providers = append(providers, prov)
		}
	}

	if cfg.Google.Enabled() {
		prov, err := google.NewProvider(ctx, google.ProviderConfig{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
			Scopes:       cfg.Google.Scopes,
			Issuer:       cfg.Google.Issuer,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("create google provider: %w", err))
		} else {
			providers = append(providers, prov)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		logger.Warn("no identity providers configured; only local login is available")
	}
	return providers, nil
}
