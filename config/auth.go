package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeOAuth talks to the real GitHub and Google endpoints.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock replaces every provider with a local stand-in (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// OAuthClientConfig holds one provider's OAuth client registration.
// A provider with an empty ClientID is not registered.
type OAuthClientConfig struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	RedirectURL  string   `env:"REDIRECT_URL"`
	Scopes       []string `env:"SCOPES"        envSeparator:" "`
	// Issuer is only read for OIDC providers; empty means the provider default.
	// Google always adds its Drive and Sheets scopes to Scopes.
	Issuer string `env:"ISSUER"`
}

// Enabled reports whether the provider is configured.
func (o OAuthClientConfig) Enabled() bool { return o.ClientID != "" }

// DevAuthConfig controls the identity returned by the local stand-in providers.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	Subject string   `env:"SUBJECT" envDefault:"dev-user"`
	Email   string   `env:"EMAIL"   envDefault:"dev@example.com"`
	Name    string   `env:"NAME"    envDefault:"Dev User"`
	Scopes  []string `env:"SCOPES"  envSeparator:" "`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which providers are wired.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	GitHub  OAuthClientConfig `envPrefix:"GITHUB_"`
	Google  OAuthClientConfig `envPrefix:"GOOGLE_"`
	DevAuth DevAuthConfig     `envPrefix:"DEV_AUTH_"`

	// ProviderTimeout bounds the code exchange round trip.
	ProviderTimeout time.Duration `env:"AUTH_PROVIDER_TIMEOUT" envDefault:"15s"`

	// BcryptCost is the work factor for local passwords.
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	if a.ProviderTimeout <= 0 || a.ProviderTimeout > time.Minute {
		a.ProviderTimeout = 15 * time.Second
	}
	if a.Mode == "" {
		a.Mode = AuthModeOAuth
	}
}
