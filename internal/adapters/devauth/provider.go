package devauth

// Package devauth provides a simple, config-driven OAuthProvider for local development.

import (
	"context"
	"errors"
	"net/url"
	"slices"

	"github.com/google/uuid"
	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/ports"
)

// DevCode is the only authorization code Exchange accepts.
const DevCode = "dev"

// Config controls the dev auth provider behavior.
// Subject and Email are required.
type Config struct {
	// Provider is the name the provider registers under. It defaults to
	// domainauth.ProviderDev; setting it to github or google lets mock mode
	// stand in for a real provider.
	Provider domainauth.Provider
	Subject  string
	Email    string
	Name     string
	Scopes   []string
}

// Provider implements ports.OAuthProvider for local development.
// It short-circuits the OAuth flow by redirecting back to our own callback
// with locally generated state and nonce.
// Exchange ignores everything but the code and returns the configured identity.
type Provider struct {
	name     domainauth.Provider
	identity domainauth.ExternalIdentity
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Subject == "" {
		return nil, errors.New("dev auth: Subject is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	name := cfg.Provider
	if name == "" {
		name = domainauth.ProviderDev
	}
	return &Provider{
		name: name,
		identity: domainauth.ExternalIdentity{
			Provider:    name,
			Subject:     cfg.Subject,
			Email:       cfg.Email,
			DisplayName: cfg.Name,
			Scopes:      slices.Clone(cfg.Scopes),
		},
	}, nil
}

// Name returns the configured provider name.
func (p *Provider) Name() domainauth.Provider { return p.name }

// Begin returns a local callback URL and random state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state := uuid.NewString()
	nonce := uuid.NewString()
	q := url.Values{"code": {DevCode}, "state": {state}}
	// Our standard handler expects GET /auth/{provider}/callback?code=...&state=...
	return "/auth/" + p.name.String() + "/callback?" + q.Encode(), state, nonce, nil
}

// Exchange returns the configured identity with a fresh opaque access token.
func (p *Provider) Exchange(_ context.Context, in ports.ExchangeInput) (domainauth.ExternalIdentity, error) {
	if in.Code != DevCode {
		return domainauth.ExternalIdentity{}, errors.New("dev auth: unexpected authorization code")
	}
	id := p.identity
	id.Scopes = slices.Clone(p.identity.Scopes)
	id.AccessToken = "dev-" + uuid.NewString()
	return id, nil
}

var _ ports.OAuthProvider = (*Provider)(nil)
