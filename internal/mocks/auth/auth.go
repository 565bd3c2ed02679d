package auth

// Package auth contains hand-written OAuth provider fakes for transport tests
// that drive full browser flows and would be noisy with gomock expectations.

import (
	"context"
	"fmt"
	"sync"

	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/ports"
)

// Ensure compile-time conformance to ports.
var _ ports.OAuthProvider = (*MockOAuthProvider)(nil)

// MockOAuthProvider simulates an identity provider with deterministic state and nonce.
// Begin returns an auth URL carrying code and state, so a test can "follow" it
// straight to the callback.
type MockOAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.ExternalIdentity, error)

	Provider    domainauth.Provider
	AuthURL     string
	StatePrefix string
	NoncePrefix string
	Identity    domainauth.ExternalIdentity

	mu        sync.Mutex
	callCount int
	exchanges []ports.ExchangeInput
}

// NewMockOAuthProvider creates a MockOAuthProvider for provider with sensible defaults.
func NewMockOAuthProvider(provider domainauth.Provider) *MockOAuthProvider {
	return &MockOAuthProvider{
		Provider:    provider,
		AuthURL:     "https://mock-idp/" + provider.String() + "/authorize",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		Identity: domainauth.ExternalIdentity{
			Provider:    provider,
			Subject:     provider.String() + "-user-1",
			Email:       "mock.user@example.com",
			DisplayName: "Mock User",
			AccessToken: "mock-access-token",
		},
	}
}

// Name returns the configured provider name.
func (m *MockOAuthProvider) Name() domainauth.Provider { return m.Provider }

func (m *MockOAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	state := fmt.Sprintf("%s-%d", m.StatePrefix, n)
	nonce := fmt.Sprintf("%s-%d", m.NoncePrefix, n)
	return m.AuthURL + "?code=code-" + state + "&state=" + state, state, nonce, nil
}

func (m *MockOAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.ExternalIdentity, error) {
	m.mu.Lock()
	m.exchanges = append(m.exchanges, in)
	m.mu.Unlock()

	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	id := m.Identity
	id.Scopes = append([]string(nil), m.Identity.Scopes...)
	return id, nil
}

// Exchanges returns the inputs Exchange was called with.
func (m *MockOAuthProvider) Exchanges() []ports.ExchangeInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.ExchangeInput(nil), m.exchanges...)
}
