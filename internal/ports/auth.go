package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/target/lessonhub/internal/domain/auth"
)

var (
	// ErrSessionNotFound is returned by SessionStore.Get for unknown or expired ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPrincipalNotFound is returned by PrincipalRepository lookups that match nothing.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrEmailTaken is returned when another principal already owns the email address.
	ErrEmailTaken = errors.New("email already registered")
	// ErrIdentityLinkedElsewhere is returned when a provider account belongs to a different principal.
	ErrIdentityLinkedElsewhere = errors.New("identity linked to another principal")
)

// BeginInput carries inputs for initiating an OAuth handshake.
type BeginInput struct {
	// Scopes overrides the provider's configured scopes when non-empty.
	Scopes []string
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// OAuthProvider starts and completes a handshake against one external identity provider.
type OAuthProvider interface {
	// Name identifies the provider in routes and linked identities.
	Name() domainauth.Provider

	// Begin returns the provider consent URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange trades the callback code for a linked identity carrying the granted credential.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.ExternalIdentity, error)
}

// SessionStore persists sessions keyed by id. Implementations must be safe for
// concurrent use; concurrent writes to the same id are last-write-wins.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// PrincipalRepository stores principals and their linked identities.
type PrincipalRepository interface {
	Get(ctx context.Context, id string) (*domainauth.Principal, error)
	GetByEmail(ctx context.Context, email string) (*domainauth.Principal, error)
	GetByIdentity(ctx context.Context, provider domainauth.Provider, subject string) (*domainauth.Principal, error)
	Create(ctx context.Context, p domainauth.Principal) (*domainauth.Principal, error)

	// Update applies the set fields of req. A taken email returns ErrEmailTaken.
	Update(ctx context.Context, id string, req domainauth.UpdatePrincipalRequest) (*domainauth.Principal, error)

	// Delete removes the principal together with its linked identities.
	Delete(ctx context.Context, id string) error

	// LinkIdentity upserts the identity on (provider, subject). Re-linking the same pair to the
	// same principal updates the stored credential in place.
	LinkIdentity(ctx context.Context, principalID string, id domainauth.ExternalIdentity) error
	UnlinkIdentity(ctx context.Context, principalID string, provider domainauth.Provider) error
}

// PasswordHasher hashes and verifies local account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}
