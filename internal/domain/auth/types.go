package auth

// Package auth contains domain-level types for principals, linked identities and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"slices"
	"strings"
	"time"
)

// Provider names an external identity provider.
// Keep string form for easy persistence and routing (/auth/{provider}).
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGoogle Provider = "google"
	ProviderDev    Provider = "dev"
)

// String returns the provider name.
func (p Provider) String() string { return string(p) }

// Google resource scopes requested by the scope-elevated handshake.
const (
	ScopeGoogleDrive        = "https://www.googleapis.com/auth/drive"
	ScopeGoogleSheetsReader = "https://www.googleapis.com/auth/spreadsheets.readonly"
)

// ExternalIdentity links a Principal to one third-party provider account.
// Adapters map provider-specific claims into this shape.
type ExternalIdentity struct {
	Provider     Provider  `json:"provider"`
	Subject      string    `json:"subject"` // provider-issued stable id
	Email        string    `json:"email,omitempty"`
	DisplayName  string    `json:"display_name,omitempty"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"token_expiry,omitzero"`
	Scopes       []string  `json:"scopes,omitempty"`
	LinkedAt     time.Time `json:"linked_at,omitzero"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

// HasScopes reports whether every scope in want was granted.
func (e ExternalIdentity) HasScopes(want ...string) bool {
	for _, s := range want {
		if !slices.Contains(e.Scopes, s) {
			return false
		}
	}
	return true
}

// Principal is an authenticated identity in the application's own identity space.
type Principal struct {
	ID           string             `json:"id"`
	Email        string             `json:"email"`
	Name         string             `json:"name,omitempty"`
	PasswordHash string             `json:"-"`
	Identities   []ExternalIdentity `json:"identities,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Identity returns the linked identity for provider, if any.
func (p *Principal) Identity(provider Provider) (ExternalIdentity, bool) {
	if p == nil {
		return ExternalIdentity{}, false
	}
	for _, id := range p.Identities {
		if id.Provider == provider {
			return id, true
		}
	}
	return ExternalIdentity{}, false
}

// HasScopes reports whether the principal holds a linked identity for provider
// granting every listed scope. A nil principal holds nothing.
func (p *Principal) HasScopes(provider Provider, scopes ...string) bool {
	id, ok := p.Identity(provider)
	return ok && id.HasScopes(scopes...)
}

// NormalizeEmail lowercases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignInMethods counts the ways the principal can still sign in: a local
// password plus one per linked provider.
func (p *Principal) SignInMethods() int {
	if p == nil {
		return 0
	}
	n := len(p.Identities)
	if p.PasswordHash != "" {
		n++
	}
	return n
}

// UpdatePrincipalRequest carries a partial principal update. Nil fields are left unchanged.
type UpdatePrincipalRequest struct {
	Name         *string `json:"name,omitempty"`
	Email        *string `json:"email,omitempty"`
	PasswordHash *string `json:"-"`
}

// HasUpdates reports whether any field is set.
func (r *UpdatePrincipalRequest) HasUpdates() bool {
	return r.Name != nil || r.Email != nil || r.PasswordHash != nil
}
