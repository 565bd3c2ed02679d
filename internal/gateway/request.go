package gateway

import (
	"net/http"

	domainauth "github.com/target/lessonhub/internal/domain/auth"
)

// RequirementKind classifies what a route demands of the visitor.
type RequirementKind int

const (
	// Public routes need nothing.
	Public RequirementKind = iota
	// Authenticated routes need a resolved principal.
	Authenticated
	// Scoped routes need a principal holding a linked identity with granted scopes.
	Scoped
)

// Requirement is the access rule attached to a route.
type Requirement struct {
	Kind     RequirementKind
	Provider domainauth.Provider
	Scopes   []string
}

// RequireNothing marks a public route.
func RequireNothing() Requirement { return Requirement{Kind: Public} }

// RequireAuthenticated marks a route that needs a signed-in principal.
func RequireAuthenticated() Requirement { return Requirement{Kind: Authenticated} }

// RequireScopes marks a route that needs a linked provider identity granting scopes.
func RequireScopes(provider domainauth.Provider, scopes ...string) Requirement {
	return Requirement{Kind: Scoped, Provider: provider, Scopes: scopes}
}

// Request is the transport-free view of an inbound request the steps decide on.
type Request struct {
	Method string
	// Path is the URL path without query.
	Path string
	// URI is the original path plus query, recorded as returnTo.
	URI         string
	Requirement Requirement

	// SubmittedToken returns the CSRF token sent with the request. It is only
	// called when a token check applies, so the body is not read needlessly.
	SubmittedToken func() string
}

// submitted returns the token, tolerating a nil accessor.
func (r Request) submitted() string {
	if r.SubmittedToken == nil {
		return ""
	}
	return r.SubmittedToken()
}

// IsStateChanging reports whether the method may mutate server state.
func (r Request) IsStateChanging() bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

// State is the session snapshot the steps read.
type State struct {
	Principal *domainauth.Principal
	ReturnTo  string
	CSRFToken string
}

// Authenticated reports whether a principal was resolved.
func (s State) Authenticated() bool { return s.Principal != nil }
