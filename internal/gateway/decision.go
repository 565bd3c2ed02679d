// Package gateway decides, per request, whether a visitor may reach a route handler.
//
// Each interceptor is a pure function of a transport-free Request and a snapshot of
// session State. The Chain runs them in a fixed order (CSRF filter, authentication
// requirement, redirect-intent tracker) and folds their Decisions into one Result
// that the HTTP layer applies. Nothing here performs I/O.
package gateway

import (
	"errors"
	"net/http"
)

// Paths the gateway redirects to.
const (
	LoginPath = "/login"
	HomePath  = "/"
)

// Gateway error taxonomy. PrincipalNotResolved and InsufficientScope are expected
// control flow (a redirect), not failures.
var (
	ErrCSRFMismatch         = errors.New("csrf token mismatch")
	ErrPrincipalNotResolved = errors.New("principal not resolved")
	ErrInsufficientScope    = errors.New("insufficient scope")
)

// Outcome is what the gateway does with a request.
type Outcome int

const (
	// Allow passes the request to the next step, and finally to the handler.
	Allow Outcome = iota
	// RedirectToLogin sends the visitor to the login entry point.
	RedirectToLogin
	// RedirectToIntendedOrHome sends the visitor to returnTo, or home when none is recorded.
	RedirectToIntendedOrHome
	// Deny rejects the request with a client error. Nothing else runs.
	Deny
)

func (o Outcome) String() string {
	switch o {
	case Allow:
		return "allow"
	case RedirectToLogin:
		return "redirect_to_login"
	case RedirectToIntendedOrHome:
		return "redirect_to_intended_or_home"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// Decision is one step's verdict plus the session effects it asks for.
type Decision struct {
	Outcome Outcome
	Status  int
	Reason  error

	// SetReturnTo, when non-nil, replaces the session's returnTo.
	SetReturnTo *string
	// IssueCSRFToken asks the executor's caller to mint a session token.
	IssueCSRFToken bool
}

// Continue is the neutral decision.
func Continue() Decision { return Decision{Outcome: Allow} }

// Redirect returns a login redirect carrying reason.
func Redirect(reason error) Decision {
	return Decision{Outcome: RedirectToLogin, Status: http.StatusFound, Reason: reason}
}

// Reject returns a Deny decision with status.
func Reject(status int, reason error) Decision {
	return Decision{Outcome: Deny, Status: status, Reason: reason}
}

// Location resolves where a redirect outcome sends the visitor. returnTo is the
// session value after the chain's effects were applied.
func Location(o Outcome, returnTo string) string {
	switch o {
	case RedirectToLogin:
		return LoginPath
	case RedirectToIntendedOrHome:
		if returnTo != "" {
			return returnTo
		}
		return HomePath
	default:
		return ""
	}
}
