package gateway

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	domainauth "github.com/target/lessonhub/internal/domain/auth"
)

func TestDefaultChain_Order(t *testing.T) {
	assert.Equal(t, []string{"csrf", "authn", "return_to"}, DefaultChain().Steps())
}

func TestChain_AnonymousProtectedRouteRecordsReturnTo(t *testing.T) {
	req := Request{
		Method:      http.MethodGet,
		Path:        "/account",
		URI:         "/account",
		Requirement: RequireAuthenticated(),
	}

	res := DefaultChain().Evaluate(req, State{CSRFToken: "tok"})

	assert.Equal(t, RedirectToLogin, res.Outcome)
	assert.Equal(t, http.StatusFound, res.Status)
	assert.Equal(t, "/login", res.Location())
	assert.Equal(t, "authn", res.Step)
	assert.ErrorIs(t, res.Reason, ErrPrincipalNotResolved)
	assert.True(t, res.ReturnToChanged)
	assert.Equal(t, "/account", res.ReturnTo)
	assert.True(t, res.Dirty())
}

func TestChain_ScopedRouteWithoutIdentity(t *testing.T) {
	req := Request{
		Method:      http.MethodGet,
		Path:        "/api/google/drive",
		URI:         "/api/google/drive",
		Requirement: RequireScopes(domainauth.ProviderGoogle, domainauth.ScopeGoogleDrive),
	}
	st := State{Principal: &domainauth.Principal{ID: "p1"}, CSRFToken: "tok"}

	res := DefaultChain().Evaluate(req, st)

	assert.Equal(t, RedirectToLogin, res.Outcome)
	assert.ErrorIs(t, res.Reason, ErrInsufficientScope)
	assert.Equal(t, "/api/google/drive", res.ReturnTo)
}

func TestChain_DenyDiscardsEffects(t *testing.T) {
	req := Request{
		Method:         http.MethodPost,
		Path:           "/account/profile",
		URI:            "/account/profile",
		Requirement:    RequireAuthenticated(),
		SubmittedToken: tokenFn("forged"),
	}

	res := DefaultChain().Evaluate(req, State{CSRFToken: "tok", ReturnTo: "/lessons"})

	assert.Equal(t, Deny, res.Outcome)
	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.Equal(t, "csrf", res.Step)
	assert.ErrorIs(t, res.Reason, ErrCSRFMismatch)
	assert.False(t, res.Dirty())
	assert.Equal(t, "/lessons", res.ReturnTo)
	assert.Empty(t, res.Location())
}

func TestChain_UploadSkipsCSRFButStillGuards(t *testing.T) {
	req := Request{
		Method:      http.MethodPost,
		Path:        UploadPath,
		URI:         UploadPath,
		Requirement: RequireNothing(),
	}

	res := DefaultChain().Evaluate(req, State{})

	assert.Equal(t, Allow, res.Outcome)
	assert.False(t, res.IssueCSRFToken)
	// anonymous visitor on a page route: returnTo is recorded
	assert.Equal(t, UploadPath, res.ReturnTo)
}

func TestChain_LoginPageLeavesReturnTo(t *testing.T) {
	req := Request{Method: http.MethodGet, Path: "/login", URI: "/login"}

	res := DefaultChain().Evaluate(req, State{ReturnTo: "/account"})

	assert.Equal(t, Allow, res.Outcome)
	assert.False(t, res.ReturnToChanged)
	assert.Equal(t, "/account", res.ReturnTo)
	assert.True(t, res.IssueCSRFToken)
}

func TestChain_BookkeepingCannotOverrideOutcome(t *testing.T) {
	chain := NewChain(
		Step{Name: "guard", Decide: func(Request, State) Decision { return Redirect(ErrPrincipalNotResolved) }},
		Step{Name: "skipped", Decide: func(Request, State) Decision {
			t.Fatal("non-bookkeeping step ran after a redirect")
			return Continue()
		}},
		Step{Name: "book", Bookkeeping: true, Decide: func(Request, State) Decision {
			return Decision{Outcome: RedirectToIntendedOrHome}
		}},
	)

	res := chain.Evaluate(Request{Method: http.MethodGet, Path: "/"}, State{})

	assert.Equal(t, RedirectToLogin, res.Outcome)
	assert.Equal(t, "guard", res.Step)
}

func TestChain_AllowedRequest(t *testing.T) {
	st := State{Principal: &domainauth.Principal{ID: "p1"}, CSRFToken: "tok", ReturnTo: "/account"}
	req := Request{Method: http.MethodGet, Path: "/subjects", URI: "/subjects", Requirement: RequireNothing()}

	res := DefaultChain().Evaluate(req, st)

	assert.Equal(t, Allow, res.Outcome)
	assert.Empty(t, res.Step)
	assert.False(t, res.Dirty())
	assert.Equal(t, "/account", res.ReturnTo)
}

func TestLocation(t *testing.T) {
	assert.Equal(t, "/login", Location(RedirectToLogin, "/account"))
	assert.Equal(t, "/account", Location(RedirectToIntendedOrHome, "/account"))
	assert.Equal(t, "/", Location(RedirectToIntendedOrHome, ""))
	assert.Empty(t, Location(Allow, "/account"))
	assert.Empty(t, Location(Deny, "/account"))
}
