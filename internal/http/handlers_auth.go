package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	domainauth "github.com/target/lessonhub/internal/domain/auth"
	apperrors "github.com/target/lessonhub/internal/errors"
	"github.com/target/lessonhub/internal/gateway"
	"github.com/target/lessonhub/internal/ports"
	"github.com/target/lessonhub/internal/service"
)

// AuthServiceInterface defines the auth operations the handlers need.
type AuthServiceInterface interface {
	PrincipalResolver
	Providers() []domainauth.Provider
	Authenticate(ctx context.Context, email, password string) (*domainauth.Principal, error)
	Register(ctx context.Context, in service.SignupInput) (*domainauth.Principal, error)
	BeginHandshake(ctx context.Context, provider domainauth.Provider) (*service.HandshakeStart, error)
	CompleteHandshake(ctx context.Context, in service.CompleteHandshakeInput) (*domainauth.Principal, error)
	Unlink(ctx context.Context, principalID string, provider domainauth.Provider) error
	UpdateProfile(ctx context.Context, principalID string, in service.ProfileInput) (*domainauth.Principal, error)
	ChangePassword(ctx context.Context, principalID string, in service.PasswordChangeInput) error
	DeleteAccount(ctx context.Context, principalID string) error
}

// AuthHandlers provides HTTP handlers for local login, signup, logout and the
// OAuth round trip.
type AuthHandlers struct {
	handlerBase
	Svc AuthServiceInterface
}

// LoginPage handles GET /login.
func (h *AuthHandlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "login", map[string]any{"providers": h.Svc.Providers()})
}

// Login handles POST /login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	p, err := h.Svc.Authenticate(r.Context(), r.PostFormValue("email"), r.PostFormValue("password"))
	if errors.Is(err, service.ErrInvalidCredentials) {
		h.redirectWithFlash(w, r, gateway.LoginPath, domainauth.FlashError, "Invalid email or password.")
		return
	}
	if err != nil {
		h.Errors.ServerError(w, r, err)
		return
	}
	h.completeAuthentication(w, r, p)
}

// SignupPage handles GET /signup.
func (h *AuthHandlers) SignupPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "signup", map[string]any{"providers": h.Svc.Providers()})
}

// Signup handles POST /signup.
func (h *AuthHandlers) Signup(w http.ResponseWriter, r *http.Request) {
	p, err := h.Svc.Register(r.Context(), service.SignupInput{
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
		Name:            r.PostFormValue("name"),
	})
	switch {
	case apperrors.IsValidation(err):
		h.redirectWithFlash(w, r, "/signup", domainauth.FlashError, apperrors.Messages(err)...)
		return
	case errors.Is(err, ports.ErrEmailTaken):
		h.redirectWithFlash(w, r, "/signup", domainauth.FlashError, "Account with that email address already exists.")
		return
	case err != nil:
		h.Errors.ServerError(w, r, err)
		return
	}
	h.completeAuthentication(w, r, p)
}

// Logout handles GET /logout. Logging out an anonymous session is a plain redirect.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	if rc.Session.PrincipalID != "" {
		rc.Session.PrincipalID = ""
		if err := h.Sessions.Save(r.Context(), w, rc.Session); err != nil {
			h.Errors.ServerError(w, r, err)
			return
		}
	}
	http.Redirect(w, r, gateway.HomePath, http.StatusFound)
}

// BeginOAuth handles GET /auth/{provider}: it remembers state and nonce in the
// session and sends the visitor to the provider's consent page.
func (h *AuthHandlers) BeginOAuth(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	provider := domainauth.Provider(r.PathValue("provider"))

	start, err := h.Svc.BeginHandshake(r.Context(), provider)
	if errors.Is(err, service.ErrUnknownProvider) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.Errors.ServerError(w, r, err)
		return
	}

	rc.Session.BeginHandshake(provider, domainauth.Handshake{
		State:     start.State,
		Nonce:     start.Nonce,
		StartedAt: time.Now().UTC(),
	})
	if err := h.Sessions.Save(r.Context(), w, rc.Session); err != nil {
		h.Errors.ServerError(w, r, err)
		return
	}
	http.Redirect(w, r, start.AuthURL, http.StatusFound)
}

// OAuthCallback handles GET /auth/{provider}/callback. Every failure sends the
// visitor to /login without touching the session; the cause is only logged.
func (h *AuthHandlers) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	provider := domainauth.Provider(r.PathValue("provider"))
	q := r.URL.Query()

	fail := func(cause error) {
		h.logger().WarnContext(r.Context(), "oauth callback failed",
			"provider", provider,
			"reason", cause,
		)
		http.Redirect(w, r, gateway.LoginPath, http.StatusFound)
	}

	if providerErr := q.Get("error"); providerErr != "" {
		fail(errors.New("provider reported " + providerErr))
		return
	}
	pending, found := rc.Session.PendingHandshake(provider)
	if !found {
		fail(errors.New("no handshake in progress"))
		return
	}
	if state := q.Get("state"); state == "" || !gateway.TokensMatch(pending.State, state) {
		fail(errors.New("state mismatch"))
		return
	}

	in := service.CompleteHandshakeInput{
		Provider: provider,
		Code:     q.Get("code"),
		State:    pending.State,
		Nonce:    pending.Nonce,
	}
	if rc.Principal != nil {
		in.CurrentPrincipalID = rc.Principal.ID
	}
	p, err := h.Svc.CompleteHandshake(r.Context(), in)
	if err != nil {
		fail(err)
		return
	}

	rc.Session.EndHandshake(provider)
	h.completeAuthentication(w, r, p)
}

// completeAuthentication attaches p to a renewed session and sends the visitor
// to the remembered page, clearing it.
func (h *AuthHandlers) completeAuthentication(w http.ResponseWriter, r *http.Request, p *domainauth.Principal) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	sess := rc.Session

	if err := h.Sessions.Renew(r.Context(), sess); err != nil {
		h.Errors.ServerError(w, r, err)
		return
	}
	sess.PrincipalID = p.ID
	target := safeRedirectPath(sess.TakeReturnTo())
	if err := h.Sessions.Save(r.Context(), w, sess); err != nil {
		h.Errors.ServerError(w, r, err)
		return
	}

	h.logger().InfoContext(r.Context(), "authenticated", "principal_id", p.ID)
	http.Redirect(w, r, target, http.StatusFound)
}
