package httpx

import (
	"errors"
	"net/http"

	domainauth "github.com/target/lessonhub/internal/domain/auth"
	apperrors "github.com/target/lessonhub/internal/errors"
	"github.com/target/lessonhub/internal/gateway"
	"github.com/target/lessonhub/internal/ports"
	"github.com/target/lessonhub/internal/service"
)

const accountPath = "/account"

// AccountHandlers serves the signed-in account pages.
type AccountHandlers struct {
	handlerBase
	Svc AuthServiceInterface
}

type identityView struct {
	Provider string   `json:"provider"`
	Email    string   `json:"email,omitempty"`
	Name     string   `json:"name,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
}

// Account handles GET /account.
func (h *AccountHandlers) Account(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	linked := make([]identityView, 0, len(rc.Principal.Identities))
	for _, id := range rc.Principal.Identities {
		linked = append(linked, identityView{
			Provider: id.Provider.String(),
			Email:    id.Email,
			Name:     id.DisplayName,
			Scopes:   id.Scopes,
		})
	}
	h.render(w, r, "account", map[string]any{
		"identities":  linked,
		"providers":   h.Svc.Providers(),
		"hasPassword": rc.Principal.PasswordHash != "",
	})
}

// Unlink handles GET /account/unlink/{provider}.
func (h *AccountHandlers) Unlink(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	provider := domainauth.Provider(r.PathValue("provider"))

	if _, linked := rc.Principal.Identity(provider); !linked {
		h.redirectWithFlash(w, r, accountPath, domainauth.FlashError, "That account is not linked.")
		return
	}
	err := h.Svc.Unlink(r.Context(), rc.Principal.ID, provider)
	if errors.Is(err, service.ErrLastSignInMethod) {
		h.redirectWithFlash(w, r, accountPath, domainauth.FlashError,
			"Set a password or link another account before unlinking "+provider.String()+".")
		return
	}
	if err != nil {
		h.Errors.ServerError(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, accountPath, domainauth.FlashInfo, provider.String()+" account has been unlinked.")
}

// UpdateProfile handles POST /account/profile.
func (h *AccountHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	_, err := h.Svc.UpdateProfile(r.Context(), rc.Principal.ID, service.ProfileInput{
		Email: r.PostFormValue("email"),
		Name:  r.PostFormValue("name"),
	})
	switch {
	case apperrors.IsValidation(err):
		h.redirectWithFlash(w, r, accountPath, domainauth.FlashError, apperrors.Messages(err)...)
	case errors.Is(err, ports.ErrEmailTaken):
		h.redirectWithFlash(w, r, accountPath, domainauth.FlashError,
			"The email address you have entered is already associated with an account.")
	case err != nil:
		h.Errors.ServerError(w, r, err)
	default:
		h.redirectWithFlash(w, r, accountPath, domainauth.FlashSuccess, "Profile information has been updated.")
	}
}

// ChangePassword handles POST /account/password.
func (h *AccountHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	err := h.Svc.ChangePassword(r.Context(), rc.Principal.ID, service.PasswordChangeInput{
		Current:         r.PostFormValue("currentPassword"),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
	})
	switch {
	case apperrors.IsValidation(err):
		h.redirectWithFlash(w, r, accountPath, domainauth.FlashError, apperrors.Messages(err)...)
	case errors.Is(err, service.ErrIncorrectPassword):
		h.redirectWithFlash(w, r, accountPath, domainauth.FlashError, "Current password is incorrect.")
	case err != nil:
		h.Errors.ServerError(w, r, err)
	default:
		h.redirectWithFlash(w, r, accountPath, domainauth.FlashSuccess, "Password has been changed.")
	}
}

// DeleteAccount handles POST /account/delete. The session survives anonymous.
func (h *AccountHandlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	if err := h.Svc.DeleteAccount(r.Context(), rc.Principal.ID); err != nil {
		h.Errors.ServerError(w, r, err)
		return
	}
	rc.Session.PrincipalID = ""
	h.redirectWithFlash(w, r, gateway.HomePath, domainauth.FlashInfo, "Your account has been deleted.")
}
