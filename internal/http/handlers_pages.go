package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	domainauth "github.com/target/lessonhub/internal/domain/auth"
	apperrors "github.com/target/lessonhub/internal/errors"
)

// handlerBase carries what every page handler needs to read and write the session.
type handlerBase struct {
	Sessions *SessionManager
	Errors   ErrorResponder
	Logger   *slog.Logger
}

func (h *handlerBase) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// requestContext returns the gateway's RequestContext, or writes a 500 when the
// handler was mounted outside the gateway.
func (h *handlerBase) requestContext(w http.ResponseWriter, r *http.Request) (*RequestContext, bool) {
	rc, ok := RequestContextFrom(r.Context())
	if !ok {
		h.Errors.ServerError(w, r, errors.New("handler reached without gateway context"))
		return nil, false
	}
	return rc, true
}

// render writes a page document. Queued flash messages are drained into it.
func (h *handlerBase) render(w http.ResponseWriter, r *http.Request, page string, data map[string]any) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}

	doc := map[string]any{
		"page":          page,
		"authenticated": rc.Authenticated(),
		"csrfToken":     rc.CSRFToken(),
	}
	if rc.Principal != nil {
		doc["user"] = principalView(rc.Principal)
	}
	if flash := rc.Session.TakeFlash(); len(flash) > 0 {
		doc["flash"] = flash
		if err := h.Sessions.Save(r.Context(), w, rc.Session); err != nil {
			h.Errors.ServerError(w, r, err)
			return
		}
	}
	for k, v := range data {
		doc[k] = v
	}
	WriteJSON(w, http.StatusOK, doc)
}

// redirectWithFlash queues messages and redirects. Used by form posts that fail validation.
func (h *handlerBase) redirectWithFlash(w http.ResponseWriter, r *http.Request, target string, kind domainauth.FlashKind, msgs ...string) {
	rc, ok := h.requestContext(w, r)
	if !ok {
		return
	}
	for _, m := range msgs {
		rc.Session.AddFlash(kind, m)
	}
	if err := h.Sessions.Save(r.Context(), w, rc.Session); err != nil {
		h.Errors.ServerError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

type principalSummary struct {
	ID        string   `json:"id"`
	Email     string   `json:"email,omitempty"`
	Name      string   `json:"name,omitempty"`
	Providers []string `json:"providers,omitempty"`
}

func principalView(p *domainauth.Principal) principalSummary {
	s := principalSummary{ID: p.ID, Email: p.Email, Name: p.Name}
	for _, id := range p.Identities {
		s.Providers = append(s.Providers, id.Provider.String())
	}
	return s
}

// safeRedirectPath keeps post-login redirects on this site.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	if strings.HasPrefix(candidate, "//") || strings.HasPrefix(candidate, `/\`) {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	return candidate
}

// PageHandlers serves the public content pages.
type PageHandlers struct {
	handlerBase
}

// Home handles GET /.
func (h *PageHandlers) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "home", nil)
}

// Subjects handles GET /subjects.
func (h *PageHandlers) Subjects(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "subjects", nil)
}

// Lessons handles GET /lessons.
func (h *PageHandlers) Lessons(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "lessons", nil)
}

// Community handles GET /community.
func (h *PageHandlers) Community(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "community", nil)
}

// ContactPage handles GET /contact.
func (h *PageHandlers) ContactPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "contact", nil)
}

// Contact handles POST /contact. Messages are logged; delivery is out of scope.
func (h *PageHandlers) Contact(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.PostFormValue("name"))
	email := strings.TrimSpace(r.PostFormValue("email"))
	message := strings.TrimSpace(r.PostFormValue("message"))

	var errs []error
	if name == "" {
		errs = append(errs, apperrors.ValidationField("name", "Name cannot be blank."))
	}
	if _, err := mail.ParseAddress(email); err != nil {
		errs = append(errs, apperrors.ValidationField("email", "Email is not valid."))
	}
	if message == "" {
		errs = append(errs, apperrors.ValidationField("message", "Message cannot be blank."))
	}
	if err := errors.Join(errs...); err != nil {
		h.redirectWithFlash(w, r, "/contact", domainauth.FlashError, apperrors.Messages(err)...)
		return
	}

	h.logger().InfoContext(r.Context(), "contact message received", "email", email, "length", len(message))
	h.redirectWithFlash(w, r, "/contact", domainauth.FlashSuccess, "Email has been sent successfully!")
}
