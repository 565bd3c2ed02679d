package httpx

import (
	"context"

	domainauth "github.com/target/lessonhub/internal/domain/auth"
)

// RequestContext is the per-request view handlers get after the gateway allowed
// the request. Session is the live record; handlers mutate it and save it
// through the SessionManager.
type RequestContext struct {
	Session   *domainauth.Session
	Principal *domainauth.Principal
}

// CSRFToken returns the session-bound token forms must echo back.
func (rc *RequestContext) CSRFToken() string {
	if rc == nil || rc.Session == nil {
		return ""
	}
	return rc.Session.CSRFToken
}

// Authenticated reports whether a principal was resolved for the request.
func (rc *RequestContext) Authenticated() bool {
	return rc != nil && rc.Principal != nil
}

// requestContextKey is an unexported context key type to avoid collisions across packages.
type requestContextKey struct{}

// WithRequestContext returns a child context carrying rc.
// If rc is nil, the original ctx is returned unchanged.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	if rc == nil {
		return ctx
	}
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the request context and a boolean indicating presence.
func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	if rc, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok && rc != nil {
		return rc, true
	}
	return nil, false
}
