package httpx

import (
	"context"
	"log/slog"
	"net/http"

	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/gateway"
	"github.com/target/lessonhub/internal/observability/statsd"
)

// Where browsers and scripts send the session-bound CSRF token.
const (
	CSRFHeader    = "X-CSRF-Token"
	CSRFFormField = "_csrf"
)

// PrincipalResolver loads the principal a session points at.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, id string) (*domainauth.Principal, error)
}

// GatewayOptions groups dependencies for the Gateway middleware.
type GatewayOptions struct {
	Sessions   *SessionManager
	Principals PrincipalResolver
	Policy     *gateway.Policy
	Chain      *gateway.Chain // defaults to gateway.DefaultChain()
	Errors     ErrorResponder
	Metrics    statsd.Sink // optional
	Logger     *slog.Logger
}

// Gateway loads the session, resolves the principal, runs the interceptor chain
// and applies its verdict. Allowed requests reach next with a RequestContext.
func Gateway(opts GatewayOptions) func(http.Handler) http.Handler {
	chain := opts.Chain
	if chain == nil {
		chain = gateway.DefaultChain()
	}
	policy := opts.Policy
	if policy == nil {
		policy = gateway.NewPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gateway")
	var metrics statsd.Sink = statsd.Nop{}
	if opts.Metrics != nil {
		metrics = opts.Metrics
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			sess, err := opts.Sessions.Load(r)
			if err != nil {
				opts.Errors.ServerError(w, r, err)
				return
			}

			principal, err := opts.Principals.ResolvePrincipal(ctx, sess.PrincipalID)
			if err != nil {
				opts.Errors.ServerError(w, r, err)
				return
			}
			if principal == nil {
				// The principal was deleted; treat the session as anonymous.
				sess.PrincipalID = ""
			}

			res := chain.Evaluate(gateway.Request{
				Method:         r.Method,
				Path:           r.URL.Path,
				URI:            r.URL.RequestURI(),
				Requirement:    policy.Lookup(r),
				SubmittedToken: func() string { return SubmittedCSRFToken(r) },
			}, gateway.State{
				Principal: principal,
				ReturnTo:  sess.ReturnTo,
				CSRFToken: sess.CSRFToken,
			})
			metrics.Count("gateway.decision", 1, map[string]string{
				"outcome": res.Outcome.String(),
				"step":    res.Step,
			})

			if res.Outcome == gateway.Deny {
				logger.WarnContext(ctx, "request denied",
					"method", r.Method,
					"path", r.URL.Path,
					"step", res.Step,
					"reason", res.Reason,
				)
				http.Error(w, http.StatusText(res.Status), res.Status)
				return
			}

			if res.ReturnToChanged {
				sess.ReturnTo = res.ReturnTo
			}
			if res.IssueCSRFToken {
				token, tokenErr := newCSRFToken()
				if tokenErr != nil {
					opts.Errors.ServerError(w, r, tokenErr)
					return
				}
				sess.CSRFToken = token
			}
			if res.Dirty() {
				if saveErr := opts.Sessions.Save(ctx, w, sess); saveErr != nil {
					opts.Errors.ServerError(w, r, saveErr)
					return
				}
			}

			if res.Outcome != gateway.Allow {
				logger.DebugContext(ctx, "redirecting",
					"path", r.URL.Path,
					"outcome", res.Outcome.String(),
					"reason", res.Reason,
				)
				status := res.Status
				if status == 0 {
					status = http.StatusFound
				}
				http.Redirect(w, r, res.Location(), status)
				return
			}

			rc := &RequestContext{Session: sess, Principal: principal}
			next.ServeHTTP(w, r.WithContext(WithRequestContext(ctx, rc)))
		})
	}
}

// SubmittedCSRFToken reads the token from the header, falling back to the form field.
func SubmittedCSRFToken(r *http.Request) string {
	if v := r.Header.Get(CSRFHeader); v != "" {
		return v
	}
	return r.FormValue(CSRFFormField)
}
