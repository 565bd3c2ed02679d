package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/lessonhub/internal/adapters/memory"
	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/gateway"
)

type resolverFunc func(ctx context.Context, id string) (*domainauth.Principal, error)

func (f resolverFunc) ResolvePrincipal(ctx context.Context, id string) (*domainauth.Principal, error) {
	return f(ctx, id)
}

func noPrincipal(context.Context, string) (*domainauth.Principal, error) { return nil, nil }

func newGatewayHandler(t *testing.T, store *memory.SessionStore, resolver PrincipalResolver, next http.Handler) (http.Handler, *SessionManager) {
	t.Helper()
	m := newTestSessionManager(t, store, nil)
	policy := gateway.NewPolicy()
	policy.Set("GET /account", gateway.RequireAuthenticated())
	h := Gateway(GatewayOptions{Sessions: m, Principals: resolver, Policy: policy})(next)
	return h, m
}

func TestGateway_AllowedRequestCarriesRequestContext(t *testing.T) {
	var got *RequestContext
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = RequestContextFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h, _ := newGatewayHandler(t, memory.NewSessionStore(nil), resolverFunc(noPrincipal), next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lessons?page=2", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, got)
	assert.False(t, got.Authenticated())
	assert.NotEmpty(t, got.CSRFToken(), "first visit mints a token")
	assert.Equal(t, "/lessons?page=2", got.Session.ReturnTo)
	assert.NotEmpty(t, rec.Result().Cookies())
}

func TestGateway_RedirectSavesReturnTo(t *testing.T) {
	store := memory.NewSessionStore(nil)
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	})
	h, m := newGatewayHandler(t, store, resolverFunc(noPrincipal), next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/account", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, gateway.LoginPath, rec.Header().Get("Location"))
	sess, err := m.Load(requestWithCookies(rec.Result().Cookies()))
	require.NoError(t, err)
	assert.Equal(t, "/account", sess.ReturnTo)
}

func TestGateway_DenyWritesNothingToStore(t *testing.T) {
	store := memory.NewSessionStore(nil)
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	})
	h, _ := newGatewayHandler(t, store, resolverFunc(noPrincipal), next)

	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(url.Values{CSRFFormField: {"x"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
	assert.Equal(t, 0, store.Len())
}

func TestGateway_ResolverFailureIsServerError(t *testing.T) {
	resolver := resolverFunc(func(context.Context, string) (*domainauth.Principal, error) {
		return nil, errors.New("db unreachable")
	})
	h, _ := newGatewayHandler(t, memory.NewSessionStore(nil), resolver, http.NotFoundHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db unreachable")
}

func TestGateway_DeletedPrincipalIsAnonymous(t *testing.T) {
	store := memory.NewSessionStore(nil)
	m := newTestSessionManager(t, store, nil)
	sess, err := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.PrincipalID = "gone"
	sess.CSRFToken = "tok"
	rec := httptest.NewRecorder()
	require.NoError(t, m.Save(context.Background(), rec, sess))

	policy := gateway.NewPolicy()
	policy.Set("GET /account", gateway.RequireAuthenticated())
	h := Gateway(GatewayOptions{Sessions: m, Principals: resolverFunc(noPrincipal), Policy: policy})(http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "/account", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec3 := httptest.NewRecorder()
	h.ServeHTTP(rec3, req)
	assert.Equal(t, http.StatusFound, rec3.Code)
	assert.Equal(t, gateway.LoginPath, rec3.Header().Get("Location"))
}

func TestSubmittedCSRFToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(url.Values{CSRFFormField: {"form"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, "form", SubmittedCSRFToken(req))

	req = httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader(url.Values{CSRFFormField: {"form"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(CSRFHeader, "header")
	assert.Equal(t, "header", SubmittedCSRFToken(req))
}

type recordingSink struct {
	mu     sync.Mutex
	counts []string
	timing []string
}

func (s *recordingSink) Count(name string, _ int64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = append(s.counts, name+":"+tags["outcome"]+":"+tags["step"])
}

func (s *recordingSink) Timing(name string, _ time.Duration, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timing = append(s.timing, name+":"+tags["method"]+":"+tags["status"])
}

func TestGateway_RecordsDecisionMetrics(t *testing.T) {
	sink := &recordingSink{}
	m := newTestSessionManager(t, memory.NewSessionStore(nil), nil)
	policy := gateway.NewPolicy()
	policy.Set("GET /account", gateway.RequireAuthenticated())
	h := Gateway(GatewayOptions{
		Sessions:   m,
		Principals: resolverFunc(noPrincipal),
		Policy:     policy,
		Metrics:    sink,
	})(http.NotFoundHandler())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/account", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/lessons", nil))

	assert.Equal(t, []string{
		"gateway.decision:redirect_to_login:authn",
		"gateway.decision:allow:",
	}, sink.counts)
}

func TestMetricsMiddleware_TagsStatusClass(t *testing.T) {
	sink := &recordingSink{}
	h := Metrics(sink)(http.NotFoundHandler())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, []string{"http.request:GET:4xx"}, sink.timing)
}
