package httpx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/target/lessonhub/internal/adapters/bcrypt"
	"github.com/target/lessonhub/internal/adapters/memory"
	domainauth "github.com/target/lessonhub/internal/domain/auth"
	mockauth "github.com/target/lessonhub/internal/mocks/auth"
	"github.com/target/lessonhub/internal/ports"
	"github.com/target/lessonhub/internal/service"
	"golang.org/x/net/publicsuffix"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "correct-horse"
)

// testApp is the full router on an httptest server with in-memory stores and
// mock providers, driven by a browser-like client that does not follow redirects.
type testApp struct {
	t          *testing.T
	server     *httptest.Server
	client     *http.Client
	store      *memory.SessionStore
	principals *memory.PrincipalRepository
	sessions   *SessionManager
	auth       *service.AuthService
	github     *mockauth.MockOAuthProvider
	google     *mockauth.MockOAuthProvider
	uploadDir  string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	store := memory.NewSessionStore(nil)
	principals := memory.NewPrincipalRepository(nil)

	github := mockauth.NewMockOAuthProvider(domainauth.ProviderGitHub)
	github.Identity.Email = "octo@example.com"
	github.Identity.Scopes = []string{"user:email"}
	google := mockauth.NewMockOAuthProvider(domainauth.ProviderGoogle)
	google.Identity.Email = "drive@example.com"
	google.Identity.Scopes = []string{"openid", "email", domainauth.ScopeGoogleDrive}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	auth, err := service.NewAuthService(service.AuthServiceOptions{
		Principals: principals,
		Hasher:     bcrypt.NewHasher(4),
		Providers:  []ports.OAuthProvider{github, google},
		Logger:     logger,
	})
	require.NoError(t, err)

	sessionSvc, err := service.NewSessionService(service.SessionServiceOptions{Store: store})
	require.NoError(t, err)
	hashKey, blockKey, err := SessionKeys("test-session-secret")
	require.NoError(t, err)
	sessions, err := NewSessionManager(SessionManagerOptions{
		Sessions: sessionSvc,
		HashKey:  hashKey,
		BlockKey: blockKey,
		Logger:   logger,
	})
	require.NoError(t, err)

	uploadDir := t.TempDir()
	handler, err := NewRouter(RouterServices{
		Auth:      auth,
		Sessions:  sessions,
		UploadDir: uploadDir,
		Logger:    logger,
	})
	require.NoError(t, err)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testApp{
		t:          t,
		server:     server,
		client:     client,
		store:      store,
		principals: principals,
		sessions:   sessions,
		auth:       auth,
		github:     github,
		google:     google,
		uploadDir:  uploadDir,
	}
}

func (a *testApp) do(req *http.Request) *http.Response {
	a.t.Helper()
	resp, err := a.client.Do(req)
	require.NoError(a.t, err)
	a.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (a *testApp) get(path string) *http.Response {
	a.t.Helper()
	req, err := http.NewRequest(http.MethodGet, a.server.URL+path, nil)
	require.NoError(a.t, err)
	return a.do(req)
}

func (a *testApp) postForm(path string, form url.Values) *http.Response {
	a.t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.server.URL+path, strings.NewReader(form.Encode()))
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(req)
}

// session returns the stored session the client's cookie points at.
func (a *testApp) session() domainauth.Session {
	a.t.Helper()
	sess, ok := a.trySession()
	require.True(a.t, ok, "client has no live session")
	return sess
}

func (a *testApp) trySession() (domainauth.Session, bool) {
	u, err := url.Parse(a.server.URL)
	require.NoError(a.t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range a.client.Jar.Cookies(u) {
		req.AddCookie(c)
	}
	id, ok := a.sessions.readCookie(req)
	if !ok {
		return domainauth.Session{}, false
	}
	sess, err := a.store.Get(context.Background(), id)
	if err != nil {
		return domainauth.Session{}, false
	}
	return sess, true
}

// csrfToken visits a public page so the session holds a token, and returns it.
func (a *testApp) csrfToken() string {
	a.t.Helper()
	resp := a.get("/login")
	require.Equal(a.t, http.StatusOK, resp.StatusCode)
	doc := decodeDoc(a.t, resp)
	token, _ := doc["csrfToken"].(string)
	require.NotEmpty(a.t, token)
	return token
}

// registerLocal creates a local account directly through the service.
func (a *testApp) registerLocal(email, password string) *domainauth.Principal {
	a.t.Helper()
	p, err := a.auth.Register(context.Background(), service.SignupInput{
		Email:           email,
		Password:        password,
		ConfirmPassword: password,
		Name:            "Ada",
	})
	require.NoError(a.t, err)
	return p
}

// login signs the client in with the local form.
func (a *testApp) login(email, password string) *http.Response {
	a.t.Helper()
	return a.postForm("/login", url.Values{
		"email":         {email},
		"password":      {password},
		CSRFFormField: {a.csrfTokenFromSession()},
	})
}

// csrfTokenFromSession returns the current token, minting one first when needed.
func (a *testApp) csrfTokenFromSession() string {
	a.t.Helper()
	if sess, ok := a.trySession(); ok && sess.CSRFToken != "" {
		return sess.CSRFToken
	}
	return a.csrfToken()
}

// oauthRoundTrip starts a handshake with provider and follows the consent
// redirect straight back to the callback.
func (a *testApp) oauthRoundTrip(provider domainauth.Provider) *http.Response {
	a.t.Helper()
	begin := a.get("/auth/" + provider.String())
	require.Equal(a.t, http.StatusFound, begin.StatusCode)
	consent, err := url.Parse(begin.Header.Get("Location"))
	require.NoError(a.t, err)

	q := url.Values{
		"code":  {consent.Query().Get("code")},
		"state": {consent.Query().Get("state")},
	}
	return a.get("/auth/" + provider.String() + "/callback?" + q.Encode())
}

func decodeDoc(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	return doc
}
