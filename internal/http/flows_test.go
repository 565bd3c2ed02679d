package httpx

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/ports"
)

func TestProtectedRoutes_AnonymousRedirectsToLoginAndRemembersPath(t *testing.T) {
	protected := []string{
		"/account",
		"/account/unlink/github",
		"/api/github",
		"/api/google/drive",
		"/account?tab=linked",
	}
	for _, path := range protected {
		t.Run(path, func(t *testing.T) {
			app := newTestApp(t)

			resp := app.get(path)

			assert.Equal(t, http.StatusFound, resp.StatusCode)
			assert.Equal(t, "/login", resp.Header.Get("Location"))
			assert.Equal(t, path, app.session().ReturnTo)
		})
	}
}

func TestLoginAfterRedirect_ReturnsToRememberedPageAndClearsIt(t *testing.T) {
	app := newTestApp(t)
	p := app.registerLocal(testEmail, testPassword)

	resp := app.get("/account")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	before := app.session()
	require.Equal(t, "/account", before.ReturnTo)

	resp = app.login(testEmail, testPassword)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/account", resp.Header.Get("Location"))
	after := app.session()
	assert.Empty(t, after.ReturnTo)
	assert.Equal(t, p.ID, after.PrincipalID)
	assert.NotEqual(t, before.ID, after.ID, "session id must rotate on login")
	_, err := app.store.Get(context.Background(), before.ID)
	assert.Error(t, err, "pre-login session must be gone")

	resp = app.get("/account")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decodeDoc(t, resp)
	assert.Equal(t, "account", doc["page"])
	assert.Equal(t, true, doc["authenticated"])
}

func TestLogin_WithoutRememberedPageGoesHome(t *testing.T) {
	app := newTestApp(t)
	app.registerLocal(testEmail, testPassword)

	resp := app.login(testEmail, testPassword)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestFailedLogin_KeepsReturnTo(t *testing.T) {
	app := newTestApp(t)
	app.registerLocal(testEmail, testPassword)
	app.get("/lessons")
	require.Equal(t, "/lessons", app.session().ReturnTo)

	resp := app.login(testEmail, "wrong-password")

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	sess := app.session()
	assert.Equal(t, "/lessons", sess.ReturnTo)
	assert.Empty(t, sess.PrincipalID)

	// The failure is surfaced once as a flash message.
	doc := decodeDoc(t, app.get("/login"))
	assert.Contains(t, doc, "flash")
	doc = decodeDoc(t, app.get("/login"))
	assert.NotContains(t, doc, "flash")

	resp = app.login(testEmail, testPassword)
	assert.Equal(t, "/lessons", resp.Header.Get("Location"))
	assert.Empty(t, app.session().ReturnTo)
}

func TestAnonymousEntryPoints_DoNotCaptureReturnTo(t *testing.T) {
	paths := []string{"/login", "/signup", "/auth/github", "/auth/nope", "/auth", "/favicon.ico", "/css/main.css"}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			app := newTestApp(t)
			app.get("/subjects")
			require.Equal(t, "/subjects", app.session().ReturnTo)

			app.get(path)

			assert.Equal(t, "/subjects", app.session().ReturnTo)
		})
	}
}

func TestAuthenticatedVisitor_OnlyAccountAndAPICaptureReturnTo(t *testing.T) {
	app := newTestApp(t)
	app.registerLocal(testEmail, testPassword)
	app.login(testEmail, testPassword)

	app.get("/lessons")
	assert.Empty(t, app.session().ReturnTo)

	app.get("/account")
	assert.Equal(t, "/account", app.session().ReturnTo)

	app.get("/community")
	assert.Equal(t, "/account", app.session().ReturnTo)

	app.get("/api/upload")
	assert.Equal(t, "/api/upload", app.session().ReturnTo)
}

func TestCSRF_StateChangingRoutesNeedToken(t *testing.T) {
	app := newTestApp(t)
	token := app.csrfToken()

	for _, path := range []string{"/login", "/signup", "/contact"} {
		t.Run(path, func(t *testing.T) {
			resp := app.postForm(path, url.Values{"email": {testEmail}})
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.NotContains(t, string(body), token)

			resp = app.postForm(path, url.Values{"email": {testEmail}, CSRFFormField: {"forged"}})
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}

	t.Run("header token", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, app.server.URL+"/contact",
			bytes.NewBufferString(url.Values{"name": {"Ada"}, "email": {testEmail}, "message": {"hi"}}.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set(CSRFHeader, token)

		resp := app.do(req)
		assert.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/contact", resp.Header.Get("Location"))
	})
}

func TestCSRFDenial_DoesNotTouchSession(t *testing.T) {
	app := newTestApp(t)
	app.csrfToken()
	app.get("/lessons")
	before := app.session()

	resp := app.postForm("/contact", url.Values{CSRFFormField: {"forged"}})

	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	after := app.session()
	assert.Equal(t, before.ReturnTo, after.ReturnTo)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func multipartUpload(t *testing.T, token string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if token != "" {
		require.NoError(t, mw.WriteField(CSRFFormField, token))
	}
	fw, err := mw.CreateFormFile(uploadField, "notes.txt")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestUpload_SkipsCSRFFilterAndChecksTokenAfterParsing(t *testing.T) {
	app := newTestApp(t)
	token := app.csrfToken()

	t.Run("body is not parsed by the filter", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, app.server.URL+"/api/upload", bytes.NewBufferString("not multipart"))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "text/plain")

		resp := app.do(req)

		// A filter denial would be 403; reaching the handler yields a parse error.
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing token", func(t *testing.T) {
		body, ct := multipartUpload(t, "", []byte("hello"))
		req, err := http.NewRequest(http.MethodPost, app.server.URL+"/api/upload", body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", ct)

		resp := app.do(req)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("valid token", func(t *testing.T) {
		body, ct := multipartUpload(t, token, []byte("hello"))
		req, err := http.NewRequest(http.MethodPost, app.server.URL+"/api/upload", body)
		require.NoError(t, err)
		req.Header.Set("Content-Type", ct)

		resp := app.do(req)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		doc := decodeDoc(t, resp)
		assert.Equal(t, "notes.txt", doc["filename"])

		stored, _ := doc["storedAs"].(string)
		require.NotEmpty(t, stored)
		got, err := os.ReadFile(filepath.Join(app.uploadDir, stored))
		require.NoError(t, err)
		assert.Equal(t, "hello", string(got))
	})
}

func TestOAuthLogin_AnonymousCreatesPrincipalAndReturns(t *testing.T) {
	app := newTestApp(t)
	app.get("/subjects")

	resp := app.oauthRoundTrip(domainauth.ProviderGitHub)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/subjects", resp.Header.Get("Location"))
	sess := app.session()
	assert.Empty(t, sess.ReturnTo)
	require.NotEmpty(t, sess.PrincipalID)
	_, pending := sess.PendingHandshake(domainauth.ProviderGitHub)
	assert.False(t, pending)

	p, err := app.principals.Get(context.Background(), sess.PrincipalID)
	require.NoError(t, err)
	assert.Equal(t, "octo@example.com", p.Email)

	exchanges := app.github.Exchanges()
	require.Len(t, exchanges, 1)
	assert.Equal(t, "code-state-1", exchanges[0].Code)
	assert.Equal(t, "nonce-1", exchanges[0].Nonce)
}

func TestOAuthLogin_RelinkUpdatesCredentialInPlace(t *testing.T) {
	app := newTestApp(t)

	app.oauthRoundTrip(domainauth.ProviderGitHub)
	first := app.session().PrincipalID
	app.get("/logout")

	app.github.Identity.AccessToken = "rotated-token"
	app.oauthRoundTrip(domainauth.ProviderGitHub)

	assert.Equal(t, first, app.session().PrincipalID)
	p, err := app.principals.Get(context.Background(), first)
	require.NoError(t, err)
	require.Len(t, p.Identities, 1)
	assert.Equal(t, "rotated-token", p.Identities[0].AccessToken)
}

func TestScopedRoute_AuthenticatedWithoutScopeRedirectsToLogin(t *testing.T) {
	app := newTestApp(t)
	p := app.registerLocal(testEmail, testPassword)
	app.login(testEmail, testPassword)

	resp := app.get("/api/google/drive")

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Equal(t, "/api/google/drive", app.session().ReturnTo)

	// Linking Google mid-session returns to the drive page.
	resp = app.oauthRoundTrip(domainauth.ProviderGoogle)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/api/google/drive", resp.Header.Get("Location"))
	assert.Equal(t, p.ID, app.session().PrincipalID)

	resp = app.get("/api/google/drive")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	doc := decodeDoc(t, resp)
	assert.Equal(t, "api/google-drive", doc["page"])
}

func TestOAuthCallback_ProviderFailureLeavesSessionUnchanged(t *testing.T) {
	app := newTestApp(t)
	app.registerLocal(testEmail, testPassword)
	app.login(testEmail, testPassword)
	app.get("/api/google/drive")

	begin := app.get("/auth/google")
	require.Equal(t, http.StatusFound, begin.StatusCode)
	before := app.session()
	require.Equal(t, "/api/google/drive", before.ReturnTo)

	resp := app.get("/auth/google/callback?error=access_denied&state=state-1")

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	after := app.session()
	assert.Equal(t, before.PrincipalID, after.PrincipalID)
	assert.Equal(t, before.ReturnTo, after.ReturnTo)
	assert.Equal(t, before.ID, after.ID)
	assert.Empty(t, app.google.Exchanges())
}

func TestOAuthCallback_StateMismatchFails(t *testing.T) {
	app := newTestApp(t)
	app.get("/lessons")
	app.get("/auth/github")

	resp := app.get("/auth/github/callback?code=abc&state=forged")

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Empty(t, app.github.Exchanges())
	sess := app.session()
	assert.Empty(t, sess.PrincipalID)
	assert.Equal(t, "/lessons", sess.ReturnTo)
}

func TestOAuthCallback_WithoutHandshakeFails(t *testing.T) {
	app := newTestApp(t)

	resp := app.get("/auth/github/callback?code=abc&state=state-1")

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Empty(t, app.github.Exchanges())
}

func TestBeginOAuth_UnknownProvider(t *testing.T) {
	app := newTestApp(t)

	resp := app.get("/auth/myspace")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLogout_IsIdempotent(t *testing.T) {
	app := newTestApp(t)

	resp := app.get("/logout")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	app.registerLocal(testEmail, testPassword)
	app.login(testEmail, testPassword)
	require.NotEmpty(t, app.session().PrincipalID)

	resp = app.get("/logout")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Empty(t, app.session().PrincipalID)

	resp = app.get("/logout")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Empty(t, app.session().PrincipalID)
}

func TestSignup_CreatesAccountAndSignsIn(t *testing.T) {
	app := newTestApp(t)
	token := app.csrfToken()

	form := url.Values{
		"email":           {"new@example.com"},
		"password":        {"long-enough"},
		"confirmPassword": {"long-enough"},
		CSRFFormField:     {token},
	}
	resp := app.postForm("/signup", form)

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.NotEmpty(t, app.session().PrincipalID)

	app.get("/logout")
	form.Set(CSRFFormField, app.session().CSRFToken)
	resp = app.postForm("/signup", form)
	assert.Equal(t, "/signup", resp.Header.Get("Location"))
	assert.Empty(t, app.session().PrincipalID)
}

func TestSignup_ValidationErrorsBecomeFlash(t *testing.T) {
	app := newTestApp(t)
	token := app.csrfToken()

	resp := app.postForm("/signup", url.Values{
		"email":           {"not-an-email"},
		"password":        {"short"},
		"confirmPassword": {"other"},
		CSRFFormField:     {token},
	})
	require.Equal(t, "/signup", resp.Header.Get("Location"))

	flash := app.session().Flash
	require.Len(t, flash, 3)
	assert.Equal(t, domainauth.FlashError, flash[0].Kind)
}

func TestUnlink_RemovesIdentity(t *testing.T) {
	app := newTestApp(t)
	app.oauthRoundTrip(domainauth.ProviderGitHub)
	app.oauthRoundTrip(domainauth.ProviderGoogle)
	id := app.session().PrincipalID

	resp := app.get("/account/unlink/github")

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/account", resp.Header.Get("Location"))
	p, err := app.principals.Get(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, p.Identities, 1)
	assert.Equal(t, domainauth.ProviderGoogle, p.Identities[0].Provider)

	resp = app.get("/api/github")
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestUnlink_RefusesLastSignInMethod(t *testing.T) {
	app := newTestApp(t)
	app.oauthRoundTrip(domainauth.ProviderGitHub)
	id := app.session().PrincipalID

	resp := app.get("/account/unlink/github")

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/account", resp.Header.Get("Location"))
	flash := app.session().Flash
	require.Len(t, flash, 1)
	assert.Equal(t, domainauth.FlashError, flash[0].Kind)
	p, err := app.principals.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, p.Identities, 1)

	app.get("/logout")
	require.Empty(t, app.session().PrincipalID)
	resp = app.oauthRoundTrip(domainauth.ProviderGitHub)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, id, app.session().PrincipalID)
}

func TestAccountPassword_ChangesLocalPassword(t *testing.T) {
	app := newTestApp(t)
	app.registerLocal(testEmail, testPassword)
	app.login(testEmail, testPassword)
	token := app.session().CSRFToken

	resp := app.postForm("/account/password", url.Values{
		"currentPassword": {"wrong-password"},
		"password":        {"battery-staple"},
		"confirmPassword": {"battery-staple"},
		CSRFFormField:     {token},
	})
	assert.Equal(t, "/account", resp.Header.Get("Location"))
	sess := app.session()
	flash := sess.TakeFlash()
	require.Len(t, flash, 1)
	assert.Equal(t, domainauth.FlashError, flash[0].Kind)

	resp = app.postForm("/account/password", url.Values{
		"currentPassword": {testPassword},
		"password":        {"battery-staple"},
		"confirmPassword": {"battery-staple"},
		CSRFFormField:     {token},
	})
	assert.Equal(t, "/account", resp.Header.Get("Location"))

	app.get("/logout")
	app.login(testEmail, testPassword)
	assert.Empty(t, app.session().PrincipalID, "old password no longer works")
	app.login(testEmail, "battery-staple")
	assert.NotEmpty(t, app.session().PrincipalID)
}

func TestAccountPassword_ProviderAccountCanThenUnlink(t *testing.T) {
	app := newTestApp(t)
	app.oauthRoundTrip(domainauth.ProviderGitHub)
	id := app.session().PrincipalID

	resp := app.postForm("/account/password", url.Values{
		"password":        {"battery-staple"},
		"confirmPassword": {"battery-staple"},
		CSRFFormField:     {app.session().CSRFToken},
	})
	require.Equal(t, "/account", resp.Header.Get("Location"))

	resp = app.get("/account/unlink/github")
	require.Equal(t, "/account", resp.Header.Get("Location"))
	p, err := app.principals.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, p.Identities)

	app.get("/logout")
	app.login("octo@example.com", "battery-staple")
	assert.Equal(t, id, app.session().PrincipalID)
}

func TestAccountProfile_Update(t *testing.T) {
	app := newTestApp(t)
	app.registerLocal("grace@example.com", testPassword)
	p := app.registerLocal(testEmail, testPassword)
	app.login(testEmail, testPassword)
	token := app.session().CSRFToken

	resp := app.postForm("/account/profile", url.Values{
		"email":       {"Countess@Example.com"},
		"name":        {"Ada Lovelace"},
		CSRFFormField: {token},
	})
	require.Equal(t, "/account", resp.Header.Get("Location"))
	got, err := app.principals.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "countess@example.com", got.Email)
	assert.Equal(t, "Ada Lovelace", got.Name)

	resp = app.postForm("/account/profile", url.Values{
		"email":       {"grace@example.com"},
		CSRFFormField: {token},
	})
	require.Equal(t, "/account", resp.Header.Get("Location"))
	flash := app.session().Flash
	require.NotEmpty(t, flash)
	assert.Equal(t, domainauth.FlashError, flash[len(flash)-1].Kind)
}

func TestAccountDelete_RemovesPrincipalAndSignsOut(t *testing.T) {
	app := newTestApp(t)
	p := app.registerLocal(testEmail, testPassword)
	app.login(testEmail, testPassword)

	resp := app.postForm("/account/delete", url.Values{CSRFFormField: {"forged"}})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	_, err := app.principals.Get(context.Background(), p.ID)
	require.NoError(t, err, "denied request must not delete")

	resp = app.postForm("/account/delete", url.Values{CSRFFormField: {app.session().CSRFToken}})

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Empty(t, app.session().PrincipalID)
	_, err = app.principals.Get(context.Background(), p.ID)
	require.ErrorIs(t, err, ports.ErrPrincipalNotFound)

	resp = app.get("/account")
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestAccountRoutes_AnonymousRedirectsToLogin(t *testing.T) {
	app := newTestApp(t)
	token := app.csrfToken()

	for _, path := range []string{"/account/profile", "/account/password", "/account/delete"} {
		resp := app.postForm(path, url.Values{CSRFFormField: {token}})
		assert.Equal(t, http.StatusFound, resp.StatusCode, path)
		assert.Equal(t, "/login", resp.Header.Get("Location"), path)
	}
}

func TestDeletedPrincipal_SessionTreatedAsAnonymous(t *testing.T) {
	app := newTestApp(t)
	p := app.registerLocal(testEmail, testPassword)
	app.login(testEmail, testPassword)
	require.NoError(t, app.principals.Delete(context.Background(), p.ID))

	resp := app.get("/account")

	assert.Equal(t, "/login", resp.Header.Get("Location"))
	sess := app.session()
	assert.Empty(t, sess.PrincipalID)
	assert.Equal(t, "/account", sess.ReturnTo)
}

func TestAnonymousLogoutVisit_BecomesLoginTarget(t *testing.T) {
	app := newTestApp(t)
	app.registerLocal(testEmail, testPassword)

	app.get("/logout")
	require.Equal(t, "/logout", app.session().ReturnTo)

	resp := app.login(testEmail, testPassword)
	assert.Equal(t, "/logout", resp.Header.Get("Location"))
}

func TestSessionCookie_Attributes(t *testing.T) {
	app := newTestApp(t)

	resp := app.get("/")

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sid *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == DefaultSessionCookieName {
			sid = c
		}
	}
	require.NotNil(t, sid)
	assert.True(t, sid.HttpOnly)
	assert.Equal(t, "/", sid.Path)
	assert.Equal(t, 1209600, sid.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, sid.SameSite)
}

func TestSecurityHeaders_OnEveryResponse(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/", "/healthz", "/account"} {
		resp := app.get(path)
		assert.Equal(t, "SAMEORIGIN", resp.Header.Get("X-Frame-Options"), path)
		assert.Equal(t, "1; mode=block", resp.Header.Get("X-XSS-Protection"), path)
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"), path)
	}
}

func TestHealthz_DoesNotCreateSession(t *testing.T) {
	app := newTestApp(t)

	resp := app.get("/healthz")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Cookies())
	assert.Equal(t, 0, app.store.Len())
}

func TestCrossOriginPost_Rejected(t *testing.T) {
	app := newTestApp(t)
	token := app.csrfToken()

	req, err := http.NewRequest(http.MethodPost, app.server.URL+"/contact",
		bytes.NewBufferString(url.Values{CSRFFormField: {token}}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Sec-Fetch-Site", "cross-site")

	resp := app.do(req)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
