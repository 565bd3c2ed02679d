package httpx

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/target/lessonhub/internal/data/cryptoutil"
	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/ports"
	"github.com/target/lessonhub/internal/service"
)

// DefaultSessionCookieName names the cookie carrying the signed session id.
const DefaultSessionCookieName = "lessonhub.sid"

const csrfTokenBytes = 32

// SessionKeys derives the cookie signing and encryption keys from one secret.
func SessionKeys(secret string) (hashKey, blockKey []byte, err error) {
	hashKey, err = cryptoutil.DeriveKey(secret)
	if err != nil {
		return nil, nil, fmt.Errorf("derive session hash key: %w", err)
	}
	blockKey, err = cryptoutil.DeriveKey("block:" + secret)
	if err != nil {
		return nil, nil, fmt.Errorf("derive session block key: %w", err)
	}
	return hashKey, blockKey, nil
}

// SessionManagerOptions groups dependencies for SessionManager.
type SessionManagerOptions struct {
	Sessions   *service.SessionService
	HashKey    []byte
	BlockKey   []byte
	CookieName string
	Secure     bool
	Logger     *slog.Logger
}

// SessionManager binds server-side sessions to a signed, encrypted cookie.
type SessionManager struct {
	svc    *service.SessionService
	codec  *securecookie.SecureCookie
	name   string
	secure bool
	maxAge int
	logger *slog.Logger
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(opts SessionManagerOptions) (*SessionManager, error) {
	if opts.Sessions == nil {
		return nil, errors.New("SessionService is required")
	}
	if len(opts.HashKey) == 0 {
		return nil, errors.New("session hash key is required")
	}
	name := opts.CookieName
	if name == "" {
		name = DefaultSessionCookieName
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxAge := int(opts.Sessions.TTL().Seconds())
	codec := securecookie.New(opts.HashKey, opts.BlockKey)
	codec.MaxAge(maxAge)

	return &SessionManager{
		svc:    opts.Sessions,
		codec:  codec,
		name:   name,
		secure: opts.Secure,
		maxAge: maxAge,
		logger: logger.With("component", "sessions"),
	}, nil
}

// CookieName returns the session cookie name.
func (m *SessionManager) CookieName() string { return m.name }

// Load returns the session named by the request cookie. A missing, tampered or
// expired cookie yields a fresh unsaved session; only store failures are errors.
func (m *SessionManager) Load(r *http.Request) (*domainauth.Session, error) {
	id, ok := m.readCookie(r)
	if !ok {
		return m.svc.New(), nil
	}

	sess, err := m.svc.Load(r.Context(), id)
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, ports.ErrSessionNotFound):
		return m.svc.New(), nil
	default:
		return nil, fmt.Errorf("load session: %w", err)
	}
}

func (m *SessionManager) readCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(m.name)
	if err != nil || c.Value == "" {
		return "", false
	}
	var id string
	if err := m.codec.Decode(m.name, c.Value, &id); err != nil {
		m.logger.DebugContext(r.Context(), "discarding unreadable session cookie", "error", err)
		return "", false
	}
	return id, id != ""
}

// Save writes the session to the store and (re)sets the cookie.
func (m *SessionManager) Save(ctx context.Context, w http.ResponseWriter, sess *domainauth.Session) error {
	if err := m.svc.Save(ctx, sess); err != nil {
		return err
	}
	encoded, err := m.codec.Encode(m.name, sess.ID)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   m.maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Renew gives the session a new id. The caller saves it afterwards.
func (m *SessionManager) Renew(ctx context.Context, sess *domainauth.Session) error {
	return m.svc.Renew(ctx, sess)
}

// newCSRFToken mints a session-bound token.
func newCSRFToken() (string, error) {
	b := securecookie.GenerateRandomKey(csrfTokenBytes)
	if b == nil {
		return "", errors.New("generate csrf token: random source failed")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
