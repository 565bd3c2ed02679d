package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/ports"
)

// SessionServiceOptions groups dependencies for SessionService.
type SessionServiceOptions struct {
	Store ports.SessionStore
	TTL   time.Duration // defaults to domainauth.SessionTTL
	Now   func() time.Time
}

// SessionService creates, loads and persists gateway sessions.
// Every write refreshes the TTL, so a session lives two weeks from its last write.
type SessionService struct {
	store ports.SessionStore
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(opts SessionServiceOptions) (*SessionService, error) {
	if opts.Store == nil {
		return nil, errors.New("SessionStore is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = domainauth.SessionTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &SessionService{store: opts.Store, ttl: ttl, now: now}, nil
}

// TTL returns the configured session lifetime.
func (s *SessionService) TTL() time.Duration { return s.ttl }

// New returns a fresh anonymous session. It is not persisted until Save.
func (s *SessionService) New() *domainauth.Session {
	sess := domainauth.NewSession(generateSessionID(), s.now())
	sess.Touch(sess.CreatedAt, s.ttl)
	return sess
}

// Load retrieves a session by id. Unknown and expired sessions return ports.ErrSessionNotFound.
func (s *SessionService) Load(ctx context.Context, id string) (*domainauth.Session, error) {
	if id == "" {
		return nil, ports.ErrSessionNotFound
	}

	sess, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	if sess.Expired(s.now()) {
		if deleteErr := s.store.Delete(ctx, id); deleteErr != nil {
			return nil, errors.Join(ports.ErrSessionNotFound, fmt.Errorf("delete session: %w", deleteErr))
		}
		return nil, ports.ErrSessionNotFound
	}

	return &sess, nil
}

// Save persists the session and pushes its expiry out by the TTL.
func (s *SessionService) Save(ctx context.Context, sess *domainauth.Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("session ID is required")
	}
	sess.Touch(s.now(), s.ttl)
	if err := s.store.Save(ctx, *sess, s.ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Renew moves the session to a new id and drops the old record. Used when the
// principal changes so a pre-login id cannot be replayed.
func (s *SessionService) Renew(ctx context.Context, sess *domainauth.Session) error {
	if sess == nil {
		return errors.New("session is required")
	}
	oldID := sess.ID
	sess.ID = generateSessionID()
	if oldID == "" {
		return nil
	}
	if err := s.store.Delete(ctx, oldID); err != nil {
		return fmt.Errorf("delete previous session: %w", err)
	}
	return nil
}

// Destroy removes a session record.
func (s *SessionService) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// generateSessionID creates a cryptographically secure random session ID.
func generateSessionID() string {
	return uuid.NewString()
}
