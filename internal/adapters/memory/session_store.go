// Package memory provides in-process implementations of the auth ports for
// mock mode and tests. State is lost on restart.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/ports"
)

type sessionEntry struct {
	sess      domainauth.Session
	expiresAt time.Time
}

// SessionStore keeps sessions in a map guarded by a mutex.
type SessionStore struct {
	mu      sync.RWMutex
	entries map[string]sessionEntry
	now     func() time.Time
}

// NewSessionStore returns an empty store. now defaults to time.Now.
func NewSessionStore(now func() time.Time) *SessionStore {
	if now == nil {
		now = time.Now
	}
	return &SessionStore{entries: make(map[string]sessionEntry), now: now}
}

// Save stores a copy of sess, replacing any earlier write.
func (s *SessionStore) Save(_ context.Context, sess domainauth.Session, ttl time.Duration) error {
	if sess.ID == "" {
		return errors.New("session ID is required")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sess.ID] = sessionEntry{sess: cloneSession(sess), expiresAt: s.now().Add(ttl)}
	return nil
}

// Get returns the session or ports.ErrSessionNotFound when it is missing or expired.
func (s *SessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return domainauth.Session{}, ports.ErrSessionNotFound
	}
	if !s.now().Before(e.expiresAt) {
		s.mu.Lock()
		// Re-check: a concurrent Save may have refreshed the entry.
		if cur, still := s.entries[id]; still && !s.now().Before(cur.expiresAt) {
			delete(s.entries, id)
		}
		s.mu.Unlock()
		return domainauth.Session{}, ports.ErrSessionNotFound
	}
	return cloneSession(e.sess), nil
}

// Delete removes the session. Deleting an unknown id is not an error.
func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Len reports how many sessions are held, including expired ones not yet read.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cloneSession(in domainauth.Session) domainauth.Session {
	out := in
	if in.Handshakes != nil {
		out.Handshakes = make(map[domainauth.Provider]domainauth.Handshake, len(in.Handshakes))
		for k, v := range in.Handshakes {
			out.Handshakes[k] = v
		}
	}
	if in.Flash != nil {
		out.Flash = append([]domainauth.Flash(nil), in.Flash...)
	}
	return out
}

var _ ports.SessionStore = (*SessionStore)(nil)
