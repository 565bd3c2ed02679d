package auth

import "time"

// SessionTTL is how long a session survives after its last write.
const SessionTTL = 14 * 24 * time.Hour

// FlashKind classifies a transient message shown on the next page view.
type FlashKind string

const (
	FlashInfo    FlashKind = "info"
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "errors"
)

// Flash is a one-shot message carried by the session.
type Flash struct {
	Kind    FlashKind `json:"kind"`
	Message string    `json:"msg"`
}

// Handshake records an OAuth round trip the gateway started for this session.
type Handshake struct {
	State     string    `json:"state"`
	Nonce     string    `json:"nonce,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Session is the server-side record keyed by the opaque id in the session cookie.
// PrincipalID is empty until authentication succeeds. ReturnTo holds at most one
// remembered path; setting it replaces any previous value.
type Session struct {
	ID          string                 `json:"id"`
	PrincipalID string                 `json:"principal_id,omitempty"`
	ReturnTo    string                 `json:"return_to,omitempty"`
	CSRFToken   string                 `json:"csrf_token,omitempty"`
	Handshakes  map[Provider]Handshake `json:"handshakes,omitempty"`
	Flash       []Flash                `json:"flash,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ExpiresAt   time.Time              `json:"expires_at"`
}

// NewSession returns an anonymous session created at now.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(SessionTTL),
	}
}

// IsAuthenticated reports whether a principal is attached.
func (s *Session) IsAuthenticated() bool { return s != nil && s.PrincipalID != "" }

// Expired reports whether the session outlived its TTL at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Touch records a write at now and pushes expiry out by ttl.
func (s *Session) Touch(now time.Time, ttl time.Duration) {
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(ttl)
}

// TakeReturnTo returns the remembered path and clears it.
func (s *Session) TakeReturnTo() string {
	rt := s.ReturnTo
	s.ReturnTo = ""
	return rt
}

// AddFlash queues a message for the next page view.
func (s *Session) AddFlash(kind FlashKind, msg string) {
	s.Flash = append(s.Flash, Flash{Kind: kind, Message: msg})
}

// TakeFlash drains queued messages.
func (s *Session) TakeFlash() []Flash {
	f := s.Flash
	s.Flash = nil
	return f
}

// BeginHandshake remembers state and nonce for provider, replacing an older attempt.
func (s *Session) BeginHandshake(p Provider, h Handshake) {
	if s.Handshakes == nil {
		s.Handshakes = make(map[Provider]Handshake)
	}
	s.Handshakes[p] = h
}

// PendingHandshake returns the in-flight handshake for provider.
func (s *Session) PendingHandshake(p Provider) (Handshake, bool) {
	h, ok := s.Handshakes[p]
	return h, ok
}

// EndHandshake forgets the handshake for provider.
func (s *Session) EndHandshake(p Provider) {
	delete(s.Handshakes, p)
}
