package config

import "time"

// SessionStoreKind selects the session backend.
type SessionStoreKind string

const (
	SessionStoreRedis  SessionStoreKind = "redis"
	SessionStoreMemory SessionStoreKind = "memory"
)

// defaultSessionTTL is two weeks.
const defaultSessionTTL = 14 * 24 * time.Hour

// SessionConfig controls the session cookie and where sessions live.
type SessionConfig struct {
	// Secret signs and encrypts the session cookie.
	Secret string `env:"SECRET"`

	Store      SessionStoreKind `env:"STORE"         envDefault:"redis"`
	KeyPrefix  string           `env:"KEY_PREFIX"    envDefault:"session:"`
	CookieName string           `env:"COOKIE_NAME"   envDefault:"lessonhub.sid"`
	// CookieSecure adds the Secure attribute; enable behind TLS.
	CookieSecure bool          `env:"COOKIE_SECURE" envDefault:"false"`
	TTL          time.Duration `env:"TTL"           envDefault:"336h"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.TTL <= 0 {
		s.TTL = defaultSessionTTL
	}
	switch s.Store {
	case SessionStoreRedis, SessionStoreMemory:
	default:
		s.Store = SessionStoreRedis
	}
	if s.KeyPrefix == "" {
		s.KeyPrefix = "session:"
	}
	if s.CookieName == "" {
		s.CookieName = "lessonhub.sid"
	}
}
