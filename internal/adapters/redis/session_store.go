package redis

// Package redis provides Redis-based adapters for the gateway.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/lessonhub/internal/domain/auth"
	"github.com/target/lessonhub/internal/ports"
)

// DefaultKeyPrefix namespaces session keys.
const DefaultKeyPrefix = "session:"

var _ ports.SessionStore = (*SessionStore)(nil)

// SessionStore is a Redis-based session store for production use.
// Each Save rewrites the key with a fresh TTL, so expiry counts from the last write.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
}

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return NewSessionStoreWithPrefix(client, DefaultKeyPrefix)
}

// NewSessionStoreWithPrefix creates a Redis session store with a custom key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{
		client: client,
		prefix: prefix,
	}
}

func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session, ttl time.Duration) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("session TTL must be positive")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.prefix+sess.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ports.ErrSessionNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, ports.ErrSessionNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}

	var sess domainauth.Session
	if unmarshalErr := json.Unmarshal(data, &sess); unmarshalErr != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", unmarshalErr)
	}
	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.prefix+id).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
