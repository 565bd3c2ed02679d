package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/lessonhub/config"
	"github.com/target/lessonhub/internal/adapters/bcrypt"
	"github.com/target/lessonhub/internal/adapters/memory"
	redisadapter "github.com/target/lessonhub/internal/adapters/redis"
	"github.com/target/lessonhub/internal/data"
	"github.com/target/lessonhub/internal/data/cryptoutil"
	"github.com/target/lessonhub/internal/ports"
	"github.com/target/lessonhub/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Auth     *service.AuthService
	Sessions *service.SessionService
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB               // nil keeps principals in memory
	RedisClient redis.UniversalClient // required when SESSION_STORE=redis
	Providers   []ports.OAuthProvider
	Logger      *slog.Logger
}

// NewServices wires repositories and adapters into the application services.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	store, err := buildSessionStore(cfg.Session, deps.RedisClient)
	if err != nil {
		return ServiceContainer{}, err
	}
	sessions, err := service.NewSessionService(service.SessionServiceOptions{
		Store: store,
		TTL:   cfg.Session.TTL,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create session service: %w", err)
	}

	principals, err := buildPrincipalRepository(deps.DB, cfg, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	auth, err := service.NewAuthService(service.AuthServiceOptions{
		Principals:      principals,
		Hasher:          bcrypt.NewHasher(cfg.Auth.BcryptCost),
		Providers:       deps.Providers,
		ProviderTimeout: cfg.Auth.ProviderTimeout,
		Logger:          logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create auth service: %w", err)
	}

	return ServiceContainer{Auth: auth, Sessions: sessions}, nil
}

//nolint:ireturn // the store is chosen at runtime.
func buildSessionStore(cfg config.SessionConfig, client redis.UniversalClient) (ports.SessionStore, error) {
	switch cfg.Store {
	case config.SessionStoreMemory:
		return memory.NewSessionStore(nil), nil
	case config.SessionStoreRedis, "":
		if client == nil {
			return nil, errors.New("redis session store selected but redis client not configured")
		}
		return redisadapter.NewSessionStoreWithPrefix(client, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported session store %q", cfg.Store)
	}
}

//nolint:ireturn // the repository is chosen at runtime.
func buildPrincipalRepository(db *sql.DB, cfg *config.AppConfig, logger *slog.Logger) (ports.PrincipalRepository, error) {
	if db == nil {
		logger.Warn("no database configured; accounts are kept in memory and lost on restart")
		return memory.NewPrincipalRepository(nil), nil
	}
	enc, err := CreateEncryptor(cfg.TokenEncryptionKey, cfg.IsDev, logger)
	if err != nil {
		return nil, err
	}
	return data.NewPrincipalRepo(db, enc), nil
}

// CreateEncryptor builds the encryptor for provider tokens at rest.
// Without a key it falls back to a noop encryptor in development only.
//
//nolint:ireturn // callers only need the Encryptor behaviour.
func CreateEncryptor(key string, isDev bool, logger *slog.Logger) (cryptoutil.Encryptor, error) {
	if key == "" {
		if !isDev {
			return nil, errors.New("TOKEN_ENCRYPTION_KEY is required outside development")
		}
		if logger != nil {
			logger.Warn("TOKEN_ENCRYPTION_KEY not set; provider tokens are stored unencrypted")
		}
		return cryptoutil.NoopEncryptor{}, nil
	}
	derived, err := cryptoutil.DeriveKey(key)
	if err != nil {
		return nil, fmt.Errorf("derive token encryption key: %w", err)
	}
	enc, err := cryptoutil.NewAESGCMEncryptor(derived)
	if err != nil {
		return nil, fmt.Errorf("create token encryptor: %w", err)
	}
	return enc, nil
}
