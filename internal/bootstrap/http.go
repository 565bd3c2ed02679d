package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/target/lessonhub/config"
	httpx "github.com/target/lessonhub/internal/http"
	"github.com/target/lessonhub/internal/observability/statsd"
	"golang.org/x/sync/errgroup"
)

// devSessionSecret signs cookies in development when SESSION_SECRET is unset.
const devSessionSecret = "lessonhub-development-only"

const shutdownTimeout = 10 * time.Second

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Ready    map[string]httpx.Pinger
	Metrics  statsd.Sink // optional
	Logger   *slog.Logger
}

// NewHTTPServer builds the router and wraps it in an http.Server.
// The server is not started.
func NewHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config

	secret := appCfg.Session.Secret
	if secret == "" {
		if !appCfg.IsDev {
			return nil, errors.New("SESSION_SECRET is required")
		}
		logger.Warn("SESSION_SECRET not set; using development secret")
		secret = devSessionSecret
	}
	hashKey, blockKey, err := httpx.SessionKeys(secret)
	if err != nil {
		return nil, fmt.Errorf("derive session keys: %w", err)
	}

	sessions, err := httpx.NewSessionManager(httpx.SessionManagerOptions{
		Sessions:   cfg.Services.Sessions,
		HashKey:    hashKey,
		BlockKey:   blockKey,
		CookieName: appCfg.Session.CookieName,
		Secure:     appCfg.Session.CookieSecure,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create session manager: %w", err)
	}

	router, err := httpx.NewRouter(httpx.RouterServices{
		Auth:             cfg.Services.Auth,
		Sessions:         sessions,
		UploadDir:        appCfg.Upload.Dir,
		MaxUploadBytes:   appCfg.Upload.MaxBytes,
		TrustedOrigins:   appCfg.HTTP.TrustedOrigins,
		Ready:            cfg.Ready,
		CompressionLevel: appCfg.HTTP.CompressionLevel,
		Metrics:          cfg.Metrics,
		IsDev:            appCfg.IsDev,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	addr := appCfg.HTTP.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}

// NewMetricsClient creates the StatsD client. Without an address it returns
// a client that drops every metric.
func NewMetricsClient(cfg config.MetricsConfig, logger *slog.Logger) (*statsd.Client, error) {
	var tags map[string]string
	if cfg.Env != "" {
		tags = map[string]string{"env": cfg.Env}
	}
	client, err := statsd.NewClient(statsd.Config{
		Address:    cfg.StatsdAddress,
		Prefix:     cfg.Prefix,
		GlobalTags: tags,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create statsd client: %w", err)
	}
	if logger != nil && client.Enabled() {
		logger.Info("statsd metrics enabled", "addr", cfg.StatsdAddress, "prefix", cfg.Prefix)
	}
	return client, nil
}

// ReadinessChecks returns the dependencies /readyz probes. Nil clients are skipped.
func ReadinessChecks(db *sql.DB, redisClient redis.UniversalClient) map[string]httpx.Pinger {
	checks := make(map[string]httpx.Pinger, 2)
	if db != nil {
		checks["postgres"] = httpx.PingFunc(db.PingContext)
	}
	if redisClient != nil {
		checks["redis"] = httpx.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	return checks
}

// RunHTTPServer serves until ctx is cancelled, SIGINT/SIGTERM arrives, or the
// listener fails, then shuts the server down gracefully.
func RunHTTPServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	if server == nil {
		return errors.New("http server is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		logger.Info("HTTP server stopped")
		return nil
	})

	return g.Wait()
}
