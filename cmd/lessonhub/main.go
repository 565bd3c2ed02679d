package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/target/lessonhub/config"
	"github.com/target/lessonhub/internal/bootstrap"
	"github.com/target/lessonhub/internal/devseed"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger("info")
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.InitLogger(cfg.LogLevel)

	if err = bootstrap.ValidateConfig(&cfg); err != nil {
		return err
	}
	logStartupInfo(ctx, logger, &cfg)

	db, redisClient, err := initInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close database failed", "error", cerr)
		}
	}()
	if redisClient != nil {
		defer func() {
			if cerr := redisClient.Close(); cerr != nil {
				logger.ErrorContext(ctx, "close redis failed", "error", cerr)
			}
		}()
	}

	// Run migrations if enabled
	if cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	providers, err := bootstrap.BuildProviders(ctx, bootstrap.ProvidersConfig{Auth: cfg.Auth, Logger: logger})
	if err != nil {
		return fmt.Errorf("build identity providers: %w", err)
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          db,
		RedisClient: redisClient,
		Providers:   providers,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	if cfg.IsDev && cfg.DevSeed {
		if seedErr := devseed.Run(ctx, services.Auth, nil, logger); seedErr != nil {
			logger.WarnContext(ctx, "dev seed incomplete", "error", seedErr)
		}
	}

	metrics, err := bootstrap.NewMetricsClient(cfg.Metrics, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := metrics.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close statsd client failed", "error", cerr)
		}
	}()

	server, err := bootstrap.NewHTTPServer(&bootstrap.HTTPServerConfig{
		Config:   &cfg,
		Services: services,
		Ready:    bootstrap.ReadinessChecks(db, redisClient),
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	return bootstrap.RunHTTPServer(ctx, server, logger)
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting lessonhub",
		"addr", cfg.HTTP.Addr,
		"auth_mode", cfg.Auth.Mode,
		"session_store", cfg.Session.Store,
		"db_host", cfg.Postgres.Host,
		"db_name", cfg.Postgres.Name,
		"dev", cfg.IsDev)
}

// initInfrastructure connects Postgres and, when sessions live there, Redis.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func initInfrastructure(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
) (*sql.DB, redis.UniversalClient, error) {
	dbCfg := bootstrap.DatabaseConfig{
		DBConfig:    cfg.Postgres,
		RedisConfig: cfg.Redis,
		Logger:      logger,
	}

	db, err := bootstrap.ConnectDB(dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}

	if cfg.Session.Store != config.SessionStoreRedis {
		return db, nil, nil
	}

	redisClient, err := bootstrap.ConnectRedis(dbCfg)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close database after redis connect failure", "error", cerr)
		}
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	return db, redisClient, nil
}
