package di

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/sandeepkv93/portal-credential-exchange/internal/app"
	"github.com/sandeepkv93/portal-credential-exchange/internal/config"
	"github.com/sandeepkv93/portal-credential-exchange/internal/health"
	"github.com/sandeepkv93/portal-credential-exchange/internal/http/handler"
	"github.com/sandeepkv93/portal-credential-exchange/internal/http/middleware"
	"github.com/sandeepkv93/portal-credential-exchange/internal/http/router"
	"github.com/sandeepkv93/portal-credential-exchange/internal/monday"
	"github.com/sandeepkv93/portal-credential-exchange/internal/observability"
	"github.com/sandeepkv93/portal-credential-exchange/internal/repository"
	"github.com/sandeepkv93/portal-credential-exchange/internal/security"
	"github.com/sandeepkv93/portal-credential-exchange/internal/service"
)

const redisKeyPrefix = "portal"

func provideRuntime(cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*observability.Runtime, error) {
	return observability.InitRuntime(context.Background(), cfg, logger, lp)
}

// provideRedisClient returns nil when REDIS_ADDR is unset; Redis is optional unless it backs the store.
func provideRedisClient(cfg *config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func provideDatabase(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DirectoryDriver != config.DirectoryDriverGorm {
		return nil, nil
	}
	return repository.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
}

func provideMondayClient(cfg *config.Config) *monday.Client {
	return monday.NewClient(monday.ClientConfig{
		Endpoint:   cfg.MondayAPIURL,
		Token:      cfg.MondayAPIToken,
		APIVersion: cfg.MondayAPIVersion,
		Timeout:    cfg.CollaboratorTimeout,
	})
}

func provideDirectory(cfg *config.Config, db *gorm.DB, client *monday.Client, rdb *redis.Client) (service.IdentityDirectory, error) {
	var directory service.IdentityDirectory
	switch cfg.DirectoryDriver {
	case config.DirectoryDriverGorm:
		if db == nil {
			return nil, fmt.Errorf("gorm directory requires a database")
		}
		directory = repository.NewIdentityRepository(db)
	case config.DirectoryDriverMonday:
		directory = monday.NewDirectory(client, monday.DirectoryConfig{
			BoardID:         cfg.MondayUsersBoardID,
			EmailColumnID:   cfg.MondayEmailColumnID,
			CompanyColumnID: cfg.MondayCompanyColumnID,
			MaxPages:        cfg.MondayMaxPages,
		})
	default:
		return nil, fmt.Errorf("unsupported directory driver %q", cfg.DirectoryDriver)
	}
	if cfg.DirectoryMissCacheTTL <= 0 {
		return directory, nil
	}
	var cache service.MissCache = service.NewInMemoryMissCache()
	if rdb != nil {
		cache = service.NewRedisMissCache(rdb, redisKeyPrefix+":directory_miss")
	}
	return service.NewCachedDirectory(directory, cache, cfg.DirectoryMissCacheTTL), nil
}

func provideStore(cfg *config.Config, client *redis.Client) (service.KeyValueStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverRedis:
		if client == nil {
			return nil, fmt.Errorf("redis store requires REDIS_ADDR")
		}
		return service.NewRedisKeyValueStore(client, redisKeyPrefix), nil
	case config.StoreDriverMemory:
		return service.NewInMemoryKeyValueStore(), nil
	case config.StoreDriverMonday:
		storage := monday.NewStorage(monday.StorageConfig{
			BaseURL: cfg.MondayStorageURL,
			Token:   cfg.MondayAPIToken,
			Timeout: cfg.CollaboratorTimeout,
		})
		var locker service.Locker = service.NewLocalKeyLocker()
		if client != nil {
			locker = service.NewRedisKeyLocker(client, redisKeyPrefix+":lock", cfg.CollaboratorTimeout+5*time.Second)
		} else {
			slog.Warn("monday store without redis locker: single-use is enforced per process only")
		}
		return service.NewLockingStore(storage, locker), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func provideSessionManager(cfg *config.Config) *security.SessionManager {
	return security.NewSessionManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret)
}

func provideSessionService(cfg *config.Config, store service.KeyValueStore) *service.SessionService {
	return service.NewSessionService(store, cfg.CollaboratorTimeout)
}

func provideCredentialService(
	cfg *config.Config,
	directory service.IdentityDirectory,
	store service.KeyValueStore,
	sessions *service.SessionService,
	signer *security.SessionManager,
) *service.CredentialService {
	return service.NewCredentialService(directory, store, sessions, signer, service.CredentialServiceConfig{
		PublicBaseURL:       cfg.PublicBaseURL,
		DefaultTTL:          cfg.MagicLinkDefaultTTL,
		MaxTTL:              cfg.MagicLinkMaxTTL,
		SessionTTL:          cfg.SessionTTL,
		CollaboratorTimeout: cfg.CollaboratorTimeout,
	})
}

func provideReadiness(cfg *config.Config, client *redis.Client, db *gorm.DB, signer *security.SessionManager, mondayClient *monday.Client) *health.ProbeRunner {
	checks := []health.Checker{
		health.NewCheck("signing_secret", func(context.Context) error {
			if !signer.Configured() {
				return fmt.Errorf("JWT_SECRET not set")
			}
			return nil
		}),
	}
	if client != nil {
		checks = append(checks, health.NewCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
	}
	if db != nil {
		repo := repository.NewIdentityRepository(db)
		checks = append(checks, health.NewCheck("database", repo.Ping))
	}
	if cfg.DirectoryDriver == config.DirectoryDriverMonday || cfg.StoreDriver == config.StoreDriverMonday {
		checks = append(checks, health.NewCheck("monday_credentials", func(context.Context) error {
			if !mondayClient.Configured() {
				return fmt.Errorf("MONDAY_API_TOKEN not set")
			}
			return nil
		}))
	}
	return health.NewProbeRunner(2*time.Second, time.Second, checks...)
}

func provideRouterDependencies(
	cfg *config.Config,
	client *redis.Client,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	adminHandler *handler.AdminHandler,
	signer *security.SessionManager,
	readiness *health.ProbeRunner,
) router.Dependencies {
	dep := router.Dependencies{
		AuthHandler:          authHandler,
		UserHandler:          userHandler,
		AdminHandler:         adminHandler,
		SessionManager:       signer,
		IssuerAPIKey:         cfg.IssuerAPIKey,
		CORSOrigins:          cfg.CORSOrigins,
		IssueRateLimitRPM:    cfg.RateLimitIssueRPM,
		ExchangeRateLimitRPM: cfg.RateLimitExchangeRPM,
		Readiness:            readiness,
		EnableOTelHTTP:       cfg.OTELTracingEnabled || cfg.OTELMetricsEnabled,
	}
	if client != nil {
		limiter := middleware.NewRedisFixedWindowLimiter(client, redisKeyPrefix+":rl")
		dep.IssueRateLimiter = middleware.NewDistributedRateLimiter(limiter, cfg.RateLimitIssueRPM, time.Minute, middleware.FailOpen, "issue").Middleware()
		dep.ExchangeRateLimiter = middleware.NewDistributedRateLimiter(limiter, cfg.RateLimitExchangeRPM, time.Minute, middleware.FailOpen, "exchange").Middleware()
	}
	return dep
}

func provideServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	client *redis.Client,
	db *gorm.DB,
	readiness *health.ProbeRunner,
) (*app.App, error) {
	var redisCloser, dbCloser io.Closer
	if client != nil {
		redisCloser = client
	}
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		dbCloser = sqlDB
	}
	return app.New(cfg, logger, server, runtime, redisCloser, dbCloser, readiness), nil
}
