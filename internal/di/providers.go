package di

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/app"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/cache"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/config"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/events"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/health"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/handler"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/middleware"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/router"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/repository"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/security"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/service"
)

type Telemetry struct {
	Logger  *slog.Logger
	Runtime *observability.Runtime
}

type RateLimiters struct {
	Global    router.RateLimiterFunc
	Auth      router.RateLimiterFunc
	Handshake router.RateLimiterFunc
}

func ProvideConfig() (*config.Config, error) {
	return config.Load()
}

func ProvideTelemetry(ctx context.Context, cfg *config.Config) (*Telemetry, error) {
	logger, lp, err := observability.NewLogger(ctx, cfg, os.Stdout)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	runtime, err := observability.InitRuntime(ctx, cfg, logger, lp)
	if err != nil {
		return nil, err
	}
	return &Telemetry{Logger: logger, Runtime: runtime}, nil
}

func ProvideLogger(t *Telemetry) *slog.Logger { return t.Logger }

func ProvideRuntime(t *Telemetry) *observability.Runtime { return t.Runtime }

func ProvideDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := repository.Open(cfg.DatabaseURL, cfg.IsProduction())
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func ProvideRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	return cache.NewRedisClient(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func ProvideStore(client *redis.Client, cfg *config.Config) cache.Store {
	return cache.NewRedisStore(client, cfg.RedisPrefix)
}

func ProvidePublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("kafka brokers not configured; security events stay local")
		return events.NewNoopPublisher(), nil
	}
	pub, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaSecurityTopic)
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	return pub, nil
}

func ProvideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(security.JWTConfig{
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		Secret:    cfg.JWTSecret,
		AccessTTL: cfg.JWTAccessTTL,
	})
}

func ProvidePasswordHasher(cfg *config.Config) *security.PasswordHasher {
	return security.NewPasswordHasher(cfg.BcryptCost)
}

func ProvideCryptoPool(cfg *config.Config) *service.CryptoPool {
	return service.NewCryptoPool(cfg.CryptoWorkers, cfg.LoaderKeygenRPS, cfg.LoaderKeygenBurst)
}

func ProvideTokenService(jwtMgr *security.JWTManager, refreshRepo repository.RefreshTokenRepository, cfg *config.Config) *service.TokenService {
	return service.NewTokenService(jwtMgr, refreshRepo, cfg.RefreshTokenPepper, cfg.RefreshTokenTTL).
		WithReuseGrace(cfg.RefreshReuseGrace)
}

func ProvideBanCache(store cache.Store) *service.BanCache {
	return service.NewBanCache(store, 0)
}

func ProvideNonceGuard(store cache.Store) *service.NonceGuard {
	return service.NewNonceGuard(store, cache.NonceTTL)
}

func ProvideAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *service.TokenService,
	hasher *security.PasswordHasher,
	pool *service.CryptoPool,
	store cache.Store,
	bans *service.BanCache,
	recorder *service.SecurityEventRecorder,
	audit *service.AuditRecorder,
	cfg *config.Config,
	logger *slog.Logger,
) *service.AuthService {
	return service.NewAuthService(users, sessions, tokens, hasher, pool, store, bans, recorder, audit,
		service.AuthConfig{RequireDeviceOnRefresh: cfg.RefreshRequireDevice}, logger)
}

func ProvideLicenseService(repo repository.LicenseRepository, audit *service.AuditRecorder, cfg *config.Config, logger *slog.Logger) *service.LicenseService {
	return service.NewLicenseService(repo, audit, service.LicenseConfig{DefaultDurationDays: cfg.LicenseDefaultDays}, logger)
}

func ProvideLoaderService(
	auth *service.AuthService,
	licenses *service.LicenseService,
	tokens *service.TokenService,
	pool *service.CryptoPool,
	store cache.Store,
	nonces *service.NonceGuard,
	recorder *service.SecurityEventRecorder,
	audit *service.AuditRecorder,
	cfg *config.Config,
	logger *slog.Logger,
) *service.LoaderService {
	return service.NewLoaderService(auth, licenses, tokens, pool, store, nonces, recorder, audit,
		service.LoaderConfig{RSABits: cfg.LoaderRSABits}, logger)
}

// ProvideRateLimiters picks the limiter backend. The redis backend keys the
// global limiter by user when a valid bearer token is present; the auth
// and handshake limiters fail closed.
func ProvideRateLimiters(cfg *config.Config, store cache.Store, jwtMgr *security.JWTManager) RateLimiters {
	if cfg.RateLimitBackend != "redis" {
		return RateLimiters{
			Global:    middleware.NewRateLimiter(cfg.APIRateLimitRPM, time.Minute).WithKey(middleware.UserOrIPKey(jwtMgr)).Middleware(),
			Auth:      middleware.NewRateLimiter(cfg.AuthRateLimitRPM, time.Minute).Middleware(),
			Handshake: middleware.NewRateLimiter(cfg.HandshakeRateLimitRPM, time.Minute).Middleware(),
		}
	}
	return RateLimiters{
		Global: middleware.NewDistributedRateLimiter(middleware.NewRedisFixedWindowLimiter(store, "api"),
			cfg.APIRateLimitRPM, time.Minute, middleware.FailOpen, "api").WithKey(middleware.UserOrIPKey(jwtMgr)).Middleware(),
		Auth: middleware.NewDistributedRateLimiter(middleware.NewRedisFixedWindowLimiter(store, "auth"),
			cfg.AuthRateLimitRPM, time.Minute, middleware.FailClosed, "auth").Middleware(),
		Handshake: middleware.NewDistributedRateLimiter(middleware.NewRedisFixedWindowLimiter(store, "handshake"),
			cfg.HandshakeRateLimitRPM, time.Minute, middleware.FailClosed, "handshake").Middleware(),
	}
}

func ProvideReadiness(db *gorm.DB, store cache.Store) *health.ProbeRunner {
	return health.NewProbeRunner(2*time.Second, time.Second, health.DBChecker(db), health.RedisChecker(store))
}

func ProvideRouterDependencies(
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	loaderHandler *handler.LoaderHandler,
	licenseHandler *handler.LicenseHandler,
	adminHandler *handler.AdminHandler,
	sessionHandler *handler.SessionHandler,
	jwtMgr *security.JWTManager,
	guard service.AccessGuard,
	limiters RateLimiters,
	readiness *health.ProbeRunner,
	runtime *observability.Runtime,
) router.Dependencies {
	return router.Dependencies{
		AuthHandler:           authHandler,
		LoaderHandler:         loaderHandler,
		LicenseHandler:        licenseHandler,
		AdminHandler:          adminHandler,
		SessionHandler:        sessionHandler,
		JWTManager:            jwtMgr,
		AccessGuard:           guard,
		CORSOrigins:           cfg.CORSOrigins,
		APIRateLimitRPM:       cfg.APIRateLimitRPM,
		AuthRateLimitRPM:      cfg.AuthRateLimitRPM,
		HandshakeRateLimitRPM: cfg.HandshakeRateLimitRPM,
		GlobalRateLimiter:     limiters.Global,
		AuthRateLimiter:       limiters.Auth,
		HandshakeRateLimiter:  limiters.Handshake,
		Readiness:             readiness,
		MetricsHandler:        runtime.MetricsHandler,
		EnableOTelHTTP:        cfg.OTELTracingEnabled,
	}
}

func ProvideHTTPServer(cfg *config.Config, dep router.Dependencies) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.NewRouter(dep),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func ProvideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	readiness *health.ProbeRunner,
	db *gorm.DB,
	client *redis.Client,
	publisher events.Publisher,
) *app.App {
	return app.New(cfg, logger, server, runtime, readiness,
		app.Closer{Name: "database", Close: func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}},
		app.Closer{Name: "redis", Close: client.Close},
		app.Closer{Name: "publisher", Close: publisher.Close},
	)
}
