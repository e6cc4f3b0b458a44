//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/app"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/handler"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/repository"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/service"
)

var infraSet = wire.NewSet(
	ProvideConfig,
	ProvideTelemetry,
	ProvideLogger,
	ProvideRuntime,
	ProvideDB,
	ProvideRedisClient,
	ProvideStore,
	ProvidePublisher,
	ProvideReadiness,
)

var repositorySet = wire.NewSet(
	repository.NewUserRepository,
	repository.NewSessionRepository,
	repository.NewRefreshTokenRepository,
	repository.NewLicenseRepository,
	repository.NewSecurityEventRepository,
	repository.NewAuditLogRepository,
)

var serviceSet = wire.NewSet(
	ProvideJWTManager,
	ProvidePasswordHasher,
	ProvideCryptoPool,
	ProvideTokenService,
	ProvideBanCache,
	ProvideNonceGuard,
	service.NewSecurityEventRecorder,
	service.NewAuditRecorder,
	ProvideAuthService,
	ProvideLicenseService,
	ProvideLoaderService,
	service.NewSessionService,
	wire.Bind(new(service.AuthServiceInterface), new(*service.AuthService)),
	wire.Bind(new(service.AccessGuard), new(*service.AuthService)),
	wire.Bind(new(service.LicenseServiceInterface), new(*service.LicenseService)),
	wire.Bind(new(service.LoaderServiceInterface), new(*service.LoaderService)),
	wire.Bind(new(service.SessionServiceInterface), new(*service.SessionService)),
)

var httpSet = wire.NewSet(
	handler.NewValidator,
	handler.NewAuthHandler,
	handler.NewLoaderHandler,
	handler.NewLicenseHandler,
	handler.NewAdminHandler,
	handler.NewSessionHandler,
	ProvideRateLimiters,
	ProvideRouterDependencies,
	ProvideHTTPServer,
)

func InitializeApp(ctx context.Context) (*app.App, error) {
	wire.Build(infraSet, repositorySet, serviceSet, httpSet, ProvideApp)
	return nil, nil
}
