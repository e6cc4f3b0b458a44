package service

import (
	"context"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/repository"
)

type AuthServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) (*PublicUser, error)
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	ValidateSession(ctx context.Context, sessionID, deviceFingerprint, ip string) (SessionValidation, error)
	Refresh(ctx context.Context, in RefreshInput) (*RefreshResult, error)
	LogoutUser(ctx context.Context, userID uint, sessionID, ip, ua string) error
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	GetUser(ctx context.Context, userID uint) (*PublicUser, error)
	BanUser(ctx context.Context, actorID, userID uint, reason string) (*BanStatus, error)
	UnbanUser(ctx context.Context, actorID, userID uint) (*BanStatus, error)
}

// AccessGuard is what the auth middleware consults per request.
type AccessGuard interface {
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	IsUserBanned(ctx context.Context, userID uint) (bool, error)
}

type LoaderServiceInterface interface {
	Handshake(ctx context.Context, in HandshakeInput) (*HandshakeResult, error)
	LoaderLogin(ctx context.Context, in LoaderLoginInput) (*LoaderLoginResult, error)
	Heartbeat(ctx context.Context, in HeartbeatInput) (*HeartbeatResult, error)
	GetBanStatus(ctx context.Context, userID uint) (*BanStatus, error)
}

type LicenseServiceInterface interface {
	GenerateKey(ctx context.Context, in GenerateKeyInput) (*domain.License, error)
	ActivateLicense(ctx context.Context, in ActivateInput) (*ActivationOutcome, error)
	ValidateLicense(ctx context.Context, userID uint) (*LicenseValidation, error)
	RevokeLicense(ctx context.Context, actorID *uint, key string) (*domain.License, error)
	DeactivateDevice(ctx context.Context, key, deviceFingerprint string) error
	ListLicenses(ctx context.Context, query repository.LicenseListQuery) (repository.PageResult[domain.License], error)
}

type SessionServiceInterface interface {
	ListActiveSessions(ctx context.Context, userID uint, currentSessionID string) ([]SessionView, error)
	RevokeSession(ctx context.Context, userID uint, sessionID string) (string, error)
}

var (
	_ AuthServiceInterface    = (*AuthService)(nil)
	_ AccessGuard             = (*AuthService)(nil)
	_ LoaderServiceInterface  = (*LoaderService)(nil)
	_ LicenseServiceInterface = (*LicenseService)(nil)
	_ SessionServiceInterface = (*SessionService)(nil)
)
