package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/repository"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/security"
)

var (
	ErrInvalidRefreshToken       = errors.New("invalid refresh token")
	ErrRefreshTokenReuseDetected = errors.New("refresh token reuse detected")
)

// DefaultRefreshReuseGrace is how long a just-rotated token is answered with
// ErrInvalidRefreshToken instead of tripping reuse detection. It covers a
// client racing itself with the same token.
const DefaultRefreshReuseGrace = 2 * time.Second

// TokenService mints access tokens and manages opaque refresh tokens. Refresh
// tokens are stored only as peppered hashes and rotate on every use; each
// login starts a new family.
type TokenService struct {
	jwtMgr      *security.JWTManager
	refreshRepo repository.RefreshTokenRepository
	pepper      string
	refreshTTL  time.Duration
	reuseGrace  time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

type RotateResult struct {
	RefreshToken string
	User         *domain.User
	OldSessionID string
	FamilyID     string
}

func NewTokenService(jwtMgr *security.JWTManager, refreshRepo repository.RefreshTokenRepository, pepper string, refreshTTL time.Duration) *TokenService {
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenService{
		jwtMgr:      jwtMgr,
		refreshRepo: refreshRepo,
		pepper:      pepper,
		refreshTTL:  refreshTTL,
		reuseGrace:  DefaultRefreshReuseGrace,
		logger:      slog.Default(),
		now:         time.Now,
	}
}

// WithReuseGrace overrides DefaultRefreshReuseGrace. Zero disables the grace
// window.
func (s *TokenService) WithReuseGrace(d time.Duration) *TokenService {
	if d >= 0 {
		s.reuseGrace = d
	}
	return s
}

func (s *TokenService) WithLogger(logger *slog.Logger) *TokenService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *TokenService) AccessTTL() time.Duration { return s.jwtMgr.AccessTTL() }

func (s *TokenService) MintAccessToken(user *domain.User, sessionID, deviceFingerprint string, deviceBound bool) (string, *security.Claims, error) {
	roles := user.RoleNames()
	return s.jwtMgr.SignAccessToken(security.AccessTokenInput{
		UserID:            user.ID,
		Username:          user.Username,
		SessionID:         sessionID,
		DeviceFingerprint: deviceFingerprint,
		DeviceBound:       deviceBound,
		Roles:             roles,
		Capabilities:      domain.CapabilityStrings(domain.CapabilitiesForRoles(roles)),
	})
}

func (s *TokenService) ParseAccessToken(raw string) (*security.Claims, error) {
	return s.jwtMgr.ParseAccessToken(raw)
}

// Issue starts a new refresh token family bound to sessionID.
func (s *TokenService) Issue(userID uint, sessionID string) (string, error) {
	raw, err := security.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	if err := s.refreshRepo.Create(&domain.RefreshToken{
		TokenHash: security.HashOpaqueToken(raw, s.pepper),
		UserID:    userID,
		SessionID: sessionID,
		FamilyID:  uuid.NewString(),
		ExpiresAt: s.now().UTC().Add(s.refreshTTL),
	}); err != nil {
		return "", err
	}
	return raw, nil
}

// Rotate exchanges a refresh token for its successor bound to newSessionID.
// Presenting a token that was rotated more than reuseGrace ago revokes the
// whole family and returns ErrRefreshTokenReuseDetected. Losing a concurrent
// rotation race, or replaying inside the grace window, returns
// ErrInvalidRefreshToken without touching the family.
func (s *TokenService) Rotate(refreshToken, newSessionID string, userFetcher func(id uint) (*domain.User, error)) (*RotateResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	now := s.now().UTC()
	hash := security.HashOpaqueToken(refreshToken, s.pepper)
	current, err := s.refreshRepo.FindByHash(hash)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if current.Revoked {
		switch getString(current.RevokedReason) {
		case repository.RevokeReasonRotated:
			if current.RevokedAt != nil && now.Sub(current.RevokedAt.UTC()) < s.reuseGrace {
				return nil, ErrInvalidRefreshToken
			}
			return s.revokeReusedFamily(current, hash, now)
		case repository.RevokeReasonReuseDetected:
			return s.revokeReusedFamily(current, hash, now)
		}
		return nil, ErrInvalidRefreshToken
	}
	if !now.Before(current.ExpiresAt) {
		return nil, ErrInvalidRefreshToken
	}

	user, err := userFetcher(current.UserID)
	if err != nil {
		return nil, err
	}

	raw, err := security.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	next := &domain.RefreshToken{
		TokenHash: security.HashOpaqueToken(raw, s.pepper),
		UserID:    current.UserID,
		SessionID: newSessionID,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	old, err := s.refreshRepo.Rotate(hash, now, next)
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	return &RotateResult{RefreshToken: raw, User: user, OldSessionID: old.SessionID, FamilyID: old.FamilyID}, nil
}

func (s *TokenService) revokeReusedFamily(current *domain.RefreshToken, hash string, now time.Time) (*RotateResult, error) {
	if err := s.refreshRepo.MarkReuseDetected(hash, now); err != nil {
		s.logger.Warn("mark refresh token reuse failed", "family_id", current.FamilyID, "user_id", current.UserID, "error", err)
	}
	if _, err := s.refreshRepo.RevokeFamily(current.FamilyID, repository.RevokeReasonReuseDetected, now); err != nil {
		return nil, fmt.Errorf("revoke refresh token family %s: %w", current.FamilyID, err)
	}
	return &RotateResult{FamilyID: current.FamilyID, OldSessionID: current.SessionID, User: &domain.User{ID: current.UserID}}, ErrRefreshTokenReuseDetected
}

func (s *TokenService) RevokeSession(sessionID, reason string) error {
	_, err := s.refreshRepo.RevokeBySessionID(sessionID, reason, s.now())
	return err
}

func (s *TokenService) RevokeAll(userID uint, reason string) error {
	_, err := s.refreshRepo.RevokeByUserID(userID, reason, s.now())
	return err
}

func getString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
