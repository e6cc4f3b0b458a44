package service

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/repository"
)

type SessionView struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"createdAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
	DeviceFingerprint string    `json:"deviceFingerprint"`
	DeviceBound       bool      `json:"deviceBound"`
	UserAgent         string    `json:"userAgent"`
	IP                string    `json:"ip"`
	IsCurrent         bool      `json:"isCurrent"`
}

// SessionService is the self-service view over a user's own sessions.
type SessionService struct {
	sessionRepo repository.SessionRepository
	auth        *AuthService
}

func NewSessionService(sessionRepo repository.SessionRepository, auth *AuthService) *SessionService {
	return &SessionService{sessionRepo: sessionRepo, auth: auth}
}

func (s *SessionService) ListActiveSessions(_ context.Context, userID uint, currentSessionID string) ([]SessionView, error) {
	sessions, err := s.sessionRepo.ListActiveByUserID(userID)
	if err != nil {
		return nil, err
	}
	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, SessionView{
			ID:                session.ID,
			CreatedAt:         session.CreatedAt,
			ExpiresAt:         session.ExpiresAt,
			DeviceFingerprint: session.DeviceFingerprint,
			DeviceBound:       session.DeviceBound,
			UserAgent:         session.UserAgent,
			IP:                session.IPAddress,
			IsCurrent:         session.ID == currentSessionID,
		})
	}
	return views, nil
}

// RevokeSession ends one of the caller's sessions. Another user's session is
// reported as not found.
func (s *SessionService) RevokeSession(ctx context.Context, userID uint, sessionID string) (string, error) {
	session, err := s.sessionRepo.FindByID(sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return "", newError(ErrNotFound, "session not found", err)
		}
		return "", err
	}
	if session.UserID != userID {
		return "", newError(ErrNotFound, "session not found", nil)
	}
	if !session.Active {
		return "already_revoked", nil
	}
	if err := s.auth.Logout(ctx, sessionID); err != nil {
		return "", err
	}
	return "revoked", nil
}
