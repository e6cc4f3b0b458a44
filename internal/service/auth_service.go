package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/cache"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/repository"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/security"
)

const (
	invalidCredentialsMessage = "invalid credentials"
	defaultDeviceFingerprint  = "unknown"
	failedLoginWindow         = 15 * time.Minute
)

type AuthConfig struct {
	SessionTTL             time.Duration
	RequireDeviceOnRefresh bool
}

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	IP        string
	UserAgent string
}

type LoginInput struct {
	Username          string
	Password          string
	DeviceFingerprint string
	IP                string
	UserAgent         string
}

type RefreshInput struct {
	RefreshToken      string
	DeviceFingerprint string
	IP                string
	UserAgent         string
}

type PublicUser struct {
	ID       uint     `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles,omitempty"`
}

type LoginResult struct {
	User         PublicUser `json:"user"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	SessionID    string     `json:"sessionId"`
	ExpiresIn    int64      `json:"expiresIn"`
}

type RefreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	SessionID    string `json:"sessionId"`
	DeviceBound  bool   `json:"deviceBound"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type SessionValidation struct {
	Valid     bool   `json:"valid"`
	Reason    string `json:"reason,omitempty"`
	RiskScore int    `json:"riskScore"`
}

type BanStatus struct {
	UserID   uint       `json:"userId"`
	IsBanned bool       `json:"isBanned"`
	Reason   *string    `json:"reason"`
	BannedAt *time.Time `json:"bannedAt"`
}

type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	tokens   *TokenService
	hasher   *security.PasswordHasher
	pool     *CryptoPool
	store    cache.Store
	bans     *BanCache
	events   *SecurityEventRecorder
	audit    *AuditRecorder
	cfg      AuthConfig
	logger   *slog.Logger
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens *TokenService,
	hasher *security.PasswordHasher,
	pool *CryptoPool,
	store cache.Store,
	bans *BanCache,
	events *SecurityEventRecorder,
	audit *AuditRecorder,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = cache.SessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		tokens:   tokens,
		hasher:   hasher,
		pool:     pool,
		store:    store,
		bans:     bans,
		events:   events,
		audit:    audit,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*PublicUser, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || email == "" || in.Password == "" {
		return nil, newError(ErrValidation, "username, email and password are required", nil)
	}
	exists, err := s.users.ExistsByUsernameOrEmail(username, email)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		return nil, newError(ErrConflict, "username or email already exists", nil)
	}
	hash, err := s.pool.HashPassword(ctx, s.hasher, in.Password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			return nil, newError(ErrValidation, err.Error(), err)
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{Username: username, Email: email, PasswordHash: hash}
	if err := s.users.CreateWithDefaults(user, domain.RoleRegularUser); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, newError(ErrConflict, "username or email already exists", err)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.audit.Record(ctx, domain.AuditUserRegister, uintRef(user.ID), in.IP, in.UserAgent, "username="+username)
	return &PublicUser{ID: user.ID, Username: user.Username, Email: user.Email}, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	return s.login(ctx, in, "password")
}

func (s *AuthService) login(ctx context.Context, in LoginInput, channel string) (*LoginResult, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		observability.RecordAuthLogin(channel, "invalid_input")
		return nil, newError(ErrValidation, "username and password are required", nil)
	}
	user, err := s.users.FindByUsername(username)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthLogin(channel, "error")
			return nil, fmt.Errorf("find user: %w", err)
		}
		// Burn comparable CPU so unknown usernames are not distinguishable
		// by latency.
		_, _ = s.pool.VerifyPassword(ctx, s.hasher, s.dummyPasswordHash(), in.Password)
		observability.RecordAuthLogin(channel, "unknown_user")
		return nil, newError(ErrAuthentication, invalidCredentialsMessage, nil)
	}
	if user.Banned {
		observability.RecordAuthLogin(channel, "banned")
		return nil, newError(ErrAuthentication, invalidCredentialsMessage, nil)
	}
	ok, err := s.pool.VerifyPassword(ctx, s.hasher, user.PasswordHash, in.Password)
	if err != nil {
		observability.RecordAuthLogin(channel, "error")
		return nil, err
	}
	if !ok {
		attempts := s.countFailedLogin(ctx, user.ID)
		s.events.Record(ctx, domain.SecurityEventFailedLogin, uintRef(user.ID), in.IP,
			fmt.Sprintf("failed login attempt %d within %s", attempts, failedLoginWindow))
		observability.RecordAuthLogin(channel, "bad_password")
		return nil, newError(ErrAuthentication, invalidCredentialsMessage, nil)
	}
	_ = s.store.Del(ctx, failedLoginKey(user.ID))

	fp := strings.TrimSpace(in.DeviceFingerprint)
	if fp == "" {
		fp = defaultDeviceFingerprint
	}
	sessionID := uuid.NewString()
	access, err := s.openSession(ctx, sessionID, user, fp, in.IP, in.UserAgent, true)
	if err != nil {
		observability.RecordAuthLogin(channel, "error")
		return nil, err
	}
	refresh, err := s.tokens.Issue(user.ID, sessionID)
	if err != nil {
		observability.RecordAuthLogin(channel, "error")
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	s.audit.Record(ctx, domain.AuditUserLogin, uintRef(user.ID), in.IP, in.UserAgent, "channel="+channel)
	observability.RecordAuthLogin(channel, "success")
	return &LoginResult{
		User:         publicUser(user),
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    sessionID,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// openSession persists a session row and, for device-bound sessions, the
// cache metadata ValidateSession reads. Unbound sessions carry the
// placeholder fingerprint in their access token.
func (s *AuthService) openSession(ctx context.Context, sessionID string, user *domain.User, fp, ip, ua string, bound bool) (string, error) {
	now := s.now().UTC()
	if err := s.sessions.Create(&domain.Session{
		ID:                sessionID,
		UserID:            user.ID,
		DeviceFingerprint: fp,
		DeviceBound:       bound,
		IPAddress:         ip,
		UserAgent:         ua,
		ExpiresAt:         now.Add(s.cfg.SessionTTL),
		Active:            true,
	}); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	if bound {
		meta := domain.SessionMetadata{
			UserID:            user.ID,
			DeviceFingerprint: fp,
			IPAddress:         ip,
			UserAgent:         ua,
			CreatedAt:         now.UnixMilli(),
		}
		if err := cache.SetJSON(ctx, s.store, cache.SessionKey(sessionID), meta, s.cfg.SessionTTL); err != nil {
			return "", fmt.Errorf("store session metadata: %w", err)
		}
	}
	claimFP := fp
	if !bound {
		claimFP = security.UnboundDeviceFingerprint
	}
	access, _, err := s.tokens.MintAccessToken(user, sessionID, claimFP, bound)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return access, nil
}

func (s *AuthService) ValidateSession(ctx context.Context, sessionID, deviceFingerprint, ip string) (SessionValidation, error) {
	var meta domain.SessionMetadata
	if err := cache.GetJSON(ctx, s.store, cache.SessionKey(sessionID), &meta); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return SessionValidation{Valid: false, Reason: "session not found", RiskScore: 100}, nil
		}
		return SessionValidation{}, fmt.Errorf("load session metadata: %w", err)
	}
	if meta.DeviceFingerprint != deviceFingerprint {
		s.events.Record(ctx, domain.SecurityEventDeviceChange, uintRef(meta.UserID), ip,
			"device fingerprint changed for session "+sessionID)
		return SessionValidation{Valid: false, Reason: "device fingerprint mismatch", RiskScore: 100}, nil
	}
	risk := IPRiskScore(meta.IPAddress, ip)
	if risk > IPRiskThreshold {
		s.events.Record(ctx, domain.SecurityEventIPChange, uintRef(meta.UserID), ip,
			fmt.Sprintf("ip changed from %s (risk %d)", meta.IPAddress, risk))
		return SessionValidation{Valid: false, Reason: "ip address changed", RiskScore: risk}, nil
	}
	age := s.now().Sub(time.UnixMilli(meta.CreatedAt))
	if age > s.cfg.SessionTTL {
		return SessionValidation{Valid: false, Reason: "session expired", RiskScore: risk}, nil
	}
	return SessionValidation{Valid: true, RiskScore: risk}, nil
}

func (s *AuthService) Refresh(ctx context.Context, in RefreshInput) (*RefreshResult, error) {
	fp := strings.TrimSpace(in.DeviceFingerprint)
	if fp == "" && s.cfg.RequireDeviceOnRefresh {
		observability.RecordAuthRefresh("invalid_input")
		return nil, newError(ErrValidation, "device fingerprint is required", nil)
	}
	bound := fp != ""
	if !bound {
		fp = security.UnboundDeviceFingerprint
	}
	newSessionID := uuid.NewString()
	rotated, err := s.tokens.Rotate(in.RefreshToken, newSessionID, s.activeUser)
	if err != nil {
		switch {
		case errors.Is(err, ErrRefreshTokenReuseDetected):
			var uid *uint
			if rotated != nil && rotated.User != nil {
				uid = uintRef(rotated.User.ID)
			}
			s.events.Record(ctx, domain.SecurityEventRefreshTokenReuse, uid, in.IP, "rotated refresh token presented again; family revoked")
			observability.RecordAuthRefresh("reuse_detected")
			return nil, newError(ErrAuthentication, "refresh token reuse detected", err)
		case errors.Is(err, ErrInvalidRefreshToken), errors.Is(err, ErrAuthentication):
			observability.RecordAuthRefresh("invalid")
			return nil, newError(ErrAuthentication, "invalid refresh token", err)
		}
		observability.RecordAuthRefresh("error")
		return nil, err
	}

	user := rotated.User
	access, err := s.openSession(ctx, newSessionID, user, fp, in.IP, in.UserAgent, bound)
	if err != nil {
		observability.RecordAuthRefresh("error")
		return nil, err
	}
	if rotated.OldSessionID != "" {
		_, _ = s.sessions.Deactivate(rotated.OldSessionID, s.now())
		_ = s.store.Del(ctx, cache.SessionKey(rotated.OldSessionID))
	}
	s.audit.Record(ctx, domain.AuditTokenRefresh, uintRef(user.ID), in.IP, in.UserAgent, fmt.Sprintf("device_bound=%t", bound))
	observability.RecordAuthRefresh("success")
	return &RefreshResult{
		AccessToken:  access,
		RefreshToken: rotated.RefreshToken,
		SessionID:    newSessionID,
		DeviceBound:  bound,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

func (s *AuthService) activeUser(id uint) (*domain.User, error) {
	user, err := s.users.FindByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if user.Banned {
		return nil, newError(ErrAuthentication, invalidCredentialsMessage, nil)
	}
	return user, nil
}

// Logout ends the session and its refresh tokens. Ending an unknown or
// already ended session succeeds.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		observability.RecordAuthLogout("invalid_input")
		return newError(ErrValidation, "session id is required", nil)
	}
	if sess, err := s.sessions.FindByID(sessionID); err == nil {
		if err := s.dropLoaderSession(ctx, sess); err != nil {
			observability.RecordAuthLogout("error")
			return err
		}
	} else if !errors.Is(err, repository.ErrSessionNotFound) {
		observability.RecordAuthLogout("error")
		return fmt.Errorf("find session: %w", err)
	}
	if _, err := s.sessions.Deactivate(sessionID, s.now()); err != nil {
		observability.RecordAuthLogout("error")
		return fmt.Errorf("deactivate session: %w", err)
	}
	if err := s.store.Del(ctx, cache.SessionKey(sessionID)); err != nil {
		observability.RecordAuthLogout("error")
		return fmt.Errorf("delete session metadata: %w", err)
	}
	if err := s.tokens.RevokeSession(sessionID, repository.RevokeReasonLogout); err != nil {
		observability.RecordAuthLogout("error")
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	observability.RecordAuthLogout("success")
	return nil
}

// dropLoaderSession removes the loader session that sess opened, if any.
// A later loader login on the same device owns the key, so it is left alone.
func (s *AuthService) dropLoaderSession(ctx context.Context, sess *domain.Session) error {
	key := cache.LoaderSessionKey(sess.UserID, sess.DeviceFingerprint)
	var ls loaderSession
	if err := cache.GetJSON(ctx, s.store, key, &ls); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil
		}
		return fmt.Errorf("load loader session: %w", err)
	}
	if ls.SessionID != sess.ID {
		return nil
	}
	if err := s.store.Del(ctx, key); err != nil {
		return fmt.Errorf("delete loader session: %w", err)
	}
	return nil
}

// LogoutUser is Logout plus the audit record for the acting user.
func (s *AuthService) LogoutUser(ctx context.Context, userID uint, sessionID, ip, ua string) error {
	if err := s.Logout(ctx, sessionID); err != nil {
		return err
	}
	s.audit.Record(ctx, domain.AuditUserLogout, uintRef(userID), ip, ua, "session_id="+sessionID)
	return nil
}

// RevokeAccessToken blacklists a token id for the rest of its lifetime.
func (s *AuthService) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.store.Set(ctx, cache.BlacklistKey(jti), "1", ttl)
}

func (s *AuthService) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	return s.store.Exists(ctx, cache.BlacklistKey(jti))
}

// IsUserBanned answers from the ban cache and falls back to the database,
// caching what it finds.
func (s *AuthService) IsUserBanned(ctx context.Context, userID uint) (bool, error) {
	if banned, known, err := s.bans.Get(ctx, userID); err == nil && known {
		return banned, nil
	}
	user, err := s.users.FindByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return true, nil
		}
		return false, err
	}
	if err := s.bans.Set(ctx, userID, user.Banned); err != nil {
		s.logger.WarnContext(ctx, "ban cache write failed", "user_id", userID, "error", err)
	}
	return user.Banned, nil
}

func (s *AuthService) BanUser(ctx context.Context, actorID, userID uint, reason string) (*BanStatus, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, newError(ErrValidation, "ban reason is required", nil)
	}
	at := s.now().UTC()
	if err := s.users.SetBan(userID, &reason, &at); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, newError(ErrNotFound, "user not found", err)
		}
		return nil, fmt.Errorf("ban user: %w", err)
	}
	if err := s.tokens.RevokeAll(userID, repository.RevokeReasonBanned); err != nil {
		return nil, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	active, err := s.sessions.ListActiveByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	for i := range active {
		if err := s.dropLoaderSession(ctx, &active[i]); err != nil {
			return nil, err
		}
		if err := s.store.Del(ctx, cache.SessionKey(active[i].ID)); err != nil {
			return nil, fmt.Errorf("delete session metadata: %w", err)
		}
	}
	if _, err := s.sessions.DeactivateByUserID(userID, at); err != nil {
		return nil, fmt.Errorf("end sessions: %w", err)
	}
	if err := s.bans.Set(ctx, userID, true); err != nil {
		s.logger.WarnContext(ctx, "ban cache write failed", "user_id", userID, "error", err)
	}
	s.audit.Record(ctx, domain.AuditUserBan, uintRef(actorID), "", "", fmt.Sprintf("user_id=%d reason=%s", userID, reason))
	return &BanStatus{UserID: userID, IsBanned: true, Reason: &reason, BannedAt: &at}, nil
}

func (s *AuthService) UnbanUser(ctx context.Context, actorID, userID uint) (*BanStatus, error) {
	if err := s.users.SetBan(userID, nil, nil); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, newError(ErrNotFound, "user not found", err)
		}
		return nil, fmt.Errorf("unban user: %w", err)
	}
	if err := s.bans.Invalidate(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "ban cache invalidate failed", "user_id", userID, "error", err)
	}
	s.audit.Record(ctx, domain.AuditUserUnban, uintRef(actorID), "", "", fmt.Sprintf("user_id=%d", userID))
	return &BanStatus{UserID: userID, IsBanned: false}, nil
}

func (s *AuthService) BanStatus(_ context.Context, userID uint) (*BanStatus, error) {
	user, err := s.users.FindByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, newError(ErrNotFound, "user not found", err)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &BanStatus{UserID: user.ID, IsBanned: user.Banned, Reason: user.BanReason, BannedAt: user.BannedAt}, nil
}

func (s *AuthService) GetUser(_ context.Context, userID uint) (*PublicUser, error) {
	user, err := s.users.FindByID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, newError(ErrNotFound, "user not found", err)
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	pu := publicUser(user)
	return &pu, nil
}

func (s *AuthService) countFailedLogin(ctx context.Context, userID uint) int64 {
	n, err := s.store.IncrWithTTL(ctx, failedLoginKey(userID), failedLoginWindow)
	if err != nil {
		s.logger.WarnContext(ctx, "failed login counter unavailable", "user_id", userID, "error", err)
		return 1
	}
	return n
}

func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("not-a-real-password")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func failedLoginKey(userID uint) string { return fmt.Sprintf("login_failures:%d", userID) }

func publicUser(u *domain.User) PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Email: u.Email, Roles: u.RoleNames()}
}
