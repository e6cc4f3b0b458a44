package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/cache"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/security"
)

type LoaderConfig struct {
	RSABits          int
	HandshakeTTL     time.Duration
	LoaderSessionTTL time.Duration
}

type HandshakeInput struct {
	ClientVersion     string
	DeviceFingerprint string
	IP                string
}

type HandshakeResult struct {
	ServerPublicKey string `json:"serverPublicKey"`
	Challenge       string `json:"challenge"`
	Nonce           string `json:"nonce"`
	ExpiresIn       int64  `json:"expiresIn"`
}

type LoaderLoginInput struct {
	Username          string
	Password          string
	DeviceFingerprint string
	SignedChallenge   string
	Nonce             string
	IP                string
	UserAgent         string
}

type LicenseInfo struct {
	Key       string               `json:"key"`
	Type      domain.LicenseType   `json:"type"`
	Status    domain.LicenseStatus `json:"status"`
	ExpiresAt *time.Time           `json:"expiresAt"`
}

type LoaderLoginResult struct {
	SessionToken string      `json:"sessionToken"`
	RefreshToken string      `json:"refreshToken"`
	SymmetricKey string      `json:"symmetricKey"`
	License      LicenseInfo `json:"licenseInfo"`
}

type HeartbeatInput struct {
	SessionToken string
	Nonce        string
	Timestamp    int64
	Signature    string
	IP           string
}

type HeartbeatResult struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

type handshakeRecord struct {
	PrivateKeyPEM     string `json:"private_key"`
	Challenge         string `json:"challenge"`
	DeviceFingerprint string `json:"device_fingerprint"`
	ClientVersion     string `json:"client_version"`
	IPAddress         string `json:"ip_address"`
	CreatedAt         int64  `json:"created_at"`
}

type loaderSession struct {
	UserID            uint   `json:"user_id"`
	SessionID         string `json:"session_id"`
	DeviceFingerprint string `json:"device_fingerprint"`
	SymmetricKey      string `json:"symmetric_key"`
	IPAddress         string `json:"ip_address"`
	CreatedAt         int64  `json:"created_at"`
	LastSeenAt        int64  `json:"last_seen_at"`
}

type LoaderService struct {
	auth     *AuthService
	licenses *LicenseService
	tokens   *TokenService
	pool     *CryptoPool
	store    cache.Store
	nonces   *NonceGuard
	events   *SecurityEventRecorder
	audit    *AuditRecorder
	cfg      LoaderConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewLoaderService(
	auth *AuthService,
	licenses *LicenseService,
	tokens *TokenService,
	pool *CryptoPool,
	store cache.Store,
	nonces *NonceGuard,
	events *SecurityEventRecorder,
	audit *AuditRecorder,
	cfg LoaderConfig,
	logger *slog.Logger,
) *LoaderService {
	if cfg.RSABits <= 0 {
		cfg.RSABits = security.DefaultRSABits
	}
	if cfg.HandshakeTTL <= 0 {
		cfg.HandshakeTTL = cache.HandshakeTTL
	}
	if cfg.LoaderSessionTTL <= 0 {
		cfg.LoaderSessionTTL = cache.LoaderSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoaderService{
		auth:     auth,
		licenses: licenses,
		tokens:   tokens,
		pool:     pool,
		store:    store,
		nonces:   nonces,
		events:   events,
		audit:    audit,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *LoaderService) WithClock(now func() time.Time) *LoaderService {
	if now != nil {
		s.now = now
	}
	return s
}

// Handshake issues an ephemeral RSA key pair and a challenge. The private
// half lives only in the cache under the returned nonce.
func (s *LoaderService) Handshake(ctx context.Context, in HandshakeInput) (*HandshakeResult, error) {
	ctx, span := observability.StartSpan(ctx, "loader.handshake")
	defer span.End()

	fp := strings.TrimSpace(in.DeviceFingerprint)
	if fp == "" {
		observability.RecordLoaderHandshake(ctx, "invalid_input")
		return nil, newError(ErrValidation, "device fingerprint is required", nil)
	}
	key, err := s.pool.GenerateRSAKey(ctx, s.cfg.RSABits)
	if err != nil {
		observability.RecordLoaderHandshake(ctx, "error")
		return nil, fmt.Errorf("generate handshake key: %w", err)
	}
	pubPEM, err := security.EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	privPEM, err := security.EncodePrivateKeyPEM(key)
	if err != nil {
		return nil, err
	}
	challenge, err := security.SecureRandom(32)
	if err != nil {
		return nil, err
	}
	nonce, err := security.NewNonce()
	if err != nil {
		return nil, err
	}
	rec := handshakeRecord{
		PrivateKeyPEM:     privPEM,
		Challenge:         challenge,
		DeviceFingerprint: fp,
		ClientVersion:     in.ClientVersion,
		IPAddress:         in.IP,
		CreatedAt:         s.now().UnixMilli(),
	}
	if err := cache.SetJSON(ctx, s.store, cache.HandshakeKey(nonce), rec, s.cfg.HandshakeTTL); err != nil {
		observability.RecordLoaderHandshake(ctx, "error")
		return nil, fmt.Errorf("store handshake: %w", err)
	}
	observability.RecordLoaderHandshake(ctx, "success")
	return &HandshakeResult{
		ServerPublicKey: pubPEM,
		Challenge:       challenge,
		Nonce:           nonce,
		ExpiresIn:       int64(s.cfg.HandshakeTTL.Seconds()),
	}, nil
}

func (s *LoaderService) LoaderLogin(ctx context.Context, in LoaderLoginInput) (*LoaderLoginResult, error) {
	ctx, span := observability.StartSpan(ctx, "loader.login")
	defer span.End()

	fp := strings.TrimSpace(in.DeviceFingerprint)
	if fp == "" || in.Nonce == "" || in.SignedChallenge == "" {
		observability.RecordLoaderLogin(ctx, "invalid_input")
		return nil, newError(ErrValidation, "deviceFingerprint, signedChallenge and nonce are required", nil)
	}

	var rec handshakeRecord
	if err := cache.GetDelJSON(ctx, s.store, cache.HandshakeKey(in.Nonce), &rec); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			observability.RecordLoaderLogin(ctx, "handshake_expired")
			return nil, newError(ErrExpired, "handshake expired or already used", err)
		}
		observability.RecordLoaderLogin(ctx, "error")
		return nil, fmt.Errorf("consume handshake: %w", err)
	}
	if rec.DeviceFingerprint != fp {
		observability.RecordLoaderLogin(ctx, "device_mismatch")
		return nil, newError(ErrAuthentication, "device fingerprint does not match handshake", nil)
	}

	key, err := security.DecodePrivateKeyPEM(rec.PrivateKeyPEM)
	if err != nil {
		observability.RecordLoaderLogin(ctx, "error")
		return nil, fmt.Errorf("decode handshake key: %w", err)
	}
	var verifyErr error
	if err := s.pool.Do(ctx, "rsa_decrypt", func() error {
		verifyErr = security.VerifyChallenge(key, in.SignedChallenge, rec.Challenge, fp, in.Nonce)
		return nil
	}); err != nil {
		return nil, err
	}
	if verifyErr != nil {
		s.events.Record(ctx, domain.SecurityEventInvalidChallenge, nil, in.IP,
			fmt.Sprintf("invalid challenge response for user %q", in.Username))
		observability.RecordLoaderLogin(ctx, "invalid_challenge")
		return nil, newError(ErrAuthentication, "invalid challenge response", verifyErr)
	}

	login, err := s.auth.login(ctx, LoginInput{
		Username:          in.Username,
		Password:          in.Password,
		DeviceFingerprint: fp,
		IP:                in.IP,
		UserAgent:         in.UserAgent,
	}, "loader")
	if err != nil {
		observability.RecordLoaderLogin(ctx, "auth_failed")
		return nil, err
	}

	validation, err := s.licenses.ValidateLicense(ctx, login.User.ID)
	if err != nil {
		observability.RecordLoaderLogin(ctx, "error")
		return nil, err
	}
	if !validation.Valid {
		observability.RecordLoaderLogin(ctx, "license_invalid")
		return nil, newError(ErrAuthorization, validation.Reason, nil)
	}

	symmetricKey, err := security.NewSymmetricKey()
	if err != nil {
		return nil, err
	}
	now := s.now().UnixMilli()
	sess := loaderSession{
		UserID:            login.User.ID,
		SessionID:         login.SessionID,
		DeviceFingerprint: fp,
		SymmetricKey:      symmetricKey,
		IPAddress:         in.IP,
		CreatedAt:         now,
		LastSeenAt:        now,
	}
	if err := cache.SetJSON(ctx, s.store, cache.LoaderSessionKey(login.User.ID, fp), sess, s.cfg.LoaderSessionTTL); err != nil {
		observability.RecordLoaderLogin(ctx, "error")
		return nil, fmt.Errorf("store loader session: %w", err)
	}
	s.audit.Record(ctx, domain.AuditLoaderLogin, uintRef(login.User.ID), in.IP, in.UserAgent, "license="+validation.License.Key)
	observability.RecordLoaderLogin(ctx, "success")

	lic := validation.License
	return &LoaderLoginResult{
		SessionToken: login.AccessToken,
		RefreshToken: login.RefreshToken,
		SymmetricKey: symmetricKey,
		License: LicenseInfo{
			Key:       lic.Key,
			Type:      lic.Type,
			Status:    lic.Status,
			ExpiresAt: lic.ExpiresAt,
		},
	}, nil
}

// Heartbeat proves liveness of a loader session. The signature is
// HMAC-SHA256 keyed by the session's symmetric key over
// sessionToken + nonce + timestamp, and each nonce is accepted once.
func (s *LoaderService) Heartbeat(ctx context.Context, in HeartbeatInput) (*HeartbeatResult, error) {
	claims, err := s.tokens.ParseAccessToken(in.SessionToken)
	if err != nil {
		observability.RecordLoaderHeartbeat(ctx, "invalid_token")
		return nil, newError(ErrAuthentication, "invalid session token", err)
	}
	userID, err := claims.UserID()
	if err != nil {
		observability.RecordLoaderHeartbeat(ctx, "invalid_token")
		return nil, newError(ErrAuthentication, "invalid session token", err)
	}
	revoked, err := s.auth.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		observability.RecordLoaderHeartbeat(ctx, "error")
		return nil, fmt.Errorf("check token blacklist: %w", err)
	}
	if revoked {
		observability.RecordLoaderHeartbeat(ctx, "revoked")
		return nil, newError(ErrAuthentication, "session token revoked", nil)
	}
	banned, err := s.auth.IsUserBanned(ctx, userID)
	if err != nil {
		observability.RecordLoaderHeartbeat(ctx, "error")
		return nil, fmt.Errorf("check ban status: %w", err)
	}
	if banned {
		observability.RecordLoaderHeartbeat(ctx, "banned")
		return nil, newError(ErrAuthorization, "account is banned", nil)
	}

	key := cache.LoaderSessionKey(userID, claims.DeviceFingerprint)
	var sess loaderSession
	if err := cache.GetJSON(ctx, s.store, key, &sess); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			observability.RecordLoaderHeartbeat(ctx, "session_expired")
			return nil, newError(ErrExpired, "loader session expired", err)
		}
		observability.RecordLoaderHeartbeat(ctx, "error")
		return nil, fmt.Errorf("load loader session: %w", err)
	}
	// A newer loader login on the same device replaces the session; tokens
	// minted for the older one stop heartbeating.
	if sess.SessionID != claims.SessionID {
		observability.RecordLoaderHeartbeat(ctx, "superseded")
		return nil, newError(ErrAuthentication, "loader session superseded", nil)
	}
	live, err := s.store.Exists(ctx, cache.SessionKey(claims.SessionID))
	if err != nil {
		observability.RecordLoaderHeartbeat(ctx, "error")
		return nil, fmt.Errorf("load session metadata: %w", err)
	}
	if !live {
		observability.RecordLoaderHeartbeat(ctx, "session_ended")
		return nil, newError(ErrExpired, "session ended", nil)
	}

	now := s.now()
	if !security.IsTimestampFresh(time.UnixMilli(in.Timestamp), now) {
		observability.RecordLoaderHeartbeat(ctx, "stale")
		return nil, newError(ErrExpired, "heartbeat timestamp outside freshness window", security.ErrStaleTimestamp)
	}
	signed := security.RequestSigningInput(in.SessionToken, in.Nonce, in.Timestamp)
	if !security.Verify(signed, in.Signature, sess.SymmetricKey) {
		observability.RecordLoaderHeartbeat(ctx, "bad_signature")
		return nil, newError(ErrAuthentication, "invalid heartbeat signature", security.ErrInvalidSignature)
	}
	if err := s.nonces.Consume(ctx, in.Nonce); err != nil {
		if errors.Is(err, ErrReplay) {
			s.events.Record(ctx, domain.SecurityEventReplayAttempt, uintRef(userID), in.IP, "heartbeat nonce reused")
			observability.RecordLoaderHeartbeat(ctx, "replay")
		} else {
			observability.RecordLoaderHeartbeat(ctx, "error")
		}
		return nil, err
	}

	sess.LastSeenAt = now.UnixMilli()
	sess.IPAddress = in.IP
	if err := cache.SetJSON(ctx, s.store, key, sess, s.cfg.LoaderSessionTTL); err != nil {
		observability.RecordLoaderHeartbeat(ctx, "error")
		return nil, fmt.Errorf("refresh loader session: %w", err)
	}
	observability.RecordLoaderHeartbeat(ctx, "success")
	return &HeartbeatResult{Status: "ok", Timestamp: now.UnixMilli()}, nil
}

func (s *LoaderService) GetBanStatus(ctx context.Context, userID uint) (*BanStatus, error) {
	return s.auth.BanStatus(ctx, userID)
}
