package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess = "access"

	// UnboundDeviceFingerprint marks access tokens minted without device
	// context, such as a refresh that did not re-supply a fingerprint.
	UnboundDeviceFingerprint = "refresh"
)

type Claims struct {
	TokenType         string   `json:"token_type"`
	Username          string   `json:"username"`
	SessionID         string   `json:"session_id"`
	DeviceFingerprint string   `json:"device_fingerprint"`
	DeviceBound       bool     `json:"device_bound"`
	Roles             []string `json:"roles,omitempty"`
	Capabilities      []string `json:"capabilities,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid subject %q", c.Subject)
	}
	return uint(id), nil
}

type JWTConfig struct {
	Issuer    string
	Audience  string
	Secret    string
	AccessTTL time.Duration
}

type AccessTokenInput struct {
	UserID            uint
	Username          string
	SessionID         string
	DeviceFingerprint string
	DeviceBound       bool
	Roles             []string
	Capabilities      []string
}

type JWTManager struct {
	issuer    string
	audience  string
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

func NewJWTManager(cfg JWTConfig) *JWTManager {
	ttl := cfg.AccessTTL
	if ttl <= 0 || ttl > 15*time.Minute {
		ttl = 15 * time.Minute
	}
	return &JWTManager{
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		secret:    []byte(cfg.Secret),
		accessTTL: ttl,
		now:       time.Now,
	}
}

// WithClock swaps the time source used for issuing and validating tokens.
func (m *JWTManager) WithClock(now func() time.Time) *JWTManager {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *JWTManager) AccessTTL() time.Duration { return m.accessTTL }

func (m *JWTManager) SignAccessToken(in AccessTokenInput) (string, *Claims, error) {
	now := m.now()
	claims := &Claims{
		TokenType:         tokenTypeAccess,
		Username:          in.Username,
		SessionID:         in.SessionID,
		DeviceFingerprint: in.DeviceFingerprint,
		DeviceBound:       in.DeviceBound,
		Roles:             in.Roles,
		Capabilities:      in.Capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatUint(uint64(in.UserID), 10),
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func (m *JWTManager) ParseAccessToken(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience), jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	return claims, nil
}
