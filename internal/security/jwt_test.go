package security

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager(JWTConfig{
		Issuer:    "iss",
		Audience:  "aud",
		Secret:    "abcdefghijklmnopqrstuvwxyz123456",
		AccessTTL: 15 * time.Minute,
	})
}

func TestJWTManagerRoundTripCarriesDeviceBinding(t *testing.T) {
	m := newTestJWTManager()
	token, issued, err := m.SignAccessToken(AccessTokenInput{
		UserID:            42,
		Username:          "alice",
		SessionID:         "sess-1",
		DeviceFingerprint: "fp-1",
		DeviceBound:       true,
		Roles:             []string{"REGULAR_USER"},
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := m.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	uid, err := claims.UserID()
	if err != nil || uid != 42 {
		t.Fatalf("expected user id 42, got %d (%v)", uid, err)
	}
	if claims.Username != "alice" || claims.SessionID != "sess-1" || claims.DeviceFingerprint != "fp-1" || !claims.DeviceBound {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" || claims.ID != issued.ID {
		t.Fatalf("expected jti %q, got %q", issued.ID, claims.ID)
	}
}

func TestJWTManagerCapsAccessTTL(t *testing.T) {
	m := NewJWTManager(JWTConfig{Issuer: "iss", Audience: "aud", Secret: "s", AccessTTL: 2 * time.Hour})
	if m.AccessTTL() != 15*time.Minute {
		t.Fatalf("expected ttl capped to 15m, got %s", m.AccessTTL())
	}
}

func TestJWTManagerRejectsExpiredToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := newTestJWTManager().WithClock(func() time.Time { return now })
	token, _, err := m.SignAccessToken(AccessTokenInput{UserID: 1, SessionID: "s"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	now = now.Add(16 * time.Minute)
	if _, err := m.ParseAccessToken(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestJWTManagerRejectsOtherAlgorithmsAndSecrets(t *testing.T) {
	m := newTestJWTManager()
	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{TokenType: "access"})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := m.ParseAccessToken(raw); err == nil {
		t.Fatal("expected alg=none token to be rejected")
	}

	other := NewJWTManager(JWTConfig{Issuer: "iss", Audience: "aud", Secret: "another-secret-another-secret-xx"})
	token, _, err := other.SignAccessToken(AccessTokenInput{UserID: 1})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.ParseAccessToken(token); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
	if _, err := m.ParseAccessToken(strings.Repeat("x", 20)); err == nil {
		t.Fatal("expected garbage token to be rejected")
	}
}
