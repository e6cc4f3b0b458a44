package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/security"
)

type fakeGuard struct {
	revoked bool
	banned  bool
	err     error
}

func (g fakeGuard) IsAccessTokenRevoked(context.Context, string) (bool, error) { return g.revoked, g.err }
func (g fakeGuard) IsUserBanned(context.Context, uint) (bool, error)           { return g.banned, nil }

func newTestJWT() *security.JWTManager {
	return security.NewJWTManager(security.JWTConfig{
		Issuer:    "iss",
		Audience:  "aud",
		Secret:    "abcdefghijklmnopqrstuvwxyz123456",
		AccessTTL: 15 * time.Minute,
	})
}

func signToken(t *testing.T, jwtMgr *security.JWTManager, caps []string) string {
	t.Helper()
	token, _, err := jwtMgr.SignAccessToken(security.AccessTokenInput{
		UserID:            42,
		Username:          "alice",
		SessionID:         "sess-1",
		DeviceFingerprint: "hwid",
		DeviceBound:       true,
		Capabilities:      caps,
	})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestAuthMiddlewareMissingTokenReturnsUnauthorized(t *testing.T) {
	h := AuthMiddleware(newTestJWT(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing token, got %d", rr.Code)
	}
}

func TestAuthMiddlewareValidBearerTokenPasses(t *testing.T) {
	jwtMgr := newTestJWT()
	token := signToken(t, jwtMgr, nil)
	h := AuthMiddleware(jwtMgr, fakeGuard{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims.SessionID != "sess-1" {
			t.Fatalf("expected claims in context, got %+v", claims)
		}
		if AccessTokenFromContext(r.Context()) != token {
			t.Fatal("expected raw token in context")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for valid token, got %d", rr.Code)
	}
}

func TestAuthMiddlewareGuardRejections(t *testing.T) {
	jwtMgr := newTestJWT()
	token := signToken(t, jwtMgr, nil)
	cases := []struct {
		name   string
		guard  fakeGuard
		status int
	}{
		{name: "revoked", guard: fakeGuard{revoked: true}, status: http.StatusUnauthorized},
		{name: "banned", guard: fakeGuard{banned: true}, status: http.StatusForbidden},
		{name: "backend error", guard: fakeGuard{err: errors.New("redis down")}, status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := AuthMiddleware(jwtMgr, tc.guard)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("expected middleware to block request")
			}))
			req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}

func TestRequireCapability(t *testing.T) {
	cases := []struct {
		name   string
		claims *security.Claims
		status int
	}{
		{name: "no claims", claims: nil, status: http.StatusUnauthorized},
		{name: "missing capability", claims: &security.Claims{Capabilities: []string{"session:self"}}, status: http.StatusForbidden},
		{name: "granted", claims: &security.Claims{Capabilities: []string{"session:self", "license:generate"}}, status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/licenses", nil)
			if tc.claims != nil {
				req = req.WithContext(context.WithValue(req.Context(), ClaimsContextKey, tc.claims))
			}
			rr := httptest.NewRecorder()
			RequireCapability("license:generate")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
		})
	}
}
