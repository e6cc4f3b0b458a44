package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/security"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/service"
)

type contextKey string

const (
	ClaimsContextKey contextKey = "claims"
	tokenContextKey  contextKey = "access_token"
)

// AuthMiddleware accepts a bearer access token, then rejects it when its
// jti is blacklisted or its subject is banned. guard may be nil in tests.
func AuthMiddleware(jwtMgr *security.JWTManager, guard service.AccessGuard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
				response.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "missing access token", nil)
				return
			}
			claims, err := jwtMgr.ParseAccessToken(raw)
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid", "bearer")
				response.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "invalid access token", nil)
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid", "bearer")
				response.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "invalid access token", nil)
				return
			}
			if guard != nil {
				revoked, err := guard.IsAccessTokenRevoked(r.Context(), claims.ID)
				if err != nil {
					response.ServiceError(w, r, err)
					return
				}
				if revoked {
					observability.RecordAccessTokenValidation(r.Context(), "revoked", "bearer")
					response.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "access token revoked", nil)
					return
				}
				banned, err := guard.IsUserBanned(r.Context(), userID)
				if err != nil {
					response.ServiceError(w, r, err)
					return
				}
				if banned {
					observability.RecordAccessTokenValidation(r.Context(), "banned", "bearer")
					response.Error(w, r, http.StatusForbidden, "AUTHORIZATION_FAILED", "account is banned", nil)
					return
				}
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid", "bearer")
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			ctx = context.WithValue(ctx, tokenContextKey, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}

func AccessTokenFromContext(ctx context.Context) string {
	v, _ := ctx.Value(tokenContextKey).(string)
	return v
}

// TokenExpiry is the expiry of the authenticated access token, or now when
// the claims carry none.
func TokenExpiry(claims *security.Claims) time.Time {
	if claims != nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Now()
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
