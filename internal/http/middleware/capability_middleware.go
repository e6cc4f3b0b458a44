package middleware

import (
	"net/http"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/http/response"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"
)

func RequireCapability(required domain.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, "AUTHENTICATION_FAILED", "missing auth context", nil)
				return
			}
			if !domain.HasCapability(domain.ParseCapabilities(claims.Capabilities), required) {
				observability.RecordCapabilityCheck(r.Context(), string(required), "denied")
				response.Error(w, r, http.StatusForbidden, "AUTHORIZATION_FAILED", "insufficient capability", map[string]string{"required": string(required)})
				return
			}
			observability.RecordCapabilityCheck(r.Context(), string(required), "allowed")
			next.ServeHTTP(w, r)
		})
	}
}
