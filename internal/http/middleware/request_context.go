package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/security"
)

const DeviceFingerprintHeader = "X-Device-Fingerprint"

// ClientIP returns the request's remote IP without port. chi's RealIP runs
// first, so proxy headers are already folded into RemoteAddr.
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if ip := net.ParseIP(addr); ip != nil {
		return ip.String()
	}
	return addr
}

func DeviceFingerprint(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(DeviceFingerprintHeader))
}

// UserOrIPKey keys rate limits by authenticated user when a valid bearer
// token is present, else by client IP.
func UserOrIPKey(jwtMgr *security.JWTManager) func(r *http.Request) string {
	return func(r *http.Request) string {
		if jwtMgr == nil {
			return clientIPKey(r)
		}
		raw := bearerToken(r)
		if raw == "" {
			return clientIPKey(r)
		}
		claims, err := jwtMgr.ParseAccessToken(raw)
		if err != nil {
			return clientIPKey(r)
		}
		uid, err := claims.UserID()
		if err != nil {
			return clientIPKey(r)
		}
		return "user:" + strconv.FormatUint(uint64(uid), 10)
	}
}

func (rl *RateLimiter) WithKey(keyFunc func(r *http.Request) string) *RateLimiter {
	if keyFunc != nil {
		rl.keyFunc = keyFunc
	}
	return rl
}
