package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/security"
)

const (
	SessionTTL       = time.Hour
	HandshakeTTL     = 600 * time.Second
	NonceTTL         = 600 * time.Second
	LoaderSessionTTL = time.Hour
)

func SessionKey(id string) string { return "session:" + id }

func HandshakeKey(nonce string) string { return "handshake:" + nonce }

func NonceKey(nonce string) string { return "nonce:" + nonce }

// BlacklistKey hashes the token identifier so raw credentials never become
// cache keys.
func BlacklistKey(token string) string { return "blacklist:" + security.Hash(token) }

func RateKey(scope, key string) string {
	scope = strings.TrimSpace(strings.ToLower(scope))
	if scope == "" {
		scope = "api"
	}
	return fmt.Sprintf("rate:%s:%s", scope, key)
}

func LoaderSessionKey(userID uint, deviceFingerprint string) string {
	return fmt.Sprintf("loader:session:%d:%s", userID, security.Hash(deviceFingerprint)[:32])
}
