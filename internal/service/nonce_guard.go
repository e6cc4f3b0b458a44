package service

import (
	"context"
	"strings"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/cache"
)

// NonceGuard rejects any nonce seen within its TTL. Acceptance is a single
// SET NX, so concurrent callers with the same nonce get exactly one winner.
type NonceGuard struct {
	store cache.Store
	ttl   time.Duration
}

func NewNonceGuard(store cache.Store, ttl time.Duration) *NonceGuard {
	if ttl <= 0 {
		ttl = cache.NonceTTL
	}
	return &NonceGuard{store: store, ttl: ttl}
}

func (g *NonceGuard) Consume(ctx context.Context, nonce string) error {
	nonce = strings.TrimSpace(nonce)
	if nonce == "" {
		return newError(ErrValidation, "nonce is required", nil)
	}
	ok, err := g.store.SetNX(ctx, cache.NonceKey(nonce), "1", g.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrReplay, "nonce already used", nil)
	}
	return nil
}
