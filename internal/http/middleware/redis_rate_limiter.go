package middleware

import (
	"context"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/cache"
)

type redisFixedWindowLimiter struct {
	store cache.Store
	scope string
	now   func() time.Time
}

// NewRedisFixedWindowLimiter counts hits in rate:{scope}:{key}. The first
// hit of a window sets the expiry, so the window starts at that hit.
func NewRedisFixedWindowLimiter(store cache.Store, scope string) Limiter {
	return &redisFixedWindowLimiter{store: store, scope: scope, now: time.Now}
}

func (l *redisFixedWindowLimiter) Allow(ctx context.Context, key string, policy RateLimitPolicy) (Decision, error) {
	policy = policy.normalized()
	rk := cache.RateKey(l.scope, key)
	n, err := l.store.IncrWithTTL(ctx, rk, policy.Window)
	if err != nil {
		return Decision{}, err
	}
	ttl, err := l.store.TTL(ctx, rk)
	if err != nil || ttl <= 0 {
		ttl = policy.Window
	}
	resetAt := l.now().Add(ttl)
	if int(n) > policy.Limit {
		return Decision{Allowed: false, RetryAfter: ttl, ResetAt: resetAt}, nil
	}
	return Decision{Allowed: true, Remaining: policy.Limit - int(n), ResetAt: resetAt}, nil
}
