package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/cache"
)

// BanCache is a fast negative lookup for banned users, consulted on every
// authenticated request so a ban takes effect before tokens expire. The
// database stays authoritative; a miss falls through to it.
type BanCache struct {
	store cache.Store
	ttl   time.Duration
}

const defaultBanCacheTTL = 24 * time.Hour

func NewBanCache(store cache.Store, ttl time.Duration) *BanCache {
	if ttl <= 0 {
		ttl = defaultBanCacheTTL
	}
	return &BanCache{store: store, ttl: ttl}
}

func banKey(userID uint) string { return "ban:" + strconv.FormatUint(uint64(userID), 10) }

// Get reports (banned, known). known is false on a cache miss.
func (c *BanCache) Get(ctx context.Context, userID uint) (bool, bool, error) {
	v, err := c.store.Get(ctx, banKey(userID))
	if errors.Is(err, cache.ErrCacheMiss) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return v == "1", true, nil
}

func (c *BanCache) Set(ctx context.Context, userID uint, banned bool) error {
	v := "0"
	if banned {
		v = "1"
	}
	return c.store.Set(ctx, banKey(userID), v, c.ttl)
}

func (c *BanCache) Invalidate(ctx context.Context, userID uint) error {
	return c.store.Del(ctx, banKey(userID))
}
