package service

import (
	"context"
	"testing"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/cache"
)

func TestBanCacheRedis(t *testing.T) {
	mr, client := newRedisClientForTest(t)
	bans := NewBanCache(cache.NewRedisStore(client, "test"), time.Minute)
	ctx := context.Background()

	if _, known, err := bans.Get(ctx, 7); err != nil || known {
		t.Fatalf("expected miss, known=%t err=%v", known, err)
	}
	if err := bans.Set(ctx, 7, true); err != nil {
		t.Fatalf("set: %v", err)
	}
	banned, known, err := bans.Get(ctx, 7)
	if err != nil || !known || !banned {
		t.Fatalf("expected cached ban, banned=%t known=%t err=%v", banned, known, err)
	}
	if err := bans.Set(ctx, 7, false); err != nil {
		t.Fatalf("set: %v", err)
	}
	if banned, known, _ := bans.Get(ctx, 7); banned || !known {
		t.Fatalf("expected cached clean state, banned=%t known=%t", banned, known)
	}

	mr.FastForward(time.Minute + time.Second)
	if _, known, _ := bans.Get(ctx, 7); known {
		t.Fatal("entry should expire after ttl")
	}

	_ = bans.Set(ctx, 8, true)
	if err := bans.Invalidate(ctx, 8); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, known, _ := bans.Get(ctx, 8); known {
		t.Fatal("entry should be gone after invalidate")
	}
}
