package di

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/cache"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/config"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/events"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.JWTSecret = "abcdefghijklmnopqrstuvwxyz123456"
	return &cfg
}

func TestProvidePublisherFallsBackToNoop(t *testing.T) {
	pub, err := ProvidePublisher(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("provide publisher: %v", err)
	}
	if _, ok := pub.(*events.NoopPublisher); !ok {
		t.Fatalf("expected noop publisher without brokers, got %T", pub)
	}
}

func TestProvideRateLimitersBackends(t *testing.T) {
	for _, backend := range []string{"local", "redis"} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig()
			cfg.RateLimitBackend = backend
			cfg.HandshakeRateLimitRPM = 1
			limiters := ProvideRateLimiters(cfg, cache.NewInMemoryStore(), ProvideJWTManager(cfg))
			if limiters.Global == nil || limiters.Auth == nil || limiters.Handshake == nil {
				t.Fatal("expected every limiter to be set")
			}
			h := limiters.Handshake(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			codes := make([]int, 0, 2)
			for i := 0; i < 2; i++ {
				req := httptest.NewRequest(http.MethodPost, "/loader/handshake", nil)
				req.RemoteAddr = "192.0.2.1:5000"
				rr := httptest.NewRecorder()
				h.ServeHTTP(rr, req)
				codes = append(codes, rr.Code)
			}
			if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
				t.Fatalf("expected 200 then 429, got %v", codes)
			}
		})
	}
}
