// Package loadgen drives synthetic auth and loader traffic at a fixed rate.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/tools/loaderclient"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        uint64
	Username    string
	Password    string
	Fingerprint string
}

type Result struct {
	TotalRequests int64
	Failures      int64
	StatusClasses map[string]int64
}

type op func(ctx context.Context, c *loaderclient.Client, rng *rand.Rand) (int, error)

func normalizeProfile(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "mixed"
	}
	return p
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

func statusOf(err error) int {
	var apiErr *loaderclient.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	if err != nil {
		return 0
	}
	return http.StatusOK
}

func healthOp(ctx context.Context, c *loaderclient.Client, _ *rand.Rand) (int, error) {
	return c.Get(ctx, "/health/live")
}

func authOp(cfg Config) op {
	return func(ctx context.Context, c *loaderclient.Client, rng *rand.Rand) (int, error) {
		password := cfg.Password
		if rng.IntN(4) == 0 {
			password = "wrong-password"
		}
		_, err := c.Login(ctx, cfg.Username, password, cfg.Fingerprint)
		return statusOf(err), nil
	}
}

func handshakeOp(cfg Config) op {
	return func(ctx context.Context, c *loaderclient.Client, _ *rand.Rand) (int, error) {
		_, err := c.Handshake(ctx, "loadgen/1.0", cfg.Fingerprint)
		return statusOf(err), nil
	}
}

// heartbeatOp shares one loader session across workers and re-logs in when
// the session is rejected.
func heartbeatOp(cfg Config) op {
	var (
		mu   sync.Mutex
		sess *loaderclient.Session
	)
	return func(ctx context.Context, c *loaderclient.Client, _ *rand.Rand) (int, error) {
		mu.Lock()
		if sess == nil {
			s, err := c.LoaderLogin(ctx, cfg.Username, cfg.Password, cfg.Fingerprint)
			if err != nil {
				mu.Unlock()
				return statusOf(err), nil
			}
			sess = s
		}
		current := sess
		mu.Unlock()
		err := c.Heartbeat(ctx, current, "")
		if status := statusOf(err); status == http.StatusUnauthorized {
			mu.Lock()
			if sess == current {
				sess = nil
			}
			mu.Unlock()
		}
		return statusOf(err), nil
	}
}

func opsFor(cfg Config) ([]op, error) {
	switch normalizeProfile(cfg.Profile) {
	case "health":
		return []op{healthOp}, nil
	case "auth":
		return []op{authOp(cfg)}, nil
	case "loader":
		return []op{handshakeOp(cfg), heartbeatOp(cfg)}, nil
	case "mixed":
		return []op{healthOp, authOp(cfg), handshakeOp(cfg), heartbeatOp(cfg)}, nil
	default:
		return nil, fmt.Errorf("unknown profile %q", cfg.Profile)
	}
}

// Run sends requests at cfg.RPS until cfg.Duration elapses or ctx ends.
// Transport failures and 5xx replies count as failures.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.RPS <= 0 || cfg.Concurrency <= 0 || cfg.Duration <= 0 {
		return nil, errors.New("rps, concurrency and duration must be positive")
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = "loadgen-device"
	}
	ops, err := opsFor(cfg)
	if err != nil {
		return nil, err
	}
	client := loaderclient.New(cfg.BaseURL)
	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Concurrency)

	runCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var (
		total, failures atomic.Int64
		mu              sync.Mutex
		classes         = map[string]int64{}
	)
	g, gctx := errgroup.WithContext(runCtx)
	for w := 0; w < cfg.Concurrency; w++ {
		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(w)))
		g.Go(func() error {
			for {
				if err := limiter.Wait(gctx); err != nil {
					return nil
				}
				status, err := ops[rng.IntN(len(ops))](gctx, client, rng)
				if gctx.Err() != nil {
					return nil
				}
				total.Add(1)
				class := classifyStatusClass(status)
				if err != nil || status == 0 || class == "5xx" {
					failures.Add(1)
				}
				mu.Lock()
				classes[class]++
				mu.Unlock()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Result{TotalRequests: total.Load(), Failures: failures.Load(), StatusClasses: classes}, nil
}
