package service

import (
	"context"
	"crypto/rsa"
	"runtime"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/security"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// CryptoPool bounds CPU-heavy work (bcrypt, RSA) to a fixed number of
// concurrent workers. RSA key generation is additionally rate limited.
type CryptoPool struct {
	sem    *semaphore.Weighted
	keygen *rate.Limiter
}

func NewCryptoPool(workers int, keygenRPS float64, keygenBurst int) *CryptoPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	limit := rate.Inf
	if keygenRPS > 0 {
		limit = rate.Limit(keygenRPS)
	}
	if keygenBurst <= 0 {
		keygenBurst = 1
	}
	return &CryptoPool{
		sem:    semaphore.NewWeighted(int64(workers)),
		keygen: rate.NewLimiter(limit, keygenBurst),
	}
}

func (p *CryptoPool) Do(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	observability.RecordCryptoPoolWait(ctx, op, time.Since(start))
	return fn()
}

func (p *CryptoPool) GenerateRSAKey(ctx context.Context, bits int) (*rsa.PrivateKey, error) {
	if err := p.keygen.Wait(ctx); err != nil {
		return nil, err
	}
	var key *rsa.PrivateKey
	err := p.Do(ctx, "rsa_keygen", func() error {
		var genErr error
		key, genErr = security.GenerateRSAKeyPair(bits)
		return genErr
	})
	return key, err
}

func (p *CryptoPool) HashPassword(ctx context.Context, h *security.PasswordHasher, plain string) (string, error) {
	var out string
	err := p.Do(ctx, "bcrypt_hash", func() error {
		var hashErr error
		out, hashErr = h.Hash(plain)
		return hashErr
	})
	return out, err
}

func (p *CryptoPool) VerifyPassword(ctx context.Context, h *security.PasswordHasher, hash, plain string) (bool, error) {
	var ok bool
	err := p.Do(ctx, "bcrypt_verify", func() error {
		ok = h.Verify(hash, plain)
		return nil
	})
	return ok, err
}
