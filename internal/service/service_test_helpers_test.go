package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/cache"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/events"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/repository"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/security"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock { return &testClock{now: time.Now().UTC()} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []events.SecurityEventMessage
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, msg events.SecurityEventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(eventType domain.SecurityEventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, m := range p.msgs {
		if m.Type == string(eventType) {
			n++
		}
	}
	return n
}

type testEnv struct {
	db        *gorm.DB
	redis     *miniredis.Miniredis
	store     cache.Store
	clock     *testClock
	publisher *recordingPublisher

	users      repository.UserRepository
	sessionsDB repository.SessionRepository
	licenseDB  repository.LicenseRepository
	eventsDB   repository.SecurityEventRepository

	jwt      *security.JWTManager
	tokens   *TokenService
	auth     *AuthService
	licenses *LicenseService
	loader   *LoaderService
	sessions *SessionService
}

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestEnv(t *testing.T, authCfg AuthConfig) *testEnv {
	t.Helper()
	db := newServiceTestDB(t)
	mr, client := newRedisClientForTest(t)
	store := cache.NewRedisStore(client, "")
	clock := newTestClock()
	log := discardLogger()
	pub := &recordingPublisher{}

	jwtMgr := security.NewJWTManager(security.JWTConfig{
		Issuer:    "secure-loader-auth-test",
		Audience:  "loader-clients",
		Secret:    "test-secret-0123456789abcdef-0123456789",
		AccessTTL: 15 * time.Minute,
	}).WithClock(clock.Now)

	users := repository.NewUserRepository(db)
	sessionsDB := repository.NewSessionRepository(db)
	licenseDB := repository.NewLicenseRepository(db)
	eventsDB := repository.NewSecurityEventRepository(db)

	recorder := NewSecurityEventRecorder(eventsDB, pub, log)
	recorder.now = clock.Now
	audit := NewAuditRecorder(repository.NewAuditLogRepository(db), log)
	tokens := NewTokenService(jwtMgr, repository.NewRefreshTokenRepository(db), "test-pepper", 7*24*time.Hour).WithClock(clock.Now).WithLogger(log)
	pool := NewCryptoPool(4, 0, 0)

	auth := NewAuthService(users, sessionsDB, tokens, security.NewPasswordHasher(4), pool, store,
		NewBanCache(store, time.Hour), recorder, audit, authCfg, log).WithClock(clock.Now)
	licenses := NewLicenseService(licenseDB, audit, LicenseConfig{}, log).WithClock(clock.Now)
	loader := NewLoaderService(auth, licenses, tokens, pool, store, NewNonceGuard(store, cache.NonceTTL),
		recorder, audit, LoaderConfig{RSABits: 2048}, log).WithClock(clock.Now)

	return &testEnv{
		db:         db,
		redis:      mr,
		store:      store,
		clock:      clock,
		publisher:  pub,
		users:      users,
		sessionsDB: sessionsDB,
		licenseDB:  licenseDB,
		eventsDB:   eventsDB,
		jwt:        jwtMgr,
		tokens:     tokens,
		auth:       auth,
		licenses:   licenses,
		loader:     loader,
		sessions:   NewSessionService(sessionsDB, auth),
	}
}

func (e *testEnv) register(t *testing.T, username, password string) *PublicUser {
	t.Helper()
	u, err := e.auth.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
		IP:       "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return u
}

func (e *testEnv) login(t *testing.T, username, password, fp, ip string) *LoginResult {
	t.Helper()
	res, err := e.auth.Login(context.Background(), LoginInput{Username: username, Password: password, DeviceFingerprint: fp, IP: ip})
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return res
}

func (e *testEnv) grantLicense(t *testing.T, userID uint, typ domain.LicenseType, days *int) *domain.License {
	t.Helper()
	lic, err := e.licenses.GenerateKey(context.Background(), GenerateKeyInput{
		Type:         typ,
		MaxDevices:   2,
		DurationDays: days,
		OwnerID:      &userID,
	})
	if err != nil {
		t.Fatalf("generate license: %v", err)
	}
	return lic
}

func (e *testEnv) eventCount(t *testing.T, eventType domain.SecurityEventType) int64 {
	t.Helper()
	n, err := e.eventsDB.CountByType(eventType)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func intPtr(v int) *int { return &v }
