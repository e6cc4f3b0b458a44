package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "sqlite://file::memory:")
	t.Setenv("JWT_SECRET", "abcdefghijklmnopqrstuvwxyz123456")
	t.Setenv("REFRESH_TOKEN_PEPPER", "pepper")
}

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LOADER_RSA_BITS", "2048")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.JWTAccessTTL != 15*time.Minute || cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Fatalf("unexpected ttl defaults: %s %s", cfg.JWTAccessTTL, cfg.RefreshTokenTTL)
	}
	if cfg.LoaderRSABits != 2048 {
		t.Fatalf("expected env override of rsa bits, got %d", cfg.LoaderRSABits)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected kafka brokers: %v", cfg.KafkaBrokers)
	}
}

func TestLoadYAMLThenEnvPrecedence(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "http_addr: \":9090\"\nhandshake_rate_limit_rpm: 3\njwt_access_ttl: 10m\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HANDSHAKE_RATE_LIMIT_RPM", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("expected yaml http addr, got %q", cfg.HTTPAddr)
	}
	if cfg.JWTAccessTTL != 10*time.Minute {
		t.Fatalf("expected yaml access ttl, got %s", cfg.JWTAccessTTL)
	}
	if cfg.HandshakeRateLimitRPM != 7 {
		t.Fatalf("expected env to win over yaml, got %d", cfg.HandshakeRateLimitRPM)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("REFRESH_TOKEN_PEPPER", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if classifyConfigLoadError(err) != "validation" {
		t.Fatalf("expected validation class, got %q (%v)", classifyConfigLoadError(err), err)
	}
	for _, want := range []string{"DATABASE_URL", "JWT_SECRET", "REFRESH_TOKEN_PEPPER"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s: %v", want, err)
		}
	}
}

func TestLoadMalformedEnvOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_ACCESS_TTL", "fifteen minutes")

	_, err := Load()
	if err == nil {
		t.Fatal("expected env parse error")
	}
	if classifyConfigLoadError(err) != "env" {
		t.Fatalf("expected env class, got %q (%v)", classifyConfigLoadError(err), err)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	setRequiredEnv(t)
	bad := filepath.Join(t.TempDir(), "loader.yaml")
	if err := os.WriteFile(bad, []byte("http_addr: [\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_FILE", bad)
	_, err := Load()
	if got := classifyConfigLoadError(err); got != "file_parse" {
		t.Fatalf("expected file_parse class, got %q (%v)", got, err)
	}

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err = Load()
	if got := classifyConfigLoadError(err); got != "file_read" {
		t.Fatalf("expected file_read class, got %q (%v)", got, err)
	}
}

func TestLoadRefreshReuseGrace(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RefreshReuseGrace != 2*time.Second {
		t.Fatalf("expected 2s default reuse grace, got %s", cfg.RefreshReuseGrace)
	}

	t.Setenv("REFRESH_TOKEN_REUSE_GRACE", "5m")
	_, err = Load()
	if err == nil || !strings.Contains(err.Error(), "REFRESH_TOKEN_REUSE_GRACE") {
		t.Fatalf("expected reuse grace validation error, got %v", err)
	}
}

func TestValidateRejectsWeakProductionSettings(t *testing.T) {
	cfg := Defaults()
	cfg.Env = "production"
	cfg.DatabaseURL = "postgres://x"
	cfg.JWTSecret = strings.Repeat("s", 32)
	cfg.RefreshTokenPepper = "p"
	cfg.BcryptCost = 10
	cfg.JWTAccessTTL = time.Hour

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(err.Error(), "BCRYPT_COST") || !strings.Contains(err.Error(), "JWT_ACCESS_TTL") {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
