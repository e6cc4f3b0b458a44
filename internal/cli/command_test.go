package cli

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func setTestEnv(t *testing.T) {
	t.Helper()
	dsn := fmt.Sprintf("sqlite://%s", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("DATABASE_URL", dsn)
	t.Setenv("JWT_SECRET", "abcdefghijklmnopqrstuvwxyz123456")
	t.Setenv("REFRESH_TOKEN_PEPPER", "pepper")
	t.Setenv("APP_ENV", "test")
	t.Setenv("CONFIG_FILE", "")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLicenseGeneratePrintsKey(t *testing.T) {
	setTestEnv(t)
	out, err := execute(t, "license", "generate", "--type", "LIFETIME", "--max-devices", "3")
	if err != nil {
		t.Fatalf("license generate: %v", err)
	}
	if !regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4} type=LIFETIME max_devices=3 expires=never`).MatchString(out) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestLicenseGenerateRejectsUnknownType(t *testing.T) {
	setTestEnv(t)
	if _, err := execute(t, "license", "generate", "--type", "FOREVER"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestDBResetRequiresConfirmation(t *testing.T) {
	setTestEnv(t)
	if _, err := execute(t, "db", "reset"); err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Fatalf("expected confirmation error, got %v", err)
	}
	out, err := execute(t, "db", "reset", "--yes")
	if err != nil || !strings.Contains(out, "database reset") {
		t.Fatalf("reset: out=%q err=%v", out, err)
	}
}

func TestGrantAdminUnknownUser(t *testing.T) {
	setTestEnv(t)
	if _, err := execute(t, "user", "grant-admin", "ghost"); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestMigrate(t *testing.T) {
	setTestEnv(t)
	out, err := execute(t, "migrate")
	if err != nil || !strings.Contains(out, "migrations applied") {
		t.Fatalf("migrate: out=%q err=%v", out, err)
	}
}
