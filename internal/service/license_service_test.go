package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/repository"
)

var licenseKeyPattern = regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)

func TestNewLicenseKeyFormat(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		key, err := NewLicenseKey()
		if err != nil {
			t.Fatalf("new key: %v", err)
		}
		if !licenseKeyPattern.MatchString(key) {
			t.Fatalf("malformed key %q", key)
		}
		if seen[key] {
			t.Fatalf("duplicate key %q", key)
		}
		seen[key] = true
	}
}

func TestGenerateKeyValidationAndExpiry(t *testing.T) {
	env := newTestEnv(t, AuthConfig{})
	ctx := context.Background()
	now := env.clock.Now()

	tests := []struct {
		name string
		in   GenerateKeyInput
	}{
		{name: "unknown type", in: GenerateKeyInput{Type: "FOREVER", MaxDevices: 1}},
		{name: "zero devices", in: GenerateKeyInput{Type: domain.LicenseTypeTrial, MaxDevices: 0}},
		{name: "negative days", in: GenerateKeyInput{Type: domain.LicenseTypeTrial, MaxDevices: 1, DurationDays: intPtr(-1)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.licenses.GenerateKey(ctx, tc.in); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}

	sub, err := env.licenses.GenerateKey(ctx, GenerateKeyInput{Type: domain.LicenseTypeSubscription, MaxDevices: 3})
	if err != nil {
		t.Fatalf("generate subscription: %v", err)
	}
	if sub.ExpiresAt == nil || !sub.ExpiresAt.Equal(now.AddDate(0, 0, 30)) {
		t.Fatalf("expected 30 day default expiry, got %v", sub.ExpiresAt)
	}
	if sub.Status != domain.LicenseStatusActive || sub.UserID != nil {
		t.Fatalf("unexpected new license: %+v", sub)
	}

	life, err := env.licenses.GenerateKey(ctx, GenerateKeyInput{Type: domain.LicenseTypeLifetime, MaxDevices: 1, DurationDays: intPtr(10)})
	if err != nil {
		t.Fatalf("generate lifetime: %v", err)
	}
	if life.ExpiresAt != nil {
		t.Fatalf("lifetime license must not expire, got %v", life.ExpiresAt)
	}
}

func TestActivateLicenseEnforcesDeviceLimit(t *testing.T) {
	env := newTestEnv(t, AuthConfig{})
	ctx := context.Background()
	lic, err := env.licenses.GenerateKey(ctx, GenerateKeyInput{Type: domain.LicenseTypeSubscription, MaxDevices: 1})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	out, err := env.licenses.ActivateLicense(ctx, ActivateInput{Key: lic.Key, UserID: 1, DeviceFingerprint: "dev-1"})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if out.AlreadyActive || out.ActiveDevices != 1 || out.MaxDevices != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	out, err = env.licenses.ActivateLicense(ctx, ActivateInput{Key: " " + lic.Key + " ", UserID: 1, DeviceFingerprint: "dev-1"})
	if err != nil {
		t.Fatalf("re-activate: %v", err)
	}
	if !out.AlreadyActive {
		t.Fatal("expected re-activation to be a no-op")
	}
	var rows int64
	if err := env.db.Model(&domain.LicenseActivation{}).Where("license_id = ?", lic.ID).Count(&rows).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected a single activation row, got %d", rows)
	}

	_, err = env.licenses.ActivateLicense(ctx, ActivateInput{Key: lic.Key, UserID: 1, DeviceFingerprint: "dev-2"})
	if !errors.Is(err, ErrAuthorization) || err.Error() != "maximum devices reached" {
		t.Fatalf("expected maximum devices reached, got %v", err)
	}
	_, err = env.licenses.ActivateLicense(ctx, ActivateInput{Key: lic.Key, UserID: 2, DeviceFingerprint: "dev-3"})
	if !errors.Is(err, ErrAuthorization) {
		t.Fatalf("expected ErrAuthorization for another owner, got %v", err)
	}
	if _, err := env.licenses.ActivateLicense(ctx, ActivateInput{Key: "0000-0000-0000-0000", UserID: 1, DeviceFingerprint: "d"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := env.licenses.ActivateLicense(ctx, ActivateInput{Key: lic.Key, UserID: 1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation without fingerprint, got %v", err)
	}

	if err := env.licenses.DeactivateDevice(ctx, lic.Key, "dev-1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := env.licenses.DeactivateDevice(ctx, lic.Key, "dev-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second deactivate, got %v", err)
	}
	if _, err := env.licenses.ActivateLicense(ctx, ActivateInput{Key: lic.Key, UserID: 1, DeviceFingerprint: "dev-2"}); err != nil {
		t.Fatalf("activate after freeing slot: %v", err)
	}
}

func TestTrialWithZeroDaysExpiresOnValidate(t *testing.T) {
	env := newTestEnv(t, AuthConfig{})
	ctx := context.Background()
	u := env.register(t, "trial", "password-123")
	lic := env.grantLicense(t, u.ID, domain.LicenseTypeTrial, intPtr(0))

	v, err := env.licenses.ValidateLicense(ctx, u.ID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if v.Valid || v.Reason != "License expired" {
		t.Fatalf("expected expired license, got %+v", v)
	}
	stored, err := env.licenseDB.FindByKey(lic.Key)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Status != domain.LicenseStatusExpired {
		t.Fatalf("expected EXPIRED status, got %s", stored.Status)
	}

	v, err = env.licenses.ValidateLicense(ctx, u.ID)
	if err != nil || v.Valid || v.Reason != "No active license" {
		t.Fatalf("expected No active license after expiry, got %+v err=%v", v, err)
	}
}

func TestActivateExpiredLicensePersistsStatus(t *testing.T) {
	env := newTestEnv(t, AuthConfig{})
	ctx := context.Background()
	lic, err := env.licenses.GenerateKey(ctx, GenerateKeyInput{Type: domain.LicenseTypeSubscription, MaxDevices: 1, DurationDays: intPtr(1)})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	env.clock.Advance(24*time.Hour + time.Second)

	_, err = env.licenses.ActivateLicense(ctx, ActivateInput{Key: lic.Key, UserID: 1, DeviceFingerprint: "d"})
	if !errors.Is(err, ErrExpired) || err.Error() != "License expired" {
		t.Fatalf("expected ErrExpired(License expired), got %v", err)
	}
	_, err = env.licenses.ActivateLicense(ctx, ActivateInput{Key: lic.Key, UserID: 1, DeviceFingerprint: "d"})
	if !errors.Is(err, ErrAuthorization) || err.Error() != "license is expired" {
		t.Fatalf("expected license is expired, got %v", err)
	}
}

func TestRevokeAndListLicenses(t *testing.T) {
	env := newTestEnv(t, AuthConfig{})
	ctx := context.Background()
	var keys []string
	for i := 0; i < 3; i++ {
		lic, err := env.licenses.GenerateKey(ctx, GenerateKeyInput{Type: domain.LicenseTypeLifetime, MaxDevices: 1})
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		keys = append(keys, lic.Key)
	}

	revoked, err := env.licenses.RevokeLicense(ctx, nil, keys[0])
	if err != nil || revoked.Status != domain.LicenseStatusRevoked {
		t.Fatalf("revoke: %+v err=%v", revoked, err)
	}
	_, err = env.licenses.ActivateLicense(ctx, ActivateInput{Key: keys[0], UserID: 1, DeviceFingerprint: "d"})
	if !errors.Is(err, ErrAuthorization) || err.Error() != "license is revoked" {
		t.Fatalf("expected license is revoked, got %v", err)
	}
	if _, err := env.licenses.RevokeLicense(ctx, nil, "FFFF-FFFF-FFFF-FFFF"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	page, err := env.licenses.ListLicenses(ctx, repository.LicenseListQuery{Status: "active"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 active licenses, got %d", page.Total)
	}
	if _, err := env.licenses.ListLicenses(ctx, repository.LicenseListQuery{Status: "bogus"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown status, got %v", err)
	}
}
