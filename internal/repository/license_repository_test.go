package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
)

func createLicense(t *testing.T, repo LicenseRepository, key string, maxDevices int, expiresAt *time.Time) *domain.License {
	t.Helper()
	l := &domain.License{
		Key:        key,
		Type:       domain.LicenseTypeSubscription,
		Status:     domain.LicenseStatusActive,
		MaxDevices: maxDevices,
		ExpiresAt:  expiresAt,
	}
	if err := repo.Create(l); err != nil {
		t.Fatalf("create license %s: %v", key, err)
	}
	return l
}

func TestLicenseRepositoryCreateDuplicateKey(t *testing.T) {
	repo := NewLicenseRepository(newTestDB(t))
	createLicense(t, repo, "AAAA-BBBB-CCCC-DDDD", 1, nil)
	dup := &domain.License{Key: "AAAA-BBBB-CCCC-DDDD", Type: domain.LicenseTypeLifetime, Status: domain.LicenseStatusActive, MaxDevices: 1}
	if err := repo.Create(dup); !errors.Is(err, ErrLicenseKeyExists) {
		t.Fatalf("expected ErrLicenseKeyExists, got %v", err)
	}
}

func TestLicenseRepositoryActivateBindsOwnerAndEnforcesLimit(t *testing.T) {
	repo := NewLicenseRepository(newTestDB(t))
	now := time.Now().UTC()
	exp := now.Add(24 * time.Hour)
	createLicense(t, repo, "1111-2222-3333-4444", 2, &exp)

	res, err := repo.Activate(ActivationRequest{Key: "1111-2222-3333-4444", UserID: 5, DeviceFingerprint: "dev-a", Now: now})
	if err != nil {
		t.Fatalf("activate dev-a: %v", err)
	}
	if res.AlreadyActive || res.ActiveDevices != 1 {
		t.Fatalf("unexpected first activation result: %+v", res)
	}
	if res.License.UserID == nil || *res.License.UserID != 5 {
		t.Fatalf("expected license bound to user 5, got %+v", res.License.UserID)
	}

	res, err = repo.Activate(ActivationRequest{Key: "1111-2222-3333-4444", UserID: 5, DeviceFingerprint: "dev-a", Now: now})
	if err != nil {
		t.Fatalf("re-activate dev-a: %v", err)
	}
	if !res.AlreadyActive || res.ActiveDevices != 1 {
		t.Fatalf("expected idempotent activation, got %+v", res)
	}

	if _, err := repo.Activate(ActivationRequest{Key: "1111-2222-3333-4444", UserID: 6, DeviceFingerprint: "dev-x", Now: now}); !errors.Is(err, ErrLicenseOwnedByOther) {
		t.Fatalf("expected ErrLicenseOwnedByOther, got %v", err)
	}

	if _, err := repo.Activate(ActivationRequest{Key: "1111-2222-3333-4444", UserID: 5, DeviceFingerprint: "dev-b", Now: now}); err != nil {
		t.Fatalf("activate dev-b: %v", err)
	}
	if _, err := repo.Activate(ActivationRequest{Key: "1111-2222-3333-4444", UserID: 5, DeviceFingerprint: "dev-c", Now: now}); !errors.Is(err, ErrDeviceLimitReached) {
		t.Fatalf("expected ErrDeviceLimitReached, got %v", err)
	}

	lic, err := repo.FindByKey("1111-2222-3333-4444")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if n, err := repo.CountActiveActivations(lic.ID); err != nil || n != 2 {
		t.Fatalf("count active: n=%d err=%v", n, err)
	}

	if err := repo.DeactivateDevice(lic.ID, "dev-a", now); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := repo.DeactivateDevice(lic.ID, "dev-a", now); !errors.Is(err, ErrActivationNotFound) {
		t.Fatalf("expected ErrActivationNotFound, got %v", err)
	}
	res, err = repo.Activate(ActivationRequest{Key: "1111-2222-3333-4444", UserID: 5, DeviceFingerprint: "dev-c", Now: now})
	if err != nil {
		t.Fatalf("activate dev-c after freeing a slot: %v", err)
	}
	if res.ActiveDevices != 2 {
		t.Fatalf("expected 2 active devices, got %d", res.ActiveDevices)
	}
	res, err = repo.Activate(ActivationRequest{Key: "1111-2222-3333-4444", UserID: 5, DeviceFingerprint: "dev-a", Now: now})
	if !errors.Is(err, ErrDeviceLimitReached) {
		t.Fatalf("reactivating a freed device must respect the limit, got res=%+v err=%v", res, err)
	}
}

func TestLicenseRepositoryActivateExpiredPersistsStatus(t *testing.T) {
	repo := NewLicenseRepository(newTestDB(t))
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	createLicense(t, repo, "DEAD-BEEF-0000-0001", 1, &past)

	res, err := repo.Activate(ActivationRequest{Key: "DEAD-BEEF-0000-0001", UserID: 1, DeviceFingerprint: "dev", Now: now})
	if !errors.Is(err, ErrLicenseExpired) {
		t.Fatalf("expected ErrLicenseExpired, got %v", err)
	}
	if res == nil || res.License.Status != domain.LicenseStatusExpired {
		t.Fatalf("expected expired license in result, got %+v", res)
	}
	stored, err := repo.FindByKey("DEAD-BEEF-0000-0001")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Status != domain.LicenseStatusExpired {
		t.Fatalf("expected EXPIRED persisted, got %s", stored.Status)
	}

	_, err = repo.Activate(ActivationRequest{Key: "DEAD-BEEF-0000-0001", UserID: 1, DeviceFingerprint: "dev", Now: now})
	var statusErr *LicenseStatusError
	if !errors.As(err, &statusErr) || statusErr.Status != domain.LicenseStatusExpired {
		t.Fatalf("expected LicenseStatusError(EXPIRED), got %v", err)
	}
	if statusErr.Error() != "license is expired" {
		t.Fatalf("unexpected message %q", statusErr.Error())
	}
	if !errors.Is(err, ErrLicenseNotActive) {
		t.Fatal("status error should match ErrLicenseNotActive")
	}
}

func TestLicenseRepositoryActivateMissingAndRevoked(t *testing.T) {
	repo := NewLicenseRepository(newTestDB(t))
	now := time.Now().UTC()
	if _, err := repo.Activate(ActivationRequest{Key: "0000-0000-0000-0000", UserID: 1, DeviceFingerprint: "d", Now: now}); !errors.Is(err, ErrLicenseNotFound) {
		t.Fatalf("expected ErrLicenseNotFound, got %v", err)
	}

	createLicense(t, repo, "ABCD-ABCD-ABCD-ABCD", 1, nil)
	revoked, err := repo.SetStatus("ABCD-ABCD-ABCD-ABCD", domain.LicenseStatusRevoked)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.Status != domain.LicenseStatusRevoked {
		t.Fatalf("expected REVOKED, got %s", revoked.Status)
	}
	_, err = repo.Activate(ActivationRequest{Key: "ABCD-ABCD-ABCD-ABCD", UserID: 1, DeviceFingerprint: "d", Now: now})
	if err == nil || err.Error() != "license is revoked" {
		t.Fatalf("expected license is revoked, got %v", err)
	}
	if _, err := repo.SetStatus("FFFF-FFFF-FFFF-FFFF", domain.LicenseStatusRevoked); !errors.Is(err, ErrLicenseNotFound) {
		t.Fatalf("expected ErrLicenseNotFound, got %v", err)
	}
}

func TestLicenseRepositoryExpireIfActiveAndLookups(t *testing.T) {
	repo := NewLicenseRepository(newTestDB(t))
	now := time.Now().UTC()
	l := createLicense(t, repo, "AAAA-0000-AAAA-0000", 1, nil)
	if _, err := repo.Activate(ActivationRequest{Key: l.Key, UserID: 3, DeviceFingerprint: "d", Now: now}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	got, err := repo.FindActiveByUserID(3)
	if err != nil || got.Key != l.Key {
		t.Fatalf("find active by user: got=%+v err=%v", got, err)
	}

	changed, err := repo.ExpireIfActive(l.ID)
	if err != nil || !changed {
		t.Fatalf("expire: changed=%v err=%v", changed, err)
	}
	changed, err = repo.ExpireIfActive(l.ID)
	if err != nil || changed {
		t.Fatalf("second expire: changed=%v err=%v", changed, err)
	}
	if _, err := repo.FindActiveByUserID(3); !errors.Is(err, ErrLicenseNotFound) {
		t.Fatalf("expected ErrLicenseNotFound, got %v", err)
	}
}

func TestLicenseRepositoryListPaged(t *testing.T) {
	repo := NewLicenseRepository(newTestDB(t))
	keys := []string{"0000-0000-0000-0001", "0000-0000-0000-0002", "0000-0000-0000-0003"}
	for _, k := range keys {
		createLicense(t, repo, k, 1, nil)
	}
	if _, err := repo.SetStatus(keys[0], domain.LicenseStatusRevoked); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	page, err := repo.ListPaged(LicenseListQuery{PageRequest: PageRequest{Page: 1, PageSize: 2}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page: total=%d pages=%d items=%d", page.Total, page.TotalPages, len(page.Items))
	}
	if page.Items[0].Key != keys[2] {
		t.Fatalf("expected newest first, got %s", page.Items[0].Key)
	}

	active, err := repo.ListPaged(LicenseListQuery{Status: string(domain.LicenseStatusActive)})
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if active.Total != 2 {
		t.Fatalf("expected 2 active licenses, got %d", active.Total)
	}

	owner := uint(9)
	owned, err := repo.ListPaged(LicenseListQuery{UserID: &owner})
	if err != nil {
		t.Fatalf("list owned: %v", err)
	}
	if owned.Total != 0 {
		t.Fatalf("expected no licenses for user 9, got %d", owned.Total)
	}
}
