package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/repository"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/security"
)

const keyGenerationAttempts = 5

type LicenseConfig struct {
	DefaultDurationDays int
}

type GenerateKeyInput struct {
	Type         domain.LicenseType
	MaxDevices   int
	DurationDays *int
	OwnerID      *uint
	ActorID      *uint
}

type ActivateInput struct {
	Key               string
	UserID            uint
	DeviceFingerprint string
	IP                string
	UserAgent         string
}

type ActivationOutcome struct {
	LicenseID     uint   `json:"licenseId"`
	Key           string `json:"key"`
	AlreadyActive bool   `json:"alreadyActive"`
	ActiveDevices int64  `json:"activeDevices"`
	MaxDevices    int    `json:"maxDevices"`
}

type LicenseValidation struct {
	Valid   bool            `json:"valid"`
	Reason  string          `json:"reason,omitempty"`
	License *domain.License `json:"license,omitempty"`
}

type LicenseService struct {
	repo   repository.LicenseRepository
	audit  *AuditRecorder
	cfg    LicenseConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewLicenseService(repo repository.LicenseRepository, audit *AuditRecorder, cfg LicenseConfig, logger *slog.Logger) *LicenseService {
	if cfg.DefaultDurationDays <= 0 {
		cfg.DefaultDurationDays = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LicenseService{repo: repo, audit: audit, cfg: cfg, logger: logger, now: time.Now}
}

func (s *LicenseService) WithClock(now func() time.Time) *LicenseService {
	if now != nil {
		s.now = now
	}
	return s
}

// NewLicenseKey returns four dash separated groups of four uppercase hex
// characters.
func NewLicenseKey() (string, error) {
	raw, err := security.SecureRandom(8)
	if err != nil {
		return "", err
	}
	raw = strings.ToUpper(raw)
	return raw[0:4] + "-" + raw[4:8] + "-" + raw[8:12] + "-" + raw[12:16], nil
}

func normalizeLicenseKey(key string) string { return strings.ToUpper(strings.TrimSpace(key)) }

func (s *LicenseService) GenerateKey(ctx context.Context, in GenerateKeyInput) (*domain.License, error) {
	if !in.Type.Valid() {
		return nil, newError(ErrValidation, fmt.Sprintf("unknown license type %q", in.Type), nil)
	}
	if in.MaxDevices < 1 {
		return nil, newError(ErrValidation, "maxDevices must be at least 1", nil)
	}
	if in.DurationDays != nil && *in.DurationDays < 0 {
		return nil, newError(ErrValidation, "durationDays must not be negative", nil)
	}

	var expiresAt *time.Time
	if in.Type != domain.LicenseTypeLifetime {
		days := s.cfg.DefaultDurationDays
		if in.DurationDays != nil {
			days = *in.DurationDays
		}
		t := s.now().UTC().AddDate(0, 0, days)
		expiresAt = &t
	}

	for attempt := 0; attempt < keyGenerationAttempts; attempt++ {
		key, err := NewLicenseKey()
		if err != nil {
			return nil, fmt.Errorf("generate license key: %w", err)
		}
		lic := &domain.License{
			Key:        key,
			Type:       in.Type,
			Status:     domain.LicenseStatusActive,
			MaxDevices: in.MaxDevices,
			ExpiresAt:  expiresAt,
			UserID:     in.OwnerID,
		}
		err = s.repo.Create(lic)
		if err == nil {
			s.audit.Record(ctx, domain.AuditLicenseGenerate, in.ActorID, "", "",
				fmt.Sprintf("key=%s type=%s max_devices=%d", key, in.Type, in.MaxDevices))
			return lic, nil
		}
		if !errors.Is(err, repository.ErrLicenseKeyExists) {
			return nil, fmt.Errorf("create license: %w", err)
		}
		s.logger.WarnContext(ctx, "license key collision, retrying", "attempt", attempt+1)
	}
	return nil, fmt.Errorf("could not allocate a unique license key after %d attempts", keyGenerationAttempts)
}

func (s *LicenseService) ActivateLicense(ctx context.Context, in ActivateInput) (*ActivationOutcome, error) {
	key := normalizeLicenseKey(in.Key)
	fp := strings.TrimSpace(in.DeviceFingerprint)
	if key == "" || fp == "" {
		observability.RecordLicenseActivation(ctx, "invalid_input")
		return nil, newError(ErrValidation, "license key and device fingerprint are required", nil)
	}
	res, err := s.repo.Activate(repository.ActivationRequest{
		Key:               key,
		UserID:            in.UserID,
		DeviceFingerprint: fp,
		IPAddress:         in.IP,
		Now:               s.now().UTC(),
	})
	if err != nil {
		mapped := mapActivationError(err)
		observability.RecordLicenseActivation(ctx, ErrorCode(mapped))
		return nil, mapped
	}
	s.audit.Record(ctx, domain.AuditLicenseActivate, uintRef(in.UserID), in.IP, in.UserAgent,
		fmt.Sprintf("key=%s already_active=%t", key, res.AlreadyActive))
	observability.RecordLicenseActivation(ctx, "success")
	return &ActivationOutcome{
		LicenseID:     res.License.ID,
		Key:           res.License.Key,
		AlreadyActive: res.AlreadyActive,
		ActiveDevices: res.ActiveDevices,
		MaxDevices:    res.License.MaxDevices,
	}, nil
}

func mapActivationError(err error) error {
	var statusErr *repository.LicenseStatusError
	switch {
	case errors.Is(err, repository.ErrLicenseNotFound):
		return newError(ErrNotFound, "license not found", err)
	case errors.As(err, &statusErr):
		return newError(ErrAuthorization, statusErr.Error(), err)
	case errors.Is(err, repository.ErrLicenseExpired):
		return newError(ErrExpired, "License expired", err)
	case errors.Is(err, repository.ErrLicenseOwnedByOther):
		return newError(ErrAuthorization, "license is bound to another user", err)
	case errors.Is(err, repository.ErrDeviceLimitReached):
		return newError(ErrAuthorization, "maximum devices reached", err)
	}
	return fmt.Errorf("activate license: %w", err)
}

// ValidateLicense checks the user's newest ACTIVE license, expiring it in
// place when its expiry has passed.
func (s *LicenseService) ValidateLicense(ctx context.Context, userID uint) (*LicenseValidation, error) {
	lic, err := s.repo.FindActiveByUserID(userID)
	if err != nil {
		if errors.Is(err, repository.ErrLicenseNotFound) {
			return &LicenseValidation{Valid: false, Reason: "No active license"}, nil
		}
		return nil, fmt.Errorf("find license: %w", err)
	}
	if lic.ExpiredAt(s.now()) {
		if _, err := s.repo.ExpireIfActive(lic.ID); err != nil {
			return nil, fmt.Errorf("expire license: %w", err)
		}
		lic.Status = domain.LicenseStatusExpired
		s.logger.InfoContext(ctx, "license expired on validation", "license_id", lic.ID, "user_id", userID)
		return &LicenseValidation{Valid: false, Reason: "License expired", License: lic}, nil
	}
	return &LicenseValidation{Valid: true, License: lic}, nil
}

func (s *LicenseService) RevokeLicense(ctx context.Context, actorID *uint, key string) (*domain.License, error) {
	key = normalizeLicenseKey(key)
	if key == "" {
		return nil, newError(ErrValidation, "license key is required", nil)
	}
	lic, err := s.repo.SetStatus(key, domain.LicenseStatusRevoked)
	if err != nil {
		if errors.Is(err, repository.ErrLicenseNotFound) {
			return nil, newError(ErrNotFound, "license not found", err)
		}
		return nil, fmt.Errorf("revoke license: %w", err)
	}
	s.audit.Record(ctx, domain.AuditLicenseRevoke, actorID, "", "", "key="+key)
	return lic, nil
}

func (s *LicenseService) DeactivateDevice(_ context.Context, key, deviceFingerprint string) error {
	key = normalizeLicenseKey(key)
	fp := strings.TrimSpace(deviceFingerprint)
	if key == "" || fp == "" {
		return newError(ErrValidation, "license key and device fingerprint are required", nil)
	}
	lic, err := s.repo.FindByKey(key)
	if err != nil {
		if errors.Is(err, repository.ErrLicenseNotFound) {
			return newError(ErrNotFound, "license not found", err)
		}
		return fmt.Errorf("find license: %w", err)
	}
	if err := s.repo.DeactivateDevice(lic.ID, fp, s.now()); err != nil {
		if errors.Is(err, repository.ErrActivationNotFound) {
			return newError(ErrNotFound, "device is not active on this license", err)
		}
		return fmt.Errorf("deactivate device: %w", err)
	}
	return nil
}

func (s *LicenseService) ListLicenses(_ context.Context, query repository.LicenseListQuery) (repository.PageResult[domain.License], error) {
	query.Status = strings.ToUpper(strings.TrimSpace(query.Status))
	switch domain.LicenseStatus(query.Status) {
	case "", domain.LicenseStatusActive, domain.LicenseStatusExpired, domain.LicenseStatusRevoked:
	default:
		return repository.PageResult[domain.License]{}, newError(ErrValidation, fmt.Sprintf("unknown license status %q", query.Status), nil)
	}
	return s.repo.ListPaged(query)
}
