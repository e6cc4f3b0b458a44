package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrLicenseNotFound     = errors.New("license not found")
	ErrLicenseKeyExists    = errors.New("license key already exists")
	ErrLicenseNotActive    = errors.New("license is not active")
	ErrLicenseExpired      = errors.New("license expired")
	ErrLicenseOwnedByOther = errors.New("license is bound to another user")
	ErrDeviceLimitReached  = errors.New("maximum devices reached")
	ErrActivationNotFound  = errors.New("activation not found")
)

// LicenseStatusError names the status that blocked an operation.
type LicenseStatusError struct {
	Status domain.LicenseStatus
}

func (e *LicenseStatusError) Error() string { return fmt.Sprintf("license is %s", e.Status.Lower()) }

func (e *LicenseStatusError) Is(target error) bool { return target == ErrLicenseNotActive }

type ActivationRequest struct {
	Key               string
	UserID            uint
	DeviceFingerprint string
	IPAddress         string
	Now               time.Time
}

type ActivationResult struct {
	License       domain.License
	Activation    domain.LicenseActivation
	AlreadyActive bool
	ActiveDevices int64
}

type LicenseListQuery struct {
	PageRequest
	Status string
	UserID *uint
}

type LicenseRepository interface {
	Create(l *domain.License) error
	FindByKey(key string) (*domain.License, error)
	FindActiveByUserID(userID uint) (*domain.License, error)
	ExpireIfActive(id uint) (bool, error)
	SetStatus(key string, status domain.LicenseStatus) (*domain.License, error)
	Activate(req ActivationRequest) (*ActivationResult, error)
	DeactivateDevice(licenseID uint, deviceFingerprint string, at time.Time) error
	CountActiveActivations(licenseID uint) (int64, error)
	ListPaged(query LicenseListQuery) (PageResult[domain.License], error)
}

type GormLicenseRepository struct{ db *gorm.DB }

func NewLicenseRepository(db *gorm.DB) LicenseRepository { return &GormLicenseRepository{db: db} }

func (r *GormLicenseRepository) Create(l *domain.License) error {
	err := r.db.Create(l).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "license", "create", "error")
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return ErrLicenseKeyExists
		}
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "license", "create", "success")
	return nil
}

func (r *GormLicenseRepository) FindByKey(key string) (*domain.License, error) {
	var l domain.License
	err := r.db.Where("license_key = ?", key).First(&l).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "license", "find_by_key", "not_found")
			return nil, ErrLicenseNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "license", "find_by_key", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "license", "find_by_key", "success")
	return &l, nil
}

func (r *GormLicenseRepository) FindActiveByUserID(userID uint) (*domain.License, error) {
	var l domain.License
	err := r.db.Where("user_id = ? AND status = ?", userID, domain.LicenseStatusActive).
		Order("created_at DESC").Order("id DESC").
		First(&l).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "license", "find_active_by_user_id", "not_found")
			return nil, ErrLicenseNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "license", "find_active_by_user_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "license", "find_active_by_user_id", "success")
	return &l, nil
}

// ExpireIfActive moves an ACTIVE license to EXPIRED. It reports false when
// another caller already transitioned it.
func (r *GormLicenseRepository) ExpireIfActive(id uint) (bool, error) {
	res := r.db.Model(&domain.License{}).
		Where("id = ? AND status = ?", id, domain.LicenseStatusActive).
		Update("status", domain.LicenseStatusExpired)
	record("license", "expire_if_active", res.Error, false)
	return res.RowsAffected > 0, res.Error
}

func (r *GormLicenseRepository) SetStatus(key string, status domain.LicenseStatus) (*domain.License, error) {
	res := r.db.Model(&domain.License{}).Where("license_key = ?", key).Update("status", status)
	if res.Error != nil {
		record("license", "set_status", res.Error, false)
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		record("license", "set_status", nil, true)
		return nil, ErrLicenseNotFound
	}
	record("license", "set_status", nil, false)
	return r.FindByKey(key)
}

// Activate runs the whole activation decision under a row lock on the
// license. An expired license is persisted as EXPIRED before
// ErrLicenseExpired is returned, so the transition survives the failure.
func (r *GormLicenseRepository) Activate(req ActivationRequest) (*ActivationResult, error) {
	var (
		result  ActivationResult
		expired bool
	)
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var lic domain.License
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("license_key = ?", req.Key).
			First(&lic).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLicenseNotFound
			}
			return err
		}
		if lic.Status != domain.LicenseStatusActive {
			return &LicenseStatusError{Status: lic.Status}
		}
		if lic.ExpiredAt(req.Now) {
			if err := tx.Model(&lic).Update("status", domain.LicenseStatusExpired).Error; err != nil {
				return err
			}
			lic.Status = domain.LicenseStatusExpired
			result.License = lic
			expired = true
			return nil
		}
		if lic.UserID != nil && *lic.UserID != req.UserID {
			return ErrLicenseOwnedByOther
		}

		var existing domain.LicenseActivation
		err := tx.Where("license_id = ? AND device_fingerprint = ?", lic.ID, req.DeviceFingerprint).First(&existing).Error
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var active int64
		if err := tx.Model(&domain.LicenseActivation{}).
			Where("license_id = ? AND active = ?", lic.ID, true).
			Count(&active).Error; err != nil {
			return err
		}
		if found && existing.Active {
			result.License = lic
			result.Activation = existing
			result.AlreadyActive = true
			result.ActiveDevices = active
			return nil
		}
		if active >= int64(lic.MaxDevices) {
			return ErrDeviceLimitReached
		}

		if found {
			if err := tx.Model(&existing).Updates(map[string]any{
				"active":         true,
				"deactivated_at": nil,
				"ip_address":     req.IPAddress,
			}).Error; err != nil {
				return err
			}
			existing.Active = true
			existing.DeactivatedAt = nil
			existing.IPAddress = req.IPAddress
		} else {
			existing = domain.LicenseActivation{
				LicenseID:         lic.ID,
				DeviceFingerprint: req.DeviceFingerprint,
				IPAddress:         req.IPAddress,
				Active:            true,
			}
			if err := tx.Create(&existing).Error; err != nil {
				return err
			}
		}
		if lic.UserID == nil {
			uid := req.UserID
			if err := tx.Model(&lic).Update("user_id", uid).Error; err != nil {
				return err
			}
			lic.UserID = &uid
		}
		result.License = lic
		result.Activation = existing
		result.ActiveDevices = active + 1
		return nil
	})
	switch {
	case err != nil && errors.Is(err, ErrLicenseNotFound):
		observability.RecordRepositoryOperation(context.Background(), "license", "activate", "not_found")
		return nil, err
	case err != nil:
		observability.RecordRepositoryOperation(context.Background(), "license", "activate", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "license", "activate", "success")
	if expired {
		return &result, ErrLicenseExpired
	}
	return &result, nil
}

func (r *GormLicenseRepository) DeactivateDevice(licenseID uint, deviceFingerprint string, at time.Time) error {
	res := r.db.Model(&domain.LicenseActivation{}).
		Where("license_id = ? AND device_fingerprint = ? AND active = ?", licenseID, deviceFingerprint, true).
		Updates(map[string]any{"active": false, "deactivated_at": at.UTC()})
	if res.Error != nil {
		record("license_activation", "deactivate", res.Error, false)
		return res.Error
	}
	if res.RowsAffected == 0 {
		record("license_activation", "deactivate", nil, true)
		return ErrActivationNotFound
	}
	record("license_activation", "deactivate", nil, false)
	return nil
}

func (r *GormLicenseRepository) CountActiveActivations(licenseID uint) (int64, error) {
	var n int64
	err := r.db.Model(&domain.LicenseActivation{}).
		Where("license_id = ? AND active = ?", licenseID, true).
		Count(&n).Error
	record("license_activation", "count_active", err, false)
	return n, err
}

func (r *GormLicenseRepository) ListPaged(query LicenseListQuery) (PageResult[domain.License], error) {
	req := normalizePageRequest(query.PageRequest)
	result := PageResult[domain.License]{Page: req.Page, PageSize: req.PageSize}

	base := r.db.Model(&domain.License{})
	if query.Status != "" {
		base = base.Where("status = ?", query.Status)
	}
	if query.UserID != nil {
		base = base.Where("user_id = ?", *query.UserID)
	}
	if err := base.Session(&gorm.Session{}).Count(&result.Total).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "license", "list_paged", "error")
		return PageResult[domain.License]{}, err
	}
	offset := (req.Page - 1) * req.PageSize
	if err := base.Order("id DESC").Offset(offset).Limit(req.PageSize).Find(&result.Items).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "license", "list_paged", "error")
		return PageResult[domain.License]{}, err
	}
	result.TotalPages = calcTotalPages(result.Total, req.PageSize)
	observability.RecordRepositoryOperation(context.Background(), "license", "list_paged", "success")
	return result, nil
}
