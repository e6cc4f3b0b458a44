package domain

import (
	"strings"
	"time"
)

type LicenseType string

const (
	LicenseTypeTrial        LicenseType = "TRIAL"
	LicenseTypeSubscription LicenseType = "SUBSCRIPTION"
	LicenseTypeLifetime     LicenseType = "LIFETIME"
)

func (t LicenseType) Valid() bool {
	switch t {
	case LicenseTypeTrial, LicenseTypeSubscription, LicenseTypeLifetime:
		return true
	}
	return false
}

type LicenseStatus string

const (
	LicenseStatusActive  LicenseStatus = "ACTIVE"
	LicenseStatusExpired LicenseStatus = "EXPIRED"
	LicenseStatusRevoked LicenseStatus = "REVOKED"
)

func (s LicenseStatus) Lower() string { return strings.ToLower(string(s)) }

type License struct {
	ID          uint                `gorm:"primaryKey" json:"id"`
	Key         string              `gorm:"column:license_key;size:32;uniqueIndex;not null" json:"key"`
	Type        LicenseType         `gorm:"size:16;not null" json:"type"`
	Status      LicenseStatus       `gorm:"size:16;index;not null" json:"status"`
	MaxDevices  int                 `gorm:"not null;default:1" json:"max_devices"`
	ExpiresAt   *time.Time          `gorm:"index" json:"expires_at,omitempty"`
	UserID      *uint               `gorm:"index" json:"user_id,omitempty"`
	Activations []LicenseActivation `gorm:"constraint:OnDelete:CASCADE;" json:"activations,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// ExpiredAt reports whether the license is past its expiry at now. A license
// whose expiry equals now is already expired.
func (l *License) ExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && !now.Before(*l.ExpiresAt)
}

type LicenseActivation struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	LicenseID         uint       `gorm:"uniqueIndex:idx_activation_license_device;not null" json:"license_id"`
	DeviceFingerprint string     `gorm:"size:255;uniqueIndex:idx_activation_license_device;not null" json:"device_fingerprint"`
	IPAddress         string     `gorm:"size:64" json:"ip_address"`
	Active            bool       `gorm:"index;not null" json:"active"`
	DeactivatedAt     *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
