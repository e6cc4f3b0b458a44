package domain

import "time"

// Session is the persisted audit copy of a login. Validation reads the cache
// copy keyed by ID; this row only records what happened.
type Session struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	UserID            uint       `gorm:"index;not null" json:"user_id"`
	DeviceFingerprint string     `gorm:"size:255;not null" json:"device_fingerprint"`
	DeviceBound       bool       `gorm:"not null" json:"device_bound"`
	IPAddress         string     `gorm:"size:64" json:"ip_address"`
	UserAgent         string     `gorm:"size:512" json:"user_agent"`
	ExpiresAt         time.Time  `gorm:"index;not null" json:"expires_at"`
	Active            bool       `gorm:"index;not null" json:"active"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// SessionMetadata is the cache-resident copy of a session used by validation.
type SessionMetadata struct {
	UserID            uint   `json:"user_id"`
	DeviceFingerprint string `json:"device_fingerprint"`
	IPAddress         string `json:"ip_address"`
	UserAgent         string `json:"user_agent"`
	CreatedAt         int64  `json:"created_at"`
}

type RefreshToken struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	TokenHash       string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	UserID          uint       `gorm:"index;not null" json:"user_id"`
	SessionID       string     `gorm:"size:36;index" json:"session_id"`
	FamilyID        string     `gorm:"size:36;index;not null" json:"-"`
	ParentID        *uint      `gorm:"index" json:"-"`
	ExpiresAt       time.Time  `gorm:"index;not null" json:"expires_at"`
	Revoked         bool       `gorm:"index;not null;default:false" json:"revoked"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
	RevokedReason   *string    `gorm:"size:64" json:"revoked_reason,omitempty"`
	ReuseDetectedAt *time.Time `json:"reuse_detected_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}
