package domain

import "time"

type SecurityEventType string

const (
	SecurityEventFailedLogin       SecurityEventType = "MULTIPLE_FAILED_LOGINS"
	SecurityEventDeviceChange      SecurityEventType = "DEVICE_CHANGE"
	SecurityEventIPChange          SecurityEventType = "IP_CHANGE"
	SecurityEventReplayAttempt     SecurityEventType = "REPLAY_ATTEMPT"
	SecurityEventRefreshTokenReuse SecurityEventType = "REFRESH_TOKEN_REUSE"
	SecurityEventInvalidChallenge  SecurityEventType = "INVALID_CHALLENGE"
)

// Severity on a 1-10 scale.
func (t SecurityEventType) Severity() int {
	if t == SecurityEventInvalidChallenge {
		return 8
	}
	return 7
}

type SecurityEvent struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	UserID      *uint             `gorm:"index" json:"user_id,omitempty"`
	Type        SecurityEventType `gorm:"size:64;index;not null" json:"type"`
	Description string            `gorm:"size:512" json:"description"`
	IPAddress   string            `gorm:"size:64" json:"ip_address"`
	Severity    int               `gorm:"not null" json:"severity"`
	CreatedAt   time.Time         `gorm:"index" json:"created_at"`
}

type AuditAction string

const (
	AuditUserRegister    AuditAction = "USER_REGISTER"
	AuditUserLogin       AuditAction = "USER_LOGIN"
	AuditUserLogout      AuditAction = "USER_LOGOUT"
	AuditTokenRefresh    AuditAction = "TOKEN_REFRESH"
	AuditLoaderLogin     AuditAction = "LOADER_LOGIN"
	AuditLicenseGenerate AuditAction = "LICENSE_GENERATE"
	AuditLicenseActivate AuditAction = "LICENSE_ACTIVATE"
	AuditLicenseRevoke   AuditAction = "LICENSE_REVOKE"
	AuditUserBan         AuditAction = "USER_BAN"
	AuditUserUnban       AuditAction = "USER_UNBAN"
)

type AuditLog struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	UserID    *uint       `gorm:"index" json:"user_id,omitempty"`
	Action    AuditAction `gorm:"size:64;index;not null" json:"action"`
	Details   string      `gorm:"type:text" json:"details"`
	IPAddress string      `gorm:"size:64" json:"ip_address"`
	UserAgent string      `gorm:"size:512" json:"user_agent"`
	CreatedAt time.Time   `gorm:"index" json:"created_at"`
}
