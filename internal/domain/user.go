package domain

import "time"

const (
	RoleRegularUser = "REGULAR_USER"
	RoleAdmin       = "ADMIN"
)

type User struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Username     string      `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email        string      `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string      `gorm:"size:255;not null" json:"-"`
	Banned       bool        `gorm:"index;not null;default:false" json:"banned"`
	BanReason    *string     `gorm:"size:512" json:"ban_reason,omitempty"`
	BannedAt     *time.Time  `json:"banned_at,omitempty"`
	Roles        []Role      `gorm:"many2many:user_roles;" json:"roles,omitempty"`
	Profile      UserProfile `gorm:"constraint:OnDelete:CASCADE;" json:"profile"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type UserProfile struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	UserID      uint      `gorm:"uniqueIndex;not null" json:"-"`
	DisplayName string    `gorm:"size:128" json:"display_name"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

type Role struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:64;uniqueIndex;not null" json:"name"`
	Description string    `gorm:"size:255" json:"description"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}
