package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("username or email already exists")
)

type UserRepository interface {
	FindByID(id uint) (*domain.User, error)
	FindByUsername(username string) (*domain.User, error)
	ExistsByUsernameOrEmail(username, email string) (bool, error)
	CreateWithDefaults(user *domain.User, roleName string) error
	SetBan(userID uint, reason *string, at *time.Time) error
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) FindByID(id uint) (*domain.User, error) {
	var u domain.User
	err := r.db.Preload("Roles").Preload("Profile").First(&u, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "find_by_id", "success")
	return &u, nil
}

func (r *GormUserRepository) FindByUsername(username string) (*domain.User, error) {
	var u domain.User
	err := r.db.Preload("Roles").Where("username = ?", username).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user", "find_by_username", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "find_by_username", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "find_by_username", "success")
	return &u, nil
}

func (r *GormUserRepository) ExistsByUsernameOrEmail(username, email string) (bool, error) {
	var count int64
	err := r.db.Model(&domain.User{}).Where("username = ? OR email = ?", username, email).Count(&count).Error
	record("user", "exists_by_username_or_email", err, false)
	return count > 0, err
}

// CreateWithDefaults inserts the user, a profile named after the username and
// the role assignment in one transaction. Unique violations surface as
// ErrUserExists.
func (r *GormUserRepository) CreateWithDefaults(user *domain.User, roleName string) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var role domain.Role
		if err := tx.Where("name = ?", roleName).First(&role).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoleNotFound
			}
			return err
		}
		user.Profile = domain.UserProfile{DisplayName: user.Username}
		user.Roles = []domain.Role{role}
		if err := tx.Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
				return ErrUserExists
			}
			return err
		}
		return nil
	})
	record("user", "create_with_defaults", err, false)
	return err
}

func (r *GormUserRepository) SetBan(userID uint, reason *string, at *time.Time) error {
	res := r.db.Model(&domain.User{}).Where("id = ?", userID).Updates(map[string]any{
		"banned":     at != nil,
		"ban_reason": reason,
		"banned_at":  at,
	})
	if res.Error != nil {
		record("user", "set_ban", res.Error, false)
		return res.Error
	}
	if res.RowsAffected == 0 {
		record("user", "set_ban", nil, true)
		return ErrUserNotFound
	}
	record("user", "set_ban", nil, false)
	return nil
}
