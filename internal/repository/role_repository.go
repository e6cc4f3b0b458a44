package repository

import (
	"context"
	"errors"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"
	"gorm.io/gorm"
)

var ErrRoleNotFound = errors.New("role not found")

type RoleRepository interface {
	FindByName(name string) (*domain.Role, error)
	AssignToUser(userID uint, roleName string) error
}

type GormRoleRepository struct{ db *gorm.DB }

func NewRoleRepository(db *gorm.DB) RoleRepository { return &GormRoleRepository{db: db} }

func (r *GormRoleRepository) FindByName(name string) (*domain.Role, error) {
	var role domain.Role
	err := r.db.Where("name = ?", name).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "role", "find_by_name", "not_found")
			return nil, ErrRoleNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "role", "find_by_name", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "role", "find_by_name", "success")
	return &role, nil
}

func (r *GormRoleRepository) AssignToUser(userID uint, roleName string) error {
	role, err := r.FindByName(roleName)
	if err != nil {
		return err
	}
	u := domain.User{ID: userID}
	if err := r.db.Model(&u).Association("Roles").Append(role); err != nil {
		observability.RecordRepositoryOperation(context.Background(), "role", "assign_to_user", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "role", "assign_to_user", "success")
	return nil
}
