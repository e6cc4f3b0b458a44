package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"

	"gorm.io/gorm"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(s *domain.Session) error
	FindByID(id string) (*domain.Session, error)
	ListActiveByUserID(userID uint) ([]domain.Session, error)
	Deactivate(id string, at time.Time) (bool, error)
	DeactivateByUserID(userID uint, at time.Time) (int64, error)
	CleanupExpired(now time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(s *domain.Session) error {
	err := r.db.Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByID(id string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "find_by_id", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "session", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "find_by_id", "success")
	return &s, nil
}

func (r *GormSessionRepository) ListActiveByUserID(userID uint) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.Where("user_id = ? AND active = ? AND expires_at > ?", userID, true, time.Now().UTC()).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "list_active_by_user_id", "error")
		return sessions, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "list_active_by_user_id", "success")
	return sessions, nil
}

// Deactivate reports whether a still-active row was ended. A missing or
// already inactive session is not an error.
func (r *GormSessionRepository) Deactivate(id string, at time.Time) (bool, error) {
	res := r.db.Model(&domain.Session{}).
		Where("id = ? AND active = ?", id, true).
		Updates(map[string]any{"active": false, "ended_at": at.UTC()})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "deactivate", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "deactivate", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) DeactivateByUserID(userID uint, at time.Time) (int64, error) {
	res := r.db.Model(&domain.Session{}).
		Where("user_id = ? AND active = ?", userID, true).
		Updates(map[string]any{"active": false, "ended_at": at.UTC()})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "deactivate_by_user_id", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "deactivate_by_user_id", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) CleanupExpired(now time.Time) (int64, error) {
	res := r.db.Model(&domain.Session{}).
		Where("active = ? AND expires_at <= ?", true, now.UTC()).
		Updates(map[string]any{"active": false, "ended_at": now.UTC()})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "cleanup_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "cleanup_expired", "success")
	return res.RowsAffected, nil
}
