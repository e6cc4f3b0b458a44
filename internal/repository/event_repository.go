package repository

import (
	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"

	"gorm.io/gorm"
)

type SecurityEventRepository interface {
	Create(e *domain.SecurityEvent) error
	ListByUserID(userID uint, limit int) ([]domain.SecurityEvent, error)
	CountByType(eventType domain.SecurityEventType) (int64, error)
}

type GormSecurityEventRepository struct{ db *gorm.DB }

func NewSecurityEventRepository(db *gorm.DB) SecurityEventRepository {
	return &GormSecurityEventRepository{db: db}
}

func (r *GormSecurityEventRepository) Create(e *domain.SecurityEvent) error {
	err := r.db.Create(e).Error
	record("security_event", "create", err, false)
	return err
}

func (r *GormSecurityEventRepository) ListByUserID(userID uint, limit int) ([]domain.SecurityEvent, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}
	var events []domain.SecurityEvent
	err := r.db.Where("user_id = ?", userID).Order("id DESC").Limit(limit).Find(&events).Error
	record("security_event", "list_by_user_id", err, false)
	return events, err
}

func (r *GormSecurityEventRepository) CountByType(eventType domain.SecurityEventType) (int64, error) {
	var n int64
	err := r.db.Model(&domain.SecurityEvent{}).Where("type = ?", eventType).Count(&n).Error
	record("security_event", "count_by_type", err, false)
	return n, err
}

type AuditLogRepository interface {
	Create(a *domain.AuditLog) error
	ListByUserID(userID uint, limit int) ([]domain.AuditLog, error)
}

type GormAuditLogRepository struct{ db *gorm.DB }

func NewAuditLogRepository(db *gorm.DB) AuditLogRepository { return &GormAuditLogRepository{db: db} }

func (r *GormAuditLogRepository) Create(a *domain.AuditLog) error {
	err := r.db.Create(a).Error
	record("audit_log", "create", err, false)
	return err
}

func (r *GormAuditLogRepository) ListByUserID(userID uint, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultPageSize
	}
	var logs []domain.AuditLog
	err := r.db.Where("user_id = ?", userID).Order("id DESC").Limit(limit).Find(&logs).Error
	record("audit_log", "list_by_user_id", err, false)
	return logs, err
}
