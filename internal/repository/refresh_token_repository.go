package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"

	"gorm.io/gorm"
)

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

const (
	RevokeReasonRotated       = "rotated"
	RevokeReasonReuseDetected = "reuse_detected"
	RevokeReasonLogout        = "logout"
	RevokeReasonBanned        = "banned"
)

type RefreshTokenRepository interface {
	Create(t *domain.RefreshToken) error
	FindByHash(hash string) (*domain.RefreshToken, error)
	Rotate(oldHash string, now time.Time, next *domain.RefreshToken) (*domain.RefreshToken, error)
	MarkReuseDetected(hash string, at time.Time) error
	RevokeFamily(familyID, reason string, at time.Time) (int64, error)
	RevokeBySessionID(sessionID, reason string, at time.Time) (int64, error)
	RevokeByUserID(userID uint, reason string, at time.Time) (int64, error)
}

type GormRefreshTokenRepository struct{ db *gorm.DB }

func NewRefreshTokenRepository(db *gorm.DB) RefreshTokenRepository {
	return &GormRefreshTokenRepository{db: db}
}

func (r *GormRefreshTokenRepository) Create(t *domain.RefreshToken) error {
	err := r.db.Create(t).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "refresh_token", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "refresh_token", "create", "success")
	return nil
}

func (r *GormRefreshTokenRepository) FindByHash(hash string) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := r.db.Where("token_hash = ?", hash).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "refresh_token", "find_by_hash", "not_found")
			return nil, ErrRefreshTokenNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "refresh_token", "find_by_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "refresh_token", "find_by_hash", "success")
	return &t, nil
}

// Rotate revokes the token identified by oldHash and inserts next in one
// transaction. The revoke is a conditional update on the token still being
// unrevoked and unexpired, so concurrent callers presenting the same token
// see exactly one RowsAffected == 1; every other caller gets
// ErrRefreshTokenNotFound.
func (r *GormRefreshTokenRepository) Rotate(oldHash string, now time.Time, next *domain.RefreshToken) (*domain.RefreshToken, error) {
	var old domain.RefreshToken
	err := r.db.Transaction(func(tx *gorm.DB) error {
		reason := RevokeReasonRotated
		res := tx.Model(&domain.RefreshToken{}).
			Where("token_hash = ? AND revoked = ? AND expires_at > ?", oldHash, false, now.UTC()).
			Updates(map[string]any{"revoked": true, "revoked_at": now.UTC(), "revoked_reason": reason})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrRefreshTokenNotFound
		}
		if err := tx.Where("token_hash = ?", oldHash).First(&old).Error; err != nil {
			return err
		}
		next.FamilyID = old.FamilyID
		next.ParentID = &old.ID
		return tx.Create(next).Error
	})
	if err != nil {
		if errors.Is(err, ErrRefreshTokenNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "refresh_token", "rotate", "not_found")
		} else {
			observability.RecordRepositoryOperation(context.Background(), "refresh_token", "rotate", "error")
		}
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "refresh_token", "rotate", "success")
	return &old, nil
}

func (r *GormRefreshTokenRepository) MarkReuseDetected(hash string, at time.Time) error {
	err := r.db.Model(&domain.RefreshToken{}).
		Where("token_hash = ?", hash).
		Updates(map[string]any{"reuse_detected_at": at.UTC()}).Error
	record("refresh_token", "mark_reuse_detected", err, false)
	return err
}

func (r *GormRefreshTokenRepository) RevokeFamily(familyID, reason string, at time.Time) (int64, error) {
	return r.revokeWhere("revoke_family", reason, at, "family_id = ?", familyID)
}

func (r *GormRefreshTokenRepository) RevokeBySessionID(sessionID, reason string, at time.Time) (int64, error) {
	return r.revokeWhere("revoke_by_session_id", reason, at, "session_id = ?", sessionID)
}

func (r *GormRefreshTokenRepository) RevokeByUserID(userID uint, reason string, at time.Time) (int64, error) {
	return r.revokeWhere("revoke_by_user_id", reason, at, "user_id = ?", userID)
}

func (r *GormRefreshTokenRepository) revokeWhere(op, reason string, at time.Time, query string, arg any) (int64, error) {
	res := r.db.Model(&domain.RefreshToken{}).
		Where(query, arg).
		Where("revoked = ?", false).
		Updates(map[string]any{"revoked": true, "revoked_at": at.UTC(), "revoked_reason": reason})
	record("refresh_token", op, res.Error, false)
	return res.RowsAffected, res.Error
}
