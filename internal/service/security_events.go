package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sandeepkv93/secure-loader-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/events"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-loader-auth-service/internal/repository"
)

// SecurityEventRecorder persists security events, logs them and forwards
// them to the event bus. Failures are logged and never returned, so a
// rejection path always surfaces its own error.
type SecurityEventRecorder struct {
	repo      repository.SecurityEventRepository
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewSecurityEventRecorder(repo repository.SecurityEventRepository, publisher events.Publisher, logger *slog.Logger) *SecurityEventRecorder {
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityEventRecorder{repo: repo, publisher: publisher, logger: logger, now: time.Now}
}

func (r *SecurityEventRecorder) Record(ctx context.Context, eventType domain.SecurityEventType, userID *uint, ip, description string) {
	now := r.now().UTC()
	ev := &domain.SecurityEvent{
		UserID:      userID,
		Type:        eventType,
		Description: description,
		IPAddress:   ip,
		Severity:    eventType.Severity(),
		CreatedAt:   now,
	}
	observability.RecordSecurityEvent(ctx, string(eventType))
	r.logger.WarnContext(ctx, "security event",
		"type", string(eventType),
		"user_id", userIDAttr(userID),
		"ip", ip,
		"severity", ev.Severity,
		"description", description,
	)
	if err := r.repo.Create(ev); err != nil {
		r.logger.ErrorContext(ctx, "persist security event failed", "type", string(eventType), "error", err)
	}
	if err := r.publisher.Publish(ctx, events.SecurityEventMessage{
		Type:        string(eventType),
		UserID:      userID,
		Description: description,
		IPAddress:   ip,
		Severity:    ev.Severity,
		OccurredAt:  now,
	}); err != nil {
		r.logger.ErrorContext(ctx, "publish security event failed", "type", string(eventType), "error", err)
	}
}

type AuditRecorder struct {
	repo   repository.AuditLogRepository
	logger *slog.Logger
}

func NewAuditRecorder(repo repository.AuditLogRepository, logger *slog.Logger) *AuditRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditRecorder{repo: repo, logger: logger}
}

func (a *AuditRecorder) Record(ctx context.Context, action domain.AuditAction, userID *uint, ip, userAgent, details string) {
	observability.AuditContext(ctx, a.logger, string(action), "user_id", userIDAttr(userID), "ip", ip, "details", details)
	if err := a.repo.Create(&domain.AuditLog{
		UserID:    userID,
		Action:    action,
		Details:   details,
		IPAddress: ip,
		UserAgent: userAgent,
	}); err != nil {
		a.logger.ErrorContext(ctx, "persist audit log failed", "action", string(action), "error", err)
	}
}

func userIDAttr(id *uint) any {
	if id == nil {
		return nil
	}
	return *id
}

func uintRef(v uint) *uint { return &v }
