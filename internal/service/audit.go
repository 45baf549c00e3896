package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
)

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// recordAudit writes an audit row on a best-effort basis. Failures are logged
// and never surfaced: an audit outage must not block schedule operations.
func recordAudit(ctx context.Context, recorder auditRecorder, logger *zap.Logger, actor *models.JWTClaims, action, resource, resourceID string, payload interface{}) {
	if recorder == nil {
		return
	}
	entry := &models.AuditLog{
		ID:        uuid.NewString(),
		Action:    action,
		Resource:  resource,
		CreatedAt: time.Now().UTC(),
	}
	if actor != nil {
		userID := actor.UserID
		entry.UserID = &userID
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			entry.NewValues = raw
		}
	}
	if err := recorder.CreateAuditLog(ctx, entry); err != nil && logger != nil {
		logger.Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}
