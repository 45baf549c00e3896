package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
)

const freezeSettingKey = "timetable_frozen"

type settingsRepository interface {
	GetBool(ctx context.Context, schoolID, key string) (bool, error)
	SetBool(ctx context.Context, schoolID, key string, value bool) error
}

// FreezeService owns the school-wide freeze flag. The flag is a coarse guard
// for bulk operations only; per-slot edits and the approval workflow stay
// available while frozen.
type FreezeService struct {
	settings settingsRepository
	policy   *AuthorizationPolicy
	audit    auditRecorder
	logger   *zap.Logger
}

// NewFreezeService constructs the freeze gate.
func NewFreezeService(settings settingsRepository, policy *AuthorizationPolicy, audit auditRecorder, logger *zap.Logger) *FreezeService {
	if policy == nil {
		policy = NewAuthorizationPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FreezeService{settings: settings, policy: policy, audit: audit, logger: logger}
}

// IsFrozen reports the current flag value. Missing setting rows read false.
func (s *FreezeService) IsFrozen(ctx context.Context, schoolID string) (bool, error) {
	frozen, err := s.settings.GetBool(ctx, schoolID, freezeSettingKey)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read freeze flag")
	}
	return frozen, nil
}

// Set flips the flag. Admin only.
func (s *FreezeService) Set(ctx context.Context, actor *models.JWTClaims, frozen bool) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	if !s.policy.CanToggleFreeze(actor) {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may toggle the freeze flag")
	}
	if err := s.settings.SetBool(ctx, actor.SchoolID, freezeSettingKey, frozen); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write freeze flag")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionFreezeToggle, "school_settings", actor.SchoolID, map[string]bool{"frozen": frozen})
	return nil
}

// GuardBulk fails with FROZEN_SCHEDULE when the school is frozen. Callers
// invoke it at the top of every bulk mutation.
func (s *FreezeService) GuardBulk(ctx context.Context, schoolID string) error {
	frozen, err := s.IsFrozen(ctx, schoolID)
	if err != nil {
		return err
	}
	if frozen {
		return appErrors.ErrFrozenSchedule
	}
	return nil
}
