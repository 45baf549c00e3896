package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
	"github.com/aabhi25/chronalive-v0.9-sub003/pkg/lock"
)

type substitutionRepository interface {
	Create(ctx context.Context, sub *models.Substitution) error
	FindByID(ctx context.Context, id string) (*models.Substitution, error)
	FindConfirmed(ctx context.Context, entryKey string, weekStart time.Time) (*models.Substitution, error)
	UpdateStatus(ctx context.Context, id string, status models.SubstitutionStatus) error
}

type substitutionEntryReader interface {
	FindByID(ctx context.Context, id string) (*models.TimetableEntry, error)
}

// SubstitutionService assigns substitute teachers to uncovered slots. Admin
// assignments land confirmed; non-admin ones land auto_assigned and wait for
// an admin to confirm or reject.
type SubstitutionService struct {
	repo       substitutionRepository
	entries    substitutionEntryReader
	resolver   slotResolver
	candidates candidateValidator
	policy     *AuthorizationPolicy
	locker     lock.Locker
	cache      *CacheService
	audit      auditRecorder
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewSubstitutionService constructs the substitution service.
func NewSubstitutionService(
	repo substitutionRepository,
	entries substitutionEntryReader,
	resolver slotResolver,
	candidates candidateValidator,
	policy *AuthorizationPolicy,
	locker lock.Locker,
	cache *CacheService,
	audit auditRecorder,
	validate *validator.Validate,
	logger *zap.Logger,
) *SubstitutionService {
	if policy == nil {
		policy = NewAuthorizationPolicy()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubstitutionService{
		repo:       repo,
		entries:    entries,
		resolver:   resolver,
		candidates: candidates,
		policy:     policy,
		locker:     locker,
		cache:      cache,
		audit:      audit,
		validator:  validate,
		logger:     logger,
	}
}

// AssignSubstituteRequest covers one uncovered slot with a substitute.
type AssignSubstituteRequest struct {
	ClassID             string `json:"class_id" validate:"required"`
	Date                string `json:"date" validate:"required"`
	Period              int    `json:"period" validate:"required,min=1"`
	SubstituteTeacherID string `json:"substitute_teacher_id" validate:"required"`
}

// AssignSubstitute records a substitute for the slot's current entry. The
// substitute's availability is re-validated under the slot lock, so a
// candidate listed earlier can still be refused here with
// CONFLICTING_ASSIGNMENT.
func (s *SubstitutionService) AssignSubstitute(ctx context.Context, actor *models.JWTClaims, req AssignSubstituteRequest) (*models.Substitution, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid substitution payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
	}
	date = models.DateOnly(date)
	day := models.DayOf(date)
	weekStart := models.WeekStartOf(date)

	release, err := s.locker.Acquire(ctx, classWeekLockKey(req.ClassID, weekStart))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "slot is being edited")
	}
	defer release()

	slot, err := s.resolver.ResolveRef(ctx, actor.SchoolID, req.ClassID, date, req.Period)
	if err != nil {
		return nil, err
	}
	if slot.IsBreak {
		return nil, appErrors.ErrSlotIsBreak
	}
	if slot.Ref == nil {
		return nil, appErrors.Clone(appErrors.ErrEntryNotFound, "slot holds no assignment to substitute")
	}
	entryKey := slot.Ref.Key()

	if existing, err := s.repo.FindConfirmed(ctx, entryKey, weekStart); err == nil && existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "slot already has a confirmed substitution")
	} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up substitutions")
	}

	if err := s.candidates.ValidateCandidate(ctx, actor.SchoolID, req.ClassID, req.SubstituteTeacherID, date, req.Period); err != nil {
		return nil, err
	}

	status := models.SubstitutionAutoAssigned
	if s.policy.CanEditDirect(actor) {
		status = models.SubstitutionConfirmed
	}
	sub := &models.Substitution{
		SchoolID:            actor.SchoolID,
		EntryKey:            entryKey,
		SubstituteTeacherID: req.SubstituteTeacherID,
		Status:              status,
		Day:                 day,
		Period:              req.Period,
		WeekStart:           weekStart,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create substitution")
	}

	s.cache.InvalidateClass(ctx, req.ClassID)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionAssignSlot, "substitutions", sub.ID, sub)
	return sub, nil
}

// Confirm promotes an auto_assigned substitution, re-validating the
// substitute under the slot lock.
func (s *SubstitutionService) Confirm(ctx context.Context, actor *models.JWTClaims, id string) (*models.Substitution, error) {
	return s.transition(ctx, actor, id, models.SubstitutionConfirmed)
}

// Reject retires an auto_assigned substitution. The row stays as history.
func (s *SubstitutionService) Reject(ctx context.Context, actor *models.JWTClaims, id string) (*models.Substitution, error) {
	return s.transition(ctx, actor, id, models.SubstitutionRejected)
}

func (s *SubstitutionService) transition(ctx context.Context, actor *models.JWTClaims, id string, target models.SubstitutionStatus) (*models.Substitution, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	if !s.policy.CanReview(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may review substitutions")
	}

	sub, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("substitution %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitution")
	}
	if sub.Status != models.SubstitutionAutoAssigned {
		return nil, appErrors.Clone(appErrors.ErrConflict, "substitution has already been reviewed")
	}

	classID, err := s.entryClass(ctx, sub.EntryKey)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, classWeekLockKey(classID, sub.WeekStart))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "slot is being edited")
	}
	defer release()

	if target == models.SubstitutionConfirmed {
		date := models.DateFor(sub.WeekStart, sub.Day)
		if err := s.candidates.ValidateCandidate(ctx, sub.SchoolID, classID, sub.SubstituteTeacherID, date, sub.Period); err != nil {
			return nil, err
		}
	}

	if err := s.repo.UpdateStatus(ctx, id, target); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update substitution")
	}
	sub.Status = target

	s.cache.InvalidateClass(ctx, classID)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionReviewChange, "substitutions", sub.ID, sub)
	return sub, nil
}

func (s *SubstitutionService) entryClass(ctx context.Context, entryKey string) (string, error) {
	ref, err := models.ParseEntryKey(entryKey)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if ref.Kind == models.EntryRefSynthetic {
		return ref.ClassID, nil
	}
	entry, err := s.entries.FindByID(ctx, ref.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrEntryNotFound, fmt.Sprintf("entry %s not found", ref.ID))
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entry")
	}
	return entry.ClassID, nil
}
