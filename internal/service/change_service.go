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

type changeRepository interface {
	Create(ctx context.Context, change *models.TimetableChange) error
	FindByID(ctx context.Context, id string) (*models.TimetableChange, error)
	FindPendingByEntry(ctx context.Context, entryKey string, weekStart time.Time) (*models.TimetableChange, error)
	List(ctx context.Context, filter models.ChangeFilter) ([]models.TimetableChange, error)
	Review(ctx context.Context, id string, status models.ChangeStatus, reviewerID string) error
}

type changeEntryReader interface {
	FindByID(ctx context.Context, id string) (*models.TimetableEntry, error)
}

type changeWeeklyWriter interface {
	Upsert(ctx context.Context, entry *models.WeeklyEntry) error
}

// ChangeService runs the approval workflow: anyone may propose, admins
// review, terminal rows are history. A rejected proposal is never reopened;
// re-proposing creates a fresh row.
type ChangeService struct {
	repo       changeRepository
	entries    changeEntryReader
	weekly     changeWeeklyWriter
	candidates candidateValidator
	policy     *AuthorizationPolicy
	locker     lock.Locker
	cache      *CacheService
	metrics    *MetricsService
	audit      auditRecorder
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewChangeService constructs the workflow service.
func NewChangeService(
	repo changeRepository,
	entries changeEntryReader,
	weekly changeWeeklyWriter,
	candidates candidateValidator,
	policy *AuthorizationPolicy,
	locker lock.Locker,
	cache *CacheService,
	metrics *MetricsService,
	audit auditRecorder,
	validate *validator.Validate,
	logger *zap.Logger,
) *ChangeService {
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
	return &ChangeService{
		repo:       repo,
		entries:    entries,
		weekly:     weekly,
		candidates: candidates,
		policy:     policy,
		locker:     locker,
		cache:      cache,
		metrics:    metrics,
		audit:      audit,
		validator:  validate,
		logger:     logger,
	}
}

// ProposeChangeRequest raises a change against one entry for one week.
type ProposeChangeRequest struct {
	EntryKey     string  `json:"entry_key" validate:"required"`
	WeekStart    string  `json:"week_start" validate:"required"`
	NewTeacherID *string `json:"new_teacher_id"`
	ChangeType   string  `json:"change_type" validate:"omitempty,oneof=substitution reassignment"`
}

// Propose creates a pending change. At most one pending row exists per
// (entry, week); a duplicate proposal returns the existing row.
func (s *ChangeService) Propose(ctx context.Context, actor *models.JWTClaims, req ProposeChangeRequest) (*models.TimetableChange, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	if !s.policy.CanPropose(actor) {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change payload")
	}
	weekStart, err := time.Parse("2006-01-02", req.WeekStart)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "week_start must be formatted as YYYY-MM-DD")
	}
	weekStart = models.WeekStartOf(weekStart)

	ref, day, period, err := s.entrySlot(ctx, req.EntryKey)
	if err != nil {
		return nil, err
	}
	if ref.Kind == models.EntryRefSynthetic && !ref.WeekStart.Equal(weekStart) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "entry key belongs to a different week")
	}

	existing, err := s.repo.FindPendingByEntry(ctx, req.EntryKey, weekStart)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up pending changes")
	}
	if existing != nil {
		return existing, nil
	}

	changeType := models.ChangeType(req.ChangeType)
	if changeType == "" {
		changeType = models.ChangeTypeSubstitution
	}
	change := &models.TimetableChange{
		SchoolID:     actor.SchoolID,
		EntryKey:     req.EntryKey,
		ChangeType:   changeType,
		NewTeacherID: req.NewTeacherID,
		Day:          day,
		Period:       period,
		WeekStart:    weekStart,
		ProposedBy:   actor.UserID,
	}
	if err := s.repo.Create(ctx, change); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create change proposal")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionProposeChange, "timetable_changes", change.ID, change)
	return change, nil
}

// Approve moves a pending change into approved, re-validating the proposed
// teacher's availability under the slot lock first. A reassignment to a new
// teacher becomes visible through resolution alone; an approved deletion
// (nil new teacher) is materialized as an explicit free weekly row, the same
// write an admin deletion performs directly.
func (s *ChangeService) Approve(ctx context.Context, actor *models.JWTClaims, changeID string) (*models.TimetableChange, error) {
	return s.review(ctx, actor, changeID, models.ChangeStatusApproved)
}

// Reject moves a pending change into rejected. The row stays as history.
func (s *ChangeService) Reject(ctx context.Context, actor *models.JWTClaims, changeID string) (*models.TimetableChange, error) {
	return s.review(ctx, actor, changeID, models.ChangeStatusRejected)
}

// List returns change history for the filter.
func (s *ChangeService) List(ctx context.Context, filter models.ChangeFilter) ([]models.TimetableChange, error) {
	changes, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list changes")
	}
	return changes, nil
}

func (s *ChangeService) review(ctx context.Context, actor *models.JWTClaims, changeID string, verdict models.ChangeStatus) (*models.TimetableChange, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	if !s.policy.CanReview(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may review changes")
	}

	change, err := s.repo.FindByID(ctx, changeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("change %s not found", changeID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load change")
	}
	if change.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "change has already been reviewed")
	}

	classID, err := s.entryClass(ctx, change.EntryKey)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, classWeekLockKey(classID, change.WeekStart))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "slot is being edited")
	}
	defer release()

	if verdict == models.ChangeStatusApproved && change.NewTeacherID != nil {
		date := models.DateFor(change.WeekStart, change.Day)
		if err := s.candidates.ValidateCandidate(ctx, change.SchoolID, classID, *change.NewTeacherID, date, change.Period); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Review(ctx, changeID, verdict, actor.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "change was reviewed concurrently")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review change")
	}

	change.Status = verdict
	reviewerID := actor.UserID
	now := time.Now().UTC()
	change.ApprovedBy = &reviewerID
	change.ReviewedAt = &now

	if verdict == models.ChangeStatusApproved && change.NewTeacherID == nil {
		override := &models.WeeklyEntry{
			SchoolID:   change.SchoolID,
			ClassID:    classID,
			WeekStart:  change.WeekStart,
			Day:        change.Day,
			Period:     change.Period,
			IsModified: true,
		}
		if err := s.weekly.Upsert(ctx, override); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply approved deletion")
		}
	}

	s.cache.InvalidateClass(ctx, classID)
	if s.metrics != nil {
		s.metrics.RecordChangeReview(string(verdict))
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionReviewChange, "timetable_changes", change.ID, change)
	return change, nil
}

// entrySlot resolves the (day, period) coordinates behind an entry key.
func (s *ChangeService) entrySlot(ctx context.Context, entryKey string) (models.EntryRef, models.DayName, int, error) {
	ref, err := models.ParseEntryKey(entryKey)
	if err != nil {
		return models.EntryRef{}, "", 0, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if ref.Kind == models.EntryRefSynthetic {
		return ref, ref.Day, ref.Period, nil
	}
	entry, err := s.entries.FindByID(ctx, ref.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.EntryRef{}, "", 0, appErrors.Clone(appErrors.ErrEntryNotFound, fmt.Sprintf("entry %s not found", ref.ID))
		}
		return models.EntryRef{}, "", 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entry")
	}
	return ref, entry.Day, entry.Period, nil
}

func (s *ChangeService) entryClass(ctx context.Context, entryKey string) (string, error) {
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
