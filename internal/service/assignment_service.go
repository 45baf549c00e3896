package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
	"github.com/aabhi25/chronalive-v0.9-sub003/pkg/lock"
)

// AssignScope selects the write path for a manual edit.
type AssignScope string

const (
	// ScopeWeekly writes the current week's override row directly.
	ScopeWeekly AssignScope = "weekly"
	// ScopeGlobalWithApproval raises a pending change instead of writing.
	ScopeGlobalWithApproval AssignScope = "global_with_approval"
)

type assignmentWeeklyRepository interface {
	Upsert(ctx context.Context, entry *models.WeeklyEntry) error
	ListByClassWeek(ctx context.Context, classID string, weekStart time.Time) ([]models.WeeklyEntry, error)
	DeleteByClassWeekWithTx(ctx context.Context, tx *sqlx.Tx, classID string, weekStart time.Time) error
	BulkInsertWithTx(ctx context.Context, tx *sqlx.Tx, entries []models.WeeklyEntry) error
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type assignmentGlobalRepository interface {
	ListByClass(ctx context.Context, classID string) ([]models.TimetableEntry, error)
	ReplaceClassWithTx(ctx context.Context, tx *sqlx.Tx, classID string, entries []models.TimetableEntry) error
}

type assignmentChangeRepository interface {
	Create(ctx context.Context, change *models.TimetableChange) error
	FindPendingByEntry(ctx context.Context, entryKey string, weekStart time.Time) (*models.TimetableChange, error)
}

type assignmentStructureReader interface {
	GetActive(ctx context.Context, schoolID string) (*models.TimetableStructure, error)
}

type slotResolver interface {
	ResolveRef(ctx context.Context, schoolID, classID string, date time.Time, period int) (*models.EffectiveSlot, error)
}

type candidateValidator interface {
	ValidateCandidate(ctx context.Context, schoolID, classID, teacherID string, date time.Time, period int) error
}

type bulkGuard interface {
	GuardBulk(ctx context.Context, schoolID string) error
}

// AssignmentService is the edit router: it decides, per request, whether a
// manual edit lands as a weekly override, a global promotion or a pending
// change proposal. Global rows are never mutated by a single-slot edit; weekly
// governance absorbs every direct write.
type AssignmentService struct {
	weekly     assignmentWeeklyRepository
	global     assignmentGlobalRepository
	changes    assignmentChangeRepository
	structures assignmentStructureReader
	resolver   slotResolver
	candidates candidateValidator
	freeze     bulkGuard
	policy     *AuthorizationPolicy
	locker     lock.Locker
	cache      *CacheService
	audit      auditRecorder
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewAssignmentService constructs the edit router.
func NewAssignmentService(
	weekly assignmentWeeklyRepository,
	global assignmentGlobalRepository,
	changes assignmentChangeRepository,
	structures assignmentStructureReader,
	resolver slotResolver,
	candidates candidateValidator,
	freeze bulkGuard,
	policy *AuthorizationPolicy,
	locker lock.Locker,
	cache *CacheService,
	audit auditRecorder,
	validate *validator.Validate,
	logger *zap.Logger,
) *AssignmentService {
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
	return &AssignmentService{
		weekly:     weekly,
		global:     global,
		changes:    changes,
		structures: structures,
		resolver:   resolver,
		candidates: candidates,
		freeze:     freeze,
		policy:     policy,
		locker:     locker,
		cache:      cache,
		audit:      audit,
		validator:  validate,
		logger:     logger,
	}
}

// AssignSlotRequest describes a manual slot edit.
type AssignSlotRequest struct {
	ClassID   string  `json:"class_id" validate:"required"`
	Date      string  `json:"date" validate:"required"`
	Period    int     `json:"period" validate:"required,min=1"`
	TeacherID *string `json:"teacher_id"`
	SubjectID *string `json:"subject_id"`
	Room      *string `json:"room"`
	Scope     string  `json:"scope" validate:"required,oneof=weekly global_with_approval"`
}

// AssignResult reports which path an edit took.
type AssignResult struct {
	Scope  AssignScope             `json:"scope"`
	Entry  *models.WeeklyEntry     `json:"entry,omitempty"`
	Change *models.TimetableChange `json:"change,omitempty"`
}

func classWeekLockKey(classID string, weekStart time.Time) string {
	return fmt.Sprintf("class:%s:week:%s", classID, weekStart.Format("2006-01-02"))
}

// AssignSlot writes one slot. Scope weekly upserts the current week's
// override row; scope global_with_approval raises a pending change that has
// no effect until approved. Single-slot edits are never blocked by freeze.
func (s *AssignmentService) AssignSlot(ctx context.Context, actor *models.JWTClaims, req AssignSlotRequest) (*AssignResult, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
	}
	date = models.DateOnly(date)
	day := models.DayOf(date)
	weekStart := models.WeekStartOf(date)

	if err := s.checkSlot(ctx, actor.SchoolID, day, req.Period); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, classWeekLockKey(req.ClassID, weekStart))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "slot is being edited")
	}
	defer release()

	// Re-validated under the lock so the answer stays true for the write.
	if req.TeacherID != nil {
		if err := s.candidates.ValidateCandidate(ctx, actor.SchoolID, req.ClassID, *req.TeacherID, date, req.Period); err != nil {
			return nil, err
		}
	}

	switch AssignScope(req.Scope) {
	case ScopeWeekly:
		entry := &models.WeeklyEntry{
			SchoolID:   actor.SchoolID,
			ClassID:    req.ClassID,
			WeekStart:  weekStart,
			Day:        day,
			Period:     req.Period,
			TeacherID:  req.TeacherID,
			SubjectID:  req.SubjectID,
			Room:       req.Room,
			IsModified: true,
		}
		if err := s.weekly.Upsert(ctx, entry); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write weekly entry")
		}
		s.cache.InvalidateClass(ctx, req.ClassID)
		recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionAssignSlot, "weekly_entries", entry.ID, entry)
		return &AssignResult{Scope: ScopeWeekly, Entry: entry}, nil

	case ScopeGlobalWithApproval:
		slot, err := s.resolver.ResolveRef(ctx, actor.SchoolID, req.ClassID, date, req.Period)
		if err != nil {
			return nil, err
		}
		if slot.Ref == nil {
			return nil, appErrors.Clone(appErrors.ErrEntryNotFound, "slot holds no assignment to change")
		}
		change, err := s.proposeChange(ctx, actor, slot.Ref.Key(), models.ChangeTypeReassignment, req.TeacherID, day, req.Period, weekStart)
		if err != nil {
			return nil, err
		}
		return &AssignResult{Scope: ScopeGlobalWithApproval, Change: change}, nil

	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported scope %q", req.Scope))
	}
}

// DeleteSlotRequest identifies one effective slot to clear.
type DeleteSlotRequest struct {
	ClassID string `json:"class_id" validate:"required"`
	Date    string `json:"date" validate:"required"`
	Period  int    `json:"period" validate:"required,min=1"`
}

// DeleteSlot clears one effective slot. A synthetic weekly identity is freed
// with a null override row. A global identity is freed the same way for
// admins, since a touched week supersedes global; non-admin deletes route
// through the approval workflow instead.
func (s *AssignmentService) DeleteSlot(ctx context.Context, actor *models.JWTClaims, req DeleteSlotRequest) (*AssignResult, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid delete payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
	}
	date = models.DateOnly(date)
	day := models.DayOf(date)
	weekStart := models.WeekStartOf(date)

	if err := s.checkSlot(ctx, actor.SchoolID, day, req.Period); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, classWeekLockKey(req.ClassID, weekStart))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "slot is being edited")
	}
	defer release()

	slot, err := s.resolver.ResolveRef(ctx, actor.SchoolID, req.ClassID, date, req.Period)
	if err != nil {
		return nil, err
	}
	if slot.Ref == nil {
		return nil, appErrors.Clone(appErrors.ErrEntryNotFound, "slot is already free")
	}

	if slot.Ref.Kind == models.EntryRefStable && !s.policy.CanEditDirect(actor) {
		change, err := s.proposeChange(ctx, actor, slot.Ref.Key(), models.ChangeTypeReassignment, nil, day, req.Period, weekStart)
		if err != nil {
			return nil, err
		}
		return &AssignResult{Scope: ScopeGlobalWithApproval, Change: change}, nil
	}

	entry := &models.WeeklyEntry{
		SchoolID:   actor.SchoolID,
		ClassID:    req.ClassID,
		WeekStart:  weekStart,
		Day:        day,
		Period:     req.Period,
		IsModified: true,
	}
	if err := s.weekly.Upsert(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write weekly entry")
	}
	s.cache.InvalidateClass(ctx, req.ClassID)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionDeleteSlot, "weekly_entries", entry.ID, entry)
	return &AssignResult{Scope: ScopeWeekly, Entry: entry}, nil
}

// SetAsGlobal promotes a governed week's content into the global schedule and
// clears the week's override rows, atomically. A week with no overrides is a
// no-op. Blocked while frozen.
func (s *AssignmentService) SetAsGlobal(ctx context.Context, actor *models.JWTClaims, classID string, weekStart time.Time) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	if !s.policy.CanEditDirect(actor) {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may promote a week to global")
	}
	if err := s.freeze.GuardBulk(ctx, actor.SchoolID); err != nil {
		return err
	}
	weekStart = models.WeekStartOf(weekStart)

	release, err := s.locker.Acquire(ctx, classWeekLockKey(classID, weekStart))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "week is being edited")
	}
	defer release()

	overrides, err := s.weekly.ListByClassWeek(ctx, classID, weekStart)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly entries")
	}
	if len(overrides) == 0 {
		return nil
	}

	entries := make([]models.TimetableEntry, 0, len(overrides))
	for _, row := range overrides {
		if row.IsFree() {
			continue
		}
		entry := models.TimetableEntry{
			SchoolID:  actor.SchoolID,
			ClassID:   classID,
			Day:       row.Day,
			Period:    row.Period,
			TeacherID: *row.TeacherID,
			Room:      row.Room,
		}
		if row.SubjectID != nil {
			entry.SubjectID = *row.SubjectID
		}
		entries = append(entries, entry)
	}

	tx, err := s.weekly.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.global.ReplaceClassWithTx(ctx, tx, classID, entries); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace global schedule")
	}
	if err := s.weekly.DeleteByClassWeekWithTx(ctx, tx, classID, weekStart); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear weekly entries")
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit promotion")
	}

	s.cache.InvalidateClass(ctx, classID)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionSetAsGlobal, "timetable_entries", classID, map[string]interface{}{
		"class_id": classID, "week_start": weekStart.Format("2006-01-02"), "entries": len(entries),
	})
	return nil
}

// CopyFromGlobal rebuilds the week's override rows as an exact modifiable
// copy of the global schedule, clearing whatever was there. Every row is
// written unmodified so it keeps the global entry's identity until edited.
// Blocked while frozen.
func (s *AssignmentService) CopyFromGlobal(ctx context.Context, actor *models.JWTClaims, classID string, weekStart time.Time) error {
	if err := RequireActor(actor); err != nil {
		return err
	}
	if !s.policy.CanEditDirect(actor) {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may refresh a week from global")
	}
	if err := s.freeze.GuardBulk(ctx, actor.SchoolID); err != nil {
		return err
	}
	weekStart = models.WeekStartOf(weekStart)

	release, err := s.locker.Acquire(ctx, classWeekLockKey(classID, weekStart))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "week is being edited")
	}
	defer release()

	globalEntries, err := s.global.ListByClass(ctx, classID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load global schedule")
	}

	rows := make([]models.WeeklyEntry, 0, len(globalEntries))
	for _, g := range globalEntries {
		teacherID := g.TeacherID
		subjectID := g.SubjectID
		rows = append(rows, models.WeeklyEntry{
			SchoolID:   actor.SchoolID,
			ClassID:    classID,
			WeekStart:  weekStart,
			Day:        g.Day,
			Period:     g.Period,
			TeacherID:  &teacherID,
			SubjectID:  &subjectID,
			Room:       g.Room,
			IsModified: false,
		})
	}

	tx, err := s.weekly.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.weekly.DeleteByClassWeekWithTx(ctx, tx, classID, weekStart); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear weekly entries")
	}
	if err := s.weekly.BulkInsertWithTx(ctx, tx, rows); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to copy global schedule")
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit copy")
	}

	s.cache.InvalidateClass(ctx, classID)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionCopyFromGlobal, "weekly_entries", classID, map[string]interface{}{
		"class_id": classID, "week_start": weekStart.Format("2006-01-02"), "rows": len(rows),
	})
	return nil
}

func (s *AssignmentService) checkSlot(ctx context.Context, schoolID string, day models.DayName, period int) error {
	structure, err := s.structures.GetActive(ctx, schoolID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load structure")
	}
	if !structure.IsWorkingDay(day) {
		return appErrors.Clone(appErrors.ErrInvalidDate, fmt.Sprintf("%s is not a working day", day))
	}
	slot, ok := structure.SlotFor(period)
	if !ok {
		return appErrors.Clone(appErrors.ErrEntryNotFound, fmt.Sprintf("period %d is not part of the structure", period))
	}
	if slot.IsBreak {
		return appErrors.ErrSlotIsBreak
	}
	return nil
}

// proposeChange creates at most one pending proposal per (entry, week); an
// existing pending row is returned as-is.
func (s *AssignmentService) proposeChange(ctx context.Context, actor *models.JWTClaims, entryKey string, changeType models.ChangeType, newTeacherID *string, day models.DayName, period int, weekStart time.Time) (*models.TimetableChange, error) {
	existing, err := s.changes.FindPendingByEntry(ctx, entryKey, weekStart)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up pending changes")
	}
	if existing != nil {
		return existing, nil
	}

	change := &models.TimetableChange{
		SchoolID:     actor.SchoolID,
		EntryKey:     entryKey,
		ChangeType:   changeType,
		NewTeacherID: newTeacherID,
		Day:          day,
		Period:       period,
		WeekStart:    weekStart,
		ProposedBy:   actor.UserID,
	}
	if err := s.changes.Create(ctx, change); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create change proposal")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionProposeChange, "timetable_changes", change.ID, change)
	return change, nil
}
