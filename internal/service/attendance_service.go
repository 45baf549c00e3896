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

type attendanceRepository interface {
	Get(ctx context.Context, teacherID string, date time.Time) (*models.TeacherAttendanceRecord, error)
	ListByDate(ctx context.Context, schoolID string, date time.Time) ([]models.TeacherAttendanceRecord, error)
	ListAbsentTeacherIDs(ctx context.Context, schoolID string, date time.Time) ([]string, error)
	Upsert(ctx context.Context, record *models.TeacherAttendanceRecord) error
}

type attendanceGlobalReader interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.TimetableEntry, error)
}

type attendanceWeeklyReader interface {
	ListByTeacherWeek(ctx context.Context, teacherID string, weekStart time.Time) ([]models.WeeklyEntry, error)
}

type attendanceSubstitutionWriter interface {
	RetireForEntries(ctx context.Context, entryKeys []string, weekStart time.Time) error
}

// AttendanceService coordinates teacher attendance marking and its knock-on
// effects on substitution state.
type AttendanceService struct {
	repo      attendanceRepository
	global    attendanceGlobalReader
	weekly    attendanceWeeklyReader
	subs      attendanceSubstitutionWriter
	locker    lock.Locker
	cache     *CacheService
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(
	repo attendanceRepository,
	global attendanceGlobalReader,
	weekly attendanceWeeklyReader,
	subs attendanceSubstitutionWriter,
	locker lock.Locker,
	cache *CacheService,
	audit auditRecorder,
	validate *validator.Validate,
	logger *zap.Logger,
) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	svc := &AttendanceService{
		repo:      repo,
		global:    global,
		weekly:    weekly,
		subs:      subs,
		locker:    locker,
		cache:     cache,
		audit:     audit,
		validator: validate,
		logger:    logger,
	}
	_ = svc.validator.RegisterValidation("teacher_attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(fl.Field().String()).Valid()
	})
	return svc
}

// MarkAttendanceRequest describes the payload for marking one teacher-day.
type MarkAttendanceRequest struct {
	TeacherID string  `json:"teacher_id" validate:"required"`
	Date      string  `json:"date" validate:"required"`
	Status    string  `json:"status" validate:"required,teacher_attendance_status"`
	Reason    *string `json:"reason"`
}

func attendanceLockKey(teacherID string, date time.Time) string {
	return fmt.Sprintf("teacher:%s:date:%s", teacherID, date.Format("2006-01-02"))
}

// Mark upserts the attendance record for one (teacher, date) pair. Marking is
// last-write-wins per key; correcting an absence back to present retires any
// auto-assigned substitutions that the absence produced, while confirmed ones
// are kept for an admin to unwind explicitly.
func (s *AttendanceService) Mark(ctx context.Context, actor *models.JWTClaims, req MarkAttendanceRequest) (*models.TeacherAttendanceRecord, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD")
	}
	date = models.DateOnly(date)

	release, err := s.locker.Acquire(ctx, attendanceLockKey(req.TeacherID, date))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "attendance record is being updated")
	}
	defer release()

	previous, err := s.repo.Get(ctx, req.TeacherID, date)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}

	record := &models.TeacherAttendanceRecord{
		SchoolID:       actor.SchoolID,
		TeacherID:      req.TeacherID,
		AttendanceDate: date,
		Status:         models.AttendanceStatus(req.Status),
		Reason:         req.Reason,
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
	}

	wasAbsent := previous != nil && previous.Status == models.AttendanceAbsent
	if wasAbsent && record.Status != models.AttendanceAbsent {
		if err := s.retireAutoSubstitutions(ctx, req.TeacherID, date); err != nil {
			s.logger.Error("failed to retire auto substitutions after attendance correction",
				zap.String("teacher_id", req.TeacherID), zap.Error(err))
		}
	}

	s.cache.InvalidateAll(ctx)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionMarkAttendance, "teacher_attendance", req.TeacherID, record)
	return record, nil
}

// ListDay returns all attendance records for one date.
func (s *AttendanceService) ListDay(ctx context.Context, schoolID string, date time.Time) ([]models.TeacherAttendanceRecord, error) {
	records, err := s.repo.ListByDate(ctx, schoolID, models.DateOnly(date))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, nil
}

// AbsentTeacherIDs returns the ids of teachers explicitly marked absent.
func (s *AttendanceService) AbsentTeacherIDs(ctx context.Context, schoolID string, date time.Time) ([]string, error) {
	ids, err := s.repo.ListAbsentTeacherIDs(ctx, schoolID, models.DateOnly(date))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list absent teachers")
	}
	return ids, nil
}

// IsAbsent mirrors the resolver's optimistic default: only an explicit absent
// record counts as absence.
func (s *AttendanceService) IsAbsent(ctx context.Context, teacherID string, date time.Time) (bool, error) {
	record, err := s.repo.Get(ctx, teacherID, models.DateOnly(date))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	return record.Status == models.AttendanceAbsent, nil
}

// retireAutoSubstitutions collects the entry keys the teacher was scheduled
// for on the corrected date, in both layers, and retires their auto-assigned
// substitutions for that week.
func (s *AttendanceService) retireAutoSubstitutions(ctx context.Context, teacherID string, date time.Time) error {
	day := models.DayOf(date)
	weekStart := models.WeekStartOf(date)

	var keys []string

	globalEntries, err := s.global.ListByTeacher(ctx, teacherID)
	if err != nil {
		return fmt.Errorf("list global entries: %w", err)
	}
	for _, entry := range globalEntries {
		if entry.Day == day {
			keys = append(keys, models.StableRef(entry.ID).Key())
		}
	}

	weeklyEntries, err := s.weekly.ListByTeacherWeek(ctx, teacherID, weekStart)
	if err != nil {
		return fmt.Errorf("list weekly entries: %w", err)
	}
	for _, entry := range weeklyEntries {
		if entry.Day == day {
			keys = append(keys, models.SyntheticRef(entry.ClassID, weekStart, day, entry.Period).Key())
		}
	}

	if len(keys) == 0 {
		return nil
	}
	return s.subs.RetireForEntries(ctx, keys, weekStart)
}
