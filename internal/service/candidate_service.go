package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
)

type candidateTeacherReader interface {
	ListActive(ctx context.Context, schoolID string) ([]models.Teacher, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type candidateAttendanceReader interface {
	ListAbsentTeacherIDs(ctx context.Context, schoolID string, date time.Time) ([]string, error)
}

type candidateGlobalReader interface {
	ListByDayPeriod(ctx context.Context, schoolID string, day models.DayName, period int) ([]models.TimetableEntry, error)
	ListByClass(ctx context.Context, classID string) ([]models.TimetableEntry, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]models.TimetableEntry, error)
}

type candidateWeeklyReader interface {
	ListGovernedClasses(ctx context.Context, schoolID string, weekStart time.Time) ([]string, error)
	ListByWeekDayPeriod(ctx context.Context, schoolID string, weekStart time.Time, day models.DayName, period int) ([]models.WeeklyEntry, error)
	ListByTeacherWeek(ctx context.Context, teacherID string, weekStart time.Time) ([]models.WeeklyEntry, error)
}

type candidateSubstitutionReader interface {
	ListByWeekSlot(ctx context.Context, schoolID string, weekStart time.Time, day models.DayName, period int) ([]models.Substitution, error)
	CountByTeacherWeek(ctx context.Context, teacherID string, weekStart time.Time) (int, error)
}

type candidateChangeReader interface {
	ListApprovedBySlot(ctx context.Context, schoolID string, weekStart time.Time, day models.DayName, period int) ([]models.TimetableChange, error)
}

type candidateStructureReader interface {
	GetActive(ctx context.Context, schoolID string) (*models.TimetableStructure, error)
}

// Candidate is one ranked selector result.
type Candidate struct {
	Teacher      models.Teacher `json:"teacher"`
	TeachesClass bool           `json:"teaches_class"`
	WeeklyLoad   int            `json:"weekly_load"`
}

// CandidateService finds substitute teachers for one (class, day, period) on
// a concrete date. Its availability view is self-consistent with the
// resolver: a teacher effectively teaching elsewhere at that slot, through
// any layer, is never offered.
type CandidateService struct {
	teachers   candidateTeacherReader
	attendance candidateAttendanceReader
	global     candidateGlobalReader
	weekly     candidateWeeklyReader
	subs       candidateSubstitutionReader
	changes    candidateChangeReader
	structures candidateStructureReader
	logger     *zap.Logger
}

// NewCandidateService constructs the selector.
func NewCandidateService(
	teachers candidateTeacherReader,
	attendance candidateAttendanceReader,
	global candidateGlobalReader,
	weekly candidateWeeklyReader,
	subs candidateSubstitutionReader,
	changes candidateChangeReader,
	structures candidateStructureReader,
	logger *zap.Logger,
) *CandidateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CandidateService{
		teachers:   teachers,
		attendance: attendance,
		global:     global,
		weekly:     weekly,
		subs:       subs,
		changes:    changes,
		structures: structures,
		logger:     logger,
	}
}

// FindCandidates returns teachers free to cover (class, day, period) on date,
// optionally restricted to those teaching subjectID. An empty list is a valid
// answer, not an error.
func (s *CandidateService) FindCandidates(ctx context.Context, schoolID, classID string, date time.Time, period int, subjectID *string) ([]Candidate, error) {
	date = models.DateOnly(date)
	day := models.DayOf(date)
	weekStart := models.WeekStartOf(date)

	if err := s.checkSlot(ctx, schoolID, day, period); err != nil {
		return nil, err
	}

	governed, err := s.governedClassSet(ctx, schoolID, weekStart)
	if err != nil {
		return nil, err
	}

	busy, err := s.busyTeachers(ctx, schoolID, classID, weekStart, day, period, governed)
	if err != nil {
		return nil, err
	}

	absentIDs, err := s.attendance.ListAbsentTeacherIDs(ctx, schoolID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list absent teachers")
	}
	absent := make(map[string]bool, len(absentIDs))
	for _, id := range absentIDs {
		absent[id] = true
	}

	roster, err := s.teachers.ListActive(ctx, schoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}

	classTeachers, err := s.classTeacherSet(ctx, classID)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(roster))
	for i := range roster {
		teacher := roster[i]
		if busy[teacher.ID] || absent[teacher.ID] {
			continue
		}
		if teacherBlocked(&teacher, day, period) {
			continue
		}
		if subjectID != nil && !teacher.TeachesSubject(*subjectID) {
			continue
		}
		load, err := s.weeklyLoad(ctx, teacher.ID, weekStart, governed)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{
			Teacher:      teacher,
			TeachesClass: classTeachers[teacher.ID],
			WeeklyLoad:   load,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.TeachesClass != b.TeachesClass {
			return a.TeachesClass
		}
		if a.Teacher.SubstitutePriority != b.Teacher.SubstitutePriority {
			return a.Teacher.SubstitutePriority > b.Teacher.SubstitutePriority
		}
		if a.WeeklyLoad != b.WeeklyLoad {
			return a.WeeklyLoad < b.WeeklyLoad
		}
		return a.Teacher.ID < b.Teacher.ID
	})

	return candidates, nil
}

// ValidateCandidate re-checks one teacher's availability at write time. It is
// called under the slot's write lock so a passing check remains valid for the
// duration of the write.
func (s *CandidateService) ValidateCandidate(ctx context.Context, schoolID, classID, teacherID string, date time.Time, period int) error {
	date = models.DateOnly(date)
	day := models.DayOf(date)
	weekStart := models.WeekStartOf(date)

	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher %s not found", teacherID))
	}
	if !teacher.Active {
		return appErrors.Clone(appErrors.ErrConflictingAssignment, "teacher is inactive")
	}
	if teacherBlocked(teacher, day, period) {
		return appErrors.Clone(appErrors.ErrConflictingAssignment, "teacher is unavailable at this slot")
	}

	absentIDs, err := s.attendance.ListAbsentTeacherIDs(ctx, schoolID, date)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list absent teachers")
	}
	for _, id := range absentIDs {
		if id == teacherID {
			return appErrors.Clone(appErrors.ErrConflictingAssignment, "teacher is marked absent on this date")
		}
	}

	governed, err := s.governedClassSet(ctx, schoolID, weekStart)
	if err != nil {
		return err
	}
	busy, err := s.busyTeachers(ctx, schoolID, classID, weekStart, day, period, governed)
	if err != nil {
		return err
	}
	if busy[teacherID] {
		return appErrors.Clone(appErrors.ErrConflictingAssignment, "teacher is already assigned elsewhere at this slot")
	}
	return nil
}

func (s *CandidateService) checkSlot(ctx context.Context, schoolID string, day models.DayName, period int) error {
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

// busyTeachers assembles every teacher effectively occupied at (day, period)
// in the week, excluding assignments inside the target class itself. Weekly
// governance applies per class: a governed class contributes only its weekly
// rows, a non-governed class only its global rows.
func (s *CandidateService) busyTeachers(ctx context.Context, schoolID, classID string, weekStart time.Time, day models.DayName, period int, governed map[string]bool) (map[string]bool, error) {
	busy := make(map[string]bool)

	weeklyRows, err := s.weekly.ListByWeekDayPeriod(ctx, schoolID, weekStart, day, period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list weekly slot occupancy")
	}
	for _, row := range weeklyRows {
		if row.ClassID != classID && row.TeacherID != nil {
			busy[*row.TeacherID] = true
		}
	}

	globalRows, err := s.global.ListByDayPeriod(ctx, schoolID, day, period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list global slot occupancy")
	}
	for _, row := range globalRows {
		if row.ClassID != classID && !governed[row.ClassID] {
			busy[row.TeacherID] = true
		}
	}

	subs, err := s.subs.ListByWeekSlot(ctx, schoolID, weekStart, day, period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list slot substitutions")
	}
	for _, sub := range subs {
		if sub.Status == models.SubstitutionConfirmed {
			busy[sub.SubstituteTeacherID] = true
		}
	}

	changes, err := s.changes.ListApprovedBySlot(ctx, schoolID, weekStart, day, period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approved slot changes")
	}
	for _, change := range changes {
		if change.NewTeacherID != nil {
			busy[*change.NewTeacherID] = true
		}
	}

	return busy, nil
}

func (s *CandidateService) classTeacherSet(ctx context.Context, classID string) (map[string]bool, error) {
	entries, err := s.global.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class entries")
	}
	set := make(map[string]bool, len(entries))
	for _, entry := range entries {
		set[entry.TeacherID] = true
	}
	return set, nil
}

// governedClassSet lists the classes whose week is carried by weekly rows.
func (s *CandidateService) governedClassSet(ctx context.Context, schoolID string, weekStart time.Time) (map[string]bool, error) {
	governedIDs, err := s.weekly.ListGovernedClasses(ctx, schoolID, weekStart)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list governed classes")
	}
	governed := make(map[string]bool, len(governedIDs))
	for _, id := range governedIDs {
		governed[id] = true
	}
	return governed, nil
}

// weeklyLoad approximates a teacher's commitments for the week: recurring
// global periods, override periods and confirmed substitutions. Global
// entries in governed classes are superseded by their weekly copies and
// must not be counted twice.
func (s *CandidateService) weeklyLoad(ctx context.Context, teacherID string, weekStart time.Time, governed map[string]bool) (int, error) {
	globalEntries, err := s.global.ListByTeacher(ctx, teacherID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute teacher load")
	}
	globalCount := 0
	for _, entry := range globalEntries {
		if !governed[entry.ClassID] {
			globalCount++
		}
	}
	weeklyEntries, err := s.weekly.ListByTeacherWeek(ctx, teacherID, weekStart)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute teacher load")
	}
	subCount, err := s.subs.CountByTeacherWeek(ctx, teacherID, weekStart)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute teacher load")
	}
	return globalCount + len(weeklyEntries) + subCount, nil
}

// teacherBlocked checks the teacher's declared weekly unavailability windows.
func teacherBlocked(teacher *models.Teacher, day models.DayName, period int) bool {
	for _, slot := range teacher.UnavailableSlots() {
		if slot.Day != day {
			continue
		}
		lo, hi, ok := parsePeriodRange(slot.Periods)
		if ok && period >= lo && period <= hi {
			return true
		}
	}
	return false
}

// parsePeriodRange accepts "3" or an inclusive range "3-5".
func parsePeriodRange(raw string) (int, int, bool) {
	if lo, hi, found := strings.Cut(raw, "-"); found {
		start, err1 := strconv.Atoi(strings.TrimSpace(lo))
		end, err2 := strconv.Atoi(strings.TrimSpace(hi))
		if err1 != nil || err2 != nil || end < start {
			return 0, 0, false
		}
		return start, end, true
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, 0, false
	}
	return value, value, true
}
