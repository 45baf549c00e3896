package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
)

type teacherReaderStub struct {
	roster []models.Teacher
}

func (s teacherReaderStub) ListActive(ctx context.Context, schoolID string) ([]models.Teacher, error) {
	var out []models.Teacher
	for _, t := range s.roster {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s teacherReaderStub) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	for i := range s.roster {
		if s.roster[i].ID == id {
			return &s.roster[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

type absenceReaderStub struct {
	absentIDs []string
}

func (s absenceReaderStub) ListAbsentTeacherIDs(ctx context.Context, schoolID string, date time.Time) ([]string, error) {
	return s.absentIDs, nil
}

type occupancyGlobalStub struct {
	rows []models.TimetableEntry
}

func (s occupancyGlobalStub) ListByDayPeriod(ctx context.Context, schoolID string, day models.DayName, period int) ([]models.TimetableEntry, error) {
	var out []models.TimetableEntry
	for _, r := range s.rows {
		if r.Day == day && r.Period == period {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s occupancyGlobalStub) ListByClass(ctx context.Context, classID string) ([]models.TimetableEntry, error) {
	var out []models.TimetableEntry
	for _, r := range s.rows {
		if r.ClassID == classID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s occupancyGlobalStub) ListByTeacher(ctx context.Context, teacherID string) ([]models.TimetableEntry, error) {
	var out []models.TimetableEntry
	for _, r := range s.rows {
		if r.TeacherID == teacherID {
			out = append(out, r)
		}
	}
	return out, nil
}

type occupancyWeeklyStub struct {
	rows []models.WeeklyEntry
}

func (s occupancyWeeklyStub) ListGovernedClasses(ctx context.Context, schoolID string, weekStart time.Time) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, r := range s.rows {
		if r.WeekStart.Equal(weekStart) && !seen[r.ClassID] {
			seen[r.ClassID] = true
			out = append(out, r.ClassID)
		}
	}
	return out, nil
}

func (s occupancyWeeklyStub) ListByWeekDayPeriod(ctx context.Context, schoolID string, weekStart time.Time, day models.DayName, period int) ([]models.WeeklyEntry, error) {
	var out []models.WeeklyEntry
	for _, r := range s.rows {
		if r.WeekStart.Equal(weekStart) && r.Day == day && r.Period == period {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s occupancyWeeklyStub) ListByTeacherWeek(ctx context.Context, teacherID string, weekStart time.Time) ([]models.WeeklyEntry, error) {
	var out []models.WeeklyEntry
	for _, r := range s.rows {
		if r.TeacherID != nil && *r.TeacherID == teacherID && r.WeekStart.Equal(weekStart) {
			out = append(out, r)
		}
	}
	return out, nil
}

type occupancySubstitutionStub struct {
	rows []models.Substitution
}

func (s occupancySubstitutionStub) ListByWeekSlot(ctx context.Context, schoolID string, weekStart time.Time, day models.DayName, period int) ([]models.Substitution, error) {
	var out []models.Substitution
	for _, r := range s.rows {
		if r.WeekStart.Equal(weekStart) && r.Day == day && r.Period == period {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s occupancySubstitutionStub) CountByTeacherWeek(ctx context.Context, teacherID string, weekStart time.Time) (int, error) {
	count := 0
	for _, r := range s.rows {
		if r.SubstituteTeacherID == teacherID && r.WeekStart.Equal(weekStart) && r.Status != models.SubstitutionRejected {
			count++
		}
	}
	return count, nil
}

type occupancyChangeStub struct {
	rows []models.TimetableChange
}

func (s occupancyChangeStub) ListApprovedBySlot(ctx context.Context, schoolID string, weekStart time.Time, day models.DayName, period int) ([]models.TimetableChange, error) {
	var out []models.TimetableChange
	for _, r := range s.rows {
		if r.Status == models.ChangeStatusApproved && r.WeekStart.Equal(weekStart) && r.Day == day && r.Period == period {
			out = append(out, r)
		}
	}
	return out, nil
}

func activeTeacher(t *testing.T, id string, priority int, subjects []string) models.Teacher {
	t.Helper()
	raw, err := json.Marshal(subjects)
	require.NoError(t, err)
	return models.Teacher{ID: id, SchoolID: "school-1", SubjectIDs: types.JSONText(raw), SubstitutePriority: priority, Active: true}
}

func newTestCandidateService(t *testing.T, teachers teacherReaderStub, attendance absenceReaderStub, global occupancyGlobalStub, weekly occupancyWeeklyStub, subs occupancySubstitutionStub, changes occupancyChangeStub) *CandidateService {
	t.Helper()
	return NewCandidateService(
		teachers,
		attendance,
		global,
		weekly,
		subs,
		changes,
		structureReaderStub{structure: testStructure(t)},
		nil,
	)
}

func TestFindCandidatesExcludesBusyAndAbsent(t *testing.T) {
	teachers := teacherReaderStub{roster: []models.Teacher{
		activeTeacher(t, "teacher-1", 0, nil),
		activeTeacher(t, "teacher-2", 0, nil),
		activeTeacher(t, "teacher-3", 0, nil),
	}}
	// teacher-1 teaches another class at the slot; teacher-2 is absent.
	global := occupancyGlobalStub{rows: []models.TimetableEntry{
		{ID: "entry-x", ClassID: "class-2", Day: models.DayMonday, Period: 1, TeacherID: "teacher-1", SubjectID: "math"},
	}}
	svc := newTestCandidateService(t, teachers, absenceReaderStub{absentIDs: []string{"teacher-2"}}, global, occupancyWeeklyStub{}, occupancySubstitutionStub{}, occupancyChangeStub{})

	candidates, err := svc.FindCandidates(context.Background(), "school-1", "class-1", testDate, 1, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "teacher-3", candidates[0].Teacher.ID)
}

func TestFindCandidatesGovernedClassFreesGlobalTeacher(t *testing.T) {
	teachers := teacherReaderStub{roster: []models.Teacher{activeTeacher(t, "teacher-1", 0, nil)}}
	// teacher-1's global commitment is in class-2, but class-2's week is
	// governed by an override that leaves the slot free.
	global := occupancyGlobalStub{rows: []models.TimetableEntry{
		{ID: "entry-x", ClassID: "class-2", Day: models.DayMonday, Period: 1, TeacherID: "teacher-1", SubjectID: "math"},
	}}
	weekly := occupancyWeeklyStub{rows: []models.WeeklyEntry{
		{ClassID: "class-2", WeekStart: models.WeekStartOf(testDate), Day: models.DayTuesday, Period: 1, IsModified: true},
	}}
	svc := newTestCandidateService(t, teachers, absenceReaderStub{}, global, weekly, occupancySubstitutionStub{}, occupancyChangeStub{})

	candidates, err := svc.FindCandidates(context.Background(), "school-1", "class-1", testDate, 1, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "teacher-1", candidates[0].Teacher.ID)
}

func TestFindCandidatesSubjectFilter(t *testing.T) {
	teachers := teacherReaderStub{roster: []models.Teacher{
		activeTeacher(t, "teacher-1", 0, []string{"math"}),
		activeTeacher(t, "teacher-2", 0, []string{"history"}),
	}}
	svc := newTestCandidateService(t, teachers, absenceReaderStub{}, occupancyGlobalStub{}, occupancyWeeklyStub{}, occupancySubstitutionStub{}, occupancyChangeStub{})

	candidates, err := svc.FindCandidates(context.Background(), "school-1", "class-1", testDate, 1, strPtr("math"))
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "teacher-1", candidates[0].Teacher.ID)
}

func TestFindCandidatesOrdering(t *testing.T) {
	weekStart := models.WeekStartOf(testDate)
	teachers := teacherReaderStub{roster: []models.Teacher{
		activeTeacher(t, "teacher-a", 0, nil),
		activeTeacher(t, "teacher-b", 5, nil),
		activeTeacher(t, "teacher-c", 5, nil),
		activeTeacher(t, "teacher-d", 0, nil),
	}}
	// teacher-d already teaches the target class on another day, which ranks
	// first regardless of priority. teacher-b carries one confirmed
	// substitution, so teacher-c wins the priority tie on lighter load.
	global := occupancyGlobalStub{rows: []models.TimetableEntry{
		{ID: "entry-d", ClassID: "class-1", Day: models.DayTuesday, Period: 3, TeacherID: "teacher-d", SubjectID: "art"},
	}}
	subs := occupancySubstitutionStub{rows: []models.Substitution{
		{ID: "sub-1", SubstituteTeacherID: "teacher-b", Status: models.SubstitutionConfirmed, WeekStart: weekStart, Day: models.DayWednesday, Period: 3},
	}}
	svc := newTestCandidateService(t, teachers, absenceReaderStub{}, global, occupancyWeeklyStub{}, subs, occupancyChangeStub{})

	candidates, err := svc.FindCandidates(context.Background(), "school-1", "class-1", testDate, 1, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 4)
	assert.Equal(t, "teacher-d", candidates[0].Teacher.ID)
	assert.Equal(t, "teacher-c", candidates[1].Teacher.ID)
	assert.Equal(t, "teacher-b", candidates[2].Teacher.ID)
	assert.Equal(t, "teacher-a", candidates[3].Teacher.ID)
}

func TestFindCandidatesLoadCountsGovernedClassOnce(t *testing.T) {
	weekStart := models.WeekStartOf(testDate)
	teachers := teacherReaderStub{roster: []models.Teacher{
		activeTeacher(t, "teacher-1", 0, nil),
		activeTeacher(t, "teacher-2", 0, nil),
	}}
	// class-2's week is governed, so teacher-1's two recurring periods there
	// exist both as global rows and as weekly copies. Only the copies count.
	// teacher-2 carries three periods in the non-governed class-3.
	global := occupancyGlobalStub{rows: []models.TimetableEntry{
		{ID: "g-1", ClassID: "class-2", Day: models.DayTuesday, Period: 1, TeacherID: "teacher-1", SubjectID: "math"},
		{ID: "g-2", ClassID: "class-2", Day: models.DayWednesday, Period: 3, TeacherID: "teacher-1", SubjectID: "math"},
		{ID: "g-3", ClassID: "class-3", Day: models.DayTuesday, Period: 1, TeacherID: "teacher-2", SubjectID: "art"},
		{ID: "g-4", ClassID: "class-3", Day: models.DayWednesday, Period: 1, TeacherID: "teacher-2", SubjectID: "art"},
		{ID: "g-5", ClassID: "class-3", Day: models.DayThursday, Period: 1, TeacherID: "teacher-2", SubjectID: "art"},
	}}
	weekly := occupancyWeeklyStub{rows: []models.WeeklyEntry{
		{ClassID: "class-2", WeekStart: weekStart, Day: models.DayTuesday, Period: 1, TeacherID: strPtr("teacher-1")},
		{ClassID: "class-2", WeekStart: weekStart, Day: models.DayWednesday, Period: 3, TeacherID: strPtr("teacher-1")},
	}}
	svc := newTestCandidateService(t, teachers, absenceReaderStub{}, global, weekly, occupancySubstitutionStub{}, occupancyChangeStub{})

	candidates, err := svc.FindCandidates(context.Background(), "school-1", "class-1", testDate, 1, nil)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "teacher-1", candidates[0].Teacher.ID)
	assert.Equal(t, 2, candidates[0].WeeklyLoad)
	assert.Equal(t, "teacher-2", candidates[1].Teacher.ID)
	assert.Equal(t, 3, candidates[1].WeeklyLoad)
}

func TestFindCandidatesBreakSlot(t *testing.T) {
	svc := newTestCandidateService(t, teacherReaderStub{}, absenceReaderStub{}, occupancyGlobalStub{}, occupancyWeeklyStub{}, occupancySubstitutionStub{}, occupancyChangeStub{})

	_, err := svc.FindCandidates(context.Background(), "school-1", "class-1", testDate, 2, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotIsBreak.Code, appErrors.FromError(err).Code)
}

func TestValidateCandidateUnavailableWindow(t *testing.T) {
	blocked, err := json.Marshal([]models.TeacherUnavailableSlot{{Day: models.DayMonday, Periods: "1-2"}})
	require.NoError(t, err)
	teacher := activeTeacher(t, "teacher-1", 0, nil)
	teacher.Unavailable = types.JSONText(blocked)
	svc := newTestCandidateService(t, teacherReaderStub{roster: []models.Teacher{teacher}}, absenceReaderStub{}, occupancyGlobalStub{}, occupancyWeeklyStub{}, occupancySubstitutionStub{}, occupancyChangeStub{})

	err = svc.ValidateCandidate(context.Background(), "school-1", "class-1", "teacher-1", testDate, 1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflictingAssignment.Code, appErrors.FromError(err).Code)

	// Period 3 falls outside the declared window.
	require.NoError(t, svc.ValidateCandidate(context.Background(), "school-1", "class-1", "teacher-1", testDate, 3))
}

func TestValidateCandidateAbsent(t *testing.T) {
	teachers := teacherReaderStub{roster: []models.Teacher{activeTeacher(t, "teacher-1", 0, nil)}}
	svc := newTestCandidateService(t, teachers, absenceReaderStub{absentIDs: []string{"teacher-1"}}, occupancyGlobalStub{}, occupancyWeeklyStub{}, occupancySubstitutionStub{}, occupancyChangeStub{})

	err := svc.ValidateCandidate(context.Background(), "school-1", "class-1", "teacher-1", testDate, 1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflictingAssignment.Code, appErrors.FromError(err).Code)
}

func TestValidateCandidateUnknownTeacher(t *testing.T) {
	svc := newTestCandidateService(t, teacherReaderStub{}, absenceReaderStub{}, occupancyGlobalStub{}, occupancyWeeklyStub{}, occupancySubstitutionStub{}, occupancyChangeStub{})

	err := svc.ValidateCandidate(context.Background(), "school-1", "class-1", "teacher-9", testDate, 1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestParsePeriodRange(t *testing.T) {
	lo, hi, ok := parsePeriodRange("3")
	require.True(t, ok)
	assert.Equal(t, 3, lo)
	assert.Equal(t, 3, hi)

	lo, hi, ok = parsePeriodRange("2-5")
	require.True(t, ok)
	assert.Equal(t, 2, lo)
	assert.Equal(t, 5, hi)

	_, _, ok = parsePeriodRange("5-2")
	assert.False(t, ok)

	_, _, ok = parsePeriodRange("abc")
	assert.False(t, ok)
}
