package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
)

type attendanceRepoStub struct {
	records  map[string]*models.TeacherAttendanceRecord
	upserted []*models.TeacherAttendanceRecord
}

func attendanceKey(teacherID string, date time.Time) string {
	return teacherID + ":" + date.Format("2006-01-02")
}

func (s *attendanceRepoStub) Get(ctx context.Context, teacherID string, date time.Time) (*models.TeacherAttendanceRecord, error) {
	if r, ok := s.records[attendanceKey(teacherID, date)]; ok {
		return r, nil
	}
	return nil, sql.ErrNoRows
}

func (s *attendanceRepoStub) ListByDate(ctx context.Context, schoolID string, date time.Time) ([]models.TeacherAttendanceRecord, error) {
	var out []models.TeacherAttendanceRecord
	for _, r := range s.records {
		if r.AttendanceDate.Equal(date) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *attendanceRepoStub) ListAbsentTeacherIDs(ctx context.Context, schoolID string, date time.Time) ([]string, error) {
	var out []string
	for _, r := range s.records {
		if r.AttendanceDate.Equal(date) && r.Status == models.AttendanceAbsent {
			out = append(out, r.TeacherID)
		}
	}
	return out, nil
}

func (s *attendanceRepoStub) Upsert(ctx context.Context, record *models.TeacherAttendanceRecord) error {
	s.upserted = append(s.upserted, record)
	if s.records == nil {
		s.records = map[string]*models.TeacherAttendanceRecord{}
	}
	s.records[attendanceKey(record.TeacherID, record.AttendanceDate)] = record
	return nil
}

type teacherScheduleStub struct {
	global []models.TimetableEntry
	weekly []models.WeeklyEntry
}

func (s teacherScheduleStub) ListByTeacher(ctx context.Context, teacherID string) ([]models.TimetableEntry, error) {
	return s.global, nil
}

func (s teacherScheduleStub) ListByTeacherWeek(ctx context.Context, teacherID string, weekStart time.Time) ([]models.WeeklyEntry, error) {
	return s.weekly, nil
}

type retireRecorderStub struct {
	keys      []string
	weekStart time.Time
	calls     int
}

func (s *retireRecorderStub) RetireForEntries(ctx context.Context, entryKeys []string, weekStart time.Time) error {
	s.calls++
	s.keys = entryKeys
	s.weekStart = weekStart
	return nil
}

func newTestAttendanceService(repo *attendanceRepoStub, schedule teacherScheduleStub, retire *retireRecorderStub) *AttendanceService {
	return NewAttendanceService(repo, schedule, schedule, retire, nil, nil, nil, nil, nil)
}

func TestMarkAttendanceCreatesRecord(t *testing.T) {
	repo := &attendanceRepoStub{}
	svc := newTestAttendanceService(repo, teacherScheduleStub{}, &retireRecorderStub{})

	record, err := svc.Mark(context.Background(), adminClaims(), MarkAttendanceRequest{
		TeacherID: "teacher-1",
		Date:      "2026-03-02",
		Status:    "absent",
		Reason:    strPtr("sick leave"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceAbsent, record.Status)
	assert.Equal(t, testDate, record.AttendanceDate)
	require.Len(t, repo.upserted, 1)
}

func TestMarkAttendanceLastWriteWins(t *testing.T) {
	repo := &attendanceRepoStub{}
	svc := newTestAttendanceService(repo, teacherScheduleStub{}, &retireRecorderStub{})

	_, err := svc.Mark(context.Background(), adminClaims(), MarkAttendanceRequest{TeacherID: "teacher-1", Date: "2026-03-02", Status: "late"})
	require.NoError(t, err)
	record, err := svc.Mark(context.Background(), adminClaims(), MarkAttendanceRequest{TeacherID: "teacher-1", Date: "2026-03-02", Status: "present"})
	require.NoError(t, err)
	assert.Equal(t, models.AttendancePresent, record.Status)
	assert.Len(t, repo.records, 1)
}

func TestMarkAttendanceInvalidStatus(t *testing.T) {
	svc := newTestAttendanceService(&attendanceRepoStub{}, teacherScheduleStub{}, &retireRecorderStub{})

	_, err := svc.Mark(context.Background(), adminClaims(), MarkAttendanceRequest{TeacherID: "teacher-1", Date: "2026-03-02", Status: "vacation"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMarkAttendanceCorrectionRetiresAutoSubstitutions(t *testing.T) {
	weekStart := models.WeekStartOf(testDate)
	repo := &attendanceRepoStub{records: map[string]*models.TeacherAttendanceRecord{
		attendanceKey("teacher-1", testDate): {TeacherID: "teacher-1", AttendanceDate: testDate, Status: models.AttendanceAbsent},
	}}
	schedule := teacherScheduleStub{
		global: []models.TimetableEntry{
			{ID: "entry-1", ClassID: "class-1", Day: models.DayMonday, Period: 1, TeacherID: "teacher-1"},
			// A different day's entry must not be retired.
			{ID: "entry-2", ClassID: "class-1", Day: models.DayTuesday, Period: 1, TeacherID: "teacher-1"},
		},
		weekly: []models.WeeklyEntry{
			{ClassID: "class-2", WeekStart: weekStart, Day: models.DayMonday, Period: 3, TeacherID: strPtr("teacher-1")},
		},
	}
	retire := &retireRecorderStub{}
	svc := newTestAttendanceService(repo, schedule, retire)

	_, err := svc.Mark(context.Background(), adminClaims(), MarkAttendanceRequest{TeacherID: "teacher-1", Date: "2026-03-02", Status: "present"})
	require.NoError(t, err)
	assert.Equal(t, 1, retire.calls)
	assert.Equal(t, weekStart, retire.weekStart)
	require.Len(t, retire.keys, 2)
	assert.Contains(t, retire.keys, "entry-1")
	assert.Contains(t, retire.keys, models.SyntheticRef("class-2", weekStart, models.DayMonday, 3).Key())
}

func TestMarkAttendanceNoRetireWhenStillAbsent(t *testing.T) {
	repo := &attendanceRepoStub{records: map[string]*models.TeacherAttendanceRecord{
		attendanceKey("teacher-1", testDate): {TeacherID: "teacher-1", AttendanceDate: testDate, Status: models.AttendanceAbsent},
	}}
	retire := &retireRecorderStub{}
	svc := newTestAttendanceService(repo, teacherScheduleStub{}, retire)

	_, err := svc.Mark(context.Background(), adminClaims(), MarkAttendanceRequest{TeacherID: "teacher-1", Date: "2026-03-02", Status: "absent"})
	require.NoError(t, err)
	assert.Zero(t, retire.calls)
}

func TestMarkAttendanceNoRetireFromPresent(t *testing.T) {
	repo := &attendanceRepoStub{records: map[string]*models.TeacherAttendanceRecord{
		attendanceKey("teacher-1", testDate): {TeacherID: "teacher-1", AttendanceDate: testDate, Status: models.AttendancePresent},
	}}
	retire := &retireRecorderStub{}
	svc := newTestAttendanceService(repo, teacherScheduleStub{}, retire)

	_, err := svc.Mark(context.Background(), adminClaims(), MarkAttendanceRequest{TeacherID: "teacher-1", Date: "2026-03-02", Status: "absent"})
	require.NoError(t, err)
	assert.Zero(t, retire.calls)
}

func TestIsAbsentOptimisticDefault(t *testing.T) {
	svc := newTestAttendanceService(&attendanceRepoStub{}, teacherScheduleStub{}, &retireRecorderStub{})

	absent, err := svc.IsAbsent(context.Background(), "teacher-1", testDate)
	require.NoError(t, err)
	assert.False(t, absent)
}
