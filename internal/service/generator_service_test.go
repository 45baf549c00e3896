package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
)

type generatorGlobalStub struct {
	byTeacher map[string][]models.TimetableEntry
	replaced  []models.TimetableEntry
	calls     int
}

func (s *generatorGlobalStub) ListByTeacher(ctx context.Context, teacherID string) ([]models.TimetableEntry, error) {
	return s.byTeacher[teacherID], nil
}

func (s *generatorGlobalStub) ReplaceClassWithTx(ctx context.Context, tx *sqlx.Tx, classID string, entries []models.TimetableEntry) error {
	s.calls++
	s.replaced = entries
	return nil
}

type txBeginnerStub struct {
	db *sqlx.DB
}

func (s txBeginnerStub) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return s.db.BeginTxx(ctx, opts)
}

func newTestGeneratorService(t *testing.T, teachers teacherReaderStub, global *generatorGlobalStub, db *sqlx.DB, frozen bool) *GeneratorService {
	t.Helper()
	return NewGeneratorService(
		structureReaderStub{structure: testStructure(t)},
		teachers,
		global,
		txBeginnerStub{db: db},
		freezeStub{frozen: frozen},
		nil, nil, nil, nil, nil, nil,
		GeneratorConfig{},
	)
}

func TestGeneratePlacesAllLoads(t *testing.T) {
	teachers := teacherReaderStub{roster: []models.Teacher{
		activeTeacher(t, "teacher-1", 0, []string{"math"}),
		activeTeacher(t, "teacher-2", 0, []string{"history"}),
	}}
	svc := newTestGeneratorService(t, teachers, &generatorGlobalStub{}, nil, false)

	resp, err := svc.Generate(context.Background(), adminClaims(), GenerateRequest{
		ClassID: "class-1",
		SubjectLoads: []SubjectLoad{
			{SubjectID: "math", TeacherID: "teacher-1", WeeklyCount: 4, Difficulty: 3},
			{SubjectID: "history", TeacherID: "teacher-2", WeeklyCount: 3},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ProposalID)
	assert.Empty(t, resp.Conflicts)
	assert.Len(t, resp.Slots, 7)

	// No two subjects share one slot.
	seen := map[string]bool{}
	for _, slot := range resp.Slots {
		key := fmt.Sprintf("%s:%d", slot.Day, slot.Period)
		assert.False(t, seen[key])
		seen[key] = true
		assert.Contains(t, []int{1, 3}, slot.Period)
	}
}

func TestGenerateKeepsBreakPeriodsFree(t *testing.T) {
	teachers := teacherReaderStub{roster: []models.Teacher{
		activeTeacher(t, "teacher-1", 0, []string{"math"}),
		activeTeacher(t, "teacher-2", 0, []string{"history"}),
	}}
	svc := newTestGeneratorService(t, teachers, &generatorGlobalStub{}, nil, false)

	// Two loads per day fill both teaching periods around the break, which
	// tempts the gap-repair pass to compact across it.
	resp, err := svc.Generate(context.Background(), adminClaims(), GenerateRequest{
		ClassID: "class-1",
		SubjectLoads: []SubjectLoad{
			{SubjectID: "math", TeacherID: "teacher-1", WeeklyCount: 5},
			{SubjectID: "history", TeacherID: "teacher-2", WeeklyCount: 5},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Conflicts)
	require.Len(t, resp.Slots, 10)
	for _, slot := range resp.Slots {
		assert.NotEqual(t, 2, slot.Period)
	}
}

func TestGenerateReportsUnplaceableLoads(t *testing.T) {
	teachers := teacherReaderStub{roster: []models.Teacher{activeTeacher(t, "teacher-1", 0, []string{"math"})}}
	svc := newTestGeneratorService(t, teachers, &generatorGlobalStub{}, nil, false)

	// Five working days with two teaching periods each; eleven loads cannot fit.
	resp, err := svc.Generate(context.Background(), adminClaims(), GenerateRequest{
		ClassID: "class-1",
		SubjectLoads: []SubjectLoad{
			{SubjectID: "math", TeacherID: "teacher-1", WeeklyCount: 11},
		},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Slots, 10)
	require.Len(t, resp.Conflicts, 1)
	assert.Equal(t, "math", resp.Conflicts[0].SubjectID)
}

func TestGenerateRespectsExistingCommitments(t *testing.T) {
	teachers := teacherReaderStub{roster: []models.Teacher{activeTeacher(t, "teacher-1", 0, []string{"math"})}}
	// teacher-1 is already committed elsewhere every Monday.
	global := &generatorGlobalStub{byTeacher: map[string][]models.TimetableEntry{
		"teacher-1": {
			{ID: "entry-x", ClassID: "class-2", Day: models.DayMonday, Period: 1, TeacherID: "teacher-1"},
			{ID: "entry-y", ClassID: "class-2", Day: models.DayMonday, Period: 3, TeacherID: "teacher-1"},
		},
	}}
	svc := newTestGeneratorService(t, teachers, global, nil, false)

	resp, err := svc.Generate(context.Background(), adminClaims(), GenerateRequest{
		ClassID: "class-1",
		SubjectLoads: []SubjectLoad{
			{SubjectID: "math", TeacherID: "teacher-1", WeeklyCount: 4},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Conflicts)
	for _, slot := range resp.Slots {
		assert.NotEqual(t, models.DayMonday, slot.Day)
	}
}

func TestGenerateUnknownTeacher(t *testing.T) {
	svc := newTestGeneratorService(t, teacherReaderStub{}, &generatorGlobalStub{}, nil, false)

	_, err := svc.Generate(context.Background(), adminClaims(), GenerateRequest{
		ClassID: "class-1",
		SubjectLoads: []SubjectLoad{
			{SubjectID: "math", TeacherID: "teacher-9", WeeklyCount: 1},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGenerateForbiddenForTeachers(t *testing.T) {
	svc := newTestGeneratorService(t, teacherReaderStub{}, &generatorGlobalStub{}, nil, false)

	_, err := svc.Generate(context.Background(), teacherClaims(), GenerateRequest{
		ClassID: "class-1",
		SubjectLoads: []SubjectLoad{
			{SubjectID: "math", TeacherID: "teacher-1", WeeklyCount: 1},
		},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCommitAppliesProposal(t *testing.T) {
	db, mock := newMockTxDB(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	teachers := teacherReaderStub{roster: []models.Teacher{activeTeacher(t, "teacher-1", 0, []string{"math"})}}
	global := &generatorGlobalStub{}
	svc := newTestGeneratorService(t, teachers, global, db, false)

	resp, err := svc.Generate(context.Background(), adminClaims(), GenerateRequest{
		ClassID: "class-1",
		SubjectLoads: []SubjectLoad{
			{SubjectID: "math", TeacherID: "teacher-1", WeeklyCount: 3},
		},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Commit(context.Background(), adminClaims(), resp.ProposalID))
	assert.Equal(t, 1, global.calls)
	assert.Len(t, global.replaced, 3)
	require.NoError(t, mock.ExpectationsWereMet())

	// A committed proposal is gone.
	err = svc.Commit(context.Background(), adminClaims(), resp.ProposalID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCommitRefusesConflictedProposal(t *testing.T) {
	teachers := teacherReaderStub{roster: []models.Teacher{activeTeacher(t, "teacher-1", 0, []string{"math"})}}
	svc := newTestGeneratorService(t, teachers, &generatorGlobalStub{}, nil, false)

	resp, err := svc.Generate(context.Background(), adminClaims(), GenerateRequest{
		ClassID: "class-1",
		SubjectLoads: []SubjectLoad{
			{SubjectID: "math", TeacherID: "teacher-1", WeeklyCount: 11},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Conflicts)

	err = svc.Commit(context.Background(), adminClaims(), resp.ProposalID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCommitBlockedByFreeze(t *testing.T) {
	svc := newTestGeneratorService(t, teacherReaderStub{}, &generatorGlobalStub{}, nil, true)

	err := svc.Commit(context.Background(), adminClaims(), "prop-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFrozenSchedule.Code, appErrors.FromError(err).Code)
}

func TestCommitScopedToSchool(t *testing.T) {
	teachers := teacherReaderStub{roster: []models.Teacher{activeTeacher(t, "teacher-1", 0, []string{"math"})}}
	svc := newTestGeneratorService(t, teachers, &generatorGlobalStub{}, nil, false)

	resp, err := svc.Generate(context.Background(), adminClaims(), GenerateRequest{
		ClassID: "class-1",
		SubjectLoads: []SubjectLoad{
			{SubjectID: "math", TeacherID: "teacher-1", WeeklyCount: 1},
		},
	})
	require.NoError(t, err)

	other := &models.JWTClaims{UserID: "admin-2", SchoolID: "school-2", Role: models.RoleAdmin}
	err = svc.Commit(context.Background(), other, resp.ProposalID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
