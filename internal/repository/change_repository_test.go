package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestChangeRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewChangeRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_changes")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	teacherID := "teacher-2"
	change := &models.TimetableChange{
		SchoolID:     "school-1",
		EntryKey:     "entry-1",
		ChangeType:   models.ChangeTypeReassignment,
		NewTeacherID: &teacherID,
		Day:          models.DayMonday,
		Period:       3,
		WeekStart:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		ProposedBy:   "teacher-1",
	}
	require.NoError(t, repo.Create(context.Background(), change))
	require.NotEmpty(t, change.ID)
	require.Equal(t, models.ChangeStatusPending, change.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRepositoryReviewTransitionsPendingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewChangeRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_changes")).
		WithArgs(models.ChangeStatusApproved, "admin-1", sqlmock.AnyArg(), "chg-1", models.ChangeStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Review(context.Background(), "chg-1", models.ChangeStatusApproved, "admin-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRepositoryReviewTerminalRowAffectsNothing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewChangeRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_changes")).
		WithArgs(models.ChangeStatusRejected, "admin-1", sqlmock.AnyArg(), "chg-1", models.ChangeStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Review(context.Background(), "chg-1", models.ChangeStatusRejected, "admin-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChangeRepositoryFindPendingByEntry(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewChangeRepository(db)
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "school_id", "entry_key", "change_type", "new_teacher_id", "day_of_week", "period", "week_start", "status", "proposed_by", "approved_by", "reviewed_at", "created_at", "updated_at"}).
		AddRow("chg-1", "school-1", "entry-1", "substitution", nil, "monday", 3, weekStart, "pending", "teacher-1", nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, school_id, entry_key")).
		WithArgs("entry-1", weekStart, models.ChangeStatusPending).
		WillReturnRows(rows)

	change, err := repo.FindPendingByEntry(context.Background(), "entry-1", weekStart)
	require.NoError(t, err)
	require.Equal(t, "chg-1", change.ID)
	require.Equal(t, models.ChangeStatusPending, change.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
