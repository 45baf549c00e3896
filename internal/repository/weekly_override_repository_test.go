package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
)

func TestWeeklyOverrideRepositoryListGovernedClasses(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewWeeklyOverrideRepository(db)
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"class_id"}).AddRow("class-1").AddRow("class-3")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT class_id FROM weekly_entries")).
		WithArgs("school-1", weekStart).
		WillReturnRows(rows)

	classIDs, err := repo.ListGovernedClasses(context.Background(), "school-1", weekStart)
	require.NoError(t, err)
	require.Equal(t, []string{"class-1", "class-3"}, classIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWeeklyOverrideRepositoryHasEntries(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewWeeklyOverrideRepository(db)
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("class-1", weekStart).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	governed, err := repo.HasEntries(context.Background(), "class-1", weekStart)
	require.NoError(t, err)
	require.True(t, governed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWeeklyOverrideRepositoryUpsertFillsIdentity(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewWeeklyOverrideRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO weekly_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	teacherID := "teacher-1"
	entry := &models.WeeklyEntry{
		SchoolID:   "school-1",
		ClassID:    "class-1",
		WeekStart:  time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		Day:        models.DayTuesday,
		Period:     2,
		TeacherID:  &teacherID,
		IsModified: true,
	}
	require.NoError(t, repo.Upsert(context.Background(), entry))
	require.NotEmpty(t, entry.ID)
	require.False(t, entry.UpdatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWeeklyOverrideRepositoryClearAndBulkInsertInTx(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewWeeklyOverrideRepository(db)
	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM weekly_entries")).
		WithArgs("class-1", weekStart).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO weekly_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := repo.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, repo.DeleteByClassWeekWithTx(context.Background(), tx, "class-1", weekStart))

	teacherID := "teacher-1"
	entries := []models.WeeklyEntry{{
		SchoolID:  "school-1",
		ClassID:   "class-1",
		WeekStart: weekStart,
		Day:       models.DayMonday,
		Period:    1,
		TeacherID: &teacherID,
	}}
	require.NoError(t, repo.BulkInsertWithTx(context.Background(), tx, entries))
	require.NotEmpty(t, entries[0].ID)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
