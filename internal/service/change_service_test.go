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

type changeWorkflowRepoStub struct {
	byID     map[string]*models.TimetableChange
	pending  map[string]*models.TimetableChange
	created  []*models.TimetableChange
	reviewed []string
}

func (s *changeWorkflowRepoStub) Create(ctx context.Context, change *models.TimetableChange) error {
	change.ID = "chg-new"
	change.Status = models.ChangeStatusPending
	s.created = append(s.created, change)
	return nil
}

func (s *changeWorkflowRepoStub) FindByID(ctx context.Context, id string) (*models.TimetableChange, error) {
	if c, ok := s.byID[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *changeWorkflowRepoStub) FindPendingByEntry(ctx context.Context, entryKey string, weekStart time.Time) (*models.TimetableChange, error) {
	if c, ok := s.pending[entryKey]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (s *changeWorkflowRepoStub) List(ctx context.Context, filter models.ChangeFilter) ([]models.TimetableChange, error) {
	var out []models.TimetableChange
	for _, c := range s.byID {
		out = append(out, *c)
	}
	return out, nil
}

func (s *changeWorkflowRepoStub) Review(ctx context.Context, id string, status models.ChangeStatus, reviewerID string) error {
	s.reviewed = append(s.reviewed, id)
	return nil
}

type entryReaderStub struct {
	entries map[string]*models.TimetableEntry
}

func (s entryReaderStub) FindByID(ctx context.Context, id string) (*models.TimetableEntry, error) {
	if e, ok := s.entries[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func newTestChangeService(repo *changeWorkflowRepoStub, entries entryReaderStub, weekly *weeklyRepoStub, candidateErr error) *ChangeService {
	if weekly == nil {
		weekly = &weeklyRepoStub{}
	}
	return NewChangeService(
		repo,
		entries,
		weekly,
		validatorStub{err: candidateErr},
		nil, nil, nil, nil, nil, nil, nil,
	)
}

func TestProposeChangeStableEntry(t *testing.T) {
	repo := &changeWorkflowRepoStub{}
	entries := entryReaderStub{entries: map[string]*models.TimetableEntry{
		"entry-1": {ID: "entry-1", ClassID: "class-1", Day: models.DayMonday, Period: 1, TeacherID: "teacher-1"},
	}}
	svc := newTestChangeService(repo, entries, nil, nil)

	change, err := svc.Propose(context.Background(), teacherClaims(), ProposeChangeRequest{
		EntryKey:     "entry-1",
		WeekStart:    "2026-03-02",
		NewTeacherID: strPtr("teacher-2"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ChangeStatusPending, change.Status)
	assert.Equal(t, models.ChangeTypeSubstitution, change.ChangeType)
	assert.Equal(t, models.DayMonday, change.Day)
	assert.Equal(t, 1, change.Period)
	assert.Equal(t, "teacher-1", change.ProposedBy)
}

func TestProposeChangeSyntheticEntryWrongWeek(t *testing.T) {
	svc := newTestChangeService(&changeWorkflowRepoStub{}, entryReaderStub{}, nil, nil)

	ref := models.SyntheticRef("class-1", models.WeekStartOf(testDate), models.DayMonday, 1)
	_, err := svc.Propose(context.Background(), teacherClaims(), ProposeChangeRequest{
		EntryKey:  ref.Key(),
		WeekStart: "2026-03-09",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestProposeChangeIdempotentPerWeek(t *testing.T) {
	existing := &models.TimetableChange{ID: "chg-old", EntryKey: "entry-1", Status: models.ChangeStatusPending}
	repo := &changeWorkflowRepoStub{pending: map[string]*models.TimetableChange{"entry-1": existing}}
	entries := entryReaderStub{entries: map[string]*models.TimetableEntry{
		"entry-1": {ID: "entry-1", ClassID: "class-1", Day: models.DayMonday, Period: 1},
	}}
	svc := newTestChangeService(repo, entries, nil, nil)

	change, err := svc.Propose(context.Background(), teacherClaims(), ProposeChangeRequest{
		EntryKey:  "entry-1",
		WeekStart: "2026-03-02",
	})
	require.NoError(t, err)
	assert.Equal(t, "chg-old", change.ID)
	assert.Empty(t, repo.created)
}

func TestApproveChange(t *testing.T) {
	repo := &changeWorkflowRepoStub{byID: map[string]*models.TimetableChange{
		"chg-1": {
			ID: "chg-1", SchoolID: "school-1", EntryKey: "entry-1",
			NewTeacherID: strPtr("teacher-2"), Day: models.DayMonday, Period: 1,
			WeekStart: models.WeekStartOf(testDate), Status: models.ChangeStatusPending,
		},
	}}
	entries := entryReaderStub{entries: map[string]*models.TimetableEntry{
		"entry-1": {ID: "entry-1", ClassID: "class-1", Day: models.DayMonday, Period: 1},
	}}
	svc := newTestChangeService(repo, entries, nil, nil)

	change, err := svc.Approve(context.Background(), adminClaims(), "chg-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChangeStatusApproved, change.Status)
	require.NotNil(t, change.ApprovedBy)
	assert.Equal(t, "admin-1", *change.ApprovedBy)
	assert.NotNil(t, change.ReviewedAt)
	assert.Equal(t, []string{"chg-1"}, repo.reviewed)
}

func TestApproveDeletionWritesWeeklyFreeRow(t *testing.T) {
	repo := &changeWorkflowRepoStub{byID: map[string]*models.TimetableChange{
		"chg-1": {
			ID: "chg-1", SchoolID: "school-1", EntryKey: "entry-1",
			NewTeacherID: nil, Day: models.DayMonday, Period: 1,
			WeekStart: models.WeekStartOf(testDate), Status: models.ChangeStatusPending,
		},
	}}
	entries := entryReaderStub{entries: map[string]*models.TimetableEntry{
		"entry-1": {ID: "entry-1", ClassID: "class-1", Day: models.DayMonday, Period: 1, TeacherID: "teacher-1"},
	}}
	weekly := &weeklyRepoStub{}
	svc := newTestChangeService(repo, entries, weekly, nil)

	change, err := svc.Approve(context.Background(), adminClaims(), "chg-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChangeStatusApproved, change.Status)

	require.Len(t, weekly.upserted, 1)
	row := weekly.upserted[0]
	assert.Nil(t, row.TeacherID)
	assert.True(t, row.IsModified)
	assert.Equal(t, "school-1", row.SchoolID)
	assert.Equal(t, "class-1", row.ClassID)
	assert.Equal(t, models.WeekStartOf(testDate), row.WeekStart)
	assert.Equal(t, models.DayMonday, row.Day)
	assert.Equal(t, 1, row.Period)
}

func TestRejectDeletionLeavesWeekUntouched(t *testing.T) {
	repo := &changeWorkflowRepoStub{byID: map[string]*models.TimetableChange{
		"chg-1": {
			ID: "chg-1", SchoolID: "school-1", EntryKey: "entry-1",
			NewTeacherID: nil, Day: models.DayMonday, Period: 1,
			WeekStart: models.WeekStartOf(testDate), Status: models.ChangeStatusPending,
		},
	}}
	entries := entryReaderStub{entries: map[string]*models.TimetableEntry{
		"entry-1": {ID: "entry-1", ClassID: "class-1", Day: models.DayMonday, Period: 1, TeacherID: "teacher-1"},
	}}
	weekly := &weeklyRepoStub{}
	svc := newTestChangeService(repo, entries, weekly, nil)

	change, err := svc.Reject(context.Background(), adminClaims(), "chg-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChangeStatusRejected, change.Status)
	assert.Empty(t, weekly.upserted)
}

func TestApproveChangeRevalidatesCandidate(t *testing.T) {
	repo := &changeWorkflowRepoStub{byID: map[string]*models.TimetableChange{
		"chg-1": {
			ID: "chg-1", SchoolID: "school-1", EntryKey: "entry-1",
			NewTeacherID: strPtr("teacher-2"), Day: models.DayMonday, Period: 1,
			WeekStart: models.WeekStartOf(testDate), Status: models.ChangeStatusPending,
		},
	}}
	entries := entryReaderStub{entries: map[string]*models.TimetableEntry{
		"entry-1": {ID: "entry-1", ClassID: "class-1", Day: models.DayMonday, Period: 1},
	}}
	svc := newTestChangeService(repo, entries, nil, appErrors.ErrConflictingAssignment)

	_, err := svc.Approve(context.Background(), adminClaims(), "chg-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflictingAssignment.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.reviewed)
}

func TestReviewTerminalChangeRejected(t *testing.T) {
	repo := &changeWorkflowRepoStub{byID: map[string]*models.TimetableChange{
		"chg-1": {ID: "chg-1", EntryKey: "entry-1", Status: models.ChangeStatusRejected, WeekStart: models.WeekStartOf(testDate)},
	}}
	svc := newTestChangeService(repo, entryReaderStub{}, nil, nil)

	_, err := svc.Approve(context.Background(), adminClaims(), "chg-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.Reject(context.Background(), adminClaims(), "chg-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestReviewForbiddenForTeachers(t *testing.T) {
	svc := newTestChangeService(&changeWorkflowRepoStub{}, entryReaderStub{}, nil, nil)

	_, err := svc.Approve(context.Background(), teacherClaims(), "chg-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRejectSkipsCandidateValidation(t *testing.T) {
	repo := &changeWorkflowRepoStub{byID: map[string]*models.TimetableChange{
		"chg-1": {
			ID: "chg-1", SchoolID: "school-1", EntryKey: "entry-1",
			NewTeacherID: strPtr("teacher-2"), Day: models.DayMonday, Period: 1,
			WeekStart: models.WeekStartOf(testDate), Status: models.ChangeStatusPending,
		},
	}}
	entries := entryReaderStub{entries: map[string]*models.TimetableEntry{
		"entry-1": {ID: "entry-1", ClassID: "class-1", Day: models.DayMonday, Period: 1},
	}}
	// The proposed teacher has become unavailable; rejecting must still work.
	svc := newTestChangeService(repo, entries, nil, appErrors.ErrConflictingAssignment)

	change, err := svc.Reject(context.Background(), adminClaims(), "chg-1")
	require.NoError(t, err)
	assert.Equal(t, models.ChangeStatusRejected, change.Status)
}
