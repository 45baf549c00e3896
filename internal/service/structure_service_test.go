package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
)

type structureRepoStub struct {
	active   *models.TimetableStructure
	replaced *models.TimetableStructure
}

func (s *structureRepoStub) GetActive(ctx context.Context, schoolID string) (*models.TimetableStructure, error) {
	if s.active == nil {
		return nil, sql.ErrNoRows
	}
	return s.active, nil
}

func (s *structureRepoStub) Replace(ctx context.Context, structure *models.TimetableStructure) error {
	s.replaced = structure
	return nil
}

func validStructureUpdate() UpdateStructureRequest {
	return UpdateStructureRequest{
		WorkingDays: []string{"monday", "tuesday", "wednesday"},
		TimeSlots: []TimeSlotRequest{
			{Period: 1, StartTime: "08:00", EndTime: "08:45"},
			{Period: 2, StartTime: "08:45", EndTime: "09:00", IsBreak: true},
			{Period: 3, StartTime: "09:00", EndTime: "09:45"},
		},
	}
}

func TestStructureGetNotFound(t *testing.T) {
	svc := NewStructureService(&structureRepoStub{}, nil, nil, nil, nil, nil)

	_, err := svc.Get(context.Background(), "school-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStructureUpdate(t *testing.T) {
	repo := &structureRepoStub{}
	svc := NewStructureService(repo, nil, nil, nil, nil, nil)

	structure, err := svc.Update(context.Background(), adminClaims(), validStructureUpdate())
	require.NoError(t, err)
	require.NotNil(t, repo.replaced)
	assert.Equal(t, 2, structure.PeriodsPerDay)
	assert.True(t, structure.Active)

	days, err := structure.Days()
	require.NoError(t, err)
	assert.Equal(t, []models.DayName{models.DayMonday, models.DayTuesday, models.DayWednesday}, days)

	slots, err := structure.Slots()
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.True(t, slots[1].IsBreak)
}

func TestStructureUpdateForbiddenForTeachers(t *testing.T) {
	svc := NewStructureService(&structureRepoStub{}, nil, nil, nil, nil, nil)

	_, err := svc.Update(context.Background(), teacherClaims(), validStructureUpdate())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestStructureUpdateRejectsNonIncreasingPeriods(t *testing.T) {
	svc := NewStructureService(&structureRepoStub{}, nil, nil, nil, nil, nil)

	req := validStructureUpdate()
	req.TimeSlots[2].Period = 2
	_, err := svc.Update(context.Background(), adminClaims(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStructureUpdateRejectsUnknownDay(t *testing.T) {
	svc := NewStructureService(&structureRepoStub{}, nil, nil, nil, nil, nil)

	req := validStructureUpdate()
	req.WorkingDays = []string{"monday", "moonday"}
	_, err := svc.Update(context.Background(), adminClaims(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStructureUpdateRejectsDuplicateDay(t *testing.T) {
	svc := NewStructureService(&structureRepoStub{}, nil, nil, nil, nil, nil)

	req := validStructureUpdate()
	req.WorkingDays = []string{"monday", "Monday"}
	_, err := svc.Update(context.Background(), adminClaims(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStructureUpdateRejectsAllBreaks(t *testing.T) {
	svc := NewStructureService(&structureRepoStub{}, nil, nil, nil, nil, nil)

	req := UpdateStructureRequest{
		WorkingDays: []string{"monday"},
		TimeSlots: []TimeSlotRequest{
			{Period: 1, StartTime: "08:00", EndTime: "08:15", IsBreak: true},
		},
	}
	_, err := svc.Update(context.Background(), adminClaims(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
