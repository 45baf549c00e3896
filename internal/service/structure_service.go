package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
)

type structureRepository interface {
	GetActive(ctx context.Context, schoolID string) (*models.TimetableStructure, error)
	Replace(ctx context.Context, structure *models.TimetableStructure) error
}

// StructureService manages the school's active grid definition.
type StructureService struct {
	repo      structureRepository
	policy    *AuthorizationPolicy
	cache     *CacheService
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStructureService constructs the structure service.
func NewStructureService(repo structureRepository, policy *AuthorizationPolicy, cache *CacheService, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *StructureService {
	if policy == nil {
		policy = NewAuthorizationPolicy()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StructureService{repo: repo, policy: policy, cache: cache, audit: audit, validator: validate, logger: logger}
}

// Get returns the active structure.
func (s *StructureService) Get(ctx context.Context, schoolID string) (*models.TimetableStructure, error) {
	structure, err := s.repo.GetActive(ctx, schoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active timetable structure")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load structure")
	}
	return structure, nil
}

// TimeSlotRequest is one period definition in a structure update.
type TimeSlotRequest struct {
	Period    int    `json:"period" validate:"required,min=1"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	IsBreak   bool   `json:"is_break"`
}

// UpdateStructureRequest replaces the active grid wholesale.
type UpdateStructureRequest struct {
	WorkingDays []string          `json:"working_days" validate:"required,min=1"`
	TimeSlots   []TimeSlotRequest `json:"time_slots" validate:"required,min=1,dive"`
}

// Update validates and replaces the active structure. Period numbers must be
// unique and strictly increasing; day names must be valid and unique.
func (s *StructureService) Update(ctx context.Context, actor *models.JWTClaims, req UpdateStructureRequest) (*models.TimetableStructure, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	if !s.policy.CanEditDirect(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may edit the structure")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid structure payload")
	}

	days := make([]models.DayName, 0, len(req.WorkingDays))
	seenDays := make(map[models.DayName]bool)
	for _, raw := range req.WorkingDays {
		day, ok := models.ParseDay(raw)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown day name %q", raw))
		}
		if seenDays[day] {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate working day %q", day))
		}
		seenDays[day] = true
		days = append(days, day)
	}

	slots := make([]models.TimeSlot, 0, len(req.TimeSlots))
	previous := 0
	teaching := 0
	for _, slot := range req.TimeSlots {
		if slot.Period <= previous {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("period numbers must be unique and strictly increasing, got %d after %d", slot.Period, previous))
		}
		previous = slot.Period
		if !slot.IsBreak {
			teaching++
		}
		slots = append(slots, models.TimeSlot{
			Period:    slot.Period,
			StartTime: slot.StartTime,
			EndTime:   slot.EndTime,
			IsBreak:   slot.IsBreak,
		})
	}
	if teaching == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "structure needs at least one non-break period")
	}

	daysJSON, err := json.Marshal(days)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode working days")
	}
	slotsJSON, err := json.Marshal(slots)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode time slots")
	}

	structure := &models.TimetableStructure{
		SchoolID:      actor.SchoolID,
		PeriodsPerDay: teaching,
		WorkingDays:   types.JSONText(daysJSON),
		TimeSlots:     types.JSONText(slotsJSON),
		Active:        true,
	}
	if err := s.repo.Replace(ctx, structure); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace structure")
	}

	s.cache.InvalidateAll(ctx)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionUpdateStructure, "timetable_structures", structure.ID, structure)
	return structure, nil
}
