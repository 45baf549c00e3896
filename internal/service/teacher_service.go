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

type teacherRepository interface {
	List(ctx context.Context, schoolID string, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	UpdateProfile(ctx context.Context, teacher *models.Teacher) error
}

// TeacherService manages the roster and the availability profiles the
// selector and generator rank on.
type TeacherService struct {
	repo      teacherRepository
	policy    *AuthorizationPolicy
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs the teacher service.
func NewTeacherService(repo teacherRepository, policy *AuthorizationPolicy, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if policy == nil {
		policy = NewAuthorizationPolicy()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, policy: policy, validator: validate, logger: logger}
}

// List returns roster entries with pagination metadata.
func (s *TeacherService) List(ctx context.Context, schoolID string, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	teachers, total, err := s.repo.List(ctx, schoolID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return teachers, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get loads one teacher.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// UnavailableSlotRequest is one blocked window in a profile update.
type UnavailableSlotRequest struct {
	Day     string `json:"day_of_week" validate:"required"`
	Periods string `json:"periods" validate:"required"`
}

// TeacherProfileRequest covers creation and profile updates.
type TeacherProfileRequest struct {
	FullName           string                   `json:"full_name" validate:"required"`
	Email              string                   `json:"email" validate:"required,email"`
	SubjectIDs         []string                 `json:"subject_ids"`
	Unavailable        []UnavailableSlotRequest `json:"unavailable" validate:"dive"`
	SubstitutePriority int                      `json:"substitute_priority"`
	MaxLoadPerDay      int                      `json:"max_load_per_day" validate:"min=0"`
	MaxLoadPerWeek     int                      `json:"max_load_per_week" validate:"min=0"`
	Active             *bool                    `json:"active"`
}

// Create registers a new teacher. Admin only.
func (s *TeacherService) Create(ctx context.Context, actor *models.JWTClaims, req TeacherProfileRequest) (*models.Teacher, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	if !s.policy.CanEditDirect(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may manage the roster")
	}
	teacher, err := s.buildTeacher(actor.SchoolID, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	return teacher, nil
}

// UpdateProfile replaces a teacher's profile. Admin only.
func (s *TeacherService) UpdateProfile(ctx context.Context, actor *models.JWTClaims, id string, req TeacherProfileRequest) (*models.Teacher, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	if !s.policy.CanEditDirect(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may manage the roster")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	teacher, err := s.buildTeacher(actor.SchoolID, req)
	if err != nil {
		return nil, err
	}
	teacher.ID = existing.ID
	if err := s.repo.UpdateProfile(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	return teacher, nil
}

func (s *TeacherService) buildTeacher(schoolID string, req TeacherProfileRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	windows := make([]models.TeacherUnavailableSlot, 0, len(req.Unavailable))
	for _, window := range req.Unavailable {
		day, ok := models.ParseDay(window.Day)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown day name %q", window.Day))
		}
		if _, _, ok := parsePeriodRange(window.Periods); !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("malformed period range %q", window.Periods))
		}
		windows = append(windows, models.TeacherUnavailableSlot{Day: day, Periods: window.Periods})
	}

	subjectsJSON, err := json.Marshal(req.SubjectIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode subjects")
	}
	windowsJSON, err := json.Marshal(windows)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode availability")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &models.Teacher{
		SchoolID:           schoolID,
		FullName:           req.FullName,
		Email:              req.Email,
		SubjectIDs:         types.JSONText(subjectsJSON),
		Unavailable:        types.JSONText(windowsJSON),
		SubstitutePriority: req.SubstitutePriority,
		MaxLoadPerDay:      req.MaxLoadPerDay,
		MaxLoadPerWeek:     req.MaxLoadPerWeek,
		Active:             active,
	}, nil
}
