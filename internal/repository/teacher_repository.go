package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
)

// TeacherRepository provides persistence for the teacher roster.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository creates a new teacher repository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

const teacherColumns = "id, school_id, full_name, email, subject_ids, unavailable, substitute_priority, max_load_per_day, max_load_per_week, active, created_at, updated_at"

// List returns teachers with optional filtering and pagination.
func (r *TeacherRepository) List(ctx context.Context, schoolID string, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	base := "FROM teachers WHERE school_id = $1"
	args := []interface{}{schoolID}
	var conditions []string

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(full_name ILIKE $%d OR email ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY full_name LIMIT %d OFFSET %d", teacherColumns, base, size, offset)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}

	return teachers, total, nil
}

// ListActive returns every active teacher in the school.
func (r *TeacherRepository) ListActive(ctx context.Context, schoolID string) ([]models.Teacher, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers WHERE school_id = $1 AND active = TRUE ORDER BY id", teacherColumns)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, schoolID); err != nil {
		return nil, fmt.Errorf("list active teachers: %w", err)
	}
	return teachers, nil
}

// FindByID loads a teacher by id.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	query := fmt.Sprintf("SELECT %s FROM teachers WHERE id = $1", teacherColumns)
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// Create inserts a teacher row.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	now := time.Now().UTC()
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	teacher.CreatedAt = now
	teacher.UpdatedAt = now
	const query = `INSERT INTO teachers (id, school_id, full_name, email, subject_ids, unavailable, substitute_priority, max_load_per_day, max_load_per_week, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := r.db.ExecContext(ctx, query,
		teacher.ID, teacher.SchoolID, teacher.FullName, teacher.Email, teacher.SubjectIDs,
		teacher.Unavailable, teacher.SubstitutePriority, teacher.MaxLoadPerDay, teacher.MaxLoadPerWeek,
		teacher.Active, teacher.CreatedAt, teacher.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// UpdateProfile updates the selector-relevant profile fields.
func (r *TeacherRepository) UpdateProfile(ctx context.Context, teacher *models.Teacher) error {
	teacher.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teachers
		SET full_name = $1, email = $2, subject_ids = $3, unavailable = $4, substitute_priority = $5, max_load_per_day = $6, max_load_per_week = $7, active = $8, updated_at = $9
		WHERE id = $10`
	if _, err := r.db.ExecContext(ctx, query,
		teacher.FullName, teacher.Email, teacher.SubjectIDs, teacher.Unavailable,
		teacher.SubstitutePriority, teacher.MaxLoadPerDay, teacher.MaxLoadPerWeek,
		teacher.Active, teacher.UpdatedAt, teacher.ID,
	); err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}
	return nil
}
