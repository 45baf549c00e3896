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

// SubstitutionRepository persists substitute-teacher assignments.
type SubstitutionRepository struct {
	db *sqlx.DB
}

// NewSubstitutionRepository creates a new substitution repository.
func NewSubstitutionRepository(db *sqlx.DB) *SubstitutionRepository {
	return &SubstitutionRepository{db: db}
}

const substitutionColumns = "id, school_id, entry_key, substitute_teacher_id, status, day_of_week, period, week_start, created_at, updated_at"

// Create inserts a substitution row.
func (r *SubstitutionRepository) Create(ctx context.Context, sub *models.Substitution) error {
	now := time.Now().UTC()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	sub.CreatedAt = now
	sub.UpdatedAt = now
	const query = `INSERT INTO substitutions (id, school_id, entry_key, substitute_teacher_id, status, day_of_week, period, week_start, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query,
		sub.ID, sub.SchoolID, sub.EntryKey, sub.SubstituteTeacherID, sub.Status,
		sub.Day, sub.Period, sub.WeekStart, sub.CreatedAt, sub.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create substitution: %w", err)
	}
	return nil
}

// FindByID loads a substitution by id.
func (r *SubstitutionRepository) FindByID(ctx context.Context, id string) (*models.Substitution, error) {
	query := fmt.Sprintf("SELECT %s FROM substitutions WHERE id = $1", substitutionColumns)
	var sub models.Substitution
	if err := r.db.GetContext(ctx, &sub, query, id); err != nil {
		return nil, err
	}
	return &sub, nil
}

// FindConfirmed returns the confirmed substitution for (entry, week), if any.
func (r *SubstitutionRepository) FindConfirmed(ctx context.Context, entryKey string, weekStart time.Time) (*models.Substitution, error) {
	query := fmt.Sprintf("SELECT %s FROM substitutions WHERE entry_key = $1 AND week_start = $2 AND status = $3 ORDER BY updated_at DESC LIMIT 1", substitutionColumns)
	var sub models.Substitution
	if err := r.db.GetContext(ctx, &sub, query, entryKey, weekStart, models.SubstitutionConfirmed); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListByWeekSlot returns substitutions occupying substitutes at one slot of
// one week, across all classes.
func (r *SubstitutionRepository) ListByWeekSlot(ctx context.Context, schoolID string, weekStart time.Time, day models.DayName, period int) ([]models.Substitution, error) {
	query := fmt.Sprintf("SELECT %s FROM substitutions WHERE school_id = $1 AND week_start = $2 AND day_of_week = $3 AND period = $4 AND status = $5", substitutionColumns)
	var subs []models.Substitution
	if err := r.db.SelectContext(ctx, &subs, query, schoolID, weekStart, day, period, models.SubstitutionConfirmed); err != nil {
		return nil, fmt.Errorf("list substitutions by slot: %w", err)
	}
	return subs, nil
}

// CountByTeacherWeek returns how many confirmed substitutions a teacher
// already carries in one week.
func (r *SubstitutionRepository) CountByTeacherWeek(ctx context.Context, teacherID string, weekStart time.Time) (int, error) {
	const query = "SELECT COUNT(*) FROM substitutions WHERE substitute_teacher_id = $1 AND week_start = $2 AND status = $3"
	var count int
	if err := r.db.GetContext(ctx, &count, query, teacherID, weekStart, models.SubstitutionConfirmed); err != nil {
		return 0, fmt.Errorf("count substitutions by teacher: %w", err)
	}
	return count, nil
}

// UpdateStatus moves a substitution into a new status.
func (r *SubstitutionRepository) UpdateStatus(ctx context.Context, id string, status models.SubstitutionStatus) error {
	const query = "UPDATE substitutions SET status = $1, updated_at = $2 WHERE id = $3"
	if _, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("update substitution status: %w", err)
	}
	return nil
}

// RetireForEntries removes not-yet-confirmed suggestions for the given entry
// keys in one week. Used when attendance is corrected back to present:
// confirmed rows survive as history, pending suggestions are withdrawn.
func (r *SubstitutionRepository) RetireForEntries(ctx context.Context, entryKeys []string, weekStart time.Time) error {
	if len(entryKeys) == 0 {
		return nil
	}
	placeholders := make([]string, len(entryKeys))
	args := make([]interface{}, 0, len(entryKeys)+2)
	args = append(args, weekStart, models.SubstitutionAutoAssigned)
	for i, key := range entryKeys {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, key)
	}
	query := fmt.Sprintf("DELETE FROM substitutions WHERE week_start = $1 AND status = $2 AND entry_key IN (%s)", strings.Join(placeholders, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("retire substitutions: %w", err)
	}
	return nil
}

// DeleteByEntry removes all of an entry's substitution rows. Used when the
// underlying timetable entry is deleted.
func (r *SubstitutionRepository) DeleteByEntry(ctx context.Context, entryKey string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM substitutions WHERE entry_key = $1", entryKey); err != nil {
		return fmt.Errorf("delete substitutions by entry: %w", err)
	}
	return nil
}
