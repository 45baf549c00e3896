package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
)

// WeeklyOverrideRepository persists per-week schedule overrides.
type WeeklyOverrideRepository struct {
	db *sqlx.DB
}

// NewWeeklyOverrideRepository creates a new weekly override repository.
func NewWeeklyOverrideRepository(db *sqlx.DB) *WeeklyOverrideRepository {
	return &WeeklyOverrideRepository{db: db}
}

const weeklyColumns = "id, school_id, class_id, week_start, day_of_week, period, teacher_id, subject_id, room, is_modified, created_at, updated_at"

// ListByClassWeek returns a class's override rows for one week.
func (r *WeeklyOverrideRepository) ListByClassWeek(ctx context.Context, classID string, weekStart time.Time) ([]models.WeeklyEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM weekly_entries WHERE class_id = $1 AND week_start = $2 ORDER BY day_of_week, period", weeklyColumns)
	var entries []models.WeeklyEntry
	if err := r.db.SelectContext(ctx, &entries, query, classID, weekStart); err != nil {
		return nil, fmt.Errorf("list weekly entries: %w", err)
	}
	return entries, nil
}

// HasEntries reports whether any override row exists for (class, week). A
// true result makes the week weekly-governed.
func (r *WeeklyOverrideRepository) HasEntries(ctx context.Context, classID string, weekStart time.Time) (bool, error) {
	const query = "SELECT EXISTS (SELECT 1 FROM weekly_entries WHERE class_id = $1 AND week_start = $2)"
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, classID, weekStart); err != nil {
		return false, fmt.Errorf("check weekly entries: %w", err)
	}
	return exists, nil
}

// ListByWeekDayPeriod returns every class's override row occupying one slot
// in one week.
func (r *WeeklyOverrideRepository) ListByWeekDayPeriod(ctx context.Context, schoolID string, weekStart time.Time, day models.DayName, period int) ([]models.WeeklyEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM weekly_entries WHERE school_id = $1 AND week_start = $2 AND day_of_week = $3 AND period = $4", weeklyColumns)
	var entries []models.WeeklyEntry
	if err := r.db.SelectContext(ctx, &entries, query, schoolID, weekStart, day, period); err != nil {
		return nil, fmt.Errorf("list weekly entries by slot: %w", err)
	}
	return entries, nil
}

// ListGovernedClasses returns the ids of classes with at least one override
// row in the week, i.e. the classes detached from the global schedule.
func (r *WeeklyOverrideRepository) ListGovernedClasses(ctx context.Context, schoolID string, weekStart time.Time) ([]string, error) {
	const query = "SELECT DISTINCT class_id FROM weekly_entries WHERE school_id = $1 AND week_start = $2"
	var classIDs []string
	if err := r.db.SelectContext(ctx, &classIDs, query, schoolID, weekStart); err != nil {
		return nil, fmt.Errorf("list governed classes: %w", err)
	}
	return classIDs, nil
}

// ListByTeacherWeek returns a teacher's override rows across classes for one week.
func (r *WeeklyOverrideRepository) ListByTeacherWeek(ctx context.Context, teacherID string, weekStart time.Time) ([]models.WeeklyEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM weekly_entries WHERE teacher_id = $1 AND week_start = $2", weeklyColumns)
	var entries []models.WeeklyEntry
	if err := r.db.SelectContext(ctx, &entries, query, teacherID, weekStart); err != nil {
		return nil, fmt.Errorf("list weekly entries by teacher: %w", err)
	}
	return entries, nil
}

// Upsert writes an override row keyed by (class, week, day, period). The
// write is idempotent: repeating it with the same payload is a no-op beyond
// the timestamp.
func (r *WeeklyOverrideRepository) Upsert(ctx context.Context, entry *models.WeeklyEntry) error {
	now := time.Now().UTC()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.UpdatedAt = now
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	const query = `INSERT INTO weekly_entries (id, school_id, class_id, week_start, day_of_week, period, teacher_id, subject_id, room, is_modified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (class_id, week_start, day_of_week, period) DO UPDATE
		SET teacher_id = EXCLUDED.teacher_id, subject_id = EXCLUDED.subject_id, room = EXCLUDED.room, is_modified = EXCLUDED.is_modified, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.SchoolID, entry.ClassID, entry.WeekStart, entry.Day, entry.Period,
		entry.TeacherID, entry.SubjectID, entry.Room, entry.IsModified, entry.CreatedAt, entry.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert weekly entry: %w", err)
	}
	return nil
}

// DeleteByClassWeekWithTx clears a week's overrides inside a transaction.
func (r *WeeklyOverrideRepository) DeleteByClassWeekWithTx(ctx context.Context, tx *sqlx.Tx, classID string, weekStart time.Time) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM weekly_entries WHERE class_id = $1 AND week_start = $2", classID, weekStart); err != nil {
		return fmt.Errorf("clear weekly entries: %w", err)
	}
	return nil
}

// BulkInsertWithTx inserts override rows inside a transaction.
func (r *WeeklyOverrideRepository) BulkInsertWithTx(ctx context.Context, tx *sqlx.Tx, entries []models.WeeklyEntry) error {
	now := time.Now().UTC()
	const query = `INSERT INTO weekly_entries (id, school_id, class_id, week_start, day_of_week, period, teacher_id, subject_id, room, is_modified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	for i := range entries {
		entry := &entries[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		entry.CreatedAt = now
		entry.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, query,
			entry.ID, entry.SchoolID, entry.ClassID, entry.WeekStart, entry.Day, entry.Period,
			entry.TeacherID, entry.SubjectID, entry.Room, entry.IsModified, entry.CreatedAt, entry.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert weekly entry: %w", err)
		}
	}
	return nil
}

// BeginTxx exposes transactions for multi-step weekly operations.
func (r *WeeklyOverrideRepository) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, opts)
}
