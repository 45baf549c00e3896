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

// TimetableRepository persists the canonical global schedule.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository creates a new timetable repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

const entryColumns = "id, school_id, class_id, day_of_week, period, teacher_id, subject_id, room, created_at, updated_at"

// FindByID loads a global entry by id.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.TimetableEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_entries WHERE id = $1", entryColumns)
	var entry models.TimetableEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByClassDay returns a class's global entries for one weekday, ordered by period.
func (r *TimetableRepository) ListByClassDay(ctx context.Context, classID string, day models.DayName) ([]models.TimetableEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_entries WHERE class_id = $1 AND day_of_week = $2 ORDER BY period", entryColumns)
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, classID, day); err != nil {
		return nil, fmt.Errorf("list entries by class/day: %w", err)
	}
	return entries, nil
}

// ListByClass returns every global entry for a class.
func (r *TimetableRepository) ListByClass(ctx context.Context, classID string) ([]models.TimetableEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_entries WHERE class_id = $1 ORDER BY day_of_week, period", entryColumns)
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, classID); err != nil {
		return nil, fmt.Errorf("list entries by class: %w", err)
	}
	return entries, nil
}

// ListByTeacher returns every global entry taught by a teacher.
func (r *TimetableRepository) ListByTeacher(ctx context.Context, teacherID string) ([]models.TimetableEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_entries WHERE teacher_id = $1 ORDER BY day_of_week, period", entryColumns)
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, teacherID); err != nil {
		return nil, fmt.Errorf("list entries by teacher: %w", err)
	}
	return entries, nil
}

// ListByDayPeriod returns all classes' global entries occupying one slot.
func (r *TimetableRepository) ListByDayPeriod(ctx context.Context, schoolID string, day models.DayName, period int) ([]models.TimetableEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_entries WHERE school_id = $1 AND day_of_week = $2 AND period = $3", entryColumns)
	var entries []models.TimetableEntry
	if err := r.db.SelectContext(ctx, &entries, query, schoolID, day, period); err != nil {
		return nil, fmt.Errorf("list entries by slot: %w", err)
	}
	return entries, nil
}

// Upsert writes a global entry keyed by (class, day, period).
func (r *TimetableRepository) Upsert(ctx context.Context, entry *models.TimetableEntry) error {
	now := time.Now().UTC()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.UpdatedAt = now
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	const query = `INSERT INTO timetable_entries (id, school_id, class_id, day_of_week, period, teacher_id, subject_id, room, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (class_id, day_of_week, period) DO UPDATE
		SET teacher_id = EXCLUDED.teacher_id, subject_id = EXCLUDED.subject_id, room = EXCLUDED.room, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.SchoolID, entry.ClassID, entry.Day, entry.Period,
		entry.TeacherID, entry.SubjectID, entry.Room, entry.CreatedAt, entry.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

// Delete removes a global entry.
func (r *TimetableRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM timetable_entries WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReplaceClassWithTx swaps a class's entire global schedule inside the given
// transaction: old rows out, new rows in. Readers observe either the full old
// or the full new set.
func (r *TimetableRepository) ReplaceClassWithTx(ctx context.Context, tx *sqlx.Tx, classID string, entries []models.TimetableEntry) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM timetable_entries WHERE class_id = $1", classID); err != nil {
		return fmt.Errorf("clear class entries: %w", err)
	}
	now := time.Now().UTC()
	const query = `INSERT INTO timetable_entries (id, school_id, class_id, day_of_week, period, teacher_id, subject_id, room, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for i := range entries {
		entry := &entries[i]
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		entry.CreatedAt = now
		entry.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, query,
			entry.ID, entry.SchoolID, entry.ClassID, entry.Day, entry.Period,
			entry.TeacherID, entry.SubjectID, entry.Room, entry.CreatedAt, entry.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert class entry: %w", err)
		}
	}
	return nil
}
