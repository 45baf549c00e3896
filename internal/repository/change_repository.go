package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
)

// ChangeRepository persists proposed timetable changes and their review
// history. Rows are append-only: terminal rows are never updated again.
type ChangeRepository struct {
	db *sqlx.DB
}

// NewChangeRepository creates a new change repository.
func NewChangeRepository(db *sqlx.DB) *ChangeRepository {
	return &ChangeRepository{db: db}
}

const changeColumns = "id, school_id, entry_key, change_type, new_teacher_id, day_of_week, period, week_start, status, proposed_by, approved_by, reviewed_at, created_at, updated_at"

// Create inserts a pending change proposal.
func (r *ChangeRepository) Create(ctx context.Context, change *models.TimetableChange) error {
	now := time.Now().UTC()
	if change.ID == "" {
		change.ID = uuid.NewString()
	}
	change.Status = models.ChangeStatusPending
	change.CreatedAt = now
	change.UpdatedAt = now
	const query = `INSERT INTO timetable_changes (id, school_id, entry_key, change_type, new_teacher_id, day_of_week, period, week_start, status, proposed_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	if _, err := r.db.ExecContext(ctx, query,
		change.ID, change.SchoolID, change.EntryKey, change.ChangeType, change.NewTeacherID,
		change.Day, change.Period, change.WeekStart, change.Status, change.ProposedBy,
		change.CreatedAt, change.UpdatedAt,
	); err != nil {
		return fmt.Errorf("create change: %w", err)
	}
	return nil
}

// FindByID loads a change by id.
func (r *ChangeRepository) FindByID(ctx context.Context, id string) (*models.TimetableChange, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_changes WHERE id = $1", changeColumns)
	var change models.TimetableChange
	if err := r.db.GetContext(ctx, &change, query, id); err != nil {
		return nil, err
	}
	return &change, nil
}

// FindPendingByEntry returns the pending change for (entry, week), if any.
func (r *ChangeRepository) FindPendingByEntry(ctx context.Context, entryKey string, weekStart time.Time) (*models.TimetableChange, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_changes WHERE entry_key = $1 AND week_start = $2 AND status = $3 LIMIT 1", changeColumns)
	var change models.TimetableChange
	if err := r.db.GetContext(ctx, &change, query, entryKey, weekStart, models.ChangeStatusPending); err != nil {
		return nil, err
	}
	return &change, nil
}

// FindApprovedByEntry returns the most recently approved change for
// (entry, week), if any. This is the resolver's highest-precedence layer.
func (r *ChangeRepository) FindApprovedByEntry(ctx context.Context, entryKey string, weekStart time.Time) (*models.TimetableChange, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_changes WHERE entry_key = $1 AND week_start = $2 AND status = $3 ORDER BY reviewed_at DESC LIMIT 1", changeColumns)
	var change models.TimetableChange
	if err := r.db.GetContext(ctx, &change, query, entryKey, weekStart, models.ChangeStatusApproved); err != nil {
		return nil, err
	}
	return &change, nil
}

// ListApprovedBySlot returns approved changes occupying one (day, period)
// slot in one week across all classes. Used to build the selector's busy set.
func (r *ChangeRepository) ListApprovedBySlot(ctx context.Context, schoolID string, weekStart time.Time, day models.DayName, period int) ([]models.TimetableChange, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_changes WHERE school_id = $1 AND week_start = $2 AND day_of_week = $3 AND period = $4 AND status = $5", changeColumns)
	var changes []models.TimetableChange
	if err := r.db.SelectContext(ctx, &changes, query, schoolID, weekStart, day, period, models.ChangeStatusApproved); err != nil {
		return nil, fmt.Errorf("list approved changes by slot: %w", err)
	}
	return changes, nil
}

// List returns changes matching the filter, newest first.
func (r *ChangeRepository) List(ctx context.Context, filter models.ChangeFilter) ([]models.TimetableChange, error) {
	base := fmt.Sprintf("SELECT %s FROM timetable_changes WHERE 1=1", changeColumns)
	var conditions []string
	var args []interface{}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, status)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}
	if filter.EntryKey != "" {
		conditions = append(conditions, fmt.Sprintf("entry_key = $%d", len(args)+1))
		args = append(args, filter.EntryKey)
	}

	query := base
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, filter.Offset)

	var changes []models.TimetableChange
	if err := r.db.SelectContext(ctx, &changes, query, args...); err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	return changes, nil
}

// Review transitions a pending change into a terminal status. The WHERE
// clause guards terminality: reviewing an already-reviewed change affects
// zero rows and returns sql.ErrNoRows.
func (r *ChangeRepository) Review(ctx context.Context, id string, status models.ChangeStatus, reviewerID string) error {
	now := time.Now().UTC()
	const query = `UPDATE timetable_changes
		SET status = $1, approved_by = $2, reviewed_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, status, reviewerID, now, id, models.ChangeStatusPending)
	if err != nil {
		return fmt.Errorf("review change: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("review change result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
