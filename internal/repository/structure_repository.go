package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
)

// StructureRepository provides persistence for timetable structures.
type StructureRepository struct {
	db *sqlx.DB
}

// NewStructureRepository creates a new structure repository.
func NewStructureRepository(db *sqlx.DB) *StructureRepository {
	return &StructureRepository{db: db}
}

const structureColumns = "id, school_id, periods_per_day, working_days, time_slots, active, created_at, updated_at"

// GetActive loads the school's active structure.
func (r *StructureRepository) GetActive(ctx context.Context, schoolID string) (*models.TimetableStructure, error) {
	query := fmt.Sprintf("SELECT %s FROM timetable_structures WHERE school_id = $1 AND active = TRUE", structureColumns)
	var structure models.TimetableStructure
	if err := r.db.GetContext(ctx, &structure, query, schoolID); err != nil {
		return nil, err
	}
	return &structure, nil
}

// Replace swaps the school's active structure wholesale: the previous row is
// deactivated and the new one inserted in a single transaction.
func (r *StructureRepository) Replace(ctx context.Context, structure *models.TimetableStructure) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace structure: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		"UPDATE timetable_structures SET active = FALSE, updated_at = $1 WHERE school_id = $2 AND active = TRUE",
		now, structure.SchoolID,
	); err != nil {
		return fmt.Errorf("deactivate structure: %w", err)
	}

	if structure.ID == "" {
		structure.ID = uuid.NewString()
	}
	structure.Active = true
	structure.CreatedAt = now
	structure.UpdatedAt = now

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO timetable_structures (id, school_id, periods_per_day, working_days, time_slots, active, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)",
		structure.ID, structure.SchoolID, structure.PeriodsPerDay, structure.WorkingDays, structure.TimeSlots, structure.CreatedAt, structure.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert structure: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace structure: %w", err)
	}
	return nil
}
