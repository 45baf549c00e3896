package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
)

// AttendanceRepository persists daily teacher attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository creates a new attendance repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = "id, school_id, teacher_id, attendance_date, status, reason, created_at, updated_at"

// Get loads the record for (teacher, date), if any.
func (r *AttendanceRepository) Get(ctx context.Context, teacherID string, date time.Time) (*models.TeacherAttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM teacher_attendance WHERE teacher_id = $1 AND attendance_date = $2", attendanceColumns)
	var record models.TeacherAttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, teacherID, models.DateOnly(date)); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByDate returns all records for one calendar date.
func (r *AttendanceRepository) ListByDate(ctx context.Context, schoolID string, date time.Time) ([]models.TeacherAttendanceRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM teacher_attendance WHERE school_id = $1 AND attendance_date = $2 ORDER BY teacher_id", attendanceColumns)
	var records []models.TeacherAttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, schoolID, models.DateOnly(date)); err != nil {
		return nil, fmt.Errorf("list attendance by date: %w", err)
	}
	return records, nil
}

// ListAbsentTeacherIDs returns the ids of teachers explicitly marked absent on date.
func (r *AttendanceRepository) ListAbsentTeacherIDs(ctx context.Context, schoolID string, date time.Time) ([]string, error) {
	const query = "SELECT teacher_id FROM teacher_attendance WHERE school_id = $1 AND attendance_date = $2 AND status = $3"
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, schoolID, models.DateOnly(date), models.AttendanceAbsent); err != nil {
		return nil, fmt.Errorf("list absent teachers: %w", err)
	}
	return ids, nil
}

// Upsert writes the single record for (teacher, date), overwriting status and
// reason when one already exists.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.TeacherAttendanceRecord) error {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.AttendanceDate = models.DateOnly(record.AttendanceDate)
	record.UpdatedAt = now
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	const query = `INSERT INTO teacher_attendance (id, school_id, teacher_id, attendance_date, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (teacher_id, attendance_date) DO UPDATE
		SET status = EXCLUDED.status, reason = EXCLUDED.reason, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query,
		record.ID, record.SchoolID, record.TeacherID, record.AttendanceDate,
		record.Status, record.Reason, record.CreatedAt, record.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert attendance: %w", err)
	}
	return nil
}
