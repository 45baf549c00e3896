package models

import "time"

// AttendanceStatus represents the daily attendance state of a teacher.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate:
		return true
	default:
		return false
	}
}

// TeacherAttendanceRecord captures at most one attendance row per teacher per
// calendar date. Only an explicit absent row triggers substitution; a missing
// row is treated as present.
type TeacherAttendanceRecord struct {
	ID             string           `db:"id" json:"id"`
	SchoolID       string           `db:"school_id" json:"school_id"`
	TeacherID      string           `db:"teacher_id" json:"teacher_id"`
	AttendanceDate time.Time        `db:"attendance_date" json:"attendance_date"`
	Status         AttendanceStatus `db:"status" json:"status"`
	Reason         *string          `db:"reason" json:"reason,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}
