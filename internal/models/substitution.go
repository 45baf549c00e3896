package models

import "time"

// SubstitutionStatus tracks the lifecycle of a substitute assignment.
type SubstitutionStatus string

const (
	SubstitutionAutoAssigned SubstitutionStatus = "auto_assigned"
	SubstitutionConfirmed    SubstitutionStatus = "confirmed"
	SubstitutionRejected     SubstitutionStatus = "rejected"
)

// Valid returns true when the status is a supported value.
func (s SubstitutionStatus) Valid() bool {
	switch s {
	case SubstitutionAutoAssigned, SubstitutionConfirmed, SubstitutionRejected:
		return true
	default:
		return false
	}
}

// Substitution records a substitute teacher for one entry in one week. Only a
// confirmed row suppresses the needs-substitution flag; auto_assigned is a
// suggestion awaiting review.
type Substitution struct {
	ID                  string             `db:"id" json:"id"`
	SchoolID            string             `db:"school_id" json:"school_id"`
	EntryKey            string             `db:"entry_key" json:"entry_key"`
	SubstituteTeacherID string             `db:"substitute_teacher_id" json:"substitute_teacher_id"`
	Status              SubstitutionStatus `db:"status" json:"status"`
	Day                 DayName            `db:"day_of_week" json:"day_of_week"`
	Period              int                `db:"period" json:"period"`
	WeekStart           time.Time          `db:"week_start" json:"week_start"`
	CreatedAt           time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time          `db:"updated_at" json:"updated_at"`
}

// ChangeType enumerates proposed timetable change categories.
type ChangeType string

const (
	ChangeTypeSubstitution ChangeType = "substitution"
	ChangeTypeReassignment ChangeType = "reassignment"
)

// ChangeStatus captures the approval workflow states.
type ChangeStatus string

const (
	ChangeStatusPending  ChangeStatus = "pending"
	ChangeStatusApproved ChangeStatus = "approved"
	ChangeStatusRejected ChangeStatus = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s ChangeStatus) Terminal() bool {
	return s == ChangeStatusApproved || s == ChangeStatusRejected
}

// TimetableChange is a proposed substitution or reassignment raised by a
// non-admin role. It affects resolution only once approved, at which point it
// outranks any confirmed Substitution for the same entry. History is
// append-only: terminal rows are never mutated, re-proposals create new rows.
type TimetableChange struct {
	ID           string       `db:"id" json:"id"`
	SchoolID     string       `db:"school_id" json:"school_id"`
	EntryKey     string       `db:"entry_key" json:"entry_key"`
	ChangeType   ChangeType   `db:"change_type" json:"change_type"`
	NewTeacherID *string      `db:"new_teacher_id" json:"new_teacher_id"`
	Day          DayName      `db:"day_of_week" json:"day_of_week"`
	Period       int          `db:"period" json:"period"`
	WeekStart    time.Time    `db:"week_start" json:"week_start"`
	Status       ChangeStatus `db:"status" json:"status"`
	ProposedBy   string       `db:"proposed_by" json:"proposed_by"`
	ApprovedBy   *string      `db:"approved_by" json:"approved_by,omitempty"`
	ReviewedAt   *time.Time   `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// ChangeFilter constrains change listing queries.
type ChangeFilter struct {
	Status   []ChangeStatus
	ClassID  string
	EntryKey string
	Limit    int
	Offset   int
}
