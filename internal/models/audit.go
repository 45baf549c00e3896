package models

import "time"

// Audit actions recorded by the timetable core.
const (
	AuditActionAssignSlot      = "timetable.assign_slot"
	AuditActionDeleteSlot      = "timetable.delete_slot"
	AuditActionSetAsGlobal     = "timetable.set_as_global"
	AuditActionCopyFromGlobal  = "timetable.copy_from_global"
	AuditActionGenerate        = "timetable.generate"
	AuditActionUpdateStructure = "timetable.update_structure"
	AuditActionMarkAttendance  = "attendance.mark"
	AuditActionProposeChange   = "change.propose"
	AuditActionReviewChange    = "change.review"
	AuditActionFreezeToggle    = "freeze.toggle"
)

// AuditLog records who did what to which resource.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  string    `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
