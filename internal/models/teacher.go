package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TeacherUnavailableSlot describes a blocked teaching window in a teacher's
// weekly availability declaration.
type TeacherUnavailableSlot struct {
	Day     DayName `json:"day_of_week"`
	Periods string  `json:"periods"` // single period "3" or inclusive range "3-5"
}

// Teacher is a member of the teaching staff together with the profile fields
// the candidate selector ranks on.
type Teacher struct {
	ID                 string         `db:"id" json:"id"`
	SchoolID           string         `db:"school_id" json:"school_id"`
	FullName           string         `db:"full_name" json:"full_name"`
	Email              string         `db:"email" json:"email"`
	SubjectIDs         types.JSONText `db:"subject_ids" json:"subject_ids"`
	Unavailable        types.JSONText `db:"unavailable" json:"unavailable"`
	SubstitutePriority int            `db:"substitute_priority" json:"substitute_priority"`
	MaxLoadPerDay      int            `db:"max_load_per_day" json:"max_load_per_day"`
	MaxLoadPerWeek     int            `db:"max_load_per_week" json:"max_load_per_week"`
	Active             bool           `db:"active" json:"active"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// Subjects decodes the subject id list.
func (t *Teacher) Subjects() []string {
	var ids []string
	if len(t.SubjectIDs) == 0 {
		return ids
	}
	_ = json.Unmarshal(t.SubjectIDs, &ids)
	return ids
}

// TeachesSubject reports whether the teacher's subject list contains id.
func (t *Teacher) TeachesSubject(id string) bool {
	for _, s := range t.Subjects() {
		if s == id {
			return true
		}
	}
	return false
}

// UnavailableSlots decodes the declared blocked windows.
func (t *Teacher) UnavailableSlots() []TeacherUnavailableSlot {
	var slots []TeacherUnavailableSlot
	if len(t.Unavailable) == 0 {
		return slots
	}
	_ = json.Unmarshal(t.Unavailable, &slots)
	return slots
}

// TeacherFilter captures filtering criteria for listing teachers.
type TeacherFilter struct {
	Active    *bool
	SubjectID string
	Search    string
	Page      int
	PageSize  int
}
