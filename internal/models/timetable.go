package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimetableEntry is a canonical base assignment: who teaches what for a class
// at (day, period), valid for every week unless overridden. Absence of a row
// means a free period.
type TimetableEntry struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	Day       DayName   `db:"day_of_week" json:"day_of_week"`
	Period    int       `db:"period" json:"period"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	SubjectID string    `db:"subject_id" json:"subject_id"`
	Room      *string   `db:"room" json:"room,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WeeklyEntry overrides the global schedule for one ISO week. A row with null
// teacher and subject ids encodes an explicit free period for that week,
// distinct from "no row", which defers to the global layer.
type WeeklyEntry struct {
	ID         string    `db:"id" json:"id"`
	SchoolID   string    `db:"school_id" json:"school_id"`
	ClassID    string    `db:"class_id" json:"class_id"`
	WeekStart  time.Time `db:"week_start" json:"week_start"`
	Day        DayName   `db:"day_of_week" json:"day_of_week"`
	Period     int       `db:"period" json:"period"`
	TeacherID  *string   `db:"teacher_id" json:"teacher_id"`
	SubjectID  *string   `db:"subject_id" json:"subject_id"`
	Room       *string   `db:"room" json:"room,omitempty"`
	IsModified bool      `db:"is_modified" json:"is_modified"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// IsFree reports whether the entry encodes an explicit free period.
func (w *WeeklyEntry) IsFree() bool {
	return w.TeacherID == nil
}

// EntryRefKind discriminates the two entry identity variants.
type EntryRefKind string

const (
	EntryRefStable    EntryRefKind = "stable"
	EntryRefSynthetic EntryRefKind = "synthetic"
)

// EntryRef identifies the logical entry behind an effective slot. A stable
// ref points at a persisted TimetableEntry row; a synthetic ref identifies a
// weekly-only slot by its (weekStart, day, period) coordinates. Delete and
// edit routing branch on the variant rather than on id string shape.
type EntryRef struct {
	Kind      EntryRefKind `json:"kind"`
	ID        string       `json:"id,omitempty"`
	ClassID   string       `json:"class_id,omitempty"`
	WeekStart time.Time    `json:"week_start,omitempty"`
	Day       DayName      `json:"day_of_week,omitempty"`
	Period    int          `json:"period,omitempty"`
}

// StableRef builds a ref for a persisted timetable entry.
func StableRef(id string) EntryRef {
	return EntryRef{Kind: EntryRefStable, ID: id}
}

// SyntheticRef builds a ref scoped to one class-week's slot coordinates.
func SyntheticRef(classID string, weekStart time.Time, day DayName, period int) EntryRef {
	return EntryRef{Kind: EntryRefSynthetic, ClassID: classID, WeekStart: weekStart, Day: day, Period: period}
}

// Key returns a stable string form usable as a substitution/change target.
func (r EntryRef) Key() string {
	if r.Kind == EntryRefStable {
		return r.ID
	}
	return fmt.Sprintf("weekly:%s:%s:%s:%d", r.ClassID, r.WeekStart.Format("2006-01-02"), r.Day, r.Period)
}

// ParseEntryKey reverses Key. Any string without the weekly prefix is a
// stable entry id.
func ParseEntryKey(key string) (EntryRef, error) {
	if !strings.HasPrefix(key, "weekly:") {
		return StableRef(key), nil
	}
	parts := strings.Split(key, ":")
	if len(parts) != 5 {
		return EntryRef{}, fmt.Errorf("malformed entry key %q", key)
	}
	weekStart, err := time.Parse("2006-01-02", parts[2])
	if err != nil {
		return EntryRef{}, fmt.Errorf("malformed entry key %q: %w", key, err)
	}
	day, ok := ParseDay(parts[3])
	if !ok {
		return EntryRef{}, fmt.Errorf("malformed entry key %q: unknown day", key)
	}
	period, err := strconv.Atoi(parts[4])
	if err != nil {
		return EntryRef{}, fmt.Errorf("malformed entry key %q: %w", key, err)
	}
	return SyntheticRef(parts[1], weekStart, day, period), nil
}

// SourceLayer names the layer an effective slot was resolved from.
type SourceLayer string

const (
	SourceWeekly SourceLayer = "weekly"
	SourceGlobal SourceLayer = "global"
	SourceFree   SourceLayer = "free"
)

// EffectiveSlot is the resolver's output for one period of one class-day: the
// merged assignment plus substitution state.
type EffectiveSlot struct {
	Period              int         `json:"period"`
	StartTime           string      `json:"start_time,omitempty"`
	EndTime             string      `json:"end_time,omitempty"`
	IsBreak             bool        `json:"is_break,omitempty"`
	TeacherID           string      `json:"teacher_id,omitempty"`
	SubjectID           string      `json:"subject_id,omitempty"`
	Room                string      `json:"room,omitempty"`
	SourceLayer         SourceLayer `json:"source_layer"`
	Ref                 *EntryRef   `json:"ref,omitempty"`
	NeedsSubstitution   bool        `json:"needs_substitution"`
	SubstituteTeacherID string      `json:"substitute_teacher_id,omitempty"`
}
