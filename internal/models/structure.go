package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// DayName is a lowercase weekday name used across timetable records.
type DayName string

const (
	DayMonday    DayName = "monday"
	DayTuesday   DayName = "tuesday"
	DayWednesday DayName = "wednesday"
	DayThursday  DayName = "thursday"
	DayFriday    DayName = "friday"
	DaySaturday  DayName = "saturday"
	DaySunday    DayName = "sunday"
)

// Valid returns true when the day is a schedulable value. Sunday exists only
// as DayOf's calendar mapping; timetable records never carry it.
func (d DayName) Valid() bool {
	switch d {
	case DayMonday, DayTuesday, DayWednesday, DayThursday, DayFriday, DaySaturday:
		return true
	default:
		return false
	}
}

// ParseDay normalises a raw string into a DayName.
func ParseDay(raw string) (DayName, bool) {
	d := DayName(strings.ToLower(strings.TrimSpace(raw)))
	return d, d.Valid()
}

// DayOf maps a calendar date to its DayName.
func DayOf(date time.Time) DayName {
	switch date.Weekday() {
	case time.Monday:
		return DayMonday
	case time.Tuesday:
		return DayTuesday
	case time.Wednesday:
		return DayWednesday
	case time.Thursday:
		return DayThursday
	case time.Friday:
		return DayFriday
	case time.Saturday:
		return DaySaturday
	default:
		return DaySunday
	}
}

// WeekStartOf returns the Monday of the week containing date, truncated to
// midnight UTC. Weekly overrides and substitutions are keyed by this value.
func WeekStartOf(date time.Time) time.Time {
	d := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// DateFor returns the calendar date of day within the week starting at
// weekStart.
func DateFor(weekStart time.Time, day DayName) time.Time {
	offsets := map[DayName]int{
		DayMonday: 0, DayTuesday: 1, DayWednesday: 2, DayThursday: 3,
		DayFriday: 4, DaySaturday: 5, DaySunday: 6,
	}
	return DateOnly(weekStart).AddDate(0, 0, offsets[day])
}

// DateOnly truncates a timestamp to its calendar date in UTC.
func DateOnly(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
}

// TimeSlot describes one period in the daily grid.
type TimeSlot struct {
	Period    int    `json:"period"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	IsBreak   bool   `json:"is_break"`
}

// TimetableStructure is the school's active grid definition: working days and
// the ordered period list. Exactly one row is active per school; editing
// replaces the row wholesale.
type TimetableStructure struct {
	ID            string         `db:"id" json:"id"`
	SchoolID      string         `db:"school_id" json:"school_id"`
	PeriodsPerDay int            `db:"periods_per_day" json:"periods_per_day"`
	WorkingDays   types.JSONText `db:"working_days" json:"working_days"`
	TimeSlots     types.JSONText `db:"time_slots" json:"time_slots"`
	Active        bool           `db:"active" json:"active"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// Days decodes the working-day set.
func (s *TimetableStructure) Days() ([]DayName, error) {
	var days []DayName
	if len(s.WorkingDays) == 0 {
		return days, nil
	}
	if err := json.Unmarshal(s.WorkingDays, &days); err != nil {
		return nil, err
	}
	return days, nil
}

// Slots decodes the ordered time-slot list.
func (s *TimetableStructure) Slots() ([]TimeSlot, error) {
	var slots []TimeSlot
	if len(s.TimeSlots) == 0 {
		return slots, nil
	}
	if err := json.Unmarshal(s.TimeSlots, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// IsWorkingDay reports whether day belongs to the structure's working set.
func (s *TimetableStructure) IsWorkingDay(day DayName) bool {
	days, err := s.Days()
	if err != nil {
		return false
	}
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

// SlotFor returns the time slot for a period, if defined.
func (s *TimetableStructure) SlotFor(period int) (TimeSlot, bool) {
	slots, err := s.Slots()
	if err != nil {
		return TimeSlot{}, false
	}
	for _, slot := range slots {
		if slot.Period == period {
			return slot, true
		}
	}
	return TimeSlot{}, false
}
