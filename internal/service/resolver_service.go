package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
)

type resolverStructureReader interface {
	GetActive(ctx context.Context, schoolID string) (*models.TimetableStructure, error)
}

type resolverGlobalReader interface {
	ListByClassDay(ctx context.Context, classID string, day models.DayName) ([]models.TimetableEntry, error)
}

type resolverWeeklyReader interface {
	ListByClassWeek(ctx context.Context, classID string, weekStart time.Time) ([]models.WeeklyEntry, error)
}

type resolverAttendanceReader interface {
	Get(ctx context.Context, teacherID string, date time.Time) (*models.TeacherAttendanceRecord, error)
}

type resolverChangeReader interface {
	FindApprovedByEntry(ctx context.Context, entryKey string, weekStart time.Time) (*models.TimetableChange, error)
}

type resolverSubstitutionReader interface {
	FindConfirmed(ctx context.Context, entryKey string, weekStart time.Time) (*models.Substitution, error)
}

// substitutionContext carries everything a precedence rule may inspect.
type substitutionContext struct {
	EntryKey  string
	WeekStart time.Time
	Day       models.DayName
	Period    int
}

// substitutionRule inspects one precedence layer. It returns the substitute
// teacher id and true when the layer yields a decision; rules are evaluated
// in fixed order until one does.
type substitutionRule func(ctx context.Context, sc substitutionContext) (string, bool, error)

// ResolverService computes the effective schedule for a class on a calendar
// date by layering weekly overrides on the global schedule and folding in
// attendance, approved changes and confirmed substitutions.
type ResolverService struct {
	structures resolverStructureReader
	global     resolverGlobalReader
	weekly     resolverWeeklyReader
	attendance resolverAttendanceReader
	changes    resolverChangeReader
	subs       resolverSubstitutionReader
	cache      *CacheService
	metrics    *MetricsService
	logger     *zap.Logger
	rules      []substitutionRule
}

// NewResolverService wires resolver dependencies.
func NewResolverService(
	structures resolverStructureReader,
	global resolverGlobalReader,
	weekly resolverWeeklyReader,
	attendance resolverAttendanceReader,
	changes resolverChangeReader,
	subs resolverSubstitutionReader,
	cache *CacheService,
	metrics *MetricsService,
	logger *zap.Logger,
) *ResolverService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ResolverService{
		structures: structures,
		global:     global,
		weekly:     weekly,
		attendance: attendance,
		changes:    changes,
		subs:       subs,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
	}
	// Highest precedence first: an approved change outranks a confirmed
	// substitution for the same entry.
	s.rules = []substitutionRule{
		s.approvedChangeRule,
		s.confirmedSubstitutionRule,
	}
	return s
}

func resolveCacheKey(classID string, date time.Time) string {
	return fmt.Sprintf("resolve:%s:%s", classID, date.Format("2006-01-02"))
}

// Resolve returns the effective slot list for (class, date). It is a pure
// read: substitution gaps are reported, never filled here.
func (s *ResolverService) Resolve(ctx context.Context, schoolID, classID string, date time.Time) ([]models.EffectiveSlot, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveResolve(time.Since(start))
		}
	}()

	date = models.DateOnly(date)

	if s.cache.Enabled() {
		var cached []models.EffectiveSlot
		if hit, err := s.cache.Get(ctx, resolveCacheKey(classID, date), &cached); err == nil && hit {
			return cached, nil
		}
	}

	structure, err := s.structures.GetActive(ctx, schoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active timetable structure")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load structure")
	}

	day := models.DayOf(date)
	if !structure.IsWorkingDay(day) {
		return nil, appErrors.Clone(appErrors.ErrInvalidDate, fmt.Sprintf("%s is not a working day", day))
	}

	weekStart := models.WeekStartOf(date)

	weeklyRows, err := s.weekly.ListByClassWeek(ctx, classID, weekStart)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly overrides")
	}

	// Global rows are always loaded: they are the content source for
	// non-governed weeks and the identity source for unmodified weekly rows.
	globalRows, err := s.global.ListByClassDay(ctx, classID, day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load global schedule")
	}
	globalByPeriod := make(map[int]*models.TimetableEntry, len(globalRows))
	for i := range globalRows {
		globalByPeriod[globalRows[i].Period] = &globalRows[i]
	}

	weeklyGoverned := len(weeklyRows) > 0
	weeklyByPeriod := make(map[int]*models.WeeklyEntry)
	for i := range weeklyRows {
		if weeklyRows[i].Day == day {
			weeklyByPeriod[weeklyRows[i].Period] = &weeklyRows[i]
		}
	}

	slots, err := structure.Slots()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "malformed structure time slots")
	}

	result := make([]models.EffectiveSlot, 0, len(slots))
	for _, slot := range slots {
		effective := models.EffectiveSlot{
			Period:      slot.Period,
			StartTime:   slot.StartTime,
			EndTime:     slot.EndTime,
			IsBreak:     slot.IsBreak,
			SourceLayer: models.SourceFree,
		}
		if slot.IsBreak {
			result = append(result, effective)
			continue
		}

		if weeklyGoverned {
			// A governed week never consults global for content; a period
			// with no override row is simply free.
			if w, ok := weeklyByPeriod[slot.Period]; ok && !w.IsFree() {
				effective.SourceLayer = models.SourceWeekly
				effective.TeacherID = *w.TeacherID
				if w.SubjectID != nil {
					effective.SubjectID = *w.SubjectID
				}
				if w.Room != nil {
					effective.Room = *w.Room
				}
				ref := s.attributeIdentity(w, globalByPeriod[slot.Period], classID, weekStart, day)
				effective.Ref = &ref
			}
		} else if g, ok := globalByPeriod[slot.Period]; ok {
			effective.SourceLayer = models.SourceGlobal
			effective.TeacherID = g.TeacherID
			effective.SubjectID = g.SubjectID
			if g.Room != nil {
				effective.Room = *g.Room
			}
			ref := models.StableRef(g.ID)
			effective.Ref = &ref
		}

		if effective.TeacherID != "" {
			if err := s.applySubstitutionState(ctx, &effective, date, weekStart, day); err != nil {
				return nil, err
			}
		}

		result = append(result, effective)
	}

	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, resolveCacheKey(classID, date), result)
	}

	return result, nil
}

// ResolveRef finds the entry reference behind one (class, date, period) slot.
// Used by edit routing to decide between weekly and approval paths.
func (s *ResolverService) ResolveRef(ctx context.Context, schoolID, classID string, date time.Time, period int) (*models.EffectiveSlot, error) {
	slots, err := s.Resolve(ctx, schoolID, classID, date)
	if err != nil {
		return nil, err
	}
	for i := range slots {
		if slots[i].Period == period {
			return &slots[i], nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrEntryNotFound, fmt.Sprintf("period %d is not part of the structure", period))
}

// attributeIdentity implements the cross-layer identity tie-break: an
// unmodified override matching its global counterpart carries the global
// entry's identity so that deleting the slot deletes the canonical record.
func (s *ResolverService) attributeIdentity(w *models.WeeklyEntry, g *models.TimetableEntry, classID string, weekStart time.Time, day models.DayName) models.EntryRef {
	if !w.IsModified && g != nil && w.TeacherID != nil && *w.TeacherID == g.TeacherID {
		sameSubject := w.SubjectID != nil && *w.SubjectID == g.SubjectID
		if sameSubject {
			return models.StableRef(g.ID)
		}
	}
	return models.SyntheticRef(classID, weekStart, day, w.Period)
}

func (s *ResolverService) applySubstitutionState(ctx context.Context, slot *models.EffectiveSlot, date, weekStart time.Time, day models.DayName) error {
	absent, err := s.isAbsent(ctx, slot.TeacherID, date)
	if err != nil {
		return err
	}
	if !absent {
		return nil
	}

	sc := substitutionContext{
		EntryKey:  slot.Ref.Key(),
		WeekStart: weekStart,
		Day:       day,
		Period:    slot.Period,
	}
	for _, rule := range s.rules {
		substitute, ok, err := rule(ctx, sc)
		if err != nil {
			return err
		}
		if ok {
			slot.SubstituteTeacherID = substitute
			return nil
		}
	}

	slot.NeedsSubstitution = true
	return nil
}

// isAbsent treats only an explicit absent record as absence; late, present
// and missing records all count as present.
func (s *ResolverService) isAbsent(ctx context.Context, teacherID string, date time.Time) (bool, error) {
	record, err := s.attendance.Get(ctx, teacherID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	return record.Status == models.AttendanceAbsent, nil
}

func (s *ResolverService) approvedChangeRule(ctx context.Context, sc substitutionContext) (string, bool, error) {
	change, err := s.changes.FindApprovedByEntry(ctx, sc.EntryKey, sc.WeekStart)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load approved changes")
	}
	if change.NewTeacherID == nil {
		return "", false, nil
	}
	return *change.NewTeacherID, true, nil
}

func (s *ResolverService) confirmedSubstitutionRule(ctx context.Context, sc substitutionContext) (string, bool, error) {
	sub, err := s.subs.FindConfirmed(ctx, sc.EntryKey, sc.WeekStart)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load substitutions")
	}
	return sub.SubstituteTeacherID, true, nil
}
