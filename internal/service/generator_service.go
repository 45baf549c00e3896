package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/aabhi25/chronalive-v0.9-sub003/internal/models"
	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
)

type txBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type generatorStructureReader interface {
	GetActive(ctx context.Context, schoolID string) (*models.TimetableStructure, error)
}

type generatorTeacherReader interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type generatorGlobalRepository interface {
	ListByTeacher(ctx context.Context, teacherID string) ([]models.TimetableEntry, error)
	ReplaceClassWithTx(ctx context.Context, tx *sqlx.Tx, classID string, entries []models.TimetableEntry) error
}

// GeneratorService builds heuristic global timetable proposals for one class
// and commits an accepted proposal with a shadow-set swap: the class's rows
// are replaced inside a single transaction, so readers see the old or the new
// schedule, never a mix.
type GeneratorService struct {
	structures generatorStructureReader
	teachers   generatorTeacherReader
	global     generatorGlobalRepository
	tx         txBeginner
	freeze     bulkGuard
	policy     *AuthorizationPolicy
	cache      *CacheService
	metrics    *MetricsService
	audit      auditRecorder
	validator  *validator.Validate
	logger     *zap.Logger
	store      *proposalStore
}

// GeneratorConfig governs generator behaviour.
type GeneratorConfig struct {
	ProposalTTL time.Duration
}

// NewGeneratorService wires generator dependencies.
func NewGeneratorService(
	structures generatorStructureReader,
	teachers generatorTeacherReader,
	global generatorGlobalRepository,
	tx txBeginner,
	freeze bulkGuard,
	policy *AuthorizationPolicy,
	cache *CacheService,
	metrics *MetricsService,
	audit auditRecorder,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg GeneratorConfig,
) *GeneratorService {
	if policy == nil {
		policy = NewAuthorizationPolicy()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	return &GeneratorService{
		structures: structures,
		teachers:   teachers,
		global:     global,
		tx:         tx,
		freeze:     freeze,
		policy:     policy,
		cache:      cache,
		metrics:    metrics,
		audit:      audit,
		validator:  validate,
		logger:     logger,
		store:      newProposalStore(cfg.ProposalTTL),
	}
}

// SubjectLoad declares how many weekly periods one teacher covers for one
// subject in the class being generated.
type SubjectLoad struct {
	SubjectID   string `json:"subject_id" validate:"required"`
	TeacherID   string `json:"teacher_id" validate:"required"`
	WeeklyCount int    `json:"weekly_count" validate:"required,min=1"`
	Difficulty  int    `json:"difficulty"`
	Preferred   []int  `json:"preferred_periods"`
}

// GenerateRequest asks for a fresh proposal for one class.
type GenerateRequest struct {
	ClassID      string        `json:"class_id" validate:"required"`
	SubjectLoads []SubjectLoad `json:"subject_loads" validate:"required,min=1,dive"`
}

// SlotProposal is one placed period in a proposal.
type SlotProposal struct {
	Day       models.DayName `json:"day_of_week"`
	Period    int            `json:"period"`
	SubjectID string         `json:"subject_id"`
	TeacherID string         `json:"teacher_id"`
}

// ProposalConflict describes a load the heuristic could not place.
type ProposalConflict struct {
	Message   string `json:"message"`
	SubjectID string `json:"subject_id"`
	TeacherID string `json:"teacher_id"`
}

// GenerateResponse carries a proposal awaiting commit.
type GenerateResponse struct {
	ProposalID string             `json:"proposal_id"`
	Slots      []SlotProposal     `json:"slots"`
	Conflicts  []ProposalConflict `json:"conflicts,omitempty"`
	GapRepairs int                `json:"gap_repairs"`
}

// Generate builds a proposal without touching stored state. Commit applies
// it; an unreferenced proposal simply expires.
func (s *GeneratorService) Generate(ctx context.Context, actor *models.JWTClaims, req GenerateRequest) (*GenerateResponse, error) {
	if err := RequireActor(actor); err != nil {
		return nil, err
	}
	if !s.policy.CanEditDirect(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may generate timetables")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}

	structure, err := s.structures.GetActive(ctx, actor.SchoolID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load structure")
	}
	days, err := structure.Days()
	if err != nil || len(days) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "structure has no working days")
	}
	periods, err := teachingPeriods(structure)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "structure has no teaching periods")
	}

	availability, err := s.buildAvailability(ctx, req.ClassID, req.SubjectLoads, days, periods)
	if err != nil {
		return nil, err
	}

	state := newPlacementState(days, periods, availability)
	conflicts := seedLoads(state, req.SubjectLoads)
	repairs := state.repairGaps(12)

	proposal := timetableProposal{
		ProposalID:  uuid.NewString(),
		SchoolID:    actor.SchoolID,
		ClassID:     req.ClassID,
		Slots:       state.exportSlots(),
		Conflicts:   conflicts,
		GapRepairs:  repairs,
		RequestedAt: time.Now().UTC(),
	}
	s.store.Save(proposal)

	return &GenerateResponse{
		ProposalID: proposal.ProposalID,
		Slots:      proposal.Slots,
		Conflicts:  proposal.Conflicts,
		GapRepairs: repairs,
	}, nil
}

// Commit swaps a proposal into the class's global schedule. Blocked while
// frozen; refused while the proposal still carries conflicts.
func (s *GeneratorService) Commit(ctx context.Context, actor *models.JWTClaims, proposalID string) error {
	start := time.Now()
	if err := RequireActor(actor); err != nil {
		return err
	}
	if !s.policy.CanEditDirect(actor) {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins may commit timetables")
	}
	if err := s.freeze.GuardBulk(ctx, actor.SchoolID); err != nil {
		return err
	}

	proposal, ok := s.store.Get(proposalID)
	if !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	if proposal.SchoolID != actor.SchoolID {
		return appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}
	if len(proposal.Conflicts) > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "proposal contains unresolved conflicts")
	}

	entries := make([]models.TimetableEntry, 0, len(proposal.Slots))
	for _, slot := range proposal.Slots {
		entries = append(entries, models.TimetableEntry{
			SchoolID:  actor.SchoolID,
			ClassID:   proposal.ClassID,
			Day:       slot.Day,
			Period:    slot.Period,
			TeacherID: slot.TeacherID,
			SubjectID: slot.SubjectID,
		})
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.global.ReplaceClassWithTx(ctx, tx, proposal.ClassID, entries); err != nil {
		if s.metrics != nil {
			s.metrics.ObserveGeneration("failed", time.Since(start))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace class schedule")
	}
	if err := tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule")
	}

	s.store.Delete(proposalID)
	s.cache.InvalidateClass(ctx, proposal.ClassID)
	if s.metrics != nil {
		s.metrics.ObserveGeneration("committed", time.Since(start))
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionGenerate, "timetable_entries", proposal.ClassID, map[string]interface{}{
		"class_id": proposal.ClassID, "entries": len(entries),
	})
	return nil
}

// buildAvailability assembles per-teacher availability from declared blocked
// windows, load limits and existing commitments in other classes.
func (s *GeneratorService) buildAvailability(ctx context.Context, classID string, loads []SubjectLoad, days []models.DayName, periods []int) (map[string]*teacherAvailability, error) {
	maxPeriod := 0
	for _, p := range periods {
		if p > maxPeriod {
			maxPeriod = p
		}
	}

	result := make(map[string]*teacherAvailability)
	for _, load := range loads {
		if _, done := result[load.TeacherID]; done {
			continue
		}
		teacher, err := s.teachers.FindByID(ctx, load.TeacherID)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher %s not found", load.TeacherID))
		}
		if !teacher.Active {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("teacher %s is inactive", load.TeacherID))
		}

		availability := newTeacherAvailability()
		availability.MaxLoadPerDay = teacher.MaxLoadPerDay
		availability.MaxLoadPerWeek = teacher.MaxLoadPerWeek
		for _, window := range teacher.UnavailableSlots() {
			lo, hi, ok := parsePeriodRange(window.Periods)
			if !ok {
				continue
			}
			for p := lo; p <= hi && p <= maxPeriod; p++ {
				availability.Block(window.Day, p)
			}
		}

		existing, err := s.global.ListByTeacher(ctx, load.TeacherID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher commitments")
		}
		for _, entry := range existing {
			if entry.ClassID != classID {
				availability.Block(entry.Day, entry.Period)
			}
		}

		result[load.TeacherID] = availability
	}
	return result, nil
}

func teachingPeriods(structure *models.TimetableStructure) ([]int, error) {
	slots, err := structure.Slots()
	if err != nil {
		return nil, err
	}
	var periods []int
	for _, slot := range slots {
		if !slot.IsBreak {
			periods = append(periods, slot.Period)
		}
	}
	if len(periods) == 0 {
		return nil, fmt.Errorf("no teaching periods defined")
	}
	sort.Ints(periods)
	return periods, nil
}

// seedLoads places the hardest, heaviest loads first so they get the widest
// choice of slots.
func seedLoads(state *placementState, loads []SubjectLoad) []ProposalConflict {
	sorted := make([]SubjectLoad, len(loads))
	copy(sorted, loads)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Difficulty == sorted[j].Difficulty {
			return sorted[i].WeeklyCount > sorted[j].WeeklyCount
		}
		return sorted[i].Difficulty > sorted[j].Difficulty
	})

	var conflicts []ProposalConflict
	for _, load := range sorted {
		for i := 0; i < load.WeeklyCount; i++ {
			if state.Assign(load) {
				continue
			}
			conflicts = append(conflicts, ProposalConflict{
				Message:   fmt.Sprintf("unable to place subject %s for teacher %s", load.SubjectID, load.TeacherID),
				SubjectID: load.SubjectID,
				TeacherID: load.TeacherID,
			})
		}
	}
	return conflicts
}

// --- Proposal cache ---

type timetableProposal struct {
	ProposalID  string
	SchoolID    string
	ClassID     string
	Slots       []SlotProposal
	Conflicts   []ProposalConflict
	GapRepairs  int
	RequestedAt time.Time
}

type proposalStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]timetableProposal
}

func newProposalStore(ttl time.Duration) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		items: make(map[string]timetableProposal),
	}
}

func (s *proposalStore) Save(proposal timetableProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[proposal.ProposalID] = proposal
}

func (s *proposalStore) Get(id string) (timetableProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return timetableProposal{}, false
	}
	if time.Since(proposal.RequestedAt) > s.ttl {
		s.Delete(id)
		return timetableProposal{}, false
	}
	return proposal, true
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// --- Placement state ---

type placementKey struct {
	Day    models.DayName
	Period int
}

type placementState struct {
	days      []models.DayName
	periods   []int
	slots     map[placementKey]SlotProposal
	dayLoad   map[models.DayName]int
	availabil map[string]*teacherAvailability
}

func newPlacementState(days []models.DayName, periods []int, availability map[string]*teacherAvailability) *placementState {
	return &placementState{
		days:      days,
		periods:   periods,
		slots:     make(map[placementKey]SlotProposal),
		dayLoad:   make(map[models.DayName]int),
		availabil: availability,
	}
}

func (s *placementState) Assign(load SubjectLoad) bool {
	// Spread across the week: least-loaded day first.
	dayOrder := make([]models.DayName, len(s.days))
	copy(dayOrder, s.days)
	sort.SliceStable(dayOrder, func(i, j int) bool {
		return s.dayLoad[dayOrder[i]] < s.dayLoad[dayOrder[j]]
	})

	for _, day := range dayOrder {
		for _, period := range s.candidatePeriods(load) {
			if s.canPlace(load.TeacherID, day, period) {
				s.place(load, day, period)
				return true
			}
		}
	}
	return false
}

func (s *placementState) candidatePeriods(load SubjectLoad) []int {
	valid := make(map[int]bool, len(s.periods))
	for _, p := range s.periods {
		valid[p] = true
	}
	var result []int
	seen := make(map[int]bool)
	for _, p := range load.Preferred {
		if valid[p] && !seen[p] {
			result = append(result, p)
			seen[p] = true
		}
	}
	for _, p := range s.periods {
		if !seen[p] {
			result = append(result, p)
		}
	}
	return result
}

func (s *placementState) canPlace(teacherID string, day models.DayName, period int) bool {
	if _, taken := s.slots[placementKey{Day: day, Period: period}]; taken {
		return false
	}
	availability := s.availabil[teacherID]
	if availability == nil {
		return false
	}
	return availability.CanTeach(day, period)
}

func (s *placementState) place(load SubjectLoad, day models.DayName, period int) {
	s.slots[placementKey{Day: day, Period: period}] = SlotProposal{
		Day:       day,
		Period:    period,
		SubjectID: load.SubjectID,
		TeacherID: load.TeacherID,
	}
	s.availabil[load.TeacherID].Reserve(day, period)
	s.dayLoad[day]++
}

// repairGaps compacts each day by pulling isolated late periods forward,
// bounded by maxIterations.
func (s *placementState) repairGaps(maxIterations int) int {
	iterations := 0
	for iterations < maxIterations {
		moved := false
		for _, day := range s.days {
			periods := s.periodsForDay(day)
			if len(periods) < 2 {
				continue
			}
			for i := 0; i < len(periods)-1; i++ {
				current, next := periods[i], periods[i+1]
				// A gap exists only when a free teaching period sits
				// between two occupied ones; breaks do not count.
				target, ok := s.nextTeachingPeriod(current)
				if !ok || target >= next {
					continue
				}
				slot := s.slots[placementKey{Day: day, Period: next}]
				if s.canPlace(slot.TeacherID, day, target) {
					s.moveSlot(day, next, target)
					moved = true
					break
				}
			}
			if moved {
				break
			}
		}
		if !moved {
			break
		}
		iterations++
	}
	return iterations
}

// nextTeachingPeriod returns the first teaching period after the given one.
func (s *placementState) nextTeachingPeriod(after int) (int, bool) {
	for _, p := range s.periods {
		if p > after {
			return p, true
		}
	}
	return 0, false
}

func (s *placementState) periodsForDay(day models.DayName) []int {
	var periods []int
	for key := range s.slots {
		if key.Day == day {
			periods = append(periods, key.Period)
		}
	}
	sort.Ints(periods)
	return periods
}

func (s *placementState) moveSlot(day models.DayName, from, to int) {
	key := placementKey{Day: day, Period: from}
	slot := s.slots[key]
	delete(s.slots, key)
	s.availabil[slot.TeacherID].Release(day, from)

	slot.Period = to
	s.slots[placementKey{Day: day, Period: to}] = slot
	s.availabil[slot.TeacherID].Reserve(day, to)
}

func (s *placementState) exportSlots() []SlotProposal {
	dayIndex := make(map[models.DayName]int, len(s.days))
	for i, day := range s.days {
		dayIndex[day] = i
	}
	slots := make([]SlotProposal, 0, len(s.slots))
	for _, slot := range s.slots {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Day == slots[j].Day {
			return slots[i].Period < slots[j].Period
		}
		return dayIndex[slots[i].Day] < dayIndex[slots[j].Day]
	})
	return slots
}

// --- Teacher availability ---

type teacherAvailability struct {
	MaxLoadPerDay  int
	MaxLoadPerWeek int
	perDay         map[models.DayName]int
	weekly         int
	blocked        map[models.DayName]map[int]bool
	assigned       map[models.DayName]map[int]bool
}

func newTeacherAvailability() *teacherAvailability {
	return &teacherAvailability{
		perDay:   make(map[models.DayName]int),
		blocked:  make(map[models.DayName]map[int]bool),
		assigned: make(map[models.DayName]map[int]bool),
	}
}

func (t *teacherAvailability) Block(day models.DayName, period int) {
	if t.blocked[day] == nil {
		t.blocked[day] = make(map[int]bool)
	}
	t.blocked[day][period] = true
}

func (t *teacherAvailability) CanTeach(day models.DayName, period int) bool {
	if t.blocked[day] != nil && t.blocked[day][period] {
		return false
	}
	if t.assigned[day] != nil && t.assigned[day][period] {
		return false
	}
	if t.MaxLoadPerDay > 0 && t.perDay[day] >= t.MaxLoadPerDay {
		return false
	}
	if t.MaxLoadPerWeek > 0 && t.weekly >= t.MaxLoadPerWeek {
		return false
	}
	return true
}

func (t *teacherAvailability) Reserve(day models.DayName, period int) {
	if t.assigned[day] == nil {
		t.assigned[day] = make(map[int]bool)
	}
	t.assigned[day][period] = true
	t.perDay[day]++
	t.weekly++
}

func (t *teacherAvailability) Release(day models.DayName, period int) {
	if t.assigned[day] != nil {
		delete(t.assigned[day], period)
	}
	if t.perDay[day] > 0 {
		t.perDay[day]--
	}
	if t.weekly > 0 {
		t.weekly--
	}
}
