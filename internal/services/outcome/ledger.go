package outcome

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/KirkDiggler/turnkeep/internal/models"
)

// Ledger keeps per-participant outcome bookkeeping for one session
type Ledger struct {
	mu sync.Mutex

	mode     models.SessionMode
	settings map[string]ScoreRange
	logger   *zap.Logger

	entries []*Entry
	buckets []*roleBucket

	lastTurn      int
	completed     bool
	completedTurn int
	overall       Result
	averageScore  float64
}

// New creates a ledger seeded with one entry per valid participant
func New(participants []*models.Participant, cfg *Config) (*Ledger, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	settings := make(map[string]ScoreRange, len(cfg.RoleSettings))
	for role, r := range cfg.RoleSettings {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		settings[normalizeName(role)] = r
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mode := cfg.Mode
	if mode == "" {
		mode = models.SessionModeStandard
	}

	l := &Ledger{
		mode:     mode,
		settings: settings,
		logger:   logger,
		overall:  ResultPending,
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.syncLocked(participants)
	l.recomputeLocked()

	return l, nil
}

// Validate reports whether the range can bound a delta
func (r ScoreRange) Validate() error {
	if r.Min < 0 || r.Max < 0 {
		return ErrInvalidRange
	}
	return nil
}

func (r ScoreRange) normalized() ScoreRange {
	if r.Min == 0 && r.Max == 0 {
		return ScoreRange{Min: DefaultScoreMin, Max: DefaultScoreMax}
	}
	if r.Min > r.Max {
		r.Min, r.Max = r.Max, r.Min
	}
	return r
}

// Sync reconciles the ledger with the latest full roster. Entries are matched
// by normalized hero name, then slot index, then key. Entries missing from the
// roster are marked inactive, never removed. It reports whether anything
// changed; an identical roster is a no-op.
func (l *Ledger) Sync(participants []*models.Participant) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.syncLocked(participants) {
		return false
	}
	l.recomputeLocked()
	return true
}

func (l *Ledger) syncLocked(participants []*models.Participant) bool {
	changed := false
	claimed := make(map[*Entry]bool, len(participants))

	for _, p := range participants {
		if p == nil || p.Validate() != nil {
			continue
		}

		e := l.matchLocked(p, claimed)
		if e == nil {
			e = &Entry{Result: ResultPending}
			e.apply(p)
			l.entries = append(l.entries, e)
			changed = true
			l.logger.Debug("ledger entry created",
				zap.String("key", e.Key),
				zap.String("hero", e.HeroName),
				zap.String("role", e.Role))
		} else if e.apply(p) {
			changed = true
		}
		claimed[e] = true
	}

	for _, e := range l.entries {
		if !claimed[e] && e.Active {
			e.Active = false
			changed = true
			l.logger.Debug("ledger entry inactive", zap.String("key", e.Key))
		}
	}

	return changed
}

func (l *Ledger) matchLocked(p *models.Participant, claimed map[*Entry]bool) *Entry {
	if name := normalizeName(p.HeroName); name != "" {
		for _, e := range l.entries {
			if !claimed[e] && normalizeName(e.HeroName) == name {
				return e
			}
		}
	}
	for _, e := range l.entries {
		if !claimed[e] && e.SlotIndex == p.SlotIndex {
			return e
		}
	}
	key := p.Key()
	for _, e := range l.entries {
		if !claimed[e] && e.Key == key {
			return e
		}
	}
	return nil
}

// apply copies roster fields onto the entry and reports whether any changed
func (e *Entry) apply(p *models.Participant) bool {
	changed := false
	set := func(dst *string, v string) {
		if *dst != v {
			*dst = v
			changed = true
		}
	}

	set(&e.Key, p.Key())
	set(&e.HeroID, strings.TrimSpace(p.HeroID))
	set(&e.HeroName, strings.TrimSpace(p.HeroName))
	set(&e.OwnerID, strings.TrimSpace(p.OwnerID))
	set(&e.Role, strings.TrimSpace(p.Role))
	set(&e.RoleKey, normalizeName(p.Role))

	if e.SlotIndex != p.SlotIndex {
		e.SlotIndex = p.SlotIndex
		changed = true
	}
	if e.BaseScore != p.Score {
		e.BaseScore = p.Score
		changed = true
	}
	if !e.Active {
		e.Active = true
		changed = true
	}
	return changed
}

// Record applies one resolved turn: it re-syncs the roster, parses the result
// line into assignments and applies each new (turn, status) once per entry.
func (l *Ledger) Record(input *RecordInput) *RecordOutput {
	if input == nil {
		input = &RecordInput{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	changed := false
	if input.Participants != nil {
		changed = l.syncLocked(input.Participants)
	}
	if input.Turn > l.lastTurn {
		l.lastTurn = input.Turn
	}

	line := strings.TrimSpace(input.ResultLine)
	assignments := l.parseAssignmentsLocked(line, input.Actors)

	var applied []Assignment
	for _, a := range assignments {
		e := l.entryLocked(a.Key)
		if e == nil {
			continue
		}
		e.LastContext = line
		if e.applyStatus(input.Turn, a.Status, line, l.winResolvesLocked(e)) {
			applied = append(applied, a)
			changed = true
			l.logger.Info("ledger status applied",
				zap.Int("turn", input.Turn),
				zap.String("hero", e.HeroName),
				zap.String("status", string(a.Status)))
		}
	}

	if changed {
		l.recomputeLocked()
	}

	return &RecordOutput{
		Changed:     changed,
		Completed:   l.completed,
		Assignments: applied,
	}
}

func (l *Ledger) entryLocked(key string) *Entry {
	for _, e := range l.entries {
		if e.Key == key {
			return e
		}
	}
	return nil
}

// winResolvesLocked reports whether a win settles the entry's result. In brawl
// mode wins are round wins and only the last one standing is resolved by one.
func (l *Ledger) winResolvesLocked(target *Entry) bool {
	if l.mode != models.SessionModeBrawl {
		return true
	}
	for _, e := range l.entries {
		if e != target && e.Active && !e.Result.IsTerminal() {
			return false
		}
	}
	return true
}

// applyStatus applies one status for a turn, ignoring repeats of the same
// (turn, status). A won entry is never demoted and an eliminated entry is
// final. Result only leaves pending once, whether by win, loss, elimination
// or draw.
func (e *Entry) applyStatus(turn int, status Result, line string, winResolves bool) bool {
	for _, h := range e.History {
		if h.Turn == turn && h.Status == status {
			return false
		}
	}

	switch status {
	case ResultWon:
		if e.Eliminated {
			return false
		}
		e.Wins++
		if e.Result == ResultPending && winResolves {
			e.Result = ResultWon
		}
	case ResultLost:
		if e.Result == ResultWon || e.Eliminated {
			return false
		}
		e.Losses++
		if e.Result == ResultPending {
			e.Result = ResultLost
		}
	case ResultEliminated:
		if e.Result == ResultWon || e.Eliminated {
			return false
		}
		e.Losses++
		e.Eliminated = true
		if e.Result == ResultPending {
			e.Result = ResultEliminated
		}
	case ResultDraw:
		// a draw settles a pending entry the way a win does; brawl rounds
		// only leave a trace in history
		if e.Result == ResultPending && !e.Eliminated && winResolves {
			e.Result = ResultDraw
		}
	default:
		return false
	}

	e.History = append(e.History, StatusChange{Turn: turn, Status: status, Line: line})
	return true
}

// Completed reports whether every role bucket is resolved
func (l *Ledger) Completed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.completed
}

// Snapshot returns a deep copy safe to hand outside the engine
func (l *Ledger) Snapshot() *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := &Snapshot{
		Entries:       make([]EntrySnapshot, 0, len(l.entries)),
		BySlotIndex:   make(map[int]string),
		ByOwnerID:     make(map[string][]string),
		ByHeroName:    make(map[string]string),
		RoleSummaries: make([]RoleSummary, 0, len(l.buckets)),
		Completed:     l.completed,
		CompletedTurn: l.completedTurn,
		OverallResult: l.overall,
		AverageScore:  l.averageScore,
		Mode:          l.mode,
	}

	for _, e := range l.entries {
		es := EntrySnapshot{
			Key:            e.Key,
			SlotIndex:      e.SlotIndex,
			HeroID:         e.HeroID,
			HeroName:       e.HeroName,
			OwnerID:        e.OwnerID,
			Role:           e.Role,
			RoleKey:        e.RoleKey,
			Wins:           e.Wins,
			Losses:         e.Losses,
			Eliminated:     e.Eliminated,
			Result:         e.Result,
			History:        append([]StatusChange(nil), e.History...),
			BaseScore:      e.BaseScore,
			ScoreDelta:     e.ScoreDelta,
			ProjectedScore: e.ProjectedScore,
			LastContext:    e.LastContext,
			Active:         e.Active,
		}
		snap.Entries = append(snap.Entries, es)

		if !e.Active {
			continue
		}
		snap.BySlotIndex[e.SlotIndex] = e.Key
		if e.OwnerID != "" {
			snap.ByOwnerID[e.OwnerID] = append(snap.ByOwnerID[e.OwnerID], e.Key)
		}
		if name := normalizeName(e.HeroName); name != "" {
			snap.ByHeroName[name] = e.Key
		}
	}

	for _, b := range l.buckets {
		snap.RoleSummaries = append(snap.RoleSummaries, b.summary())
	}

	return snap
}

// Restore rebuilds a ledger from a persisted snapshot
func Restore(snap *Snapshot, cfg *Config) (*Ledger, error) {
	if snap == nil {
		return nil, ErrNilSnapshot
	}
	if cfg == nil {
		return nil, ErrNilConfig
	}
	c := *cfg
	if c.Mode == "" {
		c.Mode = snap.Mode
	}

	l, err := New(nil, &c)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, es := range snap.Entries {
		l.entries = append(l.entries, &Entry{
			Key:         es.Key,
			SlotIndex:   es.SlotIndex,
			HeroID:      es.HeroID,
			HeroName:    es.HeroName,
			OwnerID:     es.OwnerID,
			Role:        es.Role,
			RoleKey:     normalizeName(es.Role),
			Wins:        es.Wins,
			Losses:      es.Losses,
			Eliminated:  es.Eliminated,
			Result:      es.Result,
			History:     append([]StatusChange(nil), es.History...),
			BaseScore:   es.BaseScore,
			LastContext: es.LastContext,
			Active:      es.Active,
		})
		for _, h := range es.History {
			if h.Turn > l.lastTurn {
				l.lastTurn = h.Turn
			}
		}
	}
	l.completed = snap.Completed
	l.completedTurn = snap.CompletedTurn
	l.recomputeLocked()

	return l, nil
}

// sortedEntries returns active entries ordered by slot
func sortedEntries(entries []*Entry) []*Entry {
	out := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e.Active {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SlotIndex < out[j].SlotIndex
	})
	return out
}
