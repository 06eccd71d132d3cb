package presence

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/KirkDiggler/turnkeep/internal/common/clock"
	"github.com/KirkDiggler/turnkeep/internal/models"
)

// Tracker counts consecutive missed turns per owner, warns while the streak
// is under the limit and escalates to proxy when it reaches it. Proxy is
// sticky until Reset.
type Tracker struct {
	mu        sync.Mutex
	sessionID string
	limit     int
	clock     clock.Clock
	logger    *zap.Logger

	records map[string]*Record

	// managed is the set of owners this tracker escalates; empty means all
	managed map[string]bool

	turn          int
	expected      []string
	participated  map[string]bool
	completedTurn int
}

// New creates a tracker
func New(cfg *Config) *Tracker {
	if cfg == nil {
		cfg = &Config{}
	}
	limit := cfg.MissLimit
	if limit <= 0 {
		limit = DefaultMissLimit
	}
	c := cfg.Clock
	if c == nil {
		c = &clock.DefaultClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Tracker{
		sessionID:    cfg.SessionID,
		limit:        limit,
		clock:        c,
		logger:       logger,
		records:      make(map[string]*Record),
		managed:      make(map[string]bool),
		participated: make(map[string]bool),
	}
}

// Limit returns the configured miss limit
func (t *Tracker) Limit() int {
	return t.limit
}

// SetManagedOwners scopes escalation to the given owners. Owners outside
// the set are left to whichever observer manages them.
func (t *Tracker) SetManagedOwners(ownerIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.managed = make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		if id != "" {
			t.managed[id] = true
		}
	}
}

// SyncRoster creates records for owners that appear on the roster and drops
// records of owners that left. A proxy slot on the roster marks its owner
// proxy. Returns whether anything changed.
func (t *Tracker) SyncRoster(participants []*models.Participant) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	owners := make(map[string]bool)
	proxied := make(map[string]bool)
	for _, p := range participants {
		if p == nil || p.OwnerID == "" {
			continue
		}
		owners[p.OwnerID] = true
		if p.IsProxy() {
			proxied[p.OwnerID] = true
		}
	}

	changed := false
	for id := range owners {
		rec, ok := t.records[id]
		if !ok {
			rec = &Record{OwnerID: id, Status: StatusActive}
			t.records[id] = rec
			changed = true
		}
		if proxied[id] && rec.Status != StatusProxy {
			rec.Status = StatusProxy
			changed = true
		}
	}
	for id := range t.records {
		if !owners[id] {
			delete(t.records, id)
			changed = true
		}
	}
	return changed
}

// BeginTurn marks who is expected to act on the turn
func (t *Tracker) BeginTurn(input *BeginTurnInput) {
	if input == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if input.TurnNumber != t.turn {
		t.participated = make(map[string]bool)
	}
	t.turn = input.TurnNumber
	t.expected = append([]string(nil), input.EligibleOwnerIDs...)
	for _, id := range t.expected {
		t.recordLocked(id)
	}
}

// RecordParticipation resets an owner's miss streak. A warned owner goes back
// to active; a proxied owner stays proxied.
func (t *Tracker) RecordParticipation(ownerID string, turn int, kind ParticipationType) {
	if ownerID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.recordLocked(ownerID)
	rec.Misses = 0
	if turn > rec.LastParticipatedTurn {
		rec.LastParticipatedTurn = turn
	}
	if rec.Status == StatusWarned {
		rec.Status = StatusActive
	}
	if turn == t.turn {
		t.participated[ownerID] = true
	}

	t.logger.Debug("participation recorded",
		zap.String("owner_id", ownerID),
		zap.Int("turn", turn),
		zap.String("type", string(kind)),
	)
}

// CompleteTurn closes the turn and counts a miss for every eligible owner
// that did not participate. Completing the same turn twice is a no-op.
func (t *Tracker) CompleteTurn(input *CompleteTurnInput) *CompleteTurnOutput {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := &CompleteTurnOutput{}
	if input == nil || (t.completedTurn != 0 && input.TurnNumber <= t.completedTurn) {
		out.Snapshot = t.snapshotLocked()
		return out
	}

	eligible := input.EligibleOwnerIDs
	if len(eligible) == 0 && input.TurnNumber == t.turn {
		eligible = t.expected
	}

	participated := t.participated
	if input.TurnNumber != t.turn {
		participated = nil
	}

	now := t.clock.Now()
	seen := make(map[string]bool, len(eligible))
	for _, id := range eligible {
		if id == "" || seen[id] || participated[id] || !t.managesLocked(id) {
			continue
		}
		seen[id] = true

		rec := t.recordLocked(id)
		if rec.Status == StatusProxy {
			continue
		}

		rec.Misses++
		rec.LastMissedTurn = input.TurnNumber

		if rec.Misses >= t.limit {
			rec.Status = StatusProxy
			out.Escalated = append(out.Escalated, id)
			out.Events = append(out.Events, models.TimelineEvent{
				SessionID: t.sessionID,
				Type:      models.TimelineProxyEscalated,
				OwnerID:   id,
				Turn:      input.TurnNumber,
				Timestamp: now,
				Reason:    input.Reason,
				Metadata: map[string]any{
					"strikes": rec.Misses,
					"limit":   t.limit,
				},
			})
			t.logger.Info("owner escalated to proxy",
				zap.String("session_id", t.sessionID),
				zap.String("owner_id", id),
				zap.Int("turn", input.TurnNumber),
				zap.Int("strikes", rec.Misses),
			)
			continue
		}

		rec.Status = StatusWarned
		out.Warnings = append(out.Warnings, id)
		out.Events = append(out.Events, models.TimelineEvent{
			SessionID: t.sessionID,
			Type:      models.TimelineWarning,
			OwnerID:   id,
			Turn:      input.TurnNumber,
			Timestamp: now,
			Reason:    input.Reason,
			Metadata: map[string]any{
				"strikes":   rec.Misses,
				"limit":     t.limit,
				"remaining": t.limit - rec.Misses,
			},
		})
	}

	t.completedTurn = input.TurnNumber
	out.Snapshot = t.snapshotLocked()
	return out
}

// Reset returns an owner to active with a clean streak
func (t *Tracker) Reset(ownerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.records[ownerID]; ok {
		rec.Misses = 0
		rec.Status = StatusActive
	}
}

// Record returns a copy of an owner's record
func (t *Tracker) Record(ownerID string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[ownerID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Snapshot returns copies of every record, sorted by owner id
func (t *Tracker) Snapshot() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() []Record {
	out := make([]Record, 0, len(t.records))
	for _, rec := range t.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OwnerID < out[j].OwnerID
	})
	return out
}

func (t *Tracker) recordLocked(ownerID string) *Record {
	rec, ok := t.records[ownerID]
	if !ok {
		rec = &Record{OwnerID: ownerID, Status: StatusActive}
		t.records[ownerID] = rec
	}
	return rec
}

func (t *Tracker) managesLocked(ownerID string) bool {
	return len(t.managed) == 0 || t.managed[ownerID]
}
