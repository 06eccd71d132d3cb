package dropin

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/KirkDiggler/turnkeep/internal/models"
)

// Config holds configuration for a drop-in queue
type Config struct {
	Logger *zap.Logger
}

// Queue detects occupants arriving on and leaving role slots between roster
// snapshots. Every sync diffs the full roster against the previous one.
type Queue struct {
	mu     sync.Mutex
	logger *zap.Logger

	initialized bool
	roles       map[string]*roleState
	order       []string
}

type roleState struct {
	name string

	// present is the roster observed on the last sync, by participant key
	present map[string]models.Participant

	// seen holds every key ever observed on the role
	seen map[string]bool

	// vacancies are departed occupants not yet replaced, oldest first
	vacancies []models.Participant

	stats RoleStats
}

// New creates an empty queue
func New(cfg *Config) *Queue {
	logger := zap.NewNop()
	if cfg != nil && cfg.Logger != nil {
		logger = cfg.Logger
	}
	return &Queue{
		logger: logger,
		roles:  make(map[string]*roleState),
	}
}

// Sync diffs the roster against the last observed one. The first call only
// records a baseline and reports nothing.
func (q *Queue) Sync(participants []*models.Participant, opts SyncOptions) *SyncOutput {
	q.mu.Lock()
	defer q.mu.Unlock()

	current := make(map[string]map[string]models.Participant)
	for _, p := range participants {
		if p == nil || strings.TrimSpace(p.Role) == "" {
			continue
		}
		role := roleKey(p.Role)
		if current[role] == nil {
			current[role] = make(map[string]models.Participant)
		}
		current[role][p.Key()] = *p
	}

	if !q.initialized {
		q.initialized = true
		for role, members := range current {
			rs := q.roleLocked(role, members)
			for key := range members {
				rs.seen[key] = true
			}
			rs.stats.ActiveKey = highestSlotKey(members)
			rs.present = members
		}
		q.logger.Debug("drop-in baseline recorded", zap.Int("roles", len(current)))
		return &SyncOutput{Baseline: true}
	}

	out := &SyncOutput{}
	for _, role := range q.roleKeysLocked(current) {
		members := current[role]
		if members == nil {
			members = map[string]models.Participant{}
		}
		rs := q.roleLocked(role, members)

		var departed []models.Participant
		for key, p := range rs.present {
			if _, ok := members[key]; !ok {
				departed = append(departed, p)
			}
		}
		sortBySlot(departed)

		var arrived []models.Participant
		for key, p := range members {
			if _, ok := rs.present[key]; ok {
				continue
			}
			if rs.seen[key] {
				// a returning occupant fills its own vacancy, if it left one
				rs.removeVacancy(key)
				continue
			}
			arrived = append(arrived, p)
		}
		sortBySlot(arrived)

		for _, p := range arrived {
			arrival := Arrival{
				Role:        rs.name,
				Key:         p.Key(),
				Participant: p,
				Turn:        opts.TurnNumber,
			}
			if prior, ok := takeReplacement(&departed, p); ok {
				arrival.Replaced = &prior
			} else if prior, ok := rs.takeVacancy(p); ok {
				arrival.Replaced = &prior
			} else if prior, ok := rs.activeOccupant(members); ok && prior.Key() != arrival.Key {
				// joining an occupied role takes over from whoever is active on it
				arrival.Replaced = &prior
			}

			rs.seen[arrival.Key] = true
			rs.stats.Arrivals++
			rs.stats.LastArrivalTurn = opts.TurnNumber
			rs.stats.ActiveKey = arrival.Key
			if arrival.Replaced != nil {
				rs.stats.Replacements++
			}
			out.Arrivals = append(out.Arrivals, arrival)

			q.logger.Info("drop-in arrival",
				zap.String("role", rs.name),
				zap.String("key", arrival.Key),
				zap.Bool("replacement", arrival.Replaced != nil),
				zap.Int("turn", opts.TurnNumber))
		}

		for _, p := range departed {
			cause := classify(p.Status)
			rs.vacancies = append(rs.vacancies, p)
			rs.stats.LastDepartureTurn = opts.TurnNumber
			rs.stats.LastDepartureCause = cause
			if rs.stats.ActiveKey == p.Key() {
				rs.stats.ActiveKey = highestSlotKey(members)
			}
			out.Departures = append(out.Departures, Departure{
				Role:        rs.name,
				Key:         p.Key(),
				Participant: p,
				Cause:       cause,
				Turn:        opts.TurnNumber,
			})

			q.logger.Info("drop-in departure",
				zap.String("role", rs.name),
				zap.String("key", p.Key()),
				zap.String("cause", string(cause)),
				zap.String("mode", string(opts.Mode)),
				zap.Int("turn", opts.TurnNumber))
		}

		rs.present = members
	}

	out.Changed = len(out.Arrivals) > 0 || len(out.Departures) > 0
	return out
}

// Stats returns a copy of every role's counters, in first-seen order
func (q *Queue) Stats() []RoleStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]RoleStats, 0, len(q.order))
	for _, key := range q.order {
		out = append(out, q.roles[key].stats)
	}
	return out
}

// RoleStats returns the counters for one role
func (q *Queue) RoleStats(role string) (RoleStats, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rs, ok := q.roles[roleKey(role)]
	if !ok {
		return RoleStats{}, false
	}
	return rs.stats, true
}

func (q *Queue) roleLocked(role string, members map[string]models.Participant) *roleState {
	rs, ok := q.roles[role]
	if ok {
		return rs
	}
	name := role
	for _, p := range members {
		name = strings.TrimSpace(p.Role)
		break
	}
	rs = &roleState{
		name:    name,
		present: make(map[string]models.Participant),
		seen:    make(map[string]bool),
		stats:   RoleStats{Role: name},
	}
	q.roles[role] = rs
	q.order = append(q.order, role)
	return rs
}

// roleKeysLocked lists known roles then new ones, so departures from roles that
// emptied out are still seen
func (q *Queue) roleKeysLocked(current map[string]map[string]models.Participant) []string {
	keys := append([]string(nil), q.order...)
	var fresh []string
	for role := range current {
		if _, ok := q.roles[role]; !ok {
			fresh = append(fresh, role)
		}
	}
	sort.Strings(fresh)
	return append(keys, fresh...)
}

func (rs *roleState) takeVacancy(p models.Participant) (models.Participant, bool) {
	if len(rs.vacancies) == 0 {
		return models.Participant{}, false
	}
	for i, v := range rs.vacancies {
		if v.SlotIndex == p.SlotIndex {
			rs.vacancies = append(rs.vacancies[:i], rs.vacancies[i+1:]...)
			return v, true
		}
	}
	v := rs.vacancies[0]
	rs.vacancies = rs.vacancies[1:]
	return v, true
}

// activeOccupant looks up the role's active occupant in the last sync, or
// among this sync's members when an earlier arrival just took over
func (rs *roleState) activeOccupant(members map[string]models.Participant) (models.Participant, bool) {
	if rs.stats.ActiveKey == "" {
		return models.Participant{}, false
	}
	if p, ok := rs.present[rs.stats.ActiveKey]; ok {
		return p, true
	}
	p, ok := members[rs.stats.ActiveKey]
	return p, ok
}

func (rs *roleState) removeVacancy(key string) {
	for i, v := range rs.vacancies {
		if v.Key() == key {
			rs.vacancies = append(rs.vacancies[:i], rs.vacancies[i+1:]...)
			return
		}
	}
}

// takeReplacement pairs an arrival with an occupant that left in the same
// sync, preferring the same slot
func takeReplacement(departed *[]models.Participant, p models.Participant) (models.Participant, bool) {
	list := *departed
	if len(list) == 0 {
		return models.Participant{}, false
	}
	idx := 0
	for i, d := range list {
		if d.SlotIndex == p.SlotIndex {
			idx = i
			break
		}
	}
	prior := list[idx]
	*departed = append(list[:idx], list[idx+1:]...)
	return prior, true
}

// classify maps the last known status of a departed occupant to a cause
func classify(status models.ParticipantStatus) DepartureCause {
	switch status {
	case models.ParticipantStatusDefeated:
		return CauseRoleDefeated
	case models.ParticipantStatusSpectating:
		return CauseRoleSpectating
	case models.ParticipantStatusProxy:
		return CauseAsyncProxyRotation
	case models.ParticipantStatusPending:
		return CauseAsyncPending
	default:
		return CauseAsyncRotation
	}
}

// highestSlotKey picks the most recently seated occupant of a role
func highestSlotKey(members map[string]models.Participant) string {
	best, bestSlot := "", -1
	for key, m := range members {
		if m.SlotIndex > bestSlot || (m.SlotIndex == bestSlot && key < best) {
			best, bestSlot = key, m.SlotIndex
		}
	}
	return best
}

func sortBySlot(ps []models.Participant) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].SlotIndex == ps[j].SlotIndex {
			return ps[i].Key() < ps[j].Key()
		}
		return ps[i].SlotIndex < ps[j].SlotIndex
	})
}

// roleKey buckets roles the same way the outcome ledger does
func roleKey(role string) string {
	return models.NormalizeName(role)
}
