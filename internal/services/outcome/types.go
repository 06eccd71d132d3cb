package outcome

import (
	"go.uber.org/zap"

	"github.com/KirkDiggler/turnkeep/internal/models"
)

// Result is a participant's standing, or an assignment parsed from a result line
type Result string

const (
	ResultPending    Result = "pending"
	ResultWon        Result = "won"
	ResultLost       Result = "lost"
	ResultEliminated Result = "eliminated"
	ResultDraw       Result = "draw"
)

// IsTerminal reports whether an entry holding r is resolved
func (r Result) IsTerminal() bool {
	return r == ResultWon || r == ResultLost || r == ResultEliminated || r == ResultDraw
}

const (
	// DefaultScoreMin is the smallest per-unit score delta when a role has no settings
	DefaultScoreMin = 20.0

	// DefaultScoreMax is the largest per-unit score delta when a role has no settings
	DefaultScoreMax = 40.0

	// brawlEliminationCredit is the share of win credit an eliminated brawler keeps
	brawlEliminationCredit = 0.5
)

// ScoreRange bounds the magnitude of a role's per-win or per-loss delta
type ScoreRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Config holds configuration for a ledger
type Config struct {
	// RoleSettings maps role names to score ranges; missing roles use 20-40
	RoleSettings map[string]ScoreRange

	// Mode selects elimination scoring
	Mode models.SessionMode

	Logger *zap.Logger
}

// StatusChange is one applied status in an entry's history
type StatusChange struct {
	Turn   int    `json:"turn"`
	Status Result `json:"status"`
	Line   string `json:"line,omitempty"`
}

// Entry is the ledger's bookkeeping for one participant
type Entry struct {
	Key            string
	SlotIndex      int
	HeroID         string
	HeroName       string
	OwnerID        string
	Role           string
	RoleKey        string
	Wins           int
	Losses         int
	Eliminated     bool
	Result         Result
	History        []StatusChange
	BaseScore      float64
	ScoreDelta     float64
	ProjectedScore float64
	LastContext    string
	Active         bool
}

// RecordInput contains parameters for recording a resolved turn
type RecordInput struct {
	// Turn is the turn the result line belongs to
	Turn int

	// ResultLine is the narrator's status declaration
	ResultLine string

	// Variables are the active variable tokens of the turn
	Variables []string

	// Actors are hero names the narrator singled out this turn
	Actors []string

	// Participants is the latest roster; nil skips the re-sync
	Participants []*models.Participant
}

// Assignment is one (hero, status) pair parsed from a result line
type Assignment struct {
	Key      string `json:"key"`
	HeroName string `json:"heroName"`
	Status   Result `json:"status"`
}

// RecordOutput contains the result of recording a turn
type RecordOutput struct {
	// Changed reports whether the roster or any entry changed
	Changed bool

	// Completed reports whether every role is resolved
	Completed bool

	// Assignments are the parsed assignments that were applied
	Assignments []Assignment
}

// EntrySnapshot is the exported copy of an Entry
type EntrySnapshot struct {
	Key            string         `json:"key"`
	SlotIndex      int            `json:"slotIndex"`
	HeroID         string         `json:"heroId,omitempty"`
	HeroName       string         `json:"heroName"`
	OwnerID        string         `json:"ownerId,omitempty"`
	Role           string         `json:"role"`
	RoleKey        string         `json:"roleKey"`
	Wins           int            `json:"wins"`
	Losses         int            `json:"losses"`
	Eliminated     bool           `json:"eliminated"`
	Result         Result         `json:"result"`
	History        []StatusChange `json:"history"`
	BaseScore      float64        `json:"baseScore"`
	ScoreDelta     float64        `json:"scoreDelta"`
	ProjectedScore float64        `json:"projectedScore"`
	LastContext    string         `json:"lastContext,omitempty"`
	Active         bool           `json:"active"`
}

// RoleSummary is the exported copy of a role bucket
type RoleSummary struct {
	Key          string     `json:"key"`
	Name         string     `json:"name"`
	Members      []string   `json:"members"`
	Wins         int        `json:"wins"`
	Losses       int        `json:"losses"`
	Resolved     bool       `json:"resolved"`
	Result       Result     `json:"result"`
	AverageScore float64    `json:"averageScore"`
	BiasRatio    float64    `json:"biasRatio"`
	WinDelta     float64    `json:"winDelta"`
	LossDelta    float64    `json:"lossDelta"`
	ScoreRange   ScoreRange `json:"scoreRange"`
}

// Snapshot is the immutable projection of a ledger exposed outside the engine
type Snapshot struct {
	Entries       []EntrySnapshot     `json:"entries"`
	BySlotIndex   map[int]string      `json:"bySlotIndex"`
	ByOwnerID     map[string][]string `json:"byOwnerId"`
	ByHeroName    map[string]string   `json:"byHeroName"`
	RoleSummaries []RoleSummary       `json:"roleSummaries"`
	Completed     bool                `json:"completed"`
	CompletedTurn int                 `json:"completedTurn"`
	OverallResult Result              `json:"overallResult"`
	AverageScore  float64             `json:"averageScore"`
	Mode          models.SessionMode  `json:"mode"`
}

// Entry returns the snapshot entry with the given key
func (s *Snapshot) Entry(key string) (EntrySnapshot, bool) {
	for _, e := range s.Entries {
		if e.Key == key {
			return e, true
		}
	}
	return EntrySnapshot{}, false
}

// Role returns the summary for the given role name
func (s *Snapshot) Role(name string) (RoleSummary, bool) {
	key := normalizeName(name)
	for _, r := range s.RoleSummaries {
		if r.Key == key {
			return r, true
		}
	}
	return RoleSummary{}, false
}
