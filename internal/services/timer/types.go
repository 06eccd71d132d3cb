package timer

import (
	"time"

	"go.uber.org/zap"

	"github.com/KirkDiggler/turnkeep/internal/common/clock"
)

const (
	DefaultBaseSeconds           = 120
	DefaultFirstTurnBonusSeconds = 60
	DefaultDropInBonusSeconds    = 30
)

// Config holds configuration for a turn timer
type Config struct {
	// BaseSeconds is the deadline every turn gets
	BaseSeconds int

	// FirstTurnBonusSeconds is added once, to the first scheduled turn
	FirstTurnBonusSeconds int

	// DropInBonusSeconds is granted when a participant drops in
	DropInBonusSeconds int

	Clock clock.Clock

	// OnExpire is called with the turn number when a deadline passes. It runs
	// on the clock's goroutine.
	OnExpire func(turn int)

	Logger *zap.Logger
}

// DropInBonusInput describes a drop-in bonus request
type DropInBonusInput struct {
	// Immediate extends the running deadline instead of queueing the bonus
	Immediate  bool
	TurnNumber int
}

// DropInBonusOutput reports what a drop-in bonus request did
type DropInBonusOutput struct {
	Granted bool

	// Extended is true when a live deadline was pushed back
	Extended bool

	Remaining time.Duration
}

// Snapshot is a read-only view of the timer state
type Snapshot struct {
	BaseSeconds             int           `json:"baseSeconds"`
	FirstTurnBonusAvailable bool          `json:"firstTurnBonusAvailable"`
	DropInBonusPending      bool          `json:"dropInBonusPending"`
	LastScheduledTurn       int           `json:"lastScheduledTurn"`
	LastAppliedTurn         int           `json:"lastAppliedTurn"`
	Running                 bool          `json:"running"`
	Deadline                time.Time     `json:"deadline,omitempty"`
	Remaining               time.Duration `json:"remaining"`
}
