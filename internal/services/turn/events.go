package turn

import (
	"context"

	"github.com/KirkDiggler/turnkeep/internal/models"
	"github.com/KirkDiggler/turnkeep/internal/services/outcome"
	"github.com/KirkDiggler/turnkeep/internal/services/presence"
)

// Reason is what triggered an advance
type Reason string

const (
	ReasonManual    Reason = "manual"
	ReasonAI        Reason = "ai"
	ReasonTimeout   Reason = "timeout"
	ReasonConsensus Reason = "consensus"
)

// Valid reports whether r is a known reason
func (r Reason) Valid() bool {
	switch r {
	case ReasonManual, ReasonAI, ReasonTimeout, ReasonConsensus:
		return true
	default:
		return false
	}
}

// Command is anything Dispatch accepts
type Command interface {
	command()
}

// AdvanceCommand asks for the current turn to be resolved. An AI advance on a
// turn with several eligible owners counts as the owner's consent and only
// proceeds once the quorum is reached.
type AdvanceCommand struct {
	// OverrideResponse is used instead of calling the narrator when set
	OverrideResponse string

	Reason  Reason
	OwnerID string
}

// ConsentCommand records an owner's opt-in to an AI-resolved turn
type ConsentCommand struct {
	OwnerID string
}

// RosterCommand replaces the roster with the latest full snapshot
type RosterCommand struct {
	Participants []*models.Participant
}

// ParticipationCommand records that an owner showed up this turn
type ParticipationCommand struct {
	OwnerID string
	Type    presence.ParticipationType
}

// VoidCommand ends the session without an outcome
type VoidCommand struct {
	Reason string
}

func (AdvanceCommand) command()       {}
func (ConsentCommand) command()       {}
func (RosterCommand) command()        {}
func (ParticipationCommand) command() {}
func (VoidCommand) command()          {}

// DispatchOutput reports what a command did
type DispatchOutput struct {
	// Accepted is false when the command changed nothing
	Accepted bool

	// Waiting is true when an AI advance is held for consensus
	Waiting bool

	State models.SessionState
	Turn  int
}

// EventType names a TurnEvent
type EventType string

const (
	// EventStateChanged carries the session after a state transition
	EventStateChanged EventType = "state_changed"

	// EventTimeline carries a timeline event
	EventTimeline EventType = "timeline"

	// EventStatus carries a user-facing status message
	EventStatus EventType = "status"

	// EventTurnResolved carries the narration of a resolved turn
	EventTurnResolved EventType = "turn_resolved"

	// EventFinalized is emitted exactly once when the session ends
	EventFinalized EventType = "finalized"
)

// TurnEvent is everything the orchestrator tells the outside world
type TurnEvent struct {
	Type      EventType
	SessionID string
	ChannelID string
	Turn      int
	State     models.SessionState

	// Timeline is set on EventTimeline
	Timeline *models.TimelineEvent

	// Title and Message are set on EventStatus and EventFinalized
	Title   string
	Message string

	// Narrative is set on EventTurnResolved
	Narrative string

	Termination models.Termination
	Outcome     *outcome.Snapshot
}

// EventSink receives turn events. Emit must not call back into the
// orchestrator synchronously.
type EventSink interface {
	Emit(ctx context.Context, event TurnEvent)
}

// SinkFunc adapts a function to EventSink
type SinkFunc func(ctx context.Context, event TurnEvent)

// Emit calls f
func (f SinkFunc) Emit(ctx context.Context, event TurnEvent) {
	f(ctx, event)
}

// MultiSink fans events out to several sinks in order
type MultiSink []EventSink

// Emit forwards the event to every sink
func (m MultiSink) Emit(ctx context.Context, event TurnEvent) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
