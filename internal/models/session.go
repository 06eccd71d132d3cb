package models

import "time"

// SessionState represents where a session is in its turn lifecycle
type SessionState string

const (
	// SessionStatePreflight indicates the roster is being assembled
	SessionStatePreflight SessionState = "preflight"

	// SessionStateActive indicates the session is waiting on the current turn
	SessionStateActive SessionState = "active"

	// SessionStateResolving indicates a narrator call is in flight
	SessionStateResolving SessionState = "resolving"

	// SessionStateTerminated indicates the session has ended
	SessionStateTerminated SessionState = "terminated"
)

// IsTerminal reports whether no further turns can run
func (s SessionState) IsTerminal() bool {
	return s == SessionStateTerminated
}

// Termination records why a session ended
type Termination string

const (
	TerminationNone   Termination = ""
	TerminationWin    Termination = "win"
	TerminationLose   Termination = "lose"
	TerminationDraw   Termination = "draw"
	TerminationVoided Termination = "voided"
	TerminationNoPath Termination = "no_path"
)

// SessionMode selects rules that change how outcomes are scored
type SessionMode string

const (
	// SessionModeStandard scores eliminations as plain losses
	SessionModeStandard SessionMode = "standard"

	// SessionModeBrawl keeps partial credit for wins earned before elimination
	SessionModeBrawl SessionMode = "brawl"
)

// Session represents one multiplayer narrated session
type Session struct {
	// ID is the unique identifier for this session
	ID string `json:"id"`

	// ChannelID is the chat channel the session is played in
	ChannelID string `json:"channelId"`

	// CreatedBy is the owner who started the session
	CreatedBy string `json:"createdBy"`

	// Mode selects scoring rules
	Mode SessionMode `json:"mode"`

	// Async indicates owners act on their own schedule rather than live
	Async bool `json:"async"`

	// State is the lifecycle state
	State SessionState `json:"state"`

	// Termination is set once State is terminated
	Termination Termination `json:"termination,omitempty"`

	// Turn is the current turn number, starting at 1
	Turn int `json:"turn"`

	// NodeID is the scenario node the current turn is played on
	NodeID string `json:"nodeId,omitempty"`

	// Participants is the latest full roster
	Participants []*Participant `json:"participants"`

	// CreatedAt is when the session was created
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is when the session was last written
	UpdatedAt time.Time `json:"updatedAt"`
}
