package presence

import (
	"go.uber.org/zap"

	"github.com/KirkDiggler/turnkeep/internal/common/clock"
	"github.com/KirkDiggler/turnkeep/internal/models"
)

// DefaultMissLimit is the number of consecutive missed turns before escalation
const DefaultMissLimit = 3

// Status is an owner's standing with the tracker
type Status string

const (
	StatusActive Status = "active"
	StatusWarned Status = "warned"
	StatusProxy  Status = "proxy"
)

// ParticipationType is the kind of activity that counts as showing up
type ParticipationType string

const (
	ParticipationAction  ParticipationType = "action"
	ParticipationConsent ParticipationType = "consent"
	ParticipationMessage ParticipationType = "message"
)

// Config holds configuration for a presence tracker
type Config struct {
	SessionID string

	// MissLimit is the streak that escalates an owner to proxy, default 3
	MissLimit int

	Clock  clock.Clock
	Logger *zap.Logger
}

// Record is the presence state of one owner
type Record struct {
	OwnerID              string `json:"ownerId"`
	Misses               int    `json:"misses"`
	Status               Status `json:"status"`
	LastParticipatedTurn int    `json:"lastParticipatedTurn,omitempty"`
	LastMissedTurn       int    `json:"lastMissedTurn,omitempty"`
}

// BeginTurnInput marks who is expected to act on a turn
type BeginTurnInput struct {
	TurnNumber       int
	EligibleOwnerIDs []string
}

// CompleteTurnInput closes a turn. An empty EligibleOwnerIDs reuses the set
// given to BeginTurn.
type CompleteTurnInput struct {
	TurnNumber       int
	Reason           string
	EligibleOwnerIDs []string
}

// CompleteTurnOutput reports what closing a turn changed
type CompleteTurnOutput struct {
	Snapshot []Record
	Events   []models.TimelineEvent

	// Warnings are owners who missed but are still under the limit
	Warnings []string

	// Escalated are owners flipped to proxy on this turn
	Escalated []string
}
