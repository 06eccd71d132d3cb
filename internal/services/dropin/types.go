package dropin

import (
	"github.com/KirkDiggler/turnkeep/internal/models"
)

// DepartureCause classifies why an occupant left a role
type DepartureCause string

const (
	CauseRoleDefeated       DepartureCause = "role_defeated"
	CauseRoleSpectating     DepartureCause = "role_spectating"
	CauseAsyncProxyRotation DepartureCause = "async_proxy_rotation"
	CauseAsyncPending       DepartureCause = "async_pending"
	CauseAsyncRotation      DepartureCause = "async_rotation"
)

// SyncOptions contains parameters for a queue sync
type SyncOptions struct {
	// TurnNumber is the turn the roster was observed on
	TurnNumber int

	// Mode is the session mode the roster belongs to
	Mode models.SessionMode
}

// Arrival is a new occupant on a role
type Arrival struct {
	Role        string
	Key         string
	Participant models.Participant

	// Replaced is the prior occupant this arrival substitutes, nil for a plain arrival
	Replaced *models.Participant

	Turn int
}

// Departure is an occupant that left without an incoming replacement
type Departure struct {
	Role        string
	Key         string
	Participant models.Participant
	Cause       DepartureCause
	Turn        int
}

// SyncOutput contains the result of a queue sync
type SyncOutput struct {
	// Baseline is true for the first sync, which never reports changes
	Baseline bool

	// Changed reports whether any occupant arrived or departed
	Changed bool

	Arrivals   []Arrival
	Departures []Departure
}

// RoleStats accumulates drop-in activity for one role
type RoleStats struct {
	Role               string         `json:"role"`
	ActiveKey          string         `json:"activeKey,omitempty"`
	Arrivals           int            `json:"arrivals"`
	Replacements       int            `json:"replacements"`
	LastArrivalTurn    int            `json:"lastArrivalTurn"`
	LastDepartureTurn  int            `json:"lastDepartureTurn"`
	LastDepartureCause DepartureCause `json:"lastDepartureCause,omitempty"`
}
