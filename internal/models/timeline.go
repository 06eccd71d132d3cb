package models

import "time"

// TimelineEventType names something that happened during a session
type TimelineEventType string

const (
	TimelineDropInJoined     TimelineEventType = "drop_in_joined"
	TimelineDropInDeparted   TimelineEventType = "drop_in_departed"
	TimelineTurnTimeout      TimelineEventType = "turn_timeout"
	TimelineConsensusReached TimelineEventType = "consensus_reached"
	TimelineProxyEscalated   TimelineEventType = "proxy_escalated"
	TimelineWarning          TimelineEventType = "warning"
	TimelineTurnResolved     TimelineEventType = "turn_resolved"
	TimelineSessionFinalized TimelineEventType = "session_finalized"
	TimelineSessionVoided    TimelineEventType = "session_voided"
)

// TimelineEvent is emitted to logging and presentation collaborators
type TimelineEvent struct {
	ID        string            `json:"id"`
	SessionID string            `json:"sessionId"`
	Type      TimelineEventType `json:"type"`
	OwnerID   string            `json:"ownerId,omitempty"`
	Turn      int               `json:"turn"`
	Timestamp time.Time         `json:"timestamp"`
	Reason    string            `json:"reason,omitempty"`
	Context   string            `json:"context,omitempty"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
}
