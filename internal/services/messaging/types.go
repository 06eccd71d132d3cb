package messaging

import (
	"github.com/KirkDiggler/turnkeep/internal/models"
	"github.com/KirkDiggler/turnkeep/internal/services/outcome"
)

// StatusKind represents the situation a status message describes
type StatusKind string

const (
	// StatusRosterInvalid is sent when no usable participant is left at start
	StatusRosterInvalid StatusKind = "roster_invalid"

	// StatusNarratorUnavailable is sent when the narrator could not be reached
	StatusNarratorUnavailable StatusKind = "narrator_unavailable"

	// StatusQuotaExhausted is sent when the narrator's quota ran out
	StatusQuotaExhausted StatusKind = "quota_exhausted"

	// StatusMissingAPIKey is sent when the owner has no narrator key
	StatusMissingAPIKey StatusKind = "missing_user_api_key"

	// StatusNarratorFailed is sent for any other narrator API failure
	StatusNarratorFailed StatusKind = "api_error"

	// StatusPromptFailed is sent when the turn prompt could not be built
	StatusPromptFailed StatusKind = "prompt_failed"

	// StatusRuleFailed is sent when the next scene could not be decided
	StatusRuleFailed StatusKind = "rule_failed"

	// StatusStorageFailed is sent when the session could not be saved
	StatusStorageFailed StatusKind = "storage_failed"

	// StatusAwaitingConsensus is sent while a quorum is still being gathered
	StatusAwaitingConsensus StatusKind = "awaiting_consensus"
)

// MessageTone represents the tone of a message
type MessageTone string

const (
	// ToneNeutral is a neutral tone
	ToneNeutral MessageTone = "neutral"

	// ToneFunny is a humorous tone
	ToneFunny MessageTone = "funny"

	// ToneEncouraging is an encouraging tone
	ToneEncouraging MessageTone = "encouraging"

	// ToneCelebration is a celebratory tone
	ToneCelebration MessageTone = "celebration"
)

// GetStatusMessageInput contains parameters for getting a status message
type GetStatusMessageInput struct {
	Kind StatusKind

	// Turn is the turn the status applies to
	Turn int

	// Count and Threshold describe consensus progress
	Count     int
	Threshold int

	// PreferredTone is the preferred tone for the message (optional)
	PreferredTone MessageTone
}

// GetStatusMessageOutput contains the result of getting a status message
type GetStatusMessageOutput struct {
	Title   string
	Message string
	Tone    MessageTone
}

// GetTimelineMessageInput contains parameters for narrating a timeline event
type GetTimelineMessageInput struct {
	Event *models.TimelineEvent

	// OwnerName is the display name of the event's owner, if known
	OwnerName string
}

// GetTimelineMessageOutput contains the result of narrating a timeline event
type GetTimelineMessageOutput struct {
	Message string
}

// GetOutcomeMessageInput contains parameters for the closing message
type GetOutcomeMessageInput struct {
	Termination models.Termination
	Snapshot    *outcome.Snapshot
}

// GetOutcomeMessageOutput contains the closing message
type GetOutcomeMessageOutput struct {
	Title   string
	Message string
	Tone    MessageTone
}

// ServiceConfig contains configuration for the messaging service
type ServiceConfig struct {
	// Seed fixes message selection when non-zero
	Seed int64
}
