package messaging

import "context"

//go:generate mockgen -package=mocks -destination=mocks/mock_service.go github.com/KirkDiggler/turnkeep/internal/services/messaging Service

// Service is the interface for the messaging service
type Service interface {
	// GetStatusMessage returns a user-facing message for a session status or failure
	GetStatusMessage(ctx context.Context, input *GetStatusMessageInput) (*GetStatusMessageOutput, error)

	// GetTimelineMessage returns a one-line narration of a timeline event
	GetTimelineMessage(ctx context.Context, input *GetTimelineMessageInput) (*GetTimelineMessageOutput, error)

	// GetOutcomeMessage returns the closing message of a finished session
	GetOutcomeMessage(ctx context.Context, input *GetOutcomeMessageInput) (*GetOutcomeMessageOutput, error)
}
