package session

//go:generate mockgen -package=mocks -destination=mocks/mock_repository.go github.com/KirkDiggler/turnkeep/internal/repositories/session Repository

import (
	"context"

	"github.com/KirkDiggler/turnkeep/internal/models"
	"github.com/KirkDiggler/turnkeep/internal/services/outcome"
)

// Repository defines the interface for session persistence
type Repository interface {
	// SaveSession persists a session row and keeps the channel and active indexes current
	SaveSession(ctx context.Context, input *SaveSessionInput) error

	// GetSession retrieves a session by ID
	GetSession(ctx context.Context, input *GetSessionInput) (*models.Session, error)

	// GetSessionByChannel retrieves the session played in a channel
	GetSessionByChannel(ctx context.Context, input *GetSessionByChannelInput) (*models.Session, error)

	// ListActiveSessions retrieves every session that has not terminated
	ListActiveSessions(ctx context.Context, input *ListActiveSessionsInput) (*ListActiveSessionsOutput, error)

	// DeleteSession removes a session and everything stored alongside it
	DeleteSession(ctx context.Context, input *DeleteSessionInput) error

	// ClaimSession records which observer manages a session. The first claim wins.
	ClaimSession(ctx context.Context, input *ClaimSessionInput) (*ClaimSessionOutput, error)

	// SaveOutcome persists an outcome snapshot
	SaveOutcome(ctx context.Context, input *SaveOutcomeInput) error

	// GetOutcome retrieves the latest outcome snapshot of a session
	GetOutcome(ctx context.Context, input *GetOutcomeInput) (*outcome.Snapshot, error)
}
