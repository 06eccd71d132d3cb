package session

import (
	"time"

	"github.com/KirkDiggler/turnkeep/internal/models"
	"github.com/KirkDiggler/turnkeep/internal/services/outcome"
)

type SaveSessionInput struct {
	Session *models.Session
}

type GetSessionInput struct {
	SessionID string
}

type GetSessionByChannelInput struct {
	ChannelID string
}

type ListActiveSessionsInput struct {
}

type ListActiveSessionsOutput struct {
	Sessions []*models.Session
}

type DeleteSessionInput struct {
	SessionID string
}

type ClaimSessionInput struct {
	SessionID  string
	ObserverID string

	// TTL expires the claim; zero keeps it until the session is deleted
	TTL time.Duration
}

type ClaimSessionOutput struct {
	// Claimed is true when ObserverID holds the claim
	Claimed bool

	// Owner is the observer holding the claim
	Owner string
}

type SaveOutcomeInput struct {
	SessionID string
	Snapshot  *outcome.Snapshot
}

type GetOutcomeInput struct {
	SessionID string
}
