package turnlog

//go:generate mockgen -package=mocks -destination=mocks/mock_repository.go github.com/KirkDiggler/turnkeep/internal/repositories/turnlog Repository

import (
	"context"

	"github.com/KirkDiggler/turnkeep/internal/models"
)

// Repository is an append-only log of resolved turns
type Repository interface {
	// Append writes a turn. A turn number can only be written once per session.
	Append(ctx context.Context, input *AppendInput) error

	// List returns a session's turns in order
	List(ctx context.Context, input *ListInput) (*ListOutput, error)
}

type AppendInput struct {
	Record *models.TurnRecord
}

type ListInput struct {
	SessionID string

	// Limit keeps only the most recent turns when positive
	Limit int
}

type ListOutput struct {
	Records []*models.TurnRecord
}
