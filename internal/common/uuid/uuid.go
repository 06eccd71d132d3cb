package uuid

import "github.com/google/uuid"

//go:generate mockgen -package=mocks -destination=mocks/mock_uuid.go github.com/KirkDiggler/turnkeep/internal/common/uuid UUID

// UUID generates ids for sessions and timeline events
type UUID interface {
	NewUUID() string
}

// DefaultUUID generates version 7 UUIDs, so ids sort in creation order
type DefaultUUID struct{}

func New() *DefaultUUID {
	return &DefaultUUID{}
}

// NewUUID returns a new UUID. It falls back to a random UUID if the
// time-ordered one cannot be generated.
func (d *DefaultUUID) NewUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
