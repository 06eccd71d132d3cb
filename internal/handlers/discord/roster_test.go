package discord

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KirkDiggler/turnkeep/internal/models"
)

func TestJoinRoster(t *testing.T) {
	roster, err := joinRoster(nil, "owner-1", " Alice ", "A")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "Alice", roster[0].HeroName)
	assert.Equal(t, 0, roster[0].SlotIndex)
	assert.Equal(t, models.ParticipantStatusActive, roster[0].Status)

	next, err := joinRoster(roster, "owner-2", "Bob", "B")
	require.NoError(t, err)
	require.Len(t, next, 2)
	assert.Equal(t, 1, next[1].SlotIndex)
	assert.Len(t, roster, 1, "input roster is not modified")

	_, err = joinRoster(next, "owner-3", "alice", "A")
	assert.ErrorIs(t, err, errHeroTaken)

	_, err = joinRoster(next, "owner-3", "", "A")
	assert.ErrorIs(t, err, errHeroRequired)

	_, err = joinRoster(next, "owner-3", "Carol", " ")
	assert.ErrorIs(t, err, errRoleRequired)
}

func TestJoinRosterReclaimsProxySlot(t *testing.T) {
	roster := []*models.Participant{
		{SlotIndex: 0, HeroName: "Alice", OwnerID: "owner-1", Role: "A", Status: models.ParticipantStatusProxy},
	}

	_, err := joinRoster(roster, "owner-2", "Alice", "A")
	assert.ErrorIs(t, err, errHeroTaken)

	out, err := joinRoster(roster, "owner-1", "Alice", "A")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.ParticipantStatusActive, out[0].Status)
	assert.Equal(t, models.ParticipantStatusProxy, roster[0].Status)
}

func TestLeaveRoster(t *testing.T) {
	roster := []*models.Participant{
		{SlotIndex: 0, HeroName: "Alice", OwnerID: "owner-1", Role: "A"},
		{SlotIndex: 1, HeroName: "Bob", OwnerID: "owner-2", Role: "B"},
		{SlotIndex: 2, HeroName: "Ada", OwnerID: "owner-1", Role: "C"},
	}

	marked, remaining, err := leaveRoster(roster, "owner-1")
	require.NoError(t, err)

	require.Len(t, marked, 3)
	assert.Equal(t, models.ParticipantStatusSpectating, marked[0].Status)
	assert.Equal(t, models.ParticipantStatus(""), marked[1].Status)
	assert.Equal(t, models.ParticipantStatusSpectating, marked[2].Status)

	require.Len(t, remaining, 1)
	assert.Equal(t, "Bob", remaining[0].HeroName)

	_, _, err = leaveRoster(roster, "owner-9")
	assert.ErrorIs(t, err, errNotOnRoster)
}
