package discord

import (
	"errors"
	"strings"

	"github.com/KirkDiggler/turnkeep/internal/models"
)

var (
	errHeroRequired = errors.New("hero name is required")
	errRoleRequired = errors.New("role is required")
	errHeroTaken    = errors.New("that hero is already on the roster")
	errNotOnRoster  = errors.New("you have no heroes on the roster")
)

// joinRoster appends a slot for the owner and returns the new roster. A hero
// the owner left earlier is reactivated instead of duplicated.
func joinRoster(roster []*models.Participant, ownerID, heroName, role string) ([]*models.Participant, error) {
	heroName = strings.TrimSpace(heroName)
	role = strings.TrimSpace(role)
	if heroName == "" {
		return nil, errHeroRequired
	}
	if role == "" {
		return nil, errRoleRequired
	}

	out := models.CloneParticipants(roster)
	next := 0
	for _, p := range out {
		if p.SlotIndex >= next {
			next = p.SlotIndex + 1
		}
		if !strings.EqualFold(p.HeroName, heroName) {
			continue
		}
		if p.OwnerID != ownerID || p.CanAct() {
			return nil, errHeroTaken
		}
		p.Status = models.ParticipantStatusActive
		p.Role = role
		return out, nil
	}

	return append(out, &models.Participant{
		SlotIndex: next,
		HeroName:  heroName,
		OwnerID:   ownerID,
		Role:      role,
		Status:    models.ParticipantStatusActive,
	}), nil
}

// leaveRoster returns two rosters: one with the owner's slots marked
// spectating, and one with them removed. Syncing both in order lets the
// drop-in queue record why the slots emptied.
func leaveRoster(roster []*models.Participant, ownerID string) (marked, remaining []*models.Participant, err error) {
	marked = models.CloneParticipants(roster)
	found := false
	for _, p := range marked {
		if p.OwnerID != ownerID {
			remaining = append(remaining, p)
			continue
		}
		p.Status = models.ParticipantStatusSpectating
		found = true
	}
	if !found {
		return nil, nil, errNotOnRoster
	}
	return marked, models.CloneParticipants(remaining), nil
}
