package models

import (
	"fmt"
	"strings"
)

// ParticipantStatus represents the current state of a participant slot
type ParticipantStatus string

const (
	// ParticipantStatusActive indicates the owner is playing the slot
	ParticipantStatusActive ParticipantStatus = "active"

	// ParticipantStatusPending indicates the slot is waiting on its owner
	ParticipantStatusPending ParticipantStatus = "pending"

	// ParticipantStatusDefeated indicates the slot's hero is out of the contest
	ParticipantStatusDefeated ParticipantStatus = "defeated"

	// ParticipantStatusSpectating indicates the owner is watching, not acting
	ParticipantStatusSpectating ParticipantStatus = "spectating"

	// ParticipantStatusProxy indicates the slot is controlled by the AI proxy
	ParticipantStatusProxy ParticipantStatus = "proxy"
)

// Participant is one roster row of a session
type Participant struct {
	// ID is the participation identifier, may be empty for seeded slots
	ID string `json:"id,omitempty"`

	// SlotIndex is the slot position in the session
	SlotIndex int `json:"slotIndex"`

	// HeroID identifies the hero played in this slot
	HeroID string `json:"heroId,omitempty"`

	// HeroName is the display name the narrator uses for the hero
	HeroName string `json:"heroName"`

	// OwnerID is the account controlling the slot
	OwnerID string `json:"ownerId,omitempty"`

	// Role is the side or team the slot belongs to
	Role string `json:"role"`

	// Status is the current state of the slot
	Status ParticipantStatus `json:"status,omitempty"`

	// Score is the hero's base rating
	Score float64 `json:"score"`
}

// Key returns the stable identity of the slot: its ID, else role:index
func (p *Participant) Key() string {
	if id := strings.TrimSpace(p.ID); id != "" {
		return id
	}
	return fmt.Sprintf("%s:%d", strings.TrimSpace(p.Role), p.SlotIndex)
}

// IsProxy reports whether the AI proxy controls the slot
func (p *Participant) IsProxy() bool {
	return p.Status == ParticipantStatusProxy
}

// CanAct reports whether the slot's owner is expected to act on a turn
func (p *Participant) CanAct() bool {
	switch p.Status {
	case "", ParticipantStatusActive, ParticipantStatusPending:
		return p.OwnerID != ""
	default:
		return false
	}
}

// Validate reports why a roster row cannot be used, or nil
func (p *Participant) Validate() error {
	if strings.TrimSpace(p.HeroName) == "" && strings.TrimSpace(p.HeroID) == "" {
		return fmt.Errorf("slot %d: hero is required", p.SlotIndex)
	}
	if strings.TrimSpace(p.Role) == "" {
		return fmt.Errorf("slot %d: role is required", p.SlotIndex)
	}
	if p.SlotIndex < 0 {
		return fmt.Errorf("slot %d: index must not be negative", p.SlotIndex)
	}
	return nil
}

// CloneParticipants copies a roster so callers can't mutate each other's rows
func CloneParticipants(in []*Participant) []*Participant {
	if in == nil {
		return nil
	}
	out := make([]*Participant, 0, len(in))
	for _, p := range in {
		if p == nil {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// EligibleOwners returns the distinct owners expected to act, in roster order
func EligibleOwners(participants []*Participant) []string {
	seen := make(map[string]bool)
	var owners []string
	for _, p := range participants {
		if p == nil || !p.CanAct() || seen[p.OwnerID] {
			continue
		}
		seen[p.OwnerID] = true
		owners = append(owners, p.OwnerID)
	}
	return owners
}
