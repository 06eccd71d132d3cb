package discord

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/KirkDiggler/turnkeep/internal/models"
	"github.com/KirkDiggler/turnkeep/internal/services/consensus"
	"github.com/KirkDiggler/turnkeep/internal/services/outcome"
	"github.com/KirkDiggler/turnkeep/internal/services/presence"
	"github.com/KirkDiggler/turnkeep/internal/services/timer"
)

// Discord rejects embed descriptions longer than this
const maxDescription = 4096

// Button IDs
const (
	ButtonAdvance = "turn_advance"
	ButtonConsent = "turn_consent"
)

// statusView is everything the status embed shows
type statusView struct {
	Session   *models.Session
	Timer     timer.Snapshot
	Consensus consensus.Snapshot
	Presence  []presence.Record
	Outcome   *outcome.Snapshot
}

// renderStatus renders the session overview
func renderStatus(v *statusView) *discordgo.MessageEmbed {
	s := v.Session
	fields := []*discordgo.MessageEmbedField{
		{Name: "State", Value: string(s.State), Inline: true},
		{Name: "Turn", Value: fmt.Sprintf("%d", s.Turn), Inline: true},
	}
	if v.Timer.Running {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Time left",
			Value:  v.Timer.Remaining.Round(time.Second).String(),
			Inline: true,
		})
	}
	if v.Consensus.NeedsConsensus {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   "Consensus",
			Value:  fmt.Sprintf("%d / %d", len(v.Consensus.Consented), v.Consensus.Threshold),
			Inline: true,
		})
	}

	strikes := make(map[string]presence.Record, len(v.Presence))
	for _, rec := range v.Presence {
		strikes[rec.OwnerID] = rec
	}

	var roster []string
	for _, p := range s.Participants {
		line := fmt.Sprintf("`%d` **%s** (%s)", p.SlotIndex, p.HeroName, p.Role)
		if p.OwnerID != "" {
			line += fmt.Sprintf(" <@%s>", p.OwnerID)
		}
		if p.Status != "" && p.Status != models.ParticipantStatusActive {
			line += fmt.Sprintf(" · %s", p.Status)
		}
		if rec, ok := strikes[p.OwnerID]; ok && rec.Misses > 0 && rec.Status != presence.StatusProxy {
			line += fmt.Sprintf(" · %d missed", rec.Misses)
		}
		roster = append(roster, line)
	}
	if len(roster) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Roster",
			Value: strings.Join(roster, "\n"),
		})
	}

	if v.Outcome != nil {
		if standings := renderStandings(v.Outcome); standings != "" {
			fields = append(fields, &discordgo.MessageEmbedField{Name: "Standings", Value: standings})
		}
	}

	title := "Session"
	if s.State.IsTerminal() {
		title = fmt.Sprintf("Session ended (%s)", s.Termination)
	}

	return &discordgo.MessageEmbed{
		Title:  title,
		Color:  colorInfo,
		Fields: fields,
	}
}

// renderStandings lists every role with its result
func renderStandings(snap *outcome.Snapshot) string {
	var lines []string
	for _, r := range snap.RoleSummaries {
		lines = append(lines, fmt.Sprintf("**%s**: %s (%dW/%dL)", r.Name, r.Result, r.Wins, r.Losses))
	}
	return strings.Join(lines, "\n")
}

// renderNarrative renders a resolved turn
func renderNarrative(turn int, narrative string) *discordgo.MessageEmbed {
	if narrative == "" {
		narrative = "…"
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Turn %d", turn),
		Description: truncate(narrative, maxDescription),
		Color:       colorSuccess,
	}
}

// renderFinal renders the closing message of a session
func renderFinal(title, message string, termination models.Termination, snap *outcome.Snapshot) *discordgo.MessageEmbed {
	if title == "" {
		title = fmt.Sprintf("Session ended (%s)", termination)
	}

	color := colorSuccess
	if termination == models.TerminationVoided || termination == models.TerminationNoPath {
		color = colorWarning
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: truncate(message, maxDescription),
		Color:       color,
	}
	if snap != nil {
		if standings := renderStandings(snap); standings != "" {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Standings", Value: standings})
		}
	}
	return embed
}

// renderNotice renders a one-line status or timeline message
func renderNotice(title, message string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: truncate(message, maxDescription),
		Color:       color,
	}
}

// turnButtons are shown under the status embed
func turnButtons() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.Button{
			Label:    "Advance",
			Style:    discordgo.PrimaryButton,
			CustomID: ButtonAdvance,
		},
		discordgo.Button{
			Label:    "Let the narrator decide",
			Style:    discordgo.SecondaryButton,
			CustomID: ButtonConsent,
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
