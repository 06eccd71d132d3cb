package messaging

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/KirkDiggler/turnkeep/internal/models"
)

// service implements the Service interface
type service struct {
	// rand is not safe for concurrent use
	mu   sync.Mutex
	rand *rand.Rand
}

// NewService creates a new messaging service
func NewService(config *ServiceConfig) (Service, error) {
	seed := time.Now().UnixNano()
	if config != nil && config.Seed != 0 {
		seed = config.Seed
	}

	return &service{
		rand: rand.New(rand.NewSource(seed)),
	}, nil
}

func (s *service) pick(messages []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return messages[s.rand.Intn(len(messages))]
}

// GetStatusMessage returns a message for a session status or failure
func (s *service) GetStatusMessage(ctx context.Context, input *GetStatusMessageInput) (*GetStatusMessageOutput, error) {
	if input == nil {
		return nil, errors.New("input cannot be nil")
	}

	tone := input.PreferredTone
	if tone == "" {
		tone = ToneNeutral
	}

	var title string
	var messages []string

	switch input.Kind {
	case StatusRosterInvalid:
		title = "Can't Start"
		messages = []string{
			"Nobody on the roster can play: every slot needs a hero and a role.",
			"The roster is empty once the broken slots are dropped. Add a hero with a role and try again.",
		}
	case StatusNarratorUnavailable:
		title = "Narrator Unreachable"
		messages = []string{
			fmt.Sprintf("Couldn't reach the narrator for turn %d. Nothing was applied, try again.", input.Turn),
			fmt.Sprintf("The narrator didn't answer for turn %d. The turn is still open, give it another go.", input.Turn),
		}
	case StatusQuotaExhausted:
		title = "Session Voided"
		messages = []string{
			"The narrator's quota is used up, so this session has been voided.",
			"Out of narrator quota. The session is over and won't be retried.",
		}
	case StatusMissingAPIKey:
		title = "Session Voided"
		messages = []string{
			"No narrator API key is configured, so this session has been voided.",
		}
	case StatusNarratorFailed:
		title = "Session Voided"
		messages = []string{
			"The narrator rejected the turn, so this session has been voided.",
			"The narrator call failed and won't be retried. This session is void.",
		}
	case StatusPromptFailed:
		title = "Turn Not Started"
		messages = []string{
			fmt.Sprintf("Couldn't build the prompt for turn %d. The turn is still open.", input.Turn),
		}
	case StatusRuleFailed:
		title = "Scene Unchanged"
		messages = []string{
			fmt.Sprintf("Turn %d was applied, but the next scene couldn't be decided. Staying put.", input.Turn),
		}
	case StatusStorageFailed:
		title = "Not Saved"
		messages = []string{
			"The session couldn't be saved. Play goes on, but a restart may lose the latest turn.",
		}
	case StatusAwaitingConsensus:
		title = "Waiting For The Table"
		if tone == ToneFunny {
			messages = []string{
				fmt.Sprintf("%d of %d votes in. The narrator taps its pen impatiently.", input.Count, input.Threshold),
				fmt.Sprintf("%d/%d. Democracy is slow, but it gets there.", input.Count, input.Threshold),
			}
		} else {
			messages = []string{
				fmt.Sprintf("%d of %d owners agreed to let the narrator continue.", input.Count, input.Threshold),
			}
		}
	default:
		return &GetStatusMessageOutput{
			Title:   "Status",
			Message: "Something went wrong with this turn. Try again.",
			Tone:    tone,
		}, nil
	}

	return &GetStatusMessageOutput{
		Title:   title,
		Message: s.pick(messages),
		Tone:    tone,
	}, nil
}

// GetTimelineMessage narrates a timeline event in one line
func (s *service) GetTimelineMessage(ctx context.Context, input *GetTimelineMessageInput) (*GetTimelineMessageOutput, error) {
	if input == nil || input.Event == nil {
		return nil, errors.New("input and event cannot be nil")
	}

	ev := input.Event
	who := input.OwnerName
	if who == "" {
		who = ev.OwnerID
	}
	if who == "" {
		who = "Someone"
	}

	var message string
	switch ev.Type {
	case models.TimelineDropInJoined:
		hero := metaString(ev.Metadata, "heroName")
		if replaced := metaString(ev.Metadata, "replacedHeroName"); replaced != "" {
			message = fmt.Sprintf("%s takes over from %s on %s.", hero, replaced, metaString(ev.Metadata, "role"))
		} else {
			message = s.pick([]string{
				fmt.Sprintf("%s joins the %s side.", hero, metaString(ev.Metadata, "role")),
				fmt.Sprintf("A new arrival: %s, for %s.", hero, metaString(ev.Metadata, "role")),
			})
		}
	case models.TimelineDropInDeparted:
		message = fmt.Sprintf("%s has left (%s).", metaString(ev.Metadata, "heroName"), ev.Reason)
	case models.TimelineTurnTimeout:
		message = s.pick([]string{
			fmt.Sprintf("Time's up on turn %d. The narrator moves on.", ev.Turn),
			fmt.Sprintf("Turn %d ran out the clock.", ev.Turn),
		})
	case models.TimelineConsensusReached:
		message = fmt.Sprintf("The table agreed. Turn %d goes to the narrator.", ev.Turn)
	case models.TimelineWarning:
		message = fmt.Sprintf("%s missed turn %d (%d of %d strikes).", who, ev.Turn,
			metaInt(ev.Metadata, "strikes"), metaInt(ev.Metadata, "limit"))
	case models.TimelineProxyEscalated:
		message = s.pick([]string{
			fmt.Sprintf("%s has been away too long. The narrator plays their heroes now.", who),
			fmt.Sprintf("%s missed %d turns in a row. Their slots are on autopilot.", who, metaInt(ev.Metadata, "strikes")),
		})
	case models.TimelineTurnResolved:
		message = fmt.Sprintf("Turn %d resolved.", ev.Turn)
	case models.TimelineSessionFinalized:
		message = fmt.Sprintf("The session ended: %s.", ev.Reason)
	case models.TimelineSessionVoided:
		message = fmt.Sprintf("The session was voided: %s.", ev.Reason)
	default:
		message = fmt.Sprintf("%s (turn %d)", ev.Type, ev.Turn)
	}

	return &GetTimelineMessageOutput{Message: message}, nil
}

// GetOutcomeMessage returns the closing message of a session
func (s *service) GetOutcomeMessage(ctx context.Context, input *GetOutcomeMessageInput) (*GetOutcomeMessageOutput, error) {
	if input == nil {
		return nil, errors.New("input cannot be nil")
	}

	out := &GetOutcomeMessageOutput{Tone: ToneNeutral}
	switch input.Termination {
	case models.TerminationWin:
		out.Title = "Victory"
		out.Tone = ToneCelebration
		out.Message = s.pick([]string{
			"The story ends in triumph.",
			"Against the odds, the heroes carry the day.",
		})
	case models.TerminationLose:
		out.Title = "Defeat"
		out.Tone = ToneEncouraging
		out.Message = s.pick([]string{
			"The story ends in defeat. There's always another run.",
			"Not this time. Regroup and try again.",
		})
	case models.TerminationDraw:
		out.Title = "Stalemate"
		out.Message = "Nobody came out on top."
	case models.TerminationVoided:
		out.Title = "Voided"
		out.Message = "The session was voided and counts for nothing."
	case models.TerminationNoPath:
		out.Title = "The End"
		out.Message = "The story ran out of road."
	default:
		out.Title = "Session Over"
		out.Message = "The session is over."
	}

	if snap := input.Snapshot; snap != nil && len(snap.RoleSummaries) > 0 {
		var lines []string
		for _, role := range snap.RoleSummaries {
			lines = append(lines, fmt.Sprintf("%s: %s", role.Name, role.Result))
		}
		out.Message += "\n" + strings.Join(lines, "\n")
	}

	return out, nil
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
