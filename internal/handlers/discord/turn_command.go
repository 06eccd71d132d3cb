package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/KirkDiggler/turnkeep/internal/common/clock"
	"github.com/KirkDiggler/turnkeep/internal/common/uuid"
	"github.com/KirkDiggler/turnkeep/internal/models"
	sessionRepo "github.com/KirkDiggler/turnkeep/internal/repositories/session"
	"github.com/KirkDiggler/turnkeep/internal/services/narrator"
	"github.com/KirkDiggler/turnkeep/internal/services/turn"
)

var (
	errNoSession      = errors.New("no session in this channel")
	errSessionExists  = errors.New("this channel already has a session")
	errNotCreator     = errors.New("only the session creator can do that")
	errNotAssembling  = errors.New("the session has already begun")
	errNotRunning     = errors.New("the session is not running")
	errUnknownCommand = errors.New("unknown subcommand")
)

// TurnCommandConfig holds configuration for the /turn command
type TurnCommandConfig struct {
	Manager     *turn.Manager
	SessionRepo sessionRepo.Repository
	UUID        uuid.UUID
	Clock       clock.Clock
	Logger      *zap.Logger
}

// TurnCommand handles the /turn command
type TurnCommand struct {
	BaseCommand
	manager     *turn.Manager
	sessionRepo sessionRepo.Repository
	uuid        uuid.UUID
	clock       clock.Clock
	logger      *zap.Logger
}

// NewTurnCommand creates a new turn command handler
func NewTurnCommand(cfg *TurnCommandConfig) (*TurnCommand, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.Manager == nil || cfg.SessionRepo == nil {
		return nil, errors.New("manager and session repository are required")
	}

	ids := cfg.UUID
	if ids == nil {
		ids = uuid.New()
	}
	c := cfg.Clock
	if c == nil {
		c = &clock.DefaultClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	heroOptions := []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "hero",
			Description: "Name of your hero",
			Required:    true,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "role",
			Description: "Side or team the hero plays for",
			Required:    true,
		},
	}

	return &TurnCommand{
		BaseCommand: BaseCommand{
			Name:        "turn",
			Description: "Narrated turn-based sessions",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "start",
					Description: "Open a new session in this channel",
					Options: append(heroOptions, &discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "mode",
						Description: "Scoring rules",
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "standard", Value: string(models.SessionModeStandard)},
							{Name: "brawl", Value: string(models.SessionModeBrawl)},
						},
					}),
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "join",
					Description: "Add a hero to the session",
					Options:     heroOptions,
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "leave",
					Description: "Take your heroes out of the session",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "begin",
					Description: "Start the first turn",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "advance",
					Description: "Resolve the current turn",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "response",
							Description: "Use this text instead of asking the narrator",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "consent",
					Description: "Agree to let the narrator resolve the turn",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "status",
					Description: "Show the session",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "void",
					Description: "End the session without a result",
				},
			},
		},
		manager:     cfg.Manager,
		sessionRepo: cfg.SessionRepo,
		uuid:        ids,
		clock:       c,
		logger:      logger,
	}, nil
}

// Handle processes a Discord interaction for the turn command
func (c *TurnCommand) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	if i.Type != discordgo.InteractionApplicationCommand {
		return nil
	}

	data := i.ApplicationCommandData()
	if data.Name != c.Name || len(data.Options) == 0 {
		return nil
	}

	ctx := context.Background()
	sub := data.Options[0]
	opts := make(map[string]string, len(sub.Options))
	for _, opt := range sub.Options {
		opts[opt.Name] = opt.StringValue()
	}
	userID, _ := interactionUser(i)

	var err error
	switch sub.Name {
	case "start":
		err = c.handleStart(ctx, s, i, userID, opts)
	case "join":
		err = c.handleJoin(ctx, s, i, userID, opts)
	case "leave":
		err = c.handleLeave(ctx, s, i, userID)
	case "begin":
		err = c.handleBegin(ctx, s, i, userID)
	case "advance":
		return c.dispatchDeferred(ctx, s, i, turn.AdvanceCommand{
			Reason:           turn.ReasonManual,
			OwnerID:          userID,
			OverrideResponse: opts["response"],
		})
	case "consent":
		return c.dispatchDeferred(ctx, s, i, turn.ConsentCommand{OwnerID: userID})
	case "status":
		err = c.handleStatus(ctx, s, i)
	case "void":
		err = c.handleVoid(ctx, s, i, userID)
	default:
		err = errUnknownCommand
	}

	if err != nil {
		c.logger.Info("turn command rejected",
			zap.String("subcommand", sub.Name),
			zap.String("channel_id", i.ChannelID),
			zap.Error(err),
		)
		return RespondWithError(s, i, describeError(err))
	}
	return nil
}

func (c *TurnCommand) handleStart(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, userID string, opts map[string]string) error {
	existing, err := c.sessionRepo.GetSessionByChannel(ctx, &sessionRepo.GetSessionByChannelInput{ChannelID: i.ChannelID})
	switch {
	case err == nil && !existing.State.IsTerminal():
		return errSessionExists
	case err != nil && !errors.Is(err, sessionRepo.ErrSessionNotFound):
		return err
	}

	roster, err := joinRoster(nil, userID, opts["hero"], opts["role"])
	if err != nil {
		return err
	}

	mode := models.SessionMode(opts["mode"])
	if mode == "" {
		mode = models.SessionModeStandard
	}

	now := c.clock.Now()
	session := &models.Session{
		ID:           c.uuid.NewUUID(),
		ChannelID:    i.ChannelID,
		CreatedBy:    userID,
		Mode:         mode,
		State:        models.SessionStatePreflight,
		Participants: roster,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.sessionRepo.SaveSession(ctx, &sessionRepo.SaveSessionInput{Session: session}); err != nil {
		return err
	}

	c.logger.Info("session opened",
		zap.String("session_id", session.ID),
		zap.String("channel_id", session.ChannelID),
		zap.String("mode", string(mode)),
	)
	return RespondWithEmbed(s, i, renderStatus(&statusView{Session: session}))
}

func (c *TurnCommand) handleJoin(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, userID string, opts map[string]string) error {
	session, o, err := c.lookup(ctx, i.ChannelID)
	if err != nil {
		return err
	}

	roster, err := joinRoster(session.Participants, userID, opts["hero"], opts["role"])
	if err != nil {
		return err
	}

	if o == nil {
		session.Participants = roster
		session.UpdatedAt = c.clock.Now()
		if err := c.sessionRepo.SaveSession(ctx, &sessionRepo.SaveSessionInput{Session: session}); err != nil {
			return err
		}
		return RespondWithEmbed(s, i, renderStatus(&statusView{Session: session}))
	}

	if _, err := o.Dispatch(ctx, turn.RosterCommand{Participants: roster}); err != nil {
		return err
	}
	return RespondWithEphemeralMessage(s, i, fmt.Sprintf("%s joins the session.", opts["hero"]))
}

func (c *TurnCommand) handleLeave(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, userID string) error {
	session, o, err := c.lookup(ctx, i.ChannelID)
	if err != nil {
		return err
	}

	marked, remaining, err := leaveRoster(session.Participants, userID)
	if err != nil {
		return err
	}

	if o == nil {
		session.Participants = remaining
		session.UpdatedAt = c.clock.Now()
		if err := c.sessionRepo.SaveSession(ctx, &sessionRepo.SaveSessionInput{Session: session}); err != nil {
			return err
		}
		return RespondWithEphemeralMessage(s, i, "You left the session.")
	}

	for _, roster := range [][]*models.Participant{marked, remaining} {
		if _, err := o.Dispatch(ctx, turn.RosterCommand{Participants: roster}); err != nil {
			return err
		}
	}
	return RespondWithEphemeralMessage(s, i, "You left the session. The narrator keeps your place warm.")
}

func (c *TurnCommand) handleBegin(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, userID string) error {
	session, o, err := c.lookup(ctx, i.ChannelID)
	if err != nil {
		return err
	}
	if o != nil {
		return errNotAssembling
	}
	if session.CreatedBy != userID {
		return errNotCreator
	}

	o, err = c.manager.Create(ctx, session)
	if err != nil {
		return err
	}
	return RespondWithEmbed(s, i, renderStatus(c.statusOf(o)), turnButtons()...)
}

func (c *TurnCommand) handleStatus(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) error {
	session, o, err := c.lookup(ctx, i.ChannelID)
	if err != nil {
		return err
	}
	if o == nil {
		return RespondWithEmbed(s, i, renderStatus(&statusView{Session: session}))
	}
	return RespondWithEmbed(s, i, renderStatus(c.statusOf(o)), turnButtons()...)
}

func (c *TurnCommand) handleVoid(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, userID string) error {
	session, o, err := c.lookup(ctx, i.ChannelID)
	if err != nil {
		return err
	}
	if session.CreatedBy != userID {
		return errNotCreator
	}

	if o == nil {
		session.State = models.SessionStateTerminated
		session.Termination = models.TerminationVoided
		session.UpdatedAt = c.clock.Now()
		if err := c.sessionRepo.SaveSession(ctx, &sessionRepo.SaveSessionInput{Session: session}); err != nil {
			return err
		}
		return RespondWithEphemeralMessage(s, i, "The session was called off.")
	}

	if _, err := o.Dispatch(ctx, turn.VoidCommand{Reason: "voided_by_creator"}); err != nil {
		return err
	}
	c.manager.Remove(session.ID)
	return RespondWithEphemeralMessage(s, i, "The session was called off.")
}

// dispatchDeferred runs a command that may wait on the narrator
func (c *TurnCommand) dispatchDeferred(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, cmd turn.Command) error {
	if err := DeferEphemeral(s, i); err != nil {
		return err
	}

	reply, err := c.dispatch(ctx, i.ChannelID, cmd)
	if err != nil {
		reply = describeError(err)
	}
	return EditDeferred(s, i, reply)
}

func (c *TurnCommand) dispatch(ctx context.Context, channelID string, cmd turn.Command) (string, error) {
	_, o, err := c.lookup(ctx, channelID)
	if err != nil {
		return "", err
	}
	if o == nil {
		return "", errNotRunning
	}

	out, err := o.Dispatch(ctx, cmd)
	if err != nil {
		return "", err
	}
	return describeDispatch(out), nil
}

// lookup finds the channel's session and, once it is running, its
// orchestrator. A running session another process started is adopted.
func (c *TurnCommand) lookup(ctx context.Context, channelID string) (*models.Session, *turn.Orchestrator, error) {
	session, err := c.sessionRepo.GetSessionByChannel(ctx, &sessionRepo.GetSessionByChannelInput{ChannelID: channelID})
	if err != nil {
		if errors.Is(err, sessionRepo.ErrSessionNotFound) {
			return nil, nil, errNoSession
		}
		return nil, nil, err
	}
	if session.State.IsTerminal() {
		return nil, nil, errNoSession
	}

	if o, ok := c.manager.Get(session.ID); ok {
		return o.Session(), o, nil
	}
	if session.State == models.SessionStatePreflight {
		return session, nil, nil
	}

	adopted, err := c.manager.Adopt(ctx, session)
	if err != nil {
		return nil, nil, err
	}
	if adopted.Created {
		if err := adopted.Orchestrator.Start(ctx); err != nil && !errors.Is(err, turn.ErrAlreadyStarted) {
			c.manager.Remove(session.ID)
			return nil, nil, err
		}
	}
	return adopted.Orchestrator.Session(), adopted.Orchestrator, nil
}

func (c *TurnCommand) statusOf(o *turn.Orchestrator) *statusView {
	return &statusView{
		Session:   o.Session(),
		Timer:     o.TimerSnapshot(),
		Consensus: o.ConsensusSnapshot(),
		Presence:  o.PresenceSnapshot(),
		Outcome:   o.Outcome(),
	}
}

// describeDispatch turns a dispatch result into a short reply
func describeDispatch(out *turn.DispatchOutput) string {
	switch {
	case out == nil:
		return "Done."
	case out.Waiting:
		return "Your vote is in. Waiting for the rest of the table."
	case out.State.IsTerminal():
		return "The session is over."
	default:
		return fmt.Sprintf("Turn %d is open.", out.Turn)
	}
}

// describeError turns an error into something a player can act on
func describeError(err error) string {
	var nerr *narrator.Error
	switch {
	case errors.Is(err, turn.ErrBusy):
		return "The narrator is still working on this turn."
	case errors.Is(err, turn.ErrTerminated):
		return "The session is over."
	case errors.Is(err, turn.ErrNotStarted), errors.Is(err, errNotRunning):
		return "The session hasn't begun yet. The creator can start it with `/turn begin`."
	case errors.Is(err, turn.ErrSessionNotManaged):
		return "Another bot instance is running this session. Try again in a moment."
	case errors.Is(err, turn.ErrNoParticipants):
		return "Nobody on the roster can play. Add a hero with `/turn join`."
	case errors.Is(err, errNoSession):
		return "There's no session in this channel. Open one with `/turn start`."
	case errors.As(err, &nerr):
		if nerr.Fatal() {
			return "The narrator can't continue this session."
		}
		return "The narrator didn't answer. Try again in a moment."
	case errors.Is(err, errSessionExists), errors.Is(err, errNotCreator), errors.Is(err, errNotAssembling),
		errors.Is(err, errHeroRequired), errors.Is(err, errRoleRequired), errors.Is(err, errHeroTaken),
		errors.Is(err, errNotOnRoster), errors.Is(err, errUnknownCommand):
		return capitalize(err.Error()) + "."
	default:
		return "Something went wrong. Please try again."
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] -= 'a' - 'A'
	}
	return string(r)
}
