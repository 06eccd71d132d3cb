package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	sessionRepo "github.com/KirkDiggler/turnkeep/internal/repositories/session"
	"github.com/KirkDiggler/turnkeep/internal/services/presence"
	"github.com/KirkDiggler/turnkeep/internal/services/turn"
)

var errInvalidSinkConfig = errors.New("sender and messages are required")

// Bot represents the Discord bot instance
type Bot struct {
	session    *discordgo.Session
	commands   map[string]CommandHandler
	commandIDs map[string]string // Maps command name to command ID
	turnCmd    *TurnCommand
	config     *Config
	logger     *zap.Logger
}

// Config holds the configuration for the bot
type Config struct {
	// Discord bot token
	Token string

	// Application ID for the bot
	ApplicationID string

	// Optional guild ID for development (server-specific commands)
	GuildID string

	Logger *zap.Logger
}

// New creates a new Discord bot. Commands are attached with Attach once the
// turn services that post through this session exist.
func New(cfg *Config) (*Bot, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Token == "" {
		return nil, errors.New("token cannot be empty")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bot := &Bot{
		session:    session,
		commands:   make(map[string]CommandHandler),
		commandIDs: make(map[string]string),
		config:     cfg,
		logger:     logger,
	}

	session.AddHandler(bot.handleInteraction)
	session.AddHandler(bot.handleMessage)

	return bot, nil
}

// Session returns the Discord session, which the channel sink posts through
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Attach sets the /turn command handler
func (b *Bot) Attach(cmd *TurnCommand) {
	b.turnCmd = cmd
}

// Start initializes the Discord connection and registers commands
func (b *Bot) Start() error {
	if b.turnCmd == nil {
		return errors.New("turn command is not attached")
	}

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	if err := b.RegisterCommand(b.turnCmd); err != nil {
		return fmt.Errorf("failed to register turn command: %w", err)
	}

	b.logger.Info("bot is running")
	return nil
}

// Stop removes registered commands and closes the Discord connection
func (b *Bot) Stop() error {
	appID := b.appID()
	for cmdName, cmdID := range b.commandIDs {
		if err := b.session.ApplicationCommandDelete(appID, b.config.GuildID, cmdID); err != nil {
			b.logger.Warn("failed to delete command", zap.String("command", cmdName), zap.String("command_id", cmdID), zap.Error(err))
		}
	}

	return b.session.Close()
}

// RegisterCommand registers a command with Discord. Commands go to the
// configured guild, or globally when there is none.
func (b *Bot) RegisterCommand(cmd CommandHandler) error {
	createdCmd, err := b.session.ApplicationCommandCreate(b.appID(), b.config.GuildID, cmd.GetCommand())
	if err != nil {
		return fmt.Errorf("failed to create command %s: %w", cmd.GetName(), err)
	}

	b.commands[cmd.GetName()] = cmd
	b.commandIDs[cmd.GetName()] = createdCmd.ID
	b.logger.Info("registered command",
		zap.String("command", cmd.GetName()),
		zap.String("command_id", createdCmd.ID),
		zap.String("guild_id", b.config.GuildID),
	)
	return nil
}

func (b *Bot) appID() string {
	if b.config.ApplicationID != "" {
		return b.config.ApplicationID
	}
	// Fall back to the session user when no application ID is configured
	return b.session.State.User.ID
}

// handleInteraction handles Discord interactions
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		if h, ok := b.commands[name]; ok {
			if err := h.Handle(s, i); err != nil {
				b.logger.Error("failed to handle command", zap.String("command", name), zap.Error(err))
			}
		}
	case discordgo.InteractionMessageComponent:
		if err := b.handleComponentInteraction(s, i); err != nil {
			b.logger.Error("failed to handle component interaction", zap.Error(err))
		}
	}
}

// handleComponentInteraction handles the buttons under the status embed
func (b *Bot) handleComponentInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	if b.turnCmd == nil {
		return nil
	}
	ctx := context.Background()
	userID, _ := interactionUser(i)

	switch customID := i.MessageComponentData().CustomID; customID {
	case ButtonAdvance:
		return b.turnCmd.dispatchDeferred(ctx, s, i, turn.AdvanceCommand{Reason: turn.ReasonManual, OwnerID: userID})
	case ButtonConsent:
		return b.turnCmd.dispatchDeferred(ctx, s, i, turn.AdvanceCommand{Reason: turn.ReasonAI, OwnerID: userID})
	default:
		return RespondWithError(s, i, fmt.Sprintf("Unknown button: %s", customID))
	}
}

// handleMessage counts chat in a running session's channel as participation
func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if b.turnCmd == nil || m.Author == nil || m.Author.Bot {
		return
	}
	ctx := context.Background()

	session, err := b.turnCmd.sessionRepo.GetSessionByChannel(ctx, &sessionRepo.GetSessionByChannelInput{ChannelID: m.ChannelID})
	if err != nil {
		return
	}
	o, ok := b.turnCmd.manager.Get(session.ID)
	if !ok {
		return
	}

	if _, err := o.Dispatch(ctx, turn.ParticipationCommand{
		OwnerID: m.Author.ID,
		Type:    presence.ParticipationMessage,
	}); err != nil && !errors.Is(err, turn.ErrTerminated) {
		b.logger.Debug("participation not recorded", zap.String("session_id", session.ID), zap.Error(err))
	}
}
