package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/KirkDiggler/turnkeep/internal/models"
	"github.com/KirkDiggler/turnkeep/internal/services/messaging"
	"github.com/KirkDiggler/turnkeep/internal/services/turn"
)

// embedSender is the part of the Discord session the sink posts through
type embedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ChannelSinkConfig holds configuration for a channel sink
type ChannelSinkConfig struct {
	Sender   embedSender
	Messages messaging.Service
	Logger   *zap.Logger
}

// ChannelSink posts turn events to the session's channel
type ChannelSink struct {
	sender   embedSender
	messages messaging.Service
	logger   *zap.Logger
}

// NewChannelSink creates a sink posting through the given sender
func NewChannelSink(cfg *ChannelSinkConfig) (*ChannelSink, error) {
	if cfg == nil || cfg.Sender == nil || cfg.Messages == nil {
		return nil, errInvalidSinkConfig
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChannelSink{
		sender:   cfg.Sender,
		messages: cfg.Messages,
		logger:   logger,
	}, nil
}

// Emit implements turn.EventSink
func (c *ChannelSink) Emit(ctx context.Context, ev turn.TurnEvent) {
	if ev.ChannelID == "" {
		return
	}

	embed := c.render(ctx, ev)
	if embed == nil {
		return
	}

	if _, err := c.sender.ChannelMessageSendEmbed(ev.ChannelID, embed); err != nil {
		c.logger.Warn("failed to post turn event",
			zap.String("session_id", ev.SessionID),
			zap.String("channel_id", ev.ChannelID),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

func (c *ChannelSink) render(ctx context.Context, ev turn.TurnEvent) *discordgo.MessageEmbed {
	switch ev.Type {
	case turn.EventTurnResolved:
		return renderNarrative(ev.Turn, ev.Narrative)
	case turn.EventFinalized:
		return renderFinal(ev.Title, ev.Message, ev.Termination, ev.Outcome)
	case turn.EventStatus:
		return renderNotice(ev.Title, ev.Message, colorWarning)
	case turn.EventTimeline:
		return c.renderTimeline(ctx, ev.Timeline)
	default:
		return nil
	}
}

func (c *ChannelSink) renderTimeline(ctx context.Context, ev *models.TimelineEvent) *discordgo.MessageEmbed {
	if ev == nil {
		return nil
	}
	// These already have their own embeds
	switch ev.Type {
	case models.TimelineTurnResolved, models.TimelineSessionFinalized, models.TimelineSessionVoided:
		return nil
	}

	out, err := c.messages.GetTimelineMessage(ctx, &messaging.GetTimelineMessageInput{Event: ev})
	if err != nil {
		c.logger.Warn("failed to render timeline event", zap.String("type", string(ev.Type)), zap.Error(err))
		return nil
	}

	color := colorInfo
	if ev.Type == models.TimelineWarning || ev.Type == models.TimelineProxyEscalated {
		color = colorWarning
	}
	return renderNotice("", out.Message, color)
}
