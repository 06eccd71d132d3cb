package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/KirkDiggler/turnkeep/internal/common/clock"
	"github.com/KirkDiggler/turnkeep/internal/common/uuid"
	"github.com/KirkDiggler/turnkeep/internal/config"
	"github.com/KirkDiggler/turnkeep/internal/handlers/discord"
	sessionRepo "github.com/KirkDiggler/turnkeep/internal/repositories/session"
	"github.com/KirkDiggler/turnkeep/internal/repositories/turnlog"
	"github.com/KirkDiggler/turnkeep/internal/services/messaging"
	"github.com/KirkDiggler/turnkeep/internal/services/narrator"
	"github.com/KirkDiggler/turnkeep/internal/services/scenario"
	"github.com/KirkDiggler/turnkeep/internal/services/turn"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	// Initialize repositories
	sessions, err := sessionRepo.NewRedis(&sessionRepo.Config{
		RedisClient: redisClient,
	})
	if err != nil {
		logger.Fatal("failed to create session repository", zap.Error(err))
	}

	turnLog, err := turnlog.NewSQLite(&turnlog.Config{
		DSN: cfg.TurnLogDSN,
	})
	if err != nil {
		logger.Fatal("failed to open turn log", zap.Error(err))
	}
	defer turnLog.Close()

	graph, err := scenario.LoadFile(cfg.ScenarioPath)
	if err != nil {
		logger.Fatal("failed to load scenario", zap.String("path", cfg.ScenarioPath), zap.Error(err))
	}

	roleSettings, err := config.LoadRoleSettings(cfg.RoleSettingsPath)
	if err != nil {
		logger.Fatal("failed to load role settings", zap.String("path", cfg.RoleSettingsPath), zap.Error(err))
	}

	narr, err := narrator.NewOpenAI(&narrator.OpenAIConfig{
		APIKey:      cfg.OpenAI.APIKey,
		Model:       cfg.OpenAI.Model,
		BaseURL:     cfg.OpenAI.BaseURL,
		Temperature: cfg.OpenAI.Temperature,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Timeout:     cfg.OpenAI.Timeout,
		Logger:      logger.Named("narrator"),
	})
	if err != nil {
		logger.Fatal("failed to create narrator", zap.Error(err))
	}

	messages, err := messaging.NewService(&messaging.ServiceConfig{})
	if err != nil {
		logger.Fatal("failed to create messaging service", zap.Error(err))
	}

	// Initialize Discord bot
	bot, err := discord.New(&discord.Config{
		Token:         cfg.Discord.Token,
		ApplicationID: cfg.Discord.ApplicationID,
		GuildID:       cfg.Discord.GuildID,
		Logger:        logger.Named("discord"),
	})
	if err != nil {
		logger.Fatal("failed to create Discord bot", zap.Error(err))
	}

	sink, err := discord.NewChannelSink(&discord.ChannelSinkConfig{
		Sender:   bot.Session(),
		Messages: messages,
		Logger:   logger.Named("sink"),
	})
	if err != nil {
		logger.Fatal("failed to create channel sink", zap.Error(err))
	}

	wallClock := &clock.DefaultClock{}
	ids := uuid.New()

	manager, err := turn.NewManager(&turn.ManagerConfig{
		Template: turn.Config{
			Narrator:     narr,
			Compiler:     graph,
			Evaluator:    graph,
			Messages:     messages,
			Sink:         sink,
			SessionRepo:  sessions,
			TurnLog:      turnLog,
			RoleSettings: roleSettings,
			Timer: turn.TimerSettings{
				BaseSeconds:           cfg.Turn.BaseSeconds,
				FirstTurnBonusSeconds: cfg.Turn.FirstTurnBonusSeconds,
				DropInBonusSeconds:    cfg.Turn.DropInBonusSeconds,
			},
			MissLimit:    cfg.Turn.MissLimit,
			HistoryTurns: cfg.Turn.HistoryTurns,
			Clock:        wallClock,
			UUID:         ids,
			Logger:       logger.Named("turn"),
		},
		ObserverID: cfg.ObserverID,
		ClaimTTL:   cfg.Turn.ClaimTTL,
	})
	if err != nil {
		logger.Fatal("failed to create session manager", zap.Error(err))
	}

	turnCmd, err := discord.NewTurnCommand(&discord.TurnCommandConfig{
		Manager:     manager,
		SessionRepo: sessions,
		UUID:        ids,
		Clock:       wallClock,
		Logger:      logger.Named("command"),
	})
	if err != nil {
		logger.Fatal("failed to create turn command", zap.Error(err))
	}
	bot.Attach(turnCmd)

	// Start the bot
	if err := bot.Start(); err != nil {
		logger.Fatal("failed to start Discord bot", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go syncSessions(ctx, manager, cfg.Turn.SyncInterval, logger)

	// Wait for interrupt signal to gracefully shutdown
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc
	cancel()

	if err := bot.Stop(); err != nil {
		logger.Warn("error stopping bot", zap.Error(err))
	}

	logger.Info("bot has been shut down")
}

// syncSessions adopts sessions started by other processes and drops the
// ones that have ended
func syncSessions(ctx context.Context, manager *turn.Manager, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			out, err := manager.Sync(ctx)
			if err != nil {
				logger.Warn("session sync failed", zap.Error(err))
				continue
			}
			if len(out.Adopted) > 0 || len(out.Removed) > 0 {
				logger.Info("synced sessions",
					zap.Strings("adopted", out.Adopted),
					zap.Strings("removed", out.Removed),
					zap.Int("observed", len(out.Observed)),
				)
			}
		}
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
