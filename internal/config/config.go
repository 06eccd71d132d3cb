package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/KirkDiggler/turnkeep/internal/services/outcome"
)

// Config is the process configuration read from the environment
type Config struct {
	Redis   RedisConfig
	Discord DiscordConfig
	OpenAI  OpenAIConfig
	Turn    TurnConfig
	Log     LogConfig

	// TurnLogDSN is the SQLite database the turn log is kept in
	TurnLogDSN string `env:"TURN_LOG_DSN" envDefault:"file:turnkeep.db?_pragma=busy_timeout(5000)"`

	// ScenarioPath is the YAML scenario graph
	ScenarioPath string `env:"SCENARIO_PATH" envDefault:"scenario.yaml"`

	// RoleSettingsPath is an optional YAML file of per-role score ranges
	RoleSettingsPath string `env:"ROLE_SETTINGS_PATH"`

	// ObserverID names this process when claiming sessions; defaults to the hostname
	ObserverID string `env:"OBSERVER_ID"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type DiscordConfig struct {
	Token         string `env:"DISCORD_TOKEN,required"`
	ApplicationID string `env:"APPLICATION_ID"`

	// GuildID registers commands on one guild for development
	GuildID string `env:"GUILD_ID"`
}

type OpenAIConfig struct {
	APIKey      string        `env:"OPENAI_API_KEY"`
	Model       string        `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	BaseURL     string        `env:"OPENAI_BASE_URL"`
	Temperature float64       `env:"OPENAI_TEMPERATURE" envDefault:"0.8"`
	MaxTokens   int64         `env:"OPENAI_MAX_TOKENS" envDefault:"800"`
	Timeout     time.Duration `env:"OPENAI_TIMEOUT" envDefault:"60s"`
}

type TurnConfig struct {
	BaseSeconds           int           `env:"TURN_BASE_SECONDS" envDefault:"120"`
	FirstTurnBonusSeconds int           `env:"TURN_FIRST_BONUS_SECONDS" envDefault:"60"`
	DropInBonusSeconds    int           `env:"TURN_DROP_IN_BONUS_SECONDS" envDefault:"30"`
	MissLimit             int           `env:"PRESENCE_MISS_LIMIT" envDefault:"3"`
	HistoryTurns          int           `env:"NARRATOR_HISTORY_TURNS" envDefault:"6"`
	ClaimTTL              time.Duration `env:"SESSION_CLAIM_TTL" envDefault:"24h"`
	SyncInterval          time.Duration `env:"SESSION_SYNC_INTERVAL" envDefault:"30s"`
}

type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Development bool   `env:"LOG_DEVELOPMENT"`
}

// Load reads an optional .env file and parses the environment. Variables
// already set take precedence over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, path := range envFiles {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.ObserverID == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("resolve observer id: %w", err)
		}
		cfg.ObserverID = host
	}

	return &cfg, nil
}

// roleSettingsFile is the YAML layout of the role settings file
type roleSettingsFile struct {
	Roles map[string]outcome.ScoreRange `yaml:"roles"`
}

// LoadRoleSettings reads per-role score ranges. An empty path returns no
// settings, so every role uses the default range.
func LoadRoleSettings(path string) (map[string]outcome.ScoreRange, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role settings: %w", err)
	}

	var file roleSettingsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse role settings: %w", err)
	}
	for role, r := range file.Roles {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("role %q: %w", role, err)
		}
	}
	return file.Roles, nil
}
