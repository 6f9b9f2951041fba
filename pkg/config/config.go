// Package config loads the process configuration from the environment.
// A .env file is honored when present; explicit environment variables win.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full configuration surface consumed by the core.
type Config struct {
	BotName  string `env:"BOT_NAME" envDefault:"kimy"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`

	// Storage
	DatabasePath string `env:"DATABASE_PATH" envDefault:"kimy.db"`

	// LLM provider
	LLMProvider string `env:"LLM_PROVIDER" envDefault:"anthropic"` // anthropic | openai
	LLMAPIKey   string `env:"LLM_API_KEY"`
	LLMModel    string `env:"LLM_MODEL"`

	// Transports (enabled when a token is set)
	TelegramToken string `env:"TELEGRAM_TOKEN"`
	DiscordToken  string `env:"DISCORD_TOKEN"`

	// Personality
	InstantResponse           bool    `env:"INSTANT_RESPONSE" envDefault:"false"`
	BaseDelayMs               int64   `env:"PERSONALITY_BASE_DELAY_MS" envDefault:"2000"`
	MaxDelayMs                int64   `env:"PERSONALITY_MAX_DELAY_MS" envDefault:"600000"`
	SkipProbability           float64 `env:"PERSONALITY_SKIP_PROBABILITY" envDefault:"0.12"`
	ProactiveMinIntervalHours float64 `env:"PERSONALITY_PROACTIVE_MIN_INTERVAL_HOURS" envDefault:"2"`
	ProactiveMaxIntervalHours float64 `env:"PERSONALITY_PROACTIVE_MAX_INTERVAL_HOURS" envDefault:"8"`
	SleepStart                string  `env:"PERSONALITY_SLEEP_START" envDefault:"23:30"`
	SleepEnd                  string  `env:"PERSONALITY_SLEEP_END" envDefault:"07:30"`

	// Debounce
	DebounceMs int64 `env:"DEBOUNCE_MS" envDefault:"8000"`

	// Memory
	MemoryUpdateThreshold int `env:"MEMORY_UPDATE_THRESHOLD" envDefault:"10"`

	// Topics file for proactive messages (optional; built-in set when empty)
	TopicsPath string `env:"PROACTIVE_TOPICS_PATH"`
}

// Load reads .env (best effort) and parses the environment. It fails when a
// required secret is missing so the process refuses to start half-configured.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}

	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("config: LLM_API_KEY is not set")
	}
	switch cfg.LLMProvider {
	case "anthropic", "openai":
	default:
		return nil, fmt.Errorf("config: unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}
	if cfg.ProactiveMaxIntervalHours <= cfg.ProactiveMinIntervalHours {
		return nil, fmt.Errorf("config: proactive max interval must exceed min interval")
	}
	if cfg.BaseDelayMs < 0 || cfg.BaseDelayMs >= cfg.MaxDelayMs {
		return nil, fmt.Errorf("config: base delay must be non-negative and below the max delay")
	}

	return cfg, nil
}
