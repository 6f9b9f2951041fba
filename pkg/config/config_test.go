package config

import "testing"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("TELEGRAM_TOKEN", "tg-test")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BotName != "kimy" {
		t.Errorf("expected default bot name, got %q", cfg.BotName)
	}
	if cfg.LLMProvider != "anthropic" {
		t.Errorf("expected default provider, got %q", cfg.LLMProvider)
	}
	if cfg.DebounceMs != 8000 {
		t.Errorf("expected default debounce 8000, got %d", cfg.DebounceMs)
	}
	if cfg.BaseDelayMs != 2000 {
		t.Errorf("expected default base delay 2000, got %d", cfg.BaseDelayMs)
	}
	if cfg.MaxDelayMs != 600000 {
		t.Errorf("expected default max delay 600000, got %d", cfg.MaxDelayMs)
	}
	if cfg.SkipProbability != 0.12 {
		t.Errorf("expected default skip probability 0.12, got %f", cfg.SkipProbability)
	}
	if cfg.SleepStart != "23:30" || cfg.SleepEnd != "07:30" {
		t.Errorf("unexpected sleep window %s-%s", cfg.SleepStart, cfg.SleepEnd)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	if _, err := Load(); err == nil {
		t.Error("expected an error without LLM_API_KEY")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	setRequired(t)
	t.Setenv("LLM_PROVIDER", "parrot")
	if _, err := Load(); err == nil {
		t.Error("expected an error for an unknown provider")
	}
}

func TestLoadRejectsBaseDelayAboveMax(t *testing.T) {
	setRequired(t)
	t.Setenv("PERSONALITY_BASE_DELAY_MS", "700000")
	t.Setenv("PERSONALITY_MAX_DELAY_MS", "600000")
	if _, err := Load(); err == nil {
		t.Error("expected an error when the base delay reaches the max delay")
	}
}

func TestLoadRejectsInvertedProactiveWindow(t *testing.T) {
	setRequired(t)
	t.Setenv("PERSONALITY_PROACTIVE_MIN_INTERVAL_HOURS", "8")
	t.Setenv("PERSONALITY_PROACTIVE_MAX_INTERVAL_HOURS", "2")
	if _, err := Load(); err == nil {
		t.Error("expected an error when max interval is below min")
	}
}
