package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "DB_PATH", "GO_ENV", "GROQ_API_KEY", "GROQ_BASE_URL",
		"GROQ_MODEL", "SESSION_IDLE_TTL", "SESSION_SWEEP_INTERVAL", "TRANSCRIPT_DIR",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "3001" {
		t.Errorf("expected default port 3001, got %s", cfg.Port)
	}
	if cfg.Environment != "development" {
		t.Errorf("expected development environment, got %s", cfg.Environment)
	}
	if cfg.GroqModel != "llama-3.3-70b-versatile" {
		t.Errorf("unexpected default model: %s", cfg.GroqModel)
	}
	if cfg.SessionIdleTTL != time.Hour {
		t.Errorf("expected 1h idle ttl, got %s", cfg.SessionIdleTTL)
	}
	if cfg.SessionSweep != 10*time.Minute {
		t.Errorf("expected 10m sweep interval, got %s", cfg.SessionSweep)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("SESSION_IDLE_TTL", "120")

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Port)
	}
	if cfg.GroqAPIKey != "gsk-test" {
		t.Errorf("expected api key from environment, got %q", cfg.GroqAPIKey)
	}
	if cfg.SessionIdleTTL != 2*time.Minute {
		t.Errorf("expected 2m idle ttl, got %s", cfg.SessionIdleTTL)
	}
}

func TestDurationRejectsGarbage(t *testing.T) {
	t.Setenv("SESSION_IDLE_TTL", "soon")
	t.Setenv("SESSION_SWEEP_INTERVAL", "-5")

	cfg := Load()

	if cfg.SessionIdleTTL != time.Hour {
		t.Errorf("expected default on unparseable value, got %s", cfg.SessionIdleTTL)
	}
	if cfg.SessionSweep != 10*time.Minute {
		t.Errorf("expected default on non-positive value, got %s", cfg.SessionSweep)
	}
}
