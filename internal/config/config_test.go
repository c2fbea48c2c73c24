package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Port != "8080" {
		t.Errorf("port = %s, want 8080", cfg.App.Port)
	}
	if cfg.Verification.AttemptBudget != 3 {
		t.Errorf("attempt budget = %d, want 3", cfg.Verification.AttemptBudget)
	}
	if cfg.Verification.SessionTTL() != 10*time.Minute {
		t.Errorf("session ttl = %v, want 10m", cfg.Verification.SessionTTL())
	}
	if cfg.Verification.ValidityWindow() != 10*time.Minute {
		t.Errorf("validity window = %v, want 10m", cfg.Verification.ValidityWindow())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9999")
	t.Setenv("VERIFICATION_ATTEMPT_BUDGET", "5")
	t.Setenv("VERIFICATION_SESSION_TTL_MINUTES", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Port != "9999" {
		t.Errorf("port = %s, want 9999", cfg.App.Port)
	}
	if cfg.Verification.AttemptBudget != 5 {
		t.Errorf("attempt budget = %d, want 5", cfg.Verification.AttemptBudget)
	}
	if cfg.Verification.SessionTTL() != 2*time.Minute {
		t.Errorf("session ttl = %v, want 2m", cfg.Verification.SessionTTL())
	}
}

func TestAddr(t *testing.T) {
	app := AppConfig{Host: "127.0.0.1", Port: "3000"}
	if app.Addr() != "127.0.0.1:3000" {
		t.Errorf("Addr = %s", app.Addr())
	}
}
