package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("SESSION_TTL_SECONDS", "")
	t.Setenv("MASK_NOT_FOUND", "")

	cfg := Load()
	if cfg.Addr != ":3000" {
		t.Fatalf("Addr = %q, want :3000", cfg.Addr)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("SessionTTL = %v, want 24h", cfg.SessionTTL)
	}
	if !cfg.MaskNotFound {
		t.Fatal("expected MaskNotFound to default to true")
	}
	if cfg.MaxFileSize != 5242880 {
		t.Fatalf("MaxFileSize = %d, want 5242880", cfg.MaxFileSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9999")
	t.Setenv("SESSION_TTL_SECONDS", "60")
	t.Setenv("MASK_NOT_FOUND", "false")
	t.Setenv("MAX_FILE_SIZE", "not-a-number")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	if cfg.Addr != ":9999" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.SessionTTL != time.Minute {
		t.Fatalf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.MaskNotFound {
		t.Fatal("expected MaskNotFound=false")
	}
	if cfg.MaxFileSize != 5242880 {
		t.Fatalf("invalid MAX_FILE_SIZE should fall back, got %d", cfg.MaxFileSize)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.LogLevel)
	}
}

func TestGoogleEnabled(t *testing.T) {
	cfg := Config{GoogleClientID: "id"}
	if cfg.GoogleEnabled() {
		t.Fatal("expected google disabled without secret")
	}
	cfg.GoogleClientSecret = "secret"
	if !cfg.GoogleEnabled() {
		t.Fatal("expected google enabled")
	}
}
