package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.LLMProvider != "mock" {
		t.Fatalf("LLMProvider = %q, want mock", cfg.LLMProvider)
	}
	if cfg.FanoutDeadline != 30*time.Second {
		t.Fatalf("FanoutDeadline = %v, want 30s", cfg.FanoutDeadline)
	}
	if cfg.HistoryLimit != 20 {
		t.Fatalf("HistoryLimit = %d, want 20", cfg.HistoryLimit)
	}
}

func TestLoadRejectsShortDeadline(t *testing.T) {
	t.Setenv("FANOUT_DEADLINE", "2s")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() should reject FANOUT_DEADLINE below 5s")
	}
}

func TestLoadRejectsBadInt(t *testing.T) {
	t.Setenv("HISTORY_LIMIT", "many")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() should reject non-integer HISTORY_LIMIT")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("PROVIDER_TIMEOUT", "5s")
	t.Setenv("STREAM_QUEUE_SIZE", "128")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ProviderTimeout != 5*time.Second {
		t.Fatalf("ProviderTimeout = %v, want 5s", cfg.ProviderTimeout)
	}
	if cfg.StreamQueueSize != 128 {
		t.Fatalf("StreamQueueSize = %d, want 128", cfg.StreamQueueSize)
	}
	if !cfg.AllowAnyOrigin {
		t.Fatalf("AllowAnyOrigin = false, want true")
	}
}
