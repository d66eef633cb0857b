package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ServerPort != "8080" {
		t.Fatalf("port %q", cfg.ServerPort)
	}
	// SSE streams must not be cut off by a write deadline.
	if cfg.ServerWriteTimeout != 0 {
		t.Fatalf("write timeout %v, want 0", cfg.ServerWriteTimeout)
	}
	if cfg.DefaultProvider != "openai" {
		t.Fatalf("provider %q", cfg.DefaultProvider)
	}
	if cfg.UsageRetention != 24*time.Hour {
		t.Fatalf("usage retention %v", cfg.UsageRetention)
	}
	if cfg.SearchTopK != 5 {
		t.Fatalf("top k %d", cfg.SearchTopK)
	}
	if cfg.JWTSecret != "" {
		t.Fatalf("auth enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("DEFAULT_PROVIDER", "anthropic")
	t.Setenv("MAX_TOKENS", "512")
	t.Setenv("USAGE_RETENTION", "30m")
	t.Setenv("TRACING_ENABLED", "true")

	cfg := Load()

	if cfg.ServerPort != "9999" {
		t.Fatalf("port %q", cfg.ServerPort)
	}
	if cfg.DefaultProvider != "anthropic" {
		t.Fatalf("provider %q", cfg.DefaultProvider)
	}
	if cfg.MaxTokens != 512 {
		t.Fatalf("max tokens %d", cfg.MaxTokens)
	}
	if cfg.UsageRetention != 30*time.Minute {
		t.Fatalf("usage retention %v", cfg.UsageRetention)
	}
	if !cfg.TracingEnabled {
		t.Fatalf("tracing not enabled")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("MAX_TOKENS", "a lot")
	t.Setenv("USAGE_RETENTION", "soon")
	t.Setenv("TRACING_ENABLED", "sure")

	cfg := Load()

	if cfg.MaxTokens != 4096 {
		t.Fatalf("max tokens %d, want default", cfg.MaxTokens)
	}
	if cfg.UsageRetention != 24*time.Hour {
		t.Fatalf("usage retention %v, want default", cfg.UsageRetention)
	}
	if cfg.TracingEnabled {
		t.Fatalf("malformed bool enabled tracing")
	}
}
