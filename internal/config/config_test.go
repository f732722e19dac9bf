package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"meal-companion/internal/config"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meal-companion.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	path := writeFile(t, `
server:
  port: 9100
session:
  backend: sqlite
vision:
  provider: anthropic
  anthropic_api_key: from-file
  timeout: 15s
nutrition:
  download_timeout: 5s
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9100 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Session.Backend != "sqlite" {
		t.Errorf("Session.Backend = %q", cfg.Session.Backend)
	}
	if cfg.Vision.Timeout != 15*time.Second || cfg.Nutrition.DownloadTimeout != 5*time.Second {
		t.Errorf("timeouts = %v %v", cfg.Vision.Timeout, cfg.Nutrition.DownloadTimeout)
	}
	if cfg.Nutrition.Concurrency != 4 {
		t.Errorf("Nutrition.Concurrency = %d, want default 4", cfg.Nutrition.Concurrency)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Vision.Model != "claude-sonnet-4-5" {
		t.Errorf("Vision.Model = %q, want provider default", cfg.Vision.Model)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("MEAL_COMPANION_PORT", "9200")
	t.Setenv("MEAL_COMPANION_DB_PATH", "/tmp/x.db")
	t.Setenv("SUPABASE_URL", "https://proj.supabase.co")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Vision.GeminiAPIKey != "env-key" || cfg.Server.Port != 9200 || cfg.Storage.DBPath != "/tmp/x.db" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Storage.SupabaseURL != "https://proj.supabase.co" {
		t.Errorf("SupabaseURL = %q", cfg.Storage.SupabaseURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() error = nil, want read error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*config.Config)
		wantAPIKey bool
	}{
		{"missing gemini key", func(c *config.Config) {}, true},
		{"missing anthropic key", func(c *config.Config) { c.Vision.Provider = "anthropic" }, true},
		{"gateway without url", func(c *config.Config) {
			c.Vision.Provider = "gateway"
			c.Vision.GatewayAPIKey = "k"
		}, false},
		{"unknown provider", func(c *config.Config) {
			c.Vision.Provider = "llava"
		}, false},
		{"bad session backend", func(c *config.Config) {
			c.Vision.GeminiAPIKey = "k"
			c.Session.Backend = "redis"
		}, false},
		{"supabase without credentials", func(c *config.Config) {
			c.Vision.GeminiAPIKey = "k"
			c.Storage.ObjectBackend = "supabase"
		}, false},
		{"bad log level", func(c *config.Config) {
			c.Vision.GeminiAPIKey = "k"
			c.Log.Level = "loud"
		}, false},
		{"bad port", func(c *config.Config) {
			c.Vision.GeminiAPIKey = "k"
			c.Server.Port = 0
		}, false},
		{"zero body limit", func(c *config.Config) {
			c.Vision.GeminiAPIKey = "k"
			c.Server.MaxBodyBytes = 0
		}, false},
		{"zero pixel cap", func(c *config.Config) {
			c.Vision.GeminiAPIKey = "k"
			c.Vision.MaxImagePixels = 0
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			if got := errors.Is(err, config.ErrMissingAPIKey); got != tt.wantAPIKey {
				t.Errorf("errors.Is(ErrMissingAPIKey) = %v, want %v (err = %v)", got, tt.wantAPIKey, err)
			}
		})
	}
}

func TestLogConfig_SlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := config.LogConfig{Level: tt.level}.SlogLevel()
		if err != nil || got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, %v; want %v", tt.level, got, err, tt.want)
		}
	}
}
