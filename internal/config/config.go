// internal/config/config.go

// Package config loads the meal companion configuration.
//
// Values come from Default, then an optional YAML file, then environment
// variables. Command-line flags are applied by the caller on top.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"meal-companion/internal/imaging"
	"meal-companion/internal/vision"
)

var ErrMissingAPIKey = errors.New("missing API key for vision provider")

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Session   SessionConfig   `yaml:"session"`
	Storage   StorageConfig   `yaml:"storage"`
	Vision    VisionConfig    `yaml:"vision"`
	Nutrition NutritionConfig `yaml:"nutrition"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

type SessionConfig struct {
	// Backend is memory or sqlite.
	Backend string `yaml:"backend"`
}

type StorageConfig struct {
	DBPath string `yaml:"db_path"`

	// ObjectBackend is file or supabase.
	ObjectBackend string `yaml:"object_backend"`
	ObjectRoot    string `yaml:"object_root"`

	// PublicBaseURL prefixes URLs returned by the file backend.
	PublicBaseURL string `yaml:"public_base_url"`
	SupabaseURL   string `yaml:"supabase_url"`
	SupabaseKey   string `yaml:"supabase_key"`
}

type VisionConfig struct {
	// Provider is gemini, anthropic or gateway.
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	GeminiAPIKey      string        `yaml:"gemini_api_key"`
	AnthropicAPIKey   string        `yaml:"anthropic_api_key"`
	GatewayURL        string        `yaml:"gateway_url"`
	GatewayAPIKey     string        `yaml:"gateway_api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxImageDimension int           `yaml:"max_image_dimension"`
	MaxImagePixels    int           `yaml:"max_image_pixels"`
}

// ImageLimits bounds image decoding for captures and batch analysis.
func (v VisionConfig) ImageLimits() imaging.Limits {
	return imaging.Limits{MaxDim: v.MaxImageDimension, MaxPixels: v.MaxImagePixels}
}

type NutritionConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

var defaultModels = map[string]string{
	vision.ProviderGemini:    "gemini-2.5-flash",
	vision.ProviderAnthropic: "claude-sonnet-4-5",
	vision.ProviderGateway:   "google/gemini-2.5-flash",
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8000, MaxBodyBytes: 16 << 20},
		Log:    LogConfig{Level: "info", Format: "text"},
		Session: SessionConfig{
			Backend: "memory",
		},
		Storage: StorageConfig{
			DBPath:        "/data/meal-companion.db",
			ObjectBackend: "file",
			ObjectRoot:    "/data/objects",
			PublicBaseURL: "http://localhost:8000/objects",
		},
		Vision: VisionConfig{
			Provider:          vision.ProviderGemini,
			Timeout:           60 * time.Second,
			MaxImageDimension: 1024,
			MaxImagePixels:    imaging.DefaultMaxPixels,
		},
		Nutrition: NutritionConfig{
			Concurrency:     4,
			DownloadTimeout: 30 * time.Second,
		},
	}
}

// Load reads path (if non-empty) over the defaults and applies environment
// overrides. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	setString := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&c.Vision.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.Vision.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&c.Storage.SupabaseURL, "SUPABASE_URL")
	setString(&c.Storage.SupabaseKey, "SUPABASE_KEY")

	setString(&c.Server.Host, "MEAL_COMPANION_HOST")
	if v := getenv("MEAL_COMPANION_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	setString(&c.Storage.DBPath, "MEAL_COMPANION_DB_PATH")
	setString(&c.Storage.ObjectBackend, "MEAL_COMPANION_OBJECT_BACKEND")
	setString(&c.Session.Backend, "MEAL_COMPANION_SESSION_BACKEND")
	setString(&c.Vision.Provider, "MEAL_COMPANION_VISION_PROVIDER")
	setString(&c.Vision.Model, "MEAL_COMPANION_VISION_MODEL")
	setString(&c.Vision.GatewayURL, "MEAL_COMPANION_GATEWAY_URL")
	setString(&c.Vision.GatewayAPIKey, "MEAL_COMPANION_GATEWAY_API_KEY")
	setString(&c.Log.Level, "MEAL_COMPANION_LOG_LEVEL")
}

// Validate checks the configuration and fills in the provider's default
// model when none is set.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	switch c.Session.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.DBPath == "" {
			errs = append(errs, errors.New("storage.db_path is required for the sqlite session backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("session.backend must be memory or sqlite, got %q", c.Session.Backend))
	}

	if c.Storage.DBPath == "" {
		errs = append(errs, errors.New("storage.db_path is required"))
	}
	switch c.Storage.ObjectBackend {
	case "file":
		if c.Storage.ObjectRoot == "" {
			errs = append(errs, errors.New("storage.object_root is required for the file object backend"))
		}
	case "supabase":
		if c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "" {
			errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_KEY are required for the supabase object backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.object_backend must be file or supabase, got %q", c.Storage.ObjectBackend))
	}

	switch c.Vision.Provider {
	case vision.ProviderGemini:
		if c.Vision.GeminiAPIKey == "" {
			errs = append(errs, fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey))
		}
	case vision.ProviderAnthropic:
		if c.Vision.AnthropicAPIKey == "" {
			errs = append(errs, fmt.Errorf("%w: set ANTHROPIC_API_KEY", ErrMissingAPIKey))
		}
	case vision.ProviderGateway:
		if c.Vision.GatewayURL == "" {
			errs = append(errs, errors.New("vision.gateway_url is required for the gateway provider"))
		}
		if c.Vision.GatewayAPIKey == "" {
			errs = append(errs, fmt.Errorf("%w: set MEAL_COMPANION_GATEWAY_API_KEY", ErrMissingAPIKey))
		}
	default:
		errs = append(errs, fmt.Errorf("vision.provider must be gemini, anthropic or gateway, got %q", c.Vision.Provider))
	}
	if c.Vision.Model == "" {
		c.Vision.Model = defaultModels[c.Vision.Provider]
	}
	if c.Vision.MaxImagePixels <= 0 {
		errs = append(errs, errors.New("vision.max_image_pixels must be positive"))
	}
	if c.Vision.MaxImageDimension < 0 {
		errs = append(errs, errors.New("vision.max_image_dimension must not be negative"))
	}
	if c.Nutrition.Concurrency <= 0 {
		errs = append(errs, errors.New("nutrition.concurrency must be positive"))
	}

	return errors.Join(errs...)
}

// ProviderConfig projects the vision settings onto the model factory input.
func (v VisionConfig) ProviderConfig() vision.ProviderConfig {
	return vision.ProviderConfig{
		Provider:        v.Provider,
		Model:           v.Model,
		GeminiAPIKey:    v.GeminiAPIKey,
		AnthropicAPIKey: v.AnthropicAPIKey,
		GatewayURL:      v.GatewayURL,
		GatewayAPIKey:   v.GatewayAPIKey,
	}
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", l.Level)
}

// NewLogger builds the process logger.
func (l LogConfig) NewLogger() *slog.Logger {
	level, _ := l.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
