package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is read when no explicit path or PLANT_DOCTOR_CONFIG is given.
	DefaultPath = ".config.yaml"
	pathEnv     = "PLANT_DOCTOR_CONFIG"
)

// Loader layers defaults, an optional YAML file and environment variables.
type Loader struct {
	useDotEnv bool
	path      string
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader that reads .env, the YAML file and the process environment.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		lookupEnv: os.LookupEnv,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the YAML file location.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnv overrides environment lookup (useful for tests).
func (l *Loader) WithEnv(lookup func(string) (string, bool)) *Loader {
	if lookup != nil {
		l.lookupEnv = lookup
	}
	return l
}

// Result captures the loaded configuration and where it came from.
type Result struct {
	Config       *Config
	Path         string
	DotEnvLoaded bool
}

// Load builds the effective configuration and validates it.
func (l *Loader) Load() (*Result, error) {
	result := &Result{}
	if l.useDotEnv {
		result.DotEnvLoaded = godotenv.Load() == nil
	}

	cfg := DefaultConfig()

	path := l.path
	if path == "" {
		if p, ok := l.lookupEnv(pathEnv); ok && p != "" {
			path = p
		} else {
			path = DefaultPath
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		result.Path = path
	case errors.Is(err, os.ErrNotExist) && l.path == "":
		result.Path = "defaults"
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	result.Config = cfg
	return result, nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := l.lookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("TELEGRAM_BOT_TOKEN", &cfg.Telegram.Token)
	str("WEBHOOK_URL", &cfg.Telegram.WebhookURL)
	str("OPENAI_API_KEY", &cfg.Analyzer.OpenAI.APIKey)
	str("GEMINI_API_KEY", &cfg.Analyzer.Gemini.APIKey)
	str("ANALYZER_BACKEND", &cfg.Analyzer.Backend)
	str("LOG_LEVEL", &cfg.Log.Level)

	if v, ok := l.lookupEnv("PORT"); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}

	cfg.Analyzer.Backend = strings.ToLower(strings.TrimSpace(cfg.Analyzer.Backend))
	return nil
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram bot token is required (TELEGRAM_BOT_TOKEN)")
	}

	switch cfg.Analyzer.Backend {
	case BackendOpenAI:
		if cfg.Analyzer.OpenAI.APIKey == "" {
			return fmt.Errorf("openai api key is required (OPENAI_API_KEY)")
		}
	case BackendGemini:
		if cfg.Analyzer.Gemini.APIKey == "" {
			return fmt.Errorf("gemini api key is required (GEMINI_API_KEY)")
		}
	default:
		return fmt.Errorf("unsupported analyzer backend: %q", cfg.Analyzer.Backend)
	}

	if cfg.Analyzer.Timeout <= 0 {
		return fmt.Errorf("analyzer timeout must be positive")
	}
	return nil
}
