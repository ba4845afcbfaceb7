package config

import (
	"time"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Telegram TelegramConfig `yaml:"telegram"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Image    SecurityConfig `yaml:"image"`
	Dedup    DedupConfig    `yaml:"dedup"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

// TelegramConfig holds the bot credentials and webhook registration target.
type TelegramConfig struct {
	Token      string        `yaml:"token"`
	WebhookURL string        `yaml:"webhook_url"`
	APIBaseURL string        `yaml:"api_base_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// AnalyzerConfig selects the vision backend once at startup.
type AnalyzerConfig struct {
	Backend string        `yaml:"backend"`
	Timeout time.Duration `yaml:"timeout"`
	OpenAI  BackendConfig `yaml:"openai"`
	Gemini  BackendConfig `yaml:"gemini"`
}

type BackendConfig struct {
	ModelName   string  `yaml:"model_name"`
	BaseURL     string  `yaml:"url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Selected returns the settings of the configured backend.
func (c AnalyzerConfig) Selected() BackendConfig {
	if c.Backend == BackendGemini {
		return c.Gemini
	}
	return c.OpenAI
}

const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

type SecurityConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size"`
	MaxPixels      int64    `yaml:"max_pixels"`
	MaxWidth       int      `yaml:"max_width"`
	MaxHeight      int      `yaml:"max_height"`
	AllowedFormats []string `yaml:"allowed_formats"`
	EnableDeepScan bool     `yaml:"enable_deep_scan"`
}

// DedupConfig configures the update_id ledger that suppresses redelivered updates.
type DedupConfig struct {
	Enabled bool          `yaml:"enabled"`
	Driver  string        `yaml:"driver"`
	TTL     time.Duration `yaml:"ttl"`
	Cleanup time.Duration `yaml:"cleanup"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	Redis   RedisConfig   `yaml:"redis"`
}

type SQLiteConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}
