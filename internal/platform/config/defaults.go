package config

import "time"

// DefaultConfig returns the configuration used when no file or environment overrides exist.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 5000,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Telegram: TelegramConfig{
			Timeout: 30 * time.Second,
		},
		Analyzer: AnalyzerConfig{
			Backend: BackendOpenAI,
			Timeout: 60 * time.Second,
			OpenAI: BackendConfig{
				ModelName: "gpt-4o",
				MaxTokens: 1000,
			},
			Gemini: BackendConfig{
				ModelName: "gemini-2.5-flash",
			},
		},
		Image: SecurityConfig{
			MaxFileSize:    20 * 1024 * 1024,
			MaxPixels:      40000000,
			MaxWidth:       10000,
			MaxHeight:      10000,
			AllowedFormats: []string{"jpeg", "jpg", "png", "webp", "gif"},
			EnableDeepScan: true,
		},
		Dedup: DedupConfig{
			Enabled: true,
			Driver:  "memory",
			TTL:     24 * time.Hour,
			Cleanup: 10 * time.Minute,
			SQLite: SQLiteConfig{
				DSN: "data/plant-doctor.db",
			},
			Redis: RedisConfig{
				Prefix: "plant-doctor:update:",
			},
		},
	}
}
