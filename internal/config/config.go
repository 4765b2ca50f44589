package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the Meera chat service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	BrainMode       string
	NebiusAPIKey    string
	NebiusBaseURL   string
	NebiusModelName string
	BrainTimeout    time.Duration

	TracingAPIKey string

	Mem0APIKey    string
	Mem0BaseURL   string
	MemoryTopK    int
	MemoryTimeout time.Duration

	DatabaseURL   string
	ChatStoreDir  string
	HistoryWindow int

	TTSMode    string
	TTSURL     string
	TTSSpeaker string
	TTSTimeout time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "meera"),
		AllowAnyOrigin:   false,
		BrainMode:        envOrDefault("BRAIN_MODE", "auto"),
		NebiusAPIKey:     trimmedEnv("NEBIUS_API_KEY"),
		NebiusBaseURL:    envOrDefault("NEBIUS_BASE_URL", "https://api.studio.nebius.com/v1"),
		// Default to the emotional-support LoRA the service was tuned for.
		NebiusModelName: envOrDefault("NEBIUS_MODEL_NAME", "meta-llama/Llama-3.2-3B-Instruct-LoRa:emo-Pfnh"),
		TracingAPIKey:   trimmedEnv("LANGCHAIN_API_KEY"),
		Mem0APIKey:      trimmedEnv("MEM0_API_KEY"),
		Mem0BaseURL:     envOrDefault("MEM0_BASE_URL", "https://api.mem0.ai"),
		DatabaseURL:     trimmedEnv("DATABASE_URL"),
		ChatStoreDir:    envOrDefault("CHAT_STORE_DIR", ".data/chats"),
		TTSMode:         envOrDefault("TTS_MODE", "auto"),
		TTSURL:          trimmedEnv("TTS_URL"),
		TTSSpeaker:      envOrDefault("TTS_SPEAKER", "kavya"),
		ShutdownTimeout: 15 * time.Second,
		BrainTimeout:    60 * time.Second,
		MemoryTopK:      3,
		MemoryTimeout:   5 * time.Second,
		HistoryWindow:   0,
		TTSTimeout:      30 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.BrainTimeout, err = durationFromEnv("BRAIN_TIMEOUT", cfg.BrainTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryTimeout, err = durationFromEnv("MEMORY_TIMEOUT", cfg.MemoryTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSTimeout, err = durationFromEnv("TTS_TIMEOUT", cfg.TTSTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryTopK, err = intFromEnv("MEMORY_TOP_K", cfg.MemoryTopK)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryWindow, err = intFromEnv("CHAT_HISTORY_WINDOW", cfg.HistoryWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.BrainTimeout <= 0 {
		return Config{}, fmt.Errorf("BRAIN_TIMEOUT must be positive")
	}
	if cfg.MemoryTimeout <= 0 {
		return Config{}, fmt.Errorf("MEMORY_TIMEOUT must be positive")
	}
	if cfg.MemoryTopK <= 0 {
		return Config{}, fmt.Errorf("MEMORY_TOP_K must be positive")
	}
	if cfg.HistoryWindow < 0 {
		return Config{}, fmt.Errorf("CHAT_HISTORY_WINDOW must be >= 0")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
