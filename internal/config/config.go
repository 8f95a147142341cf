package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the persona panel service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	LLMProvider      string
	ProviderTimeout  time.Duration
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string

	FanoutDeadline time.Duration
	HistoryLimit   int
	RetryMax       int
	RetryBase      time.Duration
	RetryCap       time.Duration

	StreamQueueSize int

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "synthpanel"),
		AllowAnyOrigin:   false,
		LLMProvider:      envOrDefault("LLM_PROVIDER", "mock"),
		OpenAIAPIKey:     envTrimmed("OPENAI_API_KEY"),
		OpenAIBaseURL:    envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:      envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey:  envTrimmed("ANTHROPIC_API_KEY"),
		AnthropicBaseURL: envOrDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		AnthropicModel:   envOrDefault("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		DatabaseURL:      envTrimmed("DATABASE_URL"),
		RedisAddr:        envTrimmed("REDIS_ADDR"),
		RedisPassword:    envTrimmed("REDIS_PASSWORD"),
		RedisDB:          0,
		ShutdownTimeout:  15 * time.Second,
		ProviderTimeout:  20 * time.Second,
		FanoutDeadline:   30 * time.Second,
		HistoryLimit:     20,
		RetryMax:         2,
		RetryBase:        250 * time.Millisecond,
		RetryCap:         2 * time.Second,
		StreamQueueSize:  64,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ProviderTimeout, err = durationFromEnv("PROVIDER_TIMEOUT", cfg.ProviderTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.FanoutDeadline, err = durationFromEnv("FANOUT_DEADLINE", cfg.FanoutDeadline)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryLimit, err = intFromEnv("HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryMax, err = intFromEnv("PROVIDER_RETRY_MAX", cfg.RetryMax)
	if err != nil {
		return Config{}, err
	}
	cfg.StreamQueueSize, err = intFromEnv("STREAM_QUEUE_SIZE", cfg.StreamQueueSize)
	if err != nil {
		return Config{}, err
	}
	cfg.RedisDB, err = intFromEnv("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.FanoutDeadline < 5*time.Second {
		return Config{}, fmt.Errorf("FANOUT_DEADLINE must be at least 5s")
	}
	if cfg.ProviderTimeout <= 0 {
		return Config{}, fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	if cfg.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("HISTORY_LIMIT must be positive")
	}
	if cfg.RetryMax < 0 {
		return Config{}, fmt.Errorf("PROVIDER_RETRY_MAX must be >= 0")
	}
	if cfg.StreamQueueSize <= 0 {
		return Config{}, fmt.Errorf("STREAM_QUEUE_SIZE must be positive")
	}
	if cfg.RedisDB < 0 {
		return Config{}, fmt.Errorf("REDIS_DB must be >= 0")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
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
	v := envTrimmed(key)
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
	v := strings.ToLower(envTrimmed(key))
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
