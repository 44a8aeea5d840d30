// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	DBPath          string
	GRPCHealthAddr  string // "" disables the gRPC health server
	SessionTTL      time.Duration
	Dataset         DatasetConfig
	History         HistoryConfig
	LLM             LLMConfig
	Composer        ComposerConfig
	RateLimit       RateLimitConfig
	SSE             SSEConfig
	ConversationLog ConversationLogConfig
}

// DatasetConfig locates the post spreadsheet.
type DatasetConfig struct {
	Path     string
	Sheet    string
	Timezone string
}

// HistoryConfig selects where conversation snapshots are kept.
type HistoryConfig struct {
	Backend string // "sqlite" or "file"
	Dir     string
}

// LLMConfig configures the classification and narration model endpoints.
type LLMConfig struct {
	Provider          string
	APIURL            string
	APIKey            string
	Model             string
	ClassifierModel   string
	PolicyFile        string
	ClassifierTimeout time.Duration
	NarrationTimeout  time.Duration
	MaxRetries        int
	Language          string // "id" or "en"
}

// ComposerConfig tunes the narration summary.
type ComposerConfig struct {
	TopN          int
	AccountMetric string
	RateThreshold string // "mean" or "median"
}

// RateLimitConfig bounds chat requests per user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// SSEConfig controls the streaming chat endpoint.
type SSEConfig struct {
	MaxRequestBodySize int64
	KeepaliveInterval  time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}
	model := getEnv("LLM_MODEL", "accounts/fireworks/models/gpt-oss-120b")

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/postlens.db"),
		GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ""),
		SessionTTL:     getEnvDuration("SESSION_TTL", 60*time.Minute),
		Dataset: DatasetConfig{
			Path:     getEnv("DATASET_PATH", "./data/data_full.xlsx"),
			Sheet:    getEnv("DATASET_SHEET", ""),
			Timezone: getEnv("DATASET_TIMEZONE", "Asia/Jakarta"),
		},
		History: HistoryConfig{
			Backend: strings.ToLower(getEnv("HISTORY_BACKEND", "sqlite")),
			Dir:     getEnv("HISTORY_DIR", "./data/chat_history"),
		},
		LLM: LLMConfig{
			Provider:          strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			APIURL:            getEnv("LLM_API_URL", "https://api.fireworks.ai/inference/v1"),
			APIKey:            getEnv("LLM_API_KEY", os.Getenv("FIREWORKS_API_KEY")),
			Model:             model,
			ClassifierModel:   getEnv("CLASSIFIER_MODEL", model),
			PolicyFile:        getEnv("CLASSIFIER_POLICY_FILE", ""),
			ClassifierTimeout: getEnvDuration("CLASSIFIER_TIMEOUT", 30*time.Second),
			NarrationTimeout:  getEnvDuration("NARRATION_TIMEOUT", 120*time.Second),
			MaxRetries:        getEnvInt("LLM_MAX_RETRIES", 2),
			Language:          strings.ToLower(getEnv("RESPONSE_LANGUAGE", "id")),
		},
		Composer: ComposerConfig{
			TopN:          getEnvInt("COMPOSER_TOP_N", 3),
			AccountMetric: strings.ToLower(getEnv("COMPOSER_ACCOUNT_METRIC", "engagements")),
			RateThreshold: strings.ToLower(getEnv("QUADRANT_RATE_THRESHOLD", "mean")),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		SSE: SSEConfig{
			MaxRequestBodySize: int64(getEnvInt("SSE_MAX_REQUEST_BODY", 1<<20)),
			KeepaliveInterval:  getEnvDuration("SSE_KEEPALIVE_INTERVAL", 10*time.Second),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Dataset.Path == "" {
		return fmt.Errorf("DATASET_PATH cannot be empty")
	}
	if _, err := time.LoadLocation(c.Dataset.Timezone); err != nil {
		return fmt.Errorf("DATASET_TIMEZONE %q: %w", c.Dataset.Timezone, err)
	}
	switch c.History.Backend {
	case "sqlite":
	case "file":
		if c.History.Dir == "" {
			return fmt.Errorf("HISTORY_DIR cannot be empty with the file backend")
		}
	default:
		return fmt.Errorf("HISTORY_BACKEND must be sqlite or file, got %q", c.History.Backend)
	}
	switch c.LLM.Provider {
	case "openai", "fireworks", "ollama":
	default:
		return fmt.Errorf("LLM_PROVIDER must be openai or ollama, got %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM_MODEL cannot be empty")
	}
	if c.LLM.Language != "id" && c.LLM.Language != "en" {
		return fmt.Errorf("RESPONSE_LANGUAGE must be id or en, got %q", c.LLM.Language)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("LLM_MAX_RETRIES must be >= 0")
	}
	if c.Composer.TopN <= 0 {
		return fmt.Errorf("COMPOSER_TOP_N must be > 0")
	}
	switch c.Composer.AccountMetric {
	case "followers", "engagements", "views", "likes", "comments", "shares", "esmr":
	default:
		return fmt.Errorf("COMPOSER_ACCOUNT_METRIC %q is not a known metric", c.Composer.AccountMetric)
	}
	if c.Composer.RateThreshold != "mean" && c.Composer.RateThreshold != "median" {
		return fmt.Errorf("QUADRANT_RATE_THRESHOLD must be mean or median, got %q", c.Composer.RateThreshold)
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.SSE.MaxRequestBodySize <= 0 {
		return fmt.Errorf("SSE_MAX_REQUEST_BODY must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// Location returns the dataset timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Dataset.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
