package llm

import (
	"fmt"
	"strings"
	"time"
)

// Config selects and configures a provider.
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	APIURL     string
	Timeout    time.Duration
	MaxRetries int
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai", "fireworks":
		return NewOpenAIProvider(cfg), nil
	case "ollama":
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
