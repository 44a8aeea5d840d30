// Package classifier turns a user prompt and its conversational context into
// a normalized search plan using a language model.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/postlens/internal/domain"
	"github.com/ashureev/postlens/internal/llm"
)

// Classifier produces a search plan for one turn. Implementations return an
// error rather than a guessed plan; callers decide how to degrade.
type Classifier interface {
	Classify(ctx context.Context, in Input) (domain.SearchPlan, error)
}

// Config configures an LLM-backed classifier.
type Config struct {
	Model   string
	Timeout time.Duration
	Policy  Policy
}

// LLMClassifier asks a chat model for a JSON search plan.
type LLMClassifier struct {
	provider llm.Provider
	cfg      Config
	logger   *slog.Logger
}

// NewLLM creates a classifier on top of provider.
func NewLLM(provider llm.Provider, cfg Config, logger *slog.Logger) *LLMClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Policy.Year == 0 {
		cfg.Policy = DefaultPolicy(time.Now().Year())
	}
	return &LLMClassifier{provider: provider, cfg: cfg, logger: logger}
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, in Input) (domain.SearchPlan, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	stream, err := c.provider.Complete(ctx, llm.Request{
		Model: c.cfg.Model,
		Messages: []llm.Message{
			{Role: domain.RoleSystem, Content: systemPrompt(c.cfg.Policy, in)},
			{Role: domain.RoleUser, Content: userPrompt(in)},
		},
		Temperature: llm.Temperature(0),
		JSONMode:    true,
	})
	if err != nil {
		return domain.SearchPlan{}, fmt.Errorf("classify: %w", err)
	}
	raw, err := llm.Collect(stream)
	if err != nil {
		return domain.SearchPlan{}, fmt.Errorf("classify: read stream: %w", err)
	}
	plan, err := Parse(raw)
	if err != nil {
		c.logger.Debug("unparseable classifier output", "raw", raw)
		return domain.SearchPlan{}, fmt.Errorf("classify: %w", err)
	}
	return plan, nil
}
