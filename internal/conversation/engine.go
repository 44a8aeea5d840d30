package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/postlens/internal/classifier"
	"github.com/ashureev/postlens/internal/domain"
)

// PostSource provides the read-only working dataset.
type PostSource interface {
	Posts() []domain.Post
}

// Engine resolves a prompt against a session: classify, then step.
type Engine struct {
	classifier classifier.Classifier
	posts      PostSource
	logger     *slog.Logger
	now        func() time.Time
}

// NewEngine creates an engine.
func NewEngine(c classifier.Classifier, posts PostSource, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{classifier: c, posts: posts, logger: logger, now: time.Now}
}

// Resolution is the result of resolving one prompt.
type Resolution struct {
	State   domain.SessionState
	Outcome Outcome
	// Classified is the plan as returned by the classifier or the fallback.
	Classified domain.SearchPlan
	// ClassifierErr is set when the fallback plan was used.
	ClassifierErr error
}

// Resolve appends prompt to the message log, classifies it with the previous
// user prompt and the latest assistant reply as context, and applies the plan.
// Classification failures degrade to the raw-prompt fallback plan.
func (e *Engine) Resolve(ctx context.Context, state domain.SessionState, prompt string) Resolution {
	// Before the append, the latest user message is the previous prompt.
	previous, _ := state.LastUserPrompts()
	in := classifier.Input{
		Current:   prompt,
		Previous:  previous,
		LastReply: state.LastAssistantReply(),
	}

	working := state.Clone()
	working.Messages = append(working.Messages, domain.Message{Role: domain.RoleUser, Content: prompt})
	working.UpdatedAt = e.now()

	res := Resolution{}
	plan, err := e.classifier.Classify(ctx, in)
	if err != nil {
		classifierFailures.Inc()
		e.logger.Warn("Classifier failed, using raw prompt plan",
			"session_id", state.SessionID,
			"error", err)
		plan = classifier.Fallback(prompt)
		res.ClassifierErr = err
	}
	res.Classified = plan

	start := time.Now()
	next, outcome := Step(working, plan, e.posts.Posts())
	if outcome.Match != nil {
		matchDuration.Observe(time.Since(start).Seconds())
		matchResults.Observe(float64(len(outcome.Match.Posts)))
	}
	if outcome.Reclassified {
		reclassifiedTotal.Inc()
	}
	turnsTotal.WithLabelValues(string(outcome.Plan.Type), string(outcome.Action)).Inc()

	e.logger.Debug("Turn resolved",
		"session_id", state.SessionID,
		"turn_type", outcome.Plan.Type,
		"action", outcome.Action,
		"reclassified", outcome.Reclassified,
		"dates", domain.DateStrings(outcome.Plan.Dates),
		"matched", len(next.Matched))

	res.State = next
	res.Outcome = outcome
	return res
}
