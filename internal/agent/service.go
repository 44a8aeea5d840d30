package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/postlens/internal/composer"
	"github.com/ashureev/postlens/internal/conversation"
	"github.com/ashureev/postlens/internal/domain"
	"github.com/ashureev/postlens/internal/llm"
	"github.com/ashureev/postlens/internal/shared"
	"github.com/ashureev/postlens/internal/store"
)

var (
	// ErrSnapshotNotFound is returned when restoring a snapshot that does not exist.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	errEmptyNarration = errors.New("narration stream was empty")
)

// Service runs chat turns against the session registry.
type Service struct {
	registry *conversation.Registry
	engine   *conversation.Engine
	narrator llm.Provider
	history  store.HistoryStore
	cfg      Config
	log      ConversationLogger
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// ServiceDeps bundles the collaborators of a Service.
type ServiceDeps struct {
	Registry *conversation.Registry
	Engine   *conversation.Engine
	Narrator llm.Provider
	History  store.HistoryStore
	// Columns reports which dataset columns exist; nil means all of them.
	Columns composer.Columns
	Log     ConversationLogger
}

// NewService creates a chat service.
func NewService(deps ServiceDeps, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Log == nil {
		deps.Log = noopConversationLogger{}
	}
	cfg.Composer.Columns = deps.Columns
	return &Service{
		registry: deps.Registry,
		engine:   deps.Engine,
		narrator: deps.Narrator,
		history:  deps.History,
		cfg:      cfg,
		log:      deps.Log,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Chat runs one turn and streams its output: a turn chunk, zero or more
// message chunks, then a done chunk. If the session already has a turn in
// flight the only element is conversation.ErrTurnInProgress. The session
// state is committed even if the consumer stops early.
func (s *Service) Chat(ctx context.Context, req ChatRequest) iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		lease, err := s.registry.Begin(ctx, req.UserID, req.SessionID)
		if err != nil {
			yield(nil, err)
			return
		}
		defer lease.Release()

		s.logEvent(req, "outbound", "chat_user_message", req.Message, nil)

		res := s.engine.Resolve(ctx, lease.State(), req.Message)
		state, outcome := res.State, res.Outcome
		if state.SearchPerformed && state.HistoryID == "" {
			state.HistoryID = s.newID()
		}
		persistCtx := context.WithoutCancel(ctx)
		if err := ctx.Err(); err != nil {
			// The prompt and its resolution are kept; only the reply is lost.
			s.commit(persistCtx, req, lease, state)
			yield(nil, err)
			return
		}

		info := turnInfo(res)
		info.HistoryID = state.HistoryID
		s.logEvent(req, "internal", "chat_turn_resolved", "", map[string]any{
			"classified_type":     res.Classified.Type,
			"turn_type":           info.TurnType,
			"action":              info.Action,
			"reclassified":        info.Reclassified,
			"classifier_fallback": info.ClassifierFallback,
			"dates":               domain.DateStrings(info.Dates),
			"keywords":            info.Keywords,
			"matched":             info.Matched,
		})

		out := &emitter{yield: yield}
		out.emit(&Chunk{Type: ChunkTurn, Turn: info})

		reply := s.respond(ctx, req, state, outcome, out)

		state.Messages = append(state.Messages, domain.Message{Role: domain.RoleAssistant, Content: reply})
		if state.SearchPerformed {
			s.saveSnapshot(persistCtx, &state)
		}
		s.commit(persistCtx, req, lease, state)

		s.logEvent(req, "inbound", "chat_assistant_message", reply, map[string]any{
			"stream_chunks": out.chunks,
			"partial":       out.stopped,
		})
		out.emit(&Chunk{Type: ChunkDone, Content: reply})
	}
}

func (s *Service) commit(ctx context.Context, req ChatRequest, lease *conversation.Lease, state domain.SessionState) {
	if err := lease.Commit(ctx, state); err != nil {
		s.logger.Error("Failed to persist session state",
			"user_id", req.UserID,
			"session_id", req.SessionID,
			"error", err)
	}
}

// emitter forwards chunks until the consumer stops.
type emitter struct {
	yield   func(*Chunk, error) bool
	stopped bool
	chunks  int
}

func (e *emitter) emit(c *Chunk) {
	if e.stopped {
		return
	}
	if c.Type == ChunkMessage {
		e.chunks++
	}
	if !e.yield(c, nil) {
		e.stopped = true
	}
}

func turnInfo(res conversation.Resolution) *TurnInfo {
	o := res.Outcome
	info := &TurnInfo{
		TurnType:           o.Plan.Type,
		Action:             o.Action,
		Reclassified:       o.Reclassified,
		ClassifierFallback: res.ClassifierErr != nil,
		Matched:            len(res.State.Matched),
		Dates:              o.Plan.Dates,
		Keywords:           composer.Keywords(o.Topic),
	}
	if info.Dates == nil {
		info.Dates = []domain.Date{}
	}
	return info
}

// respond produces the assistant reply for the outcome, streaming fragments
// through out, and returns the full text.
func (s *Service) respond(ctx context.Context, req ChatRequest, state domain.SessionState, outcome conversation.Outcome, out *emitter) string {
	catalog := composer.Messages(s.cfg.Language)
	history := state.Messages

	switch outcome.Action {
	case conversation.ActionClarify:
		out.emit(&Chunk{Type: ChunkMessage, Content: catalog.AskForDate})
		return catalog.AskForDate

	case conversation.ActionChatter:
		system := composer.ChatterContext(s.cfg.Language)
		return s.narrate(ctx, req, system, history, llm.Temperature(s.cfg.ChatterTemperature), catalog.ChatterFailed, out)

	default:
		system, err := s.dataContext(req.Message, state, outcome)
		if err != nil {
			narrationFailures.Inc()
			s.logger.Error("Failed to compose narration context",
				"session_id", req.SessionID,
				"error", err)
			out.emit(&Chunk{Type: ChunkMessage, Content: catalog.NarrationFailed})
			return catalog.NarrationFailed
		}
		return s.narrate(ctx, req, system, history, nil, catalog.NarrationFailed, out)
	}
}

func (s *Service) dataContext(prompt string, state domain.SessionState, outcome conversation.Outcome) (string, error) {
	if len(state.Matched) == 0 {
		dates := outcome.Plan.Dates
		if len(dates) == 0 {
			dates = state.LastDates
		}
		return composer.NoDataContext(s.cfg.Language, prompt, composer.NoDataNotice(outcome.Topic, dates))
	}
	summary := composer.Summarize(state.Matched, s.cfg.Composer)
	return composer.DataContext(s.cfg.Language, outcome.Topic, summary)
}

// narrate streams the model reply. Any failure ends the reply with the
// apology; fragments already sent are kept.
func (s *Service) narrate(ctx context.Context, req ChatRequest, system string, history []domain.Message, temperature *float64, apology string, out *emitter) string {
	if s.cfg.NarrationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.NarrationTimeout)
		defer cancel()
	}

	var reply strings.Builder
	err := s.streamNarration(ctx, system, history, temperature, func(fragment string) {
		reply.WriteString(fragment)
		out.emit(&Chunk{Type: ChunkMessage, Content: fragment})
	})
	if err == nil && strings.TrimSpace(reply.String()) == "" {
		err = errEmptyNarration
	}
	if err != nil {
		narrationFailures.Inc()
		s.logger.Error("Narration failed",
			"user_id", req.UserID,
			"session_id", req.SessionID,
			"partial_length", reply.Len(),
			"error", err)
		if reply.Len() > 0 {
			reply.WriteString("\n\n")
			out.emit(&Chunk{Type: ChunkMessage, Content: "\n\n"})
		}
		reply.WriteString(apology)
		out.emit(&Chunk{Type: ChunkMessage, Content: apology})
	}
	return reply.String()
}

func (s *Service) streamNarration(ctx context.Context, system string, history []domain.Message, temperature *float64, onFragment func(string)) error {
	msgs := composer.Conversation(system, history)
	req := llm.Request{
		Messages:    make([]llm.Message, 0, len(msgs)),
		Model:       s.cfg.NarrationModel,
		Temperature: temperature,
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	stream, err := s.narrator.Complete(ctx, req)
	if err != nil {
		return fmt.Errorf("start narration: %w", err)
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			s.logger.Debug("failed to close narration stream", "error", closeErr)
		}
	}()
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive narration: %w", err)
		}
		if chunk.Content != "" {
			onFragment(chunk.Content)
		}
	}
}

func (s *Service) saveSnapshot(ctx context.Context, state *domain.SessionState) {
	if s.history == nil {
		return
	}
	snap := snapshotOf(state, s.now())
	err := shared.RetryOnConflict(ctx, shared.DefaultRetryPolicy, "save snapshot", func() error {
		return s.history.SaveSnapshot(ctx, snap)
	})
	if err != nil {
		s.logger.Error("Failed to save conversation snapshot",
			"user_id", state.UserID,
			"history_id", state.HistoryID,
			"error", err)
	}
}

func snapshotOf(state *domain.SessionState, now time.Time) *domain.Snapshot {
	snap := &domain.Snapshot{
		ID:        state.HistoryID,
		UserID:    state.UserID,
		Timestamp: now,
		Summary:   domain.SnapshotSummary(state.Messages),
		Messages:  append([]domain.Message(nil), state.Messages...),
		Matched:   append([]domain.Post(nil), state.Matched...),
		LastDates: append([]domain.Date(nil), state.LastDates...),
	}
	if state.LastSearch != nil {
		t := state.LastSearch.Clone()
		snap.LastSearch = &t
	}
	return snap
}

// State returns the current state of a session.
func (s *Service) State(ctx context.Context, userID, sessionID string) (domain.SessionState, error) {
	return s.registry.Get(ctx, userID, sessionID)
}

// Reset clears a session's conversation. The saved snapshot is kept.
func (s *Service) Reset(ctx context.Context, userID, sessionID string) (domain.SessionState, error) {
	return s.registry.Update(ctx, userID, sessionID, func(st *domain.SessionState) error {
		st.Reset(s.now())
		return nil
	})
}

// Restore replaces the session's conversation with a saved snapshot. Later
// turns keep saving to the same snapshot id.
func (s *Service) Restore(ctx context.Context, userID, sessionID, snapshotID string) (domain.SessionState, error) {
	if s.history == nil {
		return domain.SessionState{}, ErrSnapshotNotFound
	}
	snap, err := s.history.GetSnapshot(ctx, userID, snapshotID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.SessionState{}, ErrSnapshotNotFound
	}
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("load snapshot: %w", err)
	}
	return s.registry.Update(ctx, userID, sessionID, func(st *domain.SessionState) error {
		st.Reset(s.now())
		st.HistoryID = snap.ID
		st.Messages = append([]domain.Message(nil), snap.Messages...)
		st.Matched = append([]domain.Post(nil), snap.Matched...)
		st.LastDates = append([]domain.Date(nil), snap.LastDates...)
		if snap.LastSearch != nil {
			t := snap.LastSearch.Clone()
			st.LastSearch = &t
		}
		st.SearchPerformed = len(st.Matched) > 0
		return nil
	})
}

// Close releases resources.
func (s *Service) Close() {
	if err := s.log.Close(); err != nil {
		s.logger.Warn("failed to close conversation logger", "error", err)
	}
}

func (s *Service) logEvent(req ChatRequest, direction, eventType, content string, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["request_id"] = req.RequestID
	s.log.Log(ConversationLogEvent{
		Timestamp:  s.now().UTC().Format(time.RFC3339Nano),
		UserID:     req.UserID,
		SessionID:  req.SessionID,
		Channel:    req.Channel,
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta:       meta,
	})
}
