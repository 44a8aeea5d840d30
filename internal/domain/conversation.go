package domain

import (
	"time"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry of the conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Phase is the derived conversation state.
type Phase string

// Conversation phases.
const (
	PhaseIdle         Phase = "idle"
	PhaseHasTopic     Phase = "has_topic"
	PhaseAwaitingDate Phase = "awaiting_date"
)

// SessionState is the full per-session conversational state.
type SessionState struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	HistoryID       string    `json:"history_id,omitempty"`
	Messages        []Message `json:"messages"`
	LastSearch      *Topic    `json:"last_search,omitempty"`
	LastDates       []Date    `json:"last_dates,omitempty"`
	Matched         []Post    `json:"matched,omitempty"`
	AwaitingDate    bool      `json:"awaiting_date"`
	SearchPerformed bool      `json:"search_performed"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Phase derives the conversation phase from the state flags.
func (s *SessionState) Phase() Phase {
	switch {
	case s.AwaitingDate:
		return PhaseAwaitingDate
	case s.LastSearch != nil:
		return PhaseHasTopic
	default:
		return PhaseIdle
	}
}

// Clone returns a copy that shares no mutable slices with s. Posts are values,
// so copying the Matched slice is enough.
func (s *SessionState) Clone() SessionState {
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	out.LastDates = append([]Date(nil), s.LastDates...)
	out.Matched = append([]Post(nil), s.Matched...)
	if s.LastSearch != nil {
		t := s.LastSearch.Clone()
		out.LastSearch = &t
	}
	return out
}

// Reset clears conversational state while keeping identity fields.
func (s *SessionState) Reset(now time.Time) {
	s.HistoryID = ""
	s.Messages = nil
	s.LastSearch = nil
	s.LastDates = nil
	s.Matched = nil
	s.AwaitingDate = false
	s.SearchPerformed = false
	s.UpdatedAt = now
}

// LastUserPrompts returns the most recent and the one before it. Either may be empty.
func (s *SessionState) LastUserPrompts() (current, previous string) {
	found := 0
	for i := len(s.Messages) - 1; i >= 0 && found < 2; i-- {
		if s.Messages[i].Role != RoleUser {
			continue
		}
		if found == 0 {
			current = s.Messages[i].Content
		} else {
			previous = s.Messages[i].Content
		}
		found++
	}
	return current, previous
}

// LastAssistantReply returns the content of the latest assistant message.
func (s *SessionState) LastAssistantReply() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Snapshot is a persisted conversation: the message list, matched dataset and
// search focus at the time of the last save.
type Snapshot struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Timestamp  time.Time `json:"timestamp"`
	Summary    string    `json:"summary"`
	Messages   []Message `json:"messages"`
	Matched    []Post    `json:"matched"`
	LastSearch *Topic    `json:"last_search,omitempty"`
	LastDates  []Date    `json:"last_dates,omitempty"`
}

// SnapshotMeta is the listing view of a snapshot.
type SnapshotMeta struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Summary      string    `json:"summary"`
	MessageCount int       `json:"message_count"`
}

// Meta returns the listing view of the snapshot.
func (s *Snapshot) Meta() SnapshotMeta {
	return SnapshotMeta{
		ID:           s.ID,
		Timestamp:    s.Timestamp,
		Summary:      s.Summary,
		MessageCount: len(s.Messages),
	}
}

// SnapshotSummary derives the listing label: the first user message cut to
// 40 characters and followed by "...", or "Chat Session" when there is none.
func SnapshotSummary(messages []Message) string {
	for _, m := range messages {
		if m.Role != RoleUser {
			continue
		}
		r := []rune(m.Content)
		if len(r) > 40 {
			r = r[:40]
		}
		return string(r) + "..."
	}
	return "Chat Session"
}
