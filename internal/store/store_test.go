package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ashureev/postlens/internal/domain"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "db", "postlens.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleSnapshot(id, userID string, ts time.Time) *domain.Snapshot {
	wib := time.FixedZone("WIB", 7*3600)
	messages := []domain.Message{
		{Role: domain.RoleUser, Content: "data prabowo 18 agustus 2025 yang paling banyak engagement"},
		{Role: domain.RoleAssistant, Content: "Berikut **ringkasan** datanya."},
	}
	return &domain.Snapshot{
		ID:        id,
		UserID:    userID,
		Timestamp: ts,
		Summary:   domain.SnapshotSummary(messages),
		Messages:  messages,
		Matched: []domain.Post{{
			Row:         4,
			Account:     "alpha",
			Content:     "Prabowo meresmikan jembatan",
			PublishedAt: time.Date(2025, 8, 18, 9, 30, 0, 0, wib),
			Sentiment:   domain.SentimentPositive,
			Followers:   1200,
			Engagements: 88,
			Views:       1500,
			Location:    "Jakarta",
		}},
		LastSearch: &domain.Topic{StrictGroups: [][]string{{"Prabowo"}, {"Presiden"}}},
		LastDates:  []domain.Date{domain.MustDate("2025-08-18")},
	}
}

func histories(t *testing.T) map[string]HistoryStore {
	t.Helper()
	file, err := NewFileHistory(filepath.Join(t.TempDir(), "history"), nil)
	if err != nil {
		t.Fatalf("NewFileHistory: %v", err)
	}
	return map[string]HistoryStore{
		"sqlite": newTestSQLite(t),
		"file":   file,
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	t.Parallel()

	for name, h := range histories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ts := time.UnixMilli(time.Date(2025, 8, 18, 10, 0, 0, 0, time.UTC).UnixMilli())
			snap := sampleSnapshot("chat-1", "user-1", ts)
			if err := h.SaveSnapshot(ctx, snap); err != nil {
				t.Fatalf("SaveSnapshot: %v", err)
			}

			got, err := h.GetSnapshot(ctx, "user-1", "chat-1")
			if err != nil {
				t.Fatalf("GetSnapshot: %v", err)
			}
			if diff := cmp.Diff(snap, got); diff != "" {
				t.Fatalf("snapshot round trip mismatch (-want +got):\n%s", diff)
			}
			if snap.Summary != "data prabowo 18 agustus 2025 yang paling..." {
				t.Fatalf("summary = %q", snap.Summary)
			}
		})
	}
}

func TestHistoryListDeleteAndScope(t *testing.T) {
	t.Parallel()

	for name, h := range histories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.UnixMilli(time.Date(2025, 8, 18, 10, 0, 0, 0, time.UTC).UnixMilli())
			for i, id := range []string{"old", "new", "mid"} {
				offset := map[string]time.Duration{"old": 0, "new": 2 * time.Hour, "mid": time.Hour}[id]
				if err := h.SaveSnapshot(ctx, sampleSnapshot(id, "user-1", base.Add(offset))); err != nil {
					t.Fatalf("save %d: %v", i, err)
				}
			}
			if err := h.SaveSnapshot(ctx, sampleSnapshot("other", "user-2", base)); err != nil {
				t.Fatal(err)
			}

			metas, err := h.ListSnapshots(ctx, "user-1")
			if err != nil {
				t.Fatalf("ListSnapshots: %v", err)
			}
			var ids []string
			for _, m := range metas {
				ids = append(ids, m.ID)
				if m.MessageCount != 2 {
					t.Fatalf("message count = %d", m.MessageCount)
				}
			}
			if diff := cmp.Diff([]string{"new", "mid", "old"}, ids); diff != "" {
				t.Fatalf("list order mismatch (-want +got):\n%s", diff)
			}

			if _, err := h.GetSnapshot(ctx, "user-1", "other"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("cross-user load should be ErrNotFound, got %v", err)
			}

			ok, err := h.DeleteSnapshot(ctx, "user-1", "mid")
			if err != nil || !ok {
				t.Fatalf("delete: ok=%v err=%v", ok, err)
			}
			ok, err = h.DeleteSnapshot(ctx, "user-1", "mid")
			if err != nil || ok {
				t.Fatalf("second delete: ok=%v err=%v", ok, err)
			}
			if _, err := h.GetSnapshot(ctx, "user-1", "mid"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			empty, err := h.ListSnapshots(ctx, "nobody")
			if err != nil || len(empty) != 0 {
				t.Fatalf("empty list: %v %v", empty, err)
			}
		})
	}
}

func TestFileHistorySkipsCorruptFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	h, err := NewFileHistory(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := h.SaveSnapshot(ctx, sampleSnapshot("good", "user-1", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "user-1", "bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	metas, err := h.ListSnapshots(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(metas) != 1 || metas[0].ID != "good" {
		t.Fatalf("unexpected list: %+v", metas)
	}
}

func TestFileHistoryRejectsUnsafeIDs(t *testing.T) {
	t.Parallel()

	h, err := NewFileHistory(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.GetSnapshot(context.Background(), "../etc", "x"); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if err := h.SaveSnapshot(context.Background(), &domain.Snapshot{ID: "a/b", UserID: "u"}); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestSessionStateRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	if _, err := s.GetSessionState(ctx, "u1", "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	topic := domain.Topic{StrictGroups: [][]string{{"prabowo"}}, FallbackKeywords: []string{"Prabowo"}}
	state := &domain.SessionState{
		SessionID:       "s1",
		UserID:          "u1",
		HistoryID:       "chat-1",
		Messages:        []domain.Message{{Role: domain.RoleUser, Content: "halo"}},
		LastSearch:      &topic,
		LastDates:       []domain.Date{domain.MustDate("2025-08-18")},
		AwaitingDate:    true,
		SearchPerformed: false,
	}
	if err := s.SaveSessionState(ctx, state); err != nil {
		t.Fatalf("SaveSessionState: %v", err)
	}
	state.AwaitingDate = false
	if err := s.SaveSessionState(ctx, state); err != nil {
		t.Fatalf("SaveSessionState update: %v", err)
	}

	got, err := s.GetSessionState(ctx, "u1", "s1")
	if err != nil {
		t.Fatalf("GetSessionState: %v", err)
	}
	if got.AwaitingDate || got.HistoryID != "chat-1" || len(got.Messages) != 1 {
		t.Fatalf("unexpected state: %+v", got)
	}
	if diff := cmp.Diff(&topic, got.LastSearch); diff != "" {
		t.Fatalf("topic mismatch (-want +got):\n%s", diff)
	}

	if n, err := s.PurgeSessionStates(ctx, time.Hour); err != nil || n != 0 {
		t.Fatalf("purge fresh: n=%d err=%v", n, err)
	}
	if n, err := s.PurgeSessionStates(ctx, -time.Hour); err != nil || n != 1 {
		t.Fatalf("purge all: n=%d err=%v", n, err)
	}

	if err := s.DeleteSessionState(ctx, "u1", "s1"); err != nil {
		t.Fatalf("DeleteSessionState: %v", err)
	}
}

func TestUserLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestSQLite(t)
	ctx := context.Background()

	u, err := s.GetUser(ctx, "missing")
	if err != nil || u != nil {
		t.Fatalf("missing user: %v %v", u, err)
	}

	now := time.Unix(time.Now().Unix(), 0)
	if err := s.UpsertUser(ctx, &domain.User{UserID: "u1", Username: "anon", LastSeenAt: now, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	later := now.Add(time.Minute)
	if err := s.UpdateLastSeen(ctx, "u1", later); err != nil {
		t.Fatalf("UpdateLastSeen: %v", err)
	}
	u, err = s.GetUser(ctx, "u1")
	if err != nil || u == nil {
		t.Fatalf("GetUser: %v %v", u, err)
	}
	if !u.LastSeenAt.Equal(later) {
		t.Fatalf("last seen = %v, want %v", u.LastSeenAt, later)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
