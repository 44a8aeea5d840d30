package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/postlens/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes JSON blob writes to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_states (
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		state_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_session_states_updated ON session_states(updated_at);

	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		summary TEXT NOT NULL,
		message_count INTEGER NOT NULL,
		saved_at INTEGER NOT NULL,
		messages_json TEXT NOT NULL,
		matched_json TEXT NOT NULL,
		search_json TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_user ON snapshots(user_id, saved_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username,
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// GetSessionState retrieves the live state of one chat session.
func (s *SQLiteStore) GetSessionState(ctx context.Context, userID, sessionID string) (*domain.SessionState, error) {
	query := `SELECT state_json FROM session_states WHERE user_id = ? AND session_id = ?`

	var stateJSON string
	err := s.db.QueryRowContext(ctx, query, userID, sessionID).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session state: %w", err)
	}

	var state domain.SessionState
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	state.UserID = userID
	state.SessionID = sessionID
	return &state, nil
}

// SaveSessionState creates or replaces the live state of a chat session.
func (s *SQLiteStore) SaveSessionState(ctx context.Context, state *domain.SessionState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
		INSERT INTO session_states (user_id, session_id, state_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, session_id) DO UPDATE SET
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`

	createdAt := state.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, query,
		state.UserID, state.SessionID, string(payload),
		createdAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert session state: %w", err)
	}
	return nil
}

// DeleteSessionState removes a chat session's live state.
func (s *SQLiteStore) DeleteSessionState(ctx context.Context, userID, sessionID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `DELETE FROM session_states WHERE user_id = ? AND session_id = ?`
	if _, err := s.db.ExecContext(ctx, query, userID, sessionID); err != nil {
		return fmt.Errorf("delete session state: %w", err)
	}
	return nil
}

// PurgeSessionStates removes states older than olderThan.
func (s *SQLiteStore) PurgeSessionStates(ctx context.Context, olderThan time.Duration) (int64, error) {
	threshold := time.Now().Add(-olderThan).Unix()
	query := `DELETE FROM session_states WHERE updated_at < ?`
	result, err := s.db.ExecContext(ctx, query, threshold)
	if err != nil {
		return 0, fmt.Errorf("purge session states: %w", err)
	}
	return result.RowsAffected()
}

// SaveSnapshot creates or replaces a snapshot.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	messagesJSON, err := json.Marshal(snap.Messages)
	if err != nil {
		return fmt.Errorf("encode snapshot messages: %w", err)
	}
	matchedJSON, err := json.Marshal(snap.Matched)
	if err != nil {
		return fmt.Errorf("encode snapshot matched data: %w", err)
	}
	searchJSON, err := json.Marshal(snapshotSearch{LastSearch: snap.LastSearch, LastDates: snap.LastDates})
	if err != nil {
		return fmt.Errorf("encode snapshot search: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
		INSERT INTO snapshots (id, user_id, summary, message_count, saved_at, messages_json, matched_json, search_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			summary = excluded.summary,
			message_count = excluded.message_count,
			saved_at = excluded.saved_at,
			messages_json = excluded.messages_json,
			matched_json = excluded.matched_json,
			search_json = excluded.search_json
		WHERE snapshots.user_id = excluded.user_id`

	_, err = s.db.ExecContext(ctx, query,
		snap.ID, snap.UserID, snap.Summary, len(snap.Messages),
		snap.Timestamp.UnixMilli(), string(messagesJSON), string(matchedJSON), string(searchJSON),
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns snapshot metadata for a user, newest first.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, userID string) ([]domain.SnapshotMeta, error) {
	query := `
		SELECT id, summary, message_count, saved_at
		FROM snapshots WHERE user_id = ?
		ORDER BY saved_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close snapshot rows", "error", closeErr)
		}
	}()

	metas := []domain.SnapshotMeta{}
	for rows.Next() {
		var meta domain.SnapshotMeta
		var savedAt int64
		if err := rows.Scan(&meta.ID, &meta.Summary, &meta.MessageCount, &savedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		meta.Timestamp = time.UnixMilli(savedAt)
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return metas, nil
}

// GetSnapshot loads a full snapshot.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, userID, id string) (*domain.Snapshot, error) {
	query := `
		SELECT id, user_id, summary, saved_at, messages_json, matched_json, search_json
		FROM snapshots WHERE user_id = ? AND id = ?`

	var snap domain.Snapshot
	var savedAt int64
	var messagesJSON, matchedJSON, searchJSON string
	err := s.db.QueryRowContext(ctx, query, userID, id).Scan(
		&snap.ID, &snap.UserID, &snap.Summary, &savedAt, &messagesJSON, &matchedJSON, &searchJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	snap.Timestamp = time.UnixMilli(savedAt)
	if err := json.Unmarshal([]byte(messagesJSON), &snap.Messages); err != nil {
		return nil, fmt.Errorf("decode snapshot messages: %w", err)
	}
	if err := json.Unmarshal([]byte(matchedJSON), &snap.Matched); err != nil {
		return nil, fmt.Errorf("decode snapshot matched data: %w", err)
	}
	var search snapshotSearch
	if err := json.Unmarshal([]byte(searchJSON), &search); err != nil {
		return nil, fmt.Errorf("decode snapshot search: %w", err)
	}
	snap.LastSearch, snap.LastDates = search.LastSearch, search.LastDates
	return &snap, nil
}

// snapshotSearch is the search focus column of a snapshot row.
type snapshotSearch struct {
	LastSearch *domain.Topic `json:"last_search,omitempty"`
	LastDates  []domain.Date `json:"last_dates,omitempty"`
}

// DeleteSnapshot removes a snapshot owned by userID.
func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, userID, id string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return false, fmt.Errorf("delete snapshot: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
