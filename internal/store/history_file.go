package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/moby/sys/atomicwriter"

	"github.com/ashureev/postlens/internal/domain"
)

// ErrInvalidID is returned for user or snapshot ids that are unsafe as file names.
var ErrInvalidID = errors.New("invalid id")

var safeID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// FileHistoryStore keeps one JSON file per snapshot under dir/<user_id>/.
// Each file is replaced atomically.
type FileHistoryStore struct {
	dir    string
	logger *slog.Logger
}

// NewFileHistory creates the history directory if needed.
func NewFileHistory(dir string, logger *slog.Logger) (*FileHistoryStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return &FileHistoryStore{dir: dir, logger: logger}, nil
}

func (f *FileHistoryStore) userDir(userID string) (string, error) {
	if !safeID.MatchString(userID) {
		return "", fmt.Errorf("%w: user %q", ErrInvalidID, userID)
	}
	return filepath.Join(f.dir, userID), nil
}

func (f *FileHistoryStore) path(userID, id string) (string, error) {
	dir, err := f.userDir(userID)
	if err != nil {
		return "", err
	}
	if !safeID.MatchString(id) {
		return "", fmt.Errorf("%w: snapshot %q", ErrInvalidID, id)
	}
	return filepath.Join(dir, id+".json"), nil
}

// SaveSnapshot writes the snapshot file atomically.
func (f *FileHistoryStore) SaveSnapshot(_ context.Context, snap *domain.Snapshot) error {
	p, err := f.path(snap.UserID, snap.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create user history directory: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := atomicwriter.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// ListSnapshots reads every snapshot of the user, skipping unreadable files.
func (f *FileHistoryStore) ListSnapshots(_ context.Context, userID string) ([]domain.SnapshotMeta, error) {
	dir, err := f.userDir(userID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.SnapshotMeta{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history directory: %w", err)
	}

	metas := []domain.SnapshotMeta{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		snap, err := readSnapshot(filepath.Join(dir, e.Name()))
		if err != nil {
			f.logger.Warn("Skipping unreadable snapshot", "file", e.Name(), "error", err)
			continue
		}
		metas = append(metas, snap.Meta())
	}
	sort.SliceStable(metas, func(i, j int) bool {
		if metas[i].Timestamp.Equal(metas[j].Timestamp) {
			return metas[i].ID > metas[j].ID
		}
		return metas[i].Timestamp.After(metas[j].Timestamp)
	})
	return metas, nil
}

// GetSnapshot loads one snapshot.
func (f *FileHistoryStore) GetSnapshot(_ context.Context, userID, id string) (*domain.Snapshot, error) {
	p, err := f.path(userID, id)
	if err != nil {
		return nil, err
	}
	snap, err := readSnapshot(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return snap, err
}

// DeleteSnapshot removes the snapshot file.
func (f *FileHistoryStore) DeleteSnapshot(_ context.Context, userID, id string) (bool, error) {
	p, err := f.path(userID, id)
	if err != nil {
		return false, err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete snapshot: %w", err)
	}
	return true, nil
}

func readSnapshot(path string) (*domain.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.ID == "" {
		snap.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	return &snap, nil
}
