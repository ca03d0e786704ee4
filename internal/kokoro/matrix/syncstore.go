package matrix

// SyncStore persists the /sync next_batch token in the kokoro SQLite
// database so a restart resumes from the last position instead of replaying
// room history and answering old messages again.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

var _ mautrix.SyncStore = (*SyncStore)(nil)

// SyncStore implements mautrix.SyncStore on the matrix_sync_state table,
// one row per (user_id, key).
type SyncStore struct {
	db *sql.DB
}

// NewSyncStore returns a SyncStore on db. The table is created by the store
// migrations.
func NewSyncStore(db *sql.DB) *SyncStore {
	return &SyncStore{db: db}
}

func (s *SyncStore) SaveFilterID(ctx context.Context, userID id.UserID, filterID string) error {
	return s.saveKey(ctx, userID.String(), "filter_id", filterID)
}

// LoadFilterID returns "" before any filter is saved.
func (s *SyncStore) LoadFilterID(ctx context.Context, userID id.UserID) (string, error) {
	return s.loadKey(ctx, userID.String(), "filter_id")
}

func (s *SyncStore) SaveNextBatch(ctx context.Context, userID id.UserID, nextBatchToken string) error {
	return s.saveKey(ctx, userID.String(), "next_batch", nextBatchToken)
}

// LoadNextBatch returns "" on first run.
func (s *SyncStore) LoadNextBatch(ctx context.Context, userID id.UserID) (string, error) {
	return s.loadKey(ctx, userID.String(), "next_batch")
}

func (s *SyncStore) saveKey(ctx context.Context, userID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matrix_sync_state (user_id, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value
	`, userID, key, value)
	if err != nil {
		return fmt.Errorf("matrix: save %s: %w", key, err)
	}
	return nil
}

func (s *SyncStore) loadKey(ctx context.Context, userID, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM matrix_sync_state WHERE user_id = ? AND key = ?
	`, userID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("matrix: load %s: %w", key, err)
	}
	return value, nil
}
