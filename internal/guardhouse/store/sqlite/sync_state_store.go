package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/mfeltz/guardhouse/internal/db"
)

// SyncStateStore keeps the pull cursor (and any future sync bookkeeping) in a
// small key/value table so it survives restarts with the same durability as
// the data it describes.
type SyncStateStore struct {
	db     *dbpkg.DB
	writer *dbpkg.Worker
}

func NewSyncStateStore(db *dbpkg.DB, writer *dbpkg.Worker) *SyncStateStore {
	return &SyncStateStore{db: db, writer: writer}
}

func (s *SyncStateStore) Cursor(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.Reader.QueryRowContext(ctx,
		`SELECT value FROM sync_state WHERE key = ?;`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("Cursor %s: %w", key, err)
	}
	return value, nil
}

func (s *SyncStateStore) SetCursor(ctx context.Context, key, value string) error {
	now := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO sync_state(key, value, updated_at_ms)
VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  value         = excluded.value,
  updated_at_ms = excluded.updated_at_ms;
`, key, value, now); err != nil {
			return fmt.Errorf("SetCursor %s: %w", key, err)
		}
		return nil
	})
}
