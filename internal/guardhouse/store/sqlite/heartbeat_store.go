package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/mfeltz/guardhouse/internal/db"
	"github.com/mfeltz/guardhouse/internal/guardhouse/store"
)

type HeartbeatStore struct {
	db     *dbpkg.DB
	writer *dbpkg.Worker
}

func NewHeartbeatStore(db *dbpkg.DB, writer *dbpkg.Worker) *HeartbeatStore {
	return &HeartbeatStore{db: db, writer: writer}
}

func (s *HeartbeatStore) Insert(ctx context.Context, gateID string, rec store.HeartbeatRecord) error {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return nil
	}

	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	recvMs := rec.ReceivedAt.UTC().UnixMilli()

	var uptimeMs any
	if rec.Request.UptimeSeconds != 0 {
		uptimeMs = int64(rec.Request.UptimeSeconds) * 1000
	}

	var doorClosed any
	if rec.Request.DoorClosed != nil {
		doorClosed = boolToInt(*rec.Request.DoorClosed)
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO gate_heartbeats(gate_id, received_at_ms, uptime_ms, fw_version, ip, door_closed)
VALUES (?, ?, ?, ?, ?, ?);
`,
			gateID, recvMs, uptimeMs,
			strings.TrimSpace(rec.Request.FirmwareVersion),
			strings.TrimSpace(rec.Request.IP),
			doorClosed,
		); err != nil {
			return fmt.Errorf("Insert heartbeat: %w", err)
		}
		return nil
	})
}

// PruneOlderThan deletes heartbeat rows received before the cutoff and
// returns the number of rows deleted. Uses idx_gate_heartbeats_time for an
// efficient range scan.
func (s *HeartbeatStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffMs := cutoff.UTC().UnixMilli()

	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM gate_heartbeats
WHERE received_at_ms < ?;
`, cutoffMs)
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
