package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeedDev populates a development database with one gate and one credential
// so a freshly started node can answer validations before the first sync pull
// completes. Never called in prod; gates there are provisioned by an admin
// and credentials arrive only via sync.
func SeedDev(ctx context.Context, conn *sql.DB) error {
	now := time.Now().UTC().UnixMilli()

	if _, err := conn.ExecContext(ctx, `
INSERT INTO gates(gate_id, name, location, direction, required_level, active, hardware_addr, created_at_ms, updated_at_ms)
VALUES ('gate_main', 'Main Entrance', 'Dev', 'bidirectional', 1, 1, 'dev:0', ?, ?)
ON CONFLICT(gate_id) DO UPDATE SET
  active        = 1,
  updated_at_ms = excluded.updated_at_ms;
`, now, now); err != nil {
		return fmt.Errorf("seed gate_main: %w", err)
	}

	if _, err := conn.ExecContext(ctx, `
INSERT INTO credentials(
  external_id, presented_id, holder_name, holder_ref, category,
  active, access_level, last_synced_at_ms, created_at_ms, updated_at_ms
) VALUES ('00000000-0000-0000-0000-000000000001', 'RF001', 'Dev Holder', 'DEV-001', 'primary', 1, 1, ?, ?, ?)
ON CONFLICT(external_id) DO UPDATE SET
  active            = 1,
  last_synced_at_ms = excluded.last_synced_at_ms,
  updated_at_ms     = excluded.updated_at_ms;
`, now, now, now); err != nil {
		return fmt.Errorf("seed credential RF001: %w", err)
	}

	return nil
}
