package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/mfeltz/guardhouse/internal/db"
	"github.com/mfeltz/guardhouse/internal/guardhouse/store"
	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

type GateStore struct {
	db     *dbpkg.DB
	writer *dbpkg.Worker
}

func NewGateStore(db *dbpkg.DB, writer *dbpkg.Worker) *GateStore {
	return &GateStore{db: db, writer: writer}
}

const gateColumns = `gate_id, name, location, direction, required_level, active, hardware_addr`

func (s *GateStore) Get(ctx context.Context, gateID string) (types.Gate, error) {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return types.Gate{}, store.ErrNotFound
	}

	row := s.db.Reader.QueryRowContext(ctx, `
SELECT `+gateColumns+`
FROM gates
WHERE gate_id = ?;
`, gateID)

	gate, err := scanGate(row)
	if err == sql.ErrNoRows {
		return types.Gate{}, store.ErrNotFound
	}
	if err != nil {
		return types.Gate{}, fmt.Errorf("Get gate %s: %w", gateID, err)
	}
	return gate, nil
}

func (s *GateStore) Upsert(ctx context.Context, gate types.Gate) error {
	now := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO gates(gate_id, name, location, direction, required_level, active, hardware_addr, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(gate_id) DO UPDATE SET
  name           = excluded.name,
  location       = excluded.location,
  direction      = excluded.direction,
  required_level = excluded.required_level,
  active         = excluded.active,
  hardware_addr  = excluded.hardware_addr,
  updated_at_ms  = excluded.updated_at_ms;
`,
			gate.ID, gate.Name, gate.Location, string(gate.Direction),
			gate.RequiredLevel, boolToInt(gate.Active), gate.HardwareAddr, now, now,
		); err != nil {
			return fmt.Errorf("Upsert gate %s: %w", gate.ID, err)
		}
		return nil
	})
}

func (s *GateStore) List(ctx context.Context) ([]types.Gate, error) {
	rows, err := s.db.Reader.QueryContext(ctx, `
SELECT `+gateColumns+`
FROM gates
ORDER BY gate_id;
`)
	if err != nil {
		return nil, fmt.Errorf("List gates query: %w", err)
	}
	defer rows.Close()

	var out []types.Gate
	for rows.Next() {
		gate, err := scanGate(rows)
		if err != nil {
			return nil, fmt.Errorf("List gates scan: %w", err)
		}
		out = append(out, gate)
	}
	return out, rows.Err()
}

func scanGate(row rowScanner) (types.Gate, error) {
	var (
		direction string
		active    int
		gate      types.Gate
	)
	err := row.Scan(&gate.ID, &gate.Name, &gate.Location, &direction, &gate.RequiredLevel, &active, &gate.HardwareAddr)
	if err != nil {
		return types.Gate{}, err
	}
	gate.Direction = types.Direction(direction)
	gate.Active = active == 1
	return gate, nil
}
