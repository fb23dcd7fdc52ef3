package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/mfeltz/guardhouse/internal/db"
	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

// DecisionStore persists access decisions as an append-only audit log.
// Rows never change after insert except the synced flag.
type DecisionStore struct {
	db     *dbpkg.DB
	writer *dbpkg.Worker
}

func NewDecisionStore(db *dbpkg.DB, writer *dbpkg.Worker) *DecisionStore {
	return &DecisionStore{db: db, writer: writer}
}

func (s *DecisionStore) Record(ctx context.Context, dec types.AccessDecision) error {
	if dec.DecidedAt.IsZero() {
		dec.DecidedAt = time.Now().UTC()
	}
	now := time.Now().UTC().UnixMilli()

	var holderName, holderRef, holderCategory any
	if dec.Holder != nil {
		holderName = dec.Holder.Name
		holderRef = dec.Holder.Ref
		holderCategory = string(dec.Holder.Category)
	}

	var reason any
	if dec.Reason != "" {
		reason = dec.Reason
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO access_decisions(
  decision_id, presented_id, gate_id, granted, reason,
  holder_name, holder_ref, holder_category, decided_at_ms, synced, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?);
`,
			dec.ID.String(), dec.PresentedID, dec.GateID, boolToInt(dec.Granted), reason,
			holderName, holderRef, holderCategory, dec.DecidedAt.UTC().UnixMilli(), now,
		); err != nil {
			return fmt.Errorf("Record decision %s: %w", dec.ID, err)
		}
		return nil
	})
}

func (s *DecisionStore) ListUnsynced(ctx context.Context, limit int) ([]types.AccessDecision, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.Reader.QueryContext(ctx, `
SELECT decision_id, presented_id, gate_id, granted, reason,
       holder_name, holder_ref, holder_category, decided_at_ms, synced
FROM access_decisions
WHERE synced = 0
ORDER BY decided_at_ms ASC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("ListUnsynced query: %w", err)
	}
	defer rows.Close()

	var out []types.AccessDecision
	for rows.Next() {
		dec, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("ListUnsynced scan: %w", err)
		}
		out = append(out, dec)
	}
	return out, rows.Err()
}

// MarkSynced flips the synced flag for the confirmed decisions. One
// transaction for the whole batch; already-synced IDs are harmless.
func (s *DecisionStore) MarkSynced(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE access_decisions SET synced = 1 WHERE decision_id IN (`+placeholders+`);`,
			args...,
		); err != nil {
			return fmt.Errorf("MarkSynced: %w", err)
		}
		return nil
	})
}

func scanDecision(row rowScanner) (types.AccessDecision, error) {
	var (
		id             string
		granted        int
		reason         sql.NullString
		holderName     sql.NullString
		holderRef      sql.NullString
		holderCategory sql.NullString
		decidedMs      int64
		synced         int
		dec            types.AccessDecision
	)
	err := row.Scan(
		&id, &dec.PresentedID, &dec.GateID, &granted, &reason,
		&holderName, &holderRef, &holderCategory, &decidedMs, &synced,
	)
	if err != nil {
		return types.AccessDecision{}, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return types.AccessDecision{}, fmt.Errorf("bad decision_id %q: %w", id, err)
	}
	dec.ID = parsed
	dec.Granted = granted == 1
	dec.Reason = reason.String
	dec.DecidedAt = time.UnixMilli(decidedMs).UTC()
	dec.Synced = synced == 1

	if holderName.Valid || holderRef.Valid || holderCategory.Valid {
		dec.Holder = &types.HolderSnapshot{
			Name:     holderName.String,
			Ref:      holderRef.String,
			Category: types.Category(holderCategory.String),
		}
	}
	return dec, nil
}
