package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/mfeltz/guardhouse/internal/db"
	"github.com/mfeltz/guardhouse/internal/guardhouse/store"
	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

type CredentialStore struct {
	db     *dbpkg.DB
	writer *dbpkg.Worker
}

func NewCredentialStore(db *dbpkg.DB, writer *dbpkg.Worker) *CredentialStore {
	return &CredentialStore{db: db, writer: writer}
}

const credentialColumns = `
external_id, presented_id, holder_name, holder_ref, category,
active, access_level, valid_from_ms, valid_until_ms, last_synced_at_ms`

// Lookup is the hot-path read: a single indexed select on the reader pool.
func (s *CredentialStore) Lookup(ctx context.Context, presentedID string) (types.Credential, error) {
	presentedID = strings.TrimSpace(presentedID)
	if presentedID == "" {
		return types.Credential{}, store.ErrNotFound
	}

	row := s.db.Reader.QueryRowContext(ctx, `
SELECT`+credentialColumns+`
FROM credentials
WHERE presented_id = ?;
`, presentedID)

	cred, err := scanCredential(row)
	if err == sql.ErrNoRows {
		return types.Credential{}, store.ErrNotFound
	}
	if err != nil {
		return types.Credential{}, fmt.Errorf("Lookup %s: %w", presentedID, err)
	}
	return cred, nil
}

// Upsert replaces the stored state for the credential's external identity.
// Runs in its own transaction on the writer, so a concurrent Lookup sees the
// old row or the new one, never a mix.
func (s *CredentialStore) Upsert(ctx context.Context, cred types.Credential) error {
	now := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO credentials(
  external_id, presented_id, holder_name, holder_ref, category,
  active, access_level, valid_from_ms, valid_until_ms, last_synced_at_ms,
  created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(external_id) DO UPDATE SET
  presented_id      = excluded.presented_id,
  holder_name       = excluded.holder_name,
  holder_ref        = excluded.holder_ref,
  category          = excluded.category,
  active            = excluded.active,
  access_level      = excluded.access_level,
  valid_from_ms     = excluded.valid_from_ms,
  valid_until_ms    = excluded.valid_until_ms,
  last_synced_at_ms = excluded.last_synced_at_ms,
  updated_at_ms     = excluded.updated_at_ms;
`,
			cred.ExternalID.String(), cred.PresentedID, cred.HolderName, cred.HolderRef, string(cred.Category),
			boolToInt(cred.Active), cred.AccessLevel, msOrNil(cred.ValidFrom), msOrNil(cred.ValidUntil),
			cred.LastSyncedAt.UTC().UnixMilli(), now, now,
		); err != nil {
			return fmt.Errorf("Upsert %s: %w", cred.ExternalID, err)
		}
		return nil
	})
}

// Deactivate flips active off. The row stays so historical decisions keep a
// referent; a missing row is a no-op (the delta may race a never-seen card).
func (s *CredentialStore) Deactivate(ctx context.Context, externalID uuid.UUID) error {
	now := time.Now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE credentials
SET active = 0, updated_at_ms = ?
WHERE external_id = ?;
`, now, externalID.String()); err != nil {
			return fmt.Errorf("Deactivate %s: %w", externalID, err)
		}
		return nil
	})
}

func (s *CredentialStore) ListActive(ctx context.Context) ([]types.Credential, error) {
	rows, err := s.db.Reader.QueryContext(ctx, `
SELECT`+credentialColumns+`
FROM credentials
WHERE active = 1
ORDER BY presented_id;
`)
	if err != nil {
		return nil, fmt.Errorf("ListActive query: %w", err)
	}
	defer rows.Close()

	var out []types.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("ListActive scan: %w", err)
		}
		out = append(out, cred)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (types.Credential, error) {
	var (
		externalID  string
		category    string
		active      int
		validFrom   sql.NullInt64
		validUntil  sql.NullInt64
		lastSynced  int64
		cred        types.Credential
	)
	err := row.Scan(
		&externalID, &cred.PresentedID, &cred.HolderName, &cred.HolderRef, &category,
		&active, &cred.AccessLevel, &validFrom, &validUntil, &lastSynced,
	)
	if err != nil {
		return types.Credential{}, err
	}

	id, err := uuid.Parse(externalID)
	if err != nil {
		return types.Credential{}, fmt.Errorf("bad external_id %q: %w", externalID, err)
	}
	cred.ExternalID = id
	cred.Category = types.Category(category)
	cred.Active = active == 1
	cred.ValidFrom = timeFromMs(validFrom)
	cred.ValidUntil = timeFromMs(validUntil)
	cred.LastSyncedAt = time.UnixMilli(lastSynced).UTC()
	return cred, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func msOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().UnixMilli()
}

func timeFromMs(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
