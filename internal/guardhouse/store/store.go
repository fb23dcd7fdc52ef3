// Package store defines the persistence contracts shared by the sqlite and
// memory backends. The validation hot path only ever reads through
// CredentialStore.Lookup and GateStore.Get; all mutation funnels through the
// single-writer transaction worker inside each backend.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

// ErrNotFound is returned by lookups that miss. A cache miss is a valid
// outcome on the hot path (it becomes an unknown_credential denial), never an
// infrastructure error.
var ErrNotFound = errors.New("not found")

// CredentialStore is the durable local cache of known credentials.
// The sync service is its only writer.
type CredentialStore interface {
	// Lookup finds a credential by its presented (RFID) identifier.
	Lookup(ctx context.Context, presentedID string) (types.Credential, error)

	// Upsert inserts or fully replaces a credential by external identity.
	// Idempotent: applying the same state twice leaves the row identical.
	Upsert(ctx context.Context, cred types.Credential) error

	// Deactivate flips active off without deleting the row, preserving
	// referential meaning for historical decisions.
	Deactivate(ctx context.Context, externalID uuid.UUID) error

	ListActive(ctx context.Context) ([]types.Credential, error)
}

// GateStore holds the gates this node controls.
type GateStore interface {
	Get(ctx context.Context, gateID string) (types.Gate, error)
	Upsert(ctx context.Context, gate types.Gate) error
	List(ctx context.Context) ([]types.Gate, error)
}

// DecisionStore is the append-only decision log. Rows are immutable except
// for the synced flag.
type DecisionStore interface {
	Record(ctx context.Context, dec types.AccessDecision) error

	// ListUnsynced returns up to limit decisions not yet confirmed upstream,
	// oldest first.
	ListUnsynced(ctx context.Context, limit int) ([]types.AccessDecision, error)

	// MarkSynced sets the synced flag for the given decision IDs.
	MarkSynced(ctx context.Context, ids []uuid.UUID) error
}

// HeartbeatRecord is one liveness report from a gate module.
type HeartbeatRecord struct {
	ReceivedAt time.Time
	Request    types.HeartbeatRequest
}

// HeartbeatStore persists gate heartbeats as an append-only log.
type HeartbeatStore interface {
	Insert(ctx context.Context, gateID string, rec HeartbeatRecord) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SyncStateStore keeps small sync bookkeeping values, currently just the
// pull cursor.
type SyncStateStore interface {
	// Cursor returns the stored value for key, or "" if none has been set.
	Cursor(ctx context.Context, key string) (string, error)
	SetCursor(ctx context.Context, key, value string) error
}
