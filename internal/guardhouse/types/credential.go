package types

import (
	"time"

	"github.com/google/uuid"
)

// Category is the holder category a credential belongs to. The set is open:
// the upstream registry may introduce new categories without a coordinated
// deploy, so these constants only name the ones policy configuration is
// expected to reference.
type Category string

const (
	CategoryPrimary  Category = "primary"
	CategoryStaff    Category = "staff"
	CategorySecurity Category = "security"
)

// Credential is the locally cached record of a physical access card.
// Credentials are created and updated only by the sync pull from the upstream
// registry — a raw scan of an unknown card is rejected, never auto-registered.
type Credential struct {
	// ExternalID is the upstream registry's identity for the card.
	ExternalID uuid.UUID

	// PresentedID is the raw value a reader scans off the card (the RFID
	// number). Unique among currently known credentials.
	PresentedID string

	// Holder snapshot fields, denormalized from upstream so a decision can
	// capture them without a second lookup.
	HolderName string
	HolderRef  string
	Category   Category

	Active      bool
	AccessLevel int

	// Optional validity window. A nil bound is unbounded on that side.
	ValidFrom  *time.Time
	ValidUntil *time.Time

	// LastSyncedAt is when this record was last confirmed against upstream.
	// It drives the stale-data check while the registry is unreachable.
	LastSyncedAt time.Time
}

// HolderSnapshot is the holder identity captured on an access decision at the
// moment it was made. Decisions must stay meaningful even if the credential is
// later altered or deleted, so this is a copy, not a reference.
type HolderSnapshot struct {
	Name     string   `json:"name"`
	Ref      string   `json:"ref"`
	Category Category `json:"category"`
}

// Snapshot copies the holder identity out of the credential.
func (c Credential) Snapshot() HolderSnapshot {
	return HolderSnapshot{
		Name:     c.HolderName,
		Ref:      c.HolderRef,
		Category: c.Category,
	}
}

// AccessDecision is the immutable audit record of a single validation.
// Only the Synced flag ever changes after creation, false→true exactly once
// when the sync service confirms upstream acceptance.
type AccessDecision struct {
	ID          uuid.UUID
	PresentedID string
	GateID      string
	Granted     bool
	Reason      string // set iff !Granted
	Holder      *HolderSnapshot
	DecidedAt   time.Time
	Synced      bool
}
