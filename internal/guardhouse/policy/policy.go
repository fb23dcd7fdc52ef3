// Package policy holds the pure decision function for credential validation.
// Evaluate does no I/O and is fully deterministic over its inputs, so the
// same cached data yields the same decision whether the upstream registry was
// reachable five seconds or five hours ago (stale data is itself an input).
package policy

import (
	"time"

	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

// Denial reasons. These are wire values: they appear in decision logs, in
// responses to gate hardware, and in the upstream sync payload.
const (
	ReasonUnknownCredential = "unknown_credential"
	ReasonInactive          = "inactive_credential"
	ReasonExpired           = "expired_or_not_yet_valid"
	ReasonStaleOfflineData  = "stale_offline_data"
	ReasonGateUnavailable   = "gate_unavailable"
	ReasonInsufficientLevel = "insufficient_access_level"
	ReasonOutsideHours      = "outside_allowed_hours"

	// ReasonSystemError is not produced by Evaluate; the validation engine
	// fails closed with it when it cannot complete a lookup in time.
	ReasonSystemError = "system_error"
)

// Decision is the outcome of evaluating one credential against one gate.
// Denials are values, never errors.
type Decision struct {
	Granted bool
	Reason  string // set iff !Granted
}

// Input carries everything Evaluate may consult.
type Input struct {
	// Credential is nil on a cache miss.
	Credential *types.Credential
	Gate       types.Gate
	Now        time.Time

	// Hours is the per-category time-of-day table.
	Hours HoursTable

	// OfflineGrace is how old cached credential data may be and still be
	// trusted while the upstream registry is unreachable. Zero disables the
	// stale check entirely.
	OfflineGrace time.Duration

	// UpstreamOnline is the sync service's current view of the registry.
	UpstreamOnline bool
}

// Evaluate runs the ordered policy checks. The first failing check determines
// the denial reason.
func Evaluate(in Input) Decision {
	cred := in.Credential

	if cred == nil {
		return deny(ReasonUnknownCredential)
	}
	if !cred.Active {
		return deny(ReasonInactive)
	}
	if cred.ValidFrom != nil && in.Now.Before(*cred.ValidFrom) {
		return deny(ReasonExpired)
	}
	if cred.ValidUntil != nil && !in.Now.Before(*cred.ValidUntil) {
		return deny(ReasonExpired)
	}
	if stale(in, *cred) {
		return deny(ReasonStaleOfflineData)
	}
	if !in.Gate.Active {
		return deny(ReasonGateUnavailable)
	}
	if cred.AccessLevel < in.Gate.RequiredLevel {
		return deny(ReasonInsufficientLevel)
	}
	if !in.Hours.Allows(cred.Category, in.Now) {
		return deny(ReasonOutsideHours)
	}
	return Decision{Granted: true}
}

// stale reports whether the cached record is too old to trust. Age alone
// never denies: while the upstream is reachable the pull loop is refreshing
// the cache, so only the combination of a disconnected registry and an
// over-grace record fails.
func stale(in Input, cred types.Credential) bool {
	if in.UpstreamOnline || in.OfflineGrace <= 0 {
		return false
	}
	return in.Now.Sub(cred.LastSyncedAt) > in.OfflineGrace
}

func deny(reason string) Decision {
	return Decision{Granted: false, Reason: reason}
}
