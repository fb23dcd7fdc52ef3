package service

import (
	"strings"
	"sync"
	"time"
)

// Gate connectivity states.
const (
	StateOnline   = "online"
	StateOffline  = "offline"
	StateDegraded = "degraded"
)

// GateStatus is the observable health of one gate.
type GateStatus struct {
	State     string
	LastSeen  time.Time
	LastError string
}

// HealthTracker keeps per-gate liveness in memory. It is observability only:
// the validation engine feeds it but never consults it for decisions. State
// is derived at query time from the last activity and error instants, so
// there is no background transition goroutine to manage.
type HealthTracker struct {
	mu           sync.RWMutex
	gates        map[string]gateHealth
	offlineAfter time.Duration
	now          func() time.Time
}

type gateHealth struct {
	lastSeen  time.Time
	lastError string
	erroredAt time.Time
}

func NewHealthTracker(offlineAfter time.Duration) *HealthTracker {
	return &HealthTracker{
		gates:        make(map[string]gateHealth),
		offlineAfter: offlineAfter,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// RecordHeartbeat notes an explicit liveness report from the gate module.
func (h *HealthTracker) RecordHeartbeat(gateID string, t time.Time) {
	h.recordSeen(gateID, t)
}

// RecordActivity notes implicit liveness: any validation traffic from the
// gate counts the same as a heartbeat.
func (h *HealthTracker) RecordActivity(gateID string, t time.Time) {
	h.recordSeen(gateID, t)
}

func (h *HealthTracker) recordSeen(gateID string, t time.Time) {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return
	}
	if t.IsZero() {
		t = h.now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	g := h.gates[gateID]
	if t.After(g.lastSeen) {
		g.lastSeen = t
	}
	h.gates[gateID] = g
}

// RecordError notes a hardware-side failure (actuator unreachable, driver
// error). The gate reads degraded until newer successful activity arrives.
func (h *HealthTracker) RecordError(gateID, msg string) {
	gateID = strings.TrimSpace(gateID)
	if gateID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	g := h.gates[gateID]
	g.lastError = msg
	g.erroredAt = h.now()
	h.gates[gateID] = g
}

// Status reports the gate's current state. A gate nobody has heard from is
// offline with a zero LastSeen.
func (h *HealthTracker) Status(gateID string) GateStatus {
	h.mu.RLock()
	g, ok := h.gates[strings.TrimSpace(gateID)]
	h.mu.RUnlock()

	if !ok {
		return GateStatus{State: StateOffline}
	}

	status := GateStatus{LastSeen: g.lastSeen, LastError: g.lastError}
	switch {
	case h.now().Sub(g.lastSeen) > h.offlineAfter:
		status.State = StateOffline
	case g.erroredAt.After(g.lastSeen):
		status.State = StateDegraded
	default:
		status.State = StateOnline
	}
	return status
}
