package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mfeltz/guardhouse/internal/guardhouse/service"
)

func TestHealthTracker_UnknownGateIsOffline(t *testing.T) {
	h := service.NewHealthTracker(90 * time.Second)

	status := h.Status("G404")
	assert.Equal(t, service.StateOffline, status.State)
	assert.True(t, status.LastSeen.IsZero())
}

func TestHealthTracker_HeartbeatBringsGateOnline(t *testing.T) {
	h := service.NewHealthTracker(90 * time.Second)

	now := time.Now().UTC()
	h.RecordHeartbeat("G1", now)

	status := h.Status("G1")
	assert.Equal(t, service.StateOnline, status.State)
	assert.Equal(t, now, status.LastSeen)
}

func TestHealthTracker_QuietGateGoesOffline(t *testing.T) {
	h := service.NewHealthTracker(90 * time.Second)

	h.RecordHeartbeat("G1", time.Now().UTC().Add(-2*time.Minute))

	assert.Equal(t, service.StateOffline, h.Status("G1").State)
}

func TestHealthTracker_ValidationTrafficCountsAsLiveness(t *testing.T) {
	h := service.NewHealthTracker(90 * time.Second)

	h.RecordActivity("G1", time.Now().UTC())

	assert.Equal(t, service.StateOnline, h.Status("G1").State)
}

func TestHealthTracker_ErrorDegradesUntilNewerActivity(t *testing.T) {
	h := service.NewHealthTracker(90 * time.Second)

	h.RecordHeartbeat("G1", time.Now().UTC().Add(-time.Second))
	h.RecordError("G1", "actuator unreachable")

	status := h.Status("G1")
	assert.Equal(t, service.StateDegraded, status.State)
	assert.Equal(t, "actuator unreachable", status.LastError)

	// Newer successful activity clears the degraded state. The last error
	// message is kept for the status surface.
	h.RecordActivity("G1", time.Now().UTC().Add(time.Second))
	status = h.Status("G1")
	assert.Equal(t, service.StateOnline, status.State)
	assert.Equal(t, "actuator unreachable", status.LastError)
}

func TestHealthTracker_StaleTimestampDoesNotRegressLastSeen(t *testing.T) {
	h := service.NewHealthTracker(90 * time.Second)

	now := time.Now().UTC()
	h.RecordHeartbeat("G1", now)
	h.RecordHeartbeat("G1", now.Add(-time.Hour))

	assert.Equal(t, now, h.Status("G1").LastSeen)
}

func TestHealthTracker_GatesAreIndependent(t *testing.T) {
	h := service.NewHealthTracker(90 * time.Second)

	h.RecordHeartbeat("G1", time.Now().UTC())

	assert.Equal(t, service.StateOnline, h.Status("G1").State)
	assert.Equal(t, service.StateOffline, h.Status("G2").State)
}
