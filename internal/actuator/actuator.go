// Package actuator defines the contract to the physical gate hardware.
// Real implementations (serial, network, GPIO) live outside this core; the
// validation engine only guarantees each granted decision triggers at most
// one actuation, dispatched off the request path.
package actuator

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Action is what the hardware should do with the gate.
type Action string

const (
	ActionOpen       Action = "open"
	ActionKeepClosed Action = "keep_closed"
)

// Actuator drives a single site's gate hardware. The decision ID is passed
// through for correlation between the audit log and hardware traces.
type Actuator interface {
	Actuate(ctx context.Context, gateID string, action Action, duration time.Duration, decisionID uuid.UUID) error
}

// LogActuator writes actuations to the log instead of hardware. Used in dev
// and as the default when no driver is wired.
type LogActuator struct {
	Logger *log.Logger
}

func (a *LogActuator) Actuate(_ context.Context, gateID string, action Action, duration time.Duration, decisionID uuid.UUID) error {
	a.Logger.Printf("actuate gate=%s action=%s duration=%s decision=%s", gateID, action, duration, decisionID)
	return nil
}
