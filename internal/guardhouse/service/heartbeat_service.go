package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mfeltz/guardhouse/internal/guardhouse/store"
	"github.com/mfeltz/guardhouse/internal/guardhouse/types"
)

var (
	ErrInvalidGateID      = errors.New("gate_id is required")
	ErrInvalidPresentedID = errors.New("presented_id is required")
)

// HeartbeatService ingests liveness reports from gate modules, independent of
// validation traffic. Heartbeats from unknown gates are accepted and stored
// (a module may report before its gate is provisioned) but flagged known=false.
type HeartbeatService struct {
	heartbeats store.HeartbeatStore
	gates      store.GateStore
	health     *HealthTracker
}

func NewHeartbeatService(hs store.HeartbeatStore, gs store.GateStore, health *HealthTracker) *HeartbeatService {
	return &HeartbeatService{heartbeats: hs, gates: gs, health: health}
}

func (s *HeartbeatService) Record(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	gateID := strings.TrimSpace(req.GateID)
	if gateID == "" {
		return types.HeartbeatResponse{}, ErrInvalidGateID
	}

	now := time.Now().UTC()

	known := true
	if _, err := s.gates.Get(ctx, gateID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return types.HeartbeatResponse{}, err
		}
		known = false
	}

	s.health.RecordHeartbeat(gateID, now)

	if err := s.heartbeats.Insert(ctx, gateID, store.HeartbeatRecord{
		ReceivedAt: now,
		Request:    req,
	}); err != nil {
		return types.HeartbeatResponse{}, err
	}

	return types.HeartbeatResponse{
		OK:         true,
		Known:      known,
		GateID:     gateID,
		ServerTime: now.Format(time.RFC3339Nano),
	}, nil
}
