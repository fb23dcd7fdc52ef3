package types

type HeartbeatRequest struct {
	GateID          string `json:"gate_id"`
	FirmwareVersion string `json:"fw_version,omitempty"`
	UptimeSeconds   uint64 `json:"uptime_s,omitempty"`
	DoorClosed      *bool  `json:"door_closed,omitempty"`
	IP              string `json:"ip,omitempty"`
}

type HeartbeatResponse struct {
	OK         bool   `json:"ok"`
	Known      bool   `json:"known"`
	GateID     string `json:"gate_id"`
	ServerTime string `json:"server_time"`
}

// GateStatusResponse is the health surface for a single gate.
type GateStatusResponse struct {
	GateID    string `json:"gate_id"`
	State     string `json:"state"` // online | offline | degraded
	LastSeen  string `json:"last_seen,omitempty"`
	LastError string `json:"last_error,omitempty"`
}
