package types

// ValidationRequest is what a gate module sends when a card is presented.
type ValidationRequest struct {
	PresentedID string `json:"presented_id"`
	GateID      string `json:"gate_id"`
	RequestedAt string `json:"requested_at,omitempty"` // optional device timestamp
}

// ValidationResult is the synchronous answer back to the hardware caller.
// Reason is present iff denied; Holder is present iff granted.
type ValidationResult struct {
	DecisionID string          `json:"decision_id"`
	Granted    bool            `json:"granted"`
	Reason     string          `json:"reason,omitempty"`
	Holder     *HolderSnapshot `json:"holder,omitempty"`
	DecidedAt  string          `json:"decided_at"`
	ServerTime string          `json:"server_time"`
}
