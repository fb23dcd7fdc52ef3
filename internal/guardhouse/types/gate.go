package types

// Direction is which way traffic flows through a gate.
type Direction string

const (
	DirectionEntry         Direction = "entry"
	DirectionExit          Direction = "exit"
	DirectionBidirectional Direction = "bidirectional"
)

// Gate is a controlled physical access point.
type Gate struct {
	ID       string
	Name     string
	Location string

	Direction Direction

	// RequiredLevel is the minimum credential access level to pass the level
	// check. Always non-negative.
	RequiredLevel int

	Active bool

	// HardwareAddr is the opaque binding descriptor for the actuator driver
	// (serial port, IP, GPIO line — this core never interprets it).
	HardwareAddr string
}
