package philosopher

// State is the dining state of a running agent.
type State int

const (
	Thinking State = iota
	Hungry
	Eating
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case Thinking:
		return "THINKING"
	case Hungry:
		return "HUNGRY"
	case Eating:
		return "EATING"
	default:
		return "UNKNOWN"
	}
}

// Phase tracks the bootstrap handshake of an agent.
type Phase int

const (
	// Created agents wait for Init.
	Created Phase = iota
	// Initialized agents have registered and wait for WireNeighbors.
	Initialized
	// Wired agents have acknowledged their neighbors and wait for Start.
	Wired
	// Running agents take part in the protocol.
	Running
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	switch p {
	case Created:
		return "CREATED"
	case Initialized:
		return "INITIALIZED"
	case Wired:
		return "WIRED"
	case Running:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}
