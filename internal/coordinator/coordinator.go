package coordinator

import (
	"errors"
	"fmt"

	"forkring/internal/protocol"
	"forkring/internal/ring"
)

// ErrHandshake matches every bootstrap violation seen by the coordinator.
var ErrHandshake = errors.New("handshake violation")

// Phase is the coordinator's position in the bootstrap.
type Phase int

const (
	// PhaseSpawning: agents exist but have not been sent Init.
	PhaseSpawning Phase = iota
	// PhaseRegistering: waiting for N Register messages.
	PhaseRegistering
	// PhaseWiring: waiting for N WireAck messages.
	PhaseWiring
	// PhaseStarted: Start has been broadcast.
	PhaseStarted
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	switch p {
	case PhaseSpawning:
		return "SPAWNING"
	case PhaseRegistering:
		return "REGISTERING"
	case PhaseWiring:
		return "WIRING"
	case PhaseStarted:
		return "STARTED"
	default:
		return "UNKNOWN"
	}
}

// Coordinator is the bootstrap state machine. It is not safe for
// concurrent use.
type Coordinator struct {
	ring    *ring.Ring
	self    string
	session string
	phase   Phase
	members *membership
}

// New creates a coordinator for the agents spawned at the given addresses,
// indexed by agent id.
func New(r *ring.Ring, self, session string, spawned []string) (*Coordinator, error) {
	if len(spawned) != r.Size() {
		return nil, fmt.Errorf("%d spawned agents for a ring of %d", len(spawned), r.Size())
	}
	if session == "" {
		return nil, errors.New("session cannot be empty")
	}
	return &Coordinator{
		ring:    r,
		self:    self,
		session: session,
		phase:   PhaseSpawning,
		members: newMembership(spawned),
	}, nil
}

// Session returns the bootstrap session id.
func (c *Coordinator) Session() string { return c.session }

// Phase returns the current phase.
func (c *Coordinator) Phase() Phase { return c.phase }

// Members returns a copy of the member table.
func (c *Coordinator) Members() []Member { return c.members.list() }

// Begin emits Init to every spawned agent.
func (c *Coordinator) Begin() ([]protocol.Envelope, error) {
	if c.phase != PhaseSpawning {
		return nil, fmt.Errorf("%w: begin in phase %s", ErrHandshake, c.phase)
	}
	n := c.ring.Size()
	out := make([]protocol.Envelope, 0, n)
	for _, m := range c.members.members {
		out = append(out, c.envelope(m.Addr, protocol.NewInit(c.session, m.ID, n)))
	}
	c.phase = PhaseRegistering
	return out, nil
}

// Handle processes one envelope addressed to the coordinator. When a
// barrier completes it returns the next phase's envelopes.
func (c *Coordinator) Handle(env protocol.Envelope) ([]protocol.Envelope, error) {
	msg := env.Message
	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	switch msg.Kind {
	case protocol.KindRegister:
		return c.onRegister(msg)
	case protocol.KindWireAck:
		return c.onWireAck(env)
	default:
		return nil, fmt.Errorf("%w: %s from %s is not addressed to the coordinator", ErrHandshake, msg, env.From)
	}
}

func (c *Coordinator) onRegister(msg protocol.Message) ([]protocol.Envelope, error) {
	if c.phase != PhaseRegistering {
		return nil, fmt.Errorf("%w: %s in phase %s", ErrHandshake, msg, c.phase)
	}
	m, ok := c.members.get(msg.AgentID)
	if !ok {
		return nil, fmt.Errorf("%w: register from unknown agent %d", ErrHandshake, msg.AgentID)
	}
	if m.Status != Spawned {
		return nil, fmt.Errorf("%w: agent %d registered twice", ErrHandshake, msg.AgentID)
	}
	m.Addr = msg.Addr
	c.members.advance(m, Registered)

	if !c.members.all(Registered) {
		return nil, nil
	}

	out := make([]protocol.Envelope, 0, c.ring.Size())
	for _, m := range c.members.members {
		left := c.members.members[c.ring.Left(m.ID)].Addr
		right := c.members.members[c.ring.Right(m.ID)].Addr
		out = append(out, c.envelope(m.Addr, protocol.NewWireNeighbors(left, right)))
	}
	c.phase = PhaseWiring
	return out, nil
}

func (c *Coordinator) onWireAck(env protocol.Envelope) ([]protocol.Envelope, error) {
	msg := env.Message
	if c.phase != PhaseWiring {
		return nil, fmt.Errorf("%w: %s in phase %s", ErrHandshake, msg, c.phase)
	}
	m, ok := c.members.get(msg.AgentID)
	if !ok {
		return nil, fmt.Errorf("%w: wire ack from unknown agent %d", ErrHandshake, msg.AgentID)
	}
	if m.Status != Registered {
		return nil, fmt.Errorf("%w: agent %d acknowledged wiring twice", ErrHandshake, msg.AgentID)
	}
	if env.From != m.Addr {
		return nil, fmt.Errorf("%w: wire ack for agent %d from %s, registered as %s", ErrHandshake, msg.AgentID, env.From, m.Addr)
	}
	c.members.advance(m, Wired)

	if !c.members.all(Wired) {
		return nil, nil
	}

	out := make([]protocol.Envelope, 0, c.ring.Size())
	for i := range c.members.members {
		m := &c.members.members[i]
		out = append(out, c.envelope(m.Addr, protocol.NewStart(c.session)))
		c.members.advance(m, Started)
	}
	c.phase = PhaseStarted
	return out, nil
}

func (c *Coordinator) envelope(to string, msg protocol.Message) protocol.Envelope {
	return protocol.Envelope{From: c.self, To: to, Message: msg}
}
