package philosopher

import (
	"time"

	"forkring/internal/fork"
	"forkring/internal/protocol"
	"forkring/internal/ring"
)

// Config holds the addressing and collaborators of an agent.
type Config struct {
	// Self is the agent's own address, reported in Register.
	Self string
	// Coordinator is the address Register and WireAck are sent to.
	Coordinator string
	Delays      Delays
	Observer    Observer
}

// EventKind tags an Event.
type EventKind int

const (
	EventMessage EventKind = iota
	EventTimeout
)

// Event is one input to the state machine: a received message or the
// expiry of the timer armed by the previous Effects.
type Event struct {
	Kind     EventKind
	Envelope protocol.Envelope
}

// MessageEvent wraps a received envelope.
func MessageEvent(env protocol.Envelope) Event {
	return Event{Kind: EventMessage, Envelope: env}
}

// TimeoutEvent signals expiry of the armed timer.
func TimeoutEvent() Event {
	return Event{Kind: EventTimeout}
}

// Effects is the output of one transition. Sends must be delivered in
// order per destination. When Arm is set the caller schedules a
// TimeoutEvent after Timer.
type Effects struct {
	Sends []protocol.Envelope
	Timer time.Duration
	Arm   bool
}

// slot is the per-side state of an agent.
type slot struct {
	neighbor int
	addr     string
	forkID   int
	fork     fork.Fork
	hasFork  bool
	// token is the request token for this side. Held together with the
	// fork it means the neighbor has asked for the fork.
	token bool
}

// Agent is the state machine of one philosopher. It is not safe for
// concurrent use; the owner serializes calls to Handle.
type Agent struct {
	cfg Config

	id      int
	n       int
	session string
	phase   Phase
	state   State
	sides   [2]slot

	// deferred holds peer messages received while eating.
	deferred []protocol.Envelope
	armed    bool
	meals    int
}

// New creates an agent waiting for Init.
func New(cfg Config) *Agent {
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.Delays == nil {
		cfg.Delays = FixedDelays{ThinkFor: 10 * time.Millisecond, EatFor: 10 * time.Millisecond}
	}
	return &Agent{cfg: cfg, id: -1, phase: Created, state: Thinking}
}

// Handle applies one event and returns the resulting effects. A non-nil
// error is a *ViolationError and leaves the agent unusable.
func (a *Agent) Handle(ev Event) (Effects, error) {
	var fx Effects
	var err error

	switch ev.Kind {
	case EventTimeout:
		err = a.onTimeout(&fx)
	case EventMessage:
		err = a.onMessage(ev.Envelope, &fx)
	default:
		err = a.violation(UnexpectedMessage, "unknown event kind %d", ev.Kind)
	}
	return fx, err
}

func (a *Agent) onMessage(env protocol.Envelope, fx *Effects) error {
	msg := env.Message

	switch msg.Kind {
	case protocol.KindInit:
		return a.onInit(msg, fx)
	case protocol.KindWireNeighbors:
		return a.onWire(msg, fx)
	case protocol.KindStart:
		return a.onStart(msg, fx)
	case protocol.KindFork, protocol.KindForkRequest:
		if a.phase != Running {
			return a.violation(EarlyMessage, "%s in phase %s", msg, a.phase)
		}
		if a.state == Eating {
			a.deferred = append(a.deferred, env)
			return nil
		}
		if err := a.onPeer(env); err != nil {
			return err
		}
		a.evaluate(fx)
		return nil
	case protocol.KindRegister, protocol.KindWireAck:
		return a.violation(UnexpectedMessage, "%s is addressed to the coordinator", msg)
	default:
		return a.violation(UnexpectedMessage, "unknown message kind %d", msg.Kind)
	}
}

func (a *Agent) onInit(msg protocol.Message, fx *Effects) error {
	if a.phase != Created {
		return a.violation(UnexpectedMessage, "%s in phase %s", msg, a.phase)
	}
	if err := msg.Validate(); err != nil {
		return a.violation(UnexpectedMessage, "%v", err)
	}

	seat, err := ring.SeatOf(msg.Agents, msg.AgentID)
	if err != nil {
		return a.violation(UnexpectedMessage, "%v", err)
	}

	a.id = msg.AgentID
	a.n = msg.Agents
	a.session = msg.Session
	for _, side := range fork.Sides {
		a.sides[side] = slot{
			neighbor: seat.Neighbors[side],
			forkID:   seat.Forks[side],
			fork:     fork.New(seat.Forks[side]),
			hasFork:  seat.Owns[side],
			token:    seat.Token[side],
		}
		if seat.Owns[side] {
			a.cfg.Observer.ForkAcquired(a.id, seat.Forks[side])
		}
	}

	a.phase = Initialized
	a.send(fx, a.cfg.Coordinator, protocol.NewRegister(a.id, a.cfg.Self))
	return nil
}

func (a *Agent) onWire(msg protocol.Message, fx *Effects) error {
	if a.phase != Initialized {
		return a.violation(UnexpectedMessage, "%s in phase %s", msg, a.phase)
	}
	if err := msg.Validate(); err != nil {
		return a.violation(UnexpectedMessage, "%v", err)
	}

	a.sides[fork.Left].addr = msg.Left
	a.sides[fork.Right].addr = msg.Right
	a.phase = Wired
	a.send(fx, a.cfg.Coordinator, protocol.NewWireAck(a.id))
	return nil
}

func (a *Agent) onStart(msg protocol.Message, fx *Effects) error {
	if a.phase != Wired {
		return a.violation(UnexpectedMessage, "%s in phase %s", msg, a.phase)
	}
	if msg.Session != a.session {
		return a.violation(SessionMismatch, "start for session %q, initialized in %q", msg.Session, a.session)
	}

	a.phase = Running
	a.state = Thinking
	a.arm(fx, a.cfg.Delays.Think())
	return nil
}

// onPeer records a received fork or request token.
func (a *Agent) onPeer(env protocol.Envelope) error {
	msg := env.Message
	side, ok := a.sideOf(msg.Fork.ID)
	if !ok {
		return a.violation(ForeignFork, "%s does not belong to forks %d/%d",
			msg, a.sides[fork.Left].forkID, a.sides[fork.Right].forkID)
	}
	s := &a.sides[side]
	if env.From != s.addr {
		return a.violation(ForeignFork, "%s from %s, expected %s neighbor %s", msg, env.From, side, s.addr)
	}

	switch msg.Kind {
	case protocol.KindFork:
		if s.hasFork {
			return a.violation(DuplicateFork, "%s already held on %s", msg, side)
		}
		s.fork = msg.Fork
		s.hasFork = true
		a.cfg.Observer.ForkAcquired(a.id, msg.Fork.ID)
	case protocol.KindForkRequest:
		if s.token {
			return a.violation(DuplicateRequest, "request token for fork %d already held", msg.Fork.ID)
		}
		s.token = true
	}
	return nil
}

func (a *Agent) onTimeout(fx *Effects) error {
	if a.phase != Running || !a.armed {
		return a.violation(UnexpectedTimer, "timeout in phase %s state %s", a.phase, a.state)
	}
	a.armed = false

	switch a.state {
	case Thinking:
		a.setState(Hungry)
		a.evaluate(fx)
	case Eating:
		for _, side := range fork.Sides {
			a.sides[side].fork = a.sides[side].fork.Soil()
		}
		a.setState(Thinking)

		deferred := a.deferred
		a.deferred = nil
		for _, env := range deferred {
			if err := a.onPeer(env); err != nil {
				return err
			}
		}
		a.evaluate(fx)
		a.arm(fx, a.cfg.Delays.Think())
	default:
		return a.violation(UnexpectedTimer, "timeout while %s", a.state)
	}
	return nil
}

// evaluate applies the yield rule, then, if hungry, either starts eating
// or spends request tokens on missing forks.
func (a *Agent) evaluate(fx *Effects) {
	if a.state == Eating {
		return
	}

	for _, side := range fork.Sides {
		s := &a.sides[side]
		if s.hasFork && s.fork.Dirty && s.token {
			a.cfg.Observer.ForkReleased(a.id, s.forkID, s.fork.Dirty)
			a.send(fx, s.addr, protocol.NewFork(s.fork.Clean()))
			s.hasFork = false
		}
	}

	if a.state != Hungry {
		return
	}

	if a.sides[fork.Left].hasFork && a.sides[fork.Right].hasFork {
		for _, side := range fork.Sides {
			a.sides[side].fork = a.sides[side].fork.Soil()
		}
		a.setState(Eating)
		a.meals++
		a.arm(fx, a.cfg.Delays.Eat())
		return
	}

	for _, side := range fork.Sides {
		s := &a.sides[side]
		if !s.hasFork && s.token {
			a.send(fx, s.addr, protocol.NewForkRequest(s.forkID))
			s.token = false
		}
	}
}

func (a *Agent) sideOf(forkID int) (fork.Side, bool) {
	for _, side := range fork.Sides {
		if a.sides[side].forkID == forkID {
			return side, true
		}
	}
	return fork.Left, false
}

func (a *Agent) setState(to State) {
	from := a.state
	a.state = to
	a.cfg.Observer.StateChanged(a.id, from, to)
}

func (a *Agent) arm(fx *Effects, d time.Duration) {
	fx.Timer = d
	fx.Arm = true
	a.armed = true
}

func (a *Agent) send(fx *Effects, to string, msg protocol.Message) {
	fx.Sends = append(fx.Sends, protocol.Envelope{From: a.cfg.Self, To: to, Message: msg})
}

// ID returns the agent id, or -1 before Init.
func (a *Agent) ID() int { return a.id }

// Addr returns the agent's own address.
func (a *Agent) Addr() string { return a.cfg.Self }

// State returns the dining state.
func (a *Agent) State() State { return a.state }

// Phase returns the handshake phase.
func (a *Agent) Phase() Phase { return a.phase }

// Meals returns how many times the agent has started eating.
func (a *Agent) Meals() int { return a.meals }

// Holds reports whether the agent holds the fork on side.
func (a *Agent) Holds(side fork.Side) bool { return a.sides[side].hasFork }

// Snapshot is a copy of an agent's observable state.
type Snapshot struct {
	ID       int
	Phase    Phase
	State    State
	Meals    int
	Forks    [2]int
	Holds    [2]bool
	Dirty    [2]bool
	Tokens   [2]bool
	Deferred int
}

// Snapshot returns the current observable state.
func (a *Agent) Snapshot() Snapshot {
	s := Snapshot{
		ID:       a.id,
		Phase:    a.phase,
		State:    a.state,
		Meals:    a.meals,
		Deferred: len(a.deferred),
	}
	for _, side := range fork.Sides {
		sl := a.sides[side]
		s.Forks[side] = sl.forkID
		s.Holds[side] = sl.hasFork
		s.Dirty[side] = sl.hasFork && sl.fork.Dirty
		s.Tokens[side] = sl.token
	}
	return s
}
