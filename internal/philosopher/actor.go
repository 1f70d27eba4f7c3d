package philosopher

import (
	"context"
	"errors"
	"sync"

	"forkring/internal/clock"
	"forkring/internal/logging"
	"forkring/internal/protocol"
	"forkring/internal/transport"
)

// ActorConfig wires an Agent to its runtime.
type ActorConfig struct {
	Agent     Config
	Transport transport.Transport
	Clock     clock.Clock
	Logger    logging.Logger
}

// Actor runs one Agent on its own goroutine. Received envelopes and timer
// expiries are queued in an unbounded mailbox and handled one at a time;
// outgoing envelopes leave through an Outbox.
type Actor struct {
	agent     *Agent
	inbox     *transport.Mailbox[Event]
	transport transport.Transport
	clock     clock.Clock
	logger    logging.Logger

	mu   sync.RWMutex
	snap Snapshot
}

// NewActor creates an actor around a fresh agent.
func NewActor(cfg ActorConfig) *Actor {
	if cfg.Clock == nil {
		cfg.Clock = clock.Wall{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOp{}
	}
	agent := New(cfg.Agent)
	return &Actor{
		agent:     agent,
		inbox:     transport.NewMailbox[Event](),
		transport: cfg.Transport,
		clock:     cfg.Clock,
		logger:    cfg.Logger.With("addr", cfg.Agent.Self),
		snap:      agent.Snapshot(),
	}
}

// Addr returns the address the actor receives on.
func (a *Actor) Addr() string {
	return a.agent.Addr()
}

// Deliver queues env. It returns false once the actor has stopped.
func (a *Actor) Deliver(env protocol.Envelope) bool {
	return a.inbox.Put(MessageEvent(env))
}

// Snapshot returns the agent state as of the last handled event.
func (a *Actor) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}

// Run processes events until ctx is done or the agent fails. It returns
// nil when ctx is cancelled, the *ViolationError that stopped the agent,
// or the send error that made the outbox give up.
func (a *Actor) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	out := transport.NewOutbox(runCtx, a.transport, func(err error) {
		cancel(err)
	})
	defer out.Close()
	defer a.inbox.Close()

	var timer clock.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if runCtx.Err() != nil {
			return a.stopped(ctx, runCtx)
		}
		ev, err := a.inbox.Get(runCtx)
		if errors.Is(err, transport.ErrMailboxClosed) {
			return nil
		}
		if err != nil {
			return a.stopped(ctx, runCtx)
		}

		fx, err := a.agent.Handle(ev)
		a.publish()
		if err != nil {
			a.logger.Error("protocol violation", "agent", a.agent.ID(), "error", err)
			return err
		}

		for _, env := range fx.Sends {
			out.Post(env)
		}
		if fx.Arm {
			timer = a.clock.AfterFunc(fx.Timer, func() {
				a.inbox.Put(TimeoutEvent())
			})
		}
	}
}

// stopped maps the end of runCtx to Run's result: nil for a cancelled
// parent, the outbox failure otherwise.
func (a *Actor) stopped(parent, runCtx context.Context) error {
	if parent.Err() != nil {
		return nil
	}
	cause := context.Cause(runCtx)
	a.logger.Error("send failed", "agent", a.agent.ID(), "error", cause)
	return cause
}

func (a *Actor) publish() {
	snap := a.agent.Snapshot()

	a.mu.Lock()
	prev := a.snap
	a.snap = snap
	a.mu.Unlock()

	if prev.Phase != snap.Phase {
		a.logger.Debug("phase changed", "agent", snap.ID, "from", prev.Phase, "to", snap.Phase)
	}
	if prev.State != snap.State {
		a.logger.Debug("state changed", "agent", snap.ID, "from", prev.State, "to", snap.State, "meals", snap.Meals)
	}
}
