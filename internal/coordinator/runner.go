package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"forkring/internal/logging"
	"forkring/internal/protocol"
	"forkring/internal/ring"
	"forkring/internal/transport"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Ring *ring.Ring
	// Self is the address agents send Register and WireAck to.
	Self string
	// Session defaults to a random UUID.
	Session string
	// Agents holds the spawn address of each agent, indexed by id.
	Agents    []string
	Transport transport.Transport
	Logger    logging.Logger
	// Timeout bounds each delivery; zero means DefaultPerTargetTimeout.
	Timeout time.Duration
}

// Runner drives a Coordinator from a mailbox until Start has been
// delivered to every agent.
type Runner struct {
	coord     *Coordinator
	inbox     *transport.Mailbox[protocol.Envelope]
	transport transport.Transport
	logger    logging.Logger
	timeout   time.Duration
	started   chan struct{}
}

// NewRunner creates a runner. Attach it at cfg.Self before calling Run.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Session == "" {
		cfg.Session = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOp{}
	}
	coord, err := New(cfg.Ring, cfg.Self, cfg.Session, cfg.Agents)
	if err != nil {
		return nil, err
	}
	return &Runner{
		coord:     coord,
		inbox:     transport.NewMailbox[protocol.Envelope](),
		transport: cfg.Transport,
		logger:    cfg.Logger.With("addr", cfg.Self, "session", cfg.Session),
		timeout:   cfg.Timeout,
		started:   make(chan struct{}),
	}, nil
}

// Session returns the bootstrap session id.
func (r *Runner) Session() string { return r.coord.Session() }

// Deliver queues env. It returns false once the runner has finished.
func (r *Runner) Deliver(env protocol.Envelope) bool {
	return r.inbox.Put(env)
}

// Started is closed once Start has reached every agent.
func (r *Runner) Started() <-chan struct{} { return r.started }

// Run performs the bootstrap. It returns nil after Start was delivered to
// every agent, or the first handshake or delivery error.
func (r *Runner) Run(ctx context.Context) error {
	defer r.inbox.Close()

	out, err := r.coord.Begin()
	if err != nil {
		return err
	}
	r.logger.Info("bootstrap started", "agents", len(out))
	if err := r.fanout(ctx, out); err != nil {
		return err
	}

	for {
		env, err := r.inbox.Get(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrMailboxClosed) {
				return nil
			}
			return fmt.Errorf("bootstrap interrupted in phase %s: %w", r.coord.Phase(), err)
		}

		before := r.coord.Phase()
		out, err := r.coord.Handle(env)
		if err != nil {
			r.logger.Error("handshake violation", "from", env.From, "error", err)
			return err
		}
		if len(out) == 0 {
			continue
		}

		r.logger.Info("barrier complete", "phase", before, "next", r.coord.Phase())
		if err := r.fanout(ctx, out); err != nil {
			return err
		}
		if r.coord.Phase() == PhaseStarted {
			close(r.started)
			return nil
		}
	}
}

func (r *Runner) fanout(ctx context.Context, envs []protocol.Envelope) error {
	res := Fanout(ctx, envs, r.timeout, r.transport.Send)
	if err := res.Err(); err != nil {
		r.logger.Error("fanout failed", "phase", r.coord.Phase(), "delivered", res.Delivered, "targets", res.Targets)
		return err
	}
	return nil
}
