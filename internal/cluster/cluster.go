package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"forkring/internal/clock"
	"forkring/internal/config"
	"forkring/internal/coordinator"
	"forkring/internal/ledger"
	"forkring/internal/logging"
	"forkring/internal/node"
	"forkring/internal/philosopher"
	"forkring/internal/protocol"
	"forkring/internal/ring"
	"forkring/internal/transport"
)

const (
	localHost       = "local"
	coordinatorName = "coordinator"
	pollInterval    = 5 * time.Millisecond
	healthTimeout   = 5 * time.Second
)

// errMealsReached stops the run group once the meal target is met.
var errMealsReached = errors.New("meal target reached")

// Cluster is a live ring of agents.
type Cluster struct {
	cfg    config.Config
	logger logging.Logger

	ring   *ring.Ring
	ledger *ledger.Ledger
	actors []*philosopher.Actor
	runner *coordinator.Runner

	nodes   []*node.Node
	clients *node.ClientManager
}

// New validates cfg and builds every component without starting any.
// In gRPC mode the nodes are already listening when New returns.
func New(cfg config.Config, logger logging.Logger) (*Cluster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NoOp{}
	}
	r, err := ring.New(cfg.Agents)
	if err != nil {
		return nil, err
	}

	c := &Cluster{
		cfg:    cfg,
		logger: logger,
		ring:   r,
		ledger: ledger.New(clock.Wall{}),
	}

	var (
		tr     transport.Transport
		hosts  []string
		attach []func(name string, d transport.Deliverer) string
	)
	switch cfg.Transport {
	case config.TransportGRPC:
		if err := c.listen(); err != nil {
			return nil, err
		}
		c.clients = node.NewClientManager()
		tr = c.clients
		for _, n := range c.nodes {
			hosts = append(hosts, n.Addr())
			attach = append(attach, n.Attach)
		}
	default:
		network := transport.NewNetwork(localHost)
		tr = network
		hosts = []string{network.Host()}
		attach = append(attach, network.Attach)
	}

	coordAddr := protocol.JoinAddr(hosts[0], coordinatorName)
	addrs := make([]string, cfg.Agents)
	c.actors = make([]*philosopher.Actor, cfg.Agents)
	for i := range c.actors {
		host := i % len(hosts)
		name := fmt.Sprintf("agent-%d", i)
		c.actors[i] = philosopher.NewActor(philosopher.ActorConfig{
			Agent: philosopher.Config{
				Self:        protocol.JoinAddr(hosts[host], name),
				Coordinator: coordAddr,
				Delays:      philosopher.NewRandomDelays(cfg.Seed+int64(i)+1, cfg.Think, cfg.Eat),
				Observer:    c.ledger,
			},
			Transport: tr,
			Logger:    logger.With("agent", i),
		})
		addrs[i] = attach[host](name, c.actors[i])
	}

	c.runner, err = coordinator.NewRunner(coordinator.RunnerConfig{
		Ring:      r,
		Self:      coordAddr,
		Agents:    addrs,
		Transport: tr,
		Logger:    logger.With("component", coordinatorName),
	})
	if err != nil {
		c.stopNodes()
		return nil, err
	}
	attach[0](coordinatorName, c.runner)
	return c, nil
}

// listen binds cfg.Nodes gRPC nodes.
func (c *Cluster) listen() error {
	for i := 0; i < c.cfg.Nodes; i++ {
		n := node.New(c.cfg.ListenAddr, c.logger.With("component", "node"))
		if err := n.Listen(); err != nil {
			c.stopNodes()
			return err
		}
		c.nodes = append(c.nodes, n)
	}
	return nil
}

func (c *Cluster) stopNodes() {
	for _, n := range c.nodes {
		n.Stop()
	}
}

// Session returns the bootstrap session id.
func (c *Cluster) Session() string { return c.runner.Session() }

// Ring returns the topology.
func (c *Cluster) Ring() *ring.Ring { return c.ring }

// Ledger returns the custody ledger shared by all agents.
func (c *Cluster) Ledger() *ledger.Ledger { return c.ledger }

// Ready is closed once every agent has been sent Start.
func (c *Cluster) Ready() <-chan struct{} { return c.runner.Started() }

// Hosts returns the gRPC node addresses, empty for the local transport.
func (c *Cluster) Hosts() []string {
	hosts := make([]string, 0, len(c.nodes))
	for _, n := range c.nodes {
		hosts = append(hosts, n.Addr())
	}
	return hosts
}

// Snapshots returns the current state of every agent.
func (c *Cluster) Snapshots() []philosopher.Snapshot {
	out := make([]philosopher.Snapshot, len(c.actors))
	for i, a := range c.actors {
		out[i] = a.Snapshot()
	}
	return out
}

// Run starts the ring and blocks until every agent has eaten cfg.Meals
// times, cfg.Duration has elapsed, ctx is cancelled, or an agent fails.
// Only the last case returns an error.
func (c *Cluster) Run(ctx context.Context) error {
	if c.cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Duration)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, n := range c.nodes {
		g.Go(n.Serve)
	}
	g.Go(func() error {
		<-gctx.Done()
		c.stopNodes()
		return nil
	})

	if err := c.waitHealthy(gctx); err != nil {
		g.Go(func() error { return err })
		return c.finish(ctx, g)
	}

	for _, a := range c.actors {
		g.Go(func() error { return a.Run(gctx) })
	}
	g.Go(func() error { return c.runner.Run(gctx) })

	if c.cfg.Meals > 0 {
		g.Go(func() error { return c.watchMeals(gctx) })
	}

	c.logger.Info("cluster started", "agents", c.cfg.Agents, "transport", c.cfg.Transport, "session", c.Session())
	return c.finish(ctx, g)
}

// finish waits for the group. Reaching the meal target and the end of
// ctx are normal stops.
func (c *Cluster) finish(ctx context.Context, g *errgroup.Group) error {
	err := g.Wait()
	if c.clients != nil {
		c.clients.Close()
	}
	if errors.Is(err, errMealsReached) {
		err = nil
	}
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		err = nil
	}
	c.logger.Info("cluster stopped", "meals", c.ledger.Meals(), "error", err)
	return err
}

func (c *Cluster) watchMeals(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if c.ledger.AllAte(c.cfg.Agents, c.cfg.Meals) {
				return errMealsReached
			}
		}
	}
}

// waitHealthy polls the health service of every node until it serves.
func (c *Cluster) waitHealthy(ctx context.Context) error {
	for _, n := range c.nodes {
		if err := WaitServing(ctx, c.clients, n.Addr(), healthTimeout); err != nil {
			return err
		}
	}
	return nil
}

// HealthChecker reports the serving status of a gRPC host.
type HealthChecker interface {
	CheckHealth(ctx context.Context, host string) (healthpb.HealthCheckResponse_ServingStatus, error)
}

// WaitServing blocks until host reports SERVING or timeout elapses.
func WaitServing(ctx context.Context, hc HealthChecker, host string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		st, err := hc.CheckHealth(ctx, host)
		if err == nil && st == healthpb.HealthCheckResponse_SERVING {
			return nil
		}
		select {
		case <-ctx.Done():
			if err == nil {
				err = fmt.Errorf("status %s", st)
			}
			return fmt.Errorf("node %s not serving: %w", host, err)
		case <-ticker.C:
		}
	}
}
