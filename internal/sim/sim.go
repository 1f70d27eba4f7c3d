package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"forkring/internal/clock"
	"forkring/internal/coordinator"
	"forkring/internal/ledger"
	"forkring/internal/philosopher"
	"forkring/internal/protocol"
	"forkring/internal/ring"
)

const (
	host            = "sim"
	coordinatorName = "coordinator"
)

// Epoch is the virtual time every simulation starts at.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ErrEventBudget is returned when MaxEvents fire before every agent has
// eaten the requested number of meals.
var ErrEventBudget = errors.New("event budget exhausted")

// Options configures a simulation.
type Options struct {
	Agents int
	Seed   int64
	Think  philosopher.DelayRange
	Eat    philosopher.DelayRange
	// Latency delays each message. Its maximum must stay below
	// Think.Min, otherwise a request could overtake the requester's
	// neighbor's Start.
	Latency philosopher.DelayRange
	// Meals is the number of meals every agent must start. Zero means one.
	Meals int
	// MaxEvents bounds the number of fired events. Zero means 1,000,000.
	MaxEvents int
	// Observer additionally receives every agent notification.
	Observer philosopher.Observer
}

// Report summarizes a run.
type Report struct {
	Session   string
	Meals     map[int]int
	Intervals []ledger.Interval
	Ledger    *ledger.Ledger
	Ring      *ring.Ring
	// Events is the number of deliveries and timer expiries processed.
	Events  int
	Elapsed time.Duration
}

func (o *Options) validate() error {
	for name, r := range map[string]philosopher.DelayRange{"think": o.Think, "eat": o.Eat, "latency": o.Latency} {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if o.Latency.Max >= o.Think.Min {
		return fmt.Errorf("latency maximum %v must be below think minimum %v", o.Latency.Max, o.Think.Min)
	}
	if o.Meals < 0 || o.MaxEvents < 0 {
		return errors.New("meals and max events cannot be negative")
	}
	if o.Meals == 0 {
		o.Meals = 1
	}
	if o.MaxEvents == 0 {
		o.MaxEvents = 1_000_000
	}
	return nil
}

// world is the mutable state of one run. Everything happens on the
// goroutine that steps the clock.
type world struct {
	clock   *clock.Manual
	latency *rand.Rand
	opts    Options

	coord     *coordinator.Coordinator
	coordAddr string
	agents    map[string]*philosopher.Agent
	// lastDelivery keeps per-pair FIFO: pair -> latest scheduled delivery.
	lastDelivery map[[2]string]time.Time

	events int
	err    error
}

// Run simulates a ring until every agent has eaten opts.Meals times.
func Run(opts Options) (*Report, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	r, err := ring.New(opts.Agents)
	if err != nil {
		return nil, err
	}

	session, err := uuid.NewRandomFromReader(rand.New(rand.NewSource(opts.Seed)))
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}

	clk := clock.NewManual(Epoch)
	led := ledger.New(clk)
	var obs philosopher.Observer = led
	if opts.Observer != nil {
		obs = multiObserver{led, opts.Observer}
	}

	w := &world{
		clock:        clk,
		latency:      rand.New(rand.NewSource(opts.Seed)),
		opts:         opts,
		coordAddr:    protocol.JoinAddr(host, coordinatorName),
		agents:       make(map[string]*philosopher.Agent, opts.Agents),
		lastDelivery: make(map[[2]string]time.Time),
	}

	addrs := make([]string, opts.Agents)
	for i := range addrs {
		addrs[i] = protocol.JoinAddr(host, fmt.Sprintf("agent-%d", i))
		w.agents[addrs[i]] = philosopher.New(philosopher.Config{
			Self:        addrs[i],
			Coordinator: w.coordAddr,
			Delays:      philosopher.NewRandomDelays(opts.Seed+int64(i)+1, opts.Think, opts.Eat),
			Observer:    obs,
		})
	}

	w.coord, err = coordinator.New(r, w.coordAddr, session.String(), addrs)
	if err != nil {
		return nil, err
	}
	inits, err := w.coord.Begin()
	if err != nil {
		return nil, err
	}
	w.dispatch(inits)

	done := func() bool {
		return w.err != nil || led.AllAte(opts.Agents, opts.Meals)
	}
	clk.RunUntil(done, opts.MaxEvents)

	report := &Report{
		Session:   session.String(),
		Meals:     led.Meals(),
		Intervals: led.Intervals(),
		Ledger:    led,
		Ring:      r,
		Events:    w.events,
		Elapsed:   clk.Now().Sub(Epoch),
	}
	if w.err != nil {
		return report, w.err
	}
	if !led.AllAte(opts.Agents, opts.Meals) {
		return report, fmt.Errorf("%w after %d events: meals %v", ErrEventBudget, w.events, report.Meals)
	}
	return report, nil
}

// dispatch schedules delivery of each envelope after a sampled latency.
func (w *world) dispatch(envs []protocol.Envelope) {
	now := w.clock.Now()
	for _, env := range envs {
		at := now.Add(w.opts.Latency.Sample(w.latency))
		pair := [2]string{env.From, env.To}
		if last, ok := w.lastDelivery[pair]; ok && at.Before(last) {
			at = last
		}
		w.lastDelivery[pair] = at

		env := env
		w.clock.AfterFunc(at.Sub(now), func() { w.deliver(env) })
	}
}

func (w *world) deliver(env protocol.Envelope) {
	if w.err != nil {
		return
	}
	w.events++

	if env.To == w.coordAddr {
		out, err := w.coord.Handle(env)
		if err != nil {
			w.err = err
			return
		}
		w.dispatch(out)
		return
	}

	agent, ok := w.agents[env.To]
	if !ok {
		w.err = fmt.Errorf("no agent at %s", env.To)
		return
	}
	w.apply(agent, philosopher.MessageEvent(env))
}

func (w *world) apply(agent *philosopher.Agent, ev philosopher.Event) {
	fx, err := agent.Handle(ev)
	if err != nil {
		w.err = err
		return
	}
	w.dispatch(fx.Sends)
	if fx.Arm {
		w.clock.AfterFunc(fx.Timer, func() {
			if w.err != nil {
				return
			}
			w.events++
			w.apply(agent, philosopher.TimeoutEvent())
		})
	}
}

type multiObserver []philosopher.Observer

func (m multiObserver) StateChanged(agent int, from, to philosopher.State) {
	for _, o := range m {
		o.StateChanged(agent, from, to)
	}
}

func (m multiObserver) ForkAcquired(agent, forkID int) {
	for _, o := range m {
		o.ForkAcquired(agent, forkID)
	}
}

func (m multiObserver) ForkReleased(agent, forkID int, dirty bool) {
	for _, o := range m {
		o.ForkReleased(agent, forkID, dirty)
	}
}
