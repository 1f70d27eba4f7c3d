package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"forkring/internal/clock"
	"forkring/internal/philosopher"
	"forkring/internal/ring"
)

var (
	// ErrMutualExclusion: a fork was acquired while another agent held it,
	// or released by an agent that did not hold it.
	ErrMutualExclusion = errors.New("mutual exclusion violated")
	// ErrConservation: acquisitions and releases of a fork do not balance.
	ErrConservation = errors.New("fork conservation violated")
	// ErrCleanTransfer: a clean fork was handed to a neighbor.
	ErrCleanTransfer = errors.New("clean fork transferred")
)

const noHolder = -1

// Custody is the record of one fork.
type Custody struct {
	Fork     int
	Holder   int // -1 while in transit
	Acquired int
	Released int
}

// Interval is one meal, half-open: [Start, End). Open intervals have not
// ended yet.
type Interval struct {
	Agent int
	Start time.Time
	End   time.Time
	Open  bool
}

// Overlaps reports whether two meals share an instant. Open intervals
// extend to infinity.
func (iv Interval) Overlaps(other Interval) bool {
	return (iv.Open || other.Start.Before(iv.End)) &&
		(other.Open || iv.Start.Before(other.End))
}

// Overlap is a pair of meals of neighboring agents that intersect.
type Overlap struct {
	A, B Interval
}

// Ledger is a thread-safe Observer that keeps the custody history.
type Ledger struct {
	mu    sync.Mutex
	clock clock.Clock

	forks       map[int]*Custody
	states      map[int]philosopher.State
	meals       map[int]int
	intervals   []Interval
	open        map[int]int       // agent -> index into intervals
	hungrySince map[int]time.Time // agent -> start of current hunger
	maxWait     map[int]time.Duration
	violations  []error
}

// New creates an empty ledger reading time from c.
func New(c clock.Clock) *Ledger {
	if c == nil {
		c = clock.Wall{}
	}
	return &Ledger{
		clock:       c,
		forks:       make(map[int]*Custody),
		states:      make(map[int]philosopher.State),
		meals:       make(map[int]int),
		open:        make(map[int]int),
		hungrySince: make(map[int]time.Time),
		maxWait:     make(map[int]time.Duration),
	}
}

func (l *Ledger) custody(forkID int) *Custody {
	c, ok := l.forks[forkID]
	if !ok {
		c = &Custody{Fork: forkID, Holder: noHolder}
		l.forks[forkID] = c
	}
	return c
}

// StateChanged records hunger and meal boundaries.
func (l *Ledger) StateChanged(agent int, from, to philosopher.State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	l.states[agent] = to

	if from == philosopher.Hungry {
		if since, ok := l.hungrySince[agent]; ok {
			if wait := now.Sub(since); wait > l.maxWait[agent] {
				l.maxWait[agent] = wait
			}
			delete(l.hungrySince, agent)
		}
	}
	if from == philosopher.Eating {
		if idx, ok := l.open[agent]; ok {
			l.intervals[idx].End = now
			l.intervals[idx].Open = false
			delete(l.open, agent)
		}
	}

	switch to {
	case philosopher.Hungry:
		l.hungrySince[agent] = now
	case philosopher.Eating:
		l.meals[agent]++
		l.open[agent] = len(l.intervals)
		l.intervals = append(l.intervals, Interval{Agent: agent, Start: now, Open: true})
	}
}

// ForkAcquired records agent taking custody of forkID.
func (l *Ledger) ForkAcquired(agent, forkID int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.custody(forkID)
	if c.Holder != noHolder {
		l.violations = append(l.violations, fmt.Errorf("%w: agent %d acquired fork %d held by agent %d",
			ErrMutualExclusion, agent, forkID, c.Holder))
	}
	c.Holder = agent
	c.Acquired++
}

// ForkReleased records agent handing forkID to its neighbor.
func (l *Ledger) ForkReleased(agent, forkID int, dirty bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.custody(forkID)
	if c.Holder != agent {
		l.violations = append(l.violations, fmt.Errorf("%w: agent %d released fork %d held by agent %d",
			ErrMutualExclusion, agent, forkID, c.Holder))
	}
	if !dirty {
		l.violations = append(l.violations, fmt.Errorf("%w: agent %d released fork %d", ErrCleanTransfer, agent, forkID))
	}
	c.Holder = noHolder
	c.Released++
}

// Verify returns every recorded violation plus any fork whose
// acquisitions and releases do not balance.
func (l *Ledger) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	errs := append([]error(nil), l.violations...)
	for _, id := range l.forkIDs() {
		c := l.forks[id]
		held := 0
		if c.Holder != noHolder {
			held = 1
		}
		if c.Acquired-c.Released != held {
			errs = append(errs, fmt.Errorf("%w: fork %d acquired %d released %d held %v",
				ErrConservation, id, c.Acquired, c.Released, held == 1))
		}
	}
	return errors.Join(errs...)
}

func (l *Ledger) forkIDs() []int {
	ids := make([]int, 0, len(l.forks))
	for id := range l.forks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Holder returns the agent holding forkID, or false while it is in
// transit or unknown.
func (l *Ledger) Holder(forkID int) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.forks[forkID]
	if !ok || c.Holder == noHolder {
		return noHolder, false
	}
	return c.Holder, true
}

// Custody returns the records of every fork seen, ordered by fork id.
func (l *Ledger) Custody() []Custody {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Custody, 0, len(l.forks))
	for _, id := range l.forkIDs() {
		out = append(out, *l.forks[id])
	}
	return out
}

// Meals returns the number of meals started per agent.
func (l *Ledger) Meals() map[int]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[int]int, len(l.meals))
	for agent, n := range l.meals {
		out[agent] = n
	}
	return out
}

// AllAte reports whether each of agents 0..n-1 started at least k meals.
func (l *Ledger) AllAte(n, k int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for agent := 0; agent < n; agent++ {
		if l.meals[agent] < k {
			return false
		}
	}
	return true
}

// State returns the last reported state of agent.
func (l *Ledger) State(agent int) philosopher.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.states[agent]
}

// MaxWait returns the longest completed hunger of agent.
func (l *Ledger) MaxWait(agent int) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxWait[agent]
}

// Intervals returns every meal ordered by start time.
func (l *Ledger) Intervals() []Interval {
	l.mu.Lock()
	out := append([]Interval(nil), l.intervals...)
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// AdjacentOverlaps returns every pair of intersecting meals of agents that
// are neighbors in r. A correct run returns none.
func (l *Ledger) AdjacentOverlaps(r *ring.Ring) []Overlap {
	byAgent := make(map[int][]Interval)
	for _, iv := range l.Intervals() {
		byAgent[iv.Agent] = append(byAgent[iv.Agent], iv)
	}

	var out []Overlap
	for agent := 0; agent < r.Size(); agent++ {
		// In a 2-ring the only pair is (0, 1).
		if r.Size() == 2 && agent == 1 {
			continue
		}
		right := r.Right(agent)
		for _, a := range byAgent[agent] {
			for _, b := range byAgent[right] {
				if a.Overlaps(b) {
					out = append(out, Overlap{A: a, B: b})
				}
			}
		}
	}
	return out
}
