package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forkring/internal/philosopher"
	"forkring/internal/ring"
)

func options(n int, seed int64) Options {
	return Options{
		Agents:  n,
		Seed:    seed,
		Think:   philosopher.DelayRange{Min: 10 * time.Millisecond, Max: 40 * time.Millisecond},
		Eat:     philosopher.DelayRange{Min: 5 * time.Millisecond, Max: 25 * time.Millisecond},
		Latency: philosopher.DelayRange{Min: time.Millisecond, Max: 5 * time.Millisecond},
	}
}

func TestRun_NoStarvation(t *testing.T) {
	for _, n := range []int{2, 5, 50} {
		for _, seed := range []int64{1, 7, 42} {
			opts := options(n, seed)
			opts.Meals = 3

			report, err := Run(opts)
			require.NoError(t, err, "n=%d seed=%d", n, seed)
			for agent := 0; agent < n; agent++ {
				assert.GreaterOrEqual(t, report.Meals[agent], 3, "n=%d seed=%d agent=%d", n, seed, agent)
			}
			assert.NoError(t, report.Ledger.Verify(), "n=%d seed=%d", n, seed)
			assert.Empty(t, report.Ledger.AdjacentOverlaps(report.Ring), "n=%d seed=%d", n, seed)
		}
	}
}

func TestRun_TwoAgentsHundredCycles(t *testing.T) {
	opts := options(2, 3)
	opts.Meals = 100

	report, err := Run(opts)
	require.NoError(t, err)
	require.NoError(t, report.Ledger.Verify())

	assert.GreaterOrEqual(t, report.Meals[0], 100)
	assert.GreaterOrEqual(t, report.Meals[1], 100)
	assert.Empty(t, report.Ledger.AdjacentOverlaps(report.Ring))

	// Both forks are accounted for: each is held or in flight.
	custody := report.Ledger.Custody()
	require.Len(t, custody, 2)
	for _, c := range custody {
		held := 0
		if c.Holder >= 0 {
			held = 1
		}
		assert.Equal(t, held, c.Acquired-c.Released, "fork %d", c.Fork)
	}

	// Neither agent stays hungry for long: a hungry agent waits for at
	// most one meal of its neighbor plus message delays.
	bound := 10 * (opts.Eat.Max + 2*opts.Latency.Max)
	assert.Less(t, report.Ledger.MaxWait(0), bound)
	assert.Less(t, report.Ledger.MaxWait(1), bound)
}

func TestRun_FiveAgentsAdjacentMealsDisjoint(t *testing.T) {
	opts := options(5, 2024)
	opts.Meals = 20

	report, err := Run(opts)
	require.NoError(t, err)

	assert.Empty(t, report.Ledger.AdjacentOverlaps(report.Ring))

	// Non-neighbors share no fork and do get to eat at the same time.
	r := report.Ring
	concurrent := 0
	for i, a := range report.Intervals {
		for _, b := range report.Intervals[i+1:] {
			if a.Agent != b.Agent && r.Left(a.Agent) != b.Agent && r.Right(a.Agent) != b.Agent && a.Overlaps(b) {
				concurrent++
			}
		}
	}
	assert.Positive(t, concurrent, "expected some concurrent meals of non-adjacent agents")
}

func TestRun_Deterministic(t *testing.T) {
	first, err := Run(options(5, 99))
	require.NoError(t, err)
	second, err := Run(options(5, 99))
	require.NoError(t, err)

	assert.Equal(t, first.Session, second.Session)
	assert.Equal(t, first.Events, second.Events)
	assert.Equal(t, first.Elapsed, second.Elapsed)
	assert.Equal(t, first.Intervals, second.Intervals)

	other, err := Run(options(5, 100))
	require.NoError(t, err)
	assert.NotEqual(t, first.Session, other.Session)
}

// dirtyBits checks every release against the dirty flag it reports and
// every meal end against the forks held.
type dirtyBits struct {
	t        *testing.T
	released int
}

func (d *dirtyBits) StateChanged(int, philosopher.State, philosopher.State) {}
func (d *dirtyBits) ForkAcquired(int, int)                                  {}
func (d *dirtyBits) ForkReleased(agent, forkID int, dirty bool) {
	d.released++
	assert.True(d.t, dirty, "agent %d released clean fork %d", agent, forkID)
}

func TestRun_OnlyDirtyForksTravel(t *testing.T) {
	obs := &dirtyBits{t: t}
	opts := options(7, 11)
	opts.Meals = 10
	opts.Observer = obs

	_, err := Run(opts)
	require.NoError(t, err)
	assert.Positive(t, obs.released)
}

func TestRun_EventBudget(t *testing.T) {
	opts := options(5, 1)
	opts.Meals = 1000
	opts.MaxEvents = 500

	report, err := Run(opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEventBudget))
	require.NotNil(t, report)
	assert.Equal(t, 500, report.Events)
}

func TestRun_InvalidOptions(t *testing.T) {
	_, err := Run(options(1, 1))
	assert.ErrorIs(t, err, ring.ErrTooFewAgents)

	opts := options(3, 1)
	opts.Latency = philosopher.DelayRange{Min: time.Millisecond, Max: opts.Think.Min}
	_, err = Run(opts)
	assert.Error(t, err)

	opts = options(3, 1)
	opts.Eat = philosopher.DelayRange{Min: time.Second, Max: time.Millisecond}
	_, err = Run(opts)
	assert.Error(t, err)
}
