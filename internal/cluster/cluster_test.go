package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forkring/internal/config"
	"forkring/internal/philosopher"
	"forkring/internal/ring"
)

func testConfig(agents, meals int) config.Config {
	cfg := config.Default()
	cfg.Agents = agents
	cfg.Meals = meals
	cfg.Think = philosopher.DelayRange{Min: 20 * time.Millisecond, Max: 30 * time.Millisecond}
	cfg.Eat = philosopher.DelayRange{Min: time.Millisecond, Max: 5 * time.Millisecond}
	return cfg
}

func TestCluster_LocalMeals(t *testing.T) {
	c, err := New(testConfig(5, 3), nil)
	require.NoError(t, err)
	assert.Empty(t, c.Hosts())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	require.NoError(t, c.Run(ctx))
	require.NoError(t, ctx.Err(), "run should stop on the meal target, not the timeout")

	select {
	case <-c.Ready():
	default:
		t.Fatal("Ready should be closed after a run")
	}
	assert.True(t, c.Ledger().AllAte(5, 3), "meals: %v", c.Ledger().Meals())
	assert.NoError(t, c.Ledger().Verify())
	assert.Empty(t, c.Ledger().AdjacentOverlaps(c.Ring()))
	assert.NotEmpty(t, c.Session())

	for i, snap := range c.Snapshots() {
		assert.Equal(t, i, snap.ID)
		assert.Equal(t, philosopher.Running, snap.Phase)
	}
}

func TestCluster_GRPCAcrossNodes(t *testing.T) {
	cfg := testConfig(4, 2)
	cfg.Transport = config.TransportGRPC
	cfg.Nodes = 2

	c, err := New(cfg, nil)
	require.NoError(t, err)
	require.Len(t, c.Hosts(), 2)
	assert.NotEqual(t, c.Hosts()[0], c.Hosts()[1])

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, c.Run(ctx))

	assert.True(t, c.Ledger().AllAte(4, 2), "meals: %v", c.Ledger().Meals())
	assert.NoError(t, c.Ledger().Verify())
}

func TestCluster_DurationStopsRun(t *testing.T) {
	cfg := testConfig(3, 0)
	cfg.Duration = 200 * time.Millisecond

	c, err := New(cfg, nil)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, c.Run(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), cfg.Duration)
	assert.NoError(t, c.Ledger().Verify())
}

func TestCluster_CancelStopsRun(t *testing.T) {
	c, err := New(testConfig(3, 0), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-c.Ready()
		cancel()
	}()
	assert.NoError(t, c.Run(ctx))
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(testConfig(1, 1), nil)
	assert.ErrorIs(t, err, ring.ErrTooFewAgents)
}
