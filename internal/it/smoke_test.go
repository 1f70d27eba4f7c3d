package it

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"forkring/internal/config"
	"forkring/internal/node"
	"forkring/internal/philosopher"
)

func TestSmoke_InProcessGRPC(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg := config.Default()
	cfg.Transport = config.TransportGRPC
	cfg.Agents = 6
	cfg.Nodes = 3
	cfg.Meals = 3
	cfg.Think = philosopher.DelayRange{Min: 20 * time.Millisecond, Max: 40 * time.Millisecond}
	cfg.Eat = philosopher.DelayRange{Min: 2 * time.Millisecond, Max: 8 * time.Millisecond}

	ip, err := StartInProcess(ctx, cfg)
	require.NoError(t, err)
	defer ip.Stop()

	select {
	case <-ip.Ready():
	case <-ctx.Done():
		t.Fatal("Bootstrap did not complete")
	}

	clients := node.NewClientManager()
	defer clients.Close()
	for _, host := range ip.Hosts() {
		st, err := clients.CheckHealth(ctx, host)
		if err == nil {
			// The run may already have ended and stopped the node.
			assert.Contains(t, []healthpb.HealthCheckResponse_ServingStatus{
				healthpb.HealthCheckResponse_SERVING,
				healthpb.HealthCheckResponse_NOT_SERVING,
			}, st)
		}
	}

	require.NoError(t, ip.Wait(45*time.Second))

	led := ip.Ledger()
	assert.True(t, led.AllAte(cfg.Agents, cfg.Meals), "meals: %v", led.Meals())
	assert.NoError(t, led.Verify())
	assert.Empty(t, led.AdjacentOverlaps(ip.Ring()))
}

func TestSmoke_Binary(t *testing.T) {
	binaryPath := "./forkring"
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		t.Skip("Binary not found, skipping integration test. Build with: go build -o internal/it/forkring ./cmd/forkring")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	const agents = 5
	p, err := StartProcess(ctx, binaryPath,
		"--agents", fmt.Sprint(agents),
		"--meals", "20",
		"--think", "20ms..40ms",
		"--eat", "5ms..10ms",
	)
	require.NoError(t, err)
	defer p.Stop()

	require.NoError(t, p.WaitForReady(ctx, 10*time.Second), "node never reported SERVING")

	sum, err := p.Wait(time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "grpc", sum.Mode)
	assert.Equal(t, agents, sum.Agents)
	assert.Equal(t, []string{p.Addr}, sum.Hosts)
	assert.Empty(t, sum.Error)
	assert.True(t, sum.Verified)
	for i := 0; i < agents; i++ {
		assert.GreaterOrEqual(t, sum.Meals[fmt.Sprint(i)], 20, "agent %d", i)
	}
}
