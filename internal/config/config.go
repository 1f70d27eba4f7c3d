package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"forkring/internal/logging"
	"forkring/internal/philosopher"
	"forkring/internal/protocol"
	"forkring/internal/ring"
)

// MinThink is the shortest think time a live ring accepts. Start reaches
// the agents one by one, and a neighbor's first fork request must not
// arrive before an agent's own Start.
const MinThink = 10 * time.Millisecond

// Transport selects how agents exchange envelopes.
type Transport string

const (
	// TransportLocal routes envelopes in-process.
	TransportLocal Transport = "local"
	// TransportGRPC routes every envelope through a gRPC node.
	TransportGRPC Transport = "grpc"
)

// Config holds the cluster configuration.
type Config struct {
	Agents    int
	Transport Transport
	// ListenAddr is the address of the first gRPC node. With more than
	// one node its port must be 0.
	ListenAddr string
	// Nodes is the number of gRPC hosts the agents are spread over.
	Nodes int
	Seed  int64

	Think philosopher.DelayRange
	Eat   philosopher.DelayRange
	// Latency is only used by the simulator.
	Latency philosopher.DelayRange

	// Meals ends a run once every agent has started this many meals.
	// Zero runs until Duration elapses or the context is cancelled.
	Meals    int
	Duration time.Duration
	// MaxEvents bounds a simulation.
	MaxEvents int

	LogLevel  string
	LogFormat string
}

// Default returns a five-agent local configuration.
func Default() Config {
	return Config{
		Agents:     5,
		Transport:  TransportLocal,
		ListenAddr: "127.0.0.1:0",
		Nodes:      1,
		Seed:       1,
		Think:      philosopher.DelayRange{Min: 10 * time.Millisecond, Max: 50 * time.Millisecond},
		Eat:        philosopher.DelayRange{Min: 10 * time.Millisecond, Max: 30 * time.Millisecond},
		Latency:    philosopher.DelayRange{Min: time.Millisecond, Max: 5 * time.Millisecond},
		Meals:      3,
		MaxEvents:  1_000_000,
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// Validate checks the configuration before anything is created.
func (c *Config) Validate() error {
	if c.Agents < 2 {
		return fmt.Errorf("agents: %w (got %d)", ring.ErrTooFewAgents, c.Agents)
	}
	if c.Agents > protocol.MaxAgents {
		return fmt.Errorf("agents: %d exceeds the maximum of %d", c.Agents, protocol.MaxAgents)
	}
	if _, err := ParseTransport(string(c.Transport)); err != nil {
		return err
	}
	if c.Transport == TransportGRPC {
		if err := c.validateListen(); err != nil {
			return err
		}
	}
	for name, r := range map[string]philosopher.DelayRange{"think": c.Think, "eat": c.Eat, "latency": c.Latency} {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Think.Min < MinThink {
		return fmt.Errorf("think: minimum %v is below %v", c.Think.Min, MinThink)
	}
	if c.Meals < 0 {
		return fmt.Errorf("meals cannot be negative: %d", c.Meals)
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration cannot be negative: %v", c.Duration)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q (expected text or json)", c.LogFormat)
	}
	return nil
}

func (c *Config) validateListen() error {
	if c.Nodes < 1 {
		return fmt.Errorf("nodes must be at least 1: %d", c.Nodes)
	}
	if c.ListenAddr == "" {
		return errors.New("listen address required for grpc transport")
	}
	_, port, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return fmt.Errorf("invalid listen address %s: %w", c.ListenAddr, err)
	}
	if c.Nodes > 1 && port != "0" {
		return fmt.Errorf("listen address %s: %d nodes need port 0", c.ListenAddr, c.Nodes)
	}
	return nil
}

// ParseTransport parses a transport name.
func ParseTransport(s string) (Transport, error) {
	switch t := Transport(strings.ToLower(strings.TrimSpace(s))); t {
	case TransportLocal, TransportGRPC:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transport %q (expected local or grpc)", s)
	}
}

// ParseRange parses a delay range in the format "min..max", e.g.
// "10ms..50ms". A single duration means min == max.
func ParseRange(s string) (philosopher.DelayRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return philosopher.DelayRange{}, errors.New("delay range cannot be empty")
	}

	lo, hi, found := strings.Cut(s, "..")
	if !found {
		hi = lo
	}

	minDelay, err := time.ParseDuration(strings.TrimSpace(lo))
	if err != nil {
		return philosopher.DelayRange{}, fmt.Errorf("invalid delay range %s: %w", s, err)
	}
	maxDelay, err := time.ParseDuration(strings.TrimSpace(hi))
	if err != nil {
		return philosopher.DelayRange{}, fmt.Errorf("invalid delay range %s: %w", s, err)
	}

	r := philosopher.DelayRange{Min: minDelay, Max: maxDelay}
	if err := r.Validate(); err != nil {
		return philosopher.DelayRange{}, fmt.Errorf("invalid delay range %s: %w", s, err)
	}
	return r, nil
}
