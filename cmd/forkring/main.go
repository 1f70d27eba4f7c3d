// Command forkring runs a ring of dining philosophers using the
// Chandy/Misra hygienic protocol, either live (in-process or over gRPC)
// or as a deterministic simulation.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"forkring/internal/cluster"
	"forkring/internal/config"
	"forkring/internal/ledger"
	"forkring/internal/logging"
	"forkring/internal/sim"
)

const modeSim = "sim"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// options are the flags that do not map onto config.Config.
type options struct {
	mode    string
	summary string
}

// summary is printed once the run ends.
type summary struct {
	Mode     string      `json:"mode"`
	Session  string      `json:"session"`
	Agents   int         `json:"agents"`
	Hosts    []string    `json:"hosts,omitempty"`
	Meals    map[int]int `json:"meals"`
	Events   int         `json:"events,omitempty"`
	Elapsed  string      `json:"elapsed"`
	Verified bool        `json:"verified"`
	Error    string      `json:"error,omitempty"`
}

func parseArguments(args []string, stderr io.Writer) (config.Config, options, error) {
	cfg := config.Default()
	var opts options

	fs := flag.NewFlagSet("forkring", flag.ContinueOnError)
	fs.SetOutput(stderr)

	think, eat, latency := cfg.Think.String(), cfg.Eat.String(), cfg.Latency.String()
	var transport string

	fs.StringVar(&opts.mode, "mode", string(config.TransportLocal), "Run mode: local, grpc or sim")
	fs.StringVar(&opts.summary, "summary", "text", "Summary format: text or json")
	fs.IntVar(&cfg.Agents, "agents", cfg.Agents, "Number of philosophers (at least 2)")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "Listen address of the first gRPC node")
	fs.IntVar(&cfg.Nodes, "nodes", cfg.Nodes, "Number of gRPC nodes (grpc mode)")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Seed for think/eat durations and simulated latency")
	fs.StringVar(&think, "think", think, "Think duration range, e.g. 10ms..50ms (minimum at least 10ms)")
	fs.StringVar(&eat, "eat", eat, "Eat duration range, e.g. 10ms..30ms")
	fs.StringVar(&latency, "latency", latency, "Message latency range (sim mode)")
	fs.IntVar(&cfg.Meals, "meals", cfg.Meals, "Stop once every philosopher has eaten this many times (0 = no limit)")
	fs.DurationVar(&cfg.Duration, "duration", cfg.Duration, "Stop after this long (0 = no limit)")
	fs.IntVar(&cfg.MaxEvents, "max-events", cfg.MaxEvents, "Event budget of a simulation")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")

	if err := fs.Parse(args); err != nil {
		return cfg, opts, err
	}

	var err error
	if cfg.Think, err = config.ParseRange(think); err != nil {
		return cfg, opts, fmt.Errorf("--think: %w", err)
	}
	if cfg.Eat, err = config.ParseRange(eat); err != nil {
		return cfg, opts, fmt.Errorf("--eat: %w", err)
	}
	if cfg.Latency, err = config.ParseRange(latency); err != nil {
		return cfg, opts, fmt.Errorf("--latency: %w", err)
	}

	transport = opts.mode
	if opts.mode == modeSim {
		transport = string(config.TransportLocal)
	}
	if cfg.Transport, err = config.ParseTransport(transport); err != nil {
		return cfg, opts, fmt.Errorf("--mode: %w", err)
	}
	if opts.summary != "text" && opts.summary != "json" {
		return cfg, opts, fmt.Errorf("--summary: unknown format %q", opts.summary)
	}
	return cfg, opts, cfg.Validate()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, opts, err := parseArguments(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "forkring: %v\n", err)
		return 2
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger := logging.New(level, cfg.LogFormat, stderr)

	var sum summary
	if opts.mode == modeSim {
		sum = runSim(cfg)
	} else {
		sum = runCluster(ctx, cfg, logger)
	}
	sum.Mode = opts.mode
	sum.Agents = cfg.Agents

	if err := printSummary(stdout, opts.summary, sum); err != nil {
		fmt.Fprintf(stderr, "forkring: %v\n", err)
		return 1
	}
	if sum.Error != "" || !sum.Verified {
		return 1
	}
	return 0
}

func runSim(cfg config.Config) summary {
	report, err := sim.Run(sim.Options{
		Agents:    cfg.Agents,
		Seed:      cfg.Seed,
		Think:     cfg.Think,
		Eat:       cfg.Eat,
		Latency:   cfg.Latency,
		Meals:     cfg.Meals,
		MaxEvents: cfg.MaxEvents,
	})
	if report == nil {
		return summary{Error: err.Error()}
	}

	sum := summary{
		Session: report.Session,
		Meals:   report.Meals,
		Events:  report.Events,
		Elapsed: report.Elapsed.String(),
	}
	sum.Verified, sum.Error = verify(report.Ledger, err)
	if len(report.Ledger.AdjacentOverlaps(report.Ring)) > 0 {
		sum.Verified = false
	}
	return sum
}

func runCluster(ctx context.Context, cfg config.Config, logger logging.Logger) summary {
	c, err := cluster.New(cfg, logger)
	if err != nil {
		return summary{Error: err.Error()}
	}

	start := time.Now()
	err = c.Run(ctx)

	sum := summary{
		Session: c.Session(),
		Hosts:   c.Hosts(),
		Meals:   c.Ledger().Meals(),
		Elapsed: time.Since(start).Round(time.Millisecond).String(),
	}
	sum.Verified, sum.Error = verify(c.Ledger(), err)
	return sum
}

// verify combines the run error with the ledger check.
func verify(l *ledger.Ledger, runErr error) (bool, string) {
	verr := l.Verify()
	switch {
	case runErr != nil:
		return verr == nil, runErr.Error()
	case verr != nil:
		return false, verr.Error()
	default:
		return true, ""
	}
}

func printSummary(w io.Writer, format string, sum summary) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(sum)
	}

	agents := make([]int, 0, len(sum.Meals))
	for id := range sum.Meals {
		agents = append(agents, id)
	}
	sort.Ints(agents)
	meals := make([]string, 0, len(agents))
	for _, id := range agents {
		meals = append(meals, fmt.Sprintf("%d:%d", id, sum.Meals[id]))
	}

	fmt.Fprintf(w, "mode:     %s\n", sum.Mode)
	fmt.Fprintf(w, "session:  %s\n", sum.Session)
	fmt.Fprintf(w, "agents:   %d\n", sum.Agents)
	if len(sum.Hosts) > 0 {
		fmt.Fprintf(w, "hosts:    %s\n", strings.Join(sum.Hosts, ", "))
	}
	fmt.Fprintf(w, "meals:    %s\n", strings.Join(meals, " "))
	if sum.Events > 0 {
		fmt.Fprintf(w, "events:   %d\n", sum.Events)
	}
	fmt.Fprintf(w, "elapsed:  %s\n", sum.Elapsed)
	fmt.Fprintf(w, "verified: %v\n", sum.Verified)
	if sum.Error != "" {
		fmt.Fprintf(w, "error:    %s\n", sum.Error)
	}
	return nil
}
