package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestRun_SimJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--mode", "sim", "--agents", "5", "--meals", "4", "--seed", "9", "--summary", "json",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("Exit code %d, stderr: %s, stdout: %s", code, stderr.String(), stdout.String())
	}

	var sum struct {
		Mode     string         `json:"mode"`
		Session  string         `json:"session"`
		Agents   int            `json:"agents"`
		Meals    map[string]int `json:"meals"`
		Verified bool           `json:"verified"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &sum); err != nil {
		t.Fatalf("Summary is not JSON: %v: %s", err, stdout.String())
	}
	if sum.Mode != "sim" || sum.Agents != 5 || !sum.Verified || sum.Session == "" {
		t.Errorf("Unexpected summary: %+v", sum)
	}
	for _, id := range []string{"0", "1", "2", "3", "4"} {
		if sum.Meals[id] < 4 {
			t.Errorf("Agent %s ate %d times", id, sum.Meals[id])
		}
	}
}

func TestRun_LocalText(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"--agents", "3", "--meals", "2", "--think", "20ms..30ms", "--eat", "1ms..3ms", "--log-level", "warn",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("Exit code %d, stderr: %s, stdout: %s", code, stderr.String(), stdout.String())
	}
	if !strings.Contains(stdout.String(), "verified: true") {
		t.Errorf("Expected verified run, got:\n%s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "mode:     local") {
		t.Errorf("Expected local mode, got:\n%s", stdout.String())
	}
}

func TestParseArguments_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "one agent", args: []string{"--agents", "1"}},
		{name: "unknown mode", args: []string{"--mode", "carrier-pigeon"}},
		{name: "bad range", args: []string{"--think", "slow"}},
		{name: "think below floor", args: []string{"--think", "0s..2ms"}},
		{name: "think below floor on grpc", args: []string{"--mode", "grpc", "--think", "1ms"}},
		{name: "bad summary", args: []string{"--summary", "yaml"}},
		{name: "unknown flag", args: []string{"--philosophers", "5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), tt.args, &stdout, &stderr); code != 2 {
				t.Errorf("Expected exit code 2, got %d", code)
			}
		})
	}
}

func TestParseArguments_SimUsesLocalTransport(t *testing.T) {
	var stderr bytes.Buffer
	cfg, opts, err := parseArguments([]string{"--mode", "sim", "--latency", "2ms"}, &stderr)
	if err != nil {
		t.Fatalf("parseArguments: %v", err)
	}
	if opts.mode != "sim" || cfg.Transport != "local" {
		t.Errorf("Expected sim mode on local transport, got %s/%s", opts.mode, cfg.Transport)
	}
	if cfg.Latency.Min != cfg.Latency.Max {
		t.Errorf("Expected fixed latency, got %v", cfg.Latency)
	}
}
