package it

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"forkring/internal/cluster"
	"forkring/internal/config"
	"forkring/internal/logging"
	"forkring/internal/node"
)

// Summary mirrors the JSON summary printed by the forkring binary.
type Summary struct {
	Mode     string         `json:"mode"`
	Session  string         `json:"session"`
	Agents   int            `json:"agents"`
	Hosts    []string       `json:"hosts"`
	Meals    map[string]int `json:"meals"`
	Elapsed  string         `json:"elapsed"`
	Verified bool           `json:"verified"`
	Error    string         `json:"error"`
}

// Process is a forkring binary running in grpc mode.
type Process struct {
	Addr    string
	cmd     *exec.Cmd
	logFile *os.File
	stdout  bytes.Buffer
	clients *node.ClientManager
	exited  chan struct{}
	once    sync.Once
}

// FreePort returns a TCP port that was free a moment ago.
func FreePort() (int, error) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port, nil
}

// StartProcess launches the binary in grpc mode on a free port. Extra
// flags are appended after the harness's own.
func StartProcess(ctx context.Context, binaryPath string, args ...string) (*Process, error) {
	logDir := filepath.Join(".local", "it-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	port, err := FreePort()
	if err != nil {
		return nil, fmt.Errorf("failed to find a free port: %w", err)
	}
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	logFile, err := os.Create(filepath.Join(logDir, fmt.Sprintf("forkring-%d.log", port)))
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	flags := append([]string{"--mode", "grpc", "--listen", addr, "--summary", "json"}, args...)
	p := &Process{
		Addr:    addr,
		cmd:     exec.CommandContext(ctx, binaryPath, flags...),
		logFile: logFile,
		clients: node.NewClientManager(),
		exited:  make(chan struct{}),
	}
	p.cmd.Stdout = &p.stdout
	p.cmd.Stderr = logFile

	if err := p.cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to start %s: %w", binaryPath, err)
	}
	go func() {
		p.cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

// WaitForReady waits for the process's gRPC node to report SERVING.
func (p *Process) WaitForReady(ctx context.Context, timeout time.Duration) error {
	return cluster.WaitServing(ctx, p.clients, p.Addr, timeout)
}

// Wait waits for the process to exit and decodes its summary. A non-zero
// exit status is not an error as long as a summary was printed.
func (p *Process) Wait(timeout time.Duration) (*Summary, error) {
	select {
	case <-p.exited:
	case <-time.After(timeout):
		p.Stop()
		return nil, fmt.Errorf("process on %s did not exit within %v", p.Addr, timeout)
	}
	p.release()

	var sum Summary
	if err := json.Unmarshal(p.stdout.Bytes(), &sum); err != nil {
		return nil, fmt.Errorf("failed to decode summary %q: %w", p.stdout.String(), err)
	}
	return &sum, nil
}

// Stop kills the process if it is still running.
func (p *Process) Stop() {
	select {
	case <-p.exited:
	default:
		p.cmd.Process.Kill()
		<-p.exited
	}
	p.release()
}

func (p *Process) release() {
	p.once.Do(func() {
		p.clients.Close()
		p.logFile.Close()
	})
}

// InProcess is a cluster running inside the test binary.
type InProcess struct {
	*cluster.Cluster
	cancel context.CancelFunc
	done   chan error
}

// StartInProcess builds a cluster from cfg and runs it in the background.
func StartInProcess(ctx context.Context, cfg config.Config) (*InProcess, error) {
	c, err := cluster.New(cfg, logging.NoOp{})
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	ip := &InProcess{Cluster: c, cancel: cancel, done: make(chan error, 1)}
	go func() { ip.done <- c.Run(ctx) }()
	return ip, nil
}

// Wait returns the result of Run, or an error after timeout.
func (ip *InProcess) Wait(timeout time.Duration) error {
	select {
	case err := <-ip.done:
		return err
	case <-time.After(timeout):
		ip.cancel()
		<-ip.done
		return fmt.Errorf("cluster did not finish within %v", timeout)
	}
}

// Stop cancels the run and waits for it to end.
func (ip *InProcess) Stop() {
	ip.cancel()
}
