package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"forkring/internal/protocol"
)

const (
	// DefaultPerTargetTimeout bounds each delivery of a fanout.
	DefaultPerTargetTimeout = 2 * time.Second
)

// SendFunc delivers one envelope.
type SendFunc func(ctx context.Context, env protocol.Envelope) error

// FanoutResult represents the result of a fanout.
type FanoutResult struct {
	Success   bool
	Delivered int
	Targets   int
	Errors    []error
}

// Err returns nil on success and the joined delivery errors otherwise.
func (r FanoutResult) Err() error {
	if r.Success {
		return nil
	}
	if len(r.Errors) == 0 {
		return fmt.Errorf("fanout incomplete: delivered=%d targets=%d", r.Delivered, r.Targets)
	}
	return fmt.Errorf("fanout incomplete: delivered=%d targets=%d: %w", r.Delivered, r.Targets, errors.Join(r.Errors...))
}

// Fanout sends every envelope in parallel and succeeds only when all of
// them were delivered. Each delivery gets at most timeout (zero means
// DefaultPerTargetTimeout).
func Fanout(ctx context.Context, envs []protocol.Envelope, timeout time.Duration, send SendFunc) FanoutResult {
	if timeout <= 0 {
		timeout = DefaultPerTargetTimeout
	}

	var (
		mu        sync.Mutex
		delivered int
		errs      []error
		wg        sync.WaitGroup
	)

	targetCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, env := range envs {
		wg.Add(1)
		go func(env protocol.Envelope) {
			defer wg.Done()

			err := send(targetCtx, env)
			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				delivered++
			} else {
				errs = append(errs, fmt.Errorf("%s to %s: %w", env.Message.Kind, env.To, err))
			}
		}(env)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		mu.Lock()
		defer mu.Unlock()
		return FanoutResult{
			Delivered: delivered,
			Targets:   len(envs),
			Errors:    append(append([]error(nil), errs...), ctx.Err()),
		}
	}

	return FanoutResult{
		Success:   delivered == len(envs),
		Delivered: delivered,
		Targets:   len(envs),
		Errors:    errs,
	}
}
