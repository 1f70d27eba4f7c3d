package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrMailboxClosed is returned by Get once the mailbox is closed and drained.
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox is an unbounded FIFO queue. Put never blocks, so a sender can
// never deadlock against a slow receiver.
type Mailbox[T any] struct {
	mu     sync.Mutex
	queue  []T
	ready  chan struct{}
	closed bool
}

// NewMailbox creates an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{ready: make(chan struct{}, 1)}
}

// Put appends v. It returns false if the mailbox is closed.
func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, v)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

// Get removes and returns the oldest item, waiting until one is available,
// ctx is done, or the mailbox is closed and empty.
func (m *Mailbox[T]) Get(ctx context.Context) (T, error) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			v := m.queue[0]
			var zero T
			m.queue[0] = zero
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return v, nil
		}
		closed := m.closed
		m.mu.Unlock()

		var zero T
		if closed {
			return zero, ErrMailboxClosed
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-m.ready:
		}
	}
}

// Len returns the number of queued items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close rejects further Puts. Items already queued can still be read.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}
