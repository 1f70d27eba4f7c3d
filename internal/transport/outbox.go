package transport

import (
	"context"
	"fmt"
	"sync"

	"forkring/internal/protocol"
)

// Outbox sends envelopes through a Transport without blocking the caller.
// Each destination gets its own worker, so envelopes to one address leave
// in Post order while a slow destination does not hold up the others.
type Outbox struct {
	ctx       context.Context
	transport Transport
	onError   func(error)

	mu      sync.Mutex
	queues  map[string]*Mailbox[protocol.Envelope]
	wg      sync.WaitGroup
	stopped bool
}

// NewOutbox creates an outbox whose workers stop when ctx is done. onError
// is called once per failed send.
func NewOutbox(ctx context.Context, t Transport, onError func(error)) *Outbox {
	if onError == nil {
		onError = func(error) {}
	}
	return &Outbox{
		ctx:       ctx,
		transport: t,
		onError:   onError,
		queues:    make(map[string]*Mailbox[protocol.Envelope]),
	}
}

// Post queues env for delivery.
func (o *Outbox) Post(env protocol.Envelope) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopped {
		return
	}
	q, ok := o.queues[env.To]
	if !ok {
		q = NewMailbox[protocol.Envelope]()
		o.queues[env.To] = q
		o.wg.Add(1)
		go o.drain(q)
	}
	q.Put(env)
}

func (o *Outbox) drain(q *Mailbox[protocol.Envelope]) {
	defer o.wg.Done()
	for {
		env, err := q.Get(o.ctx)
		if err != nil {
			return
		}
		if err := o.transport.Send(o.ctx, env); err != nil {
			if o.ctx.Err() != nil {
				return
			}
			o.onError(fmt.Errorf("send %s to %s: %w", env.Message.Kind, env.To, err))
		}
	}
}

// Close flushes queued envelopes and waits for the workers to exit.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.stopped = true
	for _, q := range o.queues {
		q.Close()
	}
	o.mu.Unlock()

	o.wg.Wait()
}
