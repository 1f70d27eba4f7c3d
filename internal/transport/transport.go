package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"forkring/internal/protocol"
)

// ErrUnknownAddress is returned when no mailbox is attached at an address.
var ErrUnknownAddress = errors.New("unknown address")

// Transport delivers an envelope to env.To. Envelopes sent one after the
// other by the same goroutine to the same address arrive in that order.
type Transport interface {
	Send(ctx context.Context, env protocol.Envelope) error
}

// Deliverer accepts envelopes for one address. Deliver must not block and
// returns false once the receiver has shut down.
type Deliverer interface {
	Deliver(env protocol.Envelope) bool
}

// Network routes envelopes to deliverers attached in the same process.
type Network struct {
	mu    sync.RWMutex
	host  string
	boxes map[string]Deliverer // address -> deliverer
}

// NewNetwork creates a router for addresses under host.
func NewNetwork(host string) *Network {
	return &Network{
		host:  host,
		boxes: make(map[string]Deliverer),
	}
}

// Host returns the host part shared by all attached addresses.
func (n *Network) Host() string {
	return n.host
}

// Attach registers d under name and returns its full address.
func (n *Network) Attach(name string, d Deliverer) string {
	addr := protocol.JoinAddr(n.host, name)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.boxes[addr] = d
	return addr
}

// Detach removes the deliverer at addr.
func (n *Network) Detach(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.boxes, addr)
}

// Send hands env to the deliverer attached at env.To.
func (n *Network) Send(ctx context.Context, env protocol.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.mu.RLock()
	d, ok := n.boxes[env.To]
	n.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAddress, env.To)
	}
	if !d.Deliver(env) {
		return fmt.Errorf("mailbox %s is closed", env.To)
	}
	return nil
}
