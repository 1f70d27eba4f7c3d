package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"forkring/internal/protocol"
)

type recorder struct {
	mu     sync.Mutex
	got    []protocol.Envelope
	closed bool
}

func (r *recorder) Deliver(env protocol.Envelope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.got = append(r.got, env)
	return true
}

func (r *recorder) envelopes() []protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Envelope(nil), r.got...)
}

func TestNetwork_Routing(t *testing.T) {
	n := NewNetwork("local")
	rec := &recorder{}
	addr := n.Attach("agent-0", rec)
	if addr != "local/agent-0" {
		t.Fatalf("Expected local/agent-0, got %s", addr)
	}

	env := protocol.Envelope{From: "local/coordinator", To: addr, Message: protocol.NewStart("s")}
	if err := n.Send(context.Background(), env); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := rec.envelopes(); len(got) != 1 || got[0] != env {
		t.Errorf("Expected %v delivered, got %v", env, got)
	}

	err := n.Send(context.Background(), protocol.Envelope{To: "local/agent-9"})
	if !errors.Is(err, ErrUnknownAddress) {
		t.Errorf("Expected ErrUnknownAddress, got %v", err)
	}

	n.Detach(addr)
	if err := n.Send(context.Background(), env); !errors.Is(err, ErrUnknownAddress) {
		t.Errorf("Expected ErrUnknownAddress after Detach, got %v", err)
	}
}

func TestNetwork_ClosedReceiver(t *testing.T) {
	n := NewNetwork("local")
	addr := n.Attach("agent-0", &recorder{closed: true})
	if err := n.Send(context.Background(), protocol.Envelope{To: addr}); err == nil {
		t.Error("Expected error for a closed receiver")
	}
}

// slowTransport delays one destination to check it does not hold up others.
type slowTransport struct {
	next Transport
	slow string
}

func (s slowTransport) Send(ctx context.Context, env protocol.Envelope) error {
	if env.To == s.slow {
		time.Sleep(time.Millisecond)
	}
	return s.next.Send(ctx, env)
}

func TestOutbox_PerDestinationOrder(t *testing.T) {
	n := NewNetwork("local")
	fast, slow := &recorder{}, &recorder{}
	fastAddr := n.Attach("fast", fast)
	slowAddr := n.Attach("slow", slow)

	out := NewOutbox(context.Background(), slowTransport{next: n, slow: slowAddr}, func(err error) {
		t.Errorf("unexpected send error: %v", err)
	})
	for i := 0; i < 20; i++ {
		out.Post(protocol.Envelope{From: "local/a", To: slowAddr, Message: protocol.NewWireAck(i)})
		out.Post(protocol.Envelope{From: "local/a", To: fastAddr, Message: protocol.NewWireAck(i)})
	}
	out.Close()

	for name, rec := range map[string]*recorder{"fast": fast, "slow": slow} {
		got := rec.envelopes()
		if len(got) != 20 {
			t.Fatalf("%s: expected 20 envelopes after Close, got %d", name, len(got))
		}
		for i, env := range got {
			if env.Message.AgentID != i {
				t.Errorf("%s: position %d holds %d", name, i, env.Message.AgentID)
			}
		}
	}
}

func TestOutbox_ReportsErrors(t *testing.T) {
	n := NewNetwork("local")
	errs := make(chan error, 1)
	out := NewOutbox(context.Background(), n, func(err error) { errs <- err })
	out.Post(protocol.Envelope{From: "local/a", To: "local/nobody", Message: protocol.NewStart("s")})
	out.Close()

	select {
	case err := <-errs:
		if !errors.Is(err, ErrUnknownAddress) {
			t.Errorf("Expected wrapped ErrUnknownAddress, got %v", err)
		}
	default:
		t.Fatal("Expected an error report")
	}
}
