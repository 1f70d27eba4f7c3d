package protocol

import (
	"errors"
	"fmt"
	"strings"

	"forkring/internal/fork"
)

// MaxAgents bounds the ring size an Init may announce.
const MaxAgents = 1 << 16

// Kind tags a Message. The set is closed: handlers switch over every kind.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInit is sent by the coordinator to a freshly spawned agent.
	KindInit
	// KindRegister carries an agent's own address to the coordinator.
	KindRegister
	// KindWireNeighbors carries both neighbor addresses to an agent.
	KindWireNeighbors
	// KindWireAck confirms that an agent stored its neighbor addresses.
	KindWireAck
	// KindStart releases an agent into the think/eat cycle.
	KindStart
	// KindFork hands a fork to the neighbor sharing it.
	KindFork
	// KindForkRequest hands the request token for a fork to its holder.
	KindForkRequest
)

var kindNames = map[Kind]string{
	KindInit:          "init",
	KindRegister:      "register",
	KindWireNeighbors: "wire_neighbors",
	KindWireAck:       "wire_ack",
	KindStart:         "start",
	KindFork:          "fork",
	KindForkRequest:   "fork_request",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind maps a wire name back to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown message kind %q", s)
}

// IsPeer reports whether the kind travels between neighbors.
func (k Kind) IsPeer() bool {
	return k == KindFork || k == KindForkRequest
}

// IsHandshake reports whether the kind belongs to the bootstrap handshake.
func (k Kind) IsHandshake() bool {
	switch k {
	case KindInit, KindRegister, KindWireNeighbors, KindWireAck, KindStart:
		return true
	}
	return false
}

// Message is a tagged union over Kind. Only the fields documented for a
// kind are meaningful.
type Message struct {
	Kind Kind

	// Session identifies one bootstrap run (Init, Start).
	Session string
	// AgentID is the agent index (Init, Register, WireAck).
	AgentID int
	// Agents is the ring size N (Init).
	Agents int
	// Addr is the sender's own address (Register).
	Addr string
	// Left and Right are neighbor addresses (WireNeighbors).
	Left  string
	Right string
	// Fork is the token (Fork); ForkRequest only uses Fork.ID.
	Fork fork.Fork
}

// NewInit builds the Init message for agent id in a ring of n agents.
func NewInit(session string, id, n int) Message {
	return Message{Kind: KindInit, Session: session, AgentID: id, Agents: n}
}

// NewRegister builds the Register message an agent sends once after Init.
func NewRegister(id int, addr string) Message {
	return Message{Kind: KindRegister, AgentID: id, Addr: addr}
}

// NewWireNeighbors builds the WireNeighbors message.
func NewWireNeighbors(left, right string) Message {
	return Message{Kind: KindWireNeighbors, Left: left, Right: right}
}

// NewWireAck builds the WireAck message.
func NewWireAck(id int) Message {
	return Message{Kind: KindWireAck, AgentID: id}
}

// NewStart builds the Start message.
func NewStart(session string) Message {
	return Message{Kind: KindStart, Session: session}
}

// NewFork builds a Fork message carrying f.
func NewFork(f fork.Fork) Message {
	return Message{Kind: KindFork, Fork: f}
}

// NewForkRequest builds a ForkRequest for fork id.
func NewForkRequest(id int) Message {
	return Message{Kind: KindForkRequest, Fork: fork.Fork{ID: id}}
}

// Validate checks that the fields required by the kind are present.
func (m Message) Validate() error {
	switch m.Kind {
	case KindInit:
		if m.Agents < 2 || m.Agents > MaxAgents {
			return fmt.Errorf("init: ring size %d outside [2,%d]", m.Agents, MaxAgents)
		}
		if m.AgentID < 0 || m.AgentID >= m.Agents {
			return fmt.Errorf("init: agent id %d outside [0,%d)", m.AgentID, m.Agents)
		}
	case KindRegister:
		if m.AgentID < 0 {
			return fmt.Errorf("register: negative agent id %d", m.AgentID)
		}
		if m.Addr == "" {
			return errors.New("register: address cannot be empty")
		}
	case KindWireNeighbors:
		if m.Left == "" || m.Right == "" {
			return errors.New("wire_neighbors: neighbor addresses cannot be empty")
		}
	case KindWireAck:
		if m.AgentID < 0 {
			return fmt.Errorf("wire_ack: negative agent id %d", m.AgentID)
		}
	case KindStart:
	case KindFork, KindForkRequest:
		if m.Fork.ID < 0 {
			return fmt.Errorf("%s: negative fork id %d", m.Kind, m.Fork.ID)
		}
	default:
		return fmt.Errorf("unknown message kind %d", m.Kind)
	}
	return nil
}

func (m Message) String() string {
	switch m.Kind {
	case KindInit:
		return fmt.Sprintf("init(id=%d, n=%d)", m.AgentID, m.Agents)
	case KindRegister:
		return fmt.Sprintf("register(id=%d, addr=%s)", m.AgentID, m.Addr)
	case KindWireNeighbors:
		return fmt.Sprintf("wire_neighbors(left=%s, right=%s)", m.Left, m.Right)
	case KindWireAck:
		return fmt.Sprintf("wire_ack(id=%d)", m.AgentID)
	case KindStart:
		return "start"
	case KindFork:
		return fmt.Sprintf("fork(%s)", m.Fork)
	case KindForkRequest:
		return fmt.Sprintf("fork_request(id=%d)", m.Fork.ID)
	default:
		return "unknown"
	}
}

// Envelope is a message in transit between two addresses.
type Envelope struct {
	From    string
	To      string
	Message Message
}

// JoinAddr builds an address for the named mailbox on host.
func JoinAddr(host, name string) string {
	return host + "/" + name
}

// SplitAddr splits an address into its host and mailbox name.
func SplitAddr(addr string) (host, name string, err error) {
	idx := strings.LastIndex(addr, "/")
	if idx <= 0 || idx == len(addr)-1 {
		return "", "", fmt.Errorf("invalid address %q (expected host/name)", addr)
	}
	return addr[:idx], addr[idx+1:], nil
}
