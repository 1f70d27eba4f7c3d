package philosopher

import (
	"errors"
	"fmt"
)

// ErrProtocolViolation matches every *ViolationError.
var ErrProtocolViolation = errors.New("protocol violation")

// ViolationKind classifies a protocol or handshake violation.
type ViolationKind int

const (
	// ForeignFork: a fork or request for an id this agent does not share.
	ForeignFork ViolationKind = iota
	// DuplicateFork: a fork for a side that already holds it.
	DuplicateFork
	// DuplicateRequest: a request for a side that already holds the token.
	DuplicateRequest
	// EarlyMessage: a peer message before Start.
	EarlyMessage
	// UnexpectedMessage: a handshake message out of order, or one the agent never receives.
	UnexpectedMessage
	// UnexpectedTimer: a timeout with no timer armed.
	UnexpectedTimer
	// SessionMismatch: Start from a different bootstrap session than Init.
	SessionMismatch
)

// String returns the string representation of ViolationKind.
func (k ViolationKind) String() string {
	switch k {
	case ForeignFork:
		return "foreign fork"
	case DuplicateFork:
		return "duplicate fork"
	case DuplicateRequest:
		return "duplicate request"
	case EarlyMessage:
		return "message before start"
	case UnexpectedMessage:
		return "unexpected message"
	case UnexpectedTimer:
		return "unexpected timer"
	case SessionMismatch:
		return "session mismatch"
	default:
		return "unknown violation"
	}
}

// ViolationError reports a violation detected by agent AgentID. It is
// fatal for the agent: there is no recovery path.
type ViolationError struct {
	AgentID int
	Kind    ViolationKind
	Detail  string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("agent %d: %s: %s", e.AgentID, e.Kind, e.Detail)
}

// Is makes errors.Is(err, ErrProtocolViolation) hold for every violation.
func (e *ViolationError) Is(target error) bool {
	return target == ErrProtocolViolation
}

func (a *Agent) violation(kind ViolationKind, format string, args ...any) error {
	return &ViolationError{AgentID: a.id, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
