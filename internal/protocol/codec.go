package protocol

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"forkring/internal/fork"
)

// Field names used in the structpb encoding.
const (
	fieldFrom    = "from"
	fieldTo      = "to"
	fieldKind    = "kind"
	fieldSession = "session"
	fieldAgentID = "agent_id"
	fieldAgents  = "agents"
	fieldAddr    = "addr"
	fieldLeft    = "left"
	fieldRight   = "right"
	fieldForkID  = "fork_id"
	fieldDirty   = "dirty"
)

// ToStruct converts an Envelope to a protobuf Struct. Only the fields that
// belong to the message kind are written.
func ToStruct(env Envelope) (*structpb.Struct, error) {
	m := env.Message
	fields := map[string]*structpb.Value{
		fieldFrom: structpb.NewStringValue(env.From),
		fieldTo:   structpb.NewStringValue(env.To),
		fieldKind: structpb.NewStringValue(m.Kind.String()),
	}

	switch m.Kind {
	case KindInit:
		fields[fieldSession] = structpb.NewStringValue(m.Session)
		fields[fieldAgentID] = structpb.NewNumberValue(float64(m.AgentID))
		fields[fieldAgents] = structpb.NewNumberValue(float64(m.Agents))
	case KindRegister:
		fields[fieldAgentID] = structpb.NewNumberValue(float64(m.AgentID))
		fields[fieldAddr] = structpb.NewStringValue(m.Addr)
	case KindWireNeighbors:
		fields[fieldLeft] = structpb.NewStringValue(m.Left)
		fields[fieldRight] = structpb.NewStringValue(m.Right)
	case KindWireAck:
		fields[fieldAgentID] = structpb.NewNumberValue(float64(m.AgentID))
	case KindStart:
		fields[fieldSession] = structpb.NewStringValue(m.Session)
	case KindFork:
		fields[fieldForkID] = structpb.NewNumberValue(float64(m.Fork.ID))
		fields[fieldDirty] = structpb.NewBoolValue(m.Fork.Dirty)
	case KindForkRequest:
		fields[fieldForkID] = structpb.NewNumberValue(float64(m.Fork.ID))
	default:
		return nil, fmt.Errorf("encode: unknown message kind %d", m.Kind)
	}

	return &structpb.Struct{Fields: fields}, nil
}

// FromStruct converts a protobuf Struct back to an Envelope and validates
// the decoded message.
func FromStruct(s *structpb.Struct) (Envelope, error) {
	if s == nil {
		return Envelope{}, fmt.Errorf("decode: nil payload")
	}
	f := s.GetFields()

	kind, err := ParseKind(f[fieldKind].GetStringValue())
	if err != nil {
		return Envelope{}, fmt.Errorf("decode: %w", err)
	}

	env := Envelope{
		From: f[fieldFrom].GetStringValue(),
		To:   f[fieldTo].GetStringValue(),
	}
	m := Message{Kind: kind}
	d := decoder{fields: f}

	switch kind {
	case KindInit:
		m.Session = f[fieldSession].GetStringValue()
		m.AgentID = d.integer(fieldAgentID)
		m.Agents = d.integer(fieldAgents)
	case KindRegister:
		m.AgentID = d.integer(fieldAgentID)
		m.Addr = f[fieldAddr].GetStringValue()
	case KindWireNeighbors:
		m.Left = f[fieldLeft].GetStringValue()
		m.Right = f[fieldRight].GetStringValue()
	case KindWireAck:
		m.AgentID = d.integer(fieldAgentID)
	case KindStart:
		m.Session = f[fieldSession].GetStringValue()
	case KindFork:
		m.Fork = fork.Fork{ID: d.integer(fieldForkID), Dirty: f[fieldDirty].GetBoolValue()}
	case KindForkRequest:
		m.Fork = fork.Fork{ID: d.integer(fieldForkID)}
	}
	if d.err != nil {
		return Envelope{}, fmt.Errorf("decode %s: %w", kind, d.err)
	}

	if err := m.Validate(); err != nil {
		return Envelope{}, fmt.Errorf("decode: %w", err)
	}
	env.Message = m
	return env, nil
}

// decoder reads numeric fields and keeps the first error.
type decoder struct {
	fields map[string]*structpb.Value
	err    error
}

// integer reads an integral number field. A missing field reads as -1 so
// that Validate rejects it; fractional, non-finite and out-of-range
// values are errors.
func (d *decoder) integer(name string) int {
	v, ok := d.fields[name]
	if !ok {
		return -1
	}
	n, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum {
		d.fail(fmt.Errorf("field %s is not a number", name))
		return -1
	}
	x := n.NumberValue
	if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) {
		d.fail(fmt.Errorf("field %s is not an integer: %v", name, x))
		return -1
	}
	if x < math.MinInt32 || x > math.MaxInt32 {
		d.fail(fmt.Errorf("field %s out of range: %v", name, x))
		return -1
	}
	return int(x)
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}
