package fork

import "fmt"

// Side identifies one of the two neighbor slots of an agent.
type Side int

const (
	Left Side = iota
	Right
)

// Sides lists both sides in evaluation order.
var Sides = [2]Side{Left, Right}

// String returns the string representation of Side.
func (s Side) String() string {
	switch s {
	case Left:
		return "LEFT"
	case Right:
		return "RIGHT"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Left {
		return Right
	}
	return Left
}

// Fork is the token for one ring edge. Dirty marks a fork that has been
// eaten with since it was last handed over.
type Fork struct {
	ID    int
	Dirty bool
}

// New returns a fork in its initial state, which is dirty.
func New(id int) Fork {
	return Fork{ID: id, Dirty: true}
}

// Clean returns a copy of f with the dirty flag cleared.
func (f Fork) Clean() Fork {
	f.Dirty = false
	return f
}

// Soil returns a copy of f with the dirty flag set.
func (f Fork) Soil() Fork {
	f.Dirty = true
	return f
}

func (f Fork) String() string {
	if f.Dirty {
		return fmt.Sprintf("fork-%d(dirty)", f.ID)
	}
	return fmt.Sprintf("fork-%d(clean)", f.ID)
}
