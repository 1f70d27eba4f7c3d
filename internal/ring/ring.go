package ring

import (
	"errors"
	"fmt"

	"forkring/internal/fork"
)

// ErrTooFewAgents is returned when a ring is requested with fewer than two agents.
var ErrTooFewAgents = errors.New("ring: at least two agents are required")

// Seat is the initial configuration of one agent. All arrays are indexed
// by fork.Side.
type Seat struct {
	ID        int
	Neighbors [2]int
	Forks     [2]int
	Owns      [2]bool // agent starts holding the fork on that side
	Token     [2]bool // agent starts holding the request token on that side
}

// SideOf returns the side on which the seat shares fork id.
func (s Seat) SideOf(forkID int) (fork.Side, bool) {
	for _, side := range fork.Sides {
		if s.Forks[side] == forkID {
			return side, true
		}
	}
	return fork.Left, false
}

// Ring is an immutable ring of n agents.
type Ring struct {
	n     int
	seats []Seat
}

// New builds the ring for n agents.
func New(n int) (*Ring, error) {
	if n < 2 {
		return nil, fmt.Errorf("%w (got %d)", ErrTooFewAgents, n)
	}

	r := &Ring{n: n, seats: make([]Seat, n)}
	for i := 0; i < n; i++ {
		r.seats[i] = buildSeat(n, i)
	}
	return r, nil
}

// SeatOf computes the seat of agent i in a ring of n agents without
// building the ring.
func SeatOf(n, i int) (Seat, error) {
	if n < 2 {
		return Seat{}, fmt.Errorf("%w (got %d)", ErrTooFewAgents, n)
	}
	if i < 0 || i >= n {
		return Seat{}, fmt.Errorf("ring: agent %d outside [0,%d)", i, n)
	}
	return buildSeat(n, i), nil
}

// buildSeat computes the seat of agent i. Every agent owns its right fork
// and holds the request token for its left fork, except on the edge
// between agent 0 and agent n-1: there agent 0 owns the fork (its left)
// and agent n-1 keeps the request token. Without this exception every
// edge points the same way around the ring and the precedence graph is a
// cycle.
func buildSeat(n, i int) Seat {
	last := n - 1
	s := Seat{
		ID:        i,
		Neighbors: [2]int{left(n, i), right(n, i)},
		Forks:     [2]int{left(n, i), i},
	}

	s.Owns[fork.Right] = i != last
	s.Token[fork.Left] = i != 0

	if i == 0 {
		s.Owns[fork.Left] = true
	}
	if i == last {
		s.Token[fork.Right] = true
	}
	return s
}

func left(n, i int) int  { return (i - 1 + n) % n }
func right(n, i int) int { return (i + 1) % n }

// Size returns the number of agents.
func (r *Ring) Size() int {
	return r.n
}

// Left returns the left neighbor of agent i.
func (r *Ring) Left(i int) int {
	return left(r.n, i)
}

// Right returns the right neighbor of agent i.
func (r *Ring) Right(i int) int {
	return right(r.n, i)
}

// Seat returns the initial configuration of agent i.
func (r *Ring) Seat(i int) Seat {
	return r.seats[i]
}

// Seats returns a copy of all seats ordered by agent id.
func (r *Ring) Seats() []Seat {
	seats := make([]Seat, len(r.seats))
	copy(seats, r.seats)
	return seats
}

// Edge is one fork of the precedence graph, directed from the agent that
// initially owns the fork to the agent holding its request token. The
// owner yields a dirty fork to the requester, so the requester precedes it.
type Edge struct {
	Fork      int
	Owner     int
	Requester int
}

// Precedence returns one edge per fork, ordered by fork id.
func (r *Ring) Precedence() []Edge {
	edges := make([]Edge, r.n)
	for _, s := range r.seats {
		for _, side := range fork.Sides {
			id := s.Forks[side]
			if s.Owns[side] {
				edges[id].Fork = id
				edges[id].Owner = s.ID
			}
			if s.Token[side] {
				edges[id].Requester = s.ID
			}
		}
	}
	return edges
}

// Validate checks that every fork has exactly one owner and one request
// token holder, on opposite ends of its edge, and that the precedence graph
// is acyclic.
func (r *Ring) Validate() error {
	owners := make([]int, r.n)
	tokens := make([]int, r.n)

	for _, s := range r.seats {
		for _, side := range fork.Sides {
			id := s.Forks[side]
			if s.Owns[side] && s.Token[side] {
				return fmt.Errorf("agent %d holds both fork %d and its request token", s.ID, id)
			}
			if !s.Owns[side] && !s.Token[side] {
				return fmt.Errorf("agent %d holds neither fork %d nor its request token", s.ID, id)
			}
			if s.Owns[side] {
				owners[id]++
			}
			if s.Token[side] {
				tokens[id]++
			}
		}
	}

	for id := 0; id < r.n; id++ {
		if owners[id] != 1 {
			return fmt.Errorf("fork %d has %d owners", id, owners[id])
		}
		if tokens[id] != 1 {
			return fmt.Errorf("fork %d has %d request tokens", id, tokens[id])
		}
	}

	if !Acyclic(r.n, r.Precedence()) {
		return errors.New("initial precedence graph contains a cycle")
	}
	return nil
}

// Acyclic reports whether the directed graph over n vertices has no cycle.
func Acyclic(n int, edges []Edge) bool {
	adj := make([][]int, n)
	for _, e := range edges {
		adj[e.Owner] = append(adj[e.Owner], e.Requester)
	}

	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]int, n)

	var visit func(v int) bool
	visit = func(v int) bool {
		state[v] = onStack
		for _, w := range adj[v] {
			switch state[w] {
			case onStack:
				return false
			case unvisited:
				if !visit(w) {
					return false
				}
			}
		}
		state[v] = done
		return true
	}

	for v := 0; v < n; v++ {
		if state[v] == unvisited && !visit(v) {
			return false
		}
	}
	return true
}
