package ring

import "testing"

// TestRing_Property_AcyclicBootstrap checks every ring size in range.
func TestRing_Property_AcyclicBootstrap(t *testing.T) {
	for n := 2; n <= 64; n++ {
		r, err := New(n)
		if err != nil {
			t.Fatalf("New(%d) error = %v", n, err)
		}
		if err := r.Validate(); err != nil {
			t.Errorf("Validate() for n=%d: %v", n, err)
		}
		if !Acyclic(n, r.Precedence()) {
			t.Errorf("Precedence graph for n=%d has a cycle", n)
		}
	}
}

// TestRing_Property_OneEdgePerFork checks that every fork joins its two sharers.
func TestRing_Property_OneEdgePerFork(t *testing.T) {
	for n := 2; n <= 32; n++ {
		r, _ := New(n)
		edges := r.Precedence()
		if len(edges) != n {
			t.Fatalf("n=%d: expected %d edges, got %d", n, n, len(edges))
		}
		for id, e := range edges {
			if e.Fork != id {
				t.Errorf("n=%d: edge %d carries fork %d", n, id, e.Fork)
			}
			// fork id is shared by agents id and id+1
			a, b := id, (id+1)%n
			if !((e.Owner == a && e.Requester == b) || (e.Owner == b && e.Requester == a)) {
				t.Errorf("n=%d: fork %d edge %d->%d does not join %d and %d", n, id, e.Owner, e.Requester, a, b)
			}
		}
	}
}

// TestRing_Property_UniformPlacementIsCyclic shows why agent 0 is special:
// giving every agent its right fork orients the whole ring one way.
func TestRing_Property_UniformPlacementIsCyclic(t *testing.T) {
	for n := 2; n <= 16; n++ {
		edges := make([]Edge, n)
		for i := 0; i < n; i++ {
			edges[i] = Edge{Fork: i, Owner: i, Requester: (i + 1) % n}
		}
		if Acyclic(n, edges) {
			t.Errorf("Uniform placement for n=%d should be cyclic", n)
		}
	}
}

func TestAcyclic(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		edges []Edge
		want  bool
	}{
		{name: "empty", n: 3, want: true},
		{name: "chain", n: 3, edges: []Edge{{Owner: 0, Requester: 1}, {Owner: 1, Requester: 2}}, want: true},
		{name: "diamond", n: 4, edges: []Edge{{Owner: 0, Requester: 1}, {Owner: 0, Requester: 2}, {Owner: 1, Requester: 3}, {Owner: 2, Requester: 3}}, want: true},
		{name: "two-cycle", n: 2, edges: []Edge{{Owner: 0, Requester: 1}, {Owner: 1, Requester: 0}}, want: false},
		{name: "self loop", n: 1, edges: []Edge{{Owner: 0, Requester: 0}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Acyclic(tt.n, tt.edges); got != tt.want {
				t.Errorf("Acyclic() = %v, want %v", got, tt.want)
			}
		})
	}
}
