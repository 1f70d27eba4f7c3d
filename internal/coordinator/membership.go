package coordinator

// MemberStatus tracks how far an agent has progressed through bootstrap.
type MemberStatus int

const (
	Spawned MemberStatus = iota
	Registered
	Wired
	Started
)

// String returns the string representation of MemberStatus.
func (s MemberStatus) String() string {
	switch s {
	case Spawned:
		return "SPAWNED"
	case Registered:
		return "REGISTERED"
	case Wired:
		return "WIRED"
	case Started:
		return "STARTED"
	default:
		return "UNKNOWN"
	}
}

// Member represents one agent of the ring.
type Member struct {
	ID int
	// Addr is the spawn address until the agent registers, then the
	// address it reported.
	Addr   string
	Status MemberStatus
}

// membership is an id-indexed member table with a per-status count.
type membership struct {
	members []Member
	counts  map[MemberStatus]int
}

func newMembership(addrs []string) *membership {
	m := &membership{
		members: make([]Member, len(addrs)),
		counts:  map[MemberStatus]int{Spawned: len(addrs)},
	}
	for i, addr := range addrs {
		m.members[i] = Member{ID: i, Addr: addr, Status: Spawned}
	}
	return m
}

func (m *membership) get(id int) (*Member, bool) {
	if id < 0 || id >= len(m.members) {
		return nil, false
	}
	return &m.members[id], true
}

func (m *membership) advance(mem *Member, to MemberStatus) {
	m.counts[mem.Status]--
	m.counts[to]++
	mem.Status = to
}

// all reports whether every member has reached status s.
func (m *membership) all(s MemberStatus) bool {
	return m.counts[s] == len(m.members)
}

func (m *membership) list() []Member {
	return append([]Member(nil), m.members...)
}
