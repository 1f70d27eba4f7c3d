package clock

import (
	"container/heap"
	"sync"
	"time"
)

// Clock schedules callbacks after a delay.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine (Wall) or from the stepping
	// goroutine (Manual) once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending callback.
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or was stopped.
	Stop() bool
}

// Wall is the real-time Clock.
type Wall struct{}

// Now returns the current wall time.
func (Wall) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc.
func (Wall) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Manual is a virtual Clock. Timers fire in deadline order; timers with the
// same deadline fire in the order they were scheduled.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers timerHeap
}

// NewManual creates a manual clock reading start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current virtual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules f at now+d. Negative delays are treated as zero.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := &manualTimer{
		clock:    m,
		deadline: m.now.Add(d),
		seq:      m.seq,
		fn:       f,
	}
	m.seq++
	heap.Push(&m.timers, t)
	return t
}

// Pending returns the number of timers that have not fired yet.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Step moves time to the earliest pending deadline and fires that single
// timer. It returns false when nothing is pending.
func (m *Manual) Step() bool {
	m.mu.Lock()
	if len(m.timers) == 0 {
		m.mu.Unlock()
		return false
	}
	t := heap.Pop(&m.timers).(*manualTimer)
	if t.deadline.After(m.now) {
		m.now = t.deadline
	}
	m.mu.Unlock()

	// Callbacks may schedule further timers, so run them unlocked.
	t.fn()
	return true
}

// Advance moves time forward by d, firing every timer that falls due on
// the way. It returns the number of timers fired.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	fired := 0
	for {
		m.mu.Lock()
		if len(m.timers) == 0 || m.timers[0].deadline.After(target) {
			if target.After(m.now) {
				m.now = target
			}
			m.mu.Unlock()
			return fired
		}
		m.mu.Unlock()
		m.Step()
		fired++
	}
}

// RunUntil steps until done returns true, nothing is pending, or maxSteps
// timers have fired. It returns the number of timers fired.
func (m *Manual) RunUntil(done func() bool, maxSteps int) int {
	steps := 0
	for steps < maxSteps && !done() {
		if !m.Step() {
			break
		}
		steps++
	}
	return steps
}

type manualTimer struct {
	clock    *Manual
	deadline time.Time
	seq      uint64
	fn       func()
	index    int
}

// Stop removes the timer from the pending set.
func (t *manualTimer) Stop() bool {
	m := t.clock
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.index < 0 || t.index >= len(m.timers) || m.timers[t.index] != t {
		return false
	}
	heap.Remove(&m.timers, t.index)
	return true
}

// timerHeap orders timers by (deadline, seq).
type timerHeap []*manualTimer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*manualTimer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
