package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestManual_StepFiresInDeadlineOrder(t *testing.T) {
	m := NewManual(epoch)
	var order []string

	m.AfterFunc(30*time.Millisecond, func() { order = append(order, "c") })
	m.AfterFunc(10*time.Millisecond, func() { order = append(order, "a") })
	m.AfterFunc(20*time.Millisecond, func() { order = append(order, "b") })

	for m.Step() {
	}

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("Expected [a b c], got %v", order)
	}
	if !m.Now().Equal(epoch.Add(30 * time.Millisecond)) {
		t.Errorf("Expected clock at +30ms, got %v", m.Now().Sub(epoch))
	}
}

func TestManual_EqualDeadlinesKeepScheduleOrder(t *testing.T) {
	m := NewManual(epoch)
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		m.AfterFunc(time.Millisecond, func() { order = append(order, i) })
	}

	m.Advance(time.Millisecond)

	for i, v := range order {
		if v != i {
			t.Fatalf("Expected FIFO order, got %v", order)
		}
	}
	if len(order) != 5 {
		t.Errorf("Expected 5 callbacks, got %d", len(order))
	}
}

func TestManual_AdvanceStopsAtTarget(t *testing.T) {
	m := NewManual(epoch)
	fired := 0
	m.AfterFunc(5*time.Millisecond, func() { fired++ })
	m.AfterFunc(50*time.Millisecond, func() { fired++ })

	if n := m.Advance(10 * time.Millisecond); n != 1 {
		t.Errorf("Expected 1 timer fired, got %d", n)
	}
	if fired != 1 {
		t.Errorf("Expected 1 callback, got %d", fired)
	}
	if m.Pending() != 1 {
		t.Errorf("Expected 1 pending timer, got %d", m.Pending())
	}
	if !m.Now().Equal(epoch.Add(10 * time.Millisecond)) {
		t.Errorf("Expected clock at +10ms, got %v", m.Now().Sub(epoch))
	}
}

func TestManual_CallbackCanReschedule(t *testing.T) {
	m := NewManual(epoch)
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			m.AfterFunc(time.Millisecond, tick)
		}
	}
	m.AfterFunc(time.Millisecond, tick)

	m.Advance(10 * time.Millisecond)
	if count != 3 {
		t.Errorf("Expected 3 ticks, got %d", count)
	}
}

func TestManual_Stop(t *testing.T) {
	m := NewManual(epoch)
	fired := false
	timer := m.AfterFunc(time.Millisecond, func() { fired = true })

	if !timer.Stop() {
		t.Error("Stop should report a pending timer")
	}
	if timer.Stop() {
		t.Error("Second Stop should report false")
	}
	m.Advance(time.Second)
	if fired {
		t.Error("Stopped timer should not fire")
	}
}

func TestManual_RunUntil(t *testing.T) {
	m := NewManual(epoch)
	count := 0
	for i := 0; i < 10; i++ {
		m.AfterFunc(time.Duration(i)*time.Millisecond, func() { count++ })
	}

	steps := m.RunUntil(func() bool { return count >= 4 }, 100)
	if steps != 4 || count != 4 {
		t.Errorf("Expected 4 steps, got steps=%d count=%d", steps, count)
	}

	steps = m.RunUntil(func() bool { return false }, 2)
	if steps != 2 {
		t.Errorf("Expected maxSteps to bound the run, got %d", steps)
	}
}

func TestWall_AfterFunc(t *testing.T) {
	done := make(chan struct{})
	Wall{}.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wall timer did not fire")
	}
}
