package timer

import "testing"

type recordingSink struct {
	fired []uint64
}

func (s *recordingSink) PostTimerTimeout(value uint64) {
	s.fired = append(s.fired, value)
}

func TestTaskTimerFiresAndRearms(t *testing.T) {
	sink := &recordingSink{}
	m := NewManager(sink)

	// TaskTimerPeriod ticks advance exactly to the task-timer's timeout;
	// "timeout < tick" means it must be strictly exceeded to fire.
	if fired := m.Tick(TaskTimerPeriod); fired {
		t.Fatalf("Tick(%d) fired early", TaskTimerPeriod)
	}
	if fired := m.Tick(1); !fired {
		t.Fatalf("Tick(1) past period did not fire task-timer")
	}
	if fired := m.Tick(1); fired {
		t.Fatalf("Tick(1) fired again immediately after rearm")
	}
}

func TestUserTimerOrdering(t *testing.T) {
	sink := &recordingSink{}
	m := NewManager(sink)

	m.AddTimer(10, 111)
	m.AddTimer(20, 222)

	m.Tick(25)

	if len(sink.fired) < 2 {
		t.Fatalf("fired = %v, want at least 2 entries", sink.fired)
	}

	var got []uint64
	for _, v := range sink.fired {
		if v == 111 || v == 222 {
			got = append(got, v)
		}
	}
	if len(got) != 2 || got[0] != 111 || got[1] != 222 {
		t.Fatalf("user timers fired in order %v, want [111 222]", got)
	}
}

func TestCurrentTickMonotonic(t *testing.T) {
	m := NewManager(nil)

	m.Tick(5)
	if got := m.CurrentTick(); got != 5 {
		t.Fatalf("CurrentTick() = %d, want 5", got)
	}

	m.Tick(3)
	if got := m.CurrentTick(); got != 8 {
		t.Fatalf("CurrentTick() = %d, want 8", got)
	}
}
