package kernel

import (
	"testing"

	"github.com/mknm-os/kernel/timer"
)

func TestMessageQueueFIFO(t *testing.T) {
	q := NewMessageQueue()

	if !q.Empty() {
		t.Fatalf("new queue is not empty")
	}

	q.PostXhci()
	q.PostTimerTimeout(42)

	if q.Empty() {
		t.Fatalf("queue is empty after two posts")
	}

	m1, ok := q.Pop()
	if !ok || m1.Kind != Xhci {
		t.Fatalf("first pop = %+v, %v, want Xhci message", m1, ok)
	}

	m2, ok := q.Pop()
	if !ok || m2.Kind != TimerTimeout || m2.Value != 42 {
		t.Fatalf("second pop = %+v, %v, want TimerTimeout(42)", m2, ok)
	}

	if _, ok := q.Pop(); ok {
		t.Fatalf("pop on drained queue returned ok=true")
	}
}

func TestMessageQueueDropsOldestWhenFull(t *testing.T) {
	q := NewMessageQueue()

	for i := 0; i < queueSize+5; i++ {
		q.PostTimerTimeout(uint64(i))
	}

	m, ok := q.Pop()
	if !ok {
		t.Fatalf("pop on full-then-overflowed queue returned ok=false")
	}
	if want := uint64(5); m.Value != want {
		t.Fatalf("oldest surviving message = %d, want %d (5 oldest entries dropped)", m.Value, want)
	}
}

func TestElapsedTicksAddSwapPeek(t *testing.T) {
	var e elapsedTicks

	if got := e.Peek(); got != 0 {
		t.Fatalf("Peek() on fresh counter = %d, want 0", got)
	}

	e.Add(3)
	e.Add(4)

	if got := e.Peek(); got != 7 {
		t.Fatalf("Peek() = %d, want 7", got)
	}

	if got := e.Swap(); got != 7 {
		t.Fatalf("Swap() = %d, want 7", got)
	}

	if got := e.Peek(); got != 0 {
		t.Fatalf("Peek() after Swap() = %d, want 0", got)
	}
}

// fakeKernel isolates handleTimerTimeout/armDemoTimers from the rest of
// Kernel, since those only touch k.timers and k.clockTicks.
func fakeKernel(t *testing.T) *Kernel {
	t.Helper()
	q := NewMessageQueue()
	return &Kernel{timers: timer.NewManager(q)}
}

func TestHandleTimerTimeoutRearmsKnownTimers(t *testing.T) {
	k := fakeKernel(t)
	k.armDemoTimers()

	before := k.clockTicks
	k.handleTimerTimeout(demoTimer1)
	if k.clockTicks != before+1 {
		t.Fatalf("clockTicks after demoTimer1 = %d, want %d", k.clockTicks, before+1)
	}

	k.handleTimerTimeout(demoTimer2)
	if k.clockTicks != before+3 {
		t.Fatalf("clockTicks after demoTimer2 = %d, want %d", k.clockTicks, before+3)
	}
}
