package async

import "testing"

func TestChannelFIFO(t *testing.T) {
	c := NewChannel[int]()
	c.Send(1)
	c.Send(2)

	v1, ok := c.Receive()
	if !ok || v1 != 1 {
		t.Fatalf("first Receive = (%d, %v), want (1, true)", v1, ok)
	}
	v2, ok := c.Receive()
	if !ok || v2 != 2 {
		t.Fatalf("second Receive = (%d, %v), want (2, true)", v2, ok)
	}
}

func TestChannelReceiveAsyncWakes(t *testing.T) {
	c := NewChannel[string]()
	fut := c.ReceiveAsync()

	woken := false
	if _, ready := fut.Poll(func() { woken = true }); ready {
		t.Fatalf("Poll on empty channel returned ready")
	}

	c.Send("hello")
	if !woken {
		t.Fatalf("Send did not invoke the stored waker")
	}

	v, ready := fut.Poll(func() {})
	if !ready || v != "hello" {
		t.Fatalf("Poll after wake = (%q, %v), want (hello, true)", v, ready)
	}
}

func TestOneshotDeliversOnce(t *testing.T) {
	o := NewOneshot[int]()
	fut := o.Await()

	o.Send(42)
	o.Send(99) // no-op, already delivered

	v, ready := fut.Poll(func() {})
	if !ready || v != 42 {
		t.Fatalf("Poll = (%d, %v), want (42, true)", v, ready)
	}
}

func TestBroadcastIdempotent(t *testing.T) {
	b := NewBroadcast()

	fut1 := b.Await()
	woken := 0
	if _, ready := fut1.Poll(func() { woken++ }); ready {
		t.Fatalf("Poll before Send returned ready")
	}

	b.Send()
	if woken != 1 {
		t.Fatalf("wakers invoked %d times, want 1", woken)
	}
	b.Send() // idempotent

	if _, ready := fut1.Poll(func() {}); !ready {
		t.Fatalf("Poll after Send not ready")
	}

	// arbitrarily many further awaits resolve immediately
	fut2 := b.Await()
	if _, ready := fut2.Poll(func() { t.Fatal("waker invoked for post-fire Await") }); !ready {
		t.Fatalf("fresh Await after Send not immediately ready")
	}
}

func TestExecutorRunsSpawnedTask(t *testing.T) {
	exec, spawner := NewExecutor[int]()

	ch := NewChannel[int]()
	spawner.Spawn(ch.ReceiveAsync())

	if _, ok := exec.ProcessNextTask(); ok {
		t.Fatalf("task completed before the channel had content")
	}

	ch.Send(7)

	if !exec.HasNextTask() {
		t.Fatalf("HasNextTask = false after wake re-enqueued the task")
	}

	v, ok := exec.ProcessNextTask()
	if !ok || v != 7 {
		t.Fatalf("ProcessNextTask = (%d, %v), want (7, true)", v, ok)
	}
}
