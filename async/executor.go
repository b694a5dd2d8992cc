package async

// task wraps a future-in-progress plus the channel it re-enqueues itself
// on when woken (spec.md §4.5, "Task {future-slot, sender}").
type task[T any] struct {
	future Future[T]
	queue  *Channel[*task[T]]
	done   bool
}

// exec polls the held future once. On Ready it clears the slot (the task
// is finished and never re-queued); on Pending it hands poll a waker that
// re-sends this same task, matching ArcWake::wake_by_ref.
func (t *task[T]) exec() (T, bool) {
	var zero T
	if t.done {
		return zero, false
	}

	wake := func() { t.queue.Send(t) }

	v, ready := t.future.Poll(wake)
	if ready {
		t.done = true
		return v, true
	}

	return zero, false
}

// Executor owns the task queue and drives ready tasks to completion one at
// a time; it never blocks.
type Executor[T any] struct {
	queue *Channel[*task[T]]
}

// ProcessNextTask pops one task and polls it, returning the future's
// output if it completed on this poll. ok is false both when the task
// queue was empty and when the popped task merely returned Pending again —
// callers drive the executor in a loop until HasNextTask is false,
// matching spec.md's "run the executor until it has no ready task."
func (e *Executor[T]) ProcessNextTask() (value T, ok bool) {
	t, has := e.queue.Receive()
	if !has {
		return value, false
	}

	return t.exec()
}

// HasNextTask reports whether a task is queued and ready to be polled.
func (e *Executor[T]) HasNextTask() bool {
	return e.queue.HasContent()
}

// Spawner hands out new tasks onto the Executor's queue.
type Spawner[T any] struct {
	queue *Channel[*task[T]]
}

// Spawn enqueues fut as a new task for the paired Executor to drive.
func (s *Spawner[T]) Spawn(fut Future[T]) {
	s.queue.Send(&task[T]{future: fut, queue: s.queue})
}

// NewExecutor creates a paired Executor/Spawner sharing one task queue.
func NewExecutor[T any]() (*Executor[T], *Spawner[T]) {
	q := NewChannel[*task[T]]()
	return &Executor[T]{queue: q}, &Spawner[T]{queue: q}
}
