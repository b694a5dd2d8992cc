package async

import "sync"

// Oneshot is a single-slot rendezvous: the primitive the xHCI driver arms
// on a command or transfer TRB's address and resolves from the event-ring
// drain (spec.md §3, "used as the primitive for command-completion and
// transfer-event results").
type Oneshot[T any] struct {
	mu    sync.Mutex
	value T
	ready bool
	waker func()
}

// NewOneshot creates an unresolved Oneshot.
func NewOneshot[T any]() *Oneshot[T] {
	return &Oneshot[T]{}
}

// Send delivers the single value, resolving any pending Await. Sending
// more than once is a no-op — a dropped or already-fired Oneshot must not
// panic, since spec.md §5 says senders must tolerate a closed receiver.
func (o *Oneshot[T]) Send(value T) {
	o.mu.Lock()
	if o.ready {
		o.mu.Unlock()
		return
	}

	o.value = value
	o.ready = true
	wake := o.waker
	o.waker = nil
	o.mu.Unlock()

	if wake != nil {
		wake()
	}
}

// Await returns a Future resolving to the delivered value.
func (o *Oneshot[T]) Await() Future[T] {
	return FutureFunc[T](func(wake func()) (T, bool) {
		o.mu.Lock()
		defer o.mu.Unlock()

		if o.ready {
			return o.value, true
		}

		o.waker = wake

		var zero T
		return zero, false
	})
}
