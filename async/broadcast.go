package async

import "sync"

// Broadcast is a boolean latch plus a set of wakers: one Send wakes every
// current waiter, and every Await issued afterwards resolves immediately
// (spec.md §3/§4.5). Used to serialise the port-addressing critical
// section described in spec.md §4.8.
type Broadcast struct {
	mu     sync.Mutex
	fired  bool
	wakers []func()
}

// NewBroadcast creates an unfired Broadcast.
func NewBroadcast() *Broadcast {
	return &Broadcast{}
}

// Send sets the latch and wakes every waiter registered so far. Subsequent
// Sends are no-ops.
func (b *Broadcast) Send() {
	b.mu.Lock()
	if b.fired {
		b.mu.Unlock()
		return
	}

	b.fired = true
	wakers := b.wakers
	b.wakers = nil
	b.mu.Unlock()

	for _, w := range wakers {
		w()
	}
}

// Await returns a Future resolving to struct{}{} once Send has fired.
func (b *Broadcast) Await() Future[struct{}] {
	return FutureFunc[struct{}](func(wake func()) (struct{}, bool) {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.fired {
			return struct{}{}, true
		}

		b.wakers = append(b.wakers, wake)
		return struct{}{}, false
	})
}
