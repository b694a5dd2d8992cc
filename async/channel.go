package async

import "sync"

// Channel is the MPSC queue underlying every suspension point in this
// package: a deque of T plus at most one stored waker, grounded on
// runtime.rs's Sender/Receiver pair.
type Channel[T any] struct {
	mu     sync.Mutex
	queue  []T
	waker  func()
}

// NewChannel creates an empty channel.
func NewChannel[T any]() *Channel[T] {
	return &Channel[T]{}
}

// Send pushes value and wakes any task parked on ReceiveAsync, in FIFO
// order relative to other sends on this channel (spec.md §5).
func (c *Channel[T]) Send(value T) {
	c.mu.Lock()
	c.queue = append(c.queue, value)
	wake := c.waker
	c.waker = nil
	c.mu.Unlock()

	if wake != nil {
		wake()
	}
}

// Receive is the non-blocking pop: (value, true) if the queue was
// non-empty, else the zero value and false.
func (c *Channel[T]) Receive() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if len(c.queue) == 0 {
		return zero, false
	}

	v := c.queue[0]
	c.queue = c.queue[1:]
	return v, true
}

// HasContent reports whether a non-blocking Receive would currently
// succeed.
func (c *Channel[T]) HasContent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) > 0
}

// ReceiveAsync returns a Future resolving to the next value sent on this
// channel.
func (c *Channel[T]) ReceiveAsync() Future[T] {
	return FutureFunc[T](func(wake func()) (T, bool) {
		if v, ok := c.Receive(); ok {
			return v, true
		}

		c.mu.Lock()
		c.waker = wake
		c.mu.Unlock()

		var zero T
		return zero, false
	})
}
