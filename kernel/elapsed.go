// Interrupt-accumulated tick counter
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

import "sync/atomic"

// elapsedTicks is TIMER_ELAPSED (spec.md §4.13): the LAPIC timer ISR
// accumulates into it with Add, and the main loop atomically reads and
// resets it once per iteration with Swap, matching the original's
// read_volatile/write_volatile pair under interrupts-disabled.
type elapsedTicks struct {
	v uint64
}

func (e *elapsedTicks) Add(n uint64) {
	atomic.AddUint64(&e.v, n)
}

// Peek reads the current value without resetting it, used by the main
// loop's step 2 empty-queue check.
func (e *elapsedTicks) Peek() uint64 {
	return atomic.LoadUint64(&e.v)
}

// Swap returns the current value and resets it to zero.
func (e *elapsedTicks) Swap() uint64 {
	return atomic.SwapUint64(&e.v, 0)
}
