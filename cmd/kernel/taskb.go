// Task B demo entry point
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package main

import "sync/atomic"

// taskBTicks counts how many times task B's loop has run in total (it is
// never reset), proving the preemptive switch in spec.md §4.4 actually
// hands control over rather than merely bookkeeping it.
var taskBTicks uint64

// taskBStackSize is task B's private stack, carved out of a frame run
// separate from the boot task's own stack.
const taskBStackSize = 16 * 1024

// taskBEntry is task B's instruction pointer target: switchContext jumps
// here directly via iretq, never through a Go call, so this function must
// never return and must do nothing that could trigger Go's usual goroutine
// machinery (channel ops, allocation, blocking calls) — only the same
// halt/spin primitives the boot task's idle path uses.
//
//go:nosplit
func taskBEntry() {
	for {
		atomic.AddUint64(&taskBTicks, 1)
		cpu.Halt()
	}
}
