// Cooperative async runtime
// https://github.com/mknm-os/kernel
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package async implements the single-threaded cooperative executor the
// xHCI driver runs its device-enumeration and HID subscription loops on:
// an MPSC channel, a oneshot rendezvous, a broadcast latch, and a
// task/executor/spawner triple turning interrupt events into progress on
// suspended goroutine-free "futures."
//
// Grounded on original_source/kernel/src/usb/runtime.rs, itself a port of
// the "Asynchronous Programming in Rust" executor. Go has no native
// async/await, so a Future here is a plain interface polled cooperatively
// by the Executor; nothing in this package spawns an OS thread or a Go
// goroutine that blocks — the only suspension points are Poll returning
// not-ready, matching spec.md §5's "suspension occurs only inside await."
package async

// Future is a cooperatively-polled unit of work. Poll returns (value,
// true) when ready; otherwise it records wake as the callback to invoke
// once progress becomes possible and returns the zero value and false.
// Poll must not block.
type Future[T any] interface {
	Poll(wake func()) (T, bool)
}

// FutureFunc adapts a plain poll function to the Future interface.
type FutureFunc[T any] func(wake func()) (T, bool)

// Poll implements Future.
func (f FutureFunc[T]) Poll(wake func()) (T, bool) { return f(wake) }
