// Kernel event loop
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package kernel wires the frame/slab allocators, timer, task manager and
// xHCI/usb/hid drivers together behind the eight-step event loop of
// spec.md §4.13. Everything below the loop itself (allocators, timer
// calibration, controller bring-up) is constructed by the caller and
// handed in, so this package owns only scheduling and dispatch.
package kernel

import (
	"github.com/mknm-os/kernel/amd64"
	"github.com/mknm-os/kernel/graphics"
	"github.com/mknm-os/kernel/hid"
	"github.com/mknm-os/kernel/task"
	"github.com/mknm-os/kernel/timer"
	"github.com/mknm-os/kernel/usb"
	"github.com/mknm-os/kernel/xhci"
)

// lapicTimerVector and xhciVector are the IDT vectors the two interrupt
// sources this kernel services are wired to (spec.md §6 names the IDT
// vector as the wiring point for both the LAPIC timer LVT entry and the
// xHCI MSI data field).
const (
	lapicTimerVector = 32
	xhciVector       = 33
)

// Kernel owns every subsystem the event loop dispatches across. Callers
// build one with New after frame/slab/DMA/ACPI/timer/task bring-up has
// already run (spec.md §4.7-§4.9's initialisation order is the caller's
// responsibility; this package starts at "controller is already running").
type Kernel struct {
	cpu     *amd64.CPU
	queue   *MessageQueue
	elapsed elapsedTicks

	timers *timer.Manager
	tasks  *task.Manager

	ctrl  *xhci.Controller
	ports *xhci.PortAddressing
	usbd  *usb.Driver
	hidd  *hid.Driver

	clock      *graphics.ClockWindow
	clockTicks uint64
}

// Config bundles every already-initialised subsystem New needs. Queue must
// be the same MessageQueue passed to timer.NewManager as its Sink, so
// timer-fired TimerTimeout messages and ISR-posted Xhci messages land in
// one place.
type Config struct {
	CPU    *amd64.CPU
	Queue  *MessageQueue
	Timers *timer.Manager
	Tasks  *task.Manager
	Ctrl   *xhci.Controller
	Ports  *xhci.PortAddressing
	Clock  *graphics.ClockWindow
}

// New builds an idle Kernel. Call Init to arm demo timers and register
// interrupt handlers, then Run to enter the event loop.
func New(cfg Config) *Kernel {
	k := &Kernel{
		cpu:    cfg.CPU,
		queue:  cfg.Queue,
		timers: cfg.Timers,
		tasks:  cfg.Tasks,
		ctrl:   cfg.Ctrl,
		ports:  cfg.Ports,
		usbd:   usb.NewDriver(cfg.Ctrl),
		hidd:   hid.NewDriver(),
		clock:  cfg.Clock,
	}

	return k
}

// Init arms the demo timers and registers this kernel's interrupt service
// routine with the CPU. Must be called once before Run.
func (k *Kernel) Init() {
	k.armDemoTimers()
	go k.cpu.ServiceInterrupts(k.onInterrupt)
}

// onInterrupt is the bottom half amd64.CPU.ServiceInterrupts invokes on
// every real interrupt. It does only what ISR context should: accumulate
// ticks and post a message, both non-blocking (spec.md §5's "posted from
// ISR context, non-blocking, short critical sections").
func (k *Kernel) onInterrupt(vector int) {
	switch vector {
	case lapicTimerVector:
		k.elapsed.Add(1)
		k.cpu.LAPIC.ClearInterrupt()
	case xhciVector:
		k.queue.PostXhci()
	default:
		klog.Printf("unhandled interrupt vector %d", vector)
	}
}

// Run enters the kernel's main loop and never returns, implementing
// spec.md §4.13's eight steps verbatim.
func (k *Kernel) Run() {
	for {
		// 1. Disable interrupts.
		k.cpu.DisableInterrupts()

		// 2. If the message queue is empty and no timer tick has
		// accumulated, there is nothing to do: re-enable interrupts, halt
		// until the next one, and restart the loop.
		if k.queue.Empty() && k.elapsed.Peek() == 0 {
			k.cpu.EnableInterrupts()
			k.cpu.Halt()
			continue
		}

		// 3. Swap TIMER_ELAPSED to zero; if it had accumulated ticks, feed
		// them to the timer manager and capture whether the task timer
		// fired.
		taskTimerFired := false
		if elapsed := k.elapsed.Swap(); elapsed > 0 {
			taskTimerFired = k.timers.Tick(elapsed)
		}

		// 4. Pop one message, then re-enable interrupts.
		msg, ok := k.queue.Pop()
		k.cpu.EnableInterrupts()

		// 5. Draw the updated clock window (test surface).
		k.clock.Draw(k.clockTicks)

		// 6. Dispatch the popped message, if any.
		if ok {
			k.dispatch(msg)
		}

		// 7. If the task timer fired this iteration, context-switch to
		// task B.
		if taskTimerFired {
			k.tasks.SwitchToNext()
		}

		// 8. Loop.
	}
}

// dispatch handles one drained message per spec.md §4.13 step 6.
func (k *Kernel) dispatch(msg Message) {
	switch msg.Kind {
	case Xhci:
		k.drainXhci()
	case TimerTimeout:
		k.handleTimerTimeout(msg.Value)
	}
}

// drainXhci services the xHCI side of step 6: drain the event ring, run
// every sub-executor until it has no ready task, then react to whatever
// those executors just finished (newly addressed slots get enumerated,
// newly configured devices get handed to the HID driver).
func (k *Kernel) drainXhci() {
	k.ctrl.OnXhcInterrupt()

	for {
		trb, ok := k.ctrl.PortStatusChange.Receive()
		if !ok {
			break
		}
		k.ports.HandlePortStatusChange(trb)
	}

	k.ports.RunExecutor()
	for {
		result, ok := k.ports.Addressed.Receive()
		if !ok {
			break
		}
		if result.Err != nil {
			klog.Printf("xhci: addressing port %d failed: %v", result.Port, result.Err)
			continue
		}
		k.usbd.Enumerate(result.SlotID)
	}

	k.usbd.RunExecutor()
	for {
		result, ok := k.usbd.Configured.Receive()
		if !ok {
			break
		}
		if result.Err != nil {
			klog.Printf("usb: configuration failed: %v", result.Err)
			continue
		}
		if err := k.hidd.Attach(result.Device); err != nil {
			klog.Printf("hid: attach failed: %v", err)
		}
	}

	k.hidd.RunExecutor()
}
