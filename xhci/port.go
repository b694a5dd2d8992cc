// Port/device addressing state machine
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import (
	"log"

	"github.com/mknm-os/kernel/async"
)

// AddressResult is delivered on PortAddressing's Addressed channel once a
// slot has been enabled and addressed (or failed trying).
type AddressResult struct {
	Port   int
	SlotID int
	Err    error
}

// PortAddressing drives spec.md §4.8's state machine: at most one port is
// ever mid-reset/mid-addressing at a time — device address 0, shared by
// every unaddressed device, cannot be driven by two ports concurrently.
// The in-flight EnableSlot/AddressDevice exchange is itself a two-phase
// async task run on a private executor, so a second enumeration can be
// queued (not started) while the first's commands are in flight.
type PortAddressing struct {
	ctrl *Controller

	exec    *async.Executor[AddressResult]
	spawner *async.Spawner[AddressResult]

	current int // -1 when idle
	waiting []int

	// latch is the Broadcast for spec.md §4.8's critical section: non-nil
	// while a port is mid-reset/mid-addressing, Send() released once it
	// finishes. New enumerations queue behind current/waiting rather than
	// awaiting this directly, but Await lets any other task (hotplug
	// diagnostics, tests) observe when the section next drains.
	latch *async.Broadcast

	Addressed *async.Channel[AddressResult]
}

// Await resolves once no port addressing is in flight: immediately if the
// state machine is already idle, otherwise when the current attempt's
// latch releases.
func (p *PortAddressing) Await() async.Future[struct{}] {
	if p.latch == nil {
		return async.FutureFunc[struct{}](func(func()) (struct{}, bool) {
			return struct{}{}, true
		})
	}
	return p.latch.Await()
}

// NewPortAddressing creates an idle state machine for ctrl.
func NewPortAddressing(ctrl *Controller) *PortAddressing {
	exec, spawner := async.NewExecutor[AddressResult]()
	return &PortAddressing{
		ctrl:      ctrl,
		exec:      exec,
		spawner:   spawner,
		current:   -1,
		Addressed: async.NewChannel[AddressResult](),
	}
}

// Bootstrap enqueues every port already reporting CCS=1 at boot, clearing
// their connect-status-change bit first (spec.md §4.8, "Trigger").
func (p *PortAddressing) Bootstrap() {
	for port := 0; port < p.ctrl.NumberOfPorts(); port++ {
		if p.ctrl.CurrentConnectStatus(port) {
			p.ctrl.ClearConnectStatusChange(port)
			p.waiting = append(p.waiting, port)
		}
	}
	p.maybeStartNext()
}

// HandlePortStatusChange processes one PortStatusChange event TRB,
// queuing newly-connected ports and advancing an in-progress reset. The
// port ID shares the byte this event type reuses the transfer event's
// SlotID field for (xHCI 1.2 table 6-49), one-indexed.
func (p *PortAddressing) HandlePortStatusChange(evt TRB) {
	port := evt.SlotID() - 1
	if port < 0 {
		return
	}

	csc := p.ctrl.ConnectStatusChange(port)
	ccs := p.ctrl.CurrentConnectStatus(port)
	prc := p.ctrl.PortResetChange(port)

	if csc && ccs {
		p.ctrl.ClearConnectStatusChange(port)
		p.waiting = append(p.waiting, port)
	} else if prc {
		p.ctrl.ClearPortResetChange(port)
		if p.current == port {
			p.startAddressing(port)
		}
	}

	p.maybeStartNext()
}

func (p *PortAddressing) maybeStartNext() {
	if p.current != -1 || len(p.waiting) == 0 {
		return
	}

	port := p.waiting[0]
	p.waiting = p.waiting[1:]
	p.current = port
	p.latch = async.NewBroadcast()
	p.resetPort(port)
}

func (p *PortAddressing) resetPort(port int) {
	log.Printf("xhci: resetting port %d (ccs=%v csc=%v)", port,
		p.ctrl.CurrentConnectStatus(port), p.ctrl.ConnectStatusChange(port))
	p.ctrl.SetPortReset(port)
}

func (p *PortAddressing) startAddressing(port int) {
	log.Printf("xhci: addressing device at port=%d", port)
	p.spawner.Spawn(&addressTask{ctrl: p.ctrl, port: port, phase: phaseEnableSlot})
}

// RunExecutor drives the addressing executor until no task is ready
// (spec.md §4.13's "run the executor until it has no ready task",
// applied here to the addressing sub-executor rather than the top-level
// one), publishing each finished attempt and releasing the port-reset
// serialisation latch.
func (p *PortAddressing) RunExecutor() {
	for p.exec.HasNextTask() {
		result, ok := p.exec.ProcessNextTask()
		if !ok {
			continue
		}

		p.current = -1
		released := p.latch
		p.latch = nil
		released.Send()
		p.Addressed.Send(result)
		p.maybeStartNext()
	}
}

// addressTask is the two-phase EnableSlot → AddressDevice command
// sequence, implemented as an explicit state machine so it can be driven
// by the generic async.Executor rather than needing native coroutines.
type addressTask struct {
	ctrl  *Controller
	port  int
	phase int

	slotID int
	fut    async.Future[TRB]
}

const (
	phaseEnableSlot = iota
	phaseAddressDevice
)

func (t *addressTask) Poll(wake func()) (AddressResult, bool) {
	if t.fut == nil {
		oneshot, err := t.ctrl.EnableSlot()
		if err != nil {
			return AddressResult{Port: t.port, Err: err}, true
		}
		t.fut = oneshot.Await()
	}

	switch t.phase {
	case phaseEnableSlot:
		trb, ready := t.fut.Poll(wake)
		if !ready {
			return AddressResult{}, false
		}

		if trb.CompletionCode() != CompletionSuccess {
			return AddressResult{Port: t.port, Err: &CommandError{Command: TypeEnableSlot, CompletionCode: trb.CompletionCode()}}, true
		}

		t.slotID = trb.SlotID()
		log.Printf("xhci: enabled slot=%d for port=%d", t.slotID, t.port)

		t.ctrl.Dcbaa().InitContextAt(t.slotID)
		trfRingPtr := t.ctrl.InitTransferRing(t.slotID, 1)
		input := buildAddressDeviceInput(t.ctrl, t.port, trfRingPtr)

		oneshot, err := t.ctrl.AddressDevice(input, t.slotID, false)
		if err != nil {
			return AddressResult{Port: t.port, SlotID: t.slotID, Err: err}, true
		}

		t.fut = oneshot.Await()
		t.phase = phaseAddressDevice
		return t.Poll(wake)

	case phaseAddressDevice:
		trb, ready := t.fut.Poll(wake)
		if !ready {
			return AddressResult{}, false
		}

		if trb.CompletionCode() != CompletionSuccess {
			return AddressResult{Port: t.port, SlotID: t.slotID, Err: &CommandError{Command: TypeAddressDevice, CompletionCode: trb.CompletionCode()}}, true
		}

		log.Printf("xhci: addressing finished port=%d slot=%d", t.port, t.slotID)
		return AddressResult{Port: t.port, SlotID: t.slotID}, true
	}

	return AddressResult{}, false
}

// buildAddressDeviceInput implements spec.md §4.8 step 6: slot context
// carries the port number, route string 0, one context entry, and speed
// read live from PORTSC; endpoint 1 (the default control pipe) gets its
// type, max packet size by speed, dequeue pointer/DCS, and a
// conservative error count of 3.
func buildAddressDeviceInput(c *Controller, port int, trfRingPtr uint64) *InputContext {
	input := NewInputContext(c.ContextSize())
	input.SetAddContextFlag(0) // slot context
	input.SetAddContextFlag(1) // endpoint 1 (DCI 1 = control pipe)

	speed := c.PortSpeed(port)

	slot := input.Slot()
	slot.SetRootHubPortNumber(uint8(port + 1))
	slot.SetRouteString(0)
	slot.SetContextEntries(1)
	slot.SetSpeed(speed)

	ep1 := input.Endpoint(1)
	ep1.SetEndpointType(EndpointTypeControl)
	ep1.SetMaxPacketSize(maxPacketSizeForSpeed(speed))
	ep1.SetMaxBurstSize(0)
	ep1.SetTRDequeuePointer(trfRingPtr)
	ep1.SetDequeueCycleState()
	ep1.SetInterval(0)
	ep1.SetMaxPrimaryStreams(0)
	ep1.SetMult(0)
	ep1.SetErrorCount(3)

	return input
}

// maxPacketSizeForSpeed maps a PORTSC port speed (xHCI 1.2 table 5-23) to
// its default control-pipe max packet size (USB 2.0 §5.5.3, USB 3.x §8.2).
func maxPacketSizeForSpeed(speed uint8) uint16 {
	switch speed {
	case 1: // Full-speed
		return 64
	case 2: // Low-speed
		return 8
	case 3: // High-speed
		return 64
	case 4: // SuperSpeed
		return 512
	default:
		return 8
	}
}
