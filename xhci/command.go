// xHCI command ring
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import "github.com/mknm-os/kernel/async"

// PushCommand pushes trb onto the command ring, rings the command
// doorbell (target 0, slot 0) and registers a oneshot resolved by the
// matching CommandCompletion event.
func (c *Controller) PushCommand(trb TRB) (*async.Oneshot[TRB], error) {
	ptr, err := c.cmdRing.Push(trb)
	if err != nil {
		return nil, err
	}

	c.regs.RingDoorbell(0, 0)

	w := async.NewOneshot[TRB]()
	c.cmdWait[ptr] = w
	return w, nil
}

// EnableSlot issues an Enable Slot command and returns the future
// resolving with its completion TRB.
func (c *Controller) EnableSlot() (*async.Oneshot[TRB], error) {
	return c.PushCommand(NewEnableSlot())
}

// AddressDevice issues an Address Device command for slotID using input
// as the Input Context Pointer.
func (c *Controller) AddressDevice(input *InputContext, slotID int, bsr bool) (*async.Oneshot[TRB], error) {
	return c.PushCommand(NewAddressDevice(input.Addr(), slotID, bsr))
}

// ConfigureEndpoint issues a Configure Endpoint command for slotID using
// input as the Input Context Pointer.
func (c *Controller) ConfigureEndpoint(input *InputContext, slotID int) (*async.Oneshot[TRB], error) {
	return c.PushCommand(NewConfigureEndpoint(input.Addr(), slotID))
}

// RingDoorbell rings the doorbell for (slotID, target), used by class
// drivers resubmitting an interrupt-IN transfer directly rather than
// through ControlRequest.
func (c *Controller) RingDoorbell(slotID int, target uint8) { c.regs.RingDoorbell(slotID, target) }

// Dcbaa exposes the controller's device context base address array to the
// port-addressing state machine.
func (c *Controller) Dcbaa() *Dcbaa { return c.dcbaa }

// ContextSize exposes the context entry width this controller negotiated.
func (c *Controller) ContextSize() ContextSize { return c.dcbaa.CtxSize() }

// PortSpeed exposes PORTSC.PortSpeed for port (0-indexed).
func (c *Controller) PortSpeed(port int) uint8 { return c.regs.PortSpeed(port) }

// SetPortReset, ClearConnectStatusChange, ClearPortResetChange,
// CurrentConnectStatus and ConnectStatusChange forward to the register
// set for the port-addressing state machine.
func (c *Controller) SetPortReset(port int)             { c.regs.SetPortReset(port) }
func (c *Controller) ClearConnectStatusChange(port int) { c.regs.ClearConnectStatusChange(port) }
func (c *Controller) ClearPortResetChange(port int)     { c.regs.ClearPortResetChange(port) }
func (c *Controller) CurrentConnectStatus(port int) bool { return c.regs.CurrentConnectStatus(port) }
func (c *Controller) ConnectStatusChange(port int) bool  { return c.regs.ConnectStatusChange(port) }
func (c *Controller) PortResetChange(port int) bool      { return c.regs.PortResetChange(port) }
