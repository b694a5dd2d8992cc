// xHCI control/interrupt transfer pipeline
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import (
	"unsafe"

	"github.com/mknm-os/kernel/async"
)

// BufAddr returns the physical address of a data-stage or report buffer.
// Callers must pass memory obtained from dma.Reserve/dma.Alloc — the xHC
// reads and writes this address directly and a moving collector would
// invalidate it mid-transfer.
func BufAddr(buf []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(&buf[0])))
}

func bufAddr(buf []byte) uint64 { return BufAddr(buf) }

// ControlRequestType is the fixed table of SETUP bmRequestType/bRequest
// pairs this driver issues (spec.md §4.10).
type ControlRequestType int

const (
	GetDescriptor ControlRequestType = iota
	SetConfiguration
	SetProtocol
	SetInterface
)

func (t ControlRequestType) values() (requestType uint8, request uint8) {
	switch t {
	case GetDescriptor:
		return 0x80, 6
	case SetConfiguration:
		return 0x00, 9
	case SetProtocol:
		return 0x21, 11
	case SetInterface:
		return 0x01, 11
	}
	return 0, 0
}

// SetupData describes one control request in terms abstract of the wire
// encoding (spec.md §4.10).
type SetupData struct {
	RequestType ControlRequestType
	Value       uint16
	Index       uint16
	Length      uint16
}

// InitTransferRing allocates and registers the transfer ring for
// (slotID, endpointID), returning its DMA base address — used as the
// endpoint context's initial TR Dequeue Pointer.
func (c *Controller) InitTransferRing(slotID, endpointID int) uint64 {
	ring := NewProducerRing(32)
	c.trfRings[trfKey{slotID, endpointID}] = ring
	return ring.BufPtr()
}

// PushTransferTRB pushes trb onto (slotID, endpointID)'s ring. When the
// TRB has its Interrupt On Completion bit set, a oneshot is registered at
// the TRB's ring address and
// returned; callers that don't need the completion pass the result
// through unused.
func (c *Controller) PushTransferTRB(slotID, endpointID int, trb TRB) (*async.Oneshot[TransferResult], error) {
	ring, ok := c.trfRings[trfKey{slotID, endpointID}]
	if !ok {
		panic("xhci: push to unregistered transfer ring")
	}

	ptr, err := ring.Push(trb)
	if err != nil {
		return nil, err
	}

	interruptOnCompletion := trb[3]&(1<<5) != 0
	if !interruptOnCompletion {
		return nil, nil
	}

	w := async.NewOneshot[TransferResult]()
	c.trfWait[ptr] = w
	return w, nil
}

// ControlRequest issues a full SETUP/(DATA)/STATUS sequence on slotID's
// default control pipe (endpoint 1), returning the oneshot that resolves
// with the transfer event covering the request (the DATA TRB's completion
// when data is carried, else the SETUP TRB's).
func (c *Controller) ControlRequest(slotID int, setup SetupData, data []byte) (*async.Oneshot[TransferResult], error) {
	reqType, req := setup.RequestType.values()
	deviceToHost := reqType>>7 == 1

	hasData := setup.Length > 0
	dataIn := deviceToHost

	setupTRB := NewSetupStage(reqType, req, setup.Value, setup.Index, setup.Length, dataIn, hasData)

	// Status stage direction is the opposite of the data stage, and IN
	// for every no-data request whatever its direction (spec.md §4.10).
	statusIn := !deviceToHost
	if !hasData {
		statusIn = true
	}
	statusTRB := NewStatusStage(statusIn)

	if !hasData {
		w, err := c.PushTransferTRB(slotID, 1, setupTRB)
		if err != nil {
			return nil, err
		}
		if _, err := c.PushTransferTRB(slotID, 1, statusTRB); err != nil {
			return nil, err
		}
		c.regs.RingDoorbell(slotID, 1)
		return w, nil
	}

	dataTRB := NewDataStage(bufAddr(data), uint32(setup.Length), dataIn)

	if _, err := c.PushTransferTRB(slotID, 1, setupTRB); err != nil {
		return nil, err
	}
	w, err := c.PushTransferTRB(slotID, 1, dataTRB)
	if err != nil {
		return nil, err
	}
	if _, err := c.PushTransferTRB(slotID, 1, statusTRB); err != nil {
		return nil, err
	}
	c.regs.RingDoorbell(slotID, 1)

	return w, nil
}
