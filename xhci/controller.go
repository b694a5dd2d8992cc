// xHCI controller initialisation
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import (
	"log"

	"golang.org/x/time/rate"

	"github.com/mknm-os/kernel/async"
	"github.com/mknm-os/kernel/soc/intel/pci"
)

// Controller owns one xHC: its register set, rings, device context array
// and the listener tables that connect ring completions back to the
// oneshots awaited by the async tasks built on top of it.
type Controller struct {
	regs *Registers

	cmdRing   *ProducerRing
	cmdWait   map[uint64]*async.Oneshot[TRB]
	eventRing *EventRing

	trfRings map[trfKey]*ProducerRing
	trfWait  map[uint64]*async.Oneshot[TransferResult]

	dcbaa *Dcbaa

	device *pci.Device

	PortStatusChange *async.Channel[TRB]

	// transferErrLimiter throttles the bus-error console log in
	// onTransferEvent: a wedged or misbehaving device can retire dozens of
	// failing transfers a second, and logging every one of them would
	// drown out everything else on the console.
	transferErrLimiter *rate.Limiter
}

// transferErrLogRate and transferErrLogBurst bound onTransferEvent's
// bus-error logging to a handful of lines per second with a small burst
// allowance for a cluster of failures hitting at once.
const (
	transferErrLogRate  = 2
	transferErrLogBurst = 5
)

type trfKey struct {
	slotID, endpointID int
}

// TransferResult is the outcome of one control or interrupt transfer: the
// completion event TRB that resolved it, and a non-nil TransferError if
// the completion code wasn't success/short-packet.
type TransferResult struct {
	Event TRB
	Err   error
}

// capIDUSBLegacySupport is the ID of the USB Legacy Support extended
// capability. ownershipHandoff walks the common header every xHCI extended
// capability in MMIO space starts with (xHCI 1.2 §7.2): a one-byte ID, a
// one-byte next-pointer (in dwords from this capability, 0 terminates the
// list) and 16 bits of capability-specific data.
const (
	capIDUSBLegacySupport = 1
)

func (c *Controller) ownershipHandoff() {
	ecp := uint64(c.regs.ExtendedCapabilitiesPointer())
	if ecp == 0 {
		return
	}

	base := c.regs.base + ecp*4
	for {
		id := mmioByte(base)
		if id == capIDUSBLegacySupport {
			break
		}
		next := mmioByte(base + 1)
		if next == 0 {
			return
		}
		base += uint64(next) * 4
	}

	capSpecific := base + 2
	v := mmioWord(capSpecific)
	if (v>>8)&1 == 1 {
		// already OS-owned
	} else {
		mmioWriteWord(capSpecific, v|(1<<8))
		for {
			v = mmioWord(capSpecific)
			biosOwned := v & 1
			osOwned := (v >> 8) & 1
			if biosOwned == 0 && osOwned == 1 {
				break
			}
		}
	}

	ctlSts := mmioDword(base + 4)
	ctlSts &= 0xffff1fee
	ctlSts |= 0xe0000000
	mmioWriteDword(base+4, ctlSts)
}

// routeIntelEHCIPorts reroutes companion ports from an Intel eHCI
// controller to this xHC by copying the port-routing mask register
// (XUSB2PRM, 0xD4) into the port-routing control register (XUSB2PR,
// 0xD0) of the xHC's own configuration space.
func (c *Controller) routeIntelEHCIPorts() {
	portsAvailable := c.device.Read(0, 0xD4)
	c.device.Write(0, 0xD0, portsAvailable)
}

func (c *Controller) resetHC() {
	c.regs.ClearLegacyEnables()

	if !c.regs.HCHalted() {
		log.Printf("xhci: stopping controller")
		c.regs.SetRunStop(false)
		for !c.regs.HCHalted() {
		}
	}

	log.Printf("xhci: resetting controller")
	c.regs.SetHCReset()
	for c.regs.HCResetInProgress() {
	}
	for c.regs.ControllerNotReady() {
	}
}

// New brings up the xHC found at dev's BAR0 per spec.md §4.7's fourteen
// steps, wiring its MSI vector to the local APIC and returning a ready
// Controller. vector is the IDT/LAPIC interrupt vector this controller's
// MSI targets; lapicID identifies the destination CPU (always the boot
// CPU on this kernel).
func New(dev *pci.Device, intelEHCIFound bool, lapicID uint8, vector uint8) *Controller {
	bar0 := uint64(dev.BaseAddress(0))
	mmioBase := bar0 &^ 0xf

	regs := NewRegisters(mmioBase)
	c := &Controller{
		regs:               regs,
		device:             dev,
		cmdWait:            map[uint64]*async.Oneshot[TRB]{},
		trfRings:           map[trfKey]*ProducerRing{},
		trfWait:            map[uint64]*async.Oneshot[TransferResult]{},
		PortStatusChange:   async.NewChannel[TRB](),
		transferErrLimiter: rate.NewLimiter(transferErrLogRate, transferErrLogBurst),
	}

	c.ownershipHandoff()

	if intelEHCIFound {
		log.Printf("xhci: switching eHCI ports to xHCI")
		c.routeIntelEHCIPorts()
	}

	log.Printf("xhci: initializing controller")
	c.resetHC()

	maxSlots := regs.NumberOfDeviceSlots()
	ctxSize := ContextSize32
	if regs.ContextSize64() {
		ctxSize = ContextSize64
	}

	regs.SetMaxDeviceSlotsEnabled(maxSlots)

	numScratch := regs.MaxScratchpadBuffers()
	pageSize := regs.PageSize()
	c.dcbaa = NewDcbaa(maxSlots, ctxSize, numScratch, pageSize)
	regs.SetDCBAAP(c.dcbaa.Addr())

	c.cmdRing = NewProducerRing(32)
	regs.SetCRCR(c.cmdRing.BufPtr())

	c.eventRing = NewEventRing(32)
	erstAddr := newERST(c.eventRing.BufPtr(), 32)
	regs.SetERST(erstAddr, c.eventRing.DequeAddr())

	regs.SetInterruptModerationInterval(4000)
	regs.EnableInterrupter0()

	if msi := findMSI(dev); msi != nil {
		addr := uint64(0xfee00000) | uint64(lapicID)<<12
		msi.EnableInterrupt(addr, uint32(vector))
	}

	regs.SetInterrupterEnable(true)
	regs.SetRunStop(true)
	for regs.HCHalted() {
	}

	return c
}

// NumberOfPorts exposes the root hub's port count for the port-addressing
// state machine.
func (c *Controller) NumberOfPorts() int { return c.regs.NumberOfPorts() }

// newERST allocates a single-entry Event Ring Segment Table, the layout
// xHCI 1.2 §6.5 requires for ERSTBA: {ring segment base (64-bit), segment
// size (dword), reserved (dword)}.
func newERST(ringBase uint64, size uint32) uint64 {
	addr, buf := reserveBytes(16)
	putU64(buf, 0, ringBase)
	putU32(buf, 8, size)
	return uint64(addr)
}

func findMSI(dev *pci.Device) *pci.CapabilityMSI {
	var found *pci.CapabilityMSI
	for off, hdr := range dev.Capabilities() {
		if hdr.Vendor == pci.MSI {
			msi := &pci.CapabilityMSI{}
			if err := msi.Unmarshal(dev, off); err == nil {
				found = msi
			}
			break
		}
	}
	return found
}

// onXhcInterrupt drains the event ring, dispatching each TRB per spec.md
// §4.12, then writes back ERDP. Called from the xHCI IRQ handler task.
func (c *Controller) OnXhcInterrupt() {
	var last TRB
	drained := false

	for {
		trb, ok := c.eventRing.Pop()
		if !ok {
			break
		}
		drained = true
		last = trb

		switch trb.Type() {
		case TypeTransferEvent:
			c.onTransferEvent(trb)
		case TypeCommandCompletion:
			c.onCommandCompletion(trb)
		case TypePortStatusChange:
			c.PortStatusChange.Send(trb)
		}
	}

	if drained {
		_ = last
		c.regs.SetERDP(c.eventRing.DequeAddr())
	}
}

func (c *Controller) onCommandCompletion(trb TRB) {
	ptr := trb.Pointer()
	c.cmdRing.SetDequePtr(ptr)

	if w, ok := c.cmdWait[ptr]; ok {
		delete(c.cmdWait, ptr)
		w.Send(trb)
	}
}

func (c *Controller) onTransferEvent(trb TRB) {
	key := trfKey{trb.SlotID(), trb.EndpointID()}
	if ring, ok := c.trfRings[key]; ok {
		ring.SetDequePtr(trb.Pointer())
	}

	var err error
	cc := trb.CompletionCode()
	if cc != CompletionSuccess && cc != CompletionShortPacket {
		err = &TransferError{SlotID: trb.SlotID(), EndpointID: trb.EndpointID(), CompletionCode: cc}
		if c.transferErrLimiter.Allow() {
			log.Printf("xhci: transfer error slot=%d ep=%d code=%d", trb.SlotID(), trb.EndpointID(), cc)
		}
	}

	ptr := trb.Pointer()
	if w, ok := c.trfWait[ptr]; ok {
		delete(c.trfWait, ptr)
		w.Send(TransferResult{Event: trb, Err: err})
	}
}

// mmioByte/mmioWord/mmioDword read raw bytes from an absolute MMIO
// address, used only for the pre-capability-struct extended-capability
// walk (ownership handoff), which predates the register sets the rest of
// this package addresses relative to their own base.
func mmioByte(addr uint64) uint8 {
	shift := (addr & 3) * 8
	return uint8(mmioDword(addr&^3) >> shift)
}

func mmioWord(addr uint64) uint16 {
	shift := (addr & 3) * 8
	return uint16(mmioDword(addr&^3) >> shift)
}

func mmioDword(addr uint64) uint32 {
	return dwordRead(addr)
}

func mmioWriteWord(addr uint64, val uint16) {
	shift := (addr & 3) * 8
	dwordWriteWord(addr&^3, uint(shift), val)
}

func mmioWriteDword(addr uint64, val uint32) {
	dwordWrite(addr, val)
}
