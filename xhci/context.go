// xHCI device/input context layout and DCBAA management
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import (
	"unsafe"

	"github.com/mknm-os/kernel/dma"
)

// ContextSize distinguishes the 32-byte and 64-byte device/input context
// entry sizes selected by HCCPARAMS1.CSZ (xHCI 1.2 §6.2.1).
type ContextSize int

const (
	ContextSize32 ContextSize = 32
	ContextSize64 ContextSize = 64
)

// contextsPerDevice is the slot context plus 31 possible endpoint contexts
// (DCI 1..31), xHCI 1.2 §6.2.1.
const contextsPerDevice = 32

// slotCtx is a view over a slot context entry's first 8 dwords, the fields
// actually used by this driver (xHCI 1.2 §6.2.2).
type slotCtx struct {
	words []uint32
}

func (s slotCtx) SetRouteString(v uint32)     { s.words[0] = (s.words[0] &^ 0xfffff) | (v & 0xfffff) }
func (s slotCtx) SetSpeed(v uint8)            { s.words[0] = (s.words[0] &^ (0xf << 20)) | uint32(v&0xf)<<20 }
func (s slotCtx) SetContextEntries(v uint8)   { s.words[0] = (s.words[0] &^ (0x1f << 27)) | uint32(v&0x1f)<<27 }
func (s slotCtx) SetRootHubPortNumber(v uint8) {
	s.words[1] = (s.words[1] &^ (0xff << 16)) | uint32(v)<<16
}
func (s slotCtx) RootHubPortNumber() uint8 { return uint8(s.words[1] >> 16) }
func (s slotCtx) Speed() uint8             { return uint8(s.words[0] >> 20 & 0xf) }
func (s slotCtx) SetInterrupterTarget(v uint16) {
	s.words[2] = (s.words[2] &^ (0x3ff << 22)) | uint32(v&0x3ff)<<22
}
func (s slotCtx) SlotState() int { return int(s.words[3] >> 27) }

// endpointType enumerates the Endpoint Type field (xHCI 1.2 table 6-9).
const (
	EndpointTypeIsochOut     = 1
	EndpointTypeBulkOut      = 2
	EndpointTypeInterruptOut = 3
	EndpointTypeControl      = 4
	EndpointTypeIsochIn      = 5
	EndpointTypeBulkIn       = 6
	EndpointTypeInterruptIn  = 7
)

// EndpointTypeFor maps a descriptor's direction bit (1 = IN) and transfer
// type (bmAttributes bits 1:0, USB 2.0 table 9-13) to the xHCI Endpoint
// Type field.
func EndpointTypeFor(in bool, transferType uint8) uint8 {
	switch {
	case !in && transferType == 1:
		return EndpointTypeIsochOut
	case !in && transferType == 2:
		return EndpointTypeBulkOut
	case !in && transferType == 3:
		return EndpointTypeInterruptOut
	case transferType == 0:
		return EndpointTypeControl
	case in && transferType == 1:
		return EndpointTypeIsochIn
	case in && transferType == 2:
		return EndpointTypeBulkIn
	case in && transferType == 3:
		return EndpointTypeInterruptIn
	}
	panic("xhci: illegal endpoint type")
}

// epCtx is a view over an endpoint context entry's first 8 dwords, of which
// the setters below touch dwords 0-3 (xHCI 1.2 §6.2.3).
type epCtx struct {
	words []uint32
}

func (e epCtx) SetEndpointType(v uint8) { e.words[1] = (e.words[1] &^ (0x7 << 3)) | uint32(v&0x7)<<3 }
func (e epCtx) SetMaxPacketSize(v uint16) {
	e.words[1] = (e.words[1] &^ (0xffff << 16)) | uint32(v)<<16
}
func (e epCtx) SetMaxBurstSize(v uint8) { e.words[1] = (e.words[1] &^ (0xff << 8)) | uint32(v)<<8 }
func (e epCtx) SetErrorCount(v uint8)   { e.words[1] = (e.words[1] &^ (0x3 << 1)) | uint32(v&0x3)<<1 }
func (e epCtx) SetInterval(v uint8)     { e.words[0] = (e.words[0] &^ (0xff << 16)) | uint32(v)<<16 }
func (e epCtx) SetMaxPrimaryStreams(v uint8) {
	e.words[0] = (e.words[0] &^ (0x1f << 10)) | uint32(v&0x1f)<<10
}
func (e epCtx) SetMult(v uint8) { e.words[0] = (e.words[0] &^ (0x3 << 8)) | uint32(v&0x3)<<8 }

// SetTRDequeuePointer sets the 64-bit TR Dequeue Pointer and, separately,
// the Dequeue Cycle State bit — the xHCI dequeue pointer must be
// programmed before the cycle state bit is touched, since both live in the
// same dword pair and the pointer write must not clobber a cycle bit set
// earlier (mirrors init_device.rs's comment on ordering).
func (e epCtx) SetTRDequeuePointer(addr uint64) {
	e.words[2] = uint32(addr) &^ 1
	e.words[3] = uint32(addr >> 32)
}

func (e epCtx) SetDequeueCycleState() {
	e.words[2] |= 1
}

// dwordsAt returns a []uint32 view over n dwords starting at byte offset
// off within buf.
func dwordsAt(buf []byte, off, n int) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&buf[off])), n)
}

// DeviceContext is the output context the controller fills in for an
// addressed slot: a slot context followed by up to 31 endpoint contexts,
// each ContextSize bytes wide.
type DeviceContext struct {
	addr uint
	buf  []byte
	size ContextSize
}

func newDeviceOrInputContext(size ContextSize, extra int) (uint, []byte) {
	total := (contextsPerDevice + extra) * int(size)
	addr, buf := dma.Reserve(total, 64)
	for i := range buf {
		buf[i] = 0
	}
	return addr, buf
}

// NewDeviceContext allocates a zeroed output device context.
func NewDeviceContext(size ContextSize) *DeviceContext {
	addr, buf := newDeviceOrInputContext(size, 0)
	return &DeviceContext{addr: addr, buf: buf, size: size}
}

// Addr returns the context's DMA address, stored in the DCBAA slot.
func (d *DeviceContext) Addr() uint64 { return uint64(d.addr) }

// Slot returns the slot context view.
func (d *DeviceContext) Slot() slotCtx {
	return slotCtx{dwordsAt(d.buf, 0, 8)}
}

// Endpoint returns the endpoint context view for DCI dci (1..31).
func (d *DeviceContext) Endpoint(dci int) epCtx {
	return epCtx{dwordsAt(d.buf, dci*int(d.size), 8)}
}

// InputContext is the controller-read input passed with Address Device
// and Configure Endpoint commands: an input control context followed by
// the same slot+endpoint layout as DeviceContext.
type InputContext struct {
	addr uint
	buf  []byte
	size ContextSize
}

// NewInputContext allocates a zeroed input context (one extra context
// entry at index 0, the Input Control Context, xHCI 1.2 §6.2.5).
func NewInputContext(size ContextSize) *InputContext {
	addr, buf := newDeviceOrInputContext(size, 1)
	return &InputContext{addr: addr, buf: buf, size: size}
}

// Addr returns the input context's DMA address, the Input Context Pointer
// field of Address Device / Configure Endpoint command TRBs.
func (ic *InputContext) Addr() uint64 { return uint64(ic.addr) }

// SetAddContextFlag sets the A_n bit (n=0 is the slot context, 1..31 are
// endpoint DCIs) in the Input Control Context's Add Context Flags, its
// second dword (the first holds the Drop Context Flags).
func (ic *InputContext) SetAddContextFlag(n int) {
	words := dwordsAt(ic.buf, 0, 8)
	words[1] |= 1 << uint(n)
}

// Slot returns the slot context view (offset by one context entry past
// the input control context).
func (ic *InputContext) Slot() slotCtx {
	return slotCtx{dwordsAt(ic.buf, int(ic.size), 8)}
}

// Endpoint returns the endpoint context view for DCI dci (1..31).
func (ic *InputContext) Endpoint(dci int) epCtx {
	return epCtx{dwordsAt(ic.buf, (1+dci)*int(ic.size), 8)}
}

// Dcbaa is the Device Context Base Address Array: index 0 holds the
// scratchpad buffer array pointer (if any scratchpad buffers are
// required), indices 1..MaxSlots hold per-slot DeviceContext pointers.
type Dcbaa struct {
	addr      uint
	table     []uint64
	contexts  map[int]*DeviceContext
	ctxSize   ContextSize
	scratch   uint
}

// NewDcbaa allocates the DCBAA for maxSlots device slots and, if
// numScratchpads > 0, the scratchpad buffer array the controller requires
// before it will service any command (xHCI 1.2 §4.20, "Scratchpad
// Buffers").
func NewDcbaa(maxSlots int, ctxSize ContextSize, numScratchpads, pageSize int) *Dcbaa {
	addr, buf := dma.Reserve((maxSlots+1)*8, 64)
	table := unsafe.Slice((*uint64)(unsafe.Pointer(&buf[0])), maxSlots+1)
	for i := range table {
		table[i] = 0
	}

	d := &Dcbaa{addr: addr, table: table, contexts: map[int]*DeviceContext{}, ctxSize: ctxSize}

	if numScratchpads > 0 {
		scratchArrAddr, scratchArrBuf := dma.Reserve(numScratchpads*8, 64)
		ptrs := unsafe.Slice((*uint64)(unsafe.Pointer(&scratchArrBuf[0])), numScratchpads)
		for i := 0; i < numScratchpads; i++ {
			pageAddr, _ := dma.Reserve(pageSize, pageSize)
			ptrs[i] = uint64(pageAddr)
		}
		d.scratch = scratchArrAddr
		table[0] = uint64(scratchArrAddr)
	}

	return d
}

// Addr returns the DCBAA's DMA address, programmed into DCBAAP.
func (d *Dcbaa) Addr() uint64 { return uint64(d.addr) }

// InitContextAt allocates a fresh device context for slot_id and records
// its address in the DCBAA.
func (d *Dcbaa) InitContextAt(slotID int) *DeviceContext {
	ctx := NewDeviceContext(d.ctxSize)
	d.contexts[slotID] = ctx
	d.table[slotID] = ctx.Addr()
	return ctx
}

// ContextAt returns the previously-initialized device context for slotID.
func (d *Dcbaa) ContextAt(slotID int) *DeviceContext {
	return d.contexts[slotID]
}

// CtxSize returns the context entry size this DCBAA was built for.
func (d *Dcbaa) CtxSize() ContextSize { return d.ctxSize }
