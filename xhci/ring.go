// xHCI command/transfer and event ring management
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

// reserveTRBs reserves size*16 bytes of stable DMA memory and returns both
// its address and a []TRB view directly over that memory — TRB writes are
// then plain Go store operations, with no separate encode/flush step,
// matching how dma.Region.Reserve is meant to back a hardware-visible ring
// with no intervening copy.
func reserveTRBs(size int) (uint, []TRB) {
	addr, buf := dma.Reserve(size*16, 64)
	return addr, unsafe.Slice((*TRB)(unsafe.Pointer(&buf[0])), size)
}

// ProducerRing is a software-to-hardware TRB ring: the command ring and
// every transfer ring. The last slot of the backing array is always a Link
// TRB pointing back to slot 0 with the toggle-cycle bit set, so the ring
// never actually uses its last entry for payload — one slot is
// permanently wasted to let next_ptr's wraparound double as the producer
// cycle-bit flip.
type ProducerRing struct {
	addr       uint
	data       []TRB
	cycleState bool
	enque      int
	deque      int
}

// NewProducerRing allocates a size-entry ring (including the trailing Link
// TRB) backed by DMA memory, so its address is stable and can be handed to
// the controller as CRCR/a transfer-ring dequeue pointer.
func NewProducerRing(size int) *ProducerRing {
	addr, data := reserveTRBs(size)
	r := &ProducerRing{addr: addr, data: data, cycleState: true}
	r.data[size-1] = NewLink(uint64(addr))
	return r
}

// nextPtr returns the slot following ptr, wrapping before the trailing
// Link TRB (spec.md's producer ring invariant: the Link TRB's slot is
// never returned as a usable producer position).
func (r *ProducerRing) nextPtr(ptr int) int {
	if ptr+1 == len(r.data)-1 {
		return 0
	}
	return ptr + 1
}

func (r *ProducerRing) advanceEnque() {
	r.enque++
	if r.enque == len(r.data)-1 {
		r.data[r.enque].SetCycleBit(r.cycleState)
		r.enque = 0
		r.cycleState = !r.cycleState
	}
}

// Push writes trb into the next producer slot, returning the address the
// TRB was written at (used as the command/transfer-completion listener
// key) or ErrRingFull if the ring has caught up with the consumer.
func (r *ProducerRing) Push(trb TRB) (uint64, error) {
	if r.nextPtr(r.enque) == r.deque {
		return 0, ErrRingFull
	}

	trb.SetCycleBit(r.cycleState)
	r.data[r.enque] = trb

	ptr := r.SlotAddr(r.enque)
	r.advanceEnque()

	return ptr, nil
}

// SlotAddr returns the DMA address of ring slot i.
func (r *ProducerRing) SlotAddr(i int) uint64 {
	return uint64(r.addr) + uint64(i)*16
}

// SetDequePtr updates the consumer position from a dequeue pointer reported
// by the controller (the TRB pointer carried in a transfer/command
// completion event).
func (r *ProducerRing) SetDequePtr(dequePtr uint64) {
	index := int((dequePtr - uint64(r.addr)) / 16)
	r.deque = r.nextPtr(index)
}

// CycleState returns the producer's current cycle bit.
func (r *ProducerRing) CycleState() bool {
	return r.cycleState
}

// BufPtr returns the ring's DMA base address.
func (r *ProducerRing) BufPtr() uint64 {
	return uint64(r.addr)
}

// Size returns the number of slots, including the trailing Link TRB.
func (r *ProducerRing) Size() int {
	return len(r.data)
}

// EventRing is the controller-to-software ring read by polling the cycle
// bit, per xHCI 1.2 §4.9.4. Unlike ProducerRing it has no Link TRB: a
// single contiguous segment is used (ERST has exactly one entry), and
// wraparound flips the consumer's expected cycle state directly.
type EventRing struct {
	addr       uint
	data       []TRB
	cycleState bool
	deque      int
}

// NewEventRing allocates a size-entry event ring.
func NewEventRing(size int) *EventRing {
	addr, data := reserveTRBs(size)
	return &EventRing{addr: addr, data: data, cycleState: true}
}

// Pop returns the next event TRB if the controller has produced one (its
// cycle bit matches the consumer's expected state), else ok is false and
// the deque pointer is left unmoved.
func (r *EventRing) Pop() (trb TRB, ok bool) {
	trb = r.data[r.deque]

	if trb.CycleBit() != r.cycleState {
		return TRB{}, false
	}

	r.deque++
	if r.deque == len(r.data) {
		r.deque = 0
		r.cycleState = !r.cycleState
	}

	return trb, true
}

// DequeIndex returns the consumer's current slot index; DequeAddr gives
// the matching address written to ERDP after draining.
func (r *EventRing) DequeIndex() int {
	return r.deque
}

// BufPtr returns the event ring's DMA base address, used for the ERST
// entry.
func (r *EventRing) BufPtr() uint64 {
	return uint64(r.addr)
}

// CycleState returns the consumer's current cycle bit.
func (r *EventRing) CycleState() bool {
	return r.cycleState
}

// DequeAddr returns the DMA address of the current consumer slot, written
// back to ERDP to tell the controller how far the event ring has been
// drained.
func (r *EventRing) DequeAddr() uint64 {
	return uint64(r.addr) + uint64(r.deque)*16
}
