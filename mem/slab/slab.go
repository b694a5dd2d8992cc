// Slab object allocator
// https://github.com/mknm-os/kernel
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package slab implements the kernel's general-purpose heap: a fixed set of
// size classes, each backed by one page carved into an intrusive free-list
// of equal-sized objects.
package slab

import (
	"encoding/binary"
	"sync"
	"unsafe"

	"github.com/mknm-os/kernel/mem/frame"
)

// classSizes are the six object size classes served by the allocator.
var classSizes = [...]int{64, 128, 256, 512, 1024, 2048}

const noNext = ^uint64(0)

// freeList is an intrusive singly-linked list of free objects within one
// page: the first 8 bytes of each free object store the offset, within the
// page, of the next free object (or noNext).
type freeList struct {
	headOffset uint64
	hasHead    bool
}

func (p *page) pushFront(off uint64) {
	next := noNext
	if p.free.hasHead {
		next = p.free.headOffset
	}
	binary.LittleEndian.PutUint64(p.mem[off:], next)
	p.free.headOffset = off
	p.free.hasHead = true
}

// popFiltered walks the free list and detaches the first object whose
// address satisfies predicate, in O(k). Returns ok=false if none qualifies.
func (p *page) popFiltered(predicate func(addr uintptr) bool) (off uint64, ok bool) {
	if !p.free.hasHead {
		return 0, false
	}

	addrOf := func(off uint64) uintptr {
		return uintptr(unsafe.Pointer(&p.mem[off]))
	}

	if predicate(addrOf(p.free.headOffset)) {
		off = p.free.headOffset
		next := binary.LittleEndian.Uint64(p.mem[off:])
		p.free.headOffset = next
		p.free.hasHead = next != noNext
		return off, true
	}

	prevOff := p.free.headOffset
	for {
		next := binary.LittleEndian.Uint64(p.mem[prevOff:])
		if next == noNext {
			return 0, false
		}
		if predicate(addrOf(next)) {
			nextNext := binary.LittleEndian.Uint64(p.mem[next:])
			binary.LittleEndian.PutUint64(p.mem[prevOff:], nextNext)
			return next, true
		}
		prevOff = next
	}
}

// page backs one size class: a 4 KiB frame carved into objects of objSize
// bytes, each tracked by the intrusive free list above.
type page struct {
	mem     []byte
	objSize int
	free    freeList
}

func newPage(mem []byte, objSize int) *page {
	p := &page{mem: mem, objSize: objSize}

	// Objects are packed from the start of the page; unlike the
	// reference allocator this page carries no header of its own (Go
	// tracks page metadata in the Go-side Allocator struct instead of
	// embedding it in the first bytes of the page), so every object
	// slot, including the first, is usable.
	n := len(mem) / objSize
	for i := n - 1; i >= 0; i-- {
		p.pushFront(uint64(i * objSize))
	}

	return p
}

// Allocator is the kernel's slab object allocator: six size classes, each
// backed by one page, with alignment-filtered pops. There is no refill
// path — once a class's page is exhausted, Alloc returns nil, matching the
// original "no refill" behaviour (see DESIGN.md Open Questions).
type Allocator struct {
	mu    sync.Mutex
	pages [len(classSizes)]*page
}

// New carves one page per size class out of the physical frame allocator.
func New(frames *frame.Allocator) *Allocator {
	a := &Allocator{}

	for i, size := range classSizes {
		f, err := frames.Allocate(1)
		if err != nil {
			panic("slab: out of memory initialising size classes")
		}

		ptr := frame.FrameToPtr(f)
		mem := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), frame.Size)
		a.pages[i] = newPage(mem, size)
	}

	return a
}

// NewBacked builds an Allocator directly from caller-supplied page-sized
// buffers, bypassing the physical frame allocator — used by tests that run
// outside a tamago kernel image.
func NewBacked(backing [][]byte) *Allocator {
	if len(backing) != len(classSizes) {
		panic("slab: NewBacked requires one buffer per size class")
	}

	a := &Allocator{}
	for i, size := range classSizes {
		a.pages[i] = newPage(backing[i], size)
	}
	return a
}

func classFor(size int) (int, bool) {
	for i, sz := range classSizes {
		if sz > size {
			return i, true
		}
	}
	return 0, false
}

// Alloc returns a pointer to an object of at least size bytes, aligned to
// align, or nil if size exceeds the largest class or the class's page is
// exhausted.
func (a *Allocator) Alloc(size, align int) unsafe.Pointer {
	index, ok := classFor(size)
	if !ok {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.pages[index]

	off, ok := p.popFiltered(func(addr uintptr) bool {
		return addr%uintptr(align) == 0
	})
	if !ok {
		return nil
	}

	return unsafe.Pointer(&p.mem[off])
}

// Free returns an object, originally allocated with the given size, to its
// class's free list. Callers must pass the same size used at Alloc time.
func (a *Allocator) Free(ptr unsafe.Pointer, size int) {
	index, ok := classFor(size)
	if !ok {
		panic("slab: free of oversized object")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.pages[index]
	off := uint64(uintptr(ptr) - uintptr(unsafe.Pointer(&p.mem[0])))
	p.pushFront(off)
}
