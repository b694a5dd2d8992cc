// Physical frame allocator
// https://github.com/mknm-os/kernel
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package frame implements a bitmap-based physical page-frame allocator,
// seeded from the UEFI memory map handed off by the bootloader.
package frame

import (
	"fmt"
	"sync"
)

const (
	// Size is the frame size in bytes.
	Size = 4096

	// maxFrames bounds the bitmap to 128 GiB of addressable physical
	// memory (spec: "fixed address range covering ≤128 GiB").
	maxFrames = 128 * 1024 * 1024 * 1024 / Size

	wordBits = 64
)

// MemoryDescriptor is one record of the bootloader's UEFI memory map.
type MemoryDescriptor struct {
	Type          uint32
	PhysicalStart uint64
	NumberOfPages uint64
	Attribute     uint64
}

// UEFI memory types that this kernel treats as usable (EFI Boot Services
// Code/Data are reclaimed once the kernel is running, matching the
// memory-map conventions every UEFI loader example in the pack follows).
const (
	TypeConventionalMemory = 7
	TypeBootServicesCode   = 3
	TypeBootServicesData   = 4
)

// ErrNoSpace indicates no run of n contiguous free frames exists within the
// allocator's available range.
var ErrNoSpace = fmt.Errorf("frame: no contiguous run available")

// Allocator is a bitmap physical-frame allocator: one bit per frame, set
// means allocated. Zero concurrency internally — callers serialise through
// the embedded mutex, matching spec.md's "process-wide allocator mutex."
type Allocator struct {
	mu sync.Mutex

	bitmap []uint64

	// availableStart/availableEnd bound the frame-number window the
	// allocator scans; frames outside it are permanently unavailable.
	availableStart uint64
	availableEnd   uint64
}

// isUsable reports whether a memory-descriptor type is available for
// allocation once boot services have been exited.
func isUsable(typ uint32) bool {
	switch typ {
	case TypeConventionalMemory, TypeBootServicesCode, TypeBootServicesData:
		return true
	}
	return false
}

// New builds an Allocator from the bootloader-provided UEFI memory map.
// Every byte of every region not marked usable is left allocated; frame 0
// is always reserved and never handed out, matching the null-pointer
// convention the rest of the kernel relies on.
func New(descriptors []MemoryDescriptor) *Allocator {
	a := &Allocator{
		bitmap: make([]uint64, maxFrames/wordBits),
	}

	// start fully allocated; usable regions clear their bits below.
	for i := range a.bitmap {
		a.bitmap[i] = ^uint64(0)
	}

	a.setBit(0) // frame 0 is never handed out

	var minFrame, maxFrame uint64
	haveRange := false

	for _, d := range descriptors {
		startFrame := d.PhysicalStart / Size
		endFrame := startFrame + d.NumberOfPages

		if !isUsable(d.Type) {
			continue
		}

		if !haveRange || startFrame < minFrame {
			minFrame = startFrame
		}
		if endFrame > maxFrame {
			maxFrame = endFrame
		}
		haveRange = true

		for f := startFrame; f < endFrame && f < maxFrames; f++ {
			a.clearBit(f)
		}
	}

	a.setBit(0)

	if haveRange {
		a.availableStart = minFrame
		a.availableEnd = maxFrame
	}

	return a
}

func (a *Allocator) bitSet(f uint64) bool {
	return a.bitmap[f/wordBits]&(1<<(f%wordBits)) != 0
}

func (a *Allocator) setBit(f uint64) {
	a.bitmap[f/wordBits] |= 1 << (f % wordBits)
}

func (a *Allocator) clearBit(f uint64) {
	a.bitmap[f/wordBits] &^= 1 << (f % wordBits)
}

// Allocate performs a first-fit linear scan for a run of n contiguous clear
// bits within [availableStart, availableEnd), marks them allocated, and
// returns the starting frame number.
func (a *Allocator) Allocate(n uint64) (uint64, error) {
	if n == 0 {
		return 0, fmt.Errorf("frame: allocate(0) is invalid")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var runStart uint64
	runLen := uint64(0)

	for f := a.availableStart; f < a.availableEnd; f++ {
		if a.bitSet(f) {
			runLen = 0
			continue
		}

		if runLen == 0 {
			runStart = f
		}
		runLen++

		if runLen == n {
			for i := uint64(0); i < n; i++ {
				a.setBit(runStart + i)
			}
			return runStart, nil
		}
	}

	return 0, ErrNoSpace
}

// Free clears n bits starting at start. The caller is trusted to pass a
// previously-allocated run; Free does not validate ownership.
func (a *Allocator) Free(start, n uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := uint64(0); i < n; i++ {
		a.clearBit(start + i)
	}
}

// FrameToPtr converts a frame number to its physical address.
func FrameToPtr(frame uint64) uintptr {
	return uintptr(frame * Size)
}
