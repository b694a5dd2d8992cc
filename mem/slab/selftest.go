package slab

import (
	"fmt"
	"unsafe"
)

// SelfTest exercises every (size, align) combination the allocator is
// expected to serve correctly, with 10 concurrently-live allocations per
// combination. It panics on the first violation, matching the kernel's
// fatal-halt policy for invariant violations.
//
// Grounded on run_allocator_tests: the fill pattern x_{i+1} = (x_i*129+111)
// mod 256, seeded per-allocation with i, must round-trip through each
// pointer unchanged by any other allocation sharing the page.
func (a *Allocator) SelfTest() {
	aligns := []int{1, 2, 4, 8, 16, 32, 64, 128}
	sizes := []int{1, 2, 4, 8, 16, 32, 64, 128}

	for _, align := range aligns {
		for _, size := range sizes {
			a.selfTestOne(size, align)
		}
	}
}

func (a *Allocator) selfTestOne(size, align int) {
	const n = 10

	var ptrs [n]unsafe.Pointer

	for i := 0; i < n; i++ {
		ptr := a.Alloc(size, align)
		if ptr == nil {
			panic(fmt.Sprintf("slab: self-test alloc failed for size=%d align=%d", size, align))
		}
		if uintptr(ptr)%uintptr(align) != 0 {
			panic(fmt.Sprintf("slab: self-test misaligned pointer for size=%d align=%d", size, align))
		}

		ptrs[i] = ptr

		buf := unsafe.Slice((*byte)(ptr), size)
		x := byte(i)
		for j := range buf {
			buf[j] = x
			x = x*129 + 111
		}
	}

	for i, ptr := range ptrs {
		buf := unsafe.Slice((*byte)(ptr), size)
		x := byte(i)
		for j := range buf {
			if buf[j] != x {
				panic(fmt.Sprintf("slab: self-test data corruption for size=%d align=%d index=%d", size, align, i))
			}
			x = x*129 + 111
		}

		a.Free(ptr, size)
	}
}
