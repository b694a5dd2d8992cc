package slab

import (
	"testing"
	"unsafe"
)

func newTestAllocator() *Allocator {
	backing := make([][]byte, len(classSizes))
	for i, size := range classSizes {
		backing[i] = make([]byte, 4096)
		_ = size
	}
	return NewBacked(backing)
}

func TestAllocReturnsAlignedPointer(t *testing.T) {
	a := newTestAllocator()

	for _, align := range []int{1, 2, 4, 8, 16, 32, 64} {
		ptr := a.Alloc(40, align)
		if ptr == nil {
			t.Fatalf("Alloc(40, %d) = nil", align)
		}
		if uintptr(ptr)%uintptr(align) != 0 {
			t.Fatalf("Alloc(40, %d) misaligned: %p", align, ptr)
		}
		a.Free(ptr, 40)
	}
}

func TestAllocSequenceNoDuplicateReuse(t *testing.T) {
	a := newTestAllocator()

	var ptrs []unsafe.Pointer
	for i := 0; i < 10; i++ {
		ptr := a.Alloc(40, 8)
		if ptr == nil {
			t.Fatalf("Alloc(40, 8) #%d = nil", i)
		}
		for _, p := range ptrs {
			if p == ptr {
				t.Fatalf("Alloc returned already-live pointer %p", ptr)
			}
		}
		ptrs = append(ptrs, ptr)
	}

	for i, ptr := range ptrs {
		buf := unsafe.Slice((*byte)(ptr), 40)
		x := byte(i)
		for j := range buf {
			buf[j] = x
			x = x*129 + 111
		}
	}

	for i, ptr := range ptrs {
		buf := unsafe.Slice((*byte)(ptr), 40)
		x := byte(i)
		for j := range buf {
			if buf[j] != x {
				t.Fatalf("data mismatch at ptr %d byte %d", i, j)
			}
			x = x*129 + 111
		}
		a.Free(ptr, 40)
	}
}

func TestAllocExceedsLargestClass(t *testing.T) {
	a := newTestAllocator()

	if ptr := a.Alloc(4096, 8); ptr != nil {
		t.Fatalf("Alloc(4096, 8) = %p, want nil", ptr)
	}
}

func TestAllocExhaustedClassReturnsNil(t *testing.T) {
	a := newTestAllocator()

	// 4096-byte page / 64-byte objects = 64 slots in the smallest class.
	var ptrs []unsafe.Pointer
	for i := 0; i < 64; i++ {
		ptr := a.Alloc(40, 1)
		if ptr == nil {
			t.Fatalf("Alloc(40, 1) #%d = nil before exhaustion", i)
		}
		ptrs = append(ptrs, ptr)
	}

	if ptr := a.Alloc(40, 1); ptr != nil {
		t.Fatalf("Alloc(40, 1) after exhaustion = %p, want nil", ptr)
	}

	for _, ptr := range ptrs {
		a.Free(ptr, 40)
	}
}

func TestSelfTest(t *testing.T) {
	a := newTestAllocator()
	a.SelfTest()
}
