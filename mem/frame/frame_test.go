package frame

import "testing"

func testMap() []MemoryDescriptor {
	return []MemoryDescriptor{
		{Type: TypeConventionalMemory, PhysicalStart: 0x100000, NumberOfPages: (0x200000 - 0x100000) / Size},
		{Type: 10 /* reserved */, PhysicalStart: 0x200000, NumberOfPages: (0x201000 - 0x200000) / Size},
		{Type: TypeConventionalMemory, PhysicalStart: 0x201000, NumberOfPages: (0x400000 - 0x201000) / Size},
	}
}

func TestAllocateFirstFit(t *testing.T) {
	a := New(testMap())

	f, err := a.Allocate(1)
	if err != nil {
		t.Fatalf("allocate(1): %v", err)
	}
	if f != 0x100 {
		t.Fatalf("allocate(1) = %#x, want 0x100", f)
	}

	f, err = a.Allocate(256)
	if err != nil {
		t.Fatalf("allocate(256): %v", err)
	}
	if f != 0x201 {
		t.Fatalf("allocate(256) = %#x, want 0x201", f)
	}
}

func TestFreeThenLargeAllocate(t *testing.T) {
	a := New(testMap())

	f1, _ := a.Allocate(1)
	f2, _ := a.Allocate(256)

	a.Free(f1, 1)
	a.Free(f2, 256)

	if _, err := a.Allocate(512); err != nil {
		t.Fatalf("allocate(512) after free: %v", err)
	}
}

func TestAllocateRoundTrip(t *testing.T) {
	a := New(testMap())

	free := a.availableEnd - a.availableStart

	for n := uint64(1); n <= free && n <= 64; n++ {
		start, err := a.Allocate(n)
		if err != nil {
			t.Fatalf("allocate(%d): %v", n, err)
		}
		a.Free(start, n)

		again, err := a.Allocate(n)
		if err != nil {
			t.Fatalf("allocate(%d) after free: %v", n, err)
		}
		if again != start {
			t.Fatalf("allocate(%d) = %#x after free, want %#x", n, again, start)
		}
		a.Free(again, n)
	}
}

func TestFrameZeroNeverAllocated(t *testing.T) {
	a := New([]MemoryDescriptor{
		{Type: TypeConventionalMemory, PhysicalStart: 0, NumberOfPages: 16},
	})

	f, err := a.Allocate(1)
	if err != nil {
		t.Fatalf("allocate(1): %v", err)
	}
	if f == 0 {
		t.Fatalf("allocate(1) returned frame 0")
	}
}

func TestAllocateNoSpace(t *testing.T) {
	a := New([]MemoryDescriptor{
		{Type: TypeConventionalMemory, PhysicalStart: 0x1000, NumberOfPages: 4},
	})

	if _, err := a.Allocate(100); err != ErrNoSpace {
		t.Fatalf("allocate(100) error = %v, want ErrNoSpace", err)
	}
}

func TestFrameToPtr(t *testing.T) {
	if got, want := FrameToPtr(0x100), uintptr(0x100000); got != want {
		t.Fatalf("FrameToPtr(0x100) = %#x, want %#x", got, want)
	}
}
