package xhci

import (
	"testing"
	"unsafe"

	"github.com/mknm-os/kernel/dma"
)

// TestMain backs the global DMA region with a real Go-heap buffer so the
// rings' reserveTRBs calls land on addressable memory, unlike the bare-metal
// physical addresses this package normally manages.
func TestMain(m *testing.M) {
	backing := make([]byte, 1<<20)
	dma.Init(uint(uintptr(unsafe.Pointer(&backing[0]))), len(backing))
	m.Run()
}

func TestProducerRingPushAdvancesEnqueue(t *testing.T) {
	r := NewProducerRing(4) // 3 usable slots + trailing Link TRB

	trb := NewNoopCommand()
	addr1, err := r.Push(trb)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if addr1 != r.SlotAddr(0) {
		t.Fatalf("first Push address = %#x, want slot 0 (%#x)", addr1, r.SlotAddr(0))
	}

	addr2, err := r.Push(trb)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if addr2 != r.SlotAddr(1) {
		t.Fatalf("second Push address = %#x, want slot 1 (%#x)", addr2, r.SlotAddr(1))
	}
}

func TestProducerRingReturnsErrRingFullWhenCaughtUpToConsumer(t *testing.T) {
	r := NewProducerRing(4) // usable slots: 0, 1, 2

	if _, err := r.Push(NewNoopCommand()); err != nil {
		t.Fatalf("Push 1: %v", err)
	}
	if _, err := r.Push(NewNoopCommand()); err != nil {
		t.Fatalf("Push 2: %v", err)
	}

	// nextPtr(enque=2) wraps to 0, which equals the untouched consumer
	// position: the ring must refuse rather than overwrite slot 0.
	if _, err := r.Push(NewNoopCommand()); err != ErrRingFull {
		t.Fatalf("Push 3 = %v, want ErrRingFull", err)
	}
}

func TestProducerRingCycleBitFlipsOnWraparound(t *testing.T) {
	r := NewProducerRing(4)

	if r.CycleState() != true {
		t.Fatalf("initial CycleState() = false, want true")
	}

	for i := 0; i < 3; i++ {
		if _, err := r.Push(NewNoopCommand()); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
		// Free up the slot we just consumed so the next Push doesn't hit
		// ErrRingFull before the ring has a chance to wrap.
		r.SetDequePtr(r.SlotAddr(i))
	}

	if r.CycleState() != false {
		t.Fatalf("CycleState() after one full wraparound = true, want false")
	}
}

func TestEventRingPopRespectsCycleBit(t *testing.T) {
	r := NewEventRing(2)

	if _, ok := r.Pop(); ok {
		t.Fatalf("Pop on an untouched event ring returned ok=true")
	}

	// Simulate the controller producing an event: cycle bit must match the
	// consumer's expected state (true, initially) to be visible.
	trb := NewNoopCommand()
	trb.SetCycleBit(true)
	r.data[0] = trb

	got, ok := r.Pop()
	if !ok {
		t.Fatalf("Pop did not observe a TRB with a matching cycle bit")
	}
	if got.Type() != trb.Type() {
		t.Fatalf("Pop returned Type()=%d, want %d", got.Type(), trb.Type())
	}
	if r.DequeIndex() != 1 {
		t.Fatalf("DequeIndex() = %d, want 1", r.DequeIndex())
	}
}

func TestEventRingWraparoundFlipsCycleState(t *testing.T) {
	r := NewEventRing(2)

	for i := 0; i < 2; i++ {
		trb := NewNoopCommand()
		trb.SetCycleBit(true)
		r.data[i] = trb
	}

	if _, ok := r.Pop(); !ok {
		t.Fatalf("Pop 1 failed")
	}
	if _, ok := r.Pop(); !ok {
		t.Fatalf("Pop 2 failed")
	}

	if r.DequeIndex() != 0 {
		t.Fatalf("DequeIndex() after wraparound = %d, want 0", r.DequeIndex())
	}
	if r.CycleState() != false {
		t.Fatalf("CycleState() after wraparound = true, want false")
	}
}
