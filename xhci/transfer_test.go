package xhci

import (
	"testing"
	"unsafe"

	"golang.org/x/time/rate"

	"github.com/mknm-os/kernel/async"
)

// newTestController backs a Controller's doorbell register with a real
// Go-heap address, the same trick ring_test.go's TestMain uses for the
// global DMA region, so RingDoorbell's write lands on addressable memory
// instead of a bare-metal MMIO address.
func newTestController(t *testing.T) *Controller {
	t.Helper()

	backing := make([]byte, 4096)
	base := uint64(uintptr(unsafe.Pointer(&backing[0])))

	return &Controller{
		regs:               &Registers{dbBase: base},
		trfRings:           map[trfKey]*ProducerRing{},
		trfWait:            map[uint64]*async.Oneshot[TransferResult]{},
		transferErrLimiter: rate.NewLimiter(transferErrLogRate, transferErrLogBurst),
	}
}

// TestControlRequestNoDataArmsSetupOneshot exercises spec §8 scenario 5,
// the zero-length control transfer: the oneshot ControlRequest returns
// must resolve from the SETUP TRB's completion, not the STATUS TRB's.
// Both TRBs carry interrupt-on-completion, so each gets its own oneshot;
// the no-data path returns the first one it pushes.
func TestControlRequestNoDataArmsSetupOneshot(t *testing.T) {
	c := newTestController(t)
	c.InitTransferRing(1, 1)

	setupPtr := c.trfRings[trfKey{1, 1}].SlotAddr(0)

	oneshot, err := c.ControlRequest(1, SetupData{RequestType: SetConfiguration, Value: 1}, nil)
	if err != nil {
		t.Fatalf("ControlRequest: %v", err)
	}
	if oneshot == nil {
		t.Fatalf("ControlRequest returned a nil oneshot for a no-data request")
	}

	if _, ok := c.trfWait[setupPtr]; !ok {
		t.Fatalf("no oneshot registered at the SETUP TRB's ring address %#x", setupPtr)
	}

	statusPtr := c.trfRings[trfKey{1, 1}].SlotAddr(1)
	if w, ok := c.trfWait[statusPtr]; !ok || w == oneshot {
		t.Fatalf("the STATUS TRB at %#x has no oneshot of its own, or ControlRequest returned it instead of the SETUP TRB's", statusPtr)
	}

	evt := NewNoopCommand()
	evt.setPointer(setupPtr)
	evt[2] = CompletionSuccess << 24
	result, ready := oneshot.Await().Poll(func() {})
	if ready {
		t.Fatalf("oneshot resolved before its completion event was delivered")
	}

	c.onTransferEvent(evt)

	result, ready = oneshot.Await().Poll(func() {})
	if !ready {
		t.Fatalf("oneshot did not resolve after its completion event was delivered")
	}
	if result.Event.Pointer() != setupPtr {
		t.Fatalf("resolved event pointer = %#x, want the SETUP TRB's %#x", result.Event.Pointer(), setupPtr)
	}
}
