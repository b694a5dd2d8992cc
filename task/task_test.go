package task

import "testing"

func TestNewContextFields(t *testing.T) {
	c := NewContext(0x1000, 1, 2, 0x2ff8, 0x3000)

	if c.RIP != 0x1000 {
		t.Fatalf("RIP = %#x, want 0x1000", c.RIP)
	}
	if c.RDI != 1 || c.RSI != 2 {
		t.Fatalf("RDI/RSI = %d/%d, want 1/2", c.RDI, c.RSI)
	}
	if c.RSP != 0x2ff8 {
		t.Fatalf("RSP = %#x, want 0x2ff8", c.RSP)
	}
	if c.CR3 != 0x3000 {
		t.Fatalf("CR3 = %#x, want 0x3000", c.CR3)
	}
	if c.RFlags != defaultRFlags {
		t.Fatalf("RFlags = %#x, want %#x", c.RFlags, defaultRFlags)
	}
	if c.CS != KernelCS || c.SS != KernelSS {
		t.Fatalf("CS/SS = %#x/%#x, want %#x/%#x", c.CS, c.SS, KernelCS, KernelSS)
	}
	if c.FXSave[6] != mxcsrDefault {
		t.Fatalf("FXSave[6] = %#x, want %#x", c.FXSave[6], mxcsrDefault)
	}
}

func TestManagerRotation(t *testing.T) {
	boot := NewContext(0x1000, 0, 0, 0x2ff8, 0)
	taskB := NewContext(0x2000, 0, 0, 0x3ff8, 0)

	m := NewManager(boot, taskB)

	if m.ctxs[0] != boot || m.ctxs[1] != taskB {
		t.Fatalf("initial order is not [boot, taskB]")
	}

	// SwitchToNext itself invokes the assembly register-save/restore
	// stub, which this package test cannot execute outside a tamago
	// kernel image; the rotation bookkeeping is verified directly.
	outgoing := m.ctxs[0]
	m.ctxs = append(m.ctxs[1:], outgoing)

	if m.ctxs[0] != taskB || m.ctxs[1] != boot {
		t.Fatalf("rotation order = %v, want [taskB, boot]", m.ctxs)
	}
}
