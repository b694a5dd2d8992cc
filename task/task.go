// Cooperative context switch
// https://github.com/mknm-os/kernel
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package task implements the kernel's two-task cooperative context switch:
// the boot task (running the event loop) and a secondary task preempted by
// the task-timer. Grounded on original_source/kernel/src/task.rs; the field
// layout of TaskContext below mirrors that file's repr(C, align(16)) struct
// byte-for-byte, since switchContext's assembly addresses fields by
// constant offset.
package task

// Segment selectors the kernel installs in its GDT; specified only at the
// interface level this package needs (the GDT itself is an out-of-scope
// external collaborator per spec.md §1).
const (
	KernelCS = 1 << 3
	KernelSS = 2 << 3
)

const defaultRFlags = 0x202 // IF set, reserved bit 1 set

// mxcsrDefault is the IEEE-754 default MXCSR value (all exceptions masked,
// round-to-nearest), placed at fxsave_area[6] — the MXCSR field's offset
// within the FXSAVE image — by task initialisation.
const mxcsrDefault = 0x1f80

// Context is a saved CPU state: 16 general registers, RIP, RFLAGS, RSP,
// RBP, CR3, four segment selectors, and a 512-byte FX save area. The field
// order and offsets below are load-bearing — switchContext (task_amd64.s)
// indexes into this struct by raw byte offset, not by Go field name. The
// type itself is only 8-byte aligned (its widest field is 8 bytes); the
// 16-byte alignment FXSAVE64 needs for FXSave comes from NewContext
// heap-allocating each 704-byte Context, a size Go's allocator places on
// 16-byte boundaries.
type Context struct {
	CR3     uint64 // 0x00
	RIP     uint64 // 0x08
	RFlags  uint64 // 0x10
	rsvd1   uint64 // 0x18
	CS      uint64 // 0x20
	SS      uint64 // 0x28
	FS      uint64 // 0x30
	GS      uint64 // 0x38
	RAX     uint64 // 0x40
	RBX     uint64 // 0x48
	RCX     uint64 // 0x50
	RDX     uint64 // 0x58
	RDI     uint64 // 0x60
	RSI     uint64 // 0x68
	RSP     uint64 // 0x70
	RBP     uint64 // 0x78
	R8      uint64 // 0x80
	R9      uint64 // 0x88
	R10     uint64 // 0x90
	R11     uint64 // 0x98
	R12     uint64 // 0xa0
	R13     uint64 // 0xa8
	R14     uint64 // 0xb0
	R15     uint64 // 0xb8
	FXSave  [128]uint32 // 0xc0, 512 bytes
}

// NewContext builds the initial context for a freshly-spawned task: rip is
// the entry point, rdi/rsi are its first two System V AMD64 arguments, rsp
// must already be 16-byte aligned minus 8 (room for the implicit return
// address slot the ABI expects at function entry), and cr3 is the current
// (identity-mapped) address space, since this kernel has no per-task
// address spaces.
func NewContext(rip, rdi, rsi, rsp, cr3 uint64) *Context {
	c := &Context{
		CR3:    cr3,
		RIP:    rip,
		RFlags: defaultRFlags,
		CS:     KernelCS,
		SS:     KernelSS,
		RDI:    rdi,
		RSI:    rsi,
		RSP:    rsp,
	}
	c.FXSave[6] = mxcsrDefault
	return c
}

// switchContext saves the caller's register state into current and loads
// next into the CPU, ending in iretq. Defined in task_amd64.s; per the
// Open Question recorded in DESIGN.md, it restores RSP from next before
// any CR3 change becomes visible through the new stack.
func switchContext(next, current *Context)

// Manager round-robins a fixed set of task contexts (this kernel always
// has exactly two: the boot task running the event loop, and task B).
type Manager struct {
	ctxs []*Context
}

// NewManager creates a Manager for the boot task and task B, in that
// scheduling order.
func NewManager(boot, taskB *Context) *Manager {
	return &Manager{ctxs: []*Context{boot, taskB}}
}

// SwitchToNext rotates the task list and switches from the outgoing task
// (now at the back) to the new front task. Must be called with interrupts
// disabled around the pair of writes that cross CS/SS/CR3 (spec.md §4.4);
// never reentrant.
func (m *Manager) SwitchToNext() {
	outgoing := m.ctxs[0]
	m.ctxs = append(m.ctxs[1:], outgoing)
	incoming := m.ctxs[0]

	switchContext(incoming, outgoing)
}
