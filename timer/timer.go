// Timer subsystem
// https://github.com/mknm-os/kernel
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package timer calibrates the Local APIC timer against the ACPI PM Timer
// and maintains a monotonic tick plus a min-heap of software timers,
// grounded on original_source/kernel/src/timer.rs.
package timer

import (
	"container/heap"
	"sync"

	"github.com/mknm-os/kernel/acpi"
	"github.com/mknm-os/kernel/amd64/lapic"
	"github.com/mknm-os/kernel/internal/reg"
)

const (
	// HZ is the periodic LAPIC timer rate once calibrated.
	HZ = 100

	// TaskTimerValue is the reserved sentinel identifying the auto-rearming
	// task-timer entry, as opposed to user-defined one-shot timers.
	TaskTimerValue = 0

	// TaskTimerPeriod is, in ticks, how often the task-timer re-arms
	// itself and signals a cooperative context switch.
	TaskTimerPeriod = HZ / 50

	countMax = 0xffffffff
)

// Sink receives TimerTimeout messages for every non-task-timer entry that
// fires; the kernel package implements this over its message queue.
type Sink interface {
	PostTimerTimeout(value uint64)
}

// entry is one software timer, ordered by earliest timeout (min-heap).
type entry struct {
	timeout uint64
	value   uint64
}

type timerHeap []entry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].timeout < h[j].timeout }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(entry)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Manager owns the monotonic tick and the software-timer min-heap. All
// methods serialise through mu; the kernel main loop invokes
// [Manager.Tick] with the ticks the LAPIC interrupt handler accumulated,
// disabling interrupts around the read-modify-write of that accumulator
// (spec.md §4.3).
type Manager struct {
	mu     sync.Mutex
	tick   uint64
	timers timerHeap
	sink   Sink
}

// NewManager creates a Manager with the task-timer armed for
// TaskTimerPeriod ticks from now, matching initialize_timer.
func NewManager(sink Sink) *Manager {
	m := &Manager{sink: sink}
	heap.Init(&m.timers)
	heap.Push(&m.timers, entry{timeout: TaskTimerPeriod, value: TaskTimerValue})
	return m
}

// Tick advances the tick by elapsed and pops every timer whose timeout has
// passed. It reports whether the task-timer fired, so the caller can drive
// a cooperative context switch.
func (m *Manager) Tick(elapsed uint64) (taskTimerFired bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tick += elapsed

	for len(m.timers) > 0 && m.timers[0].timeout < m.tick {
		top := heap.Pop(&m.timers).(entry)

		if top.value == TaskTimerValue {
			taskTimerFired = true
			heap.Push(&m.timers, entry{timeout: m.tick + TaskTimerPeriod, value: TaskTimerValue})
			continue
		}

		if m.sink != nil {
			m.sink.PostTimerTimeout(top.value)
		}
	}

	return
}

// CurrentTick returns the current tick. Callers must disable interrupts
// around the call, matching get_current_tick()'s without_interrupts guard.
func (m *Manager) CurrentTick() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tick
}

// AddTimer inserts a one-shot software timer. Callers must disable
// interrupts around the call, matching add_timer()'s without_interrupts
// guard.
func (m *Manager) AddTimer(timeout, value uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	heap.Push(&m.timers, entry{timeout: timeout, value: value})
}

// LAPIC register offsets from the base (spec.md §6).
const (
	regDivideConf   = 0x3e0
	regLVTTimer     = 0x320
	regInitialCount = 0x380
	regCurrentCount = 0x390
)

// Calibrate programs the LAPIC timer against the ACPI PM Timer and leaves
// it running in periodic mode on vector. Grounded on
// initialize_lapic_timer: one-shot masked, 100ms busy-wait, frequency
// derived as elapsed*10, then periodic mode at LAPIC_FREQ/HZ.
func Calibrate(la *lapic.LAPIC, fadt *acpi.FADT, vector int) {
	write(la, regDivideConf, 0b1011) // divide by 1
	write(la, regLVTTimer, 0b001<<16) // masked, one-shot

	write(la, regInitialCount, countMax)
	fadt.WaitMillis(100)
	elapsed := countMax - read(la, regCurrentCount)
	write(la, regInitialCount, 0)

	freq := elapsed * 10

	write(la, regLVTTimer, (0b010<<16)|uint32(vector)) // periodic, unmasked
	write(la, regInitialCount, freq/HZ)
}

func write(la *lapic.LAPIC, offset uint32, val uint32) {
	reg.Write(la.Base+offset, val)
}

func read(la *lapic.LAPIC, offset uint32) uint32 {
	return reg.Read(la.Base + offset)
}
