// Demo timers
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package kernel

// Demo timer values 1 and 2: user-defined TimerTimeout payloads that
// spec.md §4.13 step 6 leaves to the application ("user-defined... demo
// timers 1 & 2 re-arm themselves"). Grounded on the original's
// on_lapic_interrupt handling of non-task-timer entries, which always
// re-inserts a fresh one-shot after firing.
const (
	demoTimer1 uint64 = 1
	demoTimer2 uint64 = 2
)

const (
	demoTimer1Period = 50  // ticks, 0.5s at timer.HZ
	demoTimer2Period = 100 // ticks, 1s at timer.HZ
)

// armDemoTimers seeds both demo timers relative to the current tick. Called
// once during Kernel.Init.
func (k *Kernel) armDemoTimers() {
	now := k.timers.CurrentTick()
	k.timers.AddTimer(now+demoTimer1Period, demoTimer1)
	k.timers.AddTimer(now+demoTimer2Period, demoTimer2)
}

// handleTimerTimeout re-arms whichever demo timer fired and advances the
// free-running counter the clock window draws (spec.md §4.13 step 5's
// "test surface").
func (k *Kernel) handleTimerTimeout(value uint64) {
	now := k.timers.CurrentTick()

	switch value {
	case demoTimer1:
		k.clockTicks++
		k.timers.AddTimer(now+demoTimer1Period, demoTimer1)
	case demoTimer2:
		k.clockTicks += 2
		k.timers.AddTimer(now+demoTimer2Period, demoTimer2)
	default:
		klog.Printf("unknown timer value %d", value)
	}
}
