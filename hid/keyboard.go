// Boot keyboard class driver
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package hid

import (
	"log"

	"github.com/mknm-os/kernel/async"
	"github.com/mknm-os/kernel/usb"
	"github.com/mknm-os/kernel/xhci"
)

// Modifier identifies one bit of a boot keyboard report's modifier byte
// (HID 1.11 appendix B.1).
type Modifier int

const (
	LCtrl Modifier = iota
	LShift
	LAlt
	LGui
	RCtrl
	RShift
	RAlt
	RGui
)

// ModifierSet is the raw modifier byte of a boot keyboard report.
type ModifierSet uint8

func (m ModifierSet) has(bit uint) bool { return uint8(m)>>bit&1 == 1 }

func (m ModifierSet) LCtrl() bool  { return m.has(0) }
func (m ModifierSet) LShift() bool { return m.has(1) }
func (m ModifierSet) LAlt() bool   { return m.has(2) }
func (m ModifierSet) LGui() bool   { return m.has(3) }
func (m ModifierSet) RCtrl() bool  { return m.has(4) }
func (m ModifierSet) RShift() bool { return m.has(5) }
func (m ModifierSet) RAlt() bool   { return m.has(6) }
func (m ModifierSet) RGui() bool   { return m.has(7) }

// Modifiers returns the set of currently-held modifier keys.
func (m ModifierSet) Modifiers() []Modifier {
	var mods []Modifier
	for bit, mod := range [...]Modifier{LCtrl, LShift, LAlt, LGui, RCtrl, RShift, RAlt, RGui} {
		if m.has(uint(bit)) {
			mods = append(mods, mod)
		}
	}
	return mods
}

// KeyReport is a USB HID boot keyboard report (HID 1.11 appendix B.1):
// modifier byte, one reserved byte, up to six simultaneously pressed
// keycodes.
type KeyReport struct {
	Modifier ModifierSet
	Keycodes [6]uint8
}

func parseKeyReport(buf []byte) KeyReport {
	var r KeyReport
	r.Modifier = ModifierSet(buf[0])
	copy(r.Keycodes[:], buf[2:8])
	return r
}

// KeyEvent pairs a report with the slot it came from.
type KeyEvent struct {
	SlotID int
	Report KeyReport
}

// keyboardTask mirrors mouseTask for the boot keyboard protocol.
type keyboardTask struct {
	ctrl         *xhci.Controller
	slotID       int
	interfaceNum uint8
	dci          int

	initialized bool
	initFut     async.Future[xhci.TransferResult]
	pollFut     async.Future[xhci.TransferResult]
	buf         []byte

	out *async.Channel[KeyEvent]
}

func (t *keyboardTask) Poll(wake func()) (struct{}, bool) {
	if !t.initialized {
		if t.initFut == nil {
			oneshot, err := setBootProtocol(t.ctrl, t.slotID, t.interfaceNum)
			if err != nil {
				log.Printf("hid: keyboard slot=%d set protocol failed: %v", t.slotID, err)
				return struct{}{}, false
			}
			t.initFut = oneshot.Await()
		}

		res, ready := t.initFut.Poll(wake)
		if !ready {
			return struct{}{}, false
		}
		t.initFut = nil
		t.initialized = true
		if res.Err != nil {
			log.Printf("hid: keyboard slot=%d set protocol error: %v", t.slotID, res.Err)
		}
	}

	if t.pollFut == nil {
		if !t.arm(wake) {
			return struct{}{}, false
		}
	}

	res, ready := t.pollFut.Poll(wake)
	if !ready {
		return struct{}{}, false
	}
	t.pollFut = nil

	if res.Err == nil {
		t.out.Send(KeyEvent{SlotID: t.slotID, Report: parseKeyReport(t.buf)})
	}

	t.arm(wake)
	return struct{}{}, false
}

func (t *keyboardTask) arm(wake func()) bool {
	w, buf, err := subscribeOnce(t.ctrl, t.slotID, t.dci)
	if err != nil {
		log.Printf("hid: keyboard slot=%d resubscribe failed: %v", t.slotID, err)
		return false
	}
	t.buf = buf
	t.pollFut = w.Await()
	return true
}

// newKeyboardTask builds the subscription task for alt, which the caller
// has already verified is a boot keyboard interface.
func newKeyboardTask(ctrl *xhci.Controller, slotID int, alt *usb.UsbInterfaceAlternate, out *async.Channel[KeyEvent]) (*keyboardTask, error) {
	dci, ok := findDCI(alt)
	if !ok {
		return nil, ErrNoInterruptEndpoint
	}
	return &keyboardTask{ctrl: ctrl, slotID: slotID, interfaceNum: alt.InterfaceNum, dci: dci, out: out}, nil
}
