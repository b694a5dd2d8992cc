// Boot mouse class driver
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

// MouseReport is a USB HID boot mouse report (HID 1.11 appendix B.2): one
// button byte followed by signed X/Y displacement. This driver only polls
// 8-byte reports, matching devices that pad the remainder.
type MouseReport struct {
	Buttons uint8
	Dx      int8
	Dy      int8
}

func parseMouseReport(buf []byte) MouseReport {
	return MouseReport{Buttons: buf[0], Dx: int8(buf[1]), Dy: int8(buf[2])}
}

// MouseEvent pairs a report with the slot it came from, since a Driver
// fans multiple devices into one channel.
type MouseEvent struct {
	SlotID int
	Report MouseReport
}

// mouseTask issues SET_PROTOCOL(boot) once, then resubmits a single
// interrupt-IN transfer forever, delivering each decoded report on out.
// It never completes, matching class/mouse.rs's subscribe_once() loop
// run as a spawned task rather than blocking on an await chain.
type mouseTask struct {
	ctrl         *xhci.Controller
	slotID       int
	interfaceNum uint8
	dci          int

	initialized bool
	initFut     async.Future[xhci.TransferResult]
	pollFut     async.Future[xhci.TransferResult]
	buf         []byte

	out *async.Channel[MouseEvent]
}

func (t *mouseTask) Poll(wake func()) (struct{}, bool) {
	if !t.initialized {
		if t.initFut == nil {
			oneshot, err := setBootProtocol(t.ctrl, t.slotID, t.interfaceNum)
			if err != nil {
				log.Printf("hid: mouse slot=%d set protocol failed: %v", t.slotID, err)
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
			log.Printf("hid: mouse slot=%d set protocol error: %v", t.slotID, res.Err)
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
		t.out.Send(MouseEvent{SlotID: t.slotID, Report: parseMouseReport(t.buf)})
	}

	t.arm(wake)
	return struct{}{}, false
}

func (t *mouseTask) arm(wake func()) bool {
	w, buf, err := subscribeOnce(t.ctrl, t.slotID, t.dci)
	if err != nil {
		log.Printf("hid: mouse slot=%d resubscribe failed: %v", t.slotID, err)
		return false
	}
	t.buf = buf
	t.pollFut = w.Await()
	return true
}

// newMouseTask builds the subscription task for alt, which the caller has
// already verified is a boot mouse interface.
func newMouseTask(ctrl *xhci.Controller, slotID int, alt *usb.UsbInterfaceAlternate, out *async.Channel[MouseEvent]) (*mouseTask, error) {
	dci, ok := findDCI(alt)
	if !ok {
		return nil, ErrNoInterruptEndpoint
	}
	return &mouseTask{ctrl: ctrl, slotID: slotID, interfaceNum: alt.InterfaceNum, dci: dci, out: out}, nil
}
