// HID boot-protocol class drivers
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package hid implements the two boot-protocol device classes spec.md
// §4.11 recognizes on a configured interface's first alternate setting:
// mouse (class 3, subclass 1, protocol 2) and keyboard (class 3, subclass
// 1, protocol 1). Both drivers issue SET_PROTOCOL(boot) once, then keep a
// single interrupt-IN transfer outstanding at all times, resubmitting as
// soon as each report arrives — the same "subscribe once, resubmit on
// completion" shape as class/mouse.rs and class/keyboard.rs.
package hid

import (
	"errors"

	"github.com/mknm-os/kernel/async"
	"github.com/mknm-os/kernel/dma"
	"github.com/mknm-os/kernel/usb"
	"github.com/mknm-os/kernel/xhci"
)

// Boot device class/subclass/protocol values this driver recognizes (HID
// 1.11 §4.2, table 4).
const (
	ClassHID         = 3
	SubClassBoot     = 1
	ProtocolKeyboard = 1
	ProtocolMouse    = 2
)

// ErrNoInterruptEndpoint is returned when an interface claims the boot
// keyboard/mouse protocol but its alternate setting carries no interrupt
// endpoint to poll.
var ErrNoInterruptEndpoint = errors.New("hid: no interrupt endpoint on interface")

// IsMouse reports whether alt matches the boot mouse triple.
func IsMouse(alt *usb.UsbInterfaceAlternate) bool {
	return alt.Class == ClassHID && alt.SubClass == SubClassBoot && alt.Protocol == ProtocolMouse
}

// IsKeyboard reports whether alt matches the boot keyboard triple.
func IsKeyboard(alt *usb.UsbInterfaceAlternate) bool {
	return alt.Class == ClassHID && alt.SubClass == SubClassBoot && alt.Protocol == ProtocolKeyboard
}

func findDCI(alt *usb.UsbInterfaceAlternate) (int, bool) {
	for _, desc := range alt.Endpoints() {
		if ep, ok := desc.(usb.EndpointDescriptor); ok && ep.TransferType() == 3 && ep.Direction() {
			return ep.DCI(), true
		}
	}
	return 0, false
}

func setBootProtocol(ctrl *xhci.Controller, slotID int, interfaceNum uint8) (*async.Oneshot[xhci.TransferResult], error) {
	setup := xhci.SetupData{
		RequestType: xhci.SetProtocol,
		Value:       0, // 0 selects the boot protocol (HID 1.11 §7.2.5)
		Index:       uint16(interfaceNum),
	}
	return ctrl.ControlRequest(slotID, setup, nil)
}

// subscribeOnce allocates an 8-byte report buffer, pushes one Normal TRB
// sized for it onto (slotID, dci)'s ring and rings the doorbell, returning
// the oneshot that resolves when the report arrives.
func subscribeOnce(ctrl *xhci.Controller, slotID, dci int) (*async.Oneshot[xhci.TransferResult], []byte, error) {
	_, buf := dma.Reserve(8, 8)

	w, err := ctrl.PushTransferTRB(slotID, dci, xhci.NewNormal(xhci.BufAddr(buf), 8))
	if err != nil {
		return nil, nil, err
	}
	ctrl.RingDoorbell(slotID, uint8(dci))

	return w, buf, nil
}
