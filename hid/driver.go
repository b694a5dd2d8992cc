// HID device dispatch
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package hid

import (
	"github.com/mknm-os/kernel/async"
	"github.com/mknm-os/kernel/usb"
)

// Driver dispatches newly configured usb.UsbDevices to a boot mouse or
// keyboard subscription task, sharing one executor since neither task ever
// completes (spec.md §4.11, dispatch decided on the first interface's
// first alternate's class triple — usbd.rs's main_loop checks exactly the
// same fields after enable_endpoints()).
type Driver struct {
	exec    *async.Executor[struct{}]
	spawner *async.Spawner[struct{}]

	MouseReports    *async.Channel[MouseEvent]
	KeyboardReports *async.Channel[KeyEvent]
}

// NewDriver creates an idle dispatch driver.
func NewDriver() *Driver {
	exec, spawner := async.NewExecutor[struct{}]()
	return &Driver{
		exec:            exec,
		spawner:         spawner,
		MouseReports:    async.NewChannel[MouseEvent](),
		KeyboardReports: async.NewChannel[KeyEvent](),
	}
}

// Attach inspects dev's first configured interface and, if it matches a
// recognized boot-protocol class, spawns the corresponding subscription
// task. Devices matching neither triple are left addressed and configured
// but otherwise untouched — spec.md names no other device class.
func (d *Driver) Attach(dev *usb.UsbDevice) error {
	alt := dev.FirstAlternate()
	if alt == nil {
		return nil
	}

	switch {
	case IsMouse(alt):
		t, err := newMouseTask(dev.Ctrl, dev.SlotID, alt, d.MouseReports)
		if err != nil {
			return err
		}
		d.spawner.Spawn(t)
	case IsKeyboard(alt):
		t, err := newKeyboardTask(dev.Ctrl, dev.SlotID, alt, d.KeyboardReports)
		if err != nil {
			return err
		}
		d.spawner.Spawn(t)
	}

	return nil
}

// RunExecutor drains every task a just-completed transfer re-queued,
// polling each once. Mouse/keyboard tasks never resolve, so ok is always
// false here — the call exists purely to drive each task's re-arm step.
func (d *Driver) RunExecutor() {
	for d.exec.HasNextTask() {
		_, ok := d.exec.ProcessNextTask()
		if !ok {
			continue
		}
	}
}
