// USB device configuration sequencing
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

import (
	"encoding/binary"

	"github.com/mknm-os/kernel/async"
	"github.com/mknm-os/kernel/dma"
	"github.com/mknm-os/kernel/xhci"
)

// ConfigureResult is delivered on Driver's Configured channel once a newly
// addressed slot has been fully enumerated and its first configuration's
// endpoints activated (or failed trying).
type ConfigureResult struct {
	Device *UsbDevice
	Err    error
}

// Driver runs one configureTask per newly addressed slot on a private
// executor, mirroring PortAddressing's use of the async package rather
// than native goroutines (spec.md §4.9).
type Driver struct {
	ctrl *xhci.Controller

	exec    *async.Executor[ConfigureResult]
	spawner *async.Spawner[ConfigureResult]

	Configured *async.Channel[ConfigureResult]
}

// NewDriver creates a Driver bound to ctrl.
func NewDriver(ctrl *xhci.Controller) *Driver {
	exec, spawner := async.NewExecutor[ConfigureResult]()
	return &Driver{
		ctrl:       ctrl,
		exec:       exec,
		spawner:    spawner,
		Configured: async.NewChannel[ConfigureResult](),
	}
}

// Enumerate starts the descriptor read / SET_CONFIGURATION / Configure
// Endpoint sequence for a slot that PortAddressing has just addressed
// (spec.md §4.9, triggered from §4.8 step 7).
func (d *Driver) Enumerate(slotID int) {
	d.spawner.Spawn(newConfigureTask(d.ctrl, slotID))
}

// RunExecutor drives every ready configuration task to completion,
// publishing each result (spec.md's "run the executor until it has no
// ready task", applied to this sub-executor).
func (d *Driver) RunExecutor() {
	for d.exec.HasNextTask() {
		result, ok := d.exec.ProcessNextTask()
		if !ok {
			continue
		}
		d.Configured.Send(result)
	}
}

const (
	cfgPhaseDeviceDescriptor = iota
	cfgPhaseConfigDescriptor
	cfgPhaseSetConfiguration
	cfgPhaseEnableEndpoints
)

// configureTask walks spec.md §4.9's six steps as an explicit phase
// machine, the same style as xhci.addressTask: each USB control request or
// xHCI command in flight is an async.Future this task re-polls until
// ready, with no blocking and no native coroutines.
type configureTask struct {
	ctrl   *xhci.Controller
	slotID int
	phase  int

	ctrlFut async.Future[xhci.TransferResult]
	cmdFut  async.Future[xhci.TRB]

	devDescBuf []byte
	devDesc    DeviceDescriptor
	numConfigs int

	confIndex   int
	confBuf     []byte
	confBufSz   int
	retriedOnce bool
	descLists   [][]Descriptor

	device   *UsbDevice
	trfRings map[int]uint64
}

func newConfigureTask(ctrl *xhci.Controller, slotID int) *configureTask {
	return &configureTask{ctrl: ctrl, slotID: slotID, trfRings: map[int]uint64{}}
}

func (t *configureTask) Poll(wake func()) (ConfigureResult, bool) {
	switch t.phase {
	case cfgPhaseDeviceDescriptor:
		return t.pollDeviceDescriptor(wake)
	case cfgPhaseConfigDescriptor:
		return t.pollConfigDescriptor(wake)
	case cfgPhaseSetConfiguration:
		return t.pollSetConfiguration(wake)
	case cfgPhaseEnableEndpoints:
		return t.pollEnableEndpoints(wake)
	}
	return ConfigureResult{}, false
}

func (t *configureTask) pollDeviceDescriptor(wake func()) (ConfigureResult, bool) {
	if t.ctrlFut == nil {
		_, buf := dma.Reserve(18, 8)
		t.devDescBuf = buf

		setup := xhci.SetupData{RequestType: xhci.GetDescriptor, Value: 0x0100, Length: 18}
		oneshot, err := t.ctrl.ControlRequest(t.slotID, setup, buf)
		if err != nil {
			return ConfigureResult{Err: err}, true
		}
		t.ctrlFut = oneshot.Await()
	}

	res, ready := t.ctrlFut.Poll(wake)
	if !ready {
		return ConfigureResult{}, false
	}
	if res.Err != nil {
		return ConfigureResult{Err: res.Err}, true
	}

	t.devDesc = parseDeviceDescriptor(t.devDescBuf)
	t.numConfigs = int(t.devDesc.NumConfigurations())
	t.ctrlFut = nil
	t.phase = cfgPhaseConfigDescriptor
	return t.Poll(wake)
}

func (t *configureTask) pollConfigDescriptor(wake func()) (ConfigureResult, bool) {
	if t.ctrlFut == nil {
		sz := t.confBufSz
		if sz == 0 {
			sz = 64
		}
		_, buf := dma.Reserve(sz, 8)
		t.confBuf = buf

		setup := xhci.SetupData{
			RequestType: xhci.GetDescriptor,
			Value:       0x0200 | uint16(t.confIndex),
			Length:      uint16(sz),
		}
		oneshot, err := t.ctrl.ControlRequest(t.slotID, setup, buf)
		if err != nil {
			return ConfigureResult{Err: err}, true
		}
		t.ctrlFut = oneshot.Await()
	}

	res, ready := t.ctrlFut.Poll(wake)
	if !ready {
		return ConfigureResult{}, false
	}
	if res.Err != nil {
		return ConfigureResult{Err: res.Err}, true
	}

	totalLen := int(binary.LittleEndian.Uint16(t.confBuf[2:4]))
	if totalLen > len(t.confBuf) && !t.retriedOnce {
		t.retriedOnce = true
		t.confBufSz = totalLen
		t.ctrlFut = nil
		return t.Poll(wake)
	}
	t.retriedOnce = false
	t.confBufSz = 0

	t.descLists = append(t.descLists, parseDescriptorList(t.confBuf[:totalLen]))

	t.confIndex++
	t.ctrlFut = nil
	if t.confIndex < t.numConfigs {
		return t.Poll(wake)
	}

	configs := make([]*UsbConfiguration, 0, len(t.descLists))
	for _, dl := range t.descLists {
		conf, err := ConstructConfiguration(dl)
		if err != nil {
			return ConfigureResult{Err: err}, true
		}
		configs = append(configs, conf)
	}

	t.device = NewUsbDevice(t.ctrl, t.slotID, configs)
	t.phase = cfgPhaseSetConfiguration
	return t.Poll(wake)
}

func (t *configureTask) pollSetConfiguration(wake func()) (ConfigureResult, bool) {
	if t.ctrlFut == nil {
		setup := t.device.SetConfigurationRequest(0)
		oneshot, err := t.ctrl.ControlRequest(t.slotID, setup, nil)
		if err != nil {
			return ConfigureResult{Err: err}, true
		}
		t.ctrlFut = oneshot.Await()
	}

	res, ready := t.ctrlFut.Poll(wake)
	if !ready {
		return ConfigureResult{}, false
	}
	if res.Err != nil {
		return ConfigureResult{Err: res.Err}, true
	}

	t.device.CommitConfiguration(0)
	t.ctrlFut = nil
	t.phase = cfgPhaseEnableEndpoints
	return t.Poll(wake)
}

func (t *configureTask) pollEnableEndpoints(wake func()) (ConfigureResult, bool) {
	if t.cmdFut == nil {
		input := t.device.BuildEnableEndpointsInput(func(dci int) uint64 {
			if ptr, ok := t.trfRings[dci]; ok {
				return ptr
			}
			ptr := t.ctrl.InitTransferRing(t.slotID, dci)
			t.trfRings[dci] = ptr
			return ptr
		})

		oneshot, err := t.ctrl.ConfigureEndpoint(input, t.slotID)
		if err != nil {
			return ConfigureResult{Err: err}, true
		}
		t.cmdFut = oneshot.Await()
	}

	trb, ready := t.cmdFut.Poll(wake)
	if !ready {
		return ConfigureResult{}, false
	}
	if trb.CompletionCode() != xhci.CompletionSuccess {
		err := &xhci.CommandError{Command: xhci.TypeConfigureEndpoint, CompletionCode: trb.CompletionCode()}
		return ConfigureResult{Err: err}, true
	}

	return ConfigureResult{Device: t.device}, true
}
