// USB device/configuration/interface tree
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

import (
	"errors"

	"github.com/mknm-os/kernel/xhci"
)

// ErrUnexpectedDescriptor is returned when a descriptor list doesn't parse
// into the configuration/interface/endpoint tree the driver expects.
var ErrUnexpectedDescriptor = errors.New("usb: unexpected descriptor")

// UsbInterfaceAlternate is one alternate setting of one interface: its
// class triple plus the endpoint (and any interleaved class-specific)
// descriptors that follow it in the configuration descriptor (USB 2.0
// §9.6.5).
type UsbInterfaceAlternate struct {
	InterfaceNum     uint8
	AlternateSetting uint8
	Class            uint8
	SubClass         uint8
	Protocol         uint8

	endpoints []Descriptor
}

// Endpoints returns the descriptors following this alternate's interface
// descriptor, up to the next interface or configuration descriptor.
func (a *UsbInterfaceAlternate) Endpoints() []Descriptor { return a.endpoints }

// UsbInterface groups every alternate setting sharing one interface
// number.
type UsbInterface struct {
	InterfaceNum uint8
	Alternates   []*UsbInterfaceAlternate
}

// UsbConfiguration is one parsed configuration: its descriptor fields plus
// the interfaces it groups into.
type UsbConfiguration struct {
	ConfigurationValue uint8
	IConfiguration     uint8
	BmAttributes       uint8
	MaxPower           uint8

	Interfaces []*UsbInterface
}

// constructInterfaceAlternate consumes one interface descriptor and every
// descriptor up to (but not including) the next interface or configuration
// descriptor.
func constructInterfaceAlternate(descs []Descriptor) (*UsbInterfaceAlternate, []Descriptor, bool) {
	if len(descs) == 0 {
		return nil, nil, false
	}
	intf, ok := descs[0].(InterfaceDescriptor)
	if !ok {
		return nil, nil, false
	}

	alt := &UsbInterfaceAlternate{
		InterfaceNum:     intf.interfaceNumber,
		AlternateSetting: intf.alternateSetting,
		Class:            intf.interfaceClass,
		SubClass:         intf.interfaceSubClass,
		Protocol:         intf.interfaceProtocol,
	}

	i := 1
	for ; i < len(descs); i++ {
		switch descs[i].(type) {
		case InterfaceDescriptor:
			return alt, descs[i:], true
		case ConfigurationDescriptor:
			return alt, nil, false
		default:
			alt.endpoints = append(alt.endpoints, descs[i])
		}
	}

	return alt, descs[len(descs):], true
}

// constructInterface groups every consecutive alternate setting sharing
// one interface number.
func constructInterface(descs []Descriptor) (*UsbInterface, []Descriptor, bool) {
	first, ok := descs[0].(InterfaceDescriptor)
	if !ok {
		return nil, nil, false
	}
	num := first.interfaceNumber

	intf := &UsbInterface{InterfaceNum: num}
	for {
		alt, rest, ok := constructInterfaceAlternate(descs)
		if !ok || alt.InterfaceNum != num {
			break
		}
		intf.Alternates = append(intf.Alternates, alt)
		descs = rest
		if len(descs) == 0 {
			break
		}
	}

	return intf, descs, true
}

// ConstructConfiguration builds a UsbConfiguration tree from the flat
// descriptor list returned by parsing one GET_DESCRIPTOR(CONFIGURATION)
// response (spec.md §4.9's "group by interface number / alternate
// setting").
func ConstructConfiguration(descs []Descriptor) (*UsbConfiguration, error) {
	if len(descs) == 0 {
		return nil, ErrUnexpectedDescriptor
	}
	confDesc, ok := descs[0].(ConfigurationDescriptor)
	if !ok {
		return nil, ErrUnexpectedDescriptor
	}
	descs = descs[1:]

	conf := &UsbConfiguration{
		ConfigurationValue: confDesc.configurationValue,
		IConfiguration:     confDesc.iConfiguration,
		BmAttributes:       confDesc.bmAttributes,
		MaxPower:           confDesc.maxPower,
	}

	for len(descs) > 0 {
		intf, rest, ok := constructInterface(descs)
		if !ok {
			break
		}
		conf.Interfaces = append(conf.Interfaces, intf)
		descs = rest
	}

	return conf, nil
}

// UsbDevice is one addressed, enumerated device: its slot ID, the parsed
// configuration tree, and which configuration/alternate settings are
// currently selected (spec.md §3).
type UsbDevice struct {
	Ctrl   *xhci.Controller
	SlotID int

	Configs []*UsbConfiguration

	ConfigSelected      int
	AlternatesSelected []uint8
}

// NewUsbDevice wraps slotID's already-addressed slot with its parsed
// configuration list.
func NewUsbDevice(ctrl *xhci.Controller, slotID int, configs []*UsbConfiguration) *UsbDevice {
	return &UsbDevice{Ctrl: ctrl, SlotID: slotID, Configs: configs, ConfigSelected: -1}
}

// SetConfigurationRequest builds the SET_CONFIGURATION setup packet for
// Configs[config] (spec.md §4.9 step 4, USB 2.0 §9.4.7).
func (d *UsbDevice) SetConfigurationRequest(config int) xhci.SetupData {
	conf := d.Configs[config]
	return xhci.SetupData{
		RequestType: xhci.SetConfiguration,
		Value:       uint16(conf.ConfigurationValue),
	}
}

// CommitConfiguration records that config was selected and resets every
// interface's alternate setting to its USB-mandated default of zero,
// called once SET_CONFIGURATION has completed successfully.
func (d *UsbDevice) CommitConfiguration(config int) {
	d.ConfigSelected = config
	d.AlternatesSelected = make([]uint8, len(d.Configs[config].Interfaces))
}

// SetInterfaceRequest builds the SET_INTERFACE setup packet selecting
// alternateSetting on interface (USB 2.0 §9.4.10).
func (d *UsbDevice) SetInterfaceRequest(interfaceIdx int, alternateSetting int) xhci.SetupData {
	return xhci.SetupData{
		RequestType: xhci.SetInterface,
		Value:       uint16(alternateSetting),
		Index:       uint16(interfaceIdx),
	}
}

// BuildEnableEndpointsInput assembles the Input Context for a Configure
// Endpoint command activating every endpoint of the currently-selected
// configuration's currently-selected alternate settings (spec.md §4.9 step
// 5, mirroring usbd.rs's enable_endpoints). trfRingForDCI allocates (or
// returns the existing) transfer ring for one endpoint DCI.
func (d *UsbDevice) BuildEnableEndpointsInput(trfRingForDCI func(dci int) uint64) *xhci.InputContext {
	input := xhci.NewInputContext(d.Ctrl.ContextSize())
	input.SetAddContextFlag(0)

	other := d.Ctrl.Dcbaa().ContextAt(d.SlotID).Slot()
	slot := input.Slot()
	slot.SetRouteString(0)
	slot.SetRootHubPortNumber(other.RootHubPortNumber())
	slot.SetInterrupterTarget(0)
	slot.SetSpeed(other.Speed())

	contextEntries := 1
	conf := d.Configs[d.ConfigSelected]
	for _, intf := range conf.Interfaces {
		alt := intf.Alternates[d.AlternatesSelected[intfIndex(conf, intf)]]
		for _, desc := range alt.Endpoints() {
			ep, ok := desc.(EndpointDescriptor)
			if !ok {
				continue
			}

			dci := ep.DCI()
			input.SetAddContextFlag(dci)

			epCtx := input.Endpoint(dci)
			epCtx.SetEndpointType(xhci.EndpointTypeFor(ep.Direction(), ep.TransferType()))
			epCtx.SetMaxPacketSize(ep.MaxPacketSize)
			epCtx.SetMaxBurstSize(0)
			ringPtr := trfRingForDCI(dci)
			epCtx.SetTRDequeuePointer(ringPtr)
			epCtx.SetDequeueCycleState()
			epCtx.SetInterval(ep.Interval)
			epCtx.SetMaxPrimaryStreams(0)
			epCtx.SetMult(0)
			epCtx.SetErrorCount(3)

			if dci+1 > contextEntries {
				contextEntries = dci + 1
			}
		}
	}

	input.Slot().SetContextEntries(uint8(contextEntries))
	return input
}

func intfIndex(conf *UsbConfiguration, target *UsbInterface) int {
	for i, intf := range conf.Interfaces {
		if intf == target {
			return i
		}
	}
	return 0
}

// FirstAlternate returns the first interface's currently-selected
// alternate setting, the one spec.md §4.11 inspects to decide whether a
// HID boot-protocol mouse or keyboard driver applies.
func (d *UsbDevice) FirstAlternate() *UsbInterfaceAlternate {
	conf := d.Configs[d.ConfigSelected]
	if len(conf.Interfaces) == 0 {
		return nil
	}
	intf := conf.Interfaces[0]
	return intf.Alternates[d.AlternatesSelected[0]]
}
