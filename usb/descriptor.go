// USB descriptor parsing
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package usb

import "encoding/binary"

// Descriptor types (USB 2.0 table 9-5), the subset this driver parses out
// of a GET_DESCRIPTOR(CONFIGURATION) response.
const (
	descTypeDevice        = 1
	descTypeConfiguration = 2
	descTypeInterface     = 4
	descTypeEndpoint      = 5
	descTypeHID           = 33
)

// DeviceDescriptor is the fixed 18-byte top-level descriptor (USB 2.0
// §9.6.1).
type DeviceDescriptor struct {
	raw [18]byte
}

func (d *DeviceDescriptor) BcdUSB() uint16          { return binary.LittleEndian.Uint16(d.raw[2:4]) }
func (d *DeviceDescriptor) DeviceClass() uint8      { return d.raw[4] }
func (d *DeviceDescriptor) DeviceSubClass() uint8   { return d.raw[5] }
func (d *DeviceDescriptor) DeviceProtocol() uint8   { return d.raw[6] }
func (d *DeviceDescriptor) MaxPacketSize0() uint8   { return d.raw[7] }
func (d *DeviceDescriptor) IDVendor() uint16        { return binary.LittleEndian.Uint16(d.raw[8:10]) }
func (d *DeviceDescriptor) IDProduct() uint16       { return binary.LittleEndian.Uint16(d.raw[10:12]) }
func (d *DeviceDescriptor) NumConfigurations() uint8 { return d.raw[17] }

func (d *DeviceDescriptor) Bytes() []byte { return d.raw[:] }

func parseDeviceDescriptor(buf []byte) DeviceDescriptor {
	var d DeviceDescriptor
	copy(d.raw[:], buf)
	return d
}

// ConfigurationDescriptor is the 9-byte header preceding every interface
// and endpoint descriptor in a GET_DESCRIPTOR(CONFIGURATION) response
// (USB 2.0 §9.6.3).
type ConfigurationDescriptor struct {
	length            uint8
	descriptorType    uint8
	totalLength       uint16
	numInterfaces     uint8
	configurationValue uint8
	iConfiguration    uint8
	bmAttributes      uint8
	maxPower          uint8
}

func parseConfigurationDescriptor(b []byte) ConfigurationDescriptor {
	return ConfigurationDescriptor{
		length:             b[0],
		descriptorType:     b[1],
		totalLength:        binary.LittleEndian.Uint16(b[2:4]),
		numInterfaces:      b[4],
		configurationValue: b[5],
		iConfiguration:     b[6],
		bmAttributes:       b[7],
		maxPower:           b[8],
	}
}

// InterfaceDescriptor is the 9-byte interface header (USB 2.0 §9.6.5).
type InterfaceDescriptor struct {
	interfaceNumber   uint8
	alternateSetting  uint8
	numEndpoints      uint8
	interfaceClass    uint8
	interfaceSubClass uint8
	interfaceProtocol uint8
	iInterface        uint8
}

func parseInterfaceDescriptor(b []byte) InterfaceDescriptor {
	return InterfaceDescriptor{
		interfaceNumber:   b[2],
		alternateSetting:  b[3],
		numEndpoints:      b[4],
		interfaceClass:    b[5],
		interfaceSubClass: b[6],
		interfaceProtocol: b[7],
		iInterface:        b[8],
	}
}

// EndpointDescriptor is the 7-byte endpoint descriptor (USB 2.0 §9.6.6).
type EndpointDescriptor struct {
	EndpointAddr  uint8
	BmAttributes  uint8
	MaxPacketSize uint16
	Interval      uint8
}

func parseEndpointDescriptor(b []byte) EndpointDescriptor {
	return EndpointDescriptor{
		EndpointAddr:  b[2],
		BmAttributes:  b[3],
		MaxPacketSize: binary.LittleEndian.Uint16(b[4:6]),
		Interval:      b[6],
	}
}

// DCI returns the xHCI Device Context Index for this endpoint: (endpoint
// number * 2) + direction, direction being bit 7 of bEndpointAddress.
func (e EndpointDescriptor) DCI() int {
	return int(2*(e.EndpointAddr&0xf) + e.EndpointAddr>>7)
}

// Direction reports whether this is an IN endpoint (bit 7 set).
func (e EndpointDescriptor) Direction() bool { return e.EndpointAddr>>7 == 1 }

// TransferType returns bmAttributes bits 1:0 (USB 2.0 table 9-13).
func (e EndpointDescriptor) TransferType() uint8 { return e.BmAttributes & 0x3 }

// HidDescriptor is the 9-byte class-specific HID descriptor (HID 1.11
// §6.2.1), reported but not otherwise interpreted — this driver only uses
// the boot protocol report layout.
type HidDescriptor struct {
	BcdHID      uint16
	CountryCode uint8
}

func parseHidDescriptor(b []byte) HidDescriptor {
	return HidDescriptor{
		BcdHID:      binary.LittleEndian.Uint16(b[2:4]),
		CountryCode: b[4],
	}
}

// UnknownDescriptor preserves the raw bytes of any descriptor type this
// driver doesn't otherwise interpret (e.g. HID report descriptors, vendor
// descriptors).
type UnknownDescriptor struct {
	Type    uint8
	Content []byte
}

// Descriptor is the parsed form of one entry in a GET_DESCRIPTOR(CONFIGURATION)
// response, tagged by concrete type.
type Descriptor interface {
	isDescriptor()
}

func (ConfigurationDescriptor) isDescriptor() {}
func (InterfaceDescriptor) isDescriptor()     {}
func (EndpointDescriptor) isDescriptor()      {}
func (HidDescriptor) isDescriptor()           {}
func (UnknownDescriptor) isDescriptor()       {}

// readDescriptor parses one descriptor starting at buf[0] (its bLength
// byte) and returns it alongside the remaining, unparsed tail.
func readDescriptor(buf []byte) (Descriptor, []byte, bool) {
	if len(buf) == 0 {
		return nil, nil, false
	}

	length := int(buf[0])
	if length == 0 || length > len(buf) {
		return nil, nil, false
	}

	entry := buf[:length]
	rest := buf[length:]

	switch buf[1] {
	case descTypeConfiguration:
		return parseConfigurationDescriptor(entry), rest, true
	case descTypeInterface:
		return parseInterfaceDescriptor(entry), rest, true
	case descTypeEndpoint:
		return parseEndpointDescriptor(entry), rest, true
	case descTypeHID:
		return parseHidDescriptor(entry), rest, true
	default:
		content := make([]byte, length)
		copy(content, entry)
		return UnknownDescriptor{Type: buf[1], Content: content}, rest, true
	}
}

// parseDescriptorList walks a whole GET_DESCRIPTOR(CONFIGURATION) response
// (configuration descriptor followed by its interfaces/endpoints/class
// descriptors) into a flat list, in wire order.
func parseDescriptorList(buf []byte) []Descriptor {
	var out []Descriptor
	for {
		desc, rest, ok := readDescriptor(buf)
		if !ok {
			break
		}
		out = append(out, desc)
		buf = rest
	}
	return out
}
