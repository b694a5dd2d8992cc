// Intel Peripheral Component Interconnect (PCI) driver
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package pci

const (
	msiEnable   = 0
	msi64Bit    = 7
	msiAddrLow  = 0x4
	msiData16   = 0x8
	msiData64   = 0xc
)

// CapabilityMSI represents an MSI Capability Structure (PCI Local Bus
// Specification 6.8.1), configured for a single vector — this kernel routes
// every device interrupt to one LAPIC vector, so the multiple-message-count
// and per-vector masking fields of the full structure are left unused.
type CapabilityMSI struct {
	CapabilityHeader
	MessageControl uint16

	device *Device
	off    uint32
}

// Unmarshal decodes the MSI Capability common fields from the argument
// device configuration space at function 0 and the given register offset.
func (msi *CapabilityMSI) Unmarshal(d *Device, off uint32) (err error) {
	val := d.Read(0, off)
	msi.Vendor = uint8(val & 0xff)
	msi.Next = uint8(val >> 8)
	msi.MessageControl = uint16(val >> 16)

	msi.device = d
	msi.off = off

	return
}

// is64Bit reports whether the capability uses the 64-bit message address
// format (bit 7 of Message Control).
func (msi *CapabilityMSI) is64Bit() bool {
	return (msi.MessageControl>>msi64Bit)&1 == 1
}

// EnableInterrupt programs a single MSI vector: address identifies the
// target LAPIC (0xfeeXXXXX form) and data carries the interrupt vector
// number, then sets the capability's enable bit.
func (msi *CapabilityMSI) EnableInterrupt(addr uint64, data uint32) {
	if msi.device == nil {
		return
	}

	msi.device.Write(0, msi.off+msiAddrLow, uint32(addr&0xffffffff))

	if msi.is64Bit() {
		msi.device.Write(0, msi.off+msiData16, uint32(addr>>32))
		msi.device.Write(0, msi.off+msiData64, data)
	} else {
		msi.device.Write(0, msi.off+msiData16, data)
	}

	ctrl := uint32(msi.MessageControl) | (1 << msiEnable)
	msi.device.Write(0, msi.off, ctrl<<16|uint32(msi.Next)<<8|uint32(msi.Vendor))
}
