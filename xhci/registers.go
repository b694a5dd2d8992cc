// xHCI MMIO register layout
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package xhci

import "github.com/mknm-os/kernel/internal/reg"

// Registers is a thin view over the capability, operational, runtime and
// doorbell register sets of one xHC, addressed relative to the BAR0 base
// (xHCI 1.2 §5). Offsets to the operational/runtime/doorbell sets are
// read from the capability registers at construction time, since they
// vary per implementation.
type Registers struct {
	base      uint64
	capLength uint32
	opBase    uint64
	rtBase    uint64
	dbBase    uint64
}

// Capability register offsets (xHCI 1.2 table 5-9).
const (
	capCAPLENGTH  = 0x00
	capHCSPARAMS1 = 0x04
	capHCSPARAMS2 = 0x08
	capHCCPARAMS1 = 0x10
	capDBOFF      = 0x14
	capRTSOFF     = 0x18
)

// Operational register offsets, relative to opBase (xHCI 1.2 table 5-18).
const (
	opUSBCMD    = 0x00
	opUSBSTS    = 0x04
	opPAGESIZE  = 0x08
	opDNCTRL    = 0x14
	opCRCR      = 0x18
	opDCBAAP    = 0x30
	opCONFIG    = 0x38
	opPortsBase = 0x400
	portStride  = 0x10
)

// Runtime register offsets, relative to rtBase (xHCI 1.2 table 5-35).
const (
	rtIR0 = 0x20 // Interrupter Register Set 0
)

// Interrupter register offsets, relative to rtBase+rtIR0 (xHCI 1.2
// table 5-38).
const (
	irIMAN   = 0x00
	irIMOD   = 0x04
	irERSTSZ = 0x08
	irERSTBA = 0x10
	irERDP   = 0x18
)

// NewRegisters builds the register view for an xHC mapped at mmioBase.
func NewRegisters(mmioBase uint64) *Registers {
	r := &Registers{base: mmioBase}
	r.capLength = reg.GetD(mmioBase+capCAPLENGTH, 0, 0xff)
	dboff := reg.ReadD(mmioBase + capDBOFF)
	rtsoff := reg.ReadD(mmioBase + capRTSOFF)

	r.opBase = mmioBase + uint64(r.capLength)
	r.dbBase = mmioBase + uint64(dboff&^0x3)
	r.rtBase = mmioBase + uint64(rtsoff&^0x1f)

	return r
}

// NumberOfPorts returns HCSPARAMS1.MaxPorts.
func (r *Registers) NumberOfPorts() int {
	return int(reg.GetD(r.base+capHCSPARAMS1, 24, 0xff))
}

// NumberOfDeviceSlots returns HCSPARAMS1.MaxSlots.
func (r *Registers) NumberOfDeviceSlots() int {
	return int(reg.GetD(r.base+capHCSPARAMS1, 0, 0xff))
}

// MaxScratchpadBuffers returns the scratchpad buffer count encoded across
// HCSPARAMS2's Max Scratchpad Buffers Hi/Lo fields.
func (r *Registers) MaxScratchpadBuffers() int {
	v := reg.ReadD(r.base + capHCSPARAMS2)
	hi := (v >> 21) & 0x1f
	lo := (v >> 27) & 0x1f
	return int(hi<<5 | lo)
}

// ContextSize64 reports HCCPARAMS1.CSZ: true selects 64-byte contexts.
func (r *Registers) ContextSize64() bool {
	return reg.GetD(r.base+capHCCPARAMS1, 2, 1) == 1
}

// ExtendedCapabilitiesPointer returns HCCPARAMS1's xECP field (a dword
// offset from the MMIO base to the first extended capability).
func (r *Registers) ExtendedCapabilitiesPointer() uint32 {
	return reg.GetD(r.base+capHCCPARAMS1, 16, 0xffff)
}

// PageSize returns the operational PAGESIZE register's bit, translated to
// an actual byte count (xHCI 1.2 §5.4.3: bit n set means 2^(n+12) bytes).
func (r *Registers) PageSize() int {
	bits := reg.ReadD(r.opBase + opPAGESIZE)
	for i := 0; i < 16; i++ {
		if bits&(1<<i) != 0 {
			return 1 << (12 + i)
		}
	}
	return 4096
}

// USBCMD bit positions (xHCI 1.2 table 5-20).
const (
	usbcmdRunStop             = 0
	usbcmdHCReset             = 1
	usbcmdInterrupterEnable   = 2
	usbcmdHostSystemErrEnable = 3
)

func (r *Registers) SetRunStop(v bool)           { reg.SetND(r.opBase+opUSBCMD, usbcmdRunStop, 1, b2u(v)) }
func (r *Registers) SetHCReset()                 { reg.SetND(r.opBase+opUSBCMD, usbcmdHCReset, 1, 1) }
func (r *Registers) HCResetInProgress() bool      { return reg.GetD(r.opBase+opUSBCMD, usbcmdHCReset, 1) == 1 }
func (r *Registers) SetInterrupterEnable(v bool) {
	reg.SetND(r.opBase+opUSBCMD, usbcmdInterrupterEnable, 1, b2u(v))
}
func (r *Registers) ClearLegacyEnables() {
	reg.SetND(r.opBase+opUSBCMD, usbcmdInterrupterEnable, 1, 0)
	reg.SetND(r.opBase+opUSBCMD, usbcmdHostSystemErrEnable, 1, 0)
}

// USBSTS bit positions (xHCI 1.2 table 5-21).
const (
	usbstsHCHalted        = 0
	usbstsControllerReady = 11
)

func (r *Registers) HCHalted() bool         { return reg.GetD(r.opBase+opUSBSTS, usbstsHCHalted, 1) == 1 }
func (r *Registers) ControllerNotReady() bool {
	return reg.GetD(r.opBase+opUSBSTS, usbstsControllerReady, 1) == 1
}

// SetCRCR programs the command ring control register: pointer plus the
// initial ring cycle state bit (RCS, bit 0).
func (r *Registers) SetCRCR(ringPtr uint64) {
	reg.Write64(r.opBase+opCRCR, (ringPtr&^0x3f)|1)
}

// SetDCBAAP programs the device context base address array pointer.
func (r *Registers) SetDCBAAP(addr uint64) {
	reg.Write64(r.opBase+opDCBAAP, addr&^0x3f)
}

// SetMaxDeviceSlotsEnabled programs CONFIG.MaxSlotsEn.
func (r *Registers) SetMaxDeviceSlotsEnabled(n int) {
	reg.SetND(r.opBase+opCONFIG, 0, 0xff, uint32(n))
}

// PortSpeed returns PORTSC.Port Speed for port (0-indexed) (xHCI 1.2
// table 5-23).
func (r *Registers) PortSpeed(port int) uint8 {
	addr := r.opBase + opPortsBase + uint64(port)*portStride
	return uint8(reg.GetD(addr, 10, 0xf))
}

// PORTSC bit positions this driver inspects or clears (xHCI 1.2 table
// 5-23). The RW1CS (write-1-to-clear) status-change bits all live at
// distinct positions and must each be preserved-or-cleared explicitly, or
// a read-modify-write will unintentionally clear a sibling change bit.
const (
	portsccCurrentConnectStatus = 0
	portscPortEnabled           = 1
	portscPortReset             = 4
	portscConnectStatusChange   = 17
	portscPortEnabledChange     = 18
	portscWarmPortResetChange   = 19
	portscOverCurrentChange     = 20
	portscPortResetChange       = 21
	portscPortLinkStateChange   = 22
	portscPortConfigErrorChange = 23
)

// CurrentConnectStatus reports PORTSC.CCS for port.
func (r *Registers) CurrentConnectStatus(port int) bool {
	addr := r.opBase + opPortsBase + uint64(port)*portStride
	return reg.GetD(addr, portsccCurrentConnectStatus, 1) == 1
}

// ConnectStatusChange reports PORTSC.CSC for port.
func (r *Registers) ConnectStatusChange(port int) bool {
	addr := r.opBase + opPortsBase + uint64(port)*portStride
	return reg.GetD(addr, portscConnectStatusChange, 1) == 1
}

// PortResetChange reports PORTSC.PRC for port.
func (r *Registers) PortResetChange(port int) bool {
	addr := r.opBase + opPortsBase + uint64(port)*portStride
	return reg.GetD(addr, portscPortResetChange, 1) == 1
}

// SetPortReset sets PORTSC.PR, preserving current state but clearing every
// RW1CS change bit so the write doesn't also acknowledge an unrelated
// change.
func (r *Registers) SetPortReset(port int) {
	r.portscRW1CSClearAnd(port, func(v uint32) uint32 { return v | 1<<portscPortReset })
}

// ClearConnectStatusChange acknowledges PORTSC.CSC.
func (r *Registers) ClearConnectStatusChange(port int) {
	r.portscRW1CSClearAnd(port, func(v uint32) uint32 { return v | 1<<portscConnectStatusChange })
}

// ClearPortResetChange acknowledges PORTSC.PRC.
func (r *Registers) ClearPortResetChange(port int) {
	r.portscRW1CSClearAnd(port, func(v uint32) uint32 { return v | 1<<portscPortResetChange })
}

// portscRW1CSClearAnd reads PORTSC, clears every RW1CS bit (so unrelated
// change bits aren't acknowledged by accident) and OR's in extra before
// writing back.
func (r *Registers) portscRW1CSClearAnd(port int, extra func(uint32) uint32) {
	addr := r.opBase + opPortsBase + uint64(port)*portStride
	v := reg.ReadD(addr)
	v &^= 1 << portscConnectStatusChange
	v &^= 1 << portscPortEnabledChange
	v &^= 1 << portscWarmPortResetChange
	v &^= 1 << portscOverCurrentChange
	v &^= 1 << portscPortResetChange
	v &^= 1 << portscPortLinkStateChange
	v &^= 1 << portscPortConfigErrorChange
	v &^= 1 << portscPortEnabled // writing 1 here disables the port
	reg.WriteD(addr, extra(v))
}

// RingDoorbell rings the doorbell for slotID (0 selects the command ring;
// target selects the endpoint DCI for device doorbells).
func (r *Registers) RingDoorbell(slotID int, target uint8) {
	reg.WriteD(r.dbBase+uint64(slotID)*4, uint32(target))
}

// SetInterruptModerationInterval programs IMOD for interrupter 0, in
// 250ns units (xHCI 1.2 §5.5.2.2).
func (r *Registers) SetInterruptModerationInterval(v uint16) {
	reg.WriteD(r.rtBase+rtIR0+irIMOD, uint32(v))
}

// EnableInterrupter0 clears any pending interrupt and sets IMAN.IE for
// interrupter 0.
func (r *Registers) EnableInterrupter0() {
	v := reg.ReadD(r.rtBase + rtIR0 + irIMAN)
	v |= 1 // clear pending (RW1C) - writing the bit back acknowledges it
	v |= 1 << 1
	reg.WriteD(r.rtBase+rtIR0+irIMAN, v)
}

// SetERST programs the Event Ring Segment Table for interrupter 0 to a
// single segment (base, size entries) plus the dequeue pointer.
func (r *Registers) SetERST(erstAddr uint64, erdp uint64) {
	reg.Write64(r.rtBase+rtIR0+irERSTSZ, 1)
	reg.Write64(r.rtBase+rtIR0+irERSTBA, erstAddr)
	reg.Write64(r.rtBase+rtIR0+irERDP, erdp)
}

// SetERDP updates the event ring dequeue pointer for interrupter 0 after
// draining events, writing the DESI field as 0 and setting EHB (bit 3) to
// acknowledge it.
func (r *Registers) SetERDP(addr uint64) {
	reg.Write64(r.rtBase+rtIR0+irERDP, (addr&^0xf)|(1<<3))
}

func b2u(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
