// ACPI table parsing
// https://github.com/mknm-os/kernel
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package acpi parses just enough of the ACPI RSDP/XSDT/FADT chain to
// locate the PM Timer, which the timer package calibrates the LAPIC
// against. Struct layouts follow gopher-os's device/acpi/table package
// shape (RSDPDescriptor / SDTHeader) rather than transliterating the
// packed-struct style of the pre-distillation Rust source.
package acpi

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/mknm-os/kernel/internal/reg"
)

// headerSize is the on-wire size of DescriptionHeader (ACPI SDT header).
const headerSize = 36

// RSDP is the ACPI 2.0 Root System Description Pointer, as handed to the
// kernel entry point by the bootloader (spec.md §6).
type RSDP struct {
	Signature         [8]byte
	Checksum          uint8
	OEMID             [6]byte
	Revision          uint8
	RSDTAddress       uint32
	Length            uint32
	XSDTAddress       uint64
	ExtendedChecksum  uint8
	Reserved          [3]byte
}

func sumBytes(addr uintptr, n int) uint8 {
	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
	var sum uint8
	for _, b := range buf {
		sum += b
	}
	return sum
}

// valid checks the RSDP's signature, revision, and both checksums (20-byte
// legacy checksum plus the 36-byte ACPI 2.0 extension).
func (r *RSDP) valid() bool {
	if string(r.Signature[:]) != "RSD PTR " {
		return false
	}
	if r.Revision != 2 {
		return false
	}

	addr := uintptr(unsafe.Pointer(r))
	if sumBytes(addr, 20) != 0 {
		return false
	}
	if sumBytes(addr, 36) != 0 {
		return false
	}

	return true
}

// DescriptionHeader is the common ACPI System Description Table header.
type DescriptionHeader struct {
	Signature       [4]byte
	Length          uint32
	Revision        uint8
	Checksum        uint8
	OEMID           [6]byte
	OEMTableID      [8]byte
	OEMRevision     uint32
	CreatorID       uint32
	CreatorRevision uint32
}

func headerAt(addr uintptr) *DescriptionHeader {
	return (*DescriptionHeader)(unsafe.Pointer(addr))
}

func (h *DescriptionHeader) valid(signature string) bool {
	if string(h.Signature[:]) != signature {
		return false
	}
	return sumBytes(uintptr(unsafe.Pointer(h)), int(h.Length)) == 0
}

// xsdtCount returns the number of table pointers following the XSDT header.
func xsdtCount(h *DescriptionHeader) int {
	return (int(h.Length) - headerSize) / 8
}

// xsdtEntry returns the i'th table pointer in the XSDT.
func xsdtEntry(h *DescriptionHeader, i int) uintptr {
	base := uintptr(unsafe.Pointer(h)) + headerSize
	raw := unsafe.Slice((*byte)(unsafe.Pointer(base+uintptr(i*8))), 8)
	return uintptr(binary.LittleEndian.Uint64(raw))
}

// pmTimerFreq is the fixed ACPI PM Timer rate.
const pmTimerFreq = 3579545

// FADT holds the subset of the Fixed ACPI Description Table this kernel
// needs: the PM Timer's I/O port and its counter width.
type FADT struct {
	PMTimerPort uint16
	PMTimer32Bit bool
}

// ErrInvalidRSDP / ErrInvalidXSDT / ErrFADTNotFound are returned by Parse
// when the ACPI table chain handed off by the bootloader is malformed —
// these are fatal conditions for a kernel that cannot calibrate its timer.
var (
	ErrInvalidRSDP   = fmt.Errorf("acpi: RSDP checksum/signature invalid")
	ErrInvalidXSDT   = fmt.Errorf("acpi: XSDT checksum/signature invalid")
	ErrFADTNotFound  = fmt.Errorf("acpi: FADT (FACP) not present in XSDT")
)

// Parse walks RSDP → XSDT → FADT and returns the fields the timer
// subsystem needs.
func Parse(rsdp *RSDP) (*FADT, error) {
	if !rsdp.valid() {
		return nil, ErrInvalidRSDP
	}

	xsdtHeader := headerAt(uintptr(rsdp.XSDTAddress))
	if !xsdtHeader.valid("XSDT") {
		return nil, ErrInvalidXSDT
	}

	count := xsdtCount(xsdtHeader)

	for i := 0; i < count; i++ {
		entry := headerAt(xsdtEntry(xsdtHeader, i))
		if !entry.valid("FACP") {
			continue
		}

		return parseFADT(entry), nil
	}

	return nil, ErrFADTNotFound
}

// FADT field offsets, relative to the start of the table (header included).
// pm_tmr_blk sits at offset 76, flags at offset 112 — fixed by the ACPI
// specification's FADT layout and mirrored from the original source's
// explicit `76-size_of::<DescriptionHeader>()` padding computation.
const (
	offsetPMTmrBlk = 76
	offsetFlags    = 112

	flagsPMTimer32Bit = 8
)

func parseFADT(h *DescriptionHeader) *FADT {
	base := uintptr(unsafe.Pointer(h))

	pmTmrBlk := *(*uint32)(unsafe.Pointer(base + offsetPMTmrBlk))
	flags := *(*uint32)(unsafe.Pointer(base + offsetFlags))

	return &FADT{
		PMTimerPort:  uint16(pmTmrBlk),
		PMTimer32Bit: (flags>>flagsPMTimer32Bit)&1 != 0,
	}
}

// Read returns the current PM Timer counter value.
func (f *FADT) Read() uint32 {
	return reg.In32(f.PMTimerPort)
}

// WaitMillis busy-waits for msec milliseconds against the PM Timer,
// handling its 24-vs-32-bit wraparound per the width flag. This is the
// calibration primitive the timer package uses to derive the LAPIC
// frequency; it is also useful standalone for short fixed delays during
// xHCI bring-up.
func (f *FADT) WaitMillis(msec uint32) {
	start := f.Read()
	end := start + pmTimerFreq*msec/1000

	if !f.PMTimer32Bit {
		end &= 0x00ffffff
	}

	if end < start {
		for f.Read() >= start {
		}
	}

	for f.Read() < end {
	}
}
