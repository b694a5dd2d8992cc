// Bootloader handoff ABI
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package boot decodes the three structures the UEFI bootloader hands the
// kernel entry point (spec.md §6): the framebuffer config, the raw UEFI
// memory map, and the ACPI RSDP. The bootloader itself is out of scope
// (spec.md §1); this package only speaks its ABI.
package boot

import (
	"unsafe"

	"github.com/mknm-os/kernel/acpi"
	"github.com/mknm-os/kernel/graphics"
	"github.com/mknm-os/kernel/mem/frame"
)

// FrameBufferConfigRaw is the bootloader's on-the-wire framebuffer
// descriptor, passed by pointer per System V AMD64 (spec.md §6).
type FrameBufferConfigRaw struct {
	Buf                  *byte
	PixelsPerScanLine    uint32
	HorizontalResolution uint32
	VerticalResolution   uint32
	Format               uint32 // 0 = RGBX, 1 = BGRX
}

// Config converts the raw handoff struct into a graphics.Config backed by
// a Go slice over the same memory.
func (r *FrameBufferConfigRaw) Config() *graphics.Config {
	size := int(r.PixelsPerScanLine) * int(r.VerticalResolution) * 4
	buf := unsafe.Slice(r.Buf, size)

	format := graphics.PixelFormatRGBX
	if r.Format == 1 {
		format = graphics.PixelFormatBGRX
	}

	return &graphics.Config{
		Buf:                  buf,
		PixelsPerScanLine:    r.PixelsPerScanLine,
		HorizontalResolution: r.HorizontalResolution,
		VerticalResolution:   r.VerticalResolution,
		Format:               format,
	}
}

// MemoryMapRaw is the header preceding an array of UEFI MemoryDescriptor
// records of DescriptorSize bytes each (spec.md §6).
type MemoryMapRaw struct {
	Buffer         *byte
	MapSize        uint64
	MapKey         uint64
	DescriptorSize uint64
}

// uefiMemoryDescriptor mirrors the UEFI_MEMORY_DESCRIPTOR layout; real
// descriptor records may be wider (DescriptorSize can exceed this struct's
// size in future UEFI revisions), which is why Descriptors indexes by
// DescriptorSize rather than sizeof this type.
type uefiMemoryDescriptor struct {
	Type          uint32
	_             uint32 // padding to align PhysicalStart
	PhysicalStart uint64
	VirtualStart  uint64
	NumberOfPages uint64
	Attribute     uint64
}

// Descriptors walks the raw memory map and returns it as frame allocator
// input.
func (m *MemoryMapRaw) Descriptors() []frame.MemoryDescriptor {
	count := int(m.MapSize / m.DescriptorSize)
	out := make([]frame.MemoryDescriptor, 0, count)

	base := uintptr(unsafe.Pointer(m.Buffer))
	for i := 0; i < count; i++ {
		d := (*uefiMemoryDescriptor)(unsafe.Pointer(base + uintptr(i)*uintptr(m.DescriptorSize)))
		out = append(out, frame.MemoryDescriptor{
			Type:          d.Type,
			PhysicalStart: d.PhysicalStart,
			NumberOfPages: d.NumberOfPages,
			Attribute:     d.Attribute,
		})
	}

	return out
}

// RSDP is an alias for acpi.RSDP: the bootloader hands the kernel a
// pointer to this exact layout, so boot.RSDP and acpi.RSDP must never
// diverge.
type RSDP = acpi.RSDP
