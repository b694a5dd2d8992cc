package boot

import (
	"testing"
	"unsafe"

	"github.com/mknm-os/kernel/graphics"
)

func TestFrameBufferConfigRawConfig(t *testing.T) {
	const w, h = 4, 3
	backing := make([]byte, w*h*4)

	raw := FrameBufferConfigRaw{
		Buf:                  &backing[0],
		PixelsPerScanLine:    w,
		HorizontalResolution: w,
		VerticalResolution:   h,
		Format:               1, // BGRX
	}

	cfg := raw.Config()

	if len(cfg.Buf) != len(backing) {
		t.Fatalf("len(cfg.Buf) = %d, want %d", len(cfg.Buf), len(backing))
	}
	if cfg.Format != graphics.PixelFormatBGRX {
		t.Fatalf("Format = %v, want PixelFormatBGRX", cfg.Format)
	}

	// cfg.Buf must alias backing, not copy it.
	cfg.Buf[0] = 0x7a
	if backing[0] != 0x7a {
		t.Fatalf("Config() copied the framebuffer instead of aliasing it")
	}
}

func TestFrameBufferConfigRawDefaultsToRGBX(t *testing.T) {
	backing := make([]byte, 16)
	raw := FrameBufferConfigRaw{Buf: &backing[0], PixelsPerScanLine: 1, VerticalResolution: 4, Format: 0}

	if cfg := raw.Config(); cfg.Format != graphics.PixelFormatRGBX {
		t.Fatalf("Format = %v, want PixelFormatRGBX", cfg.Format)
	}
}

func TestMemoryMapRawDescriptors(t *testing.T) {
	const descSize = 48 // larger than uefiMemoryDescriptor, mirroring a future-widened UEFI record
	buf := make([]byte, descSize*2)

	write := func(i int, typ uint32, physStart, pages, attr uint64) {
		d := (*uefiMemoryDescriptor)(unsafe.Pointer(&buf[i*descSize]))
		d.Type = typ
		d.PhysicalStart = physStart
		d.NumberOfPages = pages
		d.Attribute = attr
	}
	write(0, 7, 0x100000, 16, 0x1)
	write(1, 2, 0x200000, 32, 0x0)

	m := MemoryMapRaw{
		Buffer:         &buf[0],
		MapSize:        uint64(len(buf)),
		DescriptorSize: descSize,
	}

	descs := m.Descriptors()
	if len(descs) != 2 {
		t.Fatalf("Descriptors() returned %d entries, want 2", len(descs))
	}
	if descs[0].Type != 7 || descs[0].PhysicalStart != 0x100000 || descs[0].NumberOfPages != 16 {
		t.Fatalf("descs[0] = %+v, unexpected", descs[0])
	}
	if descs[1].Type != 2 || descs[1].PhysicalStart != 0x200000 || descs[1].NumberOfPages != 32 {
		t.Fatalf("descs[1] = %+v, unexpected", descs[1])
	}
}
