// Framebuffer pixel writer
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package graphics is the minimal pixel-writer surface the kernel event
// loop draws its demo clock window through. spec.md §1 names the full
// graphics stack (layered compositor, font rendering, mouse cursor) as an
// out-of-scope external collaborator; this package implements only the
// slice that gives the kernel package something real to call, grounded on
// original_source/kernel/src/graphics.rs's RGBPixelWriter/BGRPixelWriter
// split.
package graphics

// PixelFormat selects the byte order frame buffer memory uses.
type PixelFormat int

const (
	PixelFormatRGBX PixelFormat = iota
	PixelFormatBGRX
)

// Config describes the framebuffer handed off by the bootloader (spec.md
// §6's FrameBufferConfig).
type Config struct {
	Buf                 []byte
	PixelsPerScanLine    uint32
	HorizontalResolution uint32
	VerticalResolution   uint32
	Format               PixelFormat
}

// Color is an (R,G,B) triple, independent of the framebuffer's byte order.
type Color struct {
	R, G, B uint8
}

// Writer draws pixels into a Config's backing buffer, translating R,G,B
// into the buffer's native byte order.
type Writer struct {
	cfg *Config
}

// NewWriter creates a Writer over cfg.
func NewWriter(cfg *Config) *Writer {
	return &Writer{cfg: cfg}
}

// Write plots one pixel, silently clipping out-of-bounds coordinates the
// same way RGBPixelWriter::write does.
func (w *Writer) Write(x, y uint32, c Color) {
	cfg := w.cfg
	if x >= cfg.HorizontalResolution || y >= cfg.VerticalResolution {
		return
	}

	pos := 4 * (cfg.PixelsPerScanLine*y + x)
	if int(pos)+2 >= len(cfg.Buf) {
		return
	}

	switch cfg.Format {
	case PixelFormatBGRX:
		cfg.Buf[pos] = c.B
		cfg.Buf[pos+1] = c.G
		cfg.Buf[pos+2] = c.R
	default:
		cfg.Buf[pos] = c.R
		cfg.Buf[pos+1] = c.G
		cfg.Buf[pos+2] = c.B
	}
}

// FillRect paints a w x h block starting at (x, y).
func (w *Writer) FillRect(x, y, width, height uint32, c Color) {
	for dy := uint32(0); dy < height; dy++ {
		for dx := uint32(0); dx < width; dx++ {
			w.Write(x+dx, y+dy, c)
		}
	}
}
