// Demo clock test window
// https://github.com/mknm-os/kernel
//
// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package graphics

// ClockWindow is the "updated clock window (test surface)" spec.md
// §4.13 step 5 draws on every main-loop iteration: a fixed-size block
// whose fill color encodes a tick counter, giving the kernel event loop a
// visible side effect without a real compositor (window.rs's layered
// Window is the out-of-scope original; this keeps only a flat rectangle).
type ClockWindow struct {
	writer       *Writer
	x, y         uint32
	width, height uint32
}

// NewClockWindow creates a clock window at (x, y) sized width x height.
func NewClockWindow(w *Writer, x, y, width, height uint32) *ClockWindow {
	return &ClockWindow{writer: w, x: x, y: y, width: width, height: height}
}

// Draw renders ticks as a grayscale value cycling every 256 ticks, the same
// free-running-counter idea as the original's software clock.
func (c *ClockWindow) Draw(ticks uint64) {
	shade := uint8(ticks % 256)
	c.writer.FillRect(c.x, c.y, c.width, c.height, Color{R: shade, G: shade, B: shade})
}
