package graphics

import "testing"

func newTestConfig(format PixelFormat) *Config {
	const w, h = 4, 4
	return &Config{
		Buf:                  make([]byte, w*h*4),
		PixelsPerScanLine:    w,
		HorizontalResolution: w,
		VerticalResolution:   h,
		Format:               format,
	}
}

func TestWriteRGBX(t *testing.T) {
	cfg := newTestConfig(PixelFormatRGBX)
	w := NewWriter(cfg)

	w.Write(1, 1, Color{R: 10, G: 20, B: 30})

	pos := 4 * (cfg.PixelsPerScanLine*1 + 1)
	if cfg.Buf[pos] != 10 || cfg.Buf[pos+1] != 20 || cfg.Buf[pos+2] != 30 {
		t.Fatalf("RGBX bytes = %v, want [10 20 30]", cfg.Buf[pos:pos+3])
	}
}

func TestWriteBGRX(t *testing.T) {
	cfg := newTestConfig(PixelFormatBGRX)
	w := NewWriter(cfg)

	w.Write(1, 1, Color{R: 10, G: 20, B: 30})

	pos := 4 * (cfg.PixelsPerScanLine*1 + 1)
	if cfg.Buf[pos] != 30 || cfg.Buf[pos+1] != 20 || cfg.Buf[pos+2] != 10 {
		t.Fatalf("BGRX bytes = %v, want [30 20 10]", cfg.Buf[pos:pos+3])
	}
}

func TestWriteClipsOutOfBounds(t *testing.T) {
	cfg := newTestConfig(PixelFormatRGBX)
	w := NewWriter(cfg)

	// Must not panic or corrupt adjacent memory.
	w.Write(100, 100, Color{R: 1, G: 2, B: 3})

	for i, b := range cfg.Buf {
		if b != 0 {
			t.Fatalf("buf[%d] = %d, want 0 (out-of-bounds write clipped)", i, b)
		}
	}
}

func TestFillRect(t *testing.T) {
	cfg := newTestConfig(PixelFormatRGBX)
	w := NewWriter(cfg)

	w.FillRect(0, 0, 2, 2, Color{R: 5, G: 5, B: 5})

	for y := uint32(0); y < 2; y++ {
		for x := uint32(0); x < 2; x++ {
			pos := 4 * (cfg.PixelsPerScanLine*y + x)
			if cfg.Buf[pos] != 5 {
				t.Fatalf("pixel (%d,%d) = %d, want 5", x, y, cfg.Buf[pos])
			}
		}
	}

	// Untouched corner outside the rect.
	pos := 4 * (cfg.PixelsPerScanLine*3 + 3)
	if cfg.Buf[pos] != 0 {
		t.Fatalf("pixel (3,3) = %d, want untouched 0", cfg.Buf[pos])
	}
}

func TestClockWindowDrawCyclesShade(t *testing.T) {
	cfg := newTestConfig(PixelFormatRGBX)
	w := NewWriter(cfg)
	c := NewClockWindow(w, 0, 0, 1, 1)

	c.Draw(300) // 300 % 256 = 44

	if cfg.Buf[0] != 44 {
		t.Fatalf("shade = %d, want 44", cfg.Buf[0])
	}
}
