package bits

import "testing"

func TestGetMasksAndShifts(t *testing.T) {
	v := uint32(0b1011_0000)
	if got := Get(&v, 4, 0xf); got != 0b1011 {
		t.Fatalf("Get = %b, want 1011", got)
	}
}

func TestIsSet(t *testing.T) {
	v := uint32(1 << 3)
	if !IsSet(&v, 3) {
		t.Fatalf("IsSet(3) = false, want true")
	}
	if IsSet(&v, 2) {
		t.Fatalf("IsSet(2) = true, want false")
	}
}

func TestSetAndClear(t *testing.T) {
	var v uint32

	Set(&v, 5)
	if v != 1<<5 {
		t.Fatalf("Set(5): v = %b, want %b", v, 1<<5)
	}

	Clear(&v, 5)
	if v != 0 {
		t.Fatalf("Clear(5): v = %b, want 0", v)
	}
}

func TestSetN(t *testing.T) {
	v := uint32(0xff)

	SetN(&v, 4, 0xf, 0xa)
	if v != 0xaf {
		t.Fatalf("SetN = %#x, want 0xaf", v)
	}
}
